package models

import "time"

// Role is the user role claim carried by backend access tokens.
type Role string

const (
	RoleStudent      Role = "student"
	RoleInstructor   Role = "instructor"
	RoleCollegeAdmin Role = "college_admin"
	RoleAdmin        Role = "admin"
	RoleRecruiter    Role = "recruiter"
)

// ClaimSet is the decoded payload of a backend access token. It is derived
// from the token string and never constructed by hand; the signature is
// checked by the backend, not here.
type ClaimSet struct {
	Subject   string    `json:"sub"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      Role      `json:"userRole"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"exp"`
	Issuer    string    `json:"iss"`
	Audience  string    `json:"aud"`
}
