package models

// SessionStatus is the session controller's state machine position.
type SessionStatus string

const (
	StatusIdle            SessionStatus = "idle"
	StatusChecking        SessionStatus = "checking"
	StatusAuthenticated   SessionStatus = "authenticated"
	StatusUnauthenticated SessionStatus = "unauthenticated"
	StatusError           SessionStatus = "error"
)

// SessionState is the controller-owned view of the current session. It is
// only ever replaced wholesale by the controller's transitions, never
// partially mutated by callers.
type SessionState struct {
	Status          SessionStatus `json:"status"`
	User            *ClaimSet     `json:"user,omitempty"`
	IsLoading       bool          `json:"is_loading"`
	IsAuthenticated bool          `json:"is_authenticated"`
	ErrorKind       string        `json:"error,omitempty"`
	BackendToken    string        `json:"-"`
}
