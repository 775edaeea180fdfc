package errors

import "errors"

var (
	ErrNoUpstreamSession   = errors.New("no upstream identity session")
	ErrNoIdentityAssertion = errors.New("upstream session has no identity assertion")
	ErrExchangeFailed      = errors.New("token exchange failed")
	ErrDecodeFailed        = errors.New("token decode failed")
	ErrRevokeFailed        = errors.New("token revoke failed")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrNotAuthenticated    = errors.New("not authenticated")
	ErrNilEvent            = errors.New("audit event is nil")
)
