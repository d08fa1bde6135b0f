package ciscoapi

import "errors"

// Token Manager failures.
var (
	ErrMissingCredentials      = errors.New("client credentials not configured")
	ErrInvalidCredentials      = errors.New("invalid client credentials")
	ErrInsufficientPermissions = errors.New("insufficient permissions on API endpoint")
	ErrAuthServerUnreachable   = errors.New("authentication server unreachable")
	ErrAuthServerMalformed     = errors.New("unexpected response from authentication server")
)

// API Client failures.
var (
	ErrAuthFailed   = errors.New("API authorization failed")
	ErrRemote       = errors.New("upstream API error")
	ErrUnreachable  = errors.New("upstream API unreachable")
	ErrMalformed    = errors.New("malformed response from upstream API")
	ErrInvalidQuery = errors.New("invalid EoX query")
)
