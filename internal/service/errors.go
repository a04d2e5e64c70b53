package service

import "errors"

// Fixed error taxonomy. Controllers map these to stable wire codes; raw
// provider or infrastructure errors never reach a caller.
var (
	ErrClientInvalid        = errors.New("client invalid")
	ErrRedirectMismatch     = errors.New("redirect uri mismatch")
	ErrCodeInvalid          = errors.New("authorization code invalid")
	ErrCodeExpired          = errors.New("authorization code expired")
	ErrCodeAlreadyUsed      = errors.New("authorization code already used")
	ErrTokenInvalid         = errors.New("token invalid")
	ErrScopeDenied          = errors.New("scope denied")
	ErrProviderStateInvalid = errors.New("provider state invalid")
	ErrProviderError        = errors.New("provider error")
	ErrProviderUnavailable  = errors.New("provider unavailable")
	ErrForbidden            = errors.New("forbidden")
	ErrBusy                 = errors.New("busy")
	ErrAccountConflict      = errors.New("account conflict")
	ErrNotLoggedIn          = errors.New("not logged in")
	ErrSystemError          = errors.New("system error")
)
