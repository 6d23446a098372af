package auth

import (
	"errors"
	"fmt"
)

// Sentinel errors for the authentication gate.
var (
	// ErrNoCredentials indicates that no bearer credentials were provided.
	// This is the pass-through case, not a rejection.
	ErrNoCredentials = errors.New("no credentials provided")

	// ErrAuthenticationFailed indicates that authentication failed.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrMissingClaim indicates that a required claim is absent from the
	// token payload.
	ErrMissingClaim = errors.New("required claim is missing")
)

// MissingClaimError names a required claim that is absent.
type MissingClaimError struct {
	Claim string
}

// Error implements the error interface.
func (e *MissingClaimError) Error() string {
	return fmt.Sprintf("required claim %q is missing", e.Claim)
}

// Is checks if the error matches the target.
func (e *MissingClaimError) Is(target error) bool {
	if errors.Is(target, ErrMissingClaim) {
		return true
	}
	_, ok := target.(*MissingClaimError)
	return ok
}

// newMissingClaimError creates a MissingClaimError.
func newMissingClaimError(claim string) *MissingClaimError {
	return &MissingClaimError{Claim: claim}
}

// AuthError represents an authentication failure with context about which
// stage of the pipeline rejected the request.
type AuthError struct {
	Stage   string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("auth error (%s): %s: %v", e.Stage, e.Message, e.Cause)
	}
	return fmt.Sprintf("auth error (%s): %s", e.Stage, e.Message)
}

// Unwrap returns the underlying error.
func (e *AuthError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *AuthError) Is(target error) bool {
	if errors.Is(target, ErrAuthenticationFailed) {
		return true
	}
	_, ok := target.(*AuthError)
	return ok || errors.Is(e.Cause, target)
}

// WrapAuthError wraps an error with the pipeline stage that produced it.
func WrapAuthError(err error, stage string) error {
	if err == nil {
		return nil
	}
	return &AuthError{
		Stage:   stage,
		Message: err.Error(),
		Cause:   err,
	}
}

// IsAuthError checks if an error is an authentication error.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}
