package jwt

import (
	"errors"
	"fmt"
)

// Supported signing algorithm constants. Only asymmetric algorithms are
// accepted: verification uses public keys exclusively.
const (
	AlgRS256 = "RS256"
	AlgRS384 = "RS384"
	AlgRS512 = "RS512"
	AlgPS256 = "PS256"
	AlgPS384 = "PS384"
	AlgPS512 = "PS512"
	AlgES256 = "ES256"
	AlgES384 = "ES384"
	AlgES512 = "ES512"
	AlgEdDSA = "EdDSA"
)

// Sentinel errors for token verification.
var (
	// ErrEmptyToken indicates that the token is empty.
	ErrEmptyToken = errors.New("token is empty")

	// ErrTokenMalformed indicates that the token is structurally broken.
	ErrTokenMalformed = errors.New("token is malformed")

	// ErrTokenInvalidSignature indicates that the token signature does not
	// verify against the configured key.
	ErrTokenInvalidSignature = errors.New("token signature is invalid")

	// ErrTokenExpired indicates that the token has expired.
	ErrTokenExpired = errors.New("token has expired")

	// ErrUnsupportedAlgorithm indicates that the signing algorithm is not
	// supported or not allowed.
	ErrUnsupportedAlgorithm = errors.New("signing algorithm is not supported")

	// ErrKeyNotFound indicates that no verification key was available.
	ErrKeyNotFound = errors.New("verification key not found")

	// ErrInvalidKey indicates that the verification key is unusable for
	// the token's algorithm.
	ErrInvalidKey = errors.New("verification key is invalid")

	// ErrJWKSFetchFailed indicates that fetching a remote JWKS failed.
	ErrJWKSFetchFailed = errors.New("failed to fetch JWKS")

	// ErrClaimTypeMismatch indicates that a claim exists but its runtime
	// shape does not match the requested type.
	ErrClaimTypeMismatch = errors.New("claim type mismatch")
)

// ValidationError represents a token verification failure with details.
type ValidationError struct {
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("jwt validation error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("jwt validation error: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok || errors.Is(e.Cause, target)
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string, cause error) *ValidationError {
	return &ValidationError{
		Message: message,
		Cause:   cause,
	}
}

// ClaimTypeError describes a claim whose runtime shape does not match the
// requested type. It names the claim and the expected and actual JSON
// types; claim values themselves are never included in the message.
type ClaimTypeError struct {
	// Claim is the claim name.
	Claim string

	// Expected is the requested JSON type.
	Expected string

	// Actual is the JSON type found in the payload.
	Actual string

	// Element is the offending element index for list claims, -1 otherwise.
	Element int
}

// Error implements the error interface.
func (e *ClaimTypeError) Error() string {
	if e.Element >= 0 {
		return fmt.Sprintf("claim %q: element %d is not of type %s (actual type: %s)",
			e.Claim, e.Element, e.Expected, e.Actual)
	}
	return fmt.Sprintf("claim %q is not of type %s (actual type: %s)",
		e.Claim, e.Expected, e.Actual)
}

// Is checks if the error matches the target.
func (e *ClaimTypeError) Is(target error) bool {
	if errors.Is(target, ErrClaimTypeMismatch) {
		return true
	}
	_, ok := target.(*ClaimTypeError)
	return ok
}

// newClaimTypeError creates a ClaimTypeError for a scalar claim.
func newClaimTypeError(claim, expected, actual string) *ClaimTypeError {
	return &ClaimTypeError{
		Claim:    claim,
		Expected: expected,
		Actual:   actual,
		Element:  -1,
	}
}

// newElementTypeError creates a ClaimTypeError for a list element.
func newElementTypeError(claim, expected, actual string, element int) *ClaimTypeError {
	return &ClaimTypeError{
		Claim:    claim,
		Expected: expected,
		Actual:   actual,
		Element:  element,
	}
}

// KeyError represents a key-related error.
type KeyError struct {
	KeyID   string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *KeyError) Error() string {
	if e.KeyID != "" {
		if e.Cause != nil {
			return fmt.Sprintf("jwt key error (kid=%s): %s: %v", e.KeyID, e.Message, e.Cause)
		}
		return fmt.Sprintf("jwt key error (kid=%s): %s", e.KeyID, e.Message)
	}
	if e.Cause != nil {
		return fmt.Sprintf("jwt key error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("jwt key error: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *KeyError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *KeyError) Is(target error) bool {
	_, ok := target.(*KeyError)
	return ok || errors.Is(e.Cause, target)
}

// NewKeyError creates a new KeyError.
func NewKeyError(keyID, message string, cause error) *KeyError {
	return &KeyError{
		KeyID:   keyID,
		Message: message,
		Cause:   cause,
	}
}

// IsExpiredError checks if an error indicates token expiration.
func IsExpiredError(err error) bool {
	return errors.Is(err, ErrTokenExpired)
}

// IsSignatureError checks if an error indicates a signature problem.
func IsSignatureError(err error) bool {
	return errors.Is(err, ErrTokenInvalidSignature)
}

// IsClaimTypeError checks if an error indicates a claim type mismatch.
func IsClaimTypeError(err error) bool {
	var typeErr *ClaimTypeError
	return errors.As(err, &typeErr)
}
