package auth

import (
	"context"
	"time"
)

// Principal is the authenticated identity derived from a verified token.
// It carries no credential: token-derived principals never hold a
// password. A Principal is constructed once per request, installed into
// the request context, and discarded at end of request.
type Principal struct {
	// ID is the numeric identifier of the authenticated user.
	ID int64 `json:"id"`

	// Email is the email address.
	Email string `json:"email"`

	// PhoneNumber is the phone number.
	PhoneNumber string `json:"phone_number"`

	// Authorities is the ordered list of granted authority strings
	// (roles/scopes). It is never nil: an empty list means authenticated
	// with no granted capabilities.
	Authorities []string `json:"authorities"`

	// Username is the login/display name.
	Username string `json:"username"`
}

// HasAuthority checks if the principal holds a specific authority.
func (p *Principal) HasAuthority(authority string) bool {
	for _, a := range p.Authorities {
		if a == authority {
			return true
		}
	}
	return false
}

// HasAnyAuthority checks if the principal holds any of the given
// authorities.
func (p *Principal) HasAnyAuthority(authorities ...string) bool {
	for _, authority := range authorities {
		if p.HasAuthority(authority) {
			return true
		}
	}
	return false
}

// Details carries ambient request metadata attached alongside the
// Principal. It is auxiliary detail, not part of the identity itself.
type Details struct {
	// RemoteAddr is the origin address of the request.
	RemoteAddr string `json:"remote_addr,omitempty"`

	// RequestID identifies the request, taken from the X-Request-Id
	// header or generated when absent.
	RequestID string `json:"request_id,omitempty"`

	// SessionHint is the value of the configured session hint header.
	SessionHint string `json:"session_hint,omitempty"`

	// AuthTime is when authentication occurred.
	AuthTime time.Time `json:"auth_time,omitempty"`
}

// Context keys for request-scoped authentication state.
type principalContextKey struct{}
type detailsContextKey struct{}

// ContextWithPrincipal installs a principal into the request context.
func ContextWithPrincipal(ctx context.Context, principal *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, principal)
}

// PrincipalFromContext extracts the principal from the request context.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	principal, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok || principal == nil {
		return nil, false
	}
	return principal, true
}

// ContextWithDetails attaches request metadata to the context.
func ContextWithDetails(ctx context.Context, details *Details) context.Context {
	return context.WithValue(ctx, detailsContextKey{}, details)
}

// DetailsFromContext extracts the request metadata from the context.
func DetailsFromContext(ctx context.Context) (*Details, bool) {
	details, ok := ctx.Value(detailsContextKey{}).(*Details)
	if !ok || details == nil {
		return nil, false
	}
	return details, true
}
