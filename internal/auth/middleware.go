package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vyrodovalexey/avauthmw/internal/auth/jwt"
	"github.com/vyrodovalexey/avauthmw/internal/observability"
)

// Authenticator authenticates bearer tokens and installs the resulting
// Principal into the request context. It runs at most once per request:
// when a principal is already present in the context the request passes
// through untouched, so the gate can sit on nested routers without
// re-verifying the token.
type Authenticator struct {
	validator     jwt.Validator
	logger        observability.Logger
	metrics       *Metrics
	clockSkew     time.Duration
	sessionHeader string
	now           func() time.Time
}

// AuthenticatorOption configures the Authenticator.
type AuthenticatorOption func(*Authenticator)

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) AuthenticatorOption {
	return func(a *Authenticator) {
		a.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(metrics *Metrics) AuthenticatorOption {
	return func(a *Authenticator) {
		a.metrics = metrics
	}
}

// WithClockSkew sets the allowed clock skew for expiration checks.
func WithClockSkew(skew time.Duration) AuthenticatorOption {
	return func(a *Authenticator) {
		a.clockSkew = skew
	}
}

// WithSessionHeader sets the header recorded as a session hint.
func WithSessionHeader(header string) AuthenticatorOption {
	return func(a *Authenticator) {
		a.sessionHeader = header
	}
}

// WithNowFunc overrides the time source. Used in tests.
func WithNowFunc(now func() time.Time) AuthenticatorOption {
	return func(a *Authenticator) {
		a.now = now
	}
}

// NewAuthenticator creates a new Authenticator.
func NewAuthenticator(validator jwt.Validator, opts ...AuthenticatorOption) (*Authenticator, error) {
	if validator == nil {
		return nil, errors.New("validator is required")
	}

	a := &Authenticator{
		validator:     validator,
		logger:        observability.NopLogger(),
		sessionHeader: HeaderXSessionID,
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a, nil
}

// BearerToken extracts the bearer token from a request. The scheme match
// is strict: the literal "Bearer" followed by exactly one space,
// case-sensitive. ErrNoCredentials is returned when the Authorization
// header is absent or carries a different scheme; those are the
// pass-through cases. A header carrying the scheme with nothing after it
// is presented credentials: the empty token is returned and fails
// verification downstream.
func BearerToken(r *http.Request) (string, error) {
	header := r.Header.Get(HeaderAuthorization)
	if header == "" {
		return "", ErrNoCredentials
	}
	if !strings.HasPrefix(header, AuthSchemeBearer) {
		return "", ErrNoCredentials
	}
	return header[len(AuthSchemeBearer):], nil
}

// Authenticate verifies a bearer token and builds the Principal it
// asserts. Expiration is checked here, after signature verification, so
// an expired token is reported as jwt.ErrTokenExpired rather than a
// generic validation failure. The "exp" claim is mandatory: a token
// without one, or with a non-numeric one, never authenticates.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*Principal, error) {
	claims, err := a.validator.Parse(ctx, token)
	if err != nil {
		return nil, WrapAuthError(err, "verify")
	}

	exp, ok, err := claims.ExpiresAt()
	if err != nil {
		return nil, WrapAuthError(err, "claims")
	}
	if !ok {
		return nil, WrapAuthError(newMissingClaimError(ClaimExpiresAt), "claims")
	}
	if a.now().After(exp.Add(a.clockSkew)) {
		return nil, WrapAuthError(jwt.ErrTokenExpired, "verify")
	}

	principal, err := BuildPrincipal(claims)
	if err != nil {
		return nil, WrapAuthError(err, "claims")
	}

	return principal, nil
}

// HTTPMiddleware returns middleware implementing the authentication
// gate. Requests without bearer credentials pass through anonymously;
// requests that present a bearer token are either authenticated or
// rejected with 401.
func (a *Authenticator) HTTPMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := a.now()

			if _, ok := PrincipalFromContext(r.Context()); ok {
				next.ServeHTTP(w, r)
				return
			}

			token, err := BearerToken(r)
			if err != nil {
				if a.metrics != nil {
					a.metrics.RecordRequest(OutcomeAnonymous, a.now().Sub(start))
				}
				next.ServeHTTP(w, r)
				return
			}

			principal, err := a.Authenticate(r.Context(), token)
			if err != nil {
				a.rejectRequest(w, r, err, start)
				return
			}

			ctx := ContextWithPrincipal(r.Context(), principal)
			details := a.requestDetails(r)
			ctx = ContextWithDetails(ctx, details)
			ctx = observability.ContextWithRequestID(ctx, details.RequestID)

			if a.metrics != nil {
				a.metrics.RecordRequest(OutcomeAuthenticated, a.now().Sub(start))
			}
			a.logger.Debug("request authenticated",
				observability.Int64("user_id", principal.ID),
				observability.String("username", principal.Username),
				observability.String("request_id", details.RequestID),
			)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requestDetails collects ambient request metadata.
func (a *Authenticator) requestDetails(r *http.Request) *Details {
	requestID := r.Header.Get(HeaderXRequestID)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	return &Details{
		RemoteAddr:  r.RemoteAddr,
		RequestID:   requestID,
		SessionHint: r.Header.Get(a.sessionHeader),
		AuthTime:    a.now(),
	}
}

// rejectRequest writes a 401 response for a failed authentication.
func (a *Authenticator) rejectRequest(w http.ResponseWriter, r *http.Request, err error, start time.Time) {
	reason, message := classifyAuthError(err)

	if a.metrics != nil {
		a.metrics.RecordRequest(OutcomeRejected, a.now().Sub(start))
		a.metrics.RecordRejection(reason)
	}
	a.logger.Warn("authentication rejected",
		observability.String("reason", reason),
		observability.String("remote_addr", r.RemoteAddr),
		observability.Error(err),
	)

	writeUnauthorized(w, message)
}

// classifyAuthError maps an authentication failure to a metrics reason
// and a client-facing message. Claim-level failures are described to the
// client; signature and parse failures are not, beyond "invalid token".
func classifyAuthError(err error) (reason, message string) {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ReasonExpired, "token expired"
	case jwt.IsClaimTypeError(err):
		return ReasonBadClaims, "invalid claim type"
	case errors.Is(err, ErrMissingClaim):
		return ReasonBadClaims, "missing required claim"
	default:
		return ReasonInvalidToken, "invalid token"
	}
}

// writeUnauthorized writes a 401 JSON error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set(HeaderContentType, ContentTypeJSON)
	w.Header().Set(HeaderWWWAuthenticate, `Bearer error="invalid_token"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
