package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/vyrodovalexey/avauthmw/internal/observability"
)

// Gin context key for the authenticated principal.
const (
	// GinPrincipalKey is the gin context key holding the *Principal.
	GinPrincipalKey = "auth_principal"
)

// GinMiddleware returns a gin handler implementing the authentication
// gate. Behavior matches HTTPMiddleware: anonymous pass-through without
// credentials, 401 on a bad token. The principal is installed both into
// the request context and under GinPrincipalKey for handler access.
func (a *Authenticator) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := a.now()

		if _, ok := PrincipalFromContext(c.Request.Context()); ok {
			c.Next()
			return
		}

		token, err := BearerToken(c.Request)
		if err != nil {
			if a.metrics != nil {
				a.metrics.RecordRequest(OutcomeAnonymous, a.now().Sub(start))
			}
			c.Next()
			return
		}

		principal, err := a.Authenticate(c.Request.Context(), token)
		if err != nil {
			reason, message := classifyAuthError(err)
			if a.metrics != nil {
				a.metrics.RecordRequest(OutcomeRejected, a.now().Sub(start))
				a.metrics.RecordRejection(reason)
			}
			a.logger.Warn("authentication rejected",
				observability.String("reason", reason),
				observability.String("remote_addr", c.ClientIP()),
				observability.Error(err),
			)
			c.Header(HeaderWWWAuthenticate, `Bearer error="invalid_token"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": message})
			return
		}

		details := a.requestDetails(c.Request)
		ctx := ContextWithPrincipal(c.Request.Context(), principal)
		ctx = ContextWithDetails(ctx, details)
		ctx = observability.ContextWithRequestID(ctx, details.RequestID)
		c.Request = c.Request.WithContext(ctx)
		c.Set(GinPrincipalKey, principal)

		if a.metrics != nil {
			a.metrics.RecordRequest(OutcomeAuthenticated, a.now().Sub(start))
		}

		c.Next()
	}
}

// GinPrincipal extracts the authenticated principal from a gin context.
func GinPrincipal(c *gin.Context) (*Principal, bool) {
	if value, exists := c.Get(GinPrincipalKey); exists {
		if principal, ok := value.(*Principal); ok {
			return principal, true
		}
	}
	return PrincipalFromContext(c.Request.Context())
}

// RequestIDMiddleware ensures every request carries a request ID,
// generating one when the X-Request-Id header is absent and echoing it
// back on the response.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderXRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
			c.Request.Header.Set(HeaderXRequestID, requestID)
		}
		c.Header(HeaderXRequestID, requestID)
		c.Request = c.Request.WithContext(
			observability.ContextWithRequestID(c.Request.Context(), requestID),
		)
		c.Next()
	}
}
