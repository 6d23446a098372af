package auth

// HTTP header constants.
const (
	// HeaderAuthorization is the Authorization header name.
	HeaderAuthorization = "Authorization"

	// HeaderWWWAuthenticate is the WWW-Authenticate header name.
	HeaderWWWAuthenticate = "WWW-Authenticate"

	// HeaderXRequestID is the X-Request-Id header name.
	HeaderXRequestID = "X-Request-Id"

	// HeaderContentType is the Content-Type header name.
	HeaderContentType = "Content-Type"

	// HeaderXSessionID is the default session hint header name.
	HeaderXSessionID = "X-Session-Id"
)

// Content type constants.
const (
	// ContentTypeJSON is the JSON content type.
	ContentTypeJSON = "application/json"
)

// Authentication scheme constants.
const (
	// AuthSchemeBearer is the Bearer scheme prefix: the literal word,
	// case-sensitive, followed by exactly one space.
	AuthSchemeBearer = "Bearer "
)
