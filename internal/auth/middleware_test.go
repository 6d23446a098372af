package auth

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/avauthmw/internal/auth/jwt"
)

// mintRS256 builds an RS256-signed token over the given claims.
func mintRS256(t *testing.T, key *rsa.PrivateKey, claims map[string]interface{}) string {
	t.Helper()

	encode := func(v interface{}) string {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		return base64.RawURLEncoding.EncodeToString(data)
	}

	header := map[string]interface{}{"alg": jwt.AlgRS256, "typ": "JWT"}
	signingInput := encode(header) + "." + encode(claims)

	h := crypto.SHA256.New()
	h.Write([]byte(signingInput))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, h.Sum(nil))
	require.NoError(t, err)

	return signingInput + "." + base64.RawURLEncoding.EncodeToString(sig)
}

func testClaims(exp time.Time) map[string]interface{} {
	return map[string]interface{}{
		"exp":         exp.Unix(),
		"id":          42,
		"email":       "alice@example.com",
		"phoneNumber": "+15551234567",
		"authorities": []string{"ADMIN", "USER"},
		"username":    "alice",
	}
}

type gateFixture struct {
	key           *rsa.PrivateKey
	authenticator *Authenticator
	now           time.Time
}

func newGateFixture(t *testing.T, opts ...AuthenticatorOption) *gateFixture {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	validator, err := jwt.NewValidator(
		jwt.NewStaticKeyProviderFromKey(key.Public()),
		jwt.WithValidatorMetrics(jwt.NewMetricsWithRegisterer("test", prometheus.NewRegistry())),
	)
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	opts = append([]AuthenticatorOption{
		WithMetrics(NewMetricsWithRegisterer("test", prometheus.NewRegistry())),
		WithNowFunc(func() time.Time { return now }),
	}, opts...)

	authenticator, err := NewAuthenticator(validator, opts...)
	require.NoError(t, err)

	return &gateFixture{key: key, authenticator: authenticator, now: now}
}

// captureHandler records the request context state seen downstream.
type captureHandler struct {
	called    bool
	principal *Principal
	hasAuth   bool
	details   *Details
}

func (h *captureHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.called = true
	h.principal, h.hasAuth = PrincipalFromContext(r.Context())
	h.details, _ = DetailsFromContext(r.Context())
	w.WriteHeader(http.StatusOK)
}

func serveThrough(f *gateFixture, r *http.Request) (*captureHandler, *httptest.ResponseRecorder) {
	handler := &captureHandler{}
	rec := httptest.NewRecorder()
	f.authenticator.HTTPMiddleware()(handler).ServeHTTP(rec, r)
	return handler, rec
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{
			name:   "bearer token",
			header: "Bearer abc.def.ghi",
			want:   "abc.def.ghi",
		},
		{
			name:    "no header",
			header:  "",
			wantErr: true,
		},
		{
			name:    "basic scheme",
			header:  "Basic dXNlcjpwYXNz",
			wantErr: true,
		},
		{
			name:    "lowercase scheme is not bearer",
			header:  "bearer abc.def.ghi",
			wantErr: true,
		},
		{
			// The scheme is presented, so this is credentials: the empty
			// token goes on to verification instead of passing through.
			name:   "scheme without token yields empty token",
			header: "Bearer ",
			want:   "",
		},
		{
			name:    "scheme without space",
			header:  "Bearerabc",
			wantErr: true,
		},
		{
			name:   "double space keeps second space in token",
			header: "Bearer  abc",
			want:   " abc",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
			if tt.header != "" {
				r.Header.Set(HeaderAuthorization, tt.header)
			}

			got, err := BearerToken(r)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrNoCredentials))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestHTTPMiddleware_PassThroughWithoutCredentials(t *testing.T) {
	t.Parallel()

	f := newGateFixture(t)

	for _, header := range []string{"", "Basic dXNlcjpwYXNz", "bearer x.y.z"} {
		r := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
		if header != "" {
			r.Header.Set(HeaderAuthorization, header)
		}

		handler, rec := serveThrough(f, r)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, handler.called)
		assert.False(t, handler.hasAuth, "no principal expected for %q", header)
	}
}

func TestHTTPMiddleware_AuthenticatesValidToken(t *testing.T) {
	t.Parallel()

	f := newGateFixture(t)
	token := mintRS256(t, f.key, testClaims(f.now.Add(time.Hour)))

	r := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	r.Header.Set(HeaderAuthorization, "Bearer "+token)
	r.Header.Set(HeaderXRequestID, "req-123")
	r.Header.Set(HeaderXSessionID, "sess-9")

	handler, rec := serveThrough(f, r)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.True(t, handler.hasAuth)
	assert.Equal(t, int64(42), handler.principal.ID)
	assert.Equal(t, "alice@example.com", handler.principal.Email)
	assert.Equal(t, "+15551234567", handler.principal.PhoneNumber)
	assert.Equal(t, []string{"ADMIN", "USER"}, handler.principal.Authorities)
	assert.Equal(t, "alice", handler.principal.Username)

	require.NotNil(t, handler.details)
	assert.Equal(t, "req-123", handler.details.RequestID)
	assert.Equal(t, "sess-9", handler.details.SessionHint)
	assert.Equal(t, f.now, handler.details.AuthTime)
}

func TestHTTPMiddleware_GeneratesRequestID(t *testing.T) {
	t.Parallel()

	f := newGateFixture(t)
	token := mintRS256(t, f.key, testClaims(f.now.Add(time.Hour)))

	r := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	r.Header.Set(HeaderAuthorization, "Bearer "+token)

	handler, _ := serveThrough(f, r)

	require.NotNil(t, handler.details)
	assert.NotEmpty(t, handler.details.RequestID)
}

func TestHTTPMiddleware_RejectsExpiredToken(t *testing.T) {
	t.Parallel()

	f := newGateFixture(t)
	token := mintRS256(t, f.key, testClaims(f.now.Add(-time.Minute)))

	r := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	r.Header.Set(HeaderAuthorization, "Bearer "+token)

	handler, rec := serveThrough(f, r)

	assert.False(t, handler.called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, ContentTypeJSON, rec.Header().Get(HeaderContentType))
	assert.NotEmpty(t, rec.Header().Get(HeaderWWWAuthenticate))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "token expired", body["error"])
}

func TestHTTPMiddleware_ClockSkewRescuesRecentExpiry(t *testing.T) {
	t.Parallel()

	f := newGateFixture(t, WithClockSkew(time.Minute))
	token := mintRS256(t, f.key, testClaims(f.now.Add(-30*time.Second)))

	r := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	r.Header.Set(HeaderAuthorization, "Bearer "+token)

	handler, rec := serveThrough(f, r)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, handler.hasAuth)
}

func TestHTTPMiddleware_RejectsForgedToken(t *testing.T) {
	t.Parallel()

	f := newGateFixture(t)

	otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	token := mintRS256(t, otherKey, testClaims(f.now.Add(time.Hour)))

	r := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	r.Header.Set(HeaderAuthorization, "Bearer "+token)

	handler, rec := serveThrough(f, r)

	assert.False(t, handler.called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "invalid token", body["error"])
}

func TestHTTPMiddleware_RejectsEmptyBearerToken(t *testing.T) {
	t.Parallel()

	f := newGateFixture(t)

	// The scheme with nothing after it presents credentials; it must be
	// rejected, not passed through anonymously.
	r := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	r.Header.Set(HeaderAuthorization, "Bearer ")

	handler, rec := serveThrough(f, r)

	assert.False(t, handler.called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "invalid token", body["error"])
}

func TestHTTPMiddleware_RejectsTokenWithoutExpiry(t *testing.T) {
	t.Parallel()

	f := newGateFixture(t)

	claims := testClaims(f.now.Add(time.Hour))
	delete(claims, "exp")
	token := mintRS256(t, f.key, claims)

	r := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	r.Header.Set(HeaderAuthorization, "Bearer "+token)

	handler, rec := serveThrough(f, r)

	assert.False(t, handler.called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "missing required claim", body["error"])
}

func TestHTTPMiddleware_RejectsMistypedExpiry(t *testing.T) {
	t.Parallel()

	f := newGateFixture(t)

	claims := testClaims(f.now.Add(time.Hour))
	claims["exp"] = "tomorrow"
	token := mintRS256(t, f.key, claims)

	r := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	r.Header.Set(HeaderAuthorization, "Bearer "+token)

	handler, rec := serveThrough(f, r)

	assert.False(t, handler.called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "invalid claim type", body["error"])
}

func TestHTTPMiddleware_RejectsGarbageToken(t *testing.T) {
	t.Parallel()

	f := newGateFixture(t)

	r := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	r.Header.Set(HeaderAuthorization, "Bearer not-a-token")

	handler, rec := serveThrough(f, r)

	assert.False(t, handler.called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHTTPMiddleware_RejectsMissingClaim(t *testing.T) {
	t.Parallel()

	f := newGateFixture(t)

	claims := testClaims(f.now.Add(time.Hour))
	delete(claims, "email")
	token := mintRS256(t, f.key, claims)

	r := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	r.Header.Set(HeaderAuthorization, "Bearer "+token)

	handler, rec := serveThrough(f, r)

	assert.False(t, handler.called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "missing required claim", body["error"])
}

func TestHTTPMiddleware_RejectsMistypedClaim(t *testing.T) {
	t.Parallel()

	f := newGateFixture(t)

	claims := testClaims(f.now.Add(time.Hour))
	claims["id"] = "42"
	token := mintRS256(t, f.key, claims)

	r := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	r.Header.Set(HeaderAuthorization, "Bearer "+token)

	handler, rec := serveThrough(f, r)

	assert.False(t, handler.called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "invalid claim type", body["error"])
}

func TestHTTPMiddleware_SkipsWhenAlreadyAuthenticated(t *testing.T) {
	t.Parallel()

	f := newGateFixture(t)

	existing := &Principal{ID: 7, Username: "preauth", Authorities: []string{}}
	r := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	// A token the gate would reject; it must not even be inspected.
	r.Header.Set(HeaderAuthorization, "Bearer garbage")
	r = r.WithContext(ContextWithPrincipal(r.Context(), existing))

	handler, rec := serveThrough(f, r)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.True(t, handler.hasAuth)
	assert.Equal(t, existing, handler.principal)
}

func TestAuthenticate_ErrorClassification(t *testing.T) {
	t.Parallel()

	f := newGateFixture(t)

	t.Run("expired", func(t *testing.T) {
		t.Parallel()

		token := mintRS256(t, f.key, testClaims(f.now.Add(-time.Hour)))
		_, err := f.authenticator.Authenticate(context.Background(), token)
		require.Error(t, err)
		assert.True(t, jwt.IsExpiredError(err))
		assert.True(t, IsAuthError(err))
	})

	t.Run("bad signature", func(t *testing.T) {
		t.Parallel()

		otherKey, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)
		token := mintRS256(t, otherKey, testClaims(f.now.Add(time.Hour)))

		_, authErr := f.authenticator.Authenticate(context.Background(), token)
		require.Error(t, authErr)
		assert.True(t, jwt.IsSignatureError(authErr))
	})

	t.Run("claim type mismatch", func(t *testing.T) {
		t.Parallel()

		claims := testClaims(f.now.Add(time.Hour))
		claims["authorities"] = "ADMIN"
		token := mintRS256(t, f.key, claims)

		_, err := f.authenticator.Authenticate(context.Background(), token)
		require.Error(t, err)
		assert.True(t, jwt.IsClaimTypeError(err))
	})

	t.Run("missing expiry", func(t *testing.T) {
		t.Parallel()

		claims := testClaims(f.now.Add(time.Hour))
		delete(claims, "exp")
		token := mintRS256(t, f.key, claims)

		_, err := f.authenticator.Authenticate(context.Background(), token)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMissingClaim))

		var missingErr *MissingClaimError
		require.True(t, errors.As(err, &missingErr))
		assert.Equal(t, ClaimExpiresAt, missingErr.Claim)
	})

	t.Run("mistyped expiry", func(t *testing.T) {
		t.Parallel()

		claims := testClaims(f.now.Add(time.Hour))
		claims["exp"] = true
		token := mintRS256(t, f.key, claims)

		_, err := f.authenticator.Authenticate(context.Background(), token)
		require.Error(t, err)
		assert.True(t, jwt.IsClaimTypeError(err))
	})
}
