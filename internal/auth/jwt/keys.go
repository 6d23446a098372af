package jwt

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vyrodovalexey/avauthmw/internal/observability"
)

// KeyProvider supplies the public key used to verify token signatures.
// Implementations must be safe for concurrent readers; keys are read-only
// and never used to sign.
type KeyProvider interface {
	// VerificationKey returns the public key for the given key ID and
	// algorithm. Providers holding a single key ignore both arguments.
	VerificationKey(ctx context.Context, kid, alg string) (crypto.PublicKey, error)
}

// ParsePublicKeyFromPEM parses an RSA, ECDSA, or Ed25519 public key from
// PEM-encoded data.
func ParsePublicKeyFromPEM(pemData []byte) (crypto.PublicKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, NewKeyError("", "failed to decode PEM block", ErrInvalidKey)
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		// Try PKCS#1 for legacy RSA keys.
		rsaPub, pkcs1Err := x509.ParsePKCS1PublicKey(block.Bytes)
		if pkcs1Err != nil {
			return nil, NewKeyError("", "failed to parse public key", err)
		}
		return rsaPub, nil
	}

	switch pub.(type) {
	case *rsa.PublicKey, *ecdsa.PublicKey, ed25519.PublicKey:
		return pub, nil
	default:
		return nil, NewKeyError("", fmt.Sprintf("unsupported public key type %T", pub), ErrInvalidKey)
	}
}

// StaticKeyProvider holds a single fixed verification key.
type StaticKeyProvider struct {
	key crypto.PublicKey
}

// NewStaticKeyProvider creates a key provider from PEM-encoded public key
// data.
func NewStaticKeyProvider(pemData []byte) (*StaticKeyProvider, error) {
	key, err := ParsePublicKeyFromPEM(pemData)
	if err != nil {
		return nil, err
	}
	return &StaticKeyProvider{key: key}, nil
}

// NewStaticKeyProviderFromKey creates a key provider from an already
// parsed public key.
func NewStaticKeyProviderFromKey(key crypto.PublicKey) *StaticKeyProvider {
	return &StaticKeyProvider{key: key}
}

// VerificationKey returns the configured key.
func (p *StaticKeyProvider) VerificationKey(_ context.Context, _, _ string) (crypto.PublicKey, error) {
	if p.key == nil {
		return nil, ErrKeyNotFound
	}
	return p.key, nil
}

// FileKeyProvider loads a verification key from a PEM file and can watch
// the file for changes, reloading the key when the file is rewritten.
type FileKeyProvider struct {
	path    string
	logger  observability.Logger
	mu      sync.RWMutex
	key     crypto.PublicKey
	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	stopped bool
}

// FileKeyProviderOption is a functional option for the file key provider.
type FileKeyProviderOption func(*FileKeyProvider)

// WithFileKeyLogger sets the logger for the file key provider.
func WithFileKeyLogger(logger observability.Logger) FileKeyProviderOption {
	return func(p *FileKeyProvider) {
		p.logger = logger
	}
}

// NewFileKeyProvider creates a key provider backed by a PEM file. The key
// is loaded eagerly; call Watch to pick up file changes at runtime.
func NewFileKeyProvider(path string, opts ...FileKeyProviderOption) (*FileKeyProvider, error) {
	p := &FileKeyProvider{
		path:   path,
		logger: observability.NopLogger(),
		stopCh: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(p)
	}

	if err := p.reload(); err != nil {
		return nil, err
	}

	return p, nil
}

// VerificationKey returns the current key.
func (p *FileKeyProvider) VerificationKey(_ context.Context, _, _ string) (crypto.PublicKey, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.key == nil {
		return nil, ErrKeyNotFound
	}
	return p.key, nil
}

// reload reads and parses the key file.
func (p *FileKeyProvider) reload() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return NewKeyError("", "failed to read key file", err)
	}

	key, err := ParsePublicKeyFromPEM(data)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.key = key
	p.mu.Unlock()

	return nil
}

// Watch starts watching the key file for changes. A failed reload keeps
// the previously loaded key.
func (p *FileKeyProvider) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	// Watch the directory: editors and secret mounts replace the file,
	// which would drop a watch on the file itself.
	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch key file directory: %w", err)
	}

	p.mu.Lock()
	p.watcher = watcher
	p.mu.Unlock()

	go func() {
		defer func() {
			_ = watcher.Close()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(p.path) {
					continue
				}
				if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
					continue
				}
				if err := p.reload(); err != nil {
					p.logger.Warn("failed to reload verification key, keeping previous key",
						observability.String("path", p.path),
						observability.Error(err),
					)
					continue
				}
				p.logger.Info("verification key reloaded",
					observability.String("path", p.path),
				)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				p.logger.Warn("key file watcher error", observability.Error(err))
			}
		}
	}()

	return nil
}

// Stop stops the file watcher.
func (p *FileKeyProvider) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.stopped {
		close(p.stopCh)
		p.stopped = true
	}
}

// JSONWebKeySet represents a JSON Web Key Set.
type JSONWebKeySet struct {
	Keys []JSONWebKey `json:"keys"`
}

// JSONWebKey represents a single JSON Web Key.
type JSONWebKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid,omitempty"`
	Alg string `json:"alg,omitempty"`
	Use string `json:"use,omitempty"`

	// RSA components
	N string `json:"n,omitempty"`
	E string `json:"e,omitempty"`

	// EC components
	Crv string `json:"crv,omitempty"`
	X   string `json:"x,omitempty"`
	Y   string `json:"y,omitempty"`
}

// PublicKey converts the JWK to a crypto.PublicKey.
func (k *JSONWebKey) PublicKey() (crypto.PublicKey, error) {
	switch k.Kty {
	case "RSA":
		return k.rsaPublicKey()
	case "EC":
		return k.ecdsaPublicKey()
	case "OKP":
		return k.ed25519PublicKey()
	default:
		return nil, NewKeyError(k.Kid, fmt.Sprintf("unsupported key type: %s", k.Kty), ErrInvalidKey)
	}
}

// rsaPublicKey builds an *rsa.PublicKey from the modulus and exponent.
func (k *JSONWebKey) rsaPublicKey() (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, NewKeyError(k.Kid, "failed to decode modulus", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, NewKeyError(k.Kid, "failed to decode exponent", err)
	}

	e := 0
	for _, b := range eBytes {
		e = e<<8 + int(b)
	}

	return &rsa.PublicKey{
		N: new(big.Int).SetBytes(nBytes),
		E: e,
	}, nil
}

// ecdsaPublicKey builds an *ecdsa.PublicKey from the curve coordinates.
func (k *JSONWebKey) ecdsaPublicKey() (*ecdsa.PublicKey, error) {
	var curve elliptic.Curve
	switch k.Crv {
	case "P-256":
		curve = elliptic.P256()
	case "P-384":
		curve = elliptic.P384()
	case "P-521":
		curve = elliptic.P521()
	default:
		return nil, NewKeyError(k.Kid, fmt.Sprintf("unsupported curve: %s", k.Crv), ErrInvalidKey)
	}

	xBytes, err := base64.RawURLEncoding.DecodeString(k.X)
	if err != nil {
		return nil, NewKeyError(k.Kid, "failed to decode x coordinate", err)
	}
	yBytes, err := base64.RawURLEncoding.DecodeString(k.Y)
	if err != nil {
		return nil, NewKeyError(k.Kid, "failed to decode y coordinate", err)
	}

	return &ecdsa.PublicKey{
		Curve: curve,
		X:     new(big.Int).SetBytes(xBytes),
		Y:     new(big.Int).SetBytes(yBytes),
	}, nil
}

// ed25519PublicKey builds an ed25519.PublicKey from the x coordinate.
func (k *JSONWebKey) ed25519PublicKey() (ed25519.PublicKey, error) {
	if k.Crv != "Ed25519" {
		return nil, NewKeyError(k.Kid, fmt.Sprintf("unsupported curve: %s", k.Crv), ErrInvalidKey)
	}
	xBytes, err := base64.RawURLEncoding.DecodeString(k.X)
	if err != nil {
		return nil, NewKeyError(k.Kid, "failed to decode public key", err)
	}
	if len(xBytes) != ed25519.PublicKeySize {
		return nil, NewKeyError(k.Kid, "invalid Ed25519 key length", ErrInvalidKey)
	}
	return ed25519.PublicKey(xBytes), nil
}

// JWKSProvider fetches verification keys from a remote JWKS endpoint and
// caches them with a TTL. Stale keys are served when a refresh fails.
type JWKSProvider struct {
	url        string
	ttl        time.Duration
	httpClient *http.Client
	logger     observability.Logger
	metrics    *Metrics

	mu        sync.RWMutex
	keys      *JSONWebKeySet
	lastFetch time.Time

	stopCh  chan struct{}
	stopped bool
	stopMu  sync.Mutex
}

// JWKSProviderOption is a functional option for the JWKS provider.
type JWKSProviderOption func(*JWKSProvider)

// WithJWKSCacheTTL sets the cache TTL.
func WithJWKSCacheTTL(ttl time.Duration) JWKSProviderOption {
	return func(p *JWKSProvider) {
		if ttl > 0 {
			p.ttl = ttl
		}
	}
}

// WithJWKSHTTPClient sets the HTTP client used for fetching.
func WithJWKSHTTPClient(client *http.Client) JWKSProviderOption {
	return func(p *JWKSProvider) {
		if client != nil {
			p.httpClient = client
		}
	}
}

// WithJWKSLogger sets the logger for the JWKS provider.
func WithJWKSLogger(logger observability.Logger) JWKSProviderOption {
	return func(p *JWKSProvider) {
		p.logger = logger
	}
}

// WithJWKSMetrics sets the metrics for the JWKS provider.
func WithJWKSMetrics(metrics *Metrics) JWKSProviderOption {
	return func(p *JWKSProvider) {
		p.metrics = metrics
	}
}

// NewJWKSProvider creates a JWKS-backed key provider.
func NewJWKSProvider(url string, opts ...JWKSProviderOption) (*JWKSProvider, error) {
	if url == "" {
		return nil, errors.New("JWKS URL is required")
	}

	p := &JWKSProvider{
		url: url,
		ttl: time.Hour,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: observability.NopLogger(),
		stopCh: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(p)
	}

	if p.metrics == nil {
		p.metrics = NewMetrics("avauthmw")
	}

	return p, nil
}

// VerificationKey returns the public key for the given key ID.
func (p *JWKSProvider) VerificationKey(ctx context.Context, kid, _ string) (crypto.PublicKey, error) {
	jwk, err := p.lookup(ctx, kid)
	if err != nil {
		return nil, err
	}
	return jwk.PublicKey()
}

// lookup finds the JWK for a key ID, refreshing the cache when stale.
func (p *JWKSProvider) lookup(ctx context.Context, kid string) (*JSONWebKey, error) {
	p.mu.RLock()
	keys := p.keys
	lastFetch := p.lastFetch
	p.mu.RUnlock()

	if keys == nil || time.Since(lastFetch) > p.ttl {
		if err := p.Refresh(ctx); err != nil {
			if keys == nil {
				return nil, NewKeyError(kid, "no JWKS available", err)
			}
			p.logger.Warn("failed to refresh JWKS, using cached keys",
				observability.Error(err),
				observability.Time("last_fetch", lastFetch),
			)
		}

		p.mu.RLock()
		keys = p.keys
		p.mu.RUnlock()
	}

	if keys == nil {
		return nil, NewKeyError(kid, "no JWKS available", ErrKeyNotFound)
	}

	for i := range keys.Keys {
		if keys.Keys[i].Kid == kid {
			return &keys.Keys[i], nil
		}
	}

	// A token without a kid matches a single-key JWKS.
	if kid == "" && len(keys.Keys) > 0 {
		return &keys.Keys[0], nil
	}

	return nil, NewKeyError(kid, "key not found", ErrKeyNotFound)
}

// Refresh fetches the JWKS from the remote endpoint.
func (p *JWKSProvider) Refresh(ctx context.Context) error {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, http.NoBody)
	if err != nil {
		p.metrics.RecordJWKSRefresh("error", time.Since(start))
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.metrics.RecordJWKSRefresh("error", time.Since(start))
		return NewKeyError("", "failed to fetch JWKS", ErrJWKSFetchFailed)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		p.metrics.RecordJWKSRefresh("error", time.Since(start))
		return NewKeyError("", fmt.Sprintf("JWKS endpoint returned status %d", resp.StatusCode), ErrJWKSFetchFailed)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		p.metrics.RecordJWKSRefresh("error", time.Since(start))
		return fmt.Errorf("failed to read JWKS response: %w", err)
	}

	var jwks JSONWebKeySet
	if err := json.Unmarshal(body, &jwks); err != nil {
		p.metrics.RecordJWKSRefresh("error", time.Since(start))
		return fmt.Errorf("failed to parse JWKS: %w", err)
	}

	p.mu.Lock()
	p.keys = &jwks
	p.lastFetch = time.Now()
	p.mu.Unlock()

	p.metrics.RecordJWKSRefresh("success", time.Since(start))
	p.logger.Info("JWKS refreshed",
		observability.String("url", p.url),
		observability.Int("key_count", len(jwks.Keys)),
	)

	return nil
}

// StartAutoRefresh refreshes the JWKS in the background at the given
// interval until the context is canceled or Stop is called.
func (p *JWKSProvider) StartAutoRefresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = p.ttl / 2
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		if err := p.Refresh(ctx); err != nil {
			p.logger.Error("initial JWKS fetch failed", observability.Error(err))
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			case <-ticker.C:
				if err := p.Refresh(ctx); err != nil {
					p.logger.Error("JWKS refresh failed", observability.Error(err))
				}
			}
		}
	}()
}

// Stop stops the background refresh goroutine.
func (p *JWKSProvider) Stop() {
	p.stopMu.Lock()
	defer p.stopMu.Unlock()
	if !p.stopped {
		close(p.stopCh)
		p.stopped = true
	}
}

// LastFetch returns the time of the last successful fetch.
func (p *JWKSProvider) LastFetch() time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastFetch
}

// Ensure providers implement KeyProvider.
var (
	_ KeyProvider = (*StaticKeyProvider)(nil)
	_ KeyProvider = (*FileKeyProvider)(nil)
	_ KeyProvider = (*JWKSProvider)(nil)
)
