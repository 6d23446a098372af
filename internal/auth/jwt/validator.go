package jwt

import (
	"bytes"
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/vyrodovalexey/avauthmw/internal/observability"
)

// Validator verifies signed tokens and yields their claim sets.
type Validator interface {
	// Parse verifies the token's structure and signature and returns the
	// decoded claim set. Any structural or cryptographic failure is fatal;
	// there is no partial trust. Expiration is not checked here — callers
	// check it via ClaimSet.Expired so that an expired token can be
	// reported distinctly from an invalid one.
	Parse(ctx context.Context, token string) (*ClaimSet, error)
}

// validator implements the Validator interface.
type validator struct {
	keys       KeyProvider
	algorithms []string
	logger     observability.Logger
	metrics    *Metrics
}

// ValidatorOption is a functional option for the validator.
type ValidatorOption func(*validator)

// WithValidatorLogger sets the logger for the validator.
func WithValidatorLogger(logger observability.Logger) ValidatorOption {
	return func(v *validator) {
		v.logger = logger
	}
}

// WithValidatorMetrics sets the metrics for the validator.
func WithValidatorMetrics(metrics *Metrics) ValidatorOption {
	return func(v *validator) {
		v.metrics = metrics
	}
}

// WithAlgorithms restricts the accepted signing algorithms. An empty list
// accepts every supported asymmetric algorithm.
func WithAlgorithms(algorithms ...string) ValidatorOption {
	return func(v *validator) {
		v.algorithms = algorithms
	}
}

// NewValidator creates a new token validator backed by the given key
// provider.
func NewValidator(keys KeyProvider, opts ...ValidatorOption) (Validator, error) {
	if keys == nil {
		return nil, fmt.Errorf("key provider is required")
	}

	v := &validator{
		keys:   keys,
		logger: observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(v)
	}

	for _, alg := range v.algorithms {
		if !isSupportedAlgorithm(alg) {
			return nil, fmt.Errorf("unsupported algorithm: %s", alg)
		}
	}

	if v.metrics == nil {
		v.metrics = NewMetrics("avauthmw")
	}

	return v, nil
}

// tokenHeader represents the token header segment.
type tokenHeader struct {
	Algorithm string `json:"alg"`
	Type      string `json:"typ"`
	KeyID     string `json:"kid"`
}

// Parse verifies the token and returns its claim set.
func (v *validator) Parse(ctx context.Context, token string) (*ClaimSet, error) {
	start := time.Now()

	if token == "" {
		v.metrics.RecordValidation("error", "empty_token", time.Since(start))
		return nil, ErrEmptyToken
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		v.metrics.RecordValidation("error", "malformed", time.Since(start))
		return nil, ErrTokenMalformed
	}

	header, err := v.decodeHeader(parts[0])
	if err != nil {
		v.metrics.RecordValidation("error", "invalid_header", time.Since(start))
		return nil, NewValidationError("failed to decode header", ErrTokenMalformed)
	}

	if err := v.validateAlgorithm(header.Algorithm); err != nil {
		v.metrics.RecordValidation("error", "invalid_algorithm", time.Since(start))
		return nil, err
	}

	payload, err := decodePayload(parts[1])
	if err != nil {
		v.metrics.RecordValidation("error", "invalid_payload", time.Since(start))
		return nil, NewValidationError("failed to decode payload", ErrTokenMalformed)
	}

	if err := v.verifySignature(ctx, header, parts[0]+"."+parts[1], parts[2]); err != nil {
		v.metrics.RecordValidation("error", "invalid_signature", time.Since(start))
		return nil, err
	}

	v.metrics.RecordValidation("success", header.Algorithm, time.Since(start))
	v.logger.Debug("token verified",
		observability.String("algorithm", header.Algorithm),
		observability.String("kid", header.KeyID),
	)

	return NewClaimSet(payload), nil
}

// decodeHeader decodes the token header segment.
func (v *validator) decodeHeader(encoded string) (*tokenHeader, error) {
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode header: %w", err)
	}

	var header tokenHeader
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	return &header, nil
}

// decodePayload decodes the token payload segment into a claim mapping.
// Numbers are kept as json.Number so integer claims survive undistorted.
func decodePayload(encoded string) (map[string]interface{}, error) {
	data, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var payload map[string]interface{}
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to parse payload: %w", err)
	}

	return payload, nil
}

// validateAlgorithm validates the signing algorithm against the allow-list.
func (v *validator) validateAlgorithm(alg string) error {
	if !isSupportedAlgorithm(alg) {
		return NewValidationError(fmt.Sprintf("unsupported algorithm: %s", alg), ErrUnsupportedAlgorithm)
	}

	if len(v.algorithms) == 0 {
		return nil
	}

	for _, allowed := range v.algorithms {
		if alg == allowed {
			return nil
		}
	}

	return NewValidationError(fmt.Sprintf("algorithm %s is not allowed", alg), ErrUnsupportedAlgorithm)
}

// verifySignature verifies the token signature.
func (v *validator) verifySignature(ctx context.Context, header *tokenHeader, signingInput, signature string) error {
	sigBytes, err := base64.RawURLEncoding.DecodeString(signature)
	if err != nil {
		return NewValidationError("failed to decode signature", ErrTokenMalformed)
	}

	key, err := v.keys.VerificationKey(ctx, header.KeyID, header.Algorithm)
	if err != nil {
		return NewValidationError("failed to get verification key", err)
	}

	switch header.Algorithm {
	case AlgRS256:
		return verifyRSA(key, signingInput, sigBytes, crypto.SHA256)
	case AlgRS384:
		return verifyRSA(key, signingInput, sigBytes, crypto.SHA384)
	case AlgRS512:
		return verifyRSA(key, signingInput, sigBytes, crypto.SHA512)
	case AlgPS256:
		return verifyRSAPSS(key, signingInput, sigBytes, crypto.SHA256)
	case AlgPS384:
		return verifyRSAPSS(key, signingInput, sigBytes, crypto.SHA384)
	case AlgPS512:
		return verifyRSAPSS(key, signingInput, sigBytes, crypto.SHA512)
	case AlgES256:
		return verifyECDSA(key, signingInput, sigBytes, crypto.SHA256)
	case AlgES384:
		return verifyECDSA(key, signingInput, sigBytes, crypto.SHA384)
	case AlgES512:
		return verifyECDSA(key, signingInput, sigBytes, crypto.SHA512)
	case AlgEdDSA:
		return verifyEdDSA(key, signingInput, sigBytes)
	default:
		return NewValidationError(fmt.Sprintf("unsupported algorithm: %s", header.Algorithm), ErrUnsupportedAlgorithm)
	}
}

// verifyRSA verifies an RSA PKCS#1 v1.5 signature.
func verifyRSA(key crypto.PublicKey, signingInput string, signature []byte, hashAlg crypto.Hash) error {
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return NewValidationError("key is not an RSA public key", ErrInvalidKey)
	}

	h := hashAlg.New()
	h.Write([]byte(signingInput))
	hashed := h.Sum(nil)

	if err := rsa.VerifyPKCS1v15(rsaKey, hashAlg, hashed, signature); err != nil {
		return NewValidationError("RSA signature verification failed", ErrTokenInvalidSignature)
	}

	return nil
}

// verifyRSAPSS verifies an RSA-PSS signature.
func verifyRSAPSS(key crypto.PublicKey, signingInput string, signature []byte, hashAlg crypto.Hash) error {
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return NewValidationError("key is not an RSA public key", ErrInvalidKey)
	}

	h := hashAlg.New()
	h.Write([]byte(signingInput))
	hashed := h.Sum(nil)

	opts := &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
		Hash:       hashAlg,
	}

	if err := rsa.VerifyPSS(rsaKey, hashAlg, hashed, signature, opts); err != nil {
		return NewValidationError("RSA-PSS signature verification failed", ErrTokenInvalidSignature)
	}

	return nil
}

// verifyECDSA verifies an ECDSA signature. Signatures are the raw r || s
// concatenation, each padded to the curve byte size.
func verifyECDSA(key crypto.PublicKey, signingInput string, signature []byte, hashAlg crypto.Hash) error {
	ecdsaKey, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return NewValidationError("key is not an ECDSA public key", ErrInvalidKey)
	}

	keySize := (ecdsaKey.Curve.Params().BitSize + 7) / 8
	if len(signature) != 2*keySize {
		return NewValidationError("invalid ECDSA signature length", ErrTokenInvalidSignature)
	}

	r := new(big.Int).SetBytes(signature[:keySize])
	s := new(big.Int).SetBytes(signature[keySize:])

	h := hashAlg.New()
	h.Write([]byte(signingInput))
	hashed := h.Sum(nil)

	if !ecdsa.Verify(ecdsaKey, hashed, r, s) {
		return NewValidationError("ECDSA signature verification failed", ErrTokenInvalidSignature)
	}

	return nil
}

// verifyEdDSA verifies an Ed25519 signature.
func verifyEdDSA(key crypto.PublicKey, signingInput string, signature []byte) error {
	edKey, ok := key.(ed25519.PublicKey)
	if !ok {
		return NewValidationError("key is not an Ed25519 public key", ErrInvalidKey)
	}

	if !ed25519.Verify(edKey, []byte(signingInput), signature) {
		return NewValidationError("Ed25519 signature verification failed", ErrTokenInvalidSignature)
	}

	return nil
}

// SupportedAlgorithm reports whether the algorithm is one of the
// supported asymmetric signing algorithms.
func SupportedAlgorithm(alg string) bool {
	return isSupportedAlgorithm(alg)
}

// isSupportedAlgorithm checks if an algorithm is supported.
func isSupportedAlgorithm(alg string) bool {
	switch alg {
	case AlgRS256, AlgRS384, AlgRS512,
		AlgPS256, AlgPS384, AlgPS512,
		AlgES256, AlgES384, AlgES512,
		AlgEdDSA:
		return true
	default:
		return false
	}
}

// Ensure validator implements Validator.
var _ Validator = (*validator)(nil)
