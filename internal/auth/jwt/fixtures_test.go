package jwt

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/require"
)

// segment encodes a JSON value as a base64url token segment.
func segment(t *testing.T, v interface{}) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return base64.RawURLEncoding.EncodeToString(data)
}

// signRS256 mints a token signed with the given RSA private key.
func signRS256(t *testing.T, key *rsa.PrivateKey, claims map[string]interface{}) string {
	t.Helper()
	return signRSToken(t, key, claims, map[string]interface{}{"alg": AlgRS256, "typ": "JWT"})
}

// signRS256WithKid mints an RS256 token carrying a kid header.
func signRS256WithKid(t *testing.T, key *rsa.PrivateKey, kid string, claims map[string]interface{}) string {
	t.Helper()
	return signRSToken(t, key, claims, map[string]interface{}{"alg": AlgRS256, "typ": "JWT", "kid": kid})
}

func signRSToken(t *testing.T, key *rsa.PrivateKey, claims map[string]interface{}, header map[string]interface{}) string {
	t.Helper()

	signingInput := segment(t, header) + "." + segment(t, claims)

	h := crypto.SHA256.New()
	h.Write([]byte(signingInput))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, h.Sum(nil))
	require.NoError(t, err)

	return signingInput + "." + base64.RawURLEncoding.EncodeToString(sig)
}

// signES256 mints a token signed with the given P-256 private key. The
// signature is the raw r || s concatenation, each padded to 32 bytes.
func signES256(t *testing.T, key *ecdsa.PrivateKey, claims map[string]interface{}) string {
	t.Helper()

	header := map[string]interface{}{"alg": AlgES256, "typ": "JWT"}
	signingInput := segment(t, header) + "." + segment(t, claims)

	h := crypto.SHA256.New()
	h.Write([]byte(signingInput))
	r, s, err := ecdsa.Sign(rand.Reader, key, h.Sum(nil))
	require.NoError(t, err)

	keySize := (key.Curve.Params().BitSize + 7) / 8
	sig := make([]byte, 2*keySize)
	r.FillBytes(sig[:keySize])
	s.FillBytes(sig[keySize:])

	return signingInput + "." + base64.RawURLEncoding.EncodeToString(sig)
}

// signEdDSA mints a token signed with the given Ed25519 private key.
func signEdDSA(t *testing.T, key ed25519.PrivateKey, claims map[string]interface{}) string {
	t.Helper()

	header := map[string]interface{}{"alg": AlgEdDSA, "typ": "JWT"}
	signingInput := segment(t, header) + "." + segment(t, claims)

	sig := ed25519.Sign(key, []byte(signingInput))
	return signingInput + "." + base64.RawURLEncoding.EncodeToString(sig)
}

// generateRSAKey generates a test RSA key pair.
func generateRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return key
}

// generateECDSAKey generates a test P-256 key pair.
func generateECDSAKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return key
}

// generateEd25519Key generates a test Ed25519 key pair.
func generateEd25519Key(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return pub, priv
}

// encodePublicKeyPEM encodes a public key in PKIX PEM form.
func encodePublicKeyPEM(t *testing.T, key crypto.PublicKey) []byte {
	t.Helper()
	der, err := x509.MarshalPKIXPublicKey(key)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
}
