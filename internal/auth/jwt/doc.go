// Package jwt provides JSON Web Token verification and typed claim
// extraction for the authentication middleware.
//
// The package verifies compact serialized tokens (header.payload.signature)
// against an asymmetric public key supplied by a KeyProvider and exposes
// the verified payload as an immutable ClaimSet with strictly typed
// accessors. Signing is deliberately out of scope: verification keys are
// public keys and are never used to produce signatures.
//
// # Verification
//
//	keys, err := jwt.NewStaticKeyProvider(pemBytes)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	validator, err := jwt.NewValidator(keys)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	claims, err := validator.Parse(ctx, tokenString)
//	if err != nil {
//	    // Token is malformed or its signature does not verify.
//	}
//
// # Typed claims
//
// Claim shape is a trust boundary. Accessors return the claim value only
// when its runtime shape matches the requested type; a mismatch yields a
// *ClaimTypeError naming the claim, the expected type, and the actual
// type. Values are never coerced.
//
//	id, ok, err := claims.Int64Claim("id")
//	roles, err := claims.StringListClaim("authorities")
package jwt
