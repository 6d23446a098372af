package auth

import (
	"github.com/vyrodovalexey/avauthmw/internal/auth/jwt"
)

// Claim names of the fixed claim contract between token issuer and this
// gate.
const (
	ClaimExpiresAt   = "exp"
	ClaimID          = "id"
	ClaimEmail       = "email"
	ClaimPhoneNumber = "phoneNumber"
	ClaimAuthorities = "authorities"
	ClaimUsername    = "username"
)

// BuildPrincipal assembles a Principal from a verified claim set. All
// five contract claims are required: a missing claim yields a
// *MissingClaimError and a mistyped claim propagates the jwt package's
// *ClaimTypeError unchanged. A Principal with a zero-valued identity
// field is never produced.
func BuildPrincipal(claims *jwt.ClaimSet) (*Principal, error) {
	id, ok, err := claims.Int64Claim(ClaimID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, newMissingClaimError(ClaimID)
	}

	email, ok, err := claims.StringClaim(ClaimEmail)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, newMissingClaimError(ClaimEmail)
	}

	phoneNumber, ok, err := claims.StringClaim(ClaimPhoneNumber)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, newMissingClaimError(ClaimPhoneNumber)
	}

	authorities, err := claims.StringListClaim(ClaimAuthorities)
	if err != nil {
		return nil, err
	}
	if authorities == nil {
		return nil, newMissingClaimError(ClaimAuthorities)
	}

	username, ok, err := claims.StringClaim(ClaimUsername)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, newMissingClaimError(ClaimUsername)
	}

	return &Principal{
		ID:          id,
		Email:       email,
		PhoneNumber: phoneNumber,
		Authorities: authorities,
		Username:    username,
	}, nil
}
