// Package address validates Solana account identifiers.
package address

import (
	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"

	"onchain-analytics/internal/domain"
)

// PublicKeyLength is the decoded length of a Solana public key.
const PublicKeyLength = 32

// Base58 encodings of 32 bytes are 32 to 44 characters long.
const (
	minEncodedLength = 32
	maxEncodedLength = 44
)

// Decode decodes a base58 address into its 32 raw bytes.
func Decode(addr string) ([]byte, error) {
	if len(addr) < minEncodedLength || len(addr) > maxEncodedLength {
		return nil, &domain.ValidationError{Field: "address", Value: addr, Reason: "length out of range"}
	}
	raw, err := base58.Decode(addr)
	if err != nil {
		return nil, &domain.ValidationError{Field: "address", Value: addr, Reason: "not base58"}
	}
	if len(raw) != PublicKeyLength {
		return nil, &domain.ValidationError{Field: "address", Value: addr, Reason: "not 32 bytes"}
	}
	return raw, nil
}

// Validate returns a *domain.ValidationError naming field if addr is not a valid public key.
func Validate(field, addr string) error {
	if addr == "" {
		return &domain.ValidationError{Field: field, Value: addr, Reason: "empty"}
	}
	if _, err := Decode(addr); err != nil {
		verr := err.(*domain.ValidationError)
		verr.Field = field
		return verr
	}
	return nil
}

// IsOnCurve reports whether addr is a point on the ed25519 curve.
// Wallets controlled by a keypair are on-curve; program derived addresses are not.
// Undecodable addresses report false.
func IsOnCurve(addr string) bool {
	raw, err := Decode(addr)
	if err != nil {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(raw)
	return err == nil
}

// IsProgramDerived reports whether addr is a valid address that lies off the curve.
func IsProgramDerived(addr string) bool {
	raw, err := Decode(addr)
	if err != nil {
		return false
	}
	_, err = new(edwards25519.Point).SetBytes(raw)
	return err != nil
}
