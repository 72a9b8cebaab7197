package services

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// maxPasswordBytes is bcrypt's input limit.
const maxPasswordBytes = 72

// PasswordVault hashes and verifies passwords with bcrypt. It is the only
// component that sees plaintext passwords.
type PasswordVault struct {
	cost      int
	dummyHash []byte
}

// NewPasswordVault returns a vault using the given bcrypt work factor.
// Non-positive costs select bcrypt.DefaultCost; others are clamped to
// bcrypt's supported range.
func NewPasswordVault(cost int) (*PasswordVault, error) {
	switch {
	case cost <= 0:
		cost = bcrypt.DefaultCost
	case cost < bcrypt.MinCost:
		cost = bcrypt.MinCost
	case cost > bcrypt.MaxCost:
		cost = bcrypt.MaxCost
	}

	dummy, err := bcrypt.GenerateFromPassword([]byte("messagely-dummy-password"), cost)
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}

	return &PasswordVault{cost: cost, dummyHash: dummy}, nil
}

// Cost returns the effective work factor.
func (v *PasswordVault) Cost() int {
	return v.cost
}

// Hash returns a salted bcrypt hash of plaintext. Two calls with the same
// input return different hashes.
func (v *PasswordVault) Hash(plaintext string) (string, error) {
	if len(plaintext) > maxPasswordBytes {
		return "", fmt.Errorf("%w: password longer than %d bytes", ErrValidation, maxPasswordBytes)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), v.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Verify reports whether plaintext matches hash. A missing or malformed hash
// is an ErrCredential error rather than a plain mismatch.
func (v *PasswordVault) Verify(plaintext, hash string) (bool, error) {
	if hash == "" {
		return false, fmt.Errorf("%w: missing password hash", ErrCredential)
	}

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrCredential, err)
	}
}

// BurnVerify spends the same effort as Verify against a hash that never
// matches. Used when the account does not exist.
func (v *PasswordVault) BurnVerify(plaintext string) {
	_ = bcrypt.CompareHashAndPassword(v.dummyHash, []byte(plaintext))
}
