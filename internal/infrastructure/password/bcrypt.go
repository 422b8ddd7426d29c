package password

import (
	"github.com/samber/oops"
	"golang.org/x/crypto/bcrypt"
)

// DefaultCost keeps a single hash in the tens of milliseconds on current
// hardware.
const DefaultCost = 10

// maxPasswordBytes is the bcrypt input limit; longer inputs are rejected
// rather than silently truncated.
const maxPasswordBytes = 72

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")

// Bcrypt hashes and verifies passwords with a per-call random salt embedded in
// the digest.
type Bcrypt struct {
	cost int
}

// NewBcrypt returns a hasher using cost, or DefaultCost when cost is outside
// the range bcrypt accepts.
func NewBcrypt(cost int) *Bcrypt {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &Bcrypt{cost: cost}
}

// Cost reports the configured work factor.
func (b *Bcrypt) Cost() int { return b.cost }

// Hash produces a salted bcrypt digest of plaintext.
func (b *Bcrypt) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPassword
	}
	if len(plaintext) > maxPasswordBytes {
		return "", oops.Code("AUTH_PASSWORD_TOO_LONG").
			With("max_bytes", maxPasswordBytes).
			Errorf("password must be %d bytes or fewer", maxPasswordBytes)
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), b.cost)
	if err != nil {
		return "", oops.Code("AUTH_HASH_FAILED").Wrap(err)
	}
	return string(hashed), nil
}

// Verify reports whether plaintext matches digest. A malformed digest is a
// mismatch, never an error.
func (b *Bcrypt) Verify(plaintext, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}
