package auth

// TokenManager abstracts token issuance and verification.
//
// Validate must verify the signature before trusting any claim and report
// failures as ErrTokenInvalid or ErrTokenExpired from the domain package.
type TokenManager interface {
	Generate(userID string) (string, error)
	Validate(token string) (string, error)
}

// PasswordHasher abstracts salted one-way password hashing.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, digest string) bool
}
