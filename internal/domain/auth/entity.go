package auth

import (
	"time"
)

// User models the credential record persisted in storage.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	PhoneNumber  *string
	CreatedAt    time.Time
}

// PublicUser is the identity view returned to callers. It never carries the
// password hash.
type PublicUser struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	FirstName   string    `json:"firstName"`
	LastName    string    `json:"lastName"`
	PhoneNumber *string   `json:"phoneNumber,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Public strips the credential material from u.
func (u *User) Public() *PublicUser {
	if u == nil {
		return nil
	}
	pub := &PublicUser{
		ID:        u.ID,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		CreatedAt: u.CreatedAt,
	}
	if u.PhoneNumber != nil {
		phone := *u.PhoneNumber
		pub.PhoneNumber = &phone
	}
	return pub
}

// Credentials captures raw credential input for login.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Registration captures raw input for account creation.
type Registration struct {
	Email       string  `json:"email"`
	Password    string  `json:"password"`
	FirstName   string  `json:"firstName"`
	LastName    string  `json:"lastName"`
	PhoneNumber *string `json:"phoneNumber,omitempty"`
}
