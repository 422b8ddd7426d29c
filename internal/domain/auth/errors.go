package auth

import (
	"errors"
	"strings"
)

// Kind classifies a failure for callers that translate errors into
// responses.
type Kind string

const (
	KindValidation         Kind = "validation"
	KindConflict           Kind = "conflict"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindUnauthenticated    Kind = "unauthenticated"
	KindInvalidToken       Kind = "invalid_token"
	KindTokenExpired       Kind = "token_expired"
	KindNotFound           Kind = "not_found"
	KindInternal           Kind = "internal"
)

// Error is a classified auth failure. Message is safe to show to clients.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

var (
	// ErrInvalidCredentials is returned for an unknown email and for a wrong
	// password alike.
	ErrInvalidCredentials = &Error{Kind: KindInvalidCredentials, Message: "Invalid credentials"}
	// ErrEmailExists signals a duplicate email registration.
	ErrEmailExists = &Error{Kind: KindConflict, Message: "User already exists"}
	// ErrUserNotFound indicates a missing credential record.
	ErrUserNotFound = &Error{Kind: KindNotFound, Message: "User not found"}
	// ErrUnauthenticated means no usable bearer credential was presented.
	ErrUnauthenticated = &Error{Kind: KindUnauthenticated, Message: "Authentication required. No token provided."}
	// ErrSubjectNotFound means the token was valid but its subject no longer exists.
	ErrSubjectNotFound = &Error{Kind: KindUnauthenticated, Message: "User not found"}
	// ErrTokenInvalid means the token failed signature or format checks.
	ErrTokenInvalid = &Error{Kind: KindInvalidToken, Message: "Invalid token"}
	// ErrTokenExpired means the token was authentic but past its expiry.
	ErrTokenExpired = &Error{Kind: KindTokenExpired, Message: "Token expired"}
)

// FieldError describes a single invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries every field violation found in one input.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if e == nil || len(e.Fields) == 0 {
		return "Validation error"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "Validation error: " + strings.Join(parts, "; ")
}

// KindOf classifies err. Anything not produced by this package is internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var verr *ValidationError
	if errors.As(err, &verr) {
		return KindValidation
	}
	var aerr *Error
	if errors.As(err, &aerr) {
		return aerr.Kind
	}
	return KindInternal
}

// MessageOf returns the client-facing message for a classified error, or an
// empty string for internal ones.
func MessageOf(err error) string {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return "Validation error"
	}
	var aerr *Error
	if errors.As(err, &aerr) {
		return aerr.Message
	}
	return ""
}
