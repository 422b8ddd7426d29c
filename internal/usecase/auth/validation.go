package auth

import (
	"errors"
	"strings"

	domain "bandsched/backend/internal/domain/auth"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/nyaruka/phonenumbers"
)

const (
	minPasswordLength = 8
	maxPasswordBytes  = 72
)

// DefaultPhoneRegion is used to parse phone numbers given without a country
// prefix.
const DefaultPhoneRegion = "US"

// Validator checks request shapes before any storage access. Every field is
// checked and all violations are reported together.
type Validator struct {
	phoneRegion string
}

// NewValidator returns a Validator that parses local phone numbers in region.
func NewValidator(region string) *Validator {
	region = strings.ToUpper(strings.TrimSpace(region))
	if region == "" {
		region = DefaultPhoneRegion
	}
	return &Validator{phoneRegion: region}
}

// RegisterInput is a normalised, validated registration.
type RegisterInput struct {
	Email       string
	Password    string
	FirstName   string
	LastName    string
	PhoneNumber *string
}

// LoginInput is a normalised, validated login.
type LoginInput struct {
	Email    string
	Password string
}

// Register validates raw registration input. On success the phone number, if
// any, is normalised to E.164.
func (v *Validator) Register(in domain.Registration) (RegisterInput, error) {
	out := RegisterInput{
		Email:     strings.TrimSpace(in.Email),
		Password:  in.Password,
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
	}
	phone := ""
	if in.PhoneNumber != nil {
		phone = strings.TrimSpace(*in.PhoneNumber)
	}

	err := validation.Errors{
		"email": validation.Validate(out.Email,
			validation.Required.Error("Invalid email address"),
			is.EmailFormat.Error("Invalid email address"),
		),
		"password": validation.Validate(out.Password,
			validation.Required.Error("Password must be at least 8 characters"),
			validation.Length(minPasswordLength, 0).Error("Password must be at least 8 characters"),
			validation.By(maxBytes),
		),
		"firstName": validation.Validate(out.FirstName,
			validation.Required.Error("First name is required"),
		),
		"lastName": validation.Validate(out.LastName,
			validation.Required.Error("Last name is required"),
		),
		"phoneNumber": validation.Validate(phone, validation.By(v.phone)),
	}.Filter()
	if err != nil {
		return RegisterInput{}, toValidationError(err, "email", "password", "firstName", "lastName", "phoneNumber")
	}

	if phone != "" {
		normalised := v.formatPhone(phone)
		out.PhoneNumber = &normalised
	}
	return out, nil
}

// Login validates raw login input.
func (v *Validator) Login(in domain.Credentials) (LoginInput, error) {
	out := LoginInput{
		Email:    strings.TrimSpace(in.Email),
		Password: in.Password,
	}
	err := validation.Errors{
		"email": validation.Validate(out.Email,
			validation.Required.Error("Invalid email address"),
			is.EmailFormat.Error("Invalid email address"),
		),
		"password": validation.Validate(out.Password,
			validation.Required.Error("Password is required"),
		),
	}.Filter()
	if err != nil {
		return LoginInput{}, toValidationError(err, "email", "password")
	}
	return out, nil
}

func maxBytes(value interface{}) error {
	s, _ := value.(string)
	if len(s) > maxPasswordBytes {
		return errors.New("Password must be at most 72 bytes")
	}
	return nil
}

func (v *Validator) phone(value interface{}) error {
	s, _ := value.(string)
	if s == "" {
		return nil
	}
	num, err := phonenumbers.Parse(s, v.phoneRegion)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return errors.New("Invalid phone number")
	}
	return nil
}

func (v *Validator) formatPhone(s string) string {
	num, err := phonenumbers.Parse(s, v.phoneRegion)
	if err != nil {
		return s
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}

// toValidationError flattens ozzo's per-field map into a stable, ordered list.
func toValidationError(err error, order ...string) error {
	var fieldErrs validation.Errors
	if !errors.As(err, &fieldErrs) {
		return &domain.ValidationError{Fields: []domain.FieldError{{Field: "", Message: err.Error()}}}
	}
	out := &domain.ValidationError{}
	for _, field := range order {
		if ferr, ok := fieldErrs[field]; ok && ferr != nil {
			out.Fields = append(out.Fields, domain.FieldError{Field: field, Message: ferr.Error()})
		}
	}
	return out
}
