package validator

import (
	"errors"
	"regexp"
)

var (
	ErrInvalidEmail      = errors.New("invalid email")
	ErrInvalidUsername   = errors.New("invalid username")
	ErrInvalidPassword   = errors.New("invalid password")
	ErrInvalidClaimCode  = errors.New("invalid claim code")
	ErrInvalidPercentage = errors.New("percentage must be between 1 and 100")
)

var (
	emailRegex     = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	usernameRegex  = regexp.MustCompile(`^[a-zA-Z0-9_]{3,30}$`)
	claimCodeRegex = regexp.MustCompile(`^[A-Z0-9][A-Z0-9_-]{3,31}$`)
)

func ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return ErrInvalidEmail
	}
	return nil
}

func ValidateUsername(username string) error {
	if !usernameRegex.MatchString(username) {
		return ErrInvalidUsername
	}
	return nil
}

func ValidatePassword(password string) error {
	if len(password) < 8 {
		return ErrInvalidPassword
	}
	return nil
}

func ValidateClaimCode(code string) error {
	if !claimCodeRegex.MatchString(code) {
		return ErrInvalidClaimCode
	}
	return nil
}

func ValidatePercentage(percentage int) error {
	if percentage < 1 || percentage > 100 {
		return ErrInvalidPercentage
	}
	return nil
}
