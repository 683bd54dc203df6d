package utils

import (
	"fmt"
	"unicode"
)

// MinAdminPasswordLength is the shortest admin password accepted by hash-password.
const MinAdminPasswordLength = 10

// CheckAdminPassword reports what an admin password is missing: a minimum length
// and at least one upper-case letter, lower-case letter, digit and symbol.
func CheckAdminPassword(password string) error {
	var hasUpper, hasLower, hasNumber, hasSpecial bool
	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsDigit(char):
			hasNumber = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char):
			hasSpecial = true
		}
	}

	switch {
	case len([]rune(password)) < MinAdminPasswordLength:
		return fmt.Errorf("password must be at least %d characters", MinAdminPasswordLength)
	case !hasUpper || !hasLower:
		return fmt.Errorf("password must mix upper- and lower-case letters")
	case !hasNumber:
		return fmt.Errorf("password must contain a digit")
	case !hasSpecial:
		return fmt.Errorf("password must contain a symbol")
	}
	return nil
}
