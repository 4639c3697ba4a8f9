package pin

import (
	"errors"
	"regexp"

	"golang.org/x/crypto/bcrypt"
)

const cost = 12 // bcrypt cost factor

var ErrInvalidFormat = errors.New("pin must be 4 to 6 digits")

var pinPattern = regexp.MustCompile(`^\d{4,6}$`)

// Hash hashes a wallet PIN using bcrypt
func Hash(pin string) (string, error) {
	if !pinPattern.MatchString(pin) {
		return "", ErrInvalidFormat
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(pin), cost)
	return string(bytes), err
}

// Verify compares a PIN with its stored hash
func Verify(pin, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin))
	return err == nil
}
