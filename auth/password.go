package auth

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/andrewpaige1/flashd-api/rpc"
)

// bcrypt only reads the first 72 bytes and rejects longer input.
const maxPasswordBytes = 72

// checkPassword validates password length in characters and in bytes.
func checkPassword(v *rpc.Validator, password string, minLength int) {
	if utf8.RuneCountInString(password) > maxPasswordBytes {
		v.Check(false, "password", fmt.Sprintf("Must contain at most %d characters", maxPasswordBytes))
		return
	}
	v.Length(password, "password", minLength, maxPasswordBytes)
	v.Check(len(password) <= maxPasswordBytes, "password", fmt.Sprintf("Must be at most %d bytes", maxPasswordBytes))
}

// HashPassword hashes a plaintext password with bcrypt.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", rpc.Validation([]rpc.FieldError{{Field: "password", Message: fmt.Sprintf("Must be at most %d bytes", maxPasswordBytes)}})
	}
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// CheckPassword reports whether password matches hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
