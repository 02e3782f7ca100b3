package utils

import (
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

// CheckBasicAuth authenticates the HTTP basic credentials of r
// against users, a map of user names to bcrypt hashes. It returns
// the authenticated user.
func CheckBasicAuth(r *http.Request, users map[string]string) (string, bool) {
	user, password, ok := r.BasicAuth()
	if !ok {
		return "", false
	}
	hash, found := users[user]
	if !found {
		return "", false
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return "", false
	}
	return user, true
}

// HashPassword returns the bcrypt hash stored in the users section of
// config.json.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(b), err
}
