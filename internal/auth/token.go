// Package auth verifies the bearer tokens editors send with write requests.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidToken = errors.New("invalid token")

// Verifier checks tokens against a fixed set of bcrypt hashes. A verifier
// without hashes accepts every request.
type Verifier struct {
	hashes [][]byte
}

func NewVerifier(hashes []string) *Verifier {
	v := &Verifier{}
	for _, h := range hashes {
		h = strings.TrimSpace(h)
		if h == "" {
			continue
		}
		v.hashes = append(v.hashes, []byte(h))
	}
	return v
}

// Open reports whether no tokens are configured.
func (v *Verifier) Open() bool {
	return len(v.hashes) == 0
}

func (v *Verifier) Verify(token string) error {
	if v.Open() {
		return nil
	}
	if token == "" {
		return ErrInvalidToken
	}
	for _, hash := range v.hashes {
		if bcrypt.CompareHashAndPassword(hash, []byte(token)) == nil {
			return nil
		}
	}
	return ErrInvalidToken
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// HashToken produces the bcrypt hash stored in configuration.
func HashToken(token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", fmt.Errorf("hash token: %w", ErrInvalidToken)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash token: %w", err)
	}
	return string(hash), nil
}
