package utils

import (
	"crypto/rand"
	"encoding/base64"
)

const shareIDBytes = 6

// GenShareID returns a short URL-safe random share id (8 characters).
func GenShareID() (string, error) {
	b := make([]byte, shareIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
