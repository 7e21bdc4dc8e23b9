package utils

import (
	"crypto/rand"
	"encoding/hex"
)

// QuestionSeed returns 8 random bytes hex-encoded, shared by both sides of a pair.
func QuestionSeed() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
