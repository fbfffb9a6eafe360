package intent

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

// stopCodeLength is the plaintext length in hex characters.
const stopCodeLength = 8

// generateStopCode mints the one-time secret that lets an anonymous
// payer stop their own session: 8 uppercase hex characters from a
// cryptographic source. Only the hash ever touches the database.
func generateStopCode() (plaintext, hash string, err error) {
	buf := make([]byte, stopCodeLength/2)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate stop code: %w", err)
	}
	plaintext = strings.ToUpper(hex.EncodeToString(buf))
	return plaintext, hashStopCode(plaintext), nil
}

func hashStopCode(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// matchStopCode compares a candidate code against a stored hash in
// constant time.
func matchStopCode(candidate, storedHash string) bool {
	candidateHash := hashStopCode(strings.ToUpper(strings.TrimSpace(candidate)))
	return subtle.ConstantTimeCompare([]byte(candidateHash), []byte(storedHash)) == 1
}
