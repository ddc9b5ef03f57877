package idgen

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
)

// GenerateSecureID returns prefix_ followed by length random URL-safe
// base64 characters.
func GenerateSecureID(prefix string, length int) (string, error) {
	buf := make([]byte, base64.RawURLEncoding.DecodedLen(length)+1)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	encoded := base64.RawURLEncoding.EncodeToString(buf)
	return prefix + "_" + encoded[:min(length, len(encoded))], nil
}

// ValidateIDFormat reports whether id is expectedPrefix_ followed by at
// least one URL-safe base64 character.
func ValidateIDFormat(id, expectedPrefix string) bool {
	suffix, ok := strings.CutPrefix(id, expectedPrefix+"_")
	if !ok || suffix == "" {
		return false
	}
	return !strings.ContainsFunc(suffix, func(r rune) bool {
		return !isURLSafe(r)
	})
}

func isURLSafe(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '-' || r == '_'
}
