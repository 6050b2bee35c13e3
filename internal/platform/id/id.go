// Package id generates and checks opaque record identifiers.
//
// An identifier is a random UUIDv4 rendered as 26 lowercase base32
// characters without padding.
package id

import (
	"encoding/base32"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Length is the number of characters in a well-formed identifier.
const Length = 26

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewID returns a fresh identifier.
func NewID() (string, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return "", fmt.Errorf("generate uuid: %w", err)
	}
	return strings.ToLower(encoding.EncodeToString(u[:])), nil
}

// IsValid reports whether value is a well-formed identifier.
func IsValid(value string) bool {
	if len(value) != Length {
		return false
	}
	for i := 0; i < len(value); i++ {
		c := value[i]
		if (c < 'a' || c > 'z') && (c < '2' || c > '7') {
			return false
		}
	}
	decoded, err := encoding.DecodeString(strings.ToUpper(value))
	return err == nil && len(decoded) == 16
}
