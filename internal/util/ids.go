package util

import (
	"encoding/base64"

	"github.com/google/uuid"
)

// ShortIDLength is the length of ids returned by ShortID
const ShortIDLength = 22

// ShortID returns a time ordered UUIDv7 as 22 URL safe characters
func ShortID() string {
	u, err := uuid.NewV7()
	if err != nil {
		u = uuid.New()
	}
	return base64.RawURLEncoding.EncodeToString(u[:])
}

// ParseShortID reverses ShortID
func ParseShortID(id string) (uuid.UUID, error) {
	b, err := base64.RawURLEncoding.DecodeString(id)
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.FromBytes(b)
}
