package common

import (
	"crypto/rand"

	"github.com/oklog/ulid/v2"
)

// NewULID returns a 26-char, lexicographically time-ordered id.
func NewULID() (string, error) {
	id, err := ulid.New(ulid.Now(), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// IsULID reports whether s parses as a ULID. Used to reject junk path params early.
func IsULID(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}
