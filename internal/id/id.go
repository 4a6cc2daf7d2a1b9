// Package id generates record identifiers.
package id

import (
	"strconv"

	"github.com/google/uuid"
)

// New returns a time-ordered UUIDv7 string, so ids sort by creation time.
func New() (string, error) {
	u, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// Sequence returns a generator yielding prefix-1, prefix-2, ... Useful for
// deterministic fixtures.
func Sequence(prefix string) func() (string, error) {
	n := 0
	return func() (string, error) {
		n++
		return prefix + "-" + strconv.Itoa(n), nil
	}
}
