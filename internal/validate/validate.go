// Package validate provides input validation for identifiers and URLs
// crossing the API boundary.
package validate

import (
	"errors"
	"fmt"
	"regexp"
	"unicode/utf8"
)

// Validation errors.
var (
	ErrEmpty             = errors.New("value is empty")
	ErrTooLong           = errors.New("value is too long")
	ErrInvalidCharacters = errors.New("value contains invalid characters")
)

// maxIDLength bounds identifiers accepted from clients.
const maxIDLength = 64

// idPattern matches the identifiers this service issues: UUIDs and
// slug-style catalog IDs.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9_\-]+$`)

// ItemID validates a client-supplied catalog item identifier.
func ItemID(id string) (string, error) {
	if id == "" {
		return "", ErrEmpty
	}
	if utf8.RuneCountInString(id) > maxIDLength {
		return "", fmt.Errorf("%w: maximum is %d characters", ErrTooLong, maxIDLength)
	}
	if !idPattern.MatchString(id) {
		return "", ErrInvalidCharacters
	}
	return id, nil
}
