package account

import (
	"errors"
	"fmt"
)

// ID names a principal: the registry owner, a caller, or the account whose
// hashes are stored. IDs compare by exact string equality.
type ID string

const (
	MinLength = 2
	MaxLength = 64
)

// ErrInvalidID is wrapped by Validate failures.
var ErrInvalidID = errors.New("invalid account id")

// String implements fmt.Stringer.
func (id ID) String() string { return string(id) }

// Parse validates raw and returns it as an ID.
func Parse(raw string) (ID, error) {
	id := ID(raw)
	if err := id.Validate(); err != nil {
		return "", err
	}
	return id, nil
}

// Validate checks the named-account format: lowercase alphanumeric parts
// joined by single '-', '_' or '.' separators, 2 to 64 bytes long.
func (id ID) Validate() error {
	s := string(id)
	if len(s) < MinLength || len(s) > MaxLength {
		return fmt.Errorf("%w: length %d outside %d..%d", ErrInvalidID, len(s), MinLength, MaxLength)
	}

	prevSeparator := true // forbids a leading separator
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9':
			prevSeparator = false
		case c == '-' || c == '_' || c == '.':
			if prevSeparator {
				return fmt.Errorf("%w: misplaced separator at %d", ErrInvalidID, i)
			}
			prevSeparator = true
		default:
			return fmt.Errorf("%w: character %q at %d", ErrInvalidID, c, i)
		}
	}
	if prevSeparator {
		return fmt.Errorf("%w: trailing separator", ErrInvalidID)
	}
	return nil
}
