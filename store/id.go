package store

import (
	"github.com/google/uuid"

	apperrors "github.com/Skryldev/image-convert/errors"
)

// MaxIDLength is the longest identifier ValidateID accepts.
const MaxIDLength = 64

// NewID returns a random (version 4) UUID in its canonical 36-character
// form. The alphabet is URL-safe, so identifiers go into paths unescaped.
func NewID() string { return uuid.NewString() }

// ValidateID reports whether id has the shape of an identifier: 1 to
// MaxIDLength characters from [A-Za-z0-9_-]. A well-formed identifier may
// still be unknown to the store.
func ValidateID(id string) error {
	if len(id) == 0 || len(id) > MaxIDLength {
		return apperrors.New(apperrors.CategoryMalformedID, "store.validate_id", apperrors.ErrMalformedID)
	}
	for i := 0; i < len(id); i++ {
		c := id[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
		default:
			return apperrors.New(apperrors.CategoryMalformedID, "store.validate_id", apperrors.ErrMalformedID)
		}
	}
	return nil
}
