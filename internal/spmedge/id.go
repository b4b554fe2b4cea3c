package spmedge

import (
	"strings"

	"github.com/google/uuid"
)

// NewID returns a random document or batch identifier.
func NewID() string {
	return uuid.NewString()
}

// ShortID returns the dash-stripped form of id truncated to 12 characters.
// Stage artifact filenames embed this form.
func ShortID(id string) string {
	s := strings.ReplaceAll(id, "-", "")
	if len(s) > 12 {
		s = s[:12]
	}
	return s
}
