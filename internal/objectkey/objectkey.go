// Package objectkey generates the date-partitioned object names under which
// images are stored:
//
//	YYYY/MM/<token>.<ext>
//
// The year and month come from the local calendar; the token is a short
// URL-safe random identifier.
package objectkey

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Generator produces object keys. The zero value is ready to use and reads
// the system clock and a random UUID source.
type Generator struct {
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// Token returns a fresh random token. Defaults to NewToken.
	Token func() string
}

// Generate returns a new key for an object with the given file extension.
// A leading dot on ext is ignored.
func (g Generator) Generate(ext string) string {
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}
	token := NewToken
	if g.Token != nil {
		token = g.Token
	}

	t := now().Local()
	return fmt.Sprintf("%04d/%02d/%s.%s", t.Year(), int(t.Month()), token(), strings.TrimPrefix(ext, "."))
}

// NewToken returns 22 URL-safe characters encoding the 16 bytes of a random
// (version 4) UUID.
func NewToken() string {
	id := uuid.New()
	return base64.RawURLEncoding.EncodeToString(id[:])
}
