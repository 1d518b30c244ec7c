package sechat

import (
	"crypto/rand"
	"io"
	mrand "math/rand/v2"

	"github.com/google/uuid"
)

// KeyGenerator creates idempotency keys (UUID v4). One key is generated per
// logical send and reused for every retry of that send.
type KeyGenerator struct {
	// Rand is the entropy source; nil means crypto/rand.
	Rand io.Reader
}

// New returns a fresh lowercase UUID v4. When the entropy source fails it
// falls back to math/rand with the version and variant bits forced.
func (g KeyGenerator) New() string {
	r := g.Rand
	if r == nil {
		r = rand.Reader
	}
	if id, err := uuid.NewRandomFromReader(r); err == nil {
		return id.String()
	}

	var b uuid.UUID
	for i := range b {
		b[i] = byte(mrand.IntN(256))
	}
	b[6] = (b[6] & 0x0f) | 0x40 // version 4
	b[8] = (b[8] & 0x3f) | 0x80 // RFC 4122 variant
	return b.String()
}

// NewClientMessageID returns a key from the default generator.
func NewClientMessageID() string {
	return KeyGenerator{}.New()
}
