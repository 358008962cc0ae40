// Package reference generates the externally shown reference numbers of
// transactions, refunds and payouts: a prefix, a millisecond time component and a
// random suffix (ULID). Within one process references are strictly increasing.
package reference

import (
	"crypto/rand"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	PrefixTransaction = "TXN"
	PrefixRefund      = "RFD"
	PrefixPayout      = "PAY"
	PrefixBatch       = "BAT"
)

type Generator interface {
	New(prefix string) string
}

type ULIDGenerator struct {
	mu      sync.Mutex
	entropy io.Reader
	now     func() time.Time
}

func NewGenerator() *ULIDGenerator {
	return &ULIDGenerator{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

func (g *ULIDGenerator) New(prefix string) string {
	g.mu.Lock()
	id := ulid.MustNew(ulid.Timestamp(g.now()), g.entropy)
	g.mu.Unlock()
	return strings.ToUpper(strings.TrimSpace(prefix)) + "_" + id.String()
}

// Parse splits a reference into its prefix and the time it was issued.
func Parse(ref string) (string, time.Time, bool) {
	prefix, raw, ok := strings.Cut(ref, "_")
	if !ok {
		return "", time.Time{}, false
	}
	id, err := ulid.ParseStrict(raw)
	if err != nil {
		return "", time.Time{}, false
	}
	return prefix, ulid.Time(id.Time()), true
}
