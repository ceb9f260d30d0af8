// Package id generates the sortable identifiers used across the daemon.
//
// Every identifier is a ULID with a short type prefix (evt_*, trc_*, spn_*)
// so log lines stay readable and identifiers of different kinds never mix.
// ULIDs sort by creation time, which keeps audit rows and spans in order.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// EventID identifies one event drained by the serialization lane
type EventID string

// TraceID identifies a trace spanning one or more spans
type TraceID string

// SpanID identifies one span within a trace
type SpanID string

const (
	EventPrefix = "evt"
	TracePrefix = "trc"
	SpanPrefix  = "spn"
)

// Generator generates ULIDs with optional prefixes
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
	now     func() time.Time
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator backed by crypto/rand with monotonic
// entropy, so ids minted in the same millisecond still sort in order
func NewGenerator() *Generator {
	return &Generator{
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

// NewGeneratorWithEntropy creates a generator with a custom entropy source
// and clock. Useful for deterministic tests.
func NewGeneratorWithEntropy(entropy io.Reader, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{entropy: entropy, now: now}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.mu.Lock()
	defer g.mu.Unlock()

	return ulid.MustNew(ulid.Timestamp(g.now()), g.entropy)
}

// WithPrefix creates a prefixed ULID string
func (g *Generator) WithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate().String())
}

// NewEventID generates a new event ID
func NewEventID() EventID {
	return EventID(Default().WithPrefix(EventPrefix))
}

// NewTraceID generates a new trace ID
func NewTraceID() TraceID {
	return TraceID(Default().WithPrefix(TracePrefix))
}

// NewSpanID generates a new span ID
func NewSpanID() SpanID {
	return SpanID(Default().WithPrefix(SpanPrefix))
}

func (id EventID) String() string { return string(id) }
func (id TraceID) String() string { return string(id) }
func (id SpanID) String() string  { return string(id) }

// Split separates a prefixed id into its prefix and ULID part
func Split(s string) (prefix string, raw string) {
	if i := strings.LastIndexByte(s, '_'); i >= 0 {
		return s[:i], s[i+1:]
	}
	return "", s
}

// IsValid reports whether s is a ULID, with or without a prefix
func IsValid(s string) bool {
	_, raw := Split(s)
	_, err := ulid.ParseStrict(raw)
	return err == nil
}

// Timestamp extracts the creation time from a prefixed or bare ULID
func Timestamp(s string) (time.Time, error) {
	_, raw := Split(s)
	parsed, err := ulid.ParseStrict(raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse id %q: %w", s, err)
	}
	return ulid.Time(parsed.Time()), nil
}
