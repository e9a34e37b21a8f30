// Package id provides centralized ID generation for the kernel.
//
// Two id families live here:
//   - Koids: the kernel object ids handed out to dispatchers. They are dense,
//     monotonically increasing 64-bit integers starting at fx.KoidFirst and are
//     never reused.
//   - ULIDs: lexicographically sortable ids for everything that is not a
//     kernel object (boot sessions, syscall traces, spans). Prefixes make
//     them readable in logs (boot_*, trace_*, span_*).
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/meshx-org/fiber/internal/fx"
)

// ============================================================================
// Kernel Object IDs
// ============================================================================

// KoidGenerator hands out kernel object ids.
type KoidGenerator struct {
	next atomic.Uint64
}

// NewKoidGenerator creates a generator whose first id is first.
func NewKoidGenerator(first fx.Koid) *KoidGenerator {
	g := &KoidGenerator{}
	g.next.Store(uint64(first))
	return g
}

// Next returns a fresh koid
func (g *KoidGenerator) Next() fx.Koid {
	return fx.Koid(g.next.Add(1) - 1)
}

var koids = NewKoidGenerator(fx.KoidFirst)

// NextKoid returns a fresh koid from the kernel-wide generator. Koids are
// unique across every kernel instance in the process.
func NextKoid() fx.Koid {
	return koids.Next()
}

// ============================================================================
// Type-Safe ID Wrappers
// ============================================================================

// BootID identifies one kernel boot
type BootID string

// TraceID identifies a syscall trace
type TraceID string

// SpanID identifies one span within a trace
type SpanID string

// ============================================================================
// ID Prefixes (for debugging and type identification)
// ============================================================================

const (
	BootPrefix  = "boot"
	TracePrefix = "trace"
	SpanPrefix  = "span"
)

// ============================================================================
// ULID Generator
// ============================================================================

// Generator generates ULIDs with optional prefixes
type Generator struct {
	entropy   io.Reader
	entropyMu sync.Mutex // Protects entropy reader
}

var (
	// Default generator with cryptographically secure entropy
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the singleton generator instance
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a new ULID generator
func NewGenerator() *Generator {
	return &Generator{
		entropy: rand.Reader,
	}
}

// NewGeneratorWithEntropy creates a generator with custom entropy source
// Useful for testing with deterministic entropy
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{
		entropy: entropy,
	}
}

// Generate creates a new ULID
func (g *Generator) Generate() ulid.ULID {
	g.entropyMu.Lock()
	defer g.entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateString creates a new ULID as a string
func (g *Generator) GenerateString() string {
	return g.Generate().String()
}

// GenerateWithPrefix creates a prefixed ULID string
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.GenerateString())
}

// ============================================================================
// Typed ID Generators
// ============================================================================

// NewBootID generates a new boot ID
func NewBootID() BootID {
	return BootID(Default().GenerateWithPrefix(BootPrefix))
}

// NewTraceID generates a new trace ID
func NewTraceID() TraceID {
	return TraceID(Default().GenerateWithPrefix(TracePrefix))
}

// NewSpanID generates a new span ID
func NewSpanID() SpanID {
	return SpanID(Default().GenerateWithPrefix(SpanPrefix))
}

// ============================================================================
// Type Conversion and Validation
// ============================================================================

func (id BootID) String() string  { return string(id) }
func (id TraceID) String() string { return string(id) }
func (id SpanID) String() string  { return string(id) }

// IsValid checks if an ID string is a valid ULID
func IsValid(id string) bool {
	_, err := ulid.Parse(id)
	return err == nil
}

// Parse parses a ULID string
func Parse(id string) (ulid.ULID, error) {
	return ulid.Parse(id)
}

// Timestamp extracts the timestamp from a ULID
func Timestamp(id string) (time.Time, error) {
	parsed, err := Parse(id)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
