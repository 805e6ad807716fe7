// Package clock provides an injectable time source and job id generator so
// scheduler and store tests can run without depending on wall-clock time.
package clock

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Clock abstracts the passage of time.
type Clock interface {
	Now() time.Time
	Since(t time.Time) time.Duration
	After(d time.Duration) <-chan time.Time
	NewTicker(d time.Duration) *time.Ticker
}

// Real is the production Clock backed by the standard library.
type Real struct{}

// New returns the production clock.
func New() Clock { return Real{} }

func (Real) Now() time.Time                         { return time.Now() }
func (Real) Since(t time.Time) time.Duration         { return time.Since(t) }
func (Real) After(d time.Duration) <-chan time.Time  { return time.After(d) }
func (Real) NewTicker(d time.Duration) *time.Ticker  { return time.NewTicker(d) }

// IDGenerator produces ids of the form "<pipelineId>-<epochMs>-<rand>".
type IDGenerator struct {
	clock Clock
	mu    sync.Mutex
	rnd   *rand.Rand
}

// NewIDGenerator builds a generator driven by clk.
func NewIDGenerator(clk Clock) *IDGenerator {
	return &IDGenerator{
		clock: clk,
		rnd:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NewJobID returns a new job id for pipelineID.
func (g *IDGenerator) NewJobID(pipelineID string) string {
	g.mu.Lock()
	suffix := g.rnd.Int63n(1_000_000_000)
	g.mu.Unlock()
	epochMs := g.clock.Now().UnixMilli()
	return fmt.Sprintf("%s-%d-%d", pipelineID, epochMs, suffix)
}

// NewToken returns an opaque random token, used for subscriber and
// correlation ids.
func (g *IDGenerator) NewToken() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fmt.Sprintf("%x", g.rnd.Int63())
}
