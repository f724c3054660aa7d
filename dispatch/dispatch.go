// Package dispatch is the parallel-for seam named in spec §5 and §9: the
// relocaliser algorithm is written once against the Dispatcher interface,
// and a bulk-synchronous GPU backend or a work-stealing host backend plugs
// in underneath without changing any algorithm code. Only the host backend
// is implemented here; a GPU backend is out of scope (spec §1).
package dispatch

import (
	"context"
	"math/rand"

	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

// Counter is the atomic append-counter primitive required by spec §5(a):
// concurrent workers call Add to claim the next slot in a shared array.
type Counter interface {
	// Add atomically increments the counter by delta and returns the
	// resulting value.
	Add(delta int32) int32
	// Load returns the current value.
	Load() int32
}

// Accumulator is the atomic floating-point accumulator required by spec
// §5(b), used for the per-candidate energy reduction (4.E). Its three
// phases are called out explicitly — Reset, Add, Finalize — to give the
// energy scorer an explicit barrier between them (spec §9, open question
// ii), rather than relying on an implicit reduction that could race a
// reset on some backends.
type Accumulator interface {
	Reset()
	Add(v float64)
	// Finalize divides the accumulated sum by n and returns the mean. It
	// must only be called once all Add calls for the round have returned.
	Finalize(n int) float64
}

// Dispatcher runs the same data-parallel loop shape used by every
// component in spec §4: "for each of n independent items, in parallel".
type Dispatcher interface {
	// ParallelFor calls fn(i) once for each i in [0, n), with no ordering
	// guarantee between calls (spec §5: "order ... is unspecified").
	// Returns the first non-nil error any fn call returned, if any.
	ParallelFor(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error
	NewCounter() Counter
	NewAccumulator() Accumulator
}

// HostDispatcher is the multi-threaded host backend (spec §5(ii)): a
// work-stealing pool via golang.org/x/sync/errgroup, with go.uber.org/atomic
// backing the two required concurrency-safe primitives.
type HostDispatcher struct {
	// MaxWorkers bounds concurrent goroutines; 0 means unbounded (one
	// goroutine per item), matching errgroup.Group's default behavior.
	MaxWorkers int
}

var _ Dispatcher = (*HostDispatcher)(nil)

// ParallelFor implements Dispatcher.
func (d *HostDispatcher) ParallelFor(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	if n <= 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	if d.MaxWorkers > 0 {
		g.SetLimit(d.MaxWorkers)
	}
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			return fn(gctx, i)
		})
	}
	return g.Wait()
}

// NewCounter implements Dispatcher.
func (d *HostDispatcher) NewCounter() Counter {
	return &hostCounter{v: atomic.NewInt32(0)}
}

// NewAccumulator implements Dispatcher.
func (d *HostDispatcher) NewAccumulator() Accumulator {
	return &hostAccumulator{v: atomic.NewFloat64(0)}
}

type hostCounter struct{ v *atomic.Int32 }

func (c *hostCounter) Add(delta int32) int32 { return c.v.Add(delta) }
func (c *hostCounter) Load() int32           { return c.v.Load() }

type hostAccumulator struct{ v *atomic.Float64 }

func (a *hostAccumulator) Reset()        { a.v.Store(0) }
func (a *hostAccumulator) Add(v float64) { a.v.Add(v) }
func (a *hostAccumulator) Finalize(n int) float64 {
	if n <= 0 {
		return 0
	}
	return a.v.Load() / float64(n)
}

// SerialDispatcher runs ParallelFor in strict index order on the calling
// goroutine. It exists for the determinism property in spec §8 ("two runs
// on identical inputs produce identical poses byte-for-byte" requires a
// single-threaded backend) and for tests that need reproducible ordering.
type SerialDispatcher struct{}

var _ Dispatcher = SerialDispatcher{}

// ParallelFor implements Dispatcher.
func (SerialDispatcher) ParallelFor(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(ctx, i); err != nil {
			return err
		}
	}
	return nil
}

// NewCounter implements Dispatcher.
func (SerialDispatcher) NewCounter() Counter { return &hostCounter{v: atomic.NewInt32(0)} }

// NewAccumulator implements Dispatcher.
func (SerialDispatcher) NewAccumulator() Accumulator {
	return &hostAccumulator{v: atomic.NewFloat64(0)}
}

// SlotRand returns the explicit per-dispatch RNG object required by spec
// §9's design note, keyed by (seed, slot) so that two dispatches with the
// same seed produce the same sequence per slot regardless of how work is
// scheduled across goroutines.
func SlotRand(seed int64, slot int) *rand.Rand {
	// splitmix64-style mix so nearby slots don't produce correlated seeds
	// under math/rand's linear-congruential source.
	mixed := uint64(seed) ^ (uint64(slot)*0x9E3779B97F4A7C15 + 0xBF58476D1CE4E5B9)
	mixed ^= mixed >> 30
	mixed *= 0xBF58476D1CE4E5B9
	mixed ^= mixed >> 27
	mixed *= 0x94D049BB133111EB
	mixed ^= mixed >> 31
	return rand.New(rand.NewSource(int64(mixed)))
}
