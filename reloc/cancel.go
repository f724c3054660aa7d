package reloc

import "go.uber.org/atomic"

// CancelFlag is the single-writer/single-reader cancellation flag polled
// between relocaliser states. It is not a context.Context because
// cancellation here only ever takes effect between phases (never inside a
// dispatch), and a plain flag makes that contract explicit rather than
// relying on callers to understand context cancellation's finer-grained
// semantics.
type CancelFlag struct {
	flag atomic.Bool
}

// Cancel requests cancellation. Safe to call from exactly one goroutine
// distinct from the reader.
func (c *CancelFlag) Cancel() {
	c.flag.Store(true)
}

// Requested reports whether Cancel has been called.
func (c *CancelFlag) Requested() bool {
	return c.flag.Load()
}
