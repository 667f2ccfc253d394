// Package bench implements the two-pass cycle measurement protocol used both
// inside guest programs and for micro-benchmarks of arithmetic primitives.
//
// Each measurement runs the operation once to absorb cold-start effects, then
// reads the counter, runs the operation a second time and reads the counter
// again. Only the second pass is charged. Both passes go through BlackBox so the
// compiler can neither drop the call nor hoist its result.
package bench

import (
	"fmt"
	"io"
	"runtime"
	"sync/atomic"
	"time"
)

// Counter is a monotonic cycle counter.
type Counter interface {
	CycleCount() uint64
}

// Sample is one labelled measurement.
type Sample struct {
	Label  string `json:"label"`
	Cycles uint64 `json:"cycles"`
}

// String formats the sample the way the console report prints it.
func (s Sample) String() string {
	return fmt.Sprintf("%s: %d cycles", s.Label, s.Cycles)
}

// BlackBox returns v unchanged. The call is never inlined, so v has to be
// materialized before it and its result cannot be folded into the caller.
// It does not allocate.
//
//go:noinline
func BlackBox[T any](v T) T {
	return v
}

// Measure runs op twice and returns the counter delta of the second run.
// If the counter goes backwards the delta saturates at zero.
func Measure[T any](c Counter, label string, op func() T) Sample {
	BlackBox(op())

	start := c.CycleCount()
	BlackBox(op())
	end := c.CycleCount()

	var delta uint64
	if end > start {
		delta = end - start
	}
	return Sample{Label: label, Cycles: delta}
}

// Op is a labelled operation in a benchmark suite.
type Op struct {
	Label string
	Fn    func() any
}

// Suite is an ordered list of operations measured back to back.
type Suite struct {
	Name string
	Ops  []Op
}

// Run measures every operation in order on the calling goroutine, pinned to
// one OS thread so that no other measurement interleaves with a sequence.
func (s Suite) Run(c Counter) []Sample {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	samples := make([]Sample, 0, len(s.Ops))
	for _, op := range s.Ops {
		samples = append(samples, Measure(c, op.Label, op.Fn))
	}
	return samples
}

// Report writes samples one per line, preceded by a heading when name is set.
func Report(w io.Writer, name string, samples []Sample) error {
	if name != "" {
		if _, err := fmt.Fprintf(w, "\n%s:\n", name); err != nil {
			return err
		}
	}
	for _, s := range samples {
		if _, err := fmt.Fprintln(w, s.String()); err != nil {
			return err
		}
	}
	return nil
}

// MonotonicCounter counts nanoseconds since its creation using the process
// monotonic clock.
type MonotonicCounter struct {
	start time.Time
}

// NewMonotonicCounter creates a counter anchored at the current instant.
func NewMonotonicCounter() *MonotonicCounter {
	return &MonotonicCounter{start: time.Now()}
}

// CycleCount returns elapsed nanoseconds.
func (m *MonotonicCounter) CycleCount() uint64 {
	elapsed := time.Since(m.start)
	if elapsed < 0 {
		return 0
	}
	return uint64(elapsed)
}

// StepCounter advances by a fixed step on every read. It gives exact,
// reproducible deltas.
type StepCounter struct {
	now  atomic.Uint64
	Step uint64
}

// CycleCount returns the current value and advances it by Step.
func (s *StepCounter) CycleCount() uint64 {
	return s.now.Add(s.Step) - s.Step
}

// Advance moves the counter forward by n without a read.
func (s *StepCounter) Advance(n uint64) {
	s.now.Add(n)
}
