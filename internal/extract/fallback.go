package extract

import (
	"fmt"
	"log/slog"
)

// Probe is one extraction attempt. It reports ok only for a non-empty value.
type Probe[T any] struct {
	Name string
	Fn   func(p *Page) (T, bool)
}

// Chain tries its probes in order and stops at the first hit. Later probes
// never override an earlier success.
type Chain[T any] struct {
	Field  string
	Probes []Probe[T]
}

func NewChain[T any](field string, probes ...Probe[T]) Chain[T] {
	return Chain[T]{Field: field, Probes: probes}
}

// Result records which probe produced a value.
type Result[T any] struct {
	Value T
	Probe string
	OK    bool
}

// Run evaluates the chain. A probe that panics counts as a miss.
func (c Chain[T]) Run(p *Page) Result[T] {
	for _, probe := range c.Probes {
		if v, ok := safeProbe(probe, p); ok {
			return Result[T]{Value: v, Probe: probe.Name, OK: true}
		}
	}
	return Result[T]{}
}

// Extract is Run with the miss logged at debug level.
func (c Chain[T]) Extract(p *Page, logger *slog.Logger) (T, bool) {
	r := c.Run(p)
	if !r.OK && logger != nil {
		logger.Debug("extraction miss", "field", c.Field, "url", p.URL, "probes", len(c.Probes))
	}
	return r.Value, r.OK
}

// With returns a copy of the chain with extra probes appended.
func (c Chain[T]) With(probes ...Probe[T]) Chain[T] {
	out := make([]Probe[T], 0, len(c.Probes)+len(probes))
	out = append(out, c.Probes...)
	out = append(out, probes...)
	return Chain[T]{Field: c.Field, Probes: out}
}

func safeProbe[T any](probe Probe[T], p *Page) (v T, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Default().Warn("probe panicked", "probe", probe.Name, "panic", fmt.Sprint(r))
			var zero T
			v, ok = zero, false
		}
	}()
	return probe.Fn(p)
}
