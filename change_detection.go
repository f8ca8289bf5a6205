package depot

import "math"

// MaxChangeAge is the oldest a tick may get, relative to the world tick, before it
// is clamped. Past half the counter range wrapping comparisons become ambiguous.
const MaxChangeAge uint32 = math.MaxUint32 / 2

// neverRun is the last-run tick reported by a system that has not run yet. Change
// filters of such a system compare against one past the running tick instead, so
// every tick reads as newer even when the counter sits at its maximum.
const neverRun uint32 = math.MaxUint32

// ComponentTicks records when a component value was added and last changed.
type ComponentTicks struct {
	Added   uint32
	Changed uint32
}

func newComponentTicks(tick uint32) ComponentTicks {
	return ComponentTicks{Added: tick, Changed: tick}
}

// IsAdded reports whether the value was added after lastRun, as seen at thisRun.
func (t ComponentTicks) IsAdded(lastRun, thisRun uint32) bool {
	return isNewer(t.Added, lastRun, thisRun)
}

// IsChanged reports whether the value was changed after lastRun, as seen at thisRun.
func (t ComponentTicks) IsChanged(lastRun, thisRun uint32) bool {
	return isNewer(t.Changed, lastRun, thisRun)
}

func (t *ComponentTicks) markChanged(tick uint32) {
	t.Changed = tick
}

func (t *ComponentTicks) check(current uint32) int {
	n := 0
	if checkTick(&t.Added, current) {
		n++
	}
	if checkTick(&t.Changed, current) {
		n++
	}
	return n
}

// isNewer compares wrapping distances back from thisRun, so it keeps working after
// the counter overflows.
func isNewer(tick, lastRun, thisRun uint32) bool {
	return thisRun-tick < thisRun-lastRun
}

// checkTick clamps *tick to MaxChangeAge behind current and reports whether it did.
func checkTick(tick *uint32, current uint32) bool {
	if current-*tick > MaxChangeAge {
		*tick = current - MaxChangeAge
		return true
	}
	return false
}

// Mut is a mutable handle to one component value. Get and Set mark the value as
// changed at the running system's tick, whether or not the value is modified.
type Mut[T any] struct {
	value   *T
	ticks   *ComponentTicks
	lastRun uint32
	thisRun uint32
}

// Get returns a pointer for in-place mutation and marks the value changed.
func (m Mut[T]) Get() *T {
	m.ticks.markChanged(m.thisRun)
	return m.value
}

// Set replaces the value and marks it changed.
func (m Mut[T]) Set(v T) {
	m.ticks.markChanged(m.thisRun)
	*m.value = v
}

// Value reads the value without marking it.
func (m Mut[T]) Value() T {
	return *m.value
}

func (m Mut[T]) Ticks() ComponentTicks {
	return *m.ticks
}

func (m Mut[T]) IsAdded() bool {
	return m.ticks.IsAdded(m.lastRun, m.thisRun)
}

func (m Mut[T]) IsChanged() bool {
	return m.ticks.IsChanged(m.lastRun, m.thisRun)
}

// Valid is false for the zero Mut, which optional lookups return.
func (m Mut[T]) Valid() bool {
	return m.value != nil
}
