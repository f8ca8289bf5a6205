package depot

import "github.com/bits-and-blooms/bitset"

// Access records which ids are read and written. Every write also counts as a read.
type Access[T ~uint32] struct {
	readsAndWrites bitset.BitSet
	writes         bitset.BitSet
	readsAll       bool
}

func (a *Access[T]) AddRead(id T) {
	a.readsAndWrites.Set(uint(id))
}

func (a *Access[T]) AddWrite(id T) {
	a.readsAndWrites.Set(uint(id))
	a.writes.Set(uint(id))
}

func (a *Access[T]) HasRead(id T) bool {
	return a.readsAll || a.readsAndWrites.Test(uint(id))
}

func (a *Access[T]) HasWrite(id T) bool {
	return a.writes.Test(uint(id))
}

// ReadAll marks every id, present and future, as read.
func (a *Access[T]) ReadAll() {
	a.readsAll = true
}

func (a *Access[T]) ReadsAll() bool {
	return a.readsAll
}

func (a *Access[T]) Clear() {
	a.readsAndWrites.ClearAll()
	a.writes.ClearAll()
	a.readsAll = false
}

// Extend adds every read and write of other to a.
func (a *Access[T]) Extend(other *Access[T]) {
	a.readsAll = a.readsAll || other.readsAll
	a.readsAndWrites.InPlaceUnion(&other.readsAndWrites)
	a.writes.InPlaceUnion(&other.writes)
}

// IsCompatible reports whether a and other may be used at the same time: neither
// writes an id the other reads or writes.
func (a *Access[T]) IsCompatible(other *Access[T]) bool {
	if a.readsAll {
		return other.writes.None()
	}
	if other.readsAll {
		return a.writes.None()
	}
	return a.writes.IntersectionCardinality(&other.readsAndWrites) == 0 &&
		other.writes.IntersectionCardinality(&a.readsAndWrites) == 0
}

// Conflicts returns the ids that make a and other incompatible.
func (a *Access[T]) Conflicts(other *Access[T]) []T {
	var conflicts bitset.BitSet
	if a.readsAll {
		conflicts.InPlaceUnion(&other.writes)
	}
	if other.readsAll {
		conflicts.InPlaceUnion(&a.writes)
	}
	conflicts.InPlaceUnion(a.writes.Intersection(&other.readsAndWrites))
	conflicts.InPlaceUnion(other.writes.Intersection(&a.readsAndWrites))
	return idsOf[T](&conflicts)
}

// Reads returns every id read or written, ascending.
func (a *Access[T]) Reads() []T {
	return idsOf[T](&a.readsAndWrites)
}

func (a *Access[T]) Writes() []T {
	return idsOf[T](&a.writes)
}

func (a *Access[T]) Clone() Access[T] {
	return Access[T]{
		readsAndWrites: *a.readsAndWrites.Clone(),
		writes:         *a.writes.Clone(),
		readsAll:       a.readsAll,
	}
}

func idsOf[T ~uint32](b *bitset.BitSet) []T {
	var ids []T
	for i, ok := b.NextSet(0); ok; i, ok = b.NextSet(i + 1) {
		ids = append(ids, T(i))
	}
	return ids
}

// FilteredAccess is an Access plus the ids an archetype must have (with) or must not
// have (without) to be touched. Reads and writes imply with.
type FilteredAccess[T ~uint32] struct {
	access  Access[T]
	with    bitset.BitSet
	without bitset.BitSet
}

func (f *FilteredAccess[T]) Access() *Access[T] {
	return &f.access
}

func (f *FilteredAccess[T]) AddRead(id T) {
	f.access.AddRead(id)
	f.with.Set(uint(id))
}

func (f *FilteredAccess[T]) AddWrite(id T) {
	f.access.AddWrite(id)
	f.with.Set(uint(id))
}

func (f *FilteredAccess[T]) AddWith(id T) {
	f.with.Set(uint(id))
}

func (f *FilteredAccess[T]) AddWithout(id T) {
	f.without.Set(uint(id))
}

func (f *FilteredAccess[T]) With() []T {
	return idsOf[T](&f.with)
}

func (f *FilteredAccess[T]) Without() []T {
	return idsOf[T](&f.without)
}

func (f *FilteredAccess[T]) Extend(other *FilteredAccess[T]) {
	f.access.Extend(&other.access)
	f.with.InPlaceUnion(&other.with)
	f.without.InPlaceUnion(&other.without)
}

// IsCompatible reports whether f and other can never touch the same data: either
// their accesses are compatible, or one requires an id the other excludes.
func (f *FilteredAccess[T]) IsCompatible(other *FilteredAccess[T]) bool {
	if f.access.IsCompatible(&other.access) {
		return true
	}
	return f.with.IntersectionCardinality(&other.without) > 0 ||
		f.without.IntersectionCardinality(&other.with) > 0
}

func (f *FilteredAccess[T]) Clone() FilteredAccess[T] {
	return FilteredAccess[T]{
		access:  f.access.Clone(),
		with:    *f.with.Clone(),
		without: *f.without.Clone(),
	}
}

// FilteredAccessSet collects the filtered accesses of a system's parameters.
type FilteredAccessSet[T ~uint32] struct {
	combined Access[T]
	filtered []FilteredAccess[T]
}

// CombinedAccess is the union of every added access, ignoring filters.
func (s *FilteredAccessSet[T]) CombinedAccess() *Access[T] {
	return &s.combined
}

func (s *FilteredAccessSet[T]) Add(f FilteredAccess[T]) {
	s.combined.Extend(&f.access)
	s.filtered = append(s.filtered, f)
}

// AddUnfilteredRead adds a read that applies regardless of archetype, as resources do.
func (s *FilteredAccessSet[T]) AddUnfilteredRead(id T) {
	var f FilteredAccess[T]
	f.access.AddRead(id)
	s.Add(f)
}

func (s *FilteredAccessSet[T]) AddUnfilteredWrite(id T) {
	var f FilteredAccess[T]
	f.access.AddWrite(id)
	s.Add(f)
}

func (s *FilteredAccessSet[T]) IsCompatible(other *FilteredAccessSet[T]) bool {
	if s.combined.IsCompatible(&other.combined) {
		return true
	}
	for i := range s.filtered {
		for j := range other.filtered {
			if !s.filtered[i].IsCompatible(&other.filtered[j]) {
				return false
			}
		}
	}
	return true
}

// Conflicts returns the ids through which f would alias an access already in s.
func (s *FilteredAccessSet[T]) Conflicts(f *FilteredAccess[T]) []T {
	if s.combined.IsCompatible(&f.access) {
		return nil
	}
	var conflicts bitset.BitSet
	for i := range s.filtered {
		if s.filtered[i].IsCompatible(f) {
			continue
		}
		for _, id := range s.filtered[i].access.Conflicts(&f.access) {
			conflicts.Set(uint(id))
		}
	}
	return idsOf[T](&conflicts)
}
