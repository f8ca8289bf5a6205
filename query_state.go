package depot

import (
	"iter"

	"github.com/bits-and-blooms/bitset"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// QueryState is the compiled form of a query: its bound terms, its access and the
// archetypes it currently matches. It belongs to one world and one owner.
//
// The *UncheckedManual methods do no access checking. The caller guarantees that no
// other live access overlaps the state's archetype-component access for the
// duration of the call, and that UpdateArchetypes has seen every archetype the call
// should visit. Breaking either rule is a data race.
type QueryState struct {
	worldID uuid.UUID
	fetches []Fetch
	filter  Filter
	slots   int

	entityFiltered bool
	reads          []ComponentID

	componentAccess          FilteredAccess[ComponentID]
	archetypeComponentAccess Access[ArchetypeComponentID]

	matchedArchetypeIDs []archetypeID
	matchedArchetypes   bitset.BitSet
	archetypeGeneration int
}

func newQueryState(w *World, shape []Fetch, filters ...Filter) (*QueryState, error) {
	s := &QueryState{
		worldID: w.id,
		fetches: shape,
		filter:  And(filters...),
		slots:   len(shape),
	}
	for slot, f := range shape {
		if f == nil {
			unbindAll(shape[:slot])
			return nil, MalformedQueryError{Reason: "nil term"}
		}
		if err := f.initFetch(w, slot, &s.componentAccess); err != nil {
			unbindAll(shape[:slot])
			return nil, err
		}
	}
	if err := s.filter.initFilter(w, &s.slots, &s.componentAccess); err != nil {
		s.release()
		return nil, err
	}
	s.entityFiltered = s.filter.entityLevel()
	s.reads = s.componentAccess.access.Reads()
	s.UpdateArchetypes(w)
	return s, nil
}

// release unbinds the state's terms so another query state may use them.
func (s *QueryState) release() {
	unbindAll(s.fetches)
}

func unbindAll(fetches []Fetch) {
	for _, f := range fetches {
		f.unbind()
	}
}

func (s *QueryState) validateWorld(w *World) {
	if w.id != s.worldID {
		panic(WorldMismatchError{Expected: s.worldID, Got: w.id})
	}
}

// UpdateArchetypes matches archetypes created since the last call.
func (s *QueryState) UpdateArchetypes(w *World) {
	s.validateWorld(w)
	for ; s.archetypeGeneration < w.archetypes.generation(); s.archetypeGeneration++ {
		s.newArchetype(w.archetypes.get(archetypeID(s.archetypeGeneration)))
	}
}

func (s *QueryState) newArchetype(a *archetype) {
	if !s.matchesArchetype(a) {
		return
	}
	for _, id := range s.reads {
		acid, ok := a.componentIDs[id]
		if !ok {
			continue
		}
		if s.componentAccess.access.HasWrite(id) {
			s.archetypeComponentAccess.AddWrite(acid)
		} else {
			s.archetypeComponentAccess.AddRead(acid)
		}
	}
	s.matchedArchetypes.Set(uint(a.id))
	s.matchedArchetypeIDs = append(s.matchedArchetypeIDs, a.id)
}

func (s *QueryState) matchesArchetype(a *archetype) bool {
	for _, f := range s.fetches {
		if !f.matchesArchetype(a) {
			return false
		}
	}
	return s.filter.matchesArchetype(a)
}

func (s *QueryState) resolve(w *World, a *archetype, stores []componentView) {
	for slot, f := range s.fetches {
		stores[slot] = f.resolve(w, a)
	}
	s.filter.resolve(w, a, stores)
}

// ComponentAccess is the access declared by the query's terms and filters.
func (s *QueryState) ComponentAccess() *FilteredAccess[ComponentID] {
	return &s.componentAccess
}

// ArchetypeComponentAccess is the access over every matched archetype so far.
func (s *QueryState) ArchetypeComponentAccess() *Access[ArchetypeComponentID] {
	return &s.archetypeComponentAccess
}

// MatchedArchetypes returns the number of archetypes matched so far.
func (s *QueryState) MatchedArchetypes() int {
	return len(s.matchedArchetypeIDs)
}

func (s *QueryState) spans(w *World) []span {
	spans := make([]span, 0, len(s.matchedArchetypeIDs))
	for _, id := range s.matchedArchetypeIDs {
		a := w.archetypes.get(id)
		if a.Len() > 0 {
			spans = append(spans, span{archetype: a, start: 0, end: a.Len()})
		}
	}
	return spans
}

// batches cuts every matched archetype into row ranges of at most size rows.
func (s *QueryState) batches(w *World, size int) []span {
	var spans []span
	for _, id := range s.matchedArchetypeIDs {
		a := w.archetypes.get(id)
		for start := 0; start < a.Len(); start += size {
			spans = append(spans, span{archetype: a, start: start, end: min(start+size, a.Len())})
		}
	}
	return spans
}

// ForEachUncheckedManual calls fn once per matching entity.
func (s *QueryState) ForEachUncheckedManual(w *World, lastRun, thisRun uint32, fn func(*Cursor)) {
	s.validateWorld(w)
	c := newCursor(s, w, lastRun, thisRun, s.spans(w))
	for c.Next() {
		fn(c)
	}
}

// IterUncheckedManual returns a single-use sequence over matching entities.
func (s *QueryState) IterUncheckedManual(w *World, lastRun, thisRun uint32) iter.Seq[*Cursor] {
	s.validateWorld(w)
	return func(yield func(*Cursor) bool) {
		c := newCursor(s, w, lastRun, thisRun, s.spans(w))
		for c.Next() {
			if !yield(c) {
				return
			}
		}
	}
}

// ParForEachUncheckedManual splits matching rows into batches of batchSize and calls
// fn for each entity from a pool of Config.Workers() goroutines. A batchSize below 1
// uses Config.BatchSize(). fn must be safe to call concurrently. The first error
// returned by fn is returned once every batch has finished.
func (s *QueryState) ParForEachUncheckedManual(w *World, batchSize int, lastRun, thisRun uint32, fn func(*Cursor) error) error {
	s.validateWorld(w)
	if batchSize < 1 {
		batchSize = Config.BatchSize()
	}
	g := errgroup.Group{}
	g.SetLimit(Config.Workers())
	for _, batch := range s.batches(w, batchSize) {
		g.Go(func() error {
			c := newCursor(s, w, lastRun, thisRun, []span{batch})
			for c.Next() {
				if err := fn(c); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// GetUncheckedManual positions a cursor on e. It fails with NoSuchEntityError for
// a stale handle and NoMatchError when e does not satisfy the query.
func (s *QueryState) GetUncheckedManual(w *World, e Entity, lastRun, thisRun uint32) (*Cursor, error) {
	s.validateWorld(w)
	loc, ok := w.entities.location(e)
	if !ok {
		return nil, NoSuchEntityError{Entity: e}
	}
	if !s.matchedArchetypes.Test(uint(loc.archetype)) {
		return nil, NoMatchError{Entity: e}
	}
	a := w.archetypes.get(loc.archetype)
	c := newCursor(s, w, lastRun, thisRun, []span{{archetype: a, start: loc.row, end: loc.row + 1}})
	if !c.Next() {
		return nil, NoMatchError{Entity: e}
	}
	return c, nil
}
