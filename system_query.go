package depot

import "iter"

var (
	_ iQuery      = &Query{}
	_ SystemParam = &Query{}
)

// Query is the safe face of a QueryState. As a system parameter it is checked
// against the system's other parameters when the system is initialized, and the
// scheduler never runs it alongside a conflicting system. Obtained from
// World.Query it requires the world to be unlocked.
type Query struct {
	shape   []Fetch
	filters []Filter

	state   *QueryState
	world   *World
	lastRun uint32
	thisRun uint32
}

// NewQuery declares a query system parameter.
func NewQuery(shape []Fetch, filters ...Filter) *Query {
	return &Query{shape: shape, filters: filters}
}

// Query returns a query over state for use outside any system, such as from an
// exclusive system. Change filters compare against the exclusive system's last run.
func (w *World) Query(state *QueryState) (*Query, error) {
	if w.locked {
		return nil, LockedWorldError{}
	}
	state.UpdateArchetypes(w)
	thisRun := w.ChangeTick()
	return &Query{
		state:   state,
		world:   w,
		lastRun: w.directLastRun(thisRun),
		thisRun: thisRun,
	}, nil
}

func (q *Query) initParam(w *World, meta *SystemMeta) error {
	if q.state != nil {
		return ParamAlreadyBoundError{Param: "query"}
	}
	state, err := newQueryState(w, q.shape, q.filters...)
	if err != nil {
		return err
	}
	if conflicts := meta.componentAccessSet.Conflicts(&state.componentAccess); len(conflicts) > 0 {
		state.release()
		return SystemParamConflictError{System: meta.name, Components: w.componentNames(conflicts)}
	}
	meta.componentAccessSet.Add(state.componentAccess.Clone())
	q.state = state
	return nil
}

func (q *Query) updateArchetypes(w *World, meta *SystemMeta) {
	q.state.UpdateArchetypes(w)
	meta.archetypeComponentAccess.Extend(&q.state.archetypeComponentAccess)
}

func (q *Query) fetch(w *World, meta *SystemMeta, thisRun uint32) {
	q.world = w
	q.lastRun = meta.lastRunFor(thisRun)
	q.thisRun = thisRun
}

func (q *Query) apply(*World) {}

func (q *Query) State() *QueryState {
	return q.state
}

func (q *Query) ForEach(fn func(*Cursor)) {
	q.state.ForEachUncheckedManual(q.world, q.lastRun, q.thisRun, fn)
}

func (q *Query) Iter() iter.Seq[*Cursor] {
	return q.state.IterUncheckedManual(q.world, q.lastRun, q.thisRun)
}

// ParForEach is ForEach spread over a worker pool. See
// QueryState.ParForEachUncheckedManual.
func (q *Query) ParForEach(batchSize int, fn func(*Cursor) error) error {
	return q.state.ParForEachUncheckedManual(q.world, batchSize, q.lastRun, q.thisRun, fn)
}

func (q *Query) Get(e Entity) (*Cursor, error) {
	return q.state.GetUncheckedManual(q.world, e, q.lastRun, q.thisRun)
}

// Count returns the number of matching entities. With Added or Changed filters it
// visits every candidate.
func (q *Query) Count() int {
	if !q.state.entityFiltered {
		n := 0
		for _, id := range q.state.matchedArchetypeIDs {
			n += q.world.archetypes.get(id).Len()
		}
		return n
	}
	n := 0
	q.ForEach(func(*Cursor) { n++ })
	return n
}

func (q *Query) IsEmpty() bool {
	for range q.Iter() {
		return false
	}
	return true
}

func queryLookup[T any](q *Query, e Entity) (ComponentID, ArchetypeComponentID, entityLocation, error) {
	loc, ok := q.world.entities.location(e)
	if !ok {
		return 0, 0, loc, NoSuchEntityError{Entity: e}
	}
	id, ok := ComponentIDFor[T](q.world)
	if !ok {
		return 0, 0, loc, MissingComponentError{Entity: e, Component: typeName[T]()}
	}
	acid, ok := q.world.archetypes.get(loc.archetype).componentIDs[id]
	if !ok {
		return 0, 0, loc, MissingComponentError{Entity: e, Component: typeName[T]()}
	}
	return id, acid, loc, nil
}

// GetComponent reads e's T through q. It fails with MissingReadAccessError when T
// in e's archetype is outside the access q was checked for.
func GetComponent[T any](q *Query, e Entity) (*T, error) {
	id, acid, loc, err := queryLookup[T](q, e)
	if err != nil {
		return nil, err
	}
	if !q.state.archetypeComponentAccess.HasRead(acid) {
		return nil, MissingReadAccessError{Component: typeName[T]()}
	}
	v, _ := q.world.storage(q.world.archetypes.get(loc.archetype), id).(componentStore[T]).get(loc.row, e)
	return v, nil
}

// GetComponentMut is GetComponent for a write. It fails with
// MissingWriteAccessError unless q writes T in e's archetype.
func GetComponentMut[T any](q *Query, e Entity) (Mut[T], error) {
	id, acid, loc, err := queryLookup[T](q, e)
	if err != nil {
		return Mut[T]{}, err
	}
	if !q.state.archetypeComponentAccess.HasWrite(acid) {
		return Mut[T]{}, MissingWriteAccessError{Component: typeName[T]()}
	}
	v, ticks := q.world.storage(q.world.archetypes.get(loc.archetype), id).(componentStore[T]).get(loc.row, e)
	return Mut[T]{value: v, ticks: ticks, lastRun: q.lastRun, thisRun: q.thisRun}, nil
}
