package depot

// Fetch is one term of a query's shape. Terms are bound to a single query state when
// it is created and read their item from a Cursor positioned by that query.
type Fetch interface {
	initFetch(w *World, slot int, access *FilteredAccess[ComponentID]) error
	matchesArchetype(a *archetype) bool
	resolve(w *World, a *archetype) componentView
	unbind()
}

var (
	_ Fetch = &ReadTerm[struct{}]{}
	_ Fetch = &WriteTerm[struct{}]{}
	_ Fetch = &OptionalTerm[struct{}]{}
	_ Fetch = &TicksTerm[struct{}]{}
)

// Shape lists the terms of a query.
func Shape(fetches ...Fetch) []Fetch {
	return fetches
}

type term struct {
	id    ComponentID
	slot  int
	bound bool
}

func (t *term) bind(info *ComponentInfo, slot int) error {
	if t.bound {
		return MalformedQueryError{Reason: "term for " + info.name + " is already bound to a query"}
	}
	t.id = info.id
	t.slot = slot
	t.bound = true
	return nil
}

func (t *term) unbind() {
	t.bound = false
}

func (t *term) resolve(w *World, a *archetype) componentView {
	return w.storage(a, t.id)
}

func (t *term) matchesArchetype(a *archetype) bool {
	return a.Contains(t.id)
}

func bindRead[T any](t *term, w *World, slot int, access *FilteredAccess[ComponentID]) (*ComponentInfo, error) {
	info, err := componentInfoFor[T](w)
	if err != nil {
		return nil, err
	}
	if access.access.HasWrite(info.id) {
		return nil, QueryConflictError{Component: info.name, Reason: "read while also written by the query"}
	}
	return info, t.bind(info, slot)
}

// ReadTerm yields a shared pointer to a component value.
type ReadTerm[T any] struct {
	term
}

func Read[T any]() *ReadTerm[T] {
	return &ReadTerm[T]{}
}

func (r *ReadTerm[T]) initFetch(w *World, slot int, access *FilteredAccess[ComponentID]) error {
	info, err := bindRead[T](&r.term, w, slot, access)
	if err != nil {
		return err
	}
	access.AddRead(info.id)
	return nil
}

// Get returns the value at the cursor. It must not be modified.
func (r *ReadTerm[T]) Get(c *Cursor) *T {
	v, _ := c.stores[r.slot].(componentStore[T]).get(c.row, c.entity)
	return v
}

// WriteTerm yields a change-marking handle to a component value.
type WriteTerm[T any] struct {
	term
}

func Write[T any]() *WriteTerm[T] {
	return &WriteTerm[T]{}
}

func (wt *WriteTerm[T]) initFetch(w *World, slot int, access *FilteredAccess[ComponentID]) error {
	info, err := componentInfoFor[T](w)
	if err != nil {
		return err
	}
	if access.access.HasRead(info.id) {
		return QueryConflictError{Component: info.name, Reason: "written while also accessed by the query"}
	}
	if err := wt.bind(info, slot); err != nil {
		return err
	}
	access.AddWrite(info.id)
	return nil
}

func (wt *WriteTerm[T]) Get(c *Cursor) Mut[T] {
	v, ticks := c.stores[wt.slot].(componentStore[T]).get(c.row, c.entity)
	return Mut[T]{value: v, ticks: ticks, lastRun: c.lastRun, thisRun: c.thisRun}
}

// OptionalTerm yields the value when the entity has it. It does not restrict which
// archetypes match.
type OptionalTerm[T any] struct {
	term
}

func Optional[T any]() *OptionalTerm[T] {
	return &OptionalTerm[T]{}
}

func (o *OptionalTerm[T]) initFetch(w *World, slot int, access *FilteredAccess[ComponentID]) error {
	info, err := bindRead[T](&o.term, w, slot, access)
	if err != nil {
		return err
	}
	access.access.AddRead(info.id)
	return nil
}

func (o *OptionalTerm[T]) matchesArchetype(*archetype) bool {
	return true
}

func (o *OptionalTerm[T]) Get(c *Cursor) (*T, bool) {
	store := c.stores[o.slot]
	if store == nil {
		return nil, false
	}
	v, _ := store.(componentStore[T]).get(c.row, c.entity)
	return v, true
}

// TicksTerm yields the change ticks of a component value.
type TicksTerm[T any] struct {
	term
}

func TicksOf[T any]() *TicksTerm[T] {
	return &TicksTerm[T]{}
}

func (t *TicksTerm[T]) initFetch(w *World, slot int, access *FilteredAccess[ComponentID]) error {
	info, err := bindRead[T](&t.term, w, slot, access)
	if err != nil {
		return err
	}
	access.AddRead(info.id)
	return nil
}

func (t *TicksTerm[T]) Get(c *Cursor) ComponentTicks {
	return *c.stores[t.slot].ticks(c.row, c.entity)
}

func (t *TicksTerm[T]) IsAdded(c *Cursor) bool {
	return t.Get(c).IsAdded(c.lastRun, c.thisRun)
}

func (t *TicksTerm[T]) IsChanged(c *Cursor) bool {
	return t.Get(c).IsChanged(c.lastRun, c.thisRun)
}
