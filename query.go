package depot

import "github.com/TheBitDrifter/mask"

type Operation int

const (
	OpAnd Operation = iota
	OpOr
	OpNot
)

// Filter narrows the entities a query visits without fetching data. With and
// Without are decided per archetype. Added and Changed are decided per entity.
type Filter interface {
	initFilter(w *World, slots *int, access *FilteredAccess[ComponentID]) error
	matchesArchetype(a *archetype) bool
	entityLevel() bool
	matchesEntity(c *Cursor) bool
	resolve(w *World, a *archetype, stores []componentView)
}

var (
	_ Filter = &compositeNode{}
	_ Filter = &withNode[struct{}]{}
	_ Filter = &withoutNode[struct{}]{}
	_ Filter = &tickNode[struct{}]{}
)

type compositeNode struct {
	op       Operation
	children []Filter
}

// And matches entities matching every filter. And() matches everything.
func And(filters ...Filter) Filter {
	return &compositeNode{op: OpAnd, children: filters}
}

// Or matches entities matching at least one filter.
func Or(filters ...Filter) Filter {
	return &compositeNode{op: OpOr, children: filters}
}

// Not matches entities that do not match filter.
func Not(filter Filter) Filter {
	return &compositeNode{op: OpNot, children: []Filter{filter}}
}

func (n *compositeNode) initFilter(w *World, slots *int, access *FilteredAccess[ComponentID]) error {
	if n.op == OpNot && len(n.children) != 1 {
		return MalformedQueryError{Reason: "not takes exactly one filter"}
	}
	for _, child := range n.children {
		if child == nil {
			return MalformedQueryError{Reason: "nil filter"}
		}
		if n.op == OpAnd {
			if err := child.initFilter(w, slots, access); err != nil {
				return err
			}
			continue
		}
		// Only the reads of a branch apply to the query as a whole.
		var branch FilteredAccess[ComponentID]
		if err := child.initFilter(w, slots, &branch); err != nil {
			return err
		}
		access.access.Extend(&branch.access)
	}
	return nil
}

func (n *compositeNode) matchesArchetype(a *archetype) bool {
	switch n.op {
	case OpAnd:
		for _, child := range n.children {
			if !child.matchesArchetype(a) {
				return false
			}
		}
		return true

	case OpOr:
		for _, child := range n.children {
			if child.matchesArchetype(a) {
				return true
			}
		}
		return len(n.children) == 0

	case OpNot:
		child := n.children[0]
		return !child.matchesArchetype(a) || child.entityLevel()
	}
	return false
}

func (n *compositeNode) entityLevel() bool {
	for _, child := range n.children {
		if child.entityLevel() {
			return true
		}
	}
	return false
}

func (n *compositeNode) matchesEntity(c *Cursor) bool {
	switch n.op {
	case OpAnd:
		for _, child := range n.children {
			if !child.matchesEntity(c) {
				return false
			}
		}
		return true

	case OpOr:
		for _, child := range n.children {
			if child.matchesArchetype(c.archetype) && child.matchesEntity(c) {
				return true
			}
		}
		return len(n.children) == 0

	case OpNot:
		child := n.children[0]
		return !(child.matchesArchetype(c.archetype) && child.matchesEntity(c))
	}
	return false
}

func (n *compositeNode) resolve(w *World, a *archetype, stores []componentView) {
	for _, child := range n.children {
		child.resolve(w, a, stores)
	}
}

type withNode[T any] struct {
	bits mask.Mask
}

// With matches entities that have T.
func With[T any]() Filter {
	return &withNode[T]{}
}

func (n *withNode[T]) initFilter(w *World, _ *int, access *FilteredAccess[ComponentID]) error {
	info, err := componentInfoFor[T](w)
	if err != nil {
		return err
	}
	n.bits = mask.Mask{}
	n.bits.Mark(uint32(info.id))
	access.AddWith(info.id)
	return nil
}

func (n *withNode[T]) matchesArchetype(a *archetype) bool {
	return a.signature.ContainsAll(n.bits)
}

func (n *withNode[T]) entityLevel() bool { return false }
func (n *withNode[T]) matchesEntity(*Cursor) bool { return true }
func (n *withNode[T]) resolve(*World, *archetype, []componentView) {}

type withoutNode[T any] struct {
	bits mask.Mask
}

// Without matches entities that lack T.
func Without[T any]() Filter {
	return &withoutNode[T]{}
}

func (n *withoutNode[T]) initFilter(w *World, _ *int, access *FilteredAccess[ComponentID]) error {
	info, err := componentInfoFor[T](w)
	if err != nil {
		return err
	}
	n.bits = mask.Mask{}
	n.bits.Mark(uint32(info.id))
	access.AddWithout(info.id)
	return nil
}

func (n *withoutNode[T]) matchesArchetype(a *archetype) bool {
	return a.signature.ContainsNone(n.bits)
}

func (n *withoutNode[T]) entityLevel() bool { return false }
func (n *withoutNode[T]) matchesEntity(*Cursor) bool { return true }
func (n *withoutNode[T]) resolve(*World, *archetype, []componentView) {}

type tickKind uint8

const (
	tickAdded tickKind = iota
	tickChanged
)

type tickNode[T any] struct {
	kind tickKind
	id   ComponentID
	slot int
}

// Added matches entities whose T was added since the running system last ran.
func Added[T any]() Filter {
	return &tickNode[T]{kind: tickAdded}
}

// Changed matches entities whose T was added or mutably accessed since the running
// system last ran.
func Changed[T any]() Filter {
	return &tickNode[T]{kind: tickChanged}
}

func (n *tickNode[T]) initFilter(w *World, slots *int, access *FilteredAccess[ComponentID]) error {
	info, err := componentInfoFor[T](w)
	if err != nil {
		return err
	}
	n.id = info.id
	n.slot = *slots
	*slots++
	access.AddRead(n.id)
	return nil
}

func (n *tickNode[T]) matchesArchetype(a *archetype) bool {
	return a.Contains(n.id)
}

func (n *tickNode[T]) entityLevel() bool {
	return true
}

func (n *tickNode[T]) matchesEntity(c *Cursor) bool {
	ticks := c.stores[n.slot].ticks(c.row, c.entity)
	if n.kind == tickAdded {
		return ticks.IsAdded(c.lastRun, c.thisRun)
	}
	return ticks.IsChanged(c.lastRun, c.thisRun)
}

func (n *tickNode[T]) resolve(w *World, a *archetype, stores []componentView) {
	stores[n.slot] = w.storage(a, n.id)
}
