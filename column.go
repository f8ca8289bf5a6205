package depot

import "github.com/TheBitDrifter/table"

// componentView is the type-erased face of a column or sparse set. Table-backed
// stores address values by row, sparse sets by entity.
type componentView interface {
	ticks(row int, e Entity) *ComponentTicks
	pointer(row int, e Entity) any
}

type componentStore[T any] interface {
	componentView
	get(row int, e Entity) (*T, *ComponentTicks)
}

type column interface {
	componentView
	write(row int, v any, t ComponentTicks)
	checkTicks(current uint32) int
}

var (
	_ componentStore[struct{}] = &tableColumn[struct{}]{}
	_ column                   = &tableColumn[struct{}]{}
	_ componentStore[struct{}] = &sparseSet[struct{}]{}
	_ sparseStore              = &sparseSet[struct{}]{}
)

// cell is the table element for a table-kind component. Value and ticks share a
// row, so table transfers and deletions keep them aligned.
type cell[T any] struct {
	value T
	ticks ComponentTicks
}

// tableColumn reads one component's cells out of an archetype table.
type tableColumn[T any] struct {
	tbl      table.Table
	accessor table.Accessor[cell[T]]
}

func newTableColumn[T any](et table.ElementType) func(table.Table) column {
	accessor := table.FactoryNewAccessor[cell[T]](et)
	return func(tbl table.Table) column {
		return &tableColumn[T]{tbl: tbl, accessor: accessor}
	}
}

func (c *tableColumn[T]) write(row int, v any, t ComponentTicks) {
	*c.accessor.Get(row, c.tbl) = cell[T]{value: v.(T), ticks: t}
}

func (c *tableColumn[T]) get(row int, _ Entity) (*T, *ComponentTicks) {
	cl := c.accessor.Get(row, c.tbl)
	return &cl.value, &cl.ticks
}

func (c *tableColumn[T]) ticks(row int, _ Entity) *ComponentTicks {
	return &c.accessor.Get(row, c.tbl).ticks
}

func (c *tableColumn[T]) pointer(row int, _ Entity) any {
	return &c.accessor.Get(row, c.tbl).value
}

func (c *tableColumn[T]) checkTicks(current uint32) int {
	clamped := 0
	for row := 0; row < c.tbl.Length(); row++ {
		clamped += c.accessor.Get(row, c.tbl).ticks.check(current)
	}
	return clamped
}

type sparseStore interface {
	componentView
	len() int
	insert(e Entity, v any, t ComponentTicks)
	remove(e Entity) bool
	contains(e Entity) bool
	checkTicks(current uint32) int
}

// sparseSet stores one component type for every entity that has it, regardless of
// archetype. Values stay put when their entity migrates.
type sparseSet[T any] struct {
	sparse   map[uint32]int
	dense    []T
	counters []ComponentTicks
	entities []Entity
}

func newSparseSet[T any]() sparseStore {
	return &sparseSet[T]{sparse: make(map[uint32]int)}
}

func (s *sparseSet[T]) len() int {
	return len(s.dense)
}

// insert overwrites the value when the entity already has one.
func (s *sparseSet[T]) insert(e Entity, v any, t ComponentTicks) {
	if i, ok := s.sparse[e.index]; ok {
		s.dense[i] = v.(T)
		s.counters[i] = t
		s.entities[i] = e
		return
	}
	s.sparse[e.index] = len(s.dense)
	s.dense = append(s.dense, v.(T))
	s.counters = append(s.counters, t)
	s.entities = append(s.entities, e)
}

func (s *sparseSet[T]) remove(e Entity) bool {
	i, ok := s.sparse[e.index]
	if !ok {
		return false
	}
	delete(s.sparse, e.index)
	last := len(s.dense) - 1
	if i != last {
		s.dense[i] = s.dense[last]
		s.counters[i] = s.counters[last]
		s.entities[i] = s.entities[last]
		s.sparse[s.entities[i].index] = i
	}
	var zero T
	s.dense[last] = zero
	s.dense = s.dense[:last]
	s.counters = s.counters[:last]
	s.entities = s.entities[:last]
	return true
}

func (s *sparseSet[T]) contains(e Entity) bool {
	_, ok := s.sparse[e.index]
	return ok
}

func (s *sparseSet[T]) get(_ int, e Entity) (*T, *ComponentTicks) {
	i := s.sparse[e.index]
	return &s.dense[i], &s.counters[i]
}

func (s *sparseSet[T]) ticks(_ int, e Entity) *ComponentTicks {
	return &s.counters[s.sparse[e.index]]
}

func (s *sparseSet[T]) pointer(_ int, e Entity) any {
	return &s.dense[s.sparse[e.index]]
}

func (s *sparseSet[T]) checkTicks(current uint32) int {
	clamped := 0
	for i := range s.counters {
		clamped += s.counters[i].check(current)
	}
	return clamped
}
