package depot

import "iter"

// Storage is the structural surface of a World.
type Storage interface {
	Spawn(...ComponentValue) (Entity, error)
	Insert(Entity, ...ComponentValue) error
	Remove(Entity, ...ComponentID) error
	Despawn(Entity) error
	Contains(Entity) bool
	Len() int
	Archetypes() []Archetype
	ArchetypeSeq() iter.Seq[Archetype]
	ArchetypeOf(Entity) (Archetype, bool)
	ChangeTick() uint32
	Locked() bool
	Lock()
	Unlock()
}

type Archetype interface {
	ID() uint32
	Components() []ComponentID
	Entities() []Entity
	Len() int
	Contains(ComponentID) bool
	ArchetypeComponentID(ComponentID) (ArchetypeComponentID, bool)
}

// System is a schedulable unit with a declared access footprint.
type System interface {
	Name() string
	ID() SystemID
	State() SystemState
	Initialize(*World) error
	UpdateArchetypes(*World)
	ComponentAccess() *Access[ComponentID]
	ArchetypeComponentAccess() *Access[ArchetypeComponentID]
	RunUnchecked(*World) error
	Run(*World) error
	ApplyBuffers(*World)
	CheckChangeTick(current uint32)
	LastRunTick() uint32
}

// ExclusiveSystem runs with sole access to the world.
type ExclusiveSystem interface {
	Name() string
	ID() SystemID
	Initialize(*World) error
	Run(*World) error
	CheckChangeTick(current uint32)
}

type iCursor interface {
	Next() bool
	Entity() Entity
	Reset()
}

type iQuery interface {
	ForEach(func(*Cursor))
	Iter() iter.Seq[*Cursor]
	ParForEach(batchSize int, fn func(*Cursor) error) error
	Get(Entity) (*Cursor, error)
	Count() int
	IsEmpty() bool
}

type Cache[T any] interface {
	GetIndex(string) (int, bool)
	GetItem(int) *T
	GetItem32(uint32) *T
	Register(string, T) (int, error)
	Keys() []string
}

// Cursor walks the entities a query matches. Terms read the current entity's values
// from it. A cursor is not safe for concurrent use; parallel iteration gives each
// goroutine its own.
type Cursor struct {
	state   *QueryState
	world   *World
	lastRun uint32
	thisRun uint32

	spans     []span
	spanIndex int

	archetype *archetype
	row       int
	end       int
	entity    Entity

	// Resolved stores for the current archetype, one per term and tick filter.
	stores []componentView
}

type SimpleCache[T any] struct {
	items       []T
	keys        []string
	itemIndices map[string]int
	maxCapacity int
}
