package depot

import (
	"fmt"

	"github.com/TheBitDrifter/table"
)

// Entity is a stable handle to a group of components stored in a World.
//
// The index addresses a slot in the world's entity table and the generation
// invalidates handles whose slot has since been freed and reused. Two live handles
// with the same index always share the same generation.
type Entity struct {
	index      uint32
	generation uint32
}

// Index returns the entity's slot index.
func (e Entity) Index() uint32 {
	return e.index
}

// Generation returns the entity's slot generation.
func (e Entity) Generation() uint32 {
	return e.generation
}

// Bits packs the entity into a single uint64, generation in the high half.
func (e Entity) Bits() uint64 {
	return uint64(e.generation)<<32 | uint64(e.index)
}

// EntityFromBits is the inverse of Entity.Bits.
func EntityFromBits(bits uint64) Entity {
	return Entity{
		index:      uint32(bits),
		generation: uint32(bits >> 32),
	}
}

func (e Entity) String() string {
	return fmt.Sprintf("%dv%d", e.index, e.generation)
}

type entityLocation struct {
	archetype archetypeID
	row       int
}

// entityMeta ties a handle to its table entry. The entry index keeps the entry's
// row current as tables swap rows around. Transfers between tables issue a fresh
// entry, so the entry id is replaced whenever the entity migrates.
type entityMeta struct {
	generation uint32
	alive      bool
	archetype  archetypeID
	entry      table.EntryID
}

// entityAllocator issues entity handles and recycles freed indices.
type entityAllocator struct {
	metas []entityMeta
	free  []uint32
	live  int
	index table.EntryIndex
}

func (a *entityAllocator) alloc() Entity {
	a.live++
	if n := len(a.free); n > 0 {
		index := a.free[n-1]
		a.free = a.free[:n-1]
		meta := &a.metas[index]
		meta.alive = true
		return Entity{index: index, generation: meta.generation}
	}
	index := uint32(len(a.metas))
	a.metas = append(a.metas, entityMeta{alive: true})
	return Entity{index: index}
}

// release frees the entity's slot. The slot's generation is bumped so the handle
// and every copy of it become stale.
func (a *entityAllocator) release(e Entity) bool {
	if !a.contains(e) {
		return false
	}
	meta := &a.metas[e.index]
	meta.alive = false
	meta.generation++
	meta.archetype = emptyArchetype
	meta.entry = 0
	a.free = append(a.free, e.index)
	a.live--
	return true
}

func (a *entityAllocator) contains(e Entity) bool {
	if int(e.index) >= len(a.metas) {
		return false
	}
	meta := a.metas[e.index]
	return meta.alive && meta.generation == e.generation
}

func (a *entityAllocator) location(e Entity) (entityLocation, bool) {
	if !a.contains(e) || a.index == nil {
		return entityLocation{}, false
	}
	meta := a.metas[e.index]
	entry, err := a.index.Entry(int(meta.entry) - 1)
	if err != nil {
		return entityLocation{}, false
	}
	return entityLocation{archetype: meta.archetype, row: entry.Index()}, true
}

func (a *entityAllocator) place(index uint32, arch archetypeID, entry table.Entry) {
	meta := &a.metas[index]
	meta.archetype = arch
	meta.entry = entry.ID()
}

func (a *entityAllocator) len() int {
	return a.live
}
