package depot

import (
	"fmt"
	"slices"

	"github.com/TheBitDrifter/mask"
	"github.com/TheBitDrifter/table"
	"go.uber.org/zap"
)

type archetypeID uint32

// ArchetypeComponentID identifies one component type within one archetype. Resources
// get one as well. Two systems touching the same component type in disjoint
// archetypes never share one.
type ArchetypeComponentID uint32

const emptyArchetype archetypeID = 0

// Every archetype table carries an entity row next to its component cells, so even
// the empty archetype has an element type and transfers always share one.
var (
	entityElementType = table.FactoryNewElementType[Entity]()
	entityAccessor    = table.FactoryNewAccessor[Entity](entityElementType)
)

type archetype struct {
	id         archetypeID
	signature  mask.Mask
	components []ComponentID
	table      table.Table
	columns    map[ComponentID]column
	sparse     []ComponentID

	componentIDs map[ComponentID]ArchetypeComponentID
}

func newArchetype(w *World, id archetypeID, signature mask.Mask, components []ComponentID) (*archetype, error) {
	elementTypes := []table.ElementType{entityElementType}
	for _, cid := range components {
		if info := w.components.info(cid); info.kind == TableStorage {
			elementTypes = append(elementTypes, info.elementType)
		}
	}
	tbl, err := table.NewTableBuilder().
		WithSchema(w.schema).
		WithEntryIndex(w.entities.index).
		WithElementTypes(elementTypes...).
		WithEvents(Config.TableEvents()).
		Build()
	if err != nil {
		return nil, err
	}
	created := &archetype{
		id:           id,
		signature:    signature,
		components:   components,
		table:        tbl,
		columns:      make(map[ComponentID]column),
		componentIDs: make(map[ComponentID]ArchetypeComponentID),
	}
	for _, cid := range components {
		info := w.components.info(cid)
		created.componentIDs[cid] = w.archetypes.newArchetypeComponentID()
		switch info.kind {
		case TableStorage:
			created.columns[cid] = info.newColumn(tbl)
		case SparseSetStorage:
			created.sparse = append(created.sparse, cid)
		}
	}
	return created, nil
}

func (a *archetype) ID() uint32 {
	return uint32(a.id)
}

// Components returns the archetype's component ids in ascending order.
func (a *archetype) Components() []ComponentID {
	return slices.Clone(a.components)
}

func (a *archetype) Entities() []Entity {
	entities := make([]Entity, a.Len())
	for row := range entities {
		entities[row] = a.entityAt(row)
	}
	return entities
}

func (a *archetype) Len() int {
	return a.table.Length()
}

// Table returns the table holding the archetype's rows.
func (a *archetype) Table() table.Table {
	return a.table
}

func (a *archetype) Contains(id ComponentID) bool {
	_, ok := a.componentIDs[id]
	return ok
}

func (a *archetype) ArchetypeComponentID(id ComponentID) (ArchetypeComponentID, bool) {
	acid, ok := a.componentIDs[id]
	return acid, ok
}

func (a *archetype) entityAt(row int) Entity {
	return *entityAccessor.Get(row, a.table)
}

func (a *archetype) checkTicks(current uint32) int {
	clamped := 0
	for _, col := range a.columns {
		clamped += col.checkTicks(current)
	}
	return clamped
}

type archetypes struct {
	asSlice          []*archetype
	idsGroupedByMask map[mask.Mask]archetypeID
	nextComponentID  ArchetypeComponentID
}

func newArchetypes() *archetypes {
	return &archetypes{
		idsGroupedByMask: make(map[mask.Mask]archetypeID),
	}
}

func (as *archetypes) get(id archetypeID) *archetype {
	return as.asSlice[id]
}

// generation grows by one each time an archetype is created. Query states remember
// the generation they last saw.
func (as *archetypes) generation() int {
	return len(as.asSlice)
}

func (as *archetypes) newArchetypeComponentID() ArchetypeComponentID {
	id := as.nextComponentID
	as.nextComponentID++
	return id
}

func signatureOf(ids []ComponentID) mask.Mask {
	var m mask.Mask
	for _, id := range ids {
		m.Mark(uint32(id))
	}
	return m
}

// archetypeFor returns the archetype holding exactly ids, creating it on first use.
func (w *World) archetypeFor(ids []ComponentID) (*archetype, error) {
	signature := signatureOf(ids)
	if id, ok := w.archetypes.idsGroupedByMask[signature]; ok {
		return w.archetypes.get(id), nil
	}
	components := slices.Clone(ids)
	slices.Sort(components)
	components = slices.Compact(components)

	created, err := newArchetype(w, archetypeID(len(w.archetypes.asSlice)), signature, components)
	if err != nil {
		return nil, fmt.Errorf("failed to create archetype: %w", err)
	}
	w.archetypes.asSlice = append(w.archetypes.asSlice, created)
	w.archetypes.idsGroupedByMask[signature] = created.id
	w.logger.Debug("archetype created",
		zap.Uint32("archetype", uint32(created.id)),
		zap.Int("components", len(created.components)),
	)
	return created, nil
}
