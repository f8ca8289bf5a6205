package depot

import (
	"fmt"
	"iter"
	"slices"
	"sync/atomic"

	"github.com/TheBitDrifter/table"
	iter_util "github.com/TheBitDrifter/util/iter"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// World owns every entity, component value and resource, along with the tick
// counter used for change detection.
//
// A World is not safe for concurrent use by itself. Systems that run in parallel
// rely on their declared access being disjoint, and structural changes are only
// allowed while the world is unlocked.
type World struct {
	id         uuid.UUID
	schema     table.Schema
	components *componentRegistry
	entities   entityAllocator
	archetypes *archetypes
	sparseSets map[ComponentID]sparseStore
	resources  map[ComponentID]*resourceData

	changeTick       atomic.Uint32
	lastCheckTick    uint32
	exclusiveLastRun uint32
	exclusiveHasRun  bool

	locked bool
	logger *zap.Logger
}

var _ Storage = &World{}

func newWorld() *World {
	w := &World{
		id:               uuid.New(),
		schema:           table.Factory.NewSchema(),
		components:       newComponentRegistry(),
		archetypes:       newArchetypes(),
		sparseSets:       make(map[ComponentID]sparseStore),
		resources:        make(map[ComponentID]*resourceData),
		exclusiveLastRun: neverRun,
	}
	w.entities.index = table.Factory.NewEntryIndex()
	w.changeTick.Store(1)
	w.logger = Config.Logger().With(zap.Stringer("world", w.id))
	if _, err := w.archetypeFor(nil); err != nil {
		panic(err)
	}
	return w
}

func (w *World) ID() uuid.UUID {
	return w.id
}

// Len returns the number of live entities.
func (w *World) Len() int {
	return w.entities.len()
}

func (w *World) Contains(e Entity) bool {
	return w.entities.contains(e)
}

// ChangeTick returns the current world tick.
func (w *World) ChangeTick() uint32 {
	return w.changeTick.Load()
}

// IncrementChangeTick advances the world tick and returns its previous value.
func (w *World) IncrementChangeTick() uint32 {
	return w.changeTick.Add(1) - 1
}

// directLastRun is the last-run tick seen by direct queries and accessors: the
// running exclusive system's, or one past thisRun outside of one that has run.
func (w *World) directLastRun(thisRun uint32) uint32 {
	if !w.exclusiveHasRun {
		return thisRun + 1
	}
	return w.exclusiveLastRun
}

func (w *World) Locked() bool {
	return w.locked
}

func (w *World) Lock() {
	w.locked = true
}

func (w *World) Unlock() {
	w.locked = false
}

// ArchetypeSeq yields every archetype in creation order, starting with the empty
// one. Archetypes created while the sequence is consumed are yielded as well.
func (w *World) ArchetypeSeq() iter.Seq[Archetype] {
	return func(yield func(Archetype) bool) {
		for i := 0; i < len(w.archetypes.asSlice); i++ {
			if !yield(w.archetypes.asSlice[i]) {
				return
			}
		}
	}
}

// Archetypes returns every archetype in creation order, starting with the empty one.
func (w *World) Archetypes() []Archetype {
	return iter_util.Collect(w.ArchetypeSeq())
}

func (w *World) ArchetypeOf(e Entity) (Archetype, bool) {
	loc, ok := w.entities.location(e)
	if !ok {
		return nil, false
	}
	return w.archetypes.get(loc.archetype), true
}

// Spawn creates an entity holding values.
func (w *World) Spawn(values ...ComponentValue) (Entity, error) {
	if w.locked {
		return Entity{}, LockedWorldError{}
	}
	bundle, err := w.resolveBundle(values)
	if err != nil {
		return Entity{}, err
	}
	ids := make([]ComponentID, len(bundle))
	for i, entry := range bundle {
		ids[i] = entry.info.id
	}
	dst, err := w.archetypeFor(ids)
	if err != nil {
		return Entity{}, err
	}
	entries, err := dst.table.NewEntries(1)
	if err != nil {
		return Entity{}, fmt.Errorf("failed to create entity: %w", err)
	}
	e := w.entities.alloc()
	w.entities.place(e.index, dst.id, entries[0])
	row := entries[0].Index()
	*entityAccessor.Get(row, dst.table) = e
	w.writeBundle(e, dst, row, bundle)
	return e, nil
}

// Insert adds values to e, replacing values of types it already holds. When e
// already has every type the values are written in place, otherwise e moves to the
// archetype for the union. Every written value is stamped with the current tick as
// both added and changed.
func (w *World) Insert(e Entity, values ...ComponentValue) error {
	if w.locked {
		return LockedWorldError{}
	}
	loc, ok := w.entities.location(e)
	if !ok {
		return NoSuchEntityError{Entity: e}
	}
	bundle, err := w.resolveBundle(values)
	if err != nil {
		return err
	}
	src := w.archetypes.get(loc.archetype)
	target := src.components
	grown := false
	for _, entry := range bundle {
		if src.Contains(entry.info.id) {
			continue
		}
		if !grown {
			target = slices.Clone(src.components)
			grown = true
		}
		target = append(target, entry.info.id)
	}
	dst, row := src, loc.row
	if grown {
		if dst, err = w.archetypeFor(target); err != nil {
			return err
		}
		if row, err = w.moveEntity(e, loc, dst); err != nil {
			return err
		}
	}
	w.writeBundle(e, dst, row, bundle)
	return nil
}

type bundleEntry struct {
	info  *ComponentInfo
	value any
}

// resolveBundle registers unknown types and drops all but the last value per type.
func (w *World) resolveBundle(values []ComponentValue) ([]bundleEntry, error) {
	bundle := make([]bundleEntry, 0, len(values))
	seen := make(map[ComponentID]int, len(values))
	for _, v := range values {
		if v == nil {
			continue
		}
		info, err := v.componentInfo(w)
		if err != nil {
			return nil, err
		}
		if i, ok := seen[info.id]; ok {
			bundle[i].value = v.value()
			continue
		}
		seen[info.id] = len(bundle)
		bundle = append(bundle, bundleEntry{info: info, value: v.value()})
	}
	return bundle, nil
}

func (w *World) writeBundle(e Entity, dst *archetype, row int, bundle []bundleEntry) {
	ticks := newComponentTicks(w.ChangeTick())
	for _, entry := range bundle {
		if entry.info.kind == SparseSetStorage {
			w.sparseSetFor(entry.info).insert(e, entry.value, ticks)
			continue
		}
		dst.columns[entry.info.id].write(row, entry.value, ticks)
	}
}

// moveEntity transfers e's row to dst. Cells of types dst lacks are dropped and
// cells new to e are zero until the caller writes them. It returns e's row in dst.
func (w *World) moveEntity(e Entity, loc entityLocation, dst *archetype) (int, error) {
	src := w.archetypes.get(loc.archetype)
	if err := src.table.TransferEntries(dst.table, loc.row); err != nil {
		return 0, fmt.Errorf("failed to transfer entity %s: %w", e, err)
	}
	row := dst.table.Length() - 1
	entry, err := dst.table.Entry(row)
	if err != nil {
		return 0, fmt.Errorf("failed to transfer entity %s: %w", e, err)
	}
	w.entities.place(e.index, dst.id, entry)
	return row, nil
}

// Remove drops the components ids from e. Ids e does not hold are ignored.
func (w *World) Remove(e Entity, ids ...ComponentID) error {
	if w.locked {
		return LockedWorldError{}
	}
	loc, ok := w.entities.location(e)
	if !ok {
		return NoSuchEntityError{Entity: e}
	}
	src := w.archetypes.get(loc.archetype)
	target := make([]ComponentID, 0, len(src.components))
	for _, id := range src.components {
		if !slices.Contains(ids, id) {
			target = append(target, id)
		}
	}
	if len(target) == len(src.components) {
		return nil
	}
	dst, err := w.archetypeFor(target)
	if err != nil {
		return err
	}
	if _, err := w.moveEntity(e, loc, dst); err != nil {
		return err
	}
	for _, id := range src.sparse {
		if slices.Contains(ids, id) {
			w.sparseSets[id].remove(e)
		}
	}
	return nil
}

// Remove drops T from e. It is a no-op if e does not hold T.
func Remove[T any](w *World, e Entity) error {
	id, ok := ComponentIDFor[T](w)
	if !ok {
		return w.Remove(e)
	}
	return w.Remove(e, id)
}

// Despawn removes e and every component value it holds.
func (w *World) Despawn(e Entity) error {
	if w.locked {
		return LockedWorldError{}
	}
	loc, ok := w.entities.location(e)
	if !ok {
		return NoSuchEntityError{Entity: e}
	}
	arch := w.archetypes.get(loc.archetype)
	if _, err := arch.table.DeleteEntries(loc.row); err != nil {
		return fmt.Errorf("failed to despawn entity %s: %w", e, err)
	}
	for _, id := range arch.sparse {
		w.sparseSets[id].remove(e)
	}
	w.entities.release(e)
	return nil
}

func (w *World) sparseSetFor(info *ComponentInfo) sparseStore {
	set, ok := w.sparseSets[info.id]
	if !ok {
		set = info.newSparse()
		w.sparseSets[info.id] = set
	}
	return set
}

// storage returns the store holding id's values for entities of a, or nil when a
// lacks id.
func (w *World) storage(a *archetype, id ComponentID) componentView {
	if col, ok := a.columns[id]; ok {
		return col
	}
	if !a.Contains(id) {
		return nil
	}
	return w.sparseSets[id]
}

func lookup[T any](w *World, e Entity) (*T, *ComponentTicks, error) {
	loc, ok := w.entities.location(e)
	if !ok {
		return nil, nil, NoSuchEntityError{Entity: e}
	}
	id, ok := ComponentIDFor[T](w)
	arch := w.archetypes.get(loc.archetype)
	if !ok || !arch.Contains(id) {
		return nil, nil, MissingComponentError{Entity: e, Component: typeName[T]()}
	}
	v, ticks := w.storage(arch, id).(componentStore[T]).get(loc.row, e)
	return v, ticks, nil
}

// Get returns e's T value.
func Get[T any](w *World, e Entity) (*T, error) {
	v, _, err := lookup[T](w, e)
	return v, err
}

// GetMut returns a change-marking handle to e's T value. The world must be unlocked.
func GetMut[T any](w *World, e Entity) (Mut[T], error) {
	if w.locked {
		return Mut[T]{}, LockedWorldError{}
	}
	return GetUncheckedMut[T](w, e)
}

// GetUncheckedMut is GetMut without the lock check. The caller guarantees nothing
// else reads or writes e's T concurrently.
func GetUncheckedMut[T any](w *World, e Entity) (Mut[T], error) {
	v, ticks, err := lookup[T](w, e)
	if err != nil {
		return Mut[T]{}, err
	}
	thisRun := w.ChangeTick()
	return Mut[T]{value: v, ticks: ticks, lastRun: w.directLastRun(thisRun), thisRun: thisRun}, nil
}

func Has[T any](w *World, e Entity) bool {
	_, _, err := lookup[T](w, e)
	return err == nil
}

// CheckChangeTicks clamps every component and resource tick older than
// MaxChangeAge. Stages call it periodically.
func (w *World) CheckChangeTicks() {
	current := w.ChangeTick()
	clamped := 0
	for _, a := range w.archetypes.asSlice {
		clamped += a.checkTicks(current)
	}
	for _, set := range w.sparseSets {
		clamped += set.checkTicks(current)
	}
	for _, res := range w.resources {
		clamped += res.ticks.check(current)
	}
	w.lastCheckTick = current
	if clamped > 0 {
		w.logger.Debug("clamped component ticks", zap.Int("count", clamped), zap.Uint32("tick", current))
	}
}

func (w *World) checkTicksDue() bool {
	return w.ChangeTick()-w.lastCheckTick >= Config.CheckTickThreshold()
}
