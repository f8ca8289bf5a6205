package depot

import "github.com/google/uuid"

// SystemParam is a value a system receives on each run. Parameters declare their
// access when the system is initialized and are refreshed before every run.
//
// Implementations: *Query, *Commands, *Res, *ResMut and *Local. A parameter binds to
// exactly one system.
type SystemParam interface {
	initParam(w *World, meta *SystemMeta) error
	updateArchetypes(w *World, meta *SystemMeta)
	fetch(w *World, meta *SystemMeta, thisRun uint32)
	apply(w *World)
}

type SystemID uuid.UUID

func newSystemID() SystemID {
	return SystemID(uuid.New())
}

func (id SystemID) String() string {
	return uuid.UUID(id).String()
}

// SystemMeta is the bookkeeping every system carries: identity, declared access
// and the tick of its last run.
type SystemMeta struct {
	id   SystemID
	name string

	componentAccessSet       FilteredAccessSet[ComponentID]
	archetypeComponentAccess Access[ArchetypeComponentID]

	lastRun uint32
	hasRun  bool
}

// lastRunFor returns the tick change filters compare against at thisRun. Before the
// first run it is one past thisRun, so every tick reads as newer.
func (m *SystemMeta) lastRunFor(thisRun uint32) uint32 {
	if !m.hasRun {
		return thisRun + 1
	}
	return m.lastRun
}

func newSystemMeta(name string) SystemMeta {
	return SystemMeta{
		id:      newSystemID(),
		name:    name,
		lastRun: neverRun,
	}
}
