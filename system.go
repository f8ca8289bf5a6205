package depot

import (
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type SystemState int

const (
	SystemUnregistered SystemState = iota
	SystemInitialized
	SystemRunnable
)

func (s SystemState) String() string {
	switch s {
	case SystemUnregistered:
		return "unregistered"
	case SystemInitialized:
		return "initialized"
	case SystemRunnable:
		return "runnable"
	}
	return "unknown"
}

var _ System = &FunctionSystem{}

// FunctionSystem runs a callback over a fixed list of parameters.
type FunctionSystem struct {
	meta    SystemMeta
	params  []SystemParam
	fn      func()
	state   SystemState
	worldID uuid.UUID
	logger  *zap.Logger
}

// NewSystem builds a system calling fn with params. fn captures the parameters it
// uses; params only declares them.
func NewSystem(name string, fn func(), params ...SystemParam) *FunctionSystem {
	return &FunctionSystem{
		meta:   newSystemMeta(name),
		params: params,
		fn:     fn,
		logger: zap.NewNop(),
	}
}

func NewSystem1[P1 SystemParam](name string, p1 P1, fn func(P1)) *FunctionSystem {
	return NewSystem(name, func() { fn(p1) }, p1)
}

func NewSystem2[P1, P2 SystemParam](name string, p1 P1, p2 P2, fn func(P1, P2)) *FunctionSystem {
	return NewSystem(name, func() { fn(p1, p2) }, p1, p2)
}

func NewSystem3[P1, P2, P3 SystemParam](name string, p1 P1, p2 P2, p3 P3, fn func(P1, P2, P3)) *FunctionSystem {
	return NewSystem(name, func() { fn(p1, p2, p3) }, p1, p2, p3)
}

func NewSystem4[P1, P2, P3, P4 SystemParam](name string, p1 P1, p2 P2, p3 P3, p4 P4, fn func(P1, P2, P3, P4)) *FunctionSystem {
	return NewSystem(name, func() { fn(p1, p2, p3, p4) }, p1, p2, p3, p4)
}

func (s *FunctionSystem) Name() string {
	return s.meta.name
}

func (s *FunctionSystem) ID() SystemID {
	return s.meta.id
}

func (s *FunctionSystem) State() SystemState {
	return s.state
}

func (s *FunctionSystem) LastRunTick() uint32 {
	return s.meta.lastRun
}

// ComponentAccess is the union of every parameter's component and resource access.
func (s *FunctionSystem) ComponentAccess() *Access[ComponentID] {
	return s.meta.componentAccessSet.CombinedAccess()
}

// ArchetypeComponentAccess is the access the scheduler compares between systems.
// It grows as UpdateArchetypes sees new archetypes.
func (s *FunctionSystem) ArchetypeComponentAccess() *Access[ArchetypeComponentID] {
	return &s.meta.archetypeComponentAccess
}

// Initialize binds the system's parameters to w and checks them against each other.
// An error leaves the system unusable.
func (s *FunctionSystem) Initialize(w *World) error {
	if s.state != SystemUnregistered {
		if s.worldID != w.id {
			return WorldMismatchError{Expected: s.worldID, Got: w.id}
		}
		return nil
	}
	for _, p := range s.params {
		if p == nil {
			return fmt.Errorf("failed to initialize system %s: %w", s.meta.name, MalformedQueryError{Reason: "nil parameter"})
		}
		if err := p.initParam(w, &s.meta); err != nil {
			return fmt.Errorf("failed to initialize system %s: %w", s.meta.name, err)
		}
	}
	s.worldID = w.id
	s.logger = w.logger.With(zap.String("system", s.meta.name))
	s.state = SystemInitialized
	return nil
}

func (s *FunctionSystem) validateWorld(w *World) {
	if w.id != s.worldID {
		panic(WorldMismatchError{Expected: s.worldID, Got: w.id})
	}
}

// UpdateArchetypes extends the system's archetype-component access with archetypes
// created since the last call.
func (s *FunctionSystem) UpdateArchetypes(w *World) {
	s.validateWorld(w)
	for _, p := range s.params {
		p.updateArchetypes(w, &s.meta)
	}
}

// RunUnchecked runs the system without applying its buffers. The caller guarantees
// nothing running concurrently conflicts with ArchetypeComponentAccess, and that
// UpdateArchetypes has been called since the last structural change.
func (s *FunctionSystem) RunUnchecked(w *World) error {
	if s.state == SystemUnregistered {
		return SystemStateError{System: s.meta.name, State: s.state}
	}
	s.validateWorld(w)
	thisRun := w.IncrementChangeTick()
	for _, p := range s.params {
		p.fetch(w, &s.meta, thisRun)
	}
	s.fn()
	s.meta.lastRun = thisRun
	s.meta.hasRun = true
	s.state = SystemRunnable
	return nil
}

// Run initializes the system if needed, runs it and applies its buffers. The world
// must be unlocked.
func (s *FunctionSystem) Run(w *World) error {
	if w.locked {
		return LockedWorldError{}
	}
	if err := s.Initialize(w); err != nil {
		return err
	}
	s.UpdateArchetypes(w)
	if err := s.RunUnchecked(w); err != nil {
		return err
	}
	s.ApplyBuffers(w)
	return nil
}

// ApplyBuffers applies deferred parameter state, such as commands, to w.
func (s *FunctionSystem) ApplyBuffers(w *World) {
	for _, p := range s.params {
		p.apply(w)
	}
}

// CheckChangeTick clamps the system's last-run tick when it falls MaxChangeAge
// behind current.
func (s *FunctionSystem) CheckChangeTick(current uint32) {
	if s.meta.hasRun && checkTick(&s.meta.lastRun, current) {
		s.logger.Warn("system has not run for a long time, clamped its last run tick",
			zap.Uint32("tick", s.meta.lastRun),
		)
	}
}
