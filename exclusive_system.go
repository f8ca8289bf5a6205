package depot

import (
	"go.uber.org/zap"
)

var (
	_ ExclusiveSystem = &ExclusiveSystemFn{}
	_ ExclusiveSystem = &ExclusiveSystemCoerced{}
)

// ExclusiveSystemFn runs a function with sole access to the world. It may change
// the world's structure directly.
type ExclusiveSystemFn struct {
	id      SystemID
	name    string
	fn      func(*World)
	lastRun uint32
	hasRun  bool
	logger  *zap.Logger
}

func NewExclusiveSystem(name string, fn func(*World)) *ExclusiveSystemFn {
	return &ExclusiveSystemFn{
		id:      newSystemID(),
		name:    name,
		fn:      fn,
		lastRun: neverRun,
		logger:  zap.NewNop(),
	}
}

func (s *ExclusiveSystemFn) Name() string {
	return s.name
}

func (s *ExclusiveSystemFn) ID() SystemID {
	return s.id
}

func (s *ExclusiveSystemFn) LastRunTick() uint32 {
	return s.lastRun
}

func (s *ExclusiveSystemFn) Initialize(w *World) error {
	s.logger = w.logger.With(zap.String("system", s.name))
	return nil
}

// Run calls the function. While it runs, direct queries and mutable accessors on
// the world compare change ticks against this system's last run.
func (s *ExclusiveSystemFn) Run(w *World) error {
	if w.locked {
		return LockedWorldError{}
	}
	savedLastRun, savedHasRun := w.exclusiveLastRun, w.exclusiveHasRun
	w.exclusiveLastRun, w.exclusiveHasRun = s.lastRun, s.hasRun
	s.fn(w)
	s.lastRun = w.IncrementChangeTick()
	s.hasRun = true
	w.exclusiveLastRun, w.exclusiveHasRun = savedLastRun, savedHasRun
	return nil
}

func (s *ExclusiveSystemFn) CheckChangeTick(current uint32) {
	if s.hasRun && checkTick(&s.lastRun, current) {
		s.logger.Warn("system has not run for a long time, clamped its last run tick",
			zap.Uint32("tick", s.lastRun),
		)
	}
}

// ExclusiveSystemCoerced runs an ordinary system with sole access to the world and
// applies its buffers immediately after.
type ExclusiveSystemCoerced struct {
	system System
}

// Exclusive wraps system so a stage runs it exclusively.
func Exclusive(system System) *ExclusiveSystemCoerced {
	return &ExclusiveSystemCoerced{system: system}
}

func (s *ExclusiveSystemCoerced) Name() string {
	return s.system.Name()
}

func (s *ExclusiveSystemCoerced) ID() SystemID {
	return s.system.ID()
}

func (s *ExclusiveSystemCoerced) Initialize(w *World) error {
	return s.system.Initialize(w)
}

func (s *ExclusiveSystemCoerced) Run(w *World) error {
	if w.locked {
		return LockedWorldError{}
	}
	if err := s.system.Initialize(w); err != nil {
		return err
	}
	s.system.UpdateArchetypes(w)
	if err := s.system.RunUnchecked(w); err != nil {
		return err
	}
	s.system.ApplyBuffers(w)
	return nil
}

func (s *ExclusiveSystemCoerced) CheckChangeTick(current uint32) {
	s.system.CheckChangeTick(current)
}
