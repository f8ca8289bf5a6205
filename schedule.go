package depot

import (
	"fmt"
	"slices"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ExclusivePosition says when in a stage run an exclusive system runs.
type ExclusivePosition int

const (
	ExclusiveAtStart ExclusivePosition = iota
	ExclusiveBeforeCommands
	ExclusiveAtEnd
)

// SystemStage runs a group of systems. A parallel stage runs systems with compatible
// access concurrently; a single-threaded stage runs them one by one. Either way,
// conflicting systems run in the order they were added.
type SystemStage struct {
	parallel  bool
	systems   []System
	exclusive [3][]ExclusiveSystem
}

func newSystemStage(parallel bool) *SystemStage {
	return &SystemStage{parallel: parallel}
}

func (s *SystemStage) AddSystem(system System) *SystemStage {
	s.systems = append(s.systems, system)
	return s
}

func (s *SystemStage) AddExclusiveSystem(system ExclusiveSystem, pos ExclusivePosition) *SystemStage {
	s.exclusive[pos] = append(s.exclusive[pos], system)
	return s
}

func (s *SystemStage) Systems() []System {
	return slices.Clone(s.systems)
}

// Initialize initializes every system not yet initialized. The first error aborts.
func (s *SystemStage) Initialize(w *World) error {
	for _, system := range s.systems {
		if err := system.Initialize(w); err != nil {
			return err
		}
	}
	for _, group := range s.exclusive {
		for _, system := range group {
			if err := system.Initialize(w); err != nil {
				return fmt.Errorf("failed to initialize exclusive system %s: %w", system.Name(), err)
			}
		}
	}
	return nil
}

// Batches groups the stage's systems, in order, into runs of mutually compatible
// systems. Each system joins the current batch unless it conflicts with a member.
func (s *SystemStage) Batches() [][]System {
	var batches [][]System
	var current []System
	var access Access[ArchetypeComponentID]
	for _, system := range s.systems {
		compatible := s.parallel && system.ArchetypeComponentAccess().IsCompatible(&access)
		if len(current) > 0 && !compatible {
			batches = append(batches, current)
			current = nil
			access.Clear()
		}
		current = append(current, system)
		access.Extend(system.ArchetypeComponentAccess())
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches
}

func (s *SystemStage) runExclusive(w *World, pos ExclusivePosition) error {
	for _, system := range s.exclusive[pos] {
		if err := system.Run(w); err != nil {
			return fmt.Errorf("failed to run exclusive system %s: %w", system.Name(), err)
		}
	}
	return nil
}

func runBatch(w *World, batch []System) error {
	if len(batch) == 1 {
		return batch[0].RunUnchecked(w)
	}
	g := errgroup.Group{}
	g.SetLimit(Config.Workers())
	for _, system := range batch {
		g.Go(func() error {
			return system.RunUnchecked(w)
		})
	}
	return g.Wait()
}

// Run runs the stage once: at-start exclusive systems, the parallel phase with the
// world locked, before-commands exclusive systems, every system's buffers in order,
// then at-end exclusive systems. A panicking system is not recovered.
func (s *SystemStage) Run(w *World) error {
	if w.locked {
		return LockedWorldError{}
	}
	if err := s.Initialize(w); err != nil {
		return err
	}
	if err := s.runExclusive(w, ExclusiveAtStart); err != nil {
		return err
	}
	for _, system := range s.systems {
		system.UpdateArchetypes(w)
	}

	batches := s.Batches()
	w.logger.Debug("running stage",
		zap.Int("systems", len(s.systems)),
		zap.Int("batches", len(batches)),
	)
	w.Lock()
	for _, batch := range batches {
		if err := runBatch(w, batch); err != nil {
			w.Unlock()
			return err
		}
	}
	w.Unlock()

	if err := s.runExclusive(w, ExclusiveBeforeCommands); err != nil {
		return err
	}
	for _, system := range s.systems {
		system.ApplyBuffers(w)
	}
	if err := s.runExclusive(w, ExclusiveAtEnd); err != nil {
		return err
	}
	if w.checkTicksDue() {
		s.checkChangeTicks(w)
	}
	return nil
}

func (s *SystemStage) checkChangeTicks(w *World) {
	w.CheckChangeTicks()
	current := w.ChangeTick()
	for _, system := range s.systems {
		system.CheckChangeTick(current)
	}
	for _, group := range s.exclusive {
		for _, system := range group {
			system.CheckChangeTick(current)
		}
	}
}

// Schedule runs labeled stages in a fixed order.
type Schedule struct {
	order  []string
	stages map[string]*SystemStage
}

func newSchedule() *Schedule {
	return &Schedule{stages: make(map[string]*SystemStage)}
}

func (s *Schedule) insert(at int, label string, stage *SystemStage) error {
	if _, ok := s.stages[label]; ok {
		return StageExistsError{Label: label}
	}
	s.stages[label] = stage
	s.order = slices.Insert(s.order, at, label)
	return nil
}

func (s *Schedule) indexOf(label string) (int, error) {
	i := slices.Index(s.order, label)
	if i < 0 {
		return -1, StageNotFoundError{Label: label}
	}
	return i, nil
}

// AddStage appends stage under label.
func (s *Schedule) AddStage(label string, stage *SystemStage) error {
	return s.insert(len(s.order), label, stage)
}

func (s *Schedule) AddStageAfter(target, label string, stage *SystemStage) error {
	i, err := s.indexOf(target)
	if err != nil {
		return err
	}
	return s.insert(i+1, label, stage)
}

func (s *Schedule) AddStageBefore(target, label string, stage *SystemStage) error {
	i, err := s.indexOf(target)
	if err != nil {
		return err
	}
	return s.insert(i, label, stage)
}

func (s *Schedule) AddSystemToStage(label string, system System) error {
	stage, ok := s.stages[label]
	if !ok {
		return StageNotFoundError{Label: label}
	}
	stage.AddSystem(system)
	return nil
}

func (s *Schedule) Stage(label string) (*SystemStage, bool) {
	stage, ok := s.stages[label]
	return stage, ok
}

// Labels returns the stage labels in run order.
func (s *Schedule) Labels() []string {
	return slices.Clone(s.order)
}

func (s *Schedule) Initialize(w *World) error {
	for _, label := range s.order {
		if err := s.stages[label].Initialize(w); err != nil {
			return fmt.Errorf("failed to initialize stage %s: %w", label, err)
		}
	}
	return nil
}

// Run runs every stage in order and stops at the first error.
func (s *Schedule) Run(w *World) error {
	for _, label := range s.order {
		if err := s.stages[label].Run(w); err != nil {
			return fmt.Errorf("failed to run stage %s: %w", label, err)
		}
	}
	return nil
}
