/*
Package depot provides an archetype-based Entity-Component-System (ECS) runtime with
change detection and a parallel system scheduler.

Entities that hold the same set of component types share an archetype, which stores
each table component in its own dense column. Components registered with
SparseSetStorage live in one set per type instead, so adding and removing them never
moves values.

Core Concepts:

  - Entity: A generation-checked handle to a group of components.
  - Component: Any Go value type, identified per world by a ComponentID.
  - Archetype: The entities sharing one exact set of component types.
  - Query: A shape of terms (Read, Write, Optional, TicksOf) plus filters (With,
    Without, Added, Changed, composed with And, Or and Not).
  - System: A function plus the parameters it declares (queries, resources, commands,
    locals). Declared access is checked once, when the system is initialized.
  - Stage: Runs systems whose access does not conflict in parallel and applies their
    command buffers afterwards.

Every component value carries the tick at which it was added and last changed. A
Changed or Added filter compares those ticks with the tick of the system's previous
run, using wrapping arithmetic, so the counter never needs resetting.

Basic Usage:

	world := depot.Factory.NewWorld()
	world.Spawn(depot.Value(Position{}), depot.Value(Velocity{X: 1}))

	pos := depot.Write[Position]()
	vel := depot.Read[Velocity]()
	movement := depot.NewSystem1("movement",
		depot.NewQuery(depot.Shape(pos, vel)),
		func(q *depot.Query) {
			q.ForEach(func(c *depot.Cursor) {
				p := pos.Get(c).Get()
				p.X += vel.Get(c).X
			})
		},
	)

	stage := depot.Factory.NewParallelStage().AddSystem(movement)
	if err := stage.Run(world); err != nil {
		// handle
	}

Methods and functions named *Unchecked* skip access checking. Their callers, usually
a stage, must guarantee that nothing else touches the same data at the same time.
*/
package depot
