package depot

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func doubleA() *FunctionSystem {
	a := Write[A]()
	return NewSystem1("double a", NewQuery(Shape(a)), func(q *Query) {
		q.ForEach(func(c *Cursor) { a.Get(c).Get().V *= 2 })
	})
}

func incrementA() *FunctionSystem {
	a := Write[A]()
	return NewSystem1("increment a", NewQuery(Shape(a)), func(q *Query) {
		q.ForEach(func(c *Cursor) { a.Get(c).Get().V++ })
	})
}

func addToB(n int) *FunctionSystem {
	b := Write[B]()
	return NewSystem1("add to b", NewQuery(Shape(b)), func(q *Query) {
		q.ForEach(func(c *Cursor) { b.Get(c).Get().V += n })
	})
}

func TestDisjointSystemsAreOrderIndependent(t *testing.T) {
	run := func(t *testing.T, first, second *FunctionSystem) (int, int) {
		w := Factory.NewWorld()
		e, err := w.Spawn(Value(A{V: 3}), Value(B{V: 4}))
		require.NoError(t, err)

		stage := Factory.NewParallelStage().AddSystem(first).AddSystem(second)
		require.NoError(t, stage.Run(w))
		require.Len(t, stage.Batches(), 1)

		a, err := Get[A](w, e)
		require.NoError(t, err)
		b, err := Get[B](w, e)
		require.NoError(t, err)
		return a.V, b.V
	}

	a1, b1 := run(t, doubleA(), addToB(10))
	a2, b2 := run(t, addToB(10), doubleA())
	require.Equal(t, 6, a1)
	require.Equal(t, 14, b1)
	require.Equal(t, a1, a2)
	require.Equal(t, b1, b2)
}

func TestConflictingSystemsRunInInsertionOrder(t *testing.T) {
	tests := []struct {
		name   string
		stage  func() *SystemStage
		first  func() *FunctionSystem
		second func() *FunctionSystem
		want   int
	}{
		{"double then increment", Factory.NewParallelStage, doubleA, incrementA, 3},
		{"increment then double", Factory.NewParallelStage, incrementA, doubleA, 4},
		{"single threaded", Factory.NewSingleThreadedStage, doubleA, incrementA, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := Factory.NewWorld()
			e, err := w.Spawn(Value(A{V: 1}))
			require.NoError(t, err)

			stage := tt.stage().AddSystem(tt.first()).AddSystem(tt.second())
			require.NoError(t, stage.Run(w))
			require.Len(t, stage.Batches(), 2)

			a, err := Get[A](w, e)
			require.NoError(t, err)
			require.Equal(t, tt.want, a.V)
		})
	}
}

func TestCommandsApplyAfterRun(t *testing.T) {
	w := Factory.NewWorld()
	e, err := w.Spawn(Value(A{V: 1}))
	require.NoError(t, err)

	var lenDuringRun int
	var hadBDuringRun bool
	sys := NewSystem2("spawner", NewQuery(Shape(Read[A]())), Factory.NewCommands(),
		func(q *Query, cmds *Commands) {
			q.ForEach(func(c *Cursor) {
				cmds.Insert(c.Entity(), Value(B{V: 2}))
				cmds.Spawn(Value(A{V: 5}))
			})
			lenDuringRun = w.Len()
			hadBDuringRun = Has[B](w, e)
		},
	)
	require.NoError(t, sys.Run(w))

	require.Equal(t, 1, lenDuringRun)
	require.False(t, hadBDuringRun)
	require.Equal(t, 2, w.Len())
	b, err := Get[B](w, e)
	require.NoError(t, err)
	require.Equal(t, 2, b.V)
}

func TestSystemInitializeRejectsConflicts(t *testing.T) {
	tests := []struct {
		name   string
		params func() []SystemParam
		ok     bool
	}{
		{
			name: "write and read of one component",
			params: func() []SystemParam {
				return []SystemParam{NewQuery(Shape(Write[A]())), NewQuery(Shape(Read[A]()))}
			},
		},
		{
			name: "two writes",
			params: func() []SystemParam {
				return []SystemParam{NewQuery(Shape(Write[A]())), NewQuery(Shape(Write[A](), Read[B]()))}
			},
		},
		{
			name: "two reads",
			params: func() []SystemParam {
				return []SystemParam{NewQuery(Shape(Read[A]())), NewQuery(Shape(Read[A]()))}
			},
			ok: true,
		},
		{
			name: "disjoint through filters",
			params: func() []SystemParam {
				return []SystemParam{
					NewQuery(Shape(Write[A]()), With[B]()),
					NewQuery(Shape(Write[A]()), Without[B]()),
				}
			},
			ok: true,
		},
		{
			name: "resource read and write",
			params: func() []SystemParam {
				return []SystemParam{NewRes[Name](), NewResMut[Name]()}
			},
		},
		{
			name: "resource and component of the same type",
			params: func() []SystemParam {
				return []SystemParam{NewResMut[A](), NewQuery(Shape(Write[A]()))}
			},
			ok: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := Factory.NewWorld()
			sys := NewSystem("conflicted", func() {}, tt.params()...)
			err := sys.Initialize(w)
			if tt.ok {
				require.NoError(t, err)
				require.Equal(t, SystemInitialized, sys.State())
				return
			}
			var conflict SystemParamConflictError
			require.ErrorAs(t, err, &conflict)
			require.Equal(t, "conflicted", conflict.System)
			require.NotEmpty(t, conflict.Components)
			require.Equal(t, SystemUnregistered, sys.State())
		})
	}
}

func TestParamBindsToOneSystem(t *testing.T) {
	w := Factory.NewWorld()
	tests := []struct {
		name  string
		param SystemParam
	}{
		{"query", NewQuery(Shape(Read[A]()))},
		{"commands", Factory.NewCommands()},
		{"res", NewRes[Name]()},
		{"res mut", NewResMut[Health]()},
		{"local", NewLocal(0)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, NewSystem("first", func() {}, tt.param).Initialize(w))
			err := NewSystem("second", func() {}, tt.param).Initialize(w)
			require.ErrorAs(t, err, &ParamAlreadyBoundError{})
		})
	}
}

func TestSystemLifecycleErrors(t *testing.T) {
	t.Run("run before initialize", func(t *testing.T) {
		w := Factory.NewWorld()
		sys := incrementA()
		var stateErr SystemStateError
		require.ErrorAs(t, sys.RunUnchecked(w), &stateErr)
		require.Equal(t, SystemUnregistered, stateErr.State)
	})

	t.Run("second world", func(t *testing.T) {
		w1 := Factory.NewWorld()
		w2 := Factory.NewWorld()
		sys := incrementA()
		require.NoError(t, sys.Initialize(w1))
		require.NoError(t, sys.Initialize(w1))
		require.ErrorIs(t, sys.Initialize(w2), WorldMismatchError{Expected: w1.ID(), Got: w2.ID()})
		require.Panics(t, func() { sys.UpdateArchetypes(w2) })
	})

	t.Run("locked world", func(t *testing.T) {
		w := Factory.NewWorld()
		w.Lock()
		require.ErrorIs(t, incrementA().Run(w), LockedWorldError{})
	})

	t.Run("nil parameter", func(t *testing.T) {
		w := Factory.NewWorld()
		err := NewSystem("nil", func() {}, nil).Initialize(w)
		require.ErrorAs(t, err, &MalformedQueryError{})
	})
}

func TestSystemRunTicks(t *testing.T) {
	w := Factory.NewWorld()
	sys := incrementA()
	require.Equal(t, neverRun, sys.LastRunTick())

	require.NoError(t, sys.Run(w))
	require.Equal(t, SystemRunnable, sys.State())
	require.Equal(t, uint32(1), sys.LastRunTick())
	require.Equal(t, uint32(2), w.ChangeTick())

	require.NoError(t, sys.Run(w))
	require.Equal(t, uint32(2), sys.LastRunTick())
}

func TestLocalPersistsBetweenRuns(t *testing.T) {
	w := Factory.NewWorld()
	runs := NewLocal(10)
	sys := NewSystem1("counter", runs, func(l *Local[int]) { l.Value++ })
	for i := 0; i < 3; i++ {
		require.NoError(t, sys.Run(w))
	}
	require.Equal(t, 13, runs.Value)
}

func TestSystemAccessGrowsWithArchetypes(t *testing.T) {
	w := Factory.NewWorld()
	_, err := w.Spawn(Value(A{}))
	require.NoError(t, err)

	sys := incrementA()
	require.NoError(t, sys.Initialize(w))
	sys.UpdateArchetypes(w)
	require.Len(t, sys.ArchetypeComponentAccess().Writes(), 1)

	_, err = w.Spawn(Value(A{}), Value(B{}))
	require.NoError(t, err)
	sys.UpdateArchetypes(w)
	require.Len(t, sys.ArchetypeComponentAccess().Writes(), 2)

	id, ok := ComponentIDFor[A](w)
	require.True(t, ok)
	require.True(t, sys.ComponentAccess().HasWrite(id))
}

func TestExclusiveSystemSeesChangesSinceItsLastRun(t *testing.T) {
	w := Factory.NewWorld()
	e, err := w.Spawn(Value(A{V: 1}))
	require.NoError(t, err)

	state, err := Factory.NewQueryState(w, Shape(Read[A]()), Changed[A]())
	require.NoError(t, err)

	var counts []int
	var lastRuns []uint32
	sys := NewExclusiveSystem("watcher", func(w *World) {
		q, err := w.Query(state)
		require.NoError(t, err)
		counts = append(counts, q.Count())
		lastRuns = append(lastRuns, w.exclusiveLastRun)
	})
	require.NoError(t, sys.Initialize(w))

	require.NoError(t, sys.Run(w))
	require.NoError(t, sys.Run(w))

	m, err := GetMut[A](w, e)
	require.NoError(t, err)
	m.Get().V = 2
	require.NoError(t, sys.Run(w))

	require.Equal(t, []int{1, 0, 1}, counts)
	require.Equal(t, []uint32{neverRun, 1, 2}, lastRuns)
	require.Equal(t, neverRun, w.exclusiveLastRun)
	require.Equal(t, uint32(3), sys.LastRunTick())
}

func TestCoercedExclusiveAppliesBuffersImmediately(t *testing.T) {
	w := Factory.NewWorld()
	spawner := NewSystem1("spawner", Factory.NewCommands(), func(cmds *Commands) {
		cmds.Spawn(Value(A{V: 1}))
	})

	var seen int
	counter := NewSystem1("counter", NewQuery(Shape(Read[A]())), func(q *Query) {
		seen = q.Count()
	})

	stage := Factory.NewSingleThreadedStage().
		AddSystem(counter).
		AddExclusiveSystem(Exclusive(spawner), ExclusiveAtStart)
	require.NoError(t, stage.Run(w))
	require.Equal(t, 1, seen)
	require.Equal(t, SystemRunnable, spawner.State())

	require.NoError(t, stage.Run(w))
	require.Equal(t, 2, seen)
}
