package depot

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

func spawnN(t *testing.T, w *World, n int, values ...func(i int) ComponentValue) []Entity {
	t.Helper()
	entities := make([]Entity, 0, n)
	for i := 0; i < n; i++ {
		bundle := make([]ComponentValue, 0, len(values))
		for _, v := range values {
			bundle = append(bundle, v(i))
		}
		e, err := w.Spawn(bundle...)
		require.NoError(t, err)
		entities = append(entities, e)
	}
	return entities
}

func pos(i int) ComponentValue    { return Value(Position{X: float64(i)}) }
func vel(i int) ComponentValue    { return Value(Velocity{X: float64(i)}) }
func health(i int) ComponentValue { return Value(Health{Current: i}) }

func TestQueryFiltering(t *testing.T) {
	type entitySetup struct {
		values []func(int) ComponentValue
		count  int
	}

	tests := []struct {
		name            string
		entitySetups    []entitySetup
		filters         func() []Filter
		expectedMatches int
	}{
		{
			name: "and matches exact",
			entitySetups: []entitySetup{
				{[]func(int) ComponentValue{pos, vel}, 5},
				{[]func(int) ComponentValue{pos}, 10},
				{[]func(int) ComponentValue{vel}, 15},
			},
			filters:         func() []Filter { return []Filter{With[Position](), With[Velocity]()} },
			expectedMatches: 5,
		},
		{
			name: "or matches either",
			entitySetups: []entitySetup{
				{[]func(int) ComponentValue{pos, vel}, 5},
				{[]func(int) ComponentValue{pos}, 10},
				{[]func(int) ComponentValue{vel}, 15},
			},
			filters:         func() []Filter { return []Filter{Or(With[Position](), With[Velocity]())} },
			expectedMatches: 30,
		},
		{
			name: "not excludes",
			entitySetups: []entitySetup{
				{[]func(int) ComponentValue{pos, vel}, 5},
				{[]func(int) ComponentValue{pos}, 10},
				{[]func(int) ComponentValue{vel}, 15},
				{[]func(int) ComponentValue{health}, 20},
			},
			filters:         func() []Filter { return []Filter{Not(With[Velocity]())} },
			expectedMatches: 30,
		},
		{
			name: "without matches not with",
			entitySetups: []entitySetup{
				{[]func(int) ComponentValue{pos, vel}, 5},
				{[]func(int) ComponentValue{pos}, 10},
			},
			filters:         func() []Filter { return []Filter{With[Position](), Without[Velocity]()} },
			expectedMatches: 10,
		},
		{
			name: "complex",
			entitySetups: []entitySetup{
				{[]func(int) ComponentValue{pos, vel, health}, 5},
				{[]func(int) ComponentValue{pos, vel}, 10},
				{[]func(int) ComponentValue{pos, health}, 15},
				{[]func(int) ComponentValue{vel, health}, 20},
				{[]func(int) ComponentValue{pos}, 25},
				{[]func(int) ComponentValue{vel}, 30},
				{[]func(int) ComponentValue{health}, 35},
			},
			filters: func() []Filter {
				return []Filter{Or(
					And(With[Position](), With[Velocity]()),
					And(With[Position](), With[Health]()),
				)}
			},
			expectedMatches: 30,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := Factory.NewWorld()
			for _, setup := range tt.entitySetups {
				spawnN(t, w, setup.count, setup.values...)
			}

			state, err := Factory.NewQueryState(w, Shape(), tt.filters()...)
			require.NoError(t, err)
			q, err := w.Query(state)
			require.NoError(t, err)

			matches := 0
			q.ForEach(func(*Cursor) { matches++ })
			require.Equal(t, tt.expectedMatches, matches)
			require.Equal(t, tt.expectedMatches, q.Count())
		})
	}
}

func TestQueryReadWrite(t *testing.T) {
	for _, kind := range []StorageKind{TableStorage, SparseSetStorage} {
		t.Run(kind.String(), func(t *testing.T) {
			w := Factory.NewWorld()
			_, err := RegisterComponent[B](w, kind)
			require.NoError(t, err)

			both, err := w.Spawn(Value(A{V: 1}), Value(B{V: 1}))
			require.NoError(t, err)
			onlyA, err := w.Spawn(Value(A{V: 2}))
			require.NoError(t, err)

			a := Read[A]()
			b := Write[B]()
			state, err := Factory.NewQueryState(w, Shape(a, b))
			require.NoError(t, err)
			q, err := w.Query(state)
			require.NoError(t, err)

			var visited []Entity
			q.ForEach(func(c *Cursor) {
				visited = append(visited, c.Entity())
				b.Get(c).Get().V += 2 * a.Get(c).V
			})
			require.Equal(t, []Entity{both}, visited)

			got, err := Get[B](w, both)
			require.NoError(t, err)
			require.Equal(t, 3, got.V)
			require.False(t, Has[B](w, onlyA))
		})
	}
}

func TestQueryOptional(t *testing.T) {
	for _, kind := range []StorageKind{TableStorage, SparseSetStorage} {
		t.Run(kind.String(), func(t *testing.T) {
			w := Factory.NewWorld()
			_, err := RegisterComponent[B](w, kind)
			require.NoError(t, err)

			with, err := w.Spawn(Value(A{V: 1}), Value(B{V: 10}))
			require.NoError(t, err)
			without, err := w.Spawn(Value(A{V: 2}))
			require.NoError(t, err)

			a := Read[A]()
			b := Optional[B]()
			state, err := Factory.NewQueryState(w, Shape(a, b))
			require.NoError(t, err)
			q, err := w.Query(state)
			require.NoError(t, err)

			seen := map[Entity]*B{}
			q.ForEach(func(c *Cursor) {
				v, ok := b.Get(c)
				if ok {
					seen[c.Entity()] = v
				} else {
					seen[c.Entity()] = nil
				}
			})
			require.Len(t, seen, 2)
			require.NotNil(t, seen[with])
			require.Equal(t, 10, seen[with].V)
			require.Nil(t, seen[without])
		})
	}
}

func TestQueryStateRejectsBadShapes(t *testing.T) {
	w := Factory.NewWorld()

	t.Run("read and write of one component", func(t *testing.T) {
		_, err := Factory.NewQueryState(w, Shape(Read[A](), Write[A]()))
		require.ErrorAs(t, err, &QueryConflictError{})
	})

	t.Run("write then read", func(t *testing.T) {
		_, err := Factory.NewQueryState(w, Shape(Write[A](), Read[A]()))
		require.ErrorAs(t, err, &QueryConflictError{})
	})

	t.Run("write then optional", func(t *testing.T) {
		_, err := Factory.NewQueryState(w, Shape(Write[A](), Optional[A]()))
		require.ErrorAs(t, err, &QueryConflictError{})
	})

	t.Run("two reads are fine", func(t *testing.T) {
		_, err := Factory.NewQueryState(w, Shape(Read[A](), Read[A]()))
		require.NoError(t, err)
	})

	t.Run("term bound twice", func(t *testing.T) {
		a := Read[A]()
		_, err := Factory.NewQueryState(w, Shape(a))
		require.NoError(t, err)
		_, err = Factory.NewQueryState(w, Shape(a))
		require.ErrorAs(t, err, &MalformedQueryError{})
	})

	t.Run("nil term", func(t *testing.T) {
		_, err := Factory.NewQueryState(w, Shape(nil))
		require.ErrorAs(t, err, &MalformedQueryError{})
	})

	t.Run("not without a child", func(t *testing.T) {
		_, err := Factory.NewQueryState(w, Shape(), &compositeNode{op: OpNot})
		require.ErrorAs(t, err, &MalformedQueryError{})
	})
}

func TestFailedQueryStateReleasesTerms(t *testing.T) {
	tests := []struct {
		name  string
		build func(w *World, a *ReadTerm[A]) error
	}{
		{
			name: "conflict on a later term",
			build: func(w *World, a *ReadTerm[A]) error {
				_, err := Factory.NewQueryState(w, Shape(a, Write[A]()))
				return err
			},
		},
		{
			name: "nil later term",
			build: func(w *World, a *ReadTerm[A]) error {
				_, err := Factory.NewQueryState(w, Shape(a, nil))
				return err
			},
		},
		{
			name: "malformed filter",
			build: func(w *World, a *ReadTerm[A]) error {
				_, err := Factory.NewQueryState(w, Shape(a), &compositeNode{op: OpNot})
				return err
			},
		},
		{
			name: "conflict with another system param",
			build: func(w *World, a *ReadTerm[A]) error {
				return NewSystem("conflicted", func() {}, NewQuery(Shape(Write[A]())), NewQuery(Shape(a))).Initialize(w)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := Factory.NewWorld()
			a := Read[A]()
			require.Error(t, tt.build(w, a))

			_, err := Factory.NewQueryState(w, Shape(a, Read[B]()))
			require.NoError(t, err)
		})
	}
}

func TestQueryGet(t *testing.T) {
	w := Factory.NewWorld()
	match, err := w.Spawn(Value(A{V: 1}), Value(B{V: 2}))
	require.NoError(t, err)
	noMatch, err := w.Spawn(Value(A{V: 3}))
	require.NoError(t, err)
	gone, err := w.Spawn(Value(A{V: 4}), Value(B{V: 5}))
	require.NoError(t, err)
	require.NoError(t, w.Despawn(gone))

	b := Read[B]()
	state, err := Factory.NewQueryState(w, Shape(Read[A](), b))
	require.NoError(t, err)
	q, err := w.Query(state)
	require.NoError(t, err)

	c, err := q.Get(match)
	require.NoError(t, err)
	require.Equal(t, match, c.Entity())
	require.Equal(t, 2, b.Get(c).V)

	_, err = q.Get(noMatch)
	require.ErrorIs(t, err, NoMatchError{Entity: noMatch})

	_, err = q.Get(gone)
	require.ErrorIs(t, err, NoSuchEntityError{Entity: gone})
}

func TestQueryGetComponentAccess(t *testing.T) {
	w := Factory.NewWorld()
	e, err := w.Spawn(Value(A{V: 1}), Value(B{V: 2}), Value(Position{X: 3}))
	require.NoError(t, err)

	state, err := Factory.NewQueryState(w, Shape(Read[A](), Write[B]()))
	require.NoError(t, err)
	q, err := w.Query(state)
	require.NoError(t, err)

	a, err := GetComponent[A](q, e)
	require.NoError(t, err)
	require.Equal(t, 1, a.V)

	b, err := GetComponent[B](q, e)
	require.NoError(t, err)
	require.Equal(t, 2, b.V)

	bm, err := GetComponentMut[B](q, e)
	require.NoError(t, err)
	bm.Set(B{V: 7})
	got, err := Get[B](w, e)
	require.NoError(t, err)
	require.Equal(t, 7, got.V)

	_, err = GetComponentMut[A](q, e)
	require.ErrorAs(t, err, &MissingWriteAccessError{})

	_, err = GetComponent[Position](q, e)
	require.ErrorAs(t, err, &MissingReadAccessError{})

	_, err = GetComponent[Health](q, e)
	require.ErrorAs(t, err, &MissingComponentError{})
}

func TestQueryMatchesNewArchetypesLazily(t *testing.T) {
	w := Factory.NewWorld()
	spawnN(t, w, 3, func(i int) ComponentValue { return Value(A{V: i}) })

	state, err := Factory.NewQueryState(w, Shape(Read[A]()))
	require.NoError(t, err)
	require.Equal(t, 1, state.MatchedArchetypes())

	spawnN(t, w, 2,
		func(i int) ComponentValue { return Value(A{V: i}) },
		func(i int) ComponentValue { return Value(B{V: i}) },
	)
	require.Equal(t, 1, state.MatchedArchetypes())

	q, err := w.Query(state)
	require.NoError(t, err)
	require.Equal(t, 2, state.MatchedArchetypes())
	require.Equal(t, 5, q.Count())

	state.UpdateArchetypes(w)
	require.Equal(t, 2, state.MatchedArchetypes())
}

func TestQueryCountAndIsEmpty(t *testing.T) {
	w := Factory.NewWorld()
	spawnN(t, w, 4, func(i int) ComponentValue { return Value(A{V: i}) })

	state, err := Factory.NewQueryState(w, Shape(Read[A]()), Changed[A]())
	require.NoError(t, err)
	q, err := w.Query(state)
	require.NoError(t, err)
	require.Equal(t, 4, q.Count())
	require.False(t, q.IsEmpty())

	empty, err := Factory.NewQueryState(w, Shape(Read[Health]()))
	require.NoError(t, err)
	eq, err := w.Query(empty)
	require.NoError(t, err)
	require.Zero(t, eq.Count())
	require.True(t, eq.IsEmpty())
}

func TestQueryIterStopsEarly(t *testing.T) {
	w := Factory.NewWorld()
	spawnN(t, w, 10, func(i int) ComponentValue { return Value(A{V: i}) })

	state, err := Factory.NewQueryState(w, Shape(Read[A]()))
	require.NoError(t, err)
	q, err := w.Query(state)
	require.NoError(t, err)

	n := 0
	for range q.Iter() {
		n++
		if n == 3 {
			break
		}
	}
	require.Equal(t, 3, n)
}

func TestQueryParForEach(t *testing.T) {
	w := Factory.NewWorld()
	spawnN(t, w, 1000, func(i int) ComponentValue { return Value(A{V: i}) })
	spawnN(t, w, 500,
		func(i int) ComponentValue { return Value(A{V: 1000 + i}) },
		func(i int) ComponentValue { return Value(B{}) },
	)

	a := Write[A]()
	state, err := Factory.NewQueryState(w, Shape(a))
	require.NoError(t, err)
	q, err := w.Query(state)
	require.NoError(t, err)

	var visited atomic.Int64
	err = q.ParForEach(64, func(c *Cursor) error {
		a.Get(c).Get().V++
		visited.Add(1)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, int64(1500), visited.Load())

	sum := 0
	q.ForEach(func(c *Cursor) { sum += a.Get(c).Value().V })
	require.Equal(t, 1500*1501/2, sum)

	t.Run("first error is returned", func(t *testing.T) {
		boom := errors.New("boom")
		err := q.ParForEach(0, func(c *Cursor) error {
			if a.Get(c).Value().V == 750 {
				return boom
			}
			return nil
		})
		require.ErrorIs(t, err, boom)
	})
}

func TestQueryStateBelongsToOneWorld(t *testing.T) {
	w1 := Factory.NewWorld()
	w2 := Factory.NewWorld()
	state, err := Factory.NewQueryState(w1, Shape(Read[A]()))
	require.NoError(t, err)
	require.Panics(t, func() { state.UpdateArchetypes(w2) })
}

func TestStorageKindsAreObservationallyEquivalent(t *testing.T) {
	type observation struct {
		Value            int
		Added, Changed   bool
		RemainingMatches int
	}

	observe := func(t *testing.T, kind StorageKind) map[Entity]observation {
		w := Factory.NewWorld()
		_, err := RegisterComponent[B](w, kind)
		require.NoError(t, err)

		e1, err := w.Spawn(Value(A{V: 1}), Value(B{V: 1}))
		require.NoError(t, err)
		_, err = w.Spawn(Value(A{V: 2}))
		require.NoError(t, err)
		e3, err := w.Spawn(Value(A{V: 3}), Value(B{V: 3}))
		require.NoError(t, err)

		b := TicksOf[B]()
		value := Read[B]()
		out := map[Entity]observation{}
		watcher := NewSystem1("watcher", NewQuery(Shape(value, b)), func(q *Query) {
			n := q.Count()
			q.ForEach(func(c *Cursor) {
				out[c.Entity()] = observation{
					Value:            value.Get(c).V,
					Added:            b.IsAdded(c),
					Changed:          b.IsChanged(c),
					RemainingMatches: n,
				}
			})
		})
		require.NoError(t, watcher.Run(w))

		a := Read[A]()
		wb := Write[B]()
		setter := NewSystem1("setter", NewQuery(Shape(a, wb)), func(q *Query) {
			q.ForEach(func(c *Cursor) {
				if a.Get(c).V == 1 {
					wb.Get(c).Set(B{V: 3})
				}
			})
		})
		require.NoError(t, setter.Run(w))
		require.NoError(t, Remove[B](w, e3))
		require.NoError(t, w.Insert(e1, Value(Position{})))
		require.NoError(t, watcher.Run(w))
		return out
	}

	table := observe(t, TableStorage)
	sparse := observe(t, SparseSetStorage)
	require.Equal(t, table, sparse)
	require.Len(t, table, 2)

	for e, o := range table {
		if e.Index() == 0 {
			require.Equal(t, observation{Value: 3, Added: false, Changed: true, RemainingMatches: 1}, o)
		} else {
			require.Equal(t, observation{Value: 3, Added: true, Changed: true, RemainingMatches: 2}, o)
		}
	}
}
