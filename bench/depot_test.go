package bench

import (
	"testing"

	"github.com/TheBitDrifter/depot"
)

// go test -bench=. ./bench -benchmem

const (
	nPos    = 9000
	nPosVel = 1000
)

type Position struct {
	X float64
	Y float64
}

type Velocity struct {
	X float64
	Y float64
}

func newWorld(b *testing.B) *depot.World {
	b.Helper()
	world := depot.Factory.NewWorld()
	for i := 0; i < nPosVel; i++ {
		if _, err := world.Spawn(depot.Value(Position{}), depot.Value(Velocity{X: 1, Y: 1})); err != nil {
			b.Fatal(err)
		}
	}
	for i := 0; i < nPos; i++ {
		if _, err := world.Spawn(depot.Value(Position{})); err != nil {
			b.Fatal(err)
		}
	}
	return world
}

func BenchmarkIterDepot(b *testing.B) {
	b.StopTimer()
	world := newWorld(b)

	pos := depot.Write[Position]()
	vel := depot.Read[Velocity]()
	state, err := depot.Factory.NewQueryState(world, depot.Shape(pos, vel))
	if err != nil {
		b.Fatal(err)
	}
	query, err := world.Query(state)
	if err != nil {
		b.Fatal(err)
	}
	b.StartTimer()

	for i := 0; i < b.N; i++ {
		query.ForEach(func(c *depot.Cursor) {
			p := pos.Get(c).Get()
			v := vel.Get(c)
			p.X += v.X
			p.Y += v.Y
		})
	}
}

func BenchmarkIterDepotParallel(b *testing.B) {
	b.StopTimer()
	world := newWorld(b)

	pos := depot.Write[Position]()
	vel := depot.Read[Velocity]()
	state, err := depot.Factory.NewQueryState(world, depot.Shape(pos, vel))
	if err != nil {
		b.Fatal(err)
	}
	query, err := world.Query(state)
	if err != nil {
		b.Fatal(err)
	}
	b.StartTimer()

	for i := 0; i < b.N; i++ {
		err := query.ParForEach(256, func(c *depot.Cursor) error {
			p := pos.Get(c).Get()
			v := vel.Get(c)
			p.X += v.X
			p.Y += v.Y
			return nil
		})
		if err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkStageDepot(b *testing.B) {
	b.StopTimer()
	world := newWorld(b)

	pos := depot.Write[Position]()
	vel := depot.Read[Velocity]()
	movement := depot.NewSystem1("movement", depot.NewQuery(depot.Shape(pos, vel)), func(q *depot.Query) {
		q.ForEach(func(c *depot.Cursor) {
			p := pos.Get(c).Get()
			v := vel.Get(c)
			p.X += v.X
			p.Y += v.Y
		})
	})
	stage := depot.Factory.NewParallelStage().AddSystem(movement)
	b.StartTimer()

	for i := 0; i < b.N; i++ {
		if err := stage.Run(world); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSpawnDespawnDepot(b *testing.B) {
	world := depot.Factory.NewWorld()
	entities := make([]depot.Entity, 0, 1000)

	for i := 0; i < b.N; i++ {
		entities = entities[:0]
		for j := 0; j < 1000; j++ {
			e, err := world.Spawn(depot.Value(Position{}), depot.Value(Velocity{}))
			if err != nil {
				b.Fatal(err)
			}
			entities = append(entities, e)
		}
		for _, e := range entities {
			if err := world.Despawn(e); err != nil {
				b.Fatal(err)
			}
		}
	}
}
