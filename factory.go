package depot

type factory struct{}

var Factory factory

func (f factory) NewWorld() *World {
	return newWorld()
}

// NewQueryState compiles shape and filters against w. It fails when the terms
// conflict with each other or are malformed.
func (f factory) NewQueryState(w *World, shape []Fetch, filters ...Filter) (*QueryState, error) {
	return newQueryState(w, shape, filters...)
}

func (f factory) NewParallelStage() *SystemStage {
	return newSystemStage(true)
}

func (f factory) NewSingleThreadedStage() *SystemStage {
	return newSystemStage(false)
}

func (f factory) NewSchedule() *Schedule {
	return newSchedule()
}

func (f factory) NewCommands() *Commands {
	return &Commands{}
}

func (f factory) NewTypeRegistry() *TypeRegistry {
	return newTypeRegistry(defaultTypeRegistryCapacity)
}

func FactoryNewCache[T any](cap int) Cache[T] {
	return &SimpleCache[T]{
		itemIndices: make(map[string]int),
		maxCapacity: cap,
	}
}
