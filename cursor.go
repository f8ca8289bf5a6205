package depot

type span struct {
	archetype  *archetype
	start, end int
}

var _ iCursor = &Cursor{}

func newCursor(state *QueryState, w *World, lastRun, thisRun uint32, spans []span) *Cursor {
	return &Cursor{
		state:     state,
		world:     w,
		lastRun:   lastRun,
		thisRun:   thisRun,
		spans:     spans,
		spanIndex: -1,
		stores:    make([]componentView, state.slots),
	}
}

// Next advances to the next matching entity. It returns false once every span is
// exhausted.
func (c *Cursor) Next() bool {
	for {
		if c.archetype != nil {
			for c.row++; c.row < c.end; c.row++ {
				c.entity = c.archetype.entityAt(c.row)
				if !c.state.entityFiltered || c.state.filter.matchesEntity(c) {
					return true
				}
			}
		}
		if !c.advance() {
			return false
		}
	}
}

func (c *Cursor) advance() bool {
	c.spanIndex++
	if c.spanIndex >= len(c.spans) {
		c.archetype = nil
		c.spanIndex = len(c.spans)
		return false
	}
	next := c.spans[c.spanIndex]
	c.archetype = next.archetype
	c.row = next.start - 1
	c.end = next.end
	c.state.resolve(c.world, c.archetype, c.stores)
	return true
}

// Reset rewinds the cursor to before the first entity.
func (c *Cursor) Reset() {
	c.spanIndex = -1
	c.archetype = nil
	c.row = 0
	c.end = 0
	c.entity = Entity{}
}

// Entity returns the entity the cursor is on.
func (c *Cursor) Entity() Entity {
	return c.entity
}

func (c *Cursor) Archetype() Archetype {
	if c.archetype == nil {
		return nil
	}
	return c.archetype
}

// RemainingInArchetype returns the rows left in the current span, not counting the
// current one. Entity-level filters may skip some of them.
func (c *Cursor) RemainingInArchetype() int {
	if c.archetype == nil {
		return 0
	}
	return c.end - c.row - 1
}

func (c *Cursor) LastRun() uint32 {
	return c.lastRun
}

func (c *Cursor) ThisRun() uint32 {
	return c.thisRun
}
