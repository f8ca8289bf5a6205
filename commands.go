package depot

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

var _ SystemParam = &Commands{}

type commandType int

const (
	cmdSpawn commandType = iota
	cmdInsert
	cmdRemove
	cmdDespawn
	cmdCustom
)

func (t commandType) String() string {
	switch t {
	case cmdSpawn:
		return "spawn"
	case cmdInsert:
		return "insert"
	case cmdRemove:
		return "remove"
	case cmdDespawn:
		return "despawn"
	}
	return "custom"
}

type command struct {
	typ    commandType
	entity Entity
	apply  func(*World) error
}

// Commands buffers structural changes for later. As a system parameter the buffer
// is replayed in record order right after the system's parallel phase. Recording is
// safe from several goroutines, such as ParForEach bodies.
type Commands struct {
	mu    sync.Mutex
	queue []command
	bound bool
}

func (c *Commands) push(cmd command) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = append(c.queue, cmd)
}

func (c *Commands) Spawn(values ...ComponentValue) {
	c.push(command{typ: cmdSpawn, apply: func(w *World) error {
		_, err := w.Spawn(values...)
		return err
	}})
}

func (c *Commands) Insert(e Entity, values ...ComponentValue) {
	c.push(command{typ: cmdInsert, entity: e, apply: func(w *World) error {
		return w.Insert(e, values...)
	}})
}

func (c *Commands) Remove(e Entity, ids ...ComponentID) {
	c.push(command{typ: cmdRemove, entity: e, apply: func(w *World) error {
		return w.Remove(e, ids...)
	}})
}

// RemoveDeferred records the removal of T from e.
func RemoveDeferred[T any](c *Commands, e Entity) {
	c.push(command{typ: cmdRemove, entity: e, apply: func(w *World) error {
		return Remove[T](w, e)
	}})
}

func (c *Commands) Despawn(e Entity) {
	c.push(command{typ: cmdDespawn, entity: e, apply: func(w *World) error {
		return w.Despawn(e)
	}})
}

// Add records an arbitrary world mutation.
func (c *Commands) Add(fn func(*World) error) {
	c.push(command{typ: cmdCustom, apply: fn})
}

func (c *Commands) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Apply replays and clears the buffer. A command that fails is logged and skipped;
// the rest still run. The returned count is the number of failed commands.
func (c *Commands) Apply(w *World) int {
	c.mu.Lock()
	queue := c.queue
	c.queue = nil
	c.mu.Unlock()

	failed := 0
	for _, cmd := range queue {
		if err := cmd.apply(w); err != nil {
			failed++
			w.logger.Warn("deferred command failed",
				zap.Stringer("command", cmd.typ),
				zap.Stringer("entity", cmd.entity),
				zap.Error(fmt.Errorf("failed to apply %v: %w", cmd.typ, err)),
			)
		}
	}
	return failed
}

func (c *Commands) initParam(*World, *SystemMeta) error {
	if c.bound {
		return ParamAlreadyBoundError{Param: "commands"}
	}
	c.bound = true
	return nil
}

func (c *Commands) updateArchetypes(*World, *SystemMeta) {}

func (c *Commands) fetch(*World, *SystemMeta, uint32) {}

func (c *Commands) apply(w *World) {
	c.Apply(w)
}
