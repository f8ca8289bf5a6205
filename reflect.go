package depot

import (
	"reflect"
	"sync"
)

// ReflectComponent is a table of type-erased operations for one component type,
// built once per type with NewReflectComponent. Values pass through as T or *T.
type ReflectComponent struct {
	name string
	typ  reflect.Type

	add        func(w *World, e Entity, v any) error
	apply      func(w *World, e Entity, v any) error
	reflect    func(w *World, e Entity) (any, bool)
	reflectMut func(w *World, e Entity) (ReflectMut, bool)
	copy       func(src, dst *World, srcEntity, dstEntity Entity) error
}

func coerce[T any](v any) (T, error) {
	switch val := v.(type) {
	case T:
		return val, nil
	case *T:
		if val != nil {
			return *val, nil
		}
	}
	var zero T
	got := "nil"
	if v != nil {
		got = reflect.TypeOf(v).String()
	}
	return zero, ReflectTypeError{Expected: typeName[T](), Got: got}
}

func NewReflectComponent[T any]() ReflectComponent {
	return ReflectComponent{
		name: typeName[T](),
		typ:  reflect.TypeFor[T](),
		add: func(w *World, e Entity, v any) error {
			val, err := coerce[T](v)
			if err != nil {
				return err
			}
			return w.Insert(e, Value(val))
		},
		apply: func(w *World, e Entity, v any) error {
			val, err := coerce[T](v)
			if err != nil {
				return err
			}
			m, err := GetMut[T](w, e)
			if err != nil {
				return err
			}
			m.Set(val)
			return nil
		},
		reflect: func(w *World, e Entity) (any, bool) {
			v, err := Get[T](w, e)
			if err != nil {
				return nil, false
			}
			return v, true
		},
		reflectMut: func(w *World, e Entity) (ReflectMut, bool) {
			m, err := GetUncheckedMut[T](w, e)
			if err != nil {
				return ReflectMut{}, false
			}
			return ReflectMut{value: m.value, ticks: m.ticks, lastRun: m.lastRun, thisRun: m.thisRun}, true
		},
		copy: func(src, dst *World, srcEntity, dstEntity Entity) error {
			v, err := Get[T](src, srcEntity)
			if err != nil {
				return err
			}
			return dst.Insert(dstEntity, Value(*v))
		},
	}
}

func (r *ReflectComponent) Name() string {
	return r.name
}

func (r *ReflectComponent) Type() reflect.Type {
	return r.typ
}

// Add inserts v, a T or *T, into e.
func (r *ReflectComponent) Add(w *World, e Entity, v any) error {
	return r.add(w, e, v)
}

// Apply overwrites e's existing value with v and marks it changed.
func (r *ReflectComponent) Apply(w *World, e Entity, v any) error {
	return r.apply(w, e, v)
}

// Reflect returns e's value as a *T.
func (r *ReflectComponent) Reflect(w *World, e Entity) (any, bool) {
	return r.reflect(w, e)
}

// ReflectMut returns a change-marking handle to e's value. The world must be unlocked.
func (r *ReflectComponent) ReflectMut(w *World, e Entity) (ReflectMut, error) {
	if w.locked {
		return ReflectMut{}, LockedWorldError{}
	}
	m, ok := r.reflectMut(w, e)
	if !ok {
		return ReflectMut{}, MissingComponentError{Entity: e, Component: r.name}
	}
	return m, nil
}

// ReflectUncheckedMut is ReflectMut without the lock check. The caller guarantees
// nothing else accesses e's value concurrently.
func (r *ReflectComponent) ReflectUncheckedMut(w *World, e Entity) (ReflectMut, bool) {
	return r.reflectMut(w, e)
}

// Copy inserts a copy of srcEntity's value in src into dstEntity in dst.
func (r *ReflectComponent) Copy(src, dst *World, srcEntity, dstEntity Entity) error {
	return r.copy(src, dst, srcEntity, dstEntity)
}

// ReflectMut is a type-erased Mut.
type ReflectMut struct {
	value   any
	ticks   *ComponentTicks
	lastRun uint32
	thisRun uint32
}

// Value returns the *T without marking it changed.
func (m ReflectMut) Value() any {
	return m.value
}

// Mut returns the *T and marks it changed.
func (m ReflectMut) Mut() any {
	m.ticks.markChanged(m.thisRun)
	return m.value
}

func (m ReflectMut) IsAdded() bool {
	return m.ticks.IsAdded(m.lastRun, m.thisRun)
}

func (m ReflectMut) IsChanged() bool {
	return m.ticks.IsChanged(m.lastRun, m.thisRun)
}

const defaultTypeRegistryCapacity = 1024

// TypeRegistry maps package-qualified type names to their ReflectComponent. It is
// safe for concurrent use.
type TypeRegistry struct {
	mu     sync.RWMutex
	cache  Cache[ReflectComponent]
	byType map[reflect.Type]int
}

func newTypeRegistry(capacity int) *TypeRegistry {
	return &TypeRegistry{
		cache:  FactoryNewCache[ReflectComponent](capacity),
		byType: make(map[reflect.Type]int),
	}
}

// RegisterReflect adds T to r under its package-qualified name. Registering T again
// is a no-op. A different type with the same qualified name, such as a second
// function-local type, is refused.
func RegisterReflect[T any](r *TypeRegistry) error {
	rc := NewReflectComponent[T]()
	name := qualifiedName(rc.typ)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byType[rc.typ]; ok {
		return nil
	}
	if _, ok := r.cache.GetIndex(name); ok {
		return TypeNameClashError{Name: name}
	}
	idx, err := r.cache.Register(name, rc)
	if err != nil {
		return err
	}
	r.byType[rc.typ] = idx
	return nil
}

func qualifiedName(t reflect.Type) string {
	if t.Name() == "" || t.PkgPath() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}

// Get looks a type up by its package-qualified name, e.g. "example.com/game.Health".
func (r *TypeRegistry) Get(name string) (*ReflectComponent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.cache.GetIndex(name)
	if !ok {
		return nil, false
	}
	return r.cache.GetItem(idx), true
}

func (r *TypeRegistry) GetByType(t reflect.Type) (*ReflectComponent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byType[t]
	if !ok {
		return nil, false
	}
	return r.cache.GetItem(idx), true
}

// Names returns the registered package-qualified type names in registration order.
func (r *TypeRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cache.Keys()
}

// CopyEntity copies every component of srcEntity in src into dstEntity in dst. Every
// component type must be registered.
func (r *TypeRegistry) CopyEntity(src, dst *World, srcEntity, dstEntity Entity) error {
	arch, ok := src.ArchetypeOf(srcEntity)
	if !ok {
		return NoSuchEntityError{Entity: srcEntity}
	}
	for _, id := range arch.Components() {
		info := src.components.info(id)
		rc, ok := r.GetByType(info.typ)
		if !ok {
			return UnregisteredTypeError{Type: info.name}
		}
		if err := rc.Copy(src, dst, srcEntity, dstEntity); err != nil {
			return err
		}
	}
	return nil
}
