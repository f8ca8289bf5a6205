package depot

import (
	"reflect"
	"sync"

	"github.com/TheBitDrifter/mask"
	"github.com/TheBitDrifter/table"
)

// ComponentID identifies a component or resource type within one World. It doubles
// as the bit index of the type in archetype signatures.
type ComponentID uint32

// MaxComponents bounds the number of component and resource types a World can
// register. It follows the mask width the module is built with (-tags m256 and so on).
const MaxComponents = mask.MaxBits

// StorageKind selects how a component type's values are laid out.
type StorageKind uint8

const (
	// TableStorage keeps values in a dense column per archetype. Best for iteration.
	TableStorage StorageKind = iota
	// SparseSetStorage keeps values in one set keyed by entity index. Adding or
	// removing such a component still migrates the entity, but no values move.
	SparseSetStorage
)

func (k StorageKind) String() string {
	switch k {
	case TableStorage:
		return "table"
	case SparseSetStorage:
		return "sparse-set"
	}
	return "unknown"
}

// ComponentInfo describes a registered component or resource type.
type ComponentInfo struct {
	id       ComponentID
	name     string
	typ      reflect.Type
	kind     StorageKind
	resource bool

	// Set for resources only.
	resourceComponentID ArchetypeComponentID

	elementType table.ElementType
	newColumn   func(table.Table) column
	newSparse   func() sparseStore
}

func (i *ComponentInfo) ID() ComponentID {
	return i.id
}

func (i *ComponentInfo) Name() string {
	return i.name
}

func (i *ComponentInfo) Type() reflect.Type {
	return i.typ
}

func (i *ComponentInfo) StorageKind() StorageKind {
	return i.kind
}

func (i *ComponentInfo) IsResource() bool {
	return i.resource
}

// elementTypes holds one table.ElementType per Go type for the whole process. The
// table package numbers element types globally, so every world shares them.
var elementTypes = struct {
	sync.Mutex
	byType map[reflect.Type]table.ElementType
}{byType: make(map[reflect.Type]table.ElementType)}

func elementTypeFor[T any]() (table.ElementType, error) {
	t := reflect.TypeFor[T]()
	elementTypes.Lock()
	defer elementTypes.Unlock()
	if et, ok := elementTypes.byType[t]; ok {
		return et, nil
	}
	et := table.FactoryNewElementType[T]()
	if int(et.ID()) > mask.MaxBits {
		return nil, TooManyComponentsError{Max: mask.MaxBits}
	}
	elementTypes.byType[t] = et
	return et, nil
}

type componentRegistry struct {
	next        ComponentID
	infos       map[ComponentID]*ComponentInfo
	byType      map[reflect.Type]ComponentID
	resourceIDs map[reflect.Type]ComponentID
}

func newComponentRegistry() *componentRegistry {
	return &componentRegistry{
		infos:       make(map[ComponentID]*ComponentInfo),
		byType:      make(map[reflect.Type]ComponentID),
		resourceIDs: make(map[reflect.Type]ComponentID),
	}
}

func (r *componentRegistry) info(id ComponentID) *ComponentInfo {
	return r.infos[id]
}

func (r *componentRegistry) assign() (ComponentID, error) {
	if r.next >= MaxComponents {
		return 0, TooManyComponentsError{Max: MaxComponents}
	}
	id := r.next
	r.next++
	return id, nil
}

func registerComponent[T any](r *componentRegistry, kind StorageKind) (*ComponentInfo, error) {
	t := reflect.TypeFor[T]()
	if id, ok := r.byType[t]; ok {
		info := r.infos[id]
		if info.kind != kind {
			return nil, ComponentExistsError{Component: info.name, Kind: info.kind}
		}
		return info, nil
	}
	info := &ComponentInfo{
		name:      t.String(),
		typ:       t,
		kind:      kind,
		newSparse: newSparseSet[T],
	}
	if kind == TableStorage {
		et, err := elementTypeFor[cell[T]]()
		if err != nil {
			return nil, err
		}
		info.elementType = et
		info.newColumn = newTableColumn[T](et)
	}
	id, err := r.assign()
	if err != nil {
		return nil, err
	}
	info.id = id
	r.infos[id] = info
	r.byType[t] = id
	return info, nil
}

func registerResource[T any](r *componentRegistry, newACID func() ArchetypeComponentID) (*ComponentInfo, error) {
	t := reflect.TypeFor[T]()
	if id, ok := r.resourceIDs[t]; ok {
		return r.infos[id], nil
	}
	id, err := r.assign()
	if err != nil {
		return nil, err
	}
	info := &ComponentInfo{
		id:                  id,
		name:                t.String(),
		typ:                 t,
		resource:            true,
		resourceComponentID: newACID(),
	}
	r.infos[id] = info
	r.resourceIDs[t] = id
	return info, nil
}

// RegisterComponent registers T with the given storage kind. Registering a type
// again with the same kind returns its existing id. Types that are never registered
// explicitly default to TableStorage on first use.
func RegisterComponent[T any](w *World, kind StorageKind) (ComponentID, error) {
	info, err := registerComponent[T](w.components, kind)
	if err != nil {
		return 0, err
	}
	return info.id, nil
}

// ComponentIDFor looks up T's id without registering it.
func ComponentIDFor[T any](w *World) (ComponentID, bool) {
	id, ok := w.components.byType[reflect.TypeFor[T]()]
	return id, ok
}

// ComponentInfoOf returns the registered info for id.
func (w *World) ComponentInfoOf(id ComponentID) (*ComponentInfo, bool) {
	info, ok := w.components.infos[id]
	return info, ok
}

func componentInfoFor[T any](w *World) (*ComponentInfo, error) {
	if id, ok := ComponentIDFor[T](w); ok {
		return w.components.infos[id], nil
	}
	return registerComponent[T](w.components, TableStorage)
}

func typeName[T any]() string {
	return reflect.TypeFor[T]().String()
}

// ComponentValue is a type-erased component instance ready to be inserted. Build
// one with Value.
type ComponentValue interface {
	componentInfo(w *World) (*ComponentInfo, error)
	value() any
}

type componentValue[T any] struct {
	v T
}

// Value wraps v for Spawn, Insert and command buffers.
func Value[T any](v T) ComponentValue {
	return componentValue[T]{v: v}
}

func (c componentValue[T]) componentInfo(w *World) (*ComponentInfo, error) {
	return componentInfoFor[T](w)
}

func (c componentValue[T]) value() any {
	return c.v
}

func (w *World) componentNames(ids []ComponentID) []string {
	names := make([]string, len(ids))
	for i, id := range ids {
		if info, ok := w.components.infos[id]; ok {
			names[i] = info.name
		}
	}
	return names
}
