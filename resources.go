package depot

import "reflect"

var (
	_ SystemParam = &Res[struct{}]{}
	_ SystemParam = &ResMut[struct{}]{}
	_ SystemParam = &Local[struct{}]{}
)

// resourceData holds one world-global value. value is always a *T.
type resourceData struct {
	value any
	ticks ComponentTicks
}

func resourceInfoFor[T any](w *World) (*ComponentInfo, error) {
	return registerResource[T](w.components, w.archetypes.newArchetypeComponentID)
}

// InsertResource stores v as the world's T resource, replacing any previous one.
func InsertResource[T any](w *World, v T) error {
	if w.locked {
		return LockedWorldError{}
	}
	info, err := resourceInfoFor[T](w)
	if err != nil {
		return err
	}
	ticks := newComponentTicks(w.ChangeTick())
	if data, ok := w.resources[info.id]; ok {
		*data.value.(*T) = v
		data.ticks.Changed = ticks.Changed
		return nil
	}
	w.resources[info.id] = &resourceData{value: &v, ticks: ticks}
	return nil
}

func lookupResource[T any](w *World) (*T, *resourceData, bool) {
	id, ok := w.components.resourceIDs[reflect.TypeFor[T]()]
	if !ok {
		return nil, nil, false
	}
	data, ok := w.resources[id]
	if !ok {
		return nil, nil, false
	}
	return data.value.(*T), data, true
}

func GetResource[T any](w *World) (*T, bool) {
	v, _, ok := lookupResource[T](w)
	return v, ok
}

// GetResourceMut returns a change-marking handle to the T resource. The world must
// be unlocked.
func GetResourceMut[T any](w *World) (Mut[T], error) {
	if w.locked {
		return Mut[T]{}, LockedWorldError{}
	}
	v, data, ok := lookupResource[T](w)
	if !ok {
		return Mut[T]{}, MissingResourceError{Resource: typeName[T]()}
	}
	thisRun := w.ChangeTick()
	return Mut[T]{value: v, ticks: &data.ticks, lastRun: w.directLastRun(thisRun), thisRun: thisRun}, nil
}

// RemoveResource removes the T resource and returns it.
func RemoveResource[T any](w *World) (T, error) {
	var zero T
	if w.locked {
		return zero, LockedWorldError{}
	}
	v, _, ok := lookupResource[T](w)
	if !ok {
		return zero, MissingResourceError{Resource: typeName[T]()}
	}
	delete(w.resources, w.components.resourceIDs[reflect.TypeFor[T]()])
	return *v, nil
}

func ContainsResource[T any](w *World) bool {
	_, _, ok := lookupResource[T](w)
	return ok
}

type resourceParam[T any] struct {
	info    *ComponentInfo
	value   *T
	ticks   *ComponentTicks
	lastRun uint32
	thisRun uint32
}

func (p *resourceParam[T]) init(w *World, meta *SystemMeta, write bool) error {
	if p.info != nil {
		return ParamAlreadyBoundError{Param: "resource " + typeName[T]()}
	}
	info, err := resourceInfoFor[T](w)
	if err != nil {
		return err
	}
	var access FilteredAccess[ComponentID]
	if write {
		access.access.AddWrite(info.id)
	} else {
		access.access.AddRead(info.id)
	}
	if conflicts := meta.componentAccessSet.Conflicts(&access); len(conflicts) > 0 {
		return SystemParamConflictError{System: meta.name, Components: w.componentNames(conflicts)}
	}
	meta.componentAccessSet.Add(access)
	if write {
		meta.archetypeComponentAccess.AddWrite(info.resourceComponentID)
	} else {
		meta.archetypeComponentAccess.AddRead(info.resourceComponentID)
	}
	p.info = info
	return nil
}

// fetch panics when the resource is missing. A system cannot run without its
// resources, and a panicking system is fatal to the frame.
func (p *resourceParam[T]) fetch(w *World, meta *SystemMeta, thisRun uint32) {
	data, ok := w.resources[p.info.id]
	if !ok {
		panic(MissingResourceError{Resource: p.info.name})
	}
	p.value = data.value.(*T)
	p.ticks = &data.ticks
	p.lastRun = meta.lastRunFor(thisRun)
	p.thisRun = thisRun
}

func (p *resourceParam[T]) updateArchetypes(*World, *SystemMeta) {}

func (p *resourceParam[T]) apply(*World) {}

func (p *resourceParam[T]) IsAdded() bool {
	return p.ticks.IsAdded(p.lastRun, p.thisRun)
}

func (p *resourceParam[T]) IsChanged() bool {
	return p.ticks.IsChanged(p.lastRun, p.thisRun)
}

// Res is a system parameter reading the T resource.
type Res[T any] struct {
	resourceParam[T]
}

func NewRes[T any]() *Res[T] {
	return &Res[T]{}
}

func (r *Res[T]) initParam(w *World, meta *SystemMeta) error {
	return r.init(w, meta, false)
}

// Get returns the resource. It must not be modified.
func (r *Res[T]) Get() *T {
	return r.value
}

// ResMut is a system parameter writing the T resource.
type ResMut[T any] struct {
	resourceParam[T]
}

func NewResMut[T any]() *ResMut[T] {
	return &ResMut[T]{}
}

func (r *ResMut[T]) initParam(w *World, meta *SystemMeta) error {
	return r.init(w, meta, true)
}

// Get returns the resource for mutation and marks it changed.
func (r *ResMut[T]) Get() *T {
	r.ticks.markChanged(r.thisRun)
	return r.value
}

func (r *ResMut[T]) Set(v T) {
	r.ticks.markChanged(r.thisRun)
	*r.value = v
}

func (r *ResMut[T]) Value() T {
	return *r.value
}

// Local is per-system state that persists between runs. It declares no access.
type Local[T any] struct {
	Value T
	bound bool
}

func NewLocal[T any](initial T) *Local[T] {
	return &Local[T]{Value: initial}
}

func (l *Local[T]) initParam(*World, *SystemMeta) error {
	if l.bound {
		return ParamAlreadyBoundError{Param: "local " + typeName[T]()}
	}
	l.bound = true
	return nil
}

func (l *Local[T]) updateArchetypes(*World, *SystemMeta) {}
func (l *Local[T]) fetch(*World, *SystemMeta, uint32) {}
func (l *Local[T]) apply(*World) {}
