package depot

import (
	"fmt"

	"github.com/google/uuid"
)

type LockedWorldError struct{}

func (e LockedWorldError) Error() string {
	return "world is currently locked"
}

type NoSuchEntityError struct {
	Entity Entity
}

func (e NoSuchEntityError) Error() string {
	return fmt.Sprintf("entity %v does not exist", e.Entity)
}

type MissingComponentError struct {
	Entity    Entity
	Component string
}

func (e MissingComponentError) Error() string {
	return fmt.Sprintf("component does not exist on entity %v: %s", e.Entity, e.Component)
}

// NoMatchError means the entity exists but its archetype does not satisfy the query.
type NoMatchError struct {
	Entity Entity
}

func (e NoMatchError) Error() string {
	return fmt.Sprintf("entity %v does not match the query", e.Entity)
}

type MissingReadAccessError struct {
	Component string
}

func (e MissingReadAccessError) Error() string {
	return fmt.Sprintf("query does not have read access to %s", e.Component)
}

type MissingWriteAccessError struct {
	Component string
}

func (e MissingWriteAccessError) Error() string {
	return fmt.Sprintf("query does not have write access to %s", e.Component)
}

type QueryConflictError struct {
	Component string
	Reason    string
}

func (e QueryConflictError) Error() string {
	return fmt.Sprintf("query conflicts on %s: %s", e.Component, e.Reason)
}

type MalformedQueryError struct {
	Reason string
}

func (e MalformedQueryError) Error() string {
	return fmt.Sprintf("malformed query: %s", e.Reason)
}

type SystemParamConflictError struct {
	System     string
	Components []string
}

func (e SystemParamConflictError) Error() string {
	return fmt.Sprintf("system %s has parameters with conflicting access to %v", e.System, e.Components)
}

type ParamAlreadyBoundError struct {
	Param string
}

func (e ParamAlreadyBoundError) Error() string {
	return fmt.Sprintf("system parameter %s is already bound to a system", e.Param)
}

type ComponentExistsError struct {
	Component string
	Kind      StorageKind
}

func (e ComponentExistsError) Error() string {
	return fmt.Sprintf("component already registered with %v storage: %s", e.Kind, e.Component)
}

type TooManyComponentsError struct {
	Max int
}

func (e TooManyComponentsError) Error() string {
	return fmt.Sprintf("world cannot register more than %d component types", e.Max)
}

type MissingResourceError struct {
	Resource string
}

func (e MissingResourceError) Error() string {
	return fmt.Sprintf("resource does not exist: %s", e.Resource)
}

type StageExistsError struct {
	Label string
}

func (e StageExistsError) Error() string {
	return fmt.Sprintf("stage already exists: %s", e.Label)
}

type StageNotFoundError struct {
	Label string
}

func (e StageNotFoundError) Error() string {
	return fmt.Sprintf("stage does not exist: %s", e.Label)
}

type SystemStateError struct {
	System string
	State  SystemState
}

func (e SystemStateError) Error() string {
	return fmt.Sprintf("system %s cannot run in state %v", e.System, e.State)
}

// WorldMismatchError is raised as a panic when a query or system is used with a
// world other than the one it was initialized with.
type WorldMismatchError struct {
	Expected, Got uuid.UUID
}

func (e WorldMismatchError) Error() string {
	return fmt.Sprintf("initialized with world %v, used with world %v", e.Expected, e.Got)
}

type ReflectTypeError struct {
	Expected string
	Got      string
}

func (e ReflectTypeError) Error() string {
	return fmt.Sprintf("reflected value has type %s, expected %s", e.Got, e.Expected)
}

type CacheFullError struct {
	Capacity int
}

func (e CacheFullError) Error() string {
	return fmt.Sprintf("cache at maximum capacity (%d)", e.Capacity)
}

type UnregisteredTypeError struct {
	Type string
}

func (e UnregisteredTypeError) Error() string {
	return fmt.Sprintf("type is not registered for reflection: %s", e.Type)
}

type TypeNameClashError struct {
	Name string
}

func (e TypeNameClashError) Error() string {
	return fmt.Sprintf("another type is already registered as %s", e.Name)
}
