package ecs

import (
	"fmt"
	"reflect"
)

// Resources is a typed bag of singletons that merge transforms can read and
// mutate. At most one resource per type is held.
type Resources struct {
	items map[reflect.Type]any
}

func NewResources() *Resources {
	return &Resources{items: make(map[reflect.Type]any)}
}

// AddResource stores res, replacing any resource of the same type.
func AddResource[T any](r *Resources, res *T) {
	if res == nil {
		panic("ecs: cannot add nil resource")
	}
	if r.items == nil {
		r.items = make(map[reflect.Type]any)
	}
	r.items[reflect.TypeFor[T]()] = res
}

// Resource returns the resource of type T.
func Resource[T any](r *Resources) (*T, bool) {
	if r == nil {
		return nil, false
	}
	res, ok := r.items[reflect.TypeFor[T]()]
	if !ok {
		return nil, false
	}
	return res.(*T), true
}

// MustResource is Resource for resources the caller registered itself.
func MustResource[T any](r *Resources) *T {
	res, ok := Resource[T](r)
	if !ok {
		panic(fmt.Sprintf("ecs: resource %s not found", reflect.TypeFor[T]()))
	}
	return res
}

// RemoveResource drops the resource of type T.
func RemoveResource[T any](r *Resources) {
	if r != nil {
		delete(r.items, reflect.TypeFor[T]())
	}
}

func (r *Resources) Len() int {
	if r == nil {
		return 0
	}
	return len(r.items)
}
