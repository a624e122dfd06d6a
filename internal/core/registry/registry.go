// Package registry maps stable component type ids to the operation bundles
// that serialize, diff, patch and copy components of that type.
//
// A Registry is built once by the entry point through a Builder and is
// read-only afterwards, so it can be shared between goroutines freely.
package registry

import (
	"errors"
	"fmt"
	"reflect"
	"slices"

	"github.com/zeusync/prefab/internal/core/models"
	"github.com/zeusync/prefab/internal/core/observability/log"
	"github.com/zeusync/prefab/internal/core/schema"
)

var (
	ErrUnregisteredType = errors.New("unregistered component type")
	ErrTypeMismatch     = errors.New("component type mismatch")
	ErrMissingComponent = errors.New("entity has no such component")
	ErrOutOfRange       = errors.New("rows out of range")
)

type Registry struct {
	byID    map[models.ComponentTypeID]Registration
	byKey   map[reflect.Type]Registration
	ordered []Registration
}

// ByID looks a registration up by its stable id.
func (r *Registry) ByID(id models.ComponentTypeID) (Registration, bool) {
	reg, ok := r.byID[id]
	return reg, ok
}

// Lookup is ByID returning ErrUnregisteredType for unknown ids.
func (r *Registry) Lookup(id models.ComponentTypeID) (Registration, error) {
	reg, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnregisteredType, id)
	}
	return reg, nil
}

// ByKey looks a registration up by the Go type it stores.
func (r *Registry) ByKey(t reflect.Type) (Registration, bool) {
	reg, ok := r.byKey[t]
	return reg, ok
}

// KeyOf returns the registration storing T.
func KeyOf[T any](r *Registry) (Registration, bool) {
	return r.ByKey(reflect.TypeFor[T]())
}

// IDOf returns the component type id T was registered under.
func IDOf[T any](r *Registry) (models.ComponentTypeID, error) {
	reg, ok := KeyOf[T](r)
	if !ok {
		return models.ComponentTypeID{}, fmt.Errorf("%w: %s", ErrUnregisteredType, reflect.TypeFor[T]())
	}
	return reg.ID(), nil
}

// All returns every registration ordered by id.
func (r *Registry) All() []Registration {
	return slices.Clone(r.ordered)
}

func (r *Registry) Len() int {
	return len(r.ordered)
}

type Builder struct {
	log  log.Log
	regs []Registration
	errs []error
}

func NewBuilder(logger log.Log) *Builder {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Builder{log: logger.Named("registry")}
}

// Register adds component type T under id. T must be a struct the schema
// compiler accepts; failures are reported by Build.
func Register[T any](b *Builder, id models.ComponentTypeID, name string) *Builder {
	s, err := schema.For[T]()
	if err != nil {
		b.errs = append(b.errs, fmt.Errorf("register %s: %w", name, err))
		return b
	}
	if id.IsZero() {
		b.errs = append(b.errs, fmt.Errorf("register %s: zero component type id", name))
		return b
	}
	b.regs = append(b.regs, &registration[T]{id: id, name: name, schema: s})
	return b
}

// Build freezes the registrations. When an id or a Go type is registered
// twice the last registration wins and a warning is logged.
func (b *Builder) Build() (*Registry, error) {
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}
	r := &Registry{
		byID:  make(map[models.ComponentTypeID]Registration, len(b.regs)),
		byKey: make(map[reflect.Type]Registration, len(b.regs)),
	}
	for _, reg := range b.regs {
		if prev, ok := r.byID[reg.ID()]; ok {
			b.log.Warn("duplicate component type id",
				log.Stringer("id", reg.ID()), log.String("previous", prev.Name()), log.String("name", reg.Name()))
			delete(r.byKey, prev.Key())
		}
		if prev, ok := r.byKey[reg.Key()]; ok && prev.ID() != reg.ID() {
			b.log.Warn("component type registered under two ids",
				log.Stringer("type", reg.Key()), log.Stringer("previous", prev.ID()), log.Stringer("id", reg.ID()))
			delete(r.byID, prev.ID())
		}
		r.byID[reg.ID()] = reg
		r.byKey[reg.Key()] = reg
	}
	for _, reg := range r.byID {
		r.ordered = append(r.ordered, reg)
	}
	slices.SortFunc(r.ordered, func(a, c Registration) int { return models.Compare(a.ID(), c.ID()) })
	b.log.Debug("registry built", log.Int("types", len(r.ordered)))
	return r, nil
}
