// Package registry keeps named step factories so pipelines can be assembled
// from configuration instead of code.
package registry

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/casualjim/relay/chain"
	multierror "github.com/hashicorp/go-multierror"
)

// Factory creates a new instance of a step
type Factory[T chain.Context] func() chain.Step[T]

// Registry of step factories, safe for concurrent use
type Registry[T chain.Context] struct {
	m         sync.RWMutex
	factories map[string]Factory[T]
	order     []string
}

// New creates an empty registry
func New[T chain.Context]() *Registry[T] {
	return &Registry[T]{factories: make(map[string]Factory[T])}
}

// Register a factory under the given name, a name can only be registered once
func (r *Registry[T]) Register(name string, factory Factory[T]) error {
	if name == "" {
		return fmt.Errorf("a step factory needs a name")
	}
	if factory == nil {
		return fmt.Errorf("step factory %q is nil", name)
	}
	r.m.Lock()
	defer r.m.Unlock()
	if _, ok := r.factories[name]; ok {
		return fmt.Errorf("step factory %q is already registered", name)
	}
	r.factories[name] = factory
	r.order = append(r.order, name)
	return nil
}

// MustRegister registers the factory and panics when that fails
func (r *Registry[T]) MustRegister(name string, factory Factory[T]) *Registry[T] {
	if err := r.Register(name, factory); err != nil {
		panic(err)
	}
	return r
}

// Names of the registered factories, sorted
func (r *Registry[T]) Names() []string {
	r.m.RLock()
	names := append([]string(nil), r.order...)
	r.m.RUnlock()
	sort.Strings(names)
	return names
}

// Build creates a step for every name, in the order the names were given.
// The error lists every name that isn't registered.
func (r *Registry[T]) Build(names ...string) ([]chain.Step[T], error) {
	r.m.RLock()
	defer r.m.RUnlock()

	var result *multierror.Error
	steps := make([]chain.Step[T], 0, len(names))
	for _, name := range names {
		factory, ok := r.factories[name]
		if !ok {
			result = multierror.Append(result, fmt.Errorf("unknown step %q", name))
			continue
		}
		steps = append(steps, factory())
	}
	if err := result.ErrorOrNil(); err != nil {
		return nil, err
	}
	return steps, nil
}

// All creates a step for every registered factory, in registration order
func (r *Registry[T]) All() []chain.Step[T] {
	r.m.RLock()
	defer r.m.RUnlock()
	steps := make([]chain.Step[T], 0, len(r.order))
	for _, name := range r.order {
		steps = append(steps, r.factories[name]())
	}
	return steps
}

// Distinct keeps the first step of every concrete type and drops the others.
// The wrappers from the chain package (Func, Retry, Empty) share their types
// between unrelated steps, those are told apart by name as well.
func Distinct[T chain.Context](steps []chain.Step[T]) []chain.Step[T] {
	type key struct {
		kind reflect.Type
		name string
	}
	seen := make(map[key]struct{}, len(steps))
	result := make([]chain.Step[T], 0, len(steps))
	for _, step := range steps {
		if step == nil {
			continue
		}
		k := key{kind: reflect.TypeOf(step)}
		if isWrapper(k.kind) {
			k.name = step.Name()
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		result = append(result, step)
	}
	return result
}

var chainPkg = reflect.TypeOf(chain.StepName("")).PkgPath()

func isWrapper(kind reflect.Type) bool {
	if kind.Kind() == reflect.Ptr {
		kind = kind.Elem()
	}
	return kind.PkgPath() == chainPkg
}
