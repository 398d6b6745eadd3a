// Copyright 2020-2025 Buf Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package compat

import (
	"fmt"
	"iter"
	"reflect"
	"sync"

	"github.com/xserial-go/xserial/internal/descriptor"
	"github.com/xserial-go/xserial/internal/scc"
)

// Hooks are the per-class custom serialization callbacks recognized by
// slot mode. All fields are optional. The obj passed to each callback is
// an addressable pointer to the hooked class, which for an ancestor class
// is the embedded portion of the instance being serialized.
//
// WriteReplace and ReadResolve are recognized only to refuse them: a class
// declaring either is routed to a replace-resolve serializer that this
// engine does not provide.
type Hooks struct {
	WriteSelf  func(obj reflect.Value, s *SlotStream) error
	ReadSelf   func(obj reflect.Value, s *SlotStream) error
	ReadNoData func(obj reflect.Value) error

	WriteReplace func(obj reflect.Value) (any, error)
	ReadResolve  func(obj reflect.Value) (any, error)
}

func (h *Hooks) custom() bool {
	return h != nil && (h.WriteSelf != nil || h.ReadSelf != nil)
}

// Registry maps contract class names to local types and carries per-class
// hooks. It is safe for concurrent use: lookups take a read lock,
// registration a write lock.
type Registry struct {
	mu     sync.RWMutex
	byName map[string]reflect.Type
	names  map[reflect.Type]string
	hooks  map[reflect.Type]*Hooks
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]reflect.Type),
		names:  make(map[reflect.Type]string),
		hooks:  make(map[reflect.Type]*Hooks),
	}
}

// Register records t and every struct type reachable from it under their
// default class names. Registration order over the reachable set is
// deterministic: dependency-first over the strongly-connected components
// of the type graph, so both peers that register the same root observe
// the same sequence.
func (r *Registry) Register(t reflect.Type) error {
	t = baseStruct(t)
	if t == nil {
		return fmt.Errorf("xserial: only struct types can be registered")
	}

	for _, member := range r.Closure(t) {
		// A member already registered keeps its name; explicit contract
		// names must survive the closure walk.
		if _, ok := r.registered(member); ok {
			continue
		}
		if err := r.RegisterAs(descriptor.ClassNameOf(member), member); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) registered(t reflect.Type) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.names[t]
	return name, ok
}

// RegisterAs records t under an explicit contract name. Renaming a Go type
// without breaking the wire contract is done by registering the new type
// under the old name. Registering a second type under a taken name is an
// error; re-registering the same pair is a no-op.
func (r *Registry) RegisterAs(name string, t reflect.Type) error {
	t = baseStruct(t)
	if t == nil {
		return fmt.Errorf("xserial: only struct types can be registered")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byName[name]; ok && prev != t {
		return fmt.Errorf("xserial: class name %q already registered to %v", name, prev)
	}
	if prev, ok := r.names[t]; ok && prev != name {
		return fmt.Errorf("xserial: type %v already registered as %q", t, prev)
	}

	r.byName[name] = t
	r.names[t] = name
	return nil
}

// Lookup resolves a contract class name to a local type.
func (r *Registry) Lookup(name string) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byName[name]
	return t, ok
}

// NameOf returns the contract name for t: its registered name, or the
// default class name if it was never registered.
func (r *Registry) NameOf(t reflect.Type) string {
	r.mu.RLock()
	name, ok := r.names[t]
	r.mu.RUnlock()
	if ok {
		return name
	}
	return descriptor.ClassNameOf(t)
}

// SetHooks attaches custom serialization hooks to t.
func (r *Registry) SetHooks(t reflect.Type, h *Hooks) error {
	t = baseStruct(t)
	if t == nil {
		return fmt.Errorf("xserial: hooks can only be attached to struct types")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks[t] = h
	return nil
}

// HooksOf returns the hooks attached to t, or nil.
func (r *Registry) HooksOf(t reflect.Type) *Hooks {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.hooks[t]
}

// Closure returns every struct type reachable from root through field,
// element, and embedding edges, dependency-first. Cyclic type graphs are
// handled by condensing them into strongly-connected components.
func (r *Registry) Closure(root reflect.Type) []reflect.Type {
	dag := scc.Sort(root, func(t reflect.Type) iter.Seq[reflect.Type] {
		return func(yield func(reflect.Type) bool) {
			for i := range t.NumField() {
				dep := baseStruct(t.Field(i).Type)
				if dep != nil && dep != t {
					if !yield(dep) {
						return
					}
				}
			}
		}
	})

	var out []reflect.Type
	for c := range dag.Topological() {
		out = append(out, c.Members()...)
	}
	return out
}

// baseStruct strips pointers, slices, and arrays down to an underlying
// struct type, returning nil if none is reached.
func baseStruct(t reflect.Type) reflect.Type {
	for {
		switch t.Kind() {
		case reflect.Ptr, reflect.Slice, reflect.Array:
			t = t.Elem()
		case reflect.Struct:
			return t
		default:
			return nil
		}
	}
}
