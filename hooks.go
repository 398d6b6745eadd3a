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

package xserial

import (
	"reflect"

	"github.com/xserial-go/xserial/internal/compat"
)

// Registry maps contract class names to local types and carries per-class
// serialization hooks. One Registry may back several Contexts.
type Registry = compat.Registry

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry { return compat.NewRegistry() }

// SlotStream is the stream surface handed to WriteSelf and ReadSelf
// hooks; see [Hooks].
type SlotStream = compat.SlotStream

// PutField is the sparse by-name field record used by write hooks.
type PutField = compat.PutField

// GetField is the read-side counterpart of [PutField].
type GetField = compat.GetField

// Hooks declares custom per-class serialization callbacks for T. A class
// anywhere in a type's embedding chain declaring WriteSelf or ReadSelf
// switches the whole type to slot mode: each level of the chain becomes
// one slot, written superclass-first, and the hooked levels drive their
// own slot payload through the [SlotStream].
//
// ReadNoData fires when the local chain has T but the peer's did not.
//
// WriteReplace and ReadResolve are recognized only to reject the type:
// classes using object replacement need a replace-resolve serializer,
// which this engine does not provide.
type Hooks[T any] struct {
	WriteSelf  func(obj *T, s *SlotStream) error
	ReadSelf   func(obj *T, s *SlotStream) error
	ReadNoData func(obj *T) error

	WriteReplace func(obj *T) (any, error)
	ReadResolve  func(obj *T) (any, error)
}

// RegisterHooks attaches h to T in r.
func RegisterHooks[T any](r *Registry, h Hooks[T]) error {
	t := reflect.TypeOf((*T)(nil)).Elem()

	// T may be an unexported embedded ancestor, whose addresses reached
	// through the derived value are read-only and panic in Interface.
	self := func(obj reflect.Value) *T {
		return reflect.NewAt(t, obj.UnsafePointer()).Interface().(*T)
	}

	hs := &compat.Hooks{}
	if h.WriteSelf != nil {
		hs.WriteSelf = func(obj reflect.Value, s *SlotStream) error {
			return h.WriteSelf(self(obj), s)
		}
	}
	if h.ReadSelf != nil {
		hs.ReadSelf = func(obj reflect.Value, s *SlotStream) error {
			return h.ReadSelf(self(obj), s)
		}
	}
	if h.ReadNoData != nil {
		hs.ReadNoData = func(obj reflect.Value) error {
			return h.ReadNoData(self(obj))
		}
	}
	if h.WriteReplace != nil {
		hs.WriteReplace = func(obj reflect.Value) (any, error) {
			return h.WriteReplace(self(obj))
		}
	}
	if h.ReadResolve != nil {
		hs.ReadResolve = func(obj reflect.Value) (any, error) {
			return h.ReadResolve(self(obj))
		}
	}

	return r.SetHooks(t, hs)
}
