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

// Package codegen implements the shared specialization cache. Code
// generation is treated as a cache over the interpreted path: a reader
// that finds no installed specialization falls back to interpretation and
// never blocks, while at most one builder runs per key. Installation is an
// atomic pointer swap observable on the next serialization.
package codegen

import (
	"reflect"
	"strconv"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/xserial-go/xserial/internal/xsync"
)

// Key identifies a specialization: a local type paired with the ID of the
// class definition it was specialized against.
type Key struct {
	Type reflect.Type
	Def  uint64
}

func (k Key) flight() string {
	return strconv.FormatUint(uint64(reflect.ValueOf(k.Type).Pointer()), 16) +
		":" + strconv.FormatUint(k.Def, 16)
}

// Cache is a process-wide map from [Key] to an installed specialization of
// type V. Lookups are lock-free; first-time builds are collapsed so that
// concurrent requests for the same key run one builder.
//
// The zero value is ready to use.
type Cache[V any] struct {
	entries xsync.Map[Key, *atomic.Pointer[V]]
	group   singleflight.Group
}

// Lookup returns the installed specialization for k, or nil if none has
// been installed yet.
func (c *Cache[V]) Lookup(k Key) *V {
	slot, ok := c.entries.Load(k)
	if !ok {
		return nil
	}
	return slot.Load()
}

// Ensure returns the installed specialization for k if present. Otherwise
// it starts build in the background (unless one is already running for k)
// and returns nil immediately; callers use the interpreted path until a
// later call observes the installed value.
//
// A build error leaves the slot empty; the next Ensure retries.
func (c *Cache[V]) Ensure(k Key, build func() (*V, error)) *V {
	slot, _ := c.entries.LoadOrStore(k, func() *atomic.Pointer[V] {
		return new(atomic.Pointer[V])
	})
	if v := slot.Load(); v != nil {
		return v
	}

	c.group.DoChan(k.flight(), func() (any, error) {
		v, err := build()
		if err != nil {
			return nil, err
		}
		slot.Store(v)
		return v, nil
	})

	return slot.Load()
}

// Build is Ensure, but synchronous: it blocks until the specialization for
// k is installed (building it on this goroutine if necessary) and returns
// it. Used on paths that need the result now, such as tests and eager
// warm-up.
func (c *Cache[V]) Build(k Key, build func() (*V, error)) (*V, error) {
	slot, _ := c.entries.LoadOrStore(k, func() *atomic.Pointer[V] {
		return new(atomic.Pointer[V])
	})
	if v := slot.Load(); v != nil {
		return v, nil
	}

	got, err, _ := c.group.Do(k.flight(), func() (any, error) {
		if v := slot.Load(); v != nil {
			return v, nil
		}
		v, err := build()
		if err != nil {
			return nil, err
		}
		slot.Store(v)
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return got.(*V), nil
}
