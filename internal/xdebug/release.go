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

//go:build !xdebug

package xdebug

// Enabled is false outside of xdebug builds.
const Enabled = false

// Log is a no-op outside of xdebug builds.
func Log(context []any, operation string, format string, args ...any) {}

// Assert is a no-op outside of xdebug builds. Internal invariants are still
// worth stating in code even when unchecked in release builds.
func Assert(cond bool, format string, args ...any) {}

// Value is an empty struct outside of xdebug builds.
type Value[T any] struct{}

// Get panics outside of xdebug builds; callers must guard with Enabled.
func (v *Value[T]) Get() *T { panic("xdebug: Value.Get called outside of an xdebug build") }
