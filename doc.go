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

// Package xserial is a schema-evolution serialization core: it serializes
// and deserializes object graphs between peers that may hold different
// versions of the same types (fields added, removed, renamed in contract,
// or reordered), preserving reference identity and field values.
//
// Peers exchange structural class definitions once per pairing and refer
// to them by dense integer handles afterwards; a received definition is
// consolidated against the local class to produce a read plan that assigns
// present fields, skips absent ones, and defaults the rest. Classes with
// per-ancestor custom hooks serialize through a slot protocol that
// reproduces the legacy hierarchical stream semantics (write/read hooks,
// put-field and get-field records, post-construction validation) on a flat
// binary buffer.
//
// The unit of use is a [Context], one per peer pairing and direction pair:
//
//	ctx, _ := xserial.NewContext()
//	ctx.Register(Point{})
//
//	msg, _ := ctx.Write(&Point{X: 3, Y: 4})
//	back, _ := ctx.Read(msg) // back.(*Point)
//
// A Context is not safe for concurrent use; concurrent serializations use
// distinct Contexts.
package xserial
