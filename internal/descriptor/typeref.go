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

// Package descriptor is the canonical representation of a type's
// serializable fields: their declared types, owning class, and
// nullability. It is built from plain Go struct reflection rather than a
// schema compiler, since this engine has no IDL of its own: a class
// definition is derived from a live type.
package descriptor

import (
	"fmt"
	"reflect"
)

// Kind is the tag of a [TypeRef].
type Kind uint8

// The kinds a field may declare.
const (
	KindInvalid Kind = iota
	KindBool
	KindI8
	KindI16
	KindI32
	KindI64
	KindF32
	KindF64
	KindChar
	KindString
	KindObject
	KindArray
	KindOpaque
)

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindI8:
		return "i8"
	case KindI16:
		return "i16"
	case KindI32:
		return "i32"
	case KindI64:
		return "i64"
	case KindF32:
		return "f32"
	case KindF64:
		return "f64"
	case KindChar:
		return "char"
	case KindString:
		return "string"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	case KindOpaque:
		return "opaque"
	default:
		return "invalid"
	}
}

// IsPrimitive reports whether k is one of the fixed-width scalar kinds
// (bool, the integer widths, the float widths, and char).
func (k Kind) IsPrimitive() bool {
	switch k {
	case KindBool, KindI8, KindI16, KindI32, KindI64, KindF32, KindF64, KindChar:
		return true
	default:
		return false
	}
}

// Size is the wire width in bytes of a primitive kind. Used by the Grouper
// to sort primitive fields by descending size. Returns 0 for non-primitive
// kinds.
func (k Kind) Size() int {
	switch k {
	case KindBool, KindI8:
		return 1
	case KindI16:
		return 2
	case KindI32, KindF32, KindChar:
		return 4
	case KindI64, KindF64:
		return 8
	default:
		return 0
	}
}

// TypeRef is a tagged variant describing a field's declared type.
type TypeRef struct {
	Kind Kind

	// Class is the class name for Kind == KindObject.
	Class string
	// Generics are optional generic type parameters for Kind == KindObject.
	Generics []TypeRef
	// Elem is the element type for Kind == KindArray.
	Elem *TypeRef
}

// Primitive builds a TypeRef for one of the fixed-width scalar kinds.
func Primitive(k Kind) TypeRef { return TypeRef{Kind: k} }

// String builds the string TypeRef.
func String() TypeRef { return TypeRef{Kind: KindString} }

// Opaque builds the TypeRef used when the concrete object type cannot be
// recovered statically, such as an interface-typed field.
func Opaque() TypeRef { return TypeRef{Kind: KindOpaque} }

// Object builds an object TypeRef for the named class, with optional
// generic parameters.
func Object(class string, generics ...TypeRef) TypeRef {
	return TypeRef{Kind: KindObject, Class: class, Generics: generics}
}

// Array builds an array TypeRef over elem.
func Array(elem TypeRef) TypeRef {
	return TypeRef{Kind: KindArray, Elem: &elem}
}

// String implements fmt.Stringer.
func (t TypeRef) String() string {
	switch t.Kind {
	case KindObject:
		if len(t.Generics) == 0 {
			return t.Class
		}
		return fmt.Sprintf("%s<%v>", t.Class, t.Generics)
	case KindArray:
		return fmt.Sprintf("%v[]", *t.Elem)
	default:
		return t.Kind.String()
	}
}

// Equal reports whether t and u describe the same declared type, ignoring
// the widenings consolidation is allowed to apply (those are decided by the
// compat package when it builds a plan).
func (t TypeRef) Equal(u TypeRef) bool {
	if t.Kind != u.Kind {
		return false
	}
	switch t.Kind {
	case KindObject:
		if t.Class != u.Class || len(t.Generics) != len(u.Generics) {
			return false
		}
		for i := range t.Generics {
			if !t.Generics[i].Equal(u.Generics[i]) {
				return false
			}
		}
		return true
	case KindArray:
		return t.Elem.Equal(*u.Elem)
	default:
		return true
	}
}

// charType is the reflect.Type of [Char], the named type used to opt a Go
// field into KindChar instead of KindI32 (which rune/int32 would otherwise
// be ambiguous with).
var charType = reflect.TypeOf(Char(0))

// Char is a named rune type. Declare a struct field with this type to have
// it treated as TypeRef kind "char" rather than a 32-bit integer; Go has no
// own distinct "character" type (rune is just an alias for int32), so the
// wire-level distinction has to be opted into explicitly.
type Char rune

var kindByGoKind = map[reflect.Kind]Kind{
	reflect.Bool:    KindBool,
	reflect.Int8:    KindI8,
	reflect.Uint8:   KindI8,
	reflect.Int16:   KindI16,
	reflect.Uint16:  KindI16,
	reflect.Int32:   KindI32,
	reflect.Uint32:  KindI32,
	reflect.Int64:   KindI64,
	reflect.Uint64:  KindI64,
	reflect.Int:     KindI64,
	reflect.Uint:    KindI64,
	reflect.Float32: KindF32,
	reflect.Float64: KindF64,
	reflect.String:  KindString,
}

// A Namer maps a Go type to the class name used for it on the wire. The
// engine's registry supplies one so that contract names survive renames of
// the Go type; nil means [ClassNameOf].
type Namer func(reflect.Type) string

// TypeRefOf derives the TypeRef and nullability for a Go field's static
// type, naming object types with [ClassNameOf]. ok is false if t is not a
// representable field type (e.g. a channel or a function).
func TypeRefOf(t reflect.Type) (ref TypeRef, nullable bool, ok bool) {
	return TypeRefWith(t, nil)
}

// TypeRefWith is [TypeRefOf] with an explicit [Namer] for object types.
func TypeRefWith(t reflect.Type, namer Namer) (ref TypeRef, nullable bool, ok bool) {
	if namer == nil {
		namer = ClassNameOf
	}

	if t == charType {
		return TypeRef{Kind: KindChar}, false, true
	}

	switch t.Kind() {
	case reflect.Ptr:
		inner, _, innerOK := TypeRefWith(t.Elem(), namer)
		if !innerOK {
			return TypeRef{}, false, false
		}
		return inner, true, true

	case reflect.Struct:
		return Object(namer(t)), false, true

	case reflect.Interface:
		return Opaque(), true, true

	case reflect.Slice:
		elem, _, innerOK := TypeRefWith(t.Elem(), namer)
		if !innerOK {
			return TypeRef{}, false, false
		}
		return Array(elem), true, true

	case reflect.Array:
		elem, _, innerOK := TypeRefWith(t.Elem(), namer)
		if !innerOK {
			return TypeRef{}, false, false
		}
		return Array(elem), false, true

	default:
		if k, isPrim := kindByGoKind[t.Kind()]; isPrim {
			return Primitive(k), false, true
		}
		return TypeRef{}, false, false
	}
}

// ClassNameOf returns the canonical class name for a Go struct type: its
// package path joined with its type name, matching how the engine expects
// ClassDef.ClassName to round-trip between peers compiled from the same
// source.
func ClassNameOf(t reflect.Type) string {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.PkgPath() == "" {
		return t.Name()
	}
	return t.PkgPath() + "." + t.Name()
}
