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
	"github.com/xserial-go/xserial/internal/compat"
)

// CompatibleMode selects how peer class definitions reconcile against
// local classes; see [Strict] and [ForwardBackward].
type CompatibleMode = compat.Mode

const (
	// Strict requires identical class definitions on both peers.
	Strict CompatibleMode = compat.Strict
	// ForwardBackward tolerates added and removed fields between peers.
	ForwardBackward CompatibleMode = compat.ForwardBackward
)

type settings struct {
	cfg compat.Config
	reg *Registry
}

// Option is a configuration setting for [NewContext].
type Option struct{ apply func(*settings) }

// WithCompatibleMode sets the reconciliation mode. The default is
// [ForwardBackward].
func WithCompatibleMode(m CompatibleMode) Option {
	return Option{func(s *settings) { s.cfg.Mode = m }}
}

// WithMetaShare toggles the class-definition exchange protocol. When off,
// objects carry class names instead of handles, and both peers must hold
// identical definitions. The default is on.
func WithMetaShare(enabled bool) Option {
	return Option{func(s *settings) { s.cfg.MetaShare = enabled }}
}

// WithCheckClassVersion makes writers emit the 64-bit definition ID with
// every class marker and readers verify it against the local definition.
// It cannot be combined with meta-sharing in [ForwardBackward] mode, where
// differing definitions are the point.
func WithCheckClassVersion(enabled bool) Option {
	return Option{func(s *settings) { s.cfg.CheckClassVersion = enabled }}
}

// WithCompressInts encodes 32-bit integer fields as zig-zag varints
// instead of fixed-width. Both peers must agree.
func WithCompressInts(enabled bool) Option {
	return Option{func(s *settings) { s.cfg.CompressInts = enabled }}
}

// WithCompressLongs encodes 64-bit integer fields as zig-zag varints
// instead of fixed-width. Both peers must agree.
func WithCompressLongs(enabled bool) Option {
	return Option{func(s *settings) { s.cfg.CompressLongs = enabled }}
}

// WithTrackRefsForBasicTypes routes string values through the reference
// resolver, so repeated strings are written once per message. Both peers
// must agree.
func WithTrackRefsForBasicTypes(enabled bool) Option {
	return Option{func(s *settings) { s.cfg.TrackRefsForBasics = enabled }}
}

// WithCodeGen toggles the process-wide specialization cache for
// consolidation plans. Serialized bytes are identical either way; only
// where the plan comes from changes. The default is on.
func WithCodeGen(enabled bool) Option {
	return Option{func(s *settings) { s.cfg.CodeGen = enabled }}
}

// WithRegistry shares a class registry between Contexts, so hooks and
// contract names are declared once. The default is a fresh registry per
// Context.
func WithRegistry(r *Registry) Option {
	return Option{func(s *settings) { s.reg = r }}
}
