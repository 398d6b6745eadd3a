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

package codegen_test

import (
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xserial-go/xserial/internal/codegen"
)

type spec struct{ n int }

func key(n uint64) codegen.Key {
	return codegen.Key{Type: reflect.TypeOf(spec{}), Def: n}
}

func TestBuildInstallsOnce(t *testing.T) {
	t.Parallel()

	var c codegen.Cache[spec]
	var builds atomic.Int32

	build := func() (*spec, error) {
		builds.Add(1)
		return &spec{n: 1}, nil
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.Build(key(1), build)
			assert.NoError(t, err)
			assert.NotNil(t, v)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), builds.Load())
	assert.NotNil(t, c.Lookup(key(1)))
	assert.Nil(t, c.Lookup(key(2)))
}

func TestEnsureNeverBlocks(t *testing.T) {
	t.Parallel()

	var c codegen.Cache[spec]
	release := make(chan struct{})
	built := make(chan struct{})

	// While the builder is parked, Ensure keeps returning nil (the caller
	// interprets) rather than waiting.
	v := c.Ensure(key(1), func() (*spec, error) {
		<-release
		close(built)
		return &spec{n: 2}, nil
	})
	assert.Nil(t, v)
	assert.Nil(t, c.Ensure(key(1), func() (*spec, error) { return nil, errors.New("unreachable") }))

	close(release)
	<-built

	// Installation is an atomic swap observable on a later call.
	assert.Eventually(t, func() bool {
		return c.Lookup(key(1)) != nil
	}, time.Second, time.Millisecond)
}

func TestBuildError(t *testing.T) {
	t.Parallel()

	var c codegen.Cache[spec]

	_, err := c.Build(key(3), func() (*spec, error) { return nil, errors.New("boom") })
	require.Error(t, err)

	// A failed build leaves the slot empty; the next build retries.
	v, err := c.Build(key(3), func() (*spec, error) { return &spec{n: 3}, nil })
	require.NoError(t, err)
	assert.Equal(t, 3, v.n)
}
