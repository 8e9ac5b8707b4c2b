// Copyright The Dune Authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package corealloc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocate(t *testing.T) {
	tcases := []struct {
		name     string
		pools    map[string][][]uint
		requests map[string]int
		result   map[string]Assignment
		free     int
		fail     bool
	}{
		{
			name:     "single node fills a single pool",
			pools:    map[string][][]uint{"phy0": {{0, 1, 2, 3}}},
			requests: map[string]int{"r0": 2},
			result:   map[string]Assignment{"r0": {Host: "phy0", Cores: []uint{0, 1}}},
			free:     2,
		},
		{
			name:     "two nodes split one pool",
			pools:    map[string][][]uint{"phy0": {{0, 1, 2, 3}}},
			requests: map[string]int{"r0": 2, "r1": 2},
			result: map[string]Assignment{
				"r0": {Host: "phy0", Cores: []uint{0, 1}},
				"r1": {Host: "phy0", Cores: []uint{2, 3}},
			},
			free: 0,
		},
		{
			name:     "largest requests are placed first",
			pools:    map[string][][]uint{"phy0": {{0, 1}, {2, 3, 4}}},
			requests: map[string]int{"small": 2, "big": 3},
			result: map[string]Assignment{
				"big":   {Host: "phy0", Cores: []uint{2, 3, 4}},
				"small": {Host: "phy0", Cores: []uint{0, 1}},
			},
			free: 0,
		},
		{
			name: "assignment never straddles NUMA groups",
			pools: map[string][][]uint{
				"phy0": {{0, 1}, {2, 3, 4, 5}},
			},
			requests: map[string]int{"r0": 3},
			result:   map[string]Assignment{"r0": {Host: "phy0", Cores: []uint{2, 3, 4}}},
			free:     3,
		},
		{
			name: "spill over to the next phynode",
			pools: map[string][][]uint{
				"phy0": {{0, 1}},
				"phy1": {{2, 3, 4, 5}},
			},
			requests: map[string]int{"r0": 4},
			result:   map[string]Assignment{"r0": {Host: "phy1", Cores: []uint{2, 3, 4, 5}}},
			free:     2,
		},
		{
			name:     "zero-core request is assigned a host without cores",
			pools:    map[string][][]uint{"phy0": {{0, 1}}},
			requests: map[string]int{"r0": 0},
			result:   map[string]Assignment{"r0": {Host: "phy0"}},
			free:     2,
		},
		{
			name:     "over-demand fails",
			pools:    map[string][][]uint{"phy0": {{0, 1}}},
			requests: map[string]int{"r0": 3},
			fail:     true,
		},
		{
			name: "fragmented pool fails despite enough free cores",
			pools: map[string][][]uint{
				"phy0": {{0, 1}, {2, 3}},
			},
			requests: map[string]int{"r0": 3},
			fail:     true,
		},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			a := New(tc.pools)
			before := a.Free()

			result, err := a.Allocate(tc.requests)
			if tc.fail {
				require.Error(t, err)
				// Failure never consumes any core.
				assert.Equal(t, before, a.Free())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.result, result)
			assert.Equal(t, tc.free, a.Free())
		})
	}
}

func TestAllocateUniqueCores(t *testing.T) {
	a := New(map[string][][]uint{
		"phy0": {{0, 1, 2, 3}, {4, 5, 6, 7}},
		"phy1": {{8, 9, 10, 11}},
	})
	result, err := a.Allocate(map[string]int{
		"r0": 3, "r1": 3, "r2": 2, "r3": 1, "r4": 1,
	})
	require.NoError(t, err)

	seen := map[uint]string{}
	for id, as := range result {
		for _, core := range as.Cores {
			if owner, dup := seen[core]; dup {
				t.Errorf("core %d assigned to both %q and %q", core, owner, id)
			}
			seen[core] = id
		}
	}
	assert.Len(t, seen, 10)
	assert.Equal(t, 2, a.Free())
}

func TestAllocateDeterministic(t *testing.T) {
	pools := map[string][][]uint{
		"phy1": {{8, 9, 10, 11}},
		"phy0": {{0, 1, 2, 3}, {4, 5, 6, 7}},
	}
	requests := map[string]int{"a": 2, "b": 2, "c": 2, "d": 2}

	reference, err := New(pools).Allocate(requests)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		result, err := New(pools).Allocate(requests)
		require.NoError(t, err)
		assert.Equal(t, reference, result)
	}
}

func TestAllocateConsumesAcrossCalls(t *testing.T) {
	a := New(map[string][][]uint{"phy0": {{0, 1, 2, 3}}})

	first, err := a.Allocate(map[string]int{"r0": 2})
	require.NoError(t, err)
	assert.Equal(t, []uint{0, 1}, first["r0"].Cores)

	second, err := a.Allocate(map[string]int{"r1": 2})
	require.NoError(t, err)
	assert.Equal(t, []uint{2, 3}, second["r1"].Cores)

	_, err = a.Allocate(map[string]int{"r2": 1})
	assert.Error(t, err)
}
