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
	"fmt"
	"sort"

	logger "github.com/dune-emu/dune/pkg/log"
)

// our logger instance
var log = logger.NewLogger("corealloc")

// Assignment is the outcome of allocating one node's core slots: the chosen
// phynode and the physical cores, in slot-fill order. All cores of one
// assignment come from a single NUMA group of a single phynode.
type Assignment struct {
	Host  string
	Cores []uint
}

// Allocator bin-packs per-node core requests onto the NUMA-grouped free-core
// pools of the infrastructure.
type Allocator interface {
	// Allocate satisfies all requests (node id to requested core count) at
	// once or fails without consuming any core. A zero-core request is
	// assigned a host with no cores.
	Allocate(requests map[string]int) (map[string]Assignment, error)
	// Free returns the remaining free cores.
	Free() int
}

// allocator is our Allocator implementation.
type allocator struct {
	pools map[string][][]uint // free cores per phynode, one slice per NUMA group
	hosts []string            // phynode ids in deterministic scan order
}

// New creates an Allocator drawing from the given free-core pools. Each
// inner slice is one NUMA group; the pools are consumed as allocations
// succeed. Phynodes are scanned in sorted-id order so that results do not
// depend on map iteration order.
func New(pools map[string][][]uint) Allocator {
	a := &allocator{
		pools: make(map[string][][]uint, len(pools)),
		hosts: make([]string, 0, len(pools)),
	}
	for host, groups := range pools {
		cloned := make([][]uint, len(groups))
		for i, group := range groups {
			cloned[i] = append([]uint(nil), group...)
		}
		a.pools[host] = cloned
		a.hosts = append(a.hosts, host)
	}
	sort.Strings(a.hosts)
	return a
}

// Free returns the number of remaining free cores.
func (a *allocator) Free() int {
	total := 0
	for _, groups := range a.pools {
		for _, group := range groups {
			total += len(group)
		}
	}
	return total
}

// Allocate processes requests largest-first to reduce fragmentation. For
// each node the first NUMA group with enough free cores wins; exactly the
// requested number of cores is popped from the front of the group. The
// whole pass runs on a scratch copy: nothing is consumed unless every
// request can be satisfied.
func (a *allocator) Allocate(requests map[string]int) (map[string]Assignment, error) {
	demand := 0
	for _, count := range requests {
		demand += count
	}
	if free := a.Free(); demand > free {
		return nil, allocError("requested %d cores, only %d available", demand, free)
	}

	// Bucket nodes by requested count, buckets in descending count order,
	// node ids within a bucket in sorted order.
	buckets := map[int][]string{}
	counts := []int{}
	for id, count := range requests {
		if _, ok := buckets[count]; !ok {
			counts = append(counts, count)
		}
		buckets[count] = append(buckets[count], id)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(counts)))

	scratch := clonePools(a.pools)
	result := make(map[string]Assignment, len(requests))

	for _, count := range counts {
		ids := buckets[count]
		sort.Strings(ids)
		for _, id := range ids {
			assignment, ok := takeCores(scratch, a.hosts, count)
			if !ok {
				return nil, allocError(
					"no NUMA group can fit %d cores for node %q: free pool is fragmented", count, id)
			}
			result[id] = assignment
			log.Debug("node %q: %d cores on %q: %v", id, count, assignment.Host, assignment.Cores)
		}
	}

	a.pools = scratch
	return result, nil
}

// takeCores pops count cores from the first NUMA group that fits them.
func takeCores(pools map[string][][]uint, hosts []string, count int) (Assignment, bool) {
	for _, host := range hosts {
		for i, group := range pools[host] {
			if len(group) < count {
				continue
			}
			cores := append([]uint(nil), group[:count]...)
			pools[host][i] = group[count:]
			return Assignment{Host: host, Cores: cores}, true
		}
	}
	return Assignment{}, false
}

func clonePools(pools map[string][][]uint) map[string][][]uint {
	cloned := make(map[string][][]uint, len(pools))
	for host, groups := range pools {
		c := make([][]uint, len(groups))
		for i, group := range groups {
			c[i] = append([]uint(nil), group...)
		}
		cloned[host] = c
	}
	return cloned
}

// allocError creates a package-specific formatted error.
func allocError(format string, args ...interface{}) error {
	return fmt.Errorf("corealloc: "+format, args...)
}
