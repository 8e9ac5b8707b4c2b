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

// Package dune resolves a declared topology into per-node runtime state and
// drives the provisioning lifecycle: core allocation, namespace creation,
// link plumbing, and pinned-process launch on a single phynode.
package dune

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/dune-emu/dune/pkg/cfg"
	"github.com/dune-emu/dune/pkg/corealloc"
	logger "github.com/dune-emu/dune/pkg/log"
	"github.com/dune-emu/dune/pkg/metrics"
	"github.com/dune-emu/dune/pkg/netns"
	"github.com/dune-emu/dune/pkg/render"
)

// our logger instance
var log = logger.NewLogger("dune")

// Dune is a fully resolved topology: every node expanded from its defaults,
// every link endpoint attached to its owning node.
type Dune struct {
	// Nodes of the topology, by name.
	Nodes map[string]*Node
	// Infra is the declared physical infrastructure.
	Infra *cfg.Phynodes

	base      string
	renderer  *render.Renderer
	mu        sync.Mutex
	allocated bool
}

// Stats summarizes a resolved topology.
type Stats struct {
	Nodes          int
	Links          int
	RequestedCores int
	FreeCores      int
}

// New loads the configuration from the given path and resolves it. Template
// and bound-file lookups are relative to the configuration file's directory.
func New(path string) (*Dune, error) {
	c, err := cfg.Load(path)
	if err != nil {
		return nil, err
	}
	return FromConfig(c, filepath.Dir(path))
}

// FromConfig resolves an already parsed configuration.
func FromConfig(c *cfg.Config, base string) (*Dune, error) {
	d := &Dune{
		Nodes:    make(map[string]*Node),
		Infra:    c.Infrastructure,
		base:     base,
		renderer: render.NewRenderer(base),
	}

	topo := c.Topology
	for name, config := range topo.Nodes {
		d.Nodes[name] = NewNode(name, topo.Defaults.Nodes, config)
	}

	for _, link := range topo.Links {
		d.loadLink(topo.Defaults.Links, link)
	}

	// Loopback entries are synthesized last so that declared loopback
	// addresses attach even when no link touches the node. A link-declared
	// interface of the same name keeps its earlier binding.
	for _, node := range d.Nodes {
		if _, taken := node.Interfaces[loopbackName]; taken {
			continue
		}
		node.Interfaces[loopbackName] = newLoopback(node.Addrs[loopbackName])
	}

	return d, nil
}

// loadLink attaches both endpoints of one link to their owning nodes. An
// endpoint naming an undeclared node is skipped; on a duplicate interface
// name the first declaration wins. Interface indices are assigned per node
// in declaration order, above the reserved loopback index.
func (d *Dune) loadLink(dflt *cfg.LinkDefaults, link *cfg.Link) {
	for idx := range link.Endpoints {
		endpoint := link.Endpoints[idx]
		node, ok := d.Nodes[endpoint.Node]
		if !ok {
			log.Warn("link endpoint %s refers to undeclared node %q, skipping",
				endpoint.String(), endpoint.Node)
			continue
		}
		if _, taken := node.Interfaces[endpoint.Interface]; taken {
			log.Warn("duplicate interface %s, keeping the earlier declaration",
				endpoint.String())
			continue
		}

		ifindex := len(node.Interfaces) + loopbackIndex + 1
		iface := newInterface(dflt, link, idx, ifindex)
		iface.Addrs = node.Addrs[endpoint.Interface]
		node.Interfaces[endpoint.Interface] = iface
	}
}

// Allocate bin-packs the pinned-process core requests of all nodes onto the
// infrastructure's free cores and substitutes the physical core ids into
// each node. One-shot: repeated calls are no-ops. Fails atomically, leaving
// the topology unallocated.
func (d *Dune) Allocate() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.allocated {
		return nil
	}
	if d.Infra == nil {
		return duneError("cannot allocate cores: no infrastructure declared")
	}

	pools := make(map[string][][]uint, len(d.Infra.Nodes))
	for host, phynode := range d.Infra.Nodes {
		pools[host] = phynode.Cores
	}
	alloc := corealloc.New(pools)

	requests := make(map[string]int, len(d.Nodes))
	for name, node := range d.Nodes {
		requests[name] = node.RequestedCores()
	}

	assignments, err := alloc.Allocate(requests)
	if err != nil {
		return err
	}

	for name, as := range assignments {
		node := d.Nodes[name]
		node.Phynode = as.Host
		node.Cores = make(map[string]uint, len(as.Cores))

		// Hand the physical cores to the pinned processes in slot order.
		// The node-level mapping keeps the first binding of each slot id;
		// per-process expansion contexts override it with their own.
		next := 0
		for _, p := range node.Pinned {
			for _, id := range p.CoreIDs() {
				core := as.Cores[next]
				next++
				p.SetCore(id, core)
				if _, taken := node.Cores[id]; !taken {
					node.Cores[id] = core
				}
			}
		}
		metrics.CoresAllocated.Add(float64(len(as.Cores)))
		log.Info("node %s: %d cores on phynode %s", name, len(as.Cores), as.Host)
	}

	d.consumeCores(assignments)
	d.allocated = true
	return nil
}

// consumeCores removes the allocated cores from the infrastructure's free
// pools, so that exports ship what is actually left.
func (d *Dune) consumeCores(assignments map[string]corealloc.Assignment) {
	taken := map[string]map[uint]bool{}
	for _, as := range assignments {
		if taken[as.Host] == nil {
			taken[as.Host] = map[uint]bool{}
		}
		for _, core := range as.Cores {
			taken[as.Host][core] = true
		}
	}

	for host, cores := range taken {
		phynode := d.Infra.Nodes[host]
		for i, group := range phynode.Cores {
			kept := make([]uint, 0, len(group))
			for _, core := range group {
				if !cores[core] {
					kept = append(kept, core)
				}
			}
			phynode.Cores[i] = kept
		}
	}
}

// Phynodes returns the sorted ids of the declared phynodes.
func (d *Dune) Phynodes() []string {
	if d.Infra == nil {
		return nil
	}
	return sortedKeys(d.Infra.Nodes)
}

// NodesOn returns the nodes allocated to the given phynode, sorted by name.
// Allocate must have run.
func (d *Dune) NodesOn(host string) []*Node {
	names := []string{}
	for name, node := range d.Nodes {
		if node.Phynode == host {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	nodes := make([]*Node, 0, len(names))
	for _, name := range names {
		nodes = append(nodes, d.Nodes[name])
	}
	return nodes
}

// Stats reports topology and allocation statistics.
func (d *Dune) Stats() Stats {
	s := Stats{Nodes: len(d.Nodes)}
	links := 0
	for _, node := range d.Nodes {
		s.RequestedCores += node.RequestedCores()
		for _, iface := range node.Interfaces {
			if iface.Peer != nil {
				links++
			}
		}
	}
	s.Links = links / 2

	// Once allocation has consumed the pools, what is in them is what is
	// free; before that the pending requests still count against them.
	if d.Infra != nil {
		d.mu.Lock()
		s.FreeCores = d.Infra.TotalCores()
		if !d.allocated {
			s.FreeCores -= s.RequestedCores
		}
		d.mu.Unlock()
	}
	return s
}

// PhynodeSetup provisions the slice of the topology allocated to the given
// phynode: infrastructure pre hooks, node configuration, namespace creation
// for every local node, per-node live setup, then the post hooks. Namespaces
// are created for all nodes before any link is plumbed so that both ends of
// a local link resolve.
func (d *Dune) PhynodeSetup(host string) error {
	if err := d.Allocate(); err != nil {
		return err
	}

	nodes := d.NodesOn(host)
	if len(nodes) == 0 {
		log.Warn("phynode %s: no nodes allocated", host)
	}

	var errs *multierror.Error

	if d.Infra.Setup != nil {
		for _, hook := range d.Infra.Setup.Pre {
			if err := netns.Shell(hook, nil); err != nil {
				log.Error("pre hook: %v", err)
				errs = multierror.Append(errs, err)
			}
		}
	}

	for _, node := range nodes {
		node.Configure(d.renderer)
	}
	for _, node := range nodes {
		if err := node.Init(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	for _, node := range nodes {
		if err := node.Setup(); err != nil {
			errs = multierror.Append(errs, err)
		}
	}

	if d.Infra.Setup != nil {
		for _, hook := range d.Infra.Setup.Post {
			if err := netns.Shell(hook, nil); err != nil {
				log.Error("post hook: %v", err)
				errs = multierror.Append(errs, err)
			}
		}
	}

	return errs.ErrorOrNil()
}

// duneError creates a package-specific formatted error.
func duneError(format string, args ...interface{}) error {
	return fmt.Errorf("dune: "+format, args...)
}
