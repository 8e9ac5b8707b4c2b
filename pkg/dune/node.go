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

package dune

import (
	"errors"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sys/unix"

	"github.com/dune-emu/dune/pkg/cfg"
	"github.com/dune-emu/dune/pkg/metrics"
	"github.com/dune-emu/dune/pkg/netns"
	"github.com/dune-emu/dune/pkg/pidfile"
	"github.com/dune-emu/dune/pkg/render"
)

// Node is a resolved virtual node: the merged configuration plus the state
// accumulated while walking the lifecycle from Declared to Live.
type Node struct {
	// Name of the node; also the name of its network namespace.
	Name string
	// Sysctls applied inside the namespace during setup.
	Sysctls map[string]string
	// Templates to render, template name to destination path.
	Templates map[string]string
	// Files bound into the node.
	Files []*cfg.FileSpec
	// Exec commands run synchronously inside the namespace.
	Exec []string
	// Pinned processes launched inside the namespace.
	Pinned []*cfg.Pinned
	// Addrs maps interface names to their declared CIDR addresses.
	Addrs map[string][]string
	// Extra is the extension-field bag, preserved verbatim.
	Extra map[string]interface{}

	// Interfaces resolved from the link declarations.
	Interfaces map[string]*Interface
	// Phynode the node has been allocated to. Empty until allocation.
	Phynode string
	// Cores maps logical core identifiers to physical cores across all
	// pinned processes. Empty until allocation.
	Cores map[string]uint

	// Materialized state, produced by Configure.
	staged []*render.StagedFile
	execs  []string
	procs  []*pinnedProc
}

// pinnedProc is the launch-ready form of one pinned process.
type pinnedProc struct {
	index   int
	cmd     string
	environ []string
	post    []string
	core    uint
}

// NewNode expands a declared node from the group defaults.
func NewNode(name string, dflt *cfg.NodeDefaults, config *cfg.NodeConfig) *Node {
	merged := cfg.MergeNode(dflt, config)
	n := &Node{
		Name:       name,
		Sysctls:    merged.Sysctls,
		Templates:  merged.Templates,
		Files:      merged.Files,
		Exec:       merged.Exec,
		Pinned:     merged.Pinned,
		Addrs:      merged.Addrs,
		Extra:      merged.Extra,
		Interfaces: make(map[string]*Interface),
		Cores:      make(map[string]uint),
	}
	// Collect requested cores now so the derivation is never re-run after
	// physical substitution.
	for _, p := range n.Pinned {
		p.Cores()
	}
	return n
}

// RequestedCores returns the number of core slots the node's pinned
// processes request in total.
func (n *Node) RequestedCores() int {
	count := 0
	for _, p := range n.Pinned {
		count += p.NumCores()
	}
	return count
}

// renderContext builds the rendering context shared by templates, command
// expansion and file source expansion: the node name, the resolved
// interfaces with address and MAC projections, the assigned cores, and the
// extension fields.
func (n *Node) renderContext() render.Context {
	ifaces := make(map[string]interface{}, len(n.Interfaces))
	for name, iface := range n.Interfaces {
		entry := map[string]interface{}{
			"name":    name,
			"addrs":   iface.Addrs,
			"mtu":     iface.MTU,
			"metric":  iface.Metric,
			"bw":      iface.Bandwidth,
			"latency": iface.Latency.String(),
			"mac":     iface.MAC,
		}
		if iface.Peer != nil {
			entry["peer"] = iface.Peer.String()
		}
		ifaces[name] = entry
	}

	ctx := render.Context{
		"node":   n.Name,
		"ifaces": ifaces,
	}
	for id, core := range n.Cores {
		ctx[id] = core
	}
	for key, value := range n.Extra {
		if _, taken := ctx[key]; !taken {
			ctx[key] = value
		}
	}
	return ctx
}

// expand expands one template string against the node context. Expansion is
// best effort: a failing string is reported and used verbatim, it never
// aborts sibling expansions.
func (n *Node) expand(s string, ctx render.Context) string {
	expanded, err := render.ExpandString(s, ctx)
	if err != nil {
		log.Warn("node %s: %v", n.Name, err)
		return s
	}
	return expanded
}

// Configure materializes the node: bound-file payloads are loaded, declared
// templates rendered, and every pinned-process and exec command string
// expanded. Must run after allocation so that core mappings are available
// to the expansions.
func (n *Node) Configure(renderer *render.Renderer) {
	ctx := n.renderContext()

	// Bound files first, rendered templates after; Setup writes in order.
	n.staged = n.staged[:0]
	for _, spec := range n.Files {
		staged := &render.StagedFile{
			Src:  n.expand(spec.Src, ctx),
			Dst:  n.expand(spec.Dst, ctx),
			Exec: spec.Exec,
		}
		if err := staged.Load(); err != nil {
			// Leave the payload empty, the write still creates the file.
			log.Warn("node %s: %v", n.Name, err)
		}
		n.staged = append(n.staged, staged)
	}

	for _, name := range sortedKeys(n.Templates) {
		data, err := renderer.RenderTemplate(name, ctx)
		if err != nil {
			log.Warn("node %s: skipping template %s: %v", n.Name, name, err)
			continue
		}
		staged := &render.StagedFile{
			Src: name,
			Dst: n.expand(n.Templates[name], ctx),
		}
		staged.SetData(data)
		n.staged = append(n.staged, staged)
	}

	n.execs = n.execs[:0]
	for _, command := range n.Exec {
		n.execs = append(n.execs, n.expand(command, ctx))
	}

	n.procs = n.procs[:0]
	for i, p := range n.Pinned {
		pctx := render.Context{}
		for k, v := range ctx {
			pctx[k] = v
		}
		for id, core := range p.Cores() {
			pctx[id] = core
		}

		proc := &pinnedProc{
			index: i,
			cmd:   n.expand(p.Cmd, pctx),
			core:  p.Cores()["core_0"],
		}
		for _, key := range sortedKeys(p.Environ) {
			proc.environ = append(proc.environ, key+"="+n.expand(p.Environ[key], pctx))
		}
		for _, hook := range p.Post {
			proc.post = append(proc.post, n.expand(hook, pctx))
		}
		n.procs = append(n.procs, proc)
	}
}

// Init creates the node's network namespace. Failure is logged, not fatal:
// the remaining steps are still attempted defensively and fail individually
// with attributable logs if the namespace is absent.
func (n *Node) Init() error {
	if err := netns.Create(n.Name); err != nil {
		metrics.ProvisioningFailures.WithLabelValues("namespace").Inc()
		log.Error("node %s: %v", n.Name, err)
		return err
	}
	metrics.NamespacesCreated.Inc()
	return nil
}

// Setup provisions the live state of the node: materialized files, the
// loopback, the veth pairs towards peer namespaces, sysctls, exec commands,
// and pinned processes. Every failure is recovered locally and attributed;
// the aggregated error is informational and never interrupts siblings.
func (n *Node) Setup() error {
	var errs *multierror.Error

	for _, staged := range n.staged {
		if err := staged.Write(); err != nil {
			metrics.ProvisioningFailures.WithLabelValues("file").Inc()
			log.Error("node %s: %v", n.Name, err)
			errs = multierror.Append(errs, err)
		}
	}

	// Loopback first: it has no peer and is only addressed and marked up.
	if lo, ok := n.Interfaces[loopbackName]; ok {
		if err := netns.ConfigureLink(n.Name, loopbackName, &netns.LinkConfig{Addrs: lo.Addrs}); err != nil {
			metrics.ProvisioningFailures.WithLabelValues("interface").Inc()
			log.Error("node %s: loopback: %v", n.Name, err)
			errs = multierror.Append(errs, err)
		}
	}

	for _, iface := range n.sortedInterfaces() {
		if iface.Name == loopbackName {
			continue
		}
		if err := n.setupInterface(iface); err != nil {
			metrics.ProvisioningFailures.WithLabelValues("interface").Inc()
			log.Error("node %s: interface %s: %v", n.Name, iface.Name, err)
			errs = multierror.Append(errs, err)
		}
	}

	if err := netns.Execute(n.Name, func() error {
		return n.setupInside()
	}); err != nil {
		metrics.ProvisioningFailures.WithLabelValues("namespace").Inc()
		log.Error("node %s: %v", n.Name, err)
		errs = multierror.Append(errs, err)
	}

	return errs.ErrorOrNil()
}

// setupInterface creates the veth pair realizing one link endpoint and
// configures the local end.
func (n *Node) setupInterface(iface *Interface) error {
	if iface.Peer != nil {
		err := netns.CreateVeth(&netns.VethSpec{
			Name:          iface.Name,
			Namespace:     n.Name,
			PeerName:      iface.Peer.Interface,
			PeerNamespace: iface.Peer.Node,
			MTU:           int(iface.MTU),
		})
		switch {
		case err == nil:
			metrics.VethPairsCreated.Inc()
		case os.IsExist(err):
			// Pair already created from the peer endpoint.
		case errors.Is(err, netns.ErrNoNamespace):
			// The peer namespace may live on another phynode or may have
			// failed to initialize; skip the remote pairing.
			log.Warn("node %s: interface %s: %v", n.Name, iface.Name, err)
			return nil
		default:
			return err
		}
	}

	return netns.ConfigureLink(n.Name, iface.Name, &netns.LinkConfig{
		Addrs:   iface.Addrs,
		MTU:     int(iface.MTU),
		MAC:     iface.MAC,
		Latency: iface.Latency,
		Rate:    iface.Bandwidth,
	})
}

// setupInside applies sysctls, runs exec commands, and launches pinned
// processes. Runs on a dedicated thread bound to the node's namespace.
func (n *Node) setupInside() error {
	var errs *multierror.Error

	for _, key := range sortedKeys(n.Sysctls) {
		if err := applySysctl(key, n.Sysctls[key]); err != nil {
			metrics.ProvisioningFailures.WithLabelValues("sysctl").Inc()
			log.Error("node %s: %v", n.Name, err)
			errs = multierror.Append(errs, err)
		}
	}

	for _, command := range n.execs {
		if err := netns.Shell(command, nil); err != nil {
			metrics.ProvisioningFailures.WithLabelValues("exec").Inc()
			log.Error("node %s: %v", n.Name, err)
			errs = multierror.Append(errs, err)
		}
	}

	for _, proc := range n.procs {
		if err := n.launchPinned(proc); err != nil {
			metrics.ProvisioningFailures.WithLabelValues("pinned").Inc()
			log.Error("node %s: %v", n.Name, err)
			errs = multierror.Append(errs, err)
		}
	}

	return errs.ErrorOrNil()
}

// launchPinned binds the calling thread to the physical core of the
// process's first logical core slot, spawns the process detached (it
// inherits the affinity and the namespace at spawn time), records its PID,
// then runs the post-launch hooks.
func (n *Node) launchPinned(proc *pinnedProc) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(int(proc.core))
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		return duneError("failed to bind to core %d: %v", proc.core, err)
	}

	cmd := exec.Command("/bin/sh", "-c", proc.cmd)
	cmd.Env = append(os.Environ(), proc.environ...)
	if err := cmd.Start(); err != nil {
		return duneError("failed to launch pinned process %q: %v", proc.cmd, err)
	}
	pid := cmd.Process.Pid

	if err := pidfile.Write(pidfile.Path(n.Name, proc.index), pid); err != nil {
		log.Warn("node %s: %v", n.Name, err)
	}
	if err := cmd.Process.Release(); err != nil {
		log.Warn("node %s: failed to detach pinned process %d: %v", n.Name, pid, err)
	}
	metrics.PinnedLaunched.Inc()
	log.Info("node %s: pinned process %d launched on core %d (pid %d)",
		n.Name, proc.index, proc.core, pid)

	// Post-launch hooks run detached, like the process they accompany.
	for _, hook := range proc.post {
		h := exec.Command("/bin/sh", "-c", hook)
		h.Env = cmd.Env
		if err := h.Start(); err != nil {
			log.Error("node %s: post-launch hook %q: %v", n.Name, hook, err)
			continue
		}
		if err := h.Process.Release(); err != nil {
			log.Warn("node %s: failed to detach hook %q: %v", n.Name, hook, err)
		}
	}
	return nil
}

// sortedInterfaces returns the node's interfaces ordered by their index.
func (n *Node) sortedInterfaces() []*Interface {
	ifaces := make([]*Interface, 0, len(n.Interfaces))
	for _, iface := range n.Interfaces {
		ifaces = append(ifaces, iface)
	}
	sort.Slice(ifaces, func(i, j int) bool { return ifaces[i].IfIndex < ifaces[j].IfIndex })
	return ifaces
}

// applySysctl writes one sysctl value through /proc/sys in the current
// (namespace-bound) execution context.
func applySysctl(key, value string) error {
	path := "/proc/sys/" + strings.ReplaceAll(key, ".", "/")
	if err := os.WriteFile(path, []byte(value), 0644); err != nil {
		return duneError("failed to apply sysctl %s=%s: %v", key, value, err)
	}
	return nil
}

// sortedKeys returns the sorted keys of a string map.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
