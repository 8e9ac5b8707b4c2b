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

package cfg

// Phynode describes one physical machine of the infrastructure. Each inner
// slice of Cores is the free-core list of one NUMA node; core numbers are
// globally unique across all phynodes.
type Phynode struct {
	Cores [][]uint               `mapstructure:"cores"`
	Extra map[string]interface{} `mapstructure:",remain"`
}

// TotalCores returns the number of cores available on the phynode.
func (p *Phynode) TotalCores() int {
	total := 0
	for _, numa := range p.Cores {
		total += len(numa)
	}
	return total
}

// Phynodes is the infrastructure: a named mapping of phynodes plus optional
// per-phynode setup hooks and an extension-field bag.
type Phynodes struct {
	Nodes map[string]*Phynode    `mapstructure:"nodes"`
	Setup *SetupHooks            `mapstructure:"setup"`
	Extra map[string]interface{} `mapstructure:",remain"`
}

// SetupHooks carries commands run on a phynode before and after its nodes
// are provisioned.
type SetupHooks struct {
	Pre  []string `mapstructure:"pre"`
	Post []string `mapstructure:"post"`
}

// TotalCores returns the number of cores available in the infrastructure.
func (p *Phynodes) TotalCores() int {
	total := 0
	for _, phynode := range p.Nodes {
		total += phynode.TotalCores()
	}
	return total
}

// FileSpec declares a file payload bound into a node: a source path, a
// destination path, and whether the destination should be executable.
type FileSpec struct {
	Src  string `mapstructure:"src"`
	Dst  string `mapstructure:"dst"`
	Exec bool   `mapstructure:"exec"`
}

// NodeConfig is the declared configuration of one virtual node.
type NodeConfig struct {
	Sysctls   map[string]string      `mapstructure:"sysctls"`
	Templates map[string]string      `mapstructure:"templates"`
	Files     []*FileSpec            `mapstructure:"files"`
	Exec      []string               `mapstructure:"exec"`
	Pinned    []*Pinned              `mapstructure:"pinned"`
	Addrs     map[string][]string    `mapstructure:"addrs"`
	Extra     map[string]interface{} `mapstructure:",remain"`
}

// NodeDefaults carries group-level defaults merged into every node.
type NodeDefaults struct {
	Sysctls   map[string]string      `mapstructure:"sysctls"`
	Templates map[string]string      `mapstructure:"templates"`
	Files     []*FileSpec            `mapstructure:"files"`
	Exec      []string               `mapstructure:"exec"`
	Pinned    []*Pinned              `mapstructure:"pinned"`
	Extra     map[string]interface{} `mapstructure:",remain"`
}

// LinkDefaults carries group-level defaults expanded into every interface.
type LinkDefaults struct {
	Latency string                 `mapstructure:"latency"`
	Metric  uint                   `mapstructure:"metric"`
	MTU     uint32                 `mapstructure:"mtu"`
	BW      string                 `mapstructure:"bw"`
	Extra   map[string]interface{} `mapstructure:",remain"`
}

// Defaults groups the node and link default records. They are unrelated;
// either may be absent.
type Defaults struct {
	Nodes *NodeDefaults `mapstructure:"nodes"`
	Links *LinkDefaults `mapstructure:"links"`
}

// Link declares a virtual link between exactly two endpoints. The extension
// bag attaches overrides, keyed either by field name (symmetric) or by an
// endpoint string naming one interface of this link (directional).
type Link struct {
	Endpoints [2]Endpoint            `mapstructure:"endpoints"`
	Extra     map[string]interface{} `mapstructure:",remain"`
}

// Topology is the declared virtual topology.
type Topology struct {
	Defaults Defaults               `mapstructure:"defaults"`
	Nodes    map[string]*NodeConfig `mapstructure:"nodes"`
	Links    []*Link                `mapstructure:"links"`
}
