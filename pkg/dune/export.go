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
	"io"

	"github.com/pelletier/go-toml/v2"

	"github.com/dune-emu/dune/pkg/cfg"
)

// Export writes the resolved topology as TOML: every node with its defaults
// already folded in, its interfaces with effective link parameters, and the
// core allocation if one has been made. Extension fields are preserved.
func (d *Dune) Export(w io.Writer) error {
	nodes := map[string]interface{}{}
	for _, name := range sortedKeys(d.Nodes) {
		nodes[name] = exportNode(d.Nodes[name])
	}

	doc := map[string]interface{}{
		"nodes": nodes,
	}
	if d.Infra != nil {
		doc["infrastructure"] = exportInfra(d.Infra)
	}
	if len(d.Nodes) > 0 {
		stats := d.Stats()
		doc["stats"] = map[string]interface{}{
			"nodes":           stats.Nodes,
			"links":           stats.Links,
			"requested_cores": stats.RequestedCores,
		}
	}

	enc := toml.NewEncoder(w)
	enc.SetIndentTables(true)
	if err := enc.Encode(doc); err != nil {
		return duneError("failed to export topology: %v", err)
	}
	return nil
}

// exportInfra flattens the infrastructure into a generic TOML-encodable tree.
func exportInfra(infra *cfg.Phynodes) map[string]interface{} {
	phynodes := map[string]interface{}{}
	for _, id := range sortedKeys(infra.Nodes) {
		phynode := infra.Nodes[id]
		entry := map[string]interface{}{}
		for key, value := range phynode.Extra {
			entry[key] = value
		}
		entry["cores"] = phynode.Cores
		phynodes[id] = entry
	}

	out := map[string]interface{}{"nodes": phynodes}
	for key, value := range infra.Extra {
		if _, taken := out[key]; !taken {
			out[key] = value
		}
	}
	if infra.Setup != nil {
		setup := map[string]interface{}{}
		if len(infra.Setup.Pre) > 0 {
			setup["pre"] = infra.Setup.Pre
		}
		if len(infra.Setup.Post) > 0 {
			setup["post"] = infra.Setup.Post
		}
		out["setup"] = setup
	}
	return out
}

// exportNode flattens one resolved node into a generic TOML-encodable tree.
func exportNode(n *Node) map[string]interface{} {
	out := map[string]interface{}{}
	for key, value := range n.Extra {
		out[key] = value
	}

	if len(n.Sysctls) > 0 {
		out["sysctls"] = n.Sysctls
	}
	if len(n.Templates) > 0 {
		out["templates"] = n.Templates
	}
	if len(n.Exec) > 0 {
		out["exec"] = n.Exec
	}
	if len(n.Files) > 0 {
		files := make([]map[string]interface{}, 0, len(n.Files))
		for _, f := range n.Files {
			files = append(files, map[string]interface{}{
				"src": f.Src, "dst": f.Dst, "exec": f.Exec,
			})
		}
		out["files"] = files
	}
	if len(n.Pinned) > 0 {
		pinned := make([]map[string]interface{}, 0, len(n.Pinned))
		for _, p := range n.Pinned {
			entry := map[string]interface{}{"cmd": p.Cmd}
			if len(p.Environ) > 0 {
				entry["environ"] = p.Environ
			}
			if len(p.Post) > 0 {
				entry["post"] = p.Post
			}
			if p.Down != "" {
				entry["down"] = p.Down
			}
			if len(p.PreDown) > 0 {
				entry["pre_down"] = p.PreDown
			}
			if n.Phynode != "" {
				cores := map[string]interface{}{}
				for id, core := range p.Cores() {
					cores[id] = int64(core)
				}
				entry["cores"] = cores
			}
			pinned = append(pinned, entry)
		}
		out["pinned"] = pinned
	}

	ifaces := map[string]interface{}{}
	for _, name := range sortedKeys(n.Interfaces) {
		iface := n.Interfaces[name]
		entry := map[string]interface{}{
			"ifindex": int64(iface.IfIndex),
		}
		if len(iface.Addrs) > 0 {
			entry["addrs"] = iface.Addrs
		}
		if iface.Peer != nil {
			entry["peer"] = iface.Peer.String()
			entry["latency"] = iface.Latency.String()
			entry["metric"] = int64(iface.Metric)
			entry["mtu"] = int64(iface.MTU)
			if iface.Bandwidth != "" {
				entry["bw"] = iface.Bandwidth
			}
			if iface.MAC != "" {
				entry["mac"] = iface.MAC
			}
		}
		ifaces[name] = entry
	}
	if len(ifaces) > 0 {
		out["interfaces"] = ifaces
	}

	if n.Phynode != "" {
		out["phynode"] = n.Phynode
	}
	return out
}
