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

// Default expansion merges group-level defaults with an entity's explicit
// configuration. Map-valued fields are merged key-wise with explicit
// entries overriding default ones; list-valued fields are the default-first
// union of both lists (entries already contributed by the defaults are not
// duplicated, keeping expansion idempotent); scalar fields follow "explicit
// wins, else default". The functions are pure: neither input is mutated.

// MergeNode expands a node configuration from the given defaults.
func MergeNode(dflt *NodeDefaults, config *NodeConfig) *NodeConfig {
	node := &NodeConfig{}
	if dflt != nil {
		node.Sysctls = cloneMap(dflt.Sysctls)
		node.Templates = cloneMap(dflt.Templates)
		node.Files = cloneFiles(dflt.Files)
		node.Exec = append([]string(nil), dflt.Exec...)
		node.Pinned = clonePinned(dflt.Pinned)
		node.Extra = cloneBag(dflt.Extra)
	}
	if config == nil {
		return node
	}

	node.Sysctls = mergeMap(node.Sysctls, config.Sysctls)
	node.Templates = mergeMap(node.Templates, config.Templates)
	node.Files = mergeFiles(node.Files, config.Files)
	node.Exec = mergeList(node.Exec, config.Exec)
	node.Pinned = mergePinned(node.Pinned, config.Pinned)
	node.Extra = mergeBag(node.Extra, config.Extra)

	if config.Addrs != nil {
		node.Addrs = make(map[string][]string, len(config.Addrs))
		for iface, addrs := range config.Addrs {
			node.Addrs[iface] = append([]string(nil), addrs...)
		}
	}

	return node
}

// mergeMap overlays explicit entries on top of default ones.
func mergeMap(dflt, config map[string]string) map[string]string {
	if dflt == nil && config == nil {
		return nil
	}
	merged := make(map[string]string, len(dflt)+len(config))
	for k, v := range dflt {
		merged[k] = v
	}
	for k, v := range config {
		merged[k] = v
	}
	return merged
}

// mergeBag overlays explicit extension-field entries on top of default
// ones. Values are carried opaquely; only top-level keys are merged.
func mergeBag(dflt, config map[string]interface{}) map[string]interface{} {
	if dflt == nil && config == nil {
		return nil
	}
	merged := make(map[string]interface{}, len(dflt)+len(config))
	for k, v := range dflt {
		merged[k] = v
	}
	for k, v := range config {
		merged[k] = v
	}
	return merged
}

// mergeList unions two string lists, default-first.
func mergeList(dflt, config []string) []string {
	if dflt == nil && config == nil {
		return nil
	}
	merged := append([]string(nil), dflt...)
	for _, entry := range config {
		found := false
		for _, have := range merged {
			if have == entry {
				found = true
				break
			}
		}
		if !found {
			merged = append(merged, entry)
		}
	}
	return merged
}

// mergeFiles unions two file lists, default-first, keyed by destination.
func mergeFiles(dflt, config []*FileSpec) []*FileSpec {
	if dflt == nil && config == nil {
		return nil
	}
	merged := append([]*FileSpec(nil), dflt...)
	for _, spec := range config {
		found := false
		for _, have := range merged {
			if have.Dst == spec.Dst && have.Src == spec.Src {
				found = true
				break
			}
		}
		if !found {
			s := *spec
			merged = append(merged, &s)
		}
	}
	return merged
}

// mergePinned unions two pinned-process lists, default-first, keyed by the
// command line.
func mergePinned(dflt, config []*Pinned) []*Pinned {
	if dflt == nil && config == nil {
		return nil
	}
	merged := append([]*Pinned(nil), dflt...)
	for _, p := range config {
		found := false
		for _, have := range merged {
			if have.Cmd == p.Cmd {
				found = true
				break
			}
		}
		if !found {
			merged = append(merged, p.Clone())
		}
	}
	return merged
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	c := make(map[string]string, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

func cloneBag(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	c := make(map[string]interface{}, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

func cloneFiles(files []*FileSpec) []*FileSpec {
	if files == nil {
		return nil
	}
	c := make([]*FileSpec, 0, len(files))
	for _, f := range files {
		spec := *f
		c = append(c, &spec)
	}
	return c
}

func clonePinned(pinned []*Pinned) []*Pinned {
	if pinned == nil {
		return nil
	}
	c := make([]*Pinned, 0, len(pinned))
	for _, p := range pinned {
		c = append(c, p.Clone())
	}
	return c
}
