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

import (
	"regexp"
	"sort"
	"strconv"
	"text/template/parse"
)

// corePattern matches logical core identifiers referenced from pinned
// process environments, e.g. "core_0".
var corePattern = regexp.MustCompile(`^core_\d+$`)

// Pinned describes a long-running process bound to specific physical cores
// for the duration of the emulation.
type Pinned struct {
	// Cmd is the command line representing the pinned process.
	Cmd string `mapstructure:"cmd"`
	// Environ holds environment variables required to launch the process.
	Environ map[string]string `mapstructure:"environ"`
	// Down is the instruction required to properly shut down the process.
	Down string `mapstructure:"down"`
	// PreDown lists instructions launched before shutting down the process.
	PreDown []string `mapstructure:"pre_down"`
	// Post lists hook commands run detached right after the launch.
	Post []string `mapstructure:"post"`

	// cores maps logical core identifiers to core numbers. The values are
	// the logical indices until the allocator substitutes physical cores.
	cores map[string]uint
}

// Cores lazily collects the requested-core set of the process: core_0 plus
// one entry per distinct template variable matching "core_<n>" referenced
// in the environment values. The result is memoized; it is never recomputed
// for the same instance since recomputation after physical-core
// substitution would corrupt the mapping.
func (p *Pinned) Cores() map[string]uint {
	if p.cores != nil {
		return p.cores
	}

	p.cores = map[string]uint{"core_0": 0}
	for _, value := range p.Environ {
		for _, name := range templateVars(value) {
			if !corePattern.MatchString(name) {
				continue
			}
			idx, err := strconv.ParseUint(name[len("core_"):], 10, 32)
			if err != nil {
				continue
			}
			if _, ok := p.cores[name]; !ok {
				p.cores[name] = uint(idx)
			}
		}
	}
	return p.cores
}

// NumCores returns the number of cores requested by the process.
func (p *Pinned) NumCores() int {
	return len(p.Cores())
}

// CoreIDs returns the requested logical core identifiers sorted by their
// logical index. This is the slot order the allocator fills.
func (p *Pinned) CoreIDs() []string {
	cores := p.Cores()
	ids := make([]string, 0, len(cores))
	for id := range cores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return coreIndex(ids[i]) < coreIndex(ids[j]) })
	return ids
}

// SetCore binds a logical core identifier to a physical core number.
func (p *Pinned) SetCore(id string, core uint) {
	p.Cores()[id] = core
}

// Clone returns a deep copy of the pinned process declaration. The memoized
// core set is not carried over; each clone derives its own.
func (p *Pinned) Clone() *Pinned {
	c := &Pinned{
		Cmd:  p.Cmd,
		Down: p.Down,
	}
	if p.Environ != nil {
		c.Environ = make(map[string]string, len(p.Environ))
		for k, v := range p.Environ {
			c.Environ[k] = v
		}
	}
	c.PreDown = append([]string(nil), p.PreDown...)
	c.Post = append([]string(nil), p.Post...)
	return c
}

func coreIndex(id string) uint64 {
	idx, _ := strconv.ParseUint(id[len("core_"):], 10, 32)
	return idx
}

// templateVars returns the names of the variables referenced by the given
// template string. Strings that fail to parse reference no variables.
func templateVars(s string) []string {
	trees, err := parse.Parse("environ", s, "{{", "}}")
	if err != nil {
		return nil
	}
	names := []string{}
	collectVars(trees["environ"].Root, &names)
	return names
}

func collectVars(node parse.Node, names *[]string) {
	switch n := node.(type) {
	case *parse.ListNode:
		if n == nil {
			return
		}
		for _, child := range n.Nodes {
			collectVars(child, names)
		}
	case *parse.ActionNode:
		collectPipeVars(n.Pipe, names)
	case *parse.IfNode:
		collectPipeVars(n.Pipe, names)
		collectVars(n.List, names)
		collectVars(n.ElseList, names)
	case *parse.RangeNode:
		collectPipeVars(n.Pipe, names)
		collectVars(n.List, names)
		collectVars(n.ElseList, names)
	case *parse.WithNode:
		collectPipeVars(n.Pipe, names)
		collectVars(n.List, names)
		collectVars(n.ElseList, names)
	}
}

func collectPipeVars(pipe *parse.PipeNode, names *[]string) {
	if pipe == nil {
		return
	}
	for _, cmd := range pipe.Cmds {
		for _, arg := range cmd.Args {
			switch a := arg.(type) {
			case *parse.FieldNode:
				if len(a.Ident) == 1 {
					*names = append(*names, a.Ident[0])
				}
			case *parse.VariableNode:
				if len(a.Ident) == 1 {
					*names = append(*names, a.Ident[0])
				}
			case *parse.PipeNode:
				collectPipeVars(a, names)
			}
		}
	}
}
