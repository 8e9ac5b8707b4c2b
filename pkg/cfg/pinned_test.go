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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPinnedCores(t *testing.T) {
	tcases := []struct {
		name    string
		environ map[string]string
		cores   map[string]uint
	}{
		{
			name:  "no environ requests the implicit core",
			cores: map[string]uint{"core_0": 0},
		},
		{
			name: "environ without core variables",
			environ: map[string]string{
				"CONFIG": "/etc/frr/frr.conf",
			},
			cores: map[string]uint{"core_0": 0},
		},
		{
			name: "environ with core variables",
			environ: map[string]string{
				"RX_CORE": "{{.core_1}}",
				"TX_CORE": "{{.core_2}}",
			},
			cores: map[string]uint{"core_0": 0, "core_1": 1, "core_2": 2},
		},
		{
			name: "duplicate references collapse",
			environ: map[string]string{
				"A": "{{.core_1}}",
				"B": "worker-{{.core_1}}",
			},
			cores: map[string]uint{"core_0": 0, "core_1": 1},
		},
		{
			name: "near-miss names are not core slots",
			environ: map[string]string{
				"A": "{{.core_x}}",
				"B": "{{.cores_1}}",
				"C": "{{.core_1_rx}}",
			},
			cores: map[string]uint{"core_0": 0},
		},
		{
			name: "malformed template requests no extra cores",
			environ: map[string]string{
				"A": "{{.core_1",
			},
			cores: map[string]uint{"core_0": 0},
		},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			p := &Pinned{Cmd: "sleep inf", Environ: tc.environ}
			assert.Equal(t, tc.cores, p.Cores())
			assert.Equal(t, len(tc.cores), p.NumCores())
		})
	}
}

func TestPinnedCoresMemoized(t *testing.T) {
	p := &Pinned{
		Cmd:     "testpmd",
		Environ: map[string]string{"RX": "{{.core_1}}"},
	}
	require.Equal(t, map[string]uint{"core_0": 0, "core_1": 1}, p.Cores())

	p.SetCore("core_0", 17)
	p.SetCore("core_1", 23)

	// The substituted mapping must survive repeated lookups.
	assert.Equal(t, map[string]uint{"core_0": 17, "core_1": 23}, p.Cores())
	assert.Equal(t, 2, p.NumCores())
}

func TestPinnedCoreIDs(t *testing.T) {
	p := &Pinned{
		Cmd: "dataplane",
		Environ: map[string]string{
			"W10": "{{.core_10}}",
			"W2":  "{{.core_2}}",
			"W9":  "{{.core_9}}",
		},
	}
	// Numeric slot order, not lexicographic.
	assert.Equal(t, []string{"core_0", "core_2", "core_9", "core_10"}, p.CoreIDs())
}

func TestPinnedClone(t *testing.T) {
	p := &Pinned{
		Cmd:     "bgpd",
		Environ: map[string]string{"CORE": "{{.core_1}}"},
		Down:    "kill -TERM",
		PreDown: []string{"vtysh -c 'clear bgp *'"},
		Post:    []string{"vtysh -b"},
	}
	p.SetCore("core_1", 42)

	c := p.Clone()
	assert.Equal(t, p.Cmd, c.Cmd)
	assert.Equal(t, p.Environ, c.Environ)
	assert.Equal(t, p.Down, c.Down)
	assert.Equal(t, p.PreDown, c.PreDown)
	assert.Equal(t, p.Post, c.Post)

	// The clone derives a fresh, unsubstituted core set.
	assert.Equal(t, map[string]uint{"core_0": 0, "core_1": 1}, c.Cores())

	c.Environ["CORE"] = "changed"
	assert.Equal(t, "{{.core_1}}", p.Environ["CORE"])
}
