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

const sampleConfig = `
[infrastructure.nodes.phy0]
cores = [[0, 1, 2, 3], [4, 5, 6, 7]]
rack = "r1"

[infrastructure.setup]
pre = ["sysctl -w net.ipv4.ip_forward=1"]
post = ["echo done"]

[topology.defaults.nodes]
exec = ["ip route add default via 10.0.0.1"]
role = "router"

[topology.defaults.nodes.sysctls]
"net.ipv4.ip_forward" = "1"

[topology.defaults.links]
latency = "5ms"
mtu = 9000
bw = "1gbit"

[topology.nodes.r0]
asn = 65000

[topology.nodes.r0.addrs]
eth0 = ["10.0.0.1/24"]
lo = ["192.168.255.1/32"]

[[topology.nodes.r0.pinned]]
cmd = "bird -c /etc/bird.conf"

[topology.nodes.r0.pinned.environ]
WORKER = "{{.core_1}}"

[topology.nodes.r1]

[topology.nodes.r1.addrs]
eth0 = ["10.0.0.2/24"]

[[topology.links]]
endpoints = ["r0:eth0", "r1:eth0"]
latency = "10ms"
`

func TestParse(t *testing.T) {
	c, err := Parse([]byte(sampleConfig))
	require.NoError(t, err)
	require.NotNil(t, c.Infrastructure)
	require.NotNil(t, c.Topology)

	phy, ok := c.Infrastructure.Nodes["phy0"]
	require.True(t, ok)
	assert.Equal(t, 8, phy.TotalCores())
	assert.Equal(t, [][]uint{{0, 1, 2, 3}, {4, 5, 6, 7}}, phy.Cores)
	assert.Equal(t, "r1", phy.Extra["rack"])

	require.NotNil(t, c.Infrastructure.Setup)
	assert.Len(t, c.Infrastructure.Setup.Pre, 1)
	assert.Len(t, c.Infrastructure.Setup.Post, 1)

	dflt := c.Topology.Defaults.Nodes
	require.NotNil(t, dflt)
	assert.Equal(t, "1", dflt.Sysctls["net.ipv4.ip_forward"])
	assert.Equal(t, "router", dflt.Extra["role"])

	ldflt := c.Topology.Defaults.Links
	require.NotNil(t, ldflt)
	assert.Equal(t, "5ms", ldflt.Latency)
	assert.Equal(t, uint32(9000), ldflt.MTU)
	assert.Equal(t, "1gbit", ldflt.BW)

	r0, ok := c.Topology.Nodes["r0"]
	require.True(t, ok)
	assert.Equal(t, []string{"10.0.0.1/24"}, r0.Addrs["eth0"])
	assert.Equal(t, int64(65000), r0.Extra["asn"])
	require.Len(t, r0.Pinned, 1)
	assert.Equal(t, "bird -c /etc/bird.conf", r0.Pinned[0].Cmd)

	require.Len(t, c.Topology.Links, 1)
	link := c.Topology.Links[0]
	assert.Equal(t, Endpoint{Node: "r0", Interface: "eth0"}, link.Endpoints[0])
	assert.Equal(t, Endpoint{Node: "r1", Interface: "eth0"}, link.Endpoints[1])
	assert.Equal(t, "10ms", link.Extra["latency"])
}

func TestParseErrors(t *testing.T) {
	tcases := []struct {
		name string
		data string
	}{
		{
			name: "malformed TOML",
			data: `[infrastructure.nodes.phy0`,
		},
		{
			name: "no infrastructure",
			data: `
[topology.nodes.r0]
`,
		},
		{
			name: "phynode without cores",
			data: `
[infrastructure.nodes.phy0]
[topology.nodes.r0]
`,
		},
		{
			name: "no topology",
			data: `
[infrastructure.nodes.phy0]
cores = [[0]]
`,
		},
		{
			name: "malformed endpoint",
			data: `
[infrastructure.nodes.phy0]
cores = [[0]]
[topology.nodes.r0]
[[topology.links]]
endpoints = ["r0", "r1:eth0"]
`,
		},
		{
			name: "link with a single endpoint",
			data: `
[infrastructure.nodes.phy0]
cores = [[0]]
[topology.nodes.r0]
[[topology.links]]
endpoints = ["r0:eth0"]
`,
		},
		{
			name: "link without endpoints",
			data: `
[infrastructure.nodes.phy0]
cores = [[0]]
[topology.nodes.r0]
[[topology.links]]
latency = "5ms"
`,
		},
	}
	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.data))
			assert.Error(t, err)
		})
	}
}

func TestEndpoint(t *testing.T) {
	tcases := []struct {
		input  string
		result Endpoint
		fail   bool
	}{
		{input: "r0:eth0", result: Endpoint{Node: "r0", Interface: "eth0"}},
		{input: "spine-1:swp32", result: Endpoint{Node: "spine-1", Interface: "swp32"}},
		{input: "r0", fail: true},
		{input: "r0:eth0:extra", fail: true},
		{input: ":eth0", fail: true},
		{input: "r0:", fail: true},
		{input: "", fail: true},
	}
	for _, tc := range tcases {
		t.Run(tc.input, func(t *testing.T) {
			ep, err := ParseEndpoint(tc.input)
			if tc.fail {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.result, ep)
			assert.Equal(t, tc.input, ep.String())

			text, err := ep.MarshalText()
			require.NoError(t, err)
			var back Endpoint
			require.NoError(t, back.UnmarshalText(text))
			assert.Equal(t, ep, back)
		})
	}
}
