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
	"time"

	"github.com/dune-emu/dune/pkg/cfg"
)

const (
	// loopbackIndex is the reserved interface index of the loopback.
	loopbackIndex = 1
	// loopbackName is the name of the loopback interface.
	loopbackName = "lo"
)

// Interface is one resolved endpoint of a link, owned by a node.
type Interface struct {
	// Name of the interface inside the node's namespace.
	Name string
	// Latency of the link, applied as a netem delay.
	Latency time.Duration
	// Metric of the interface.
	Metric uint
	// Bandwidth of the link, as a tc-style rate string.
	Bandwidth string
	// MTU of the link. Symmetric: both ends of a link carry the same value.
	MTU uint32
	// MAC is an optional hardware address override.
	MAC string
	// Idx is the endpoint index of this end in the link declaration (0|1).
	Idx int
	// Peer is the lookup key of the remote endpoint, nil for loopback.
	Peer *cfg.Endpoint
	// Addrs are the CIDR addresses configured on this end.
	Addrs []string
	// IfIndex is the node-local interface index used when issuing kernel
	// link-creation requests. Positive, unique within the node, assigned
	// above the reserved loopback index.
	IfIndex int
}

// newInterface resolves one endpoint of a link: link defaults first, then
// symmetric overrides from the link's extension fields, then directional
// overrides targeted at this specific endpoint. MTU and latency are
// bidirectional and cannot be overridden directionally; such attempts are
// logged and ignored so that the peer value governs.
func newInterface(dflt *cfg.LinkDefaults, link *cfg.Link, idx int, ifindex int) *Interface {
	iface := &Interface{
		Idx:     idx,
		IfIndex: ifindex,
	}
	if dflt != nil {
		iface.Latency = parseLatency(dflt.Latency)
		iface.Metric = dflt.Metric
		iface.MTU = dflt.MTU
		iface.Bandwidth = dflt.BW
	}

	endpoint := link.Endpoints[idx]
	iface.Name = endpoint.Interface
	peer := link.Endpoints[1-idx]
	iface.Peer = &peer

	// Symmetric overrides first, directional ones ahead of them.
	for key, value := range link.Extra {
		if _, err := cfg.ParseEndpoint(key); err == nil {
			continue
		}
		iface.setField(key, value)
	}
	for key, value := range link.Extra {
		target, err := cfg.ParseEndpoint(key)
		if err != nil || target != endpoint {
			continue
		}
		fields, ok := value.(map[string]interface{})
		if !ok {
			log.Warn("directional override %s is not a table, ignoring", key)
			continue
		}
		for field, v := range fields {
			if field == "mtu" || field == "latency" {
				log.Warn("directional override %s.%s rejected: %s is bidirectional, peer value governs",
					key, field, field)
				continue
			}
			iface.setField(field, v)
		}
	}

	return iface
}

// setField applies a single override field from the configuration.
func (i *Interface) setField(name string, value interface{}) {
	switch name {
	case "latency":
		if s, ok := value.(string); ok {
			i.Latency = parseLatency(s)
		}
	case "metric":
		if n, ok := toUint(value); ok {
			i.Metric = uint(n)
		}
	case "mtu":
		if n, ok := toUint(value); ok {
			i.MTU = uint32(n)
		}
	case "bw":
		if s, ok := value.(string); ok {
			i.Bandwidth = s
		}
	case "mac":
		if s, ok := value.(string); ok {
			i.MAC = s
		}
	default:
		log.Debug("ignoring unknown link override field %q", name)
	}
}

// newLoopback synthesizes the loopback interface entry of a node.
func newLoopback(addrs []string) *Interface {
	return &Interface{
		Name:    loopbackName,
		IfIndex: loopbackIndex,
		Addrs:   addrs,
	}
}

// parseLatency parses a latency string such as "5ms". Malformed or empty
// values yield zero latency.
func parseLatency(s string) time.Duration {
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		log.Warn("malformed latency %q, assuming none: %v", s, err)
		return 0
	}
	return d
}

// toUint converts TOML integer values of assorted decoded kinds.
func toUint(value interface{}) (uint64, bool) {
	switch n := value.(type) {
	case int64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case int:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	case uint64:
		return n, true
	case float64:
		if n < 0 {
			return 0, false
		}
		return uint64(n), true
	}
	return 0, false
}
