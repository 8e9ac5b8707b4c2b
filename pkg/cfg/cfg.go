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
	"fmt"
	"os"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"

	logger "github.com/dune-emu/dune/pkg/log"
)

// our logger instance
var log = logger.NewLogger("config")

// Config is the raw deserialized topology/infrastructure description.
type Config struct {
	Infrastructure *Phynodes `mapstructure:"infrastructure"`
	Topology       *Topology `mapstructure:"topology"`
}

// Load reads and deserializes the TOML configuration at the given path.
//
// The document is first decoded into a generic value tree and then mapped
// onto the typed configuration. Keys not claimed by any typed field are
// collected into the extension-field bag of the enclosing entity and are
// preserved verbatim for external collaborators.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read configuration %q", path)
	}
	return Parse(data)
}

// Parse deserializes a TOML configuration document.
func Parse(data []byte) (*Config, error) {
	raw := map[string]interface{}{}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, cfgError("malformed TOML document: %v", err)
	}

	c := &Config{}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:     c,
		DecodeHook: mapstructure.TextUnmarshallerHookFunc(),
	})
	if err != nil {
		return nil, cfgError("failed to create configuration decoder: %v", err)
	}
	if err := dec.Decode(raw); err != nil {
		return nil, cfgError("malformed configuration: %v", err)
	}

	if err := c.validate(); err != nil {
		return nil, err
	}

	log.Debug("loaded %d nodes, %d links, %d phynodes",
		len(c.Topology.Nodes), len(c.Topology.Links), len(c.Infrastructure.Nodes))

	return c, nil
}

// validate checks structural well-formedness of the configuration.
func (c *Config) validate() error {
	if c.Infrastructure == nil || len(c.Infrastructure.Nodes) == 0 {
		return cfgError("infrastructure should contain at least one phynode")
	}
	for id, phynode := range c.Infrastructure.Nodes {
		if len(phynode.Cores) == 0 {
			return cfgError("phynode %q declares no core pools", id)
		}
	}
	if c.Topology == nil {
		return cfgError("no topology found in the configuration")
	}
	if c.Topology.Nodes == nil {
		return cfgError("no nodes found in the topology")
	}
	for _, link := range c.Topology.Links {
		for idx := range link.Endpoints {
			ep := link.Endpoints[idx]
			if ep.Node == "" || ep.Interface == "" {
				return cfgError("link must declare exactly two \"<node>:<interface>\" endpoints")
			}
			if _, ok := c.Topology.Nodes[ep.Node]; !ok {
				log.Warn("link endpoint %s references undeclared node", ep)
			}
		}
	}
	return nil
}

// cfgError creates a package-specific formatted error.
func cfgError(format string, args ...interface{}) error {
	return fmt.Errorf("config: "+format, args...)
}
