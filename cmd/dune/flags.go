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

package main

import (
	"flag"
	"strings"

	logger "github.com/dune-emu/dune/pkg/log"
)

// options captures our command line parameters.
type options struct {
	topology   string
	phynode    string
	list       bool
	export     bool
	stats      bool
	metricsAt  string
	pidfileDir string
	debug      string
	version    bool
}

var opt = options{}

func init() {
	flag.StringVar(&opt.topology, "topology", "topology.toml",
		"Topology and infrastructure configuration file to load.")
	flag.StringVar(&opt.phynode, "phynode", "",
		"Provision the topology slice allocated to this phynode.")
	flag.BoolVar(&opt.list, "list", false,
		"List the declared phynodes and exit.")
	flag.BoolVar(&opt.export, "export", false,
		"Print the resolved topology as TOML and exit.")
	flag.BoolVar(&opt.stats, "stats", false,
		"Print topology statistics and exit.")
	flag.StringVar(&opt.metricsAt, "metrics-address", "",
		"Address to expose provisioning metrics on (empty to disable).")
	flag.StringVar(&opt.pidfileDir, "pidfile-dir", "",
		"Directory to write pinned-process PID files under.")
	flag.StringVar(&opt.debug, "debug", "",
		"Comma-separated list of sources to enable debug logging for ('*' for all).")
	flag.BoolVar(&opt.version, "version", false,
		"Print version information and exit.")

	logger.UseKlog(flag.CommandLine)
}

// parseCmdline parses our command line and applies logging options.
func parseCmdline() {
	flag.Parse()
	if opt.debug != "" {
		logger.EnableDebug(strings.Split(opt.debug, ",")...)
	}
}
