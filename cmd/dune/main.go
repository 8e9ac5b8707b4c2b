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
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dune-emu/dune/pkg/dune"
	logger "github.com/dune-emu/dune/pkg/log"
	"github.com/dune-emu/dune/pkg/metrics"
	"github.com/dune-emu/dune/pkg/pidfile"
	"github.com/dune-emu/dune/pkg/version"
)

// our logger instance
var log = logger.NewLogger("main")

func main() {
	parseCmdline()
	defer logger.Flush()

	if opt.version {
		version.PrintVersionInfo()
		return
	}
	if opt.pidfileDir != "" {
		pidfile.SetDir(opt.pidfileDir)
	}

	d, err := dune.New(opt.topology)
	if err != nil {
		log.Fatal("failed to load topology %s: %v", opt.topology, err)
	}

	switch {
	case opt.list:
		for _, host := range d.Phynodes() {
			fmt.Println(host)
		}
		return

	case opt.export:
		if err := d.Allocate(); err != nil {
			log.Warn("exporting without core allocation: %v", err)
		}
		if err := d.Export(os.Stdout); err != nil {
			log.Fatal("%v", err)
		}
		return

	case opt.stats:
		s := d.Stats()
		fmt.Printf("nodes:           %d\n", s.Nodes)
		fmt.Printf("links:           %d\n", s.Links)
		fmt.Printf("requested cores: %d\n", s.RequestedCores)
		fmt.Printf("free cores:      %d\n", s.FreeCores)
		return

	case opt.phynode != "":
		serveMetrics()
		if err := d.PhynodeSetup(opt.phynode); err != nil {
			log.Error("phynode %s: provisioning finished with errors:", opt.phynode)
			log.Error("%v", err)
			os.Exit(1)
		}
		log.Info("phynode %s: provisioning complete", opt.phynode)

	default:
		log.Fatal("nothing to do: give one of -phynode, -list, -export or -stats")
	}
}

// serveMetrics exposes the provisioning counters if an address was given.
func serveMetrics() {
	if opt.metricsAt == "" {
		return
	}
	gatherer, err := metrics.NewGatherer()
	if err != nil {
		log.Error("failed to set up metrics: %v", err)
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	go func() {
		if err := http.ListenAndServe(opt.metricsAt, mux); err != nil {
			log.Error("metrics server: %v", err)
		}
	}()
}
