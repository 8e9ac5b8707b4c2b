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

// Package metrics accounts provisioning outcomes. Exposition is left to
// the embedding binary; NewGatherer hands out a registry with all
// collectors attached.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// NamespacesCreated counts network namespaces successfully created.
	NamespacesCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dune",
		Name:      "namespaces_created_total",
		Help:      "Number of network namespaces created.",
	})
	// VethPairsCreated counts veth pairs successfully created.
	VethPairsCreated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dune",
		Name:      "veth_pairs_created_total",
		Help:      "Number of veth pairs created.",
	})
	// CoresAllocated counts physical cores bound to pinned processes.
	CoresAllocated = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dune",
		Name:      "cores_allocated_total",
		Help:      "Number of physical cores allocated to pinned processes.",
	})
	// PinnedLaunched counts pinned processes spawned.
	PinnedLaunched = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "dune",
		Name:      "pinned_processes_launched_total",
		Help:      "Number of pinned processes launched.",
	})
	// ProvisioningFailures counts recovered best-effort failures by stage.
	ProvisioningFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dune",
		Name:      "provisioning_failures_total",
		Help:      "Number of recovered provisioning failures.",
	}, []string{"stage"})
)

var collectors = []prometheus.Collector{
	NamespacesCreated,
	VethPairsCreated,
	CoresAllocated,
	PinnedLaunched,
	ProvisioningFailures,
}

// NewGatherer creates a prometheus gatherer with all collectors registered.
func NewGatherer() (prometheus.Gatherer, error) {
	reg := prometheus.NewPedanticRegistry()
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
