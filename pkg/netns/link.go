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

package netns

import (
	"net"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/vishvananda/netlink"
	vishns "github.com/vishvananda/netns"
)

// VethSpec describes a paired virtual interface whose two ends live in two
// different network namespaces.
type VethSpec struct {
	Name          string
	Namespace     string
	PeerName      string
	PeerNamespace string
	MTU           int
}

// LinkConfig carries the attributes applied to one local interface end.
type LinkConfig struct {
	Addrs   []string
	MTU     int
	MAC     string
	Latency time.Duration
	Rate    string
}

// CreateVeth creates the veth pair described by spec, moving the two ends
// into their namespaces in a single netlink transaction. Both namespaces
// must already exist; the namespace handles are held only for the duration
// of the transaction. Returns os.ErrExist (wrapped) if the pair has already
// been created from the peer side.
func CreateVeth(spec *VethSpec) error {
	local, err := vishns.GetFromName(spec.Namespace)
	if err != nil {
		return errors.Wrapf(ErrNoNamespace, "veth %s: %q", spec.Name, spec.Namespace)
	}
	defer local.Close()

	peer, err := vishns.GetFromName(spec.PeerNamespace)
	if err != nil {
		return errors.Wrapf(ErrNoNamespace, "veth %s: %q", spec.Name, spec.PeerNamespace)
	}
	defer peer.Close()

	veth := &netlink.Veth{
		LinkAttrs: netlink.LinkAttrs{
			Name:      spec.Name,
			Namespace: netlink.NsFd(local),
		},
		PeerName:      spec.PeerName,
		PeerNamespace: netlink.NsFd(peer),
	}
	if spec.MTU > 0 {
		veth.LinkAttrs.MTU = spec.MTU
	}

	if err := netlink.LinkAdd(veth); err != nil {
		if os.IsExist(err) {
			// Already created from the peer endpoint.
			return err
		}
		return nsError("failed to create veth %s@%s <-> %s@%s: %v",
			spec.Name, spec.Namespace, spec.PeerName, spec.PeerNamespace, err)
	}

	log.Debug("created veth %s@%s <-> %s@%s",
		spec.Name, spec.Namespace, spec.PeerName, spec.PeerNamespace)
	return nil
}

// ConfigureLink applies addresses, MTU, MAC and netem shaping to the named
// interface inside the given namespace and brings it administratively up.
func ConfigureLink(namespace, name string, conf *LinkConfig) error {
	ns, err := vishns.GetFromName(namespace)
	if err != nil {
		return errors.Wrapf(ErrNoNamespace, "link %s: %q", name, namespace)
	}
	defer ns.Close()

	handle, err := netlink.NewHandleAt(ns)
	if err != nil {
		return nsError("failed to open netlink handle in %q: %v", namespace, err)
	}
	defer handle.Close()

	link, err := handle.LinkByName(name)
	if err != nil {
		return nsError("interface %s not found in %q: %v", name, namespace, err)
	}

	for _, cidr := range conf.Addrs {
		addr, err := netlink.ParseAddr(cidr)
		if err != nil {
			log.Warn("skipping malformed address %q on %s@%s: %v", cidr, name, namespace, err)
			continue
		}
		if err := handle.AddrAdd(link, addr); err != nil && !os.IsExist(err) {
			log.Warn("failed to add address %s to %s@%s: %v", cidr, name, namespace, err)
		}
	}

	if conf.MTU > 0 {
		if err := handle.LinkSetMTU(link, conf.MTU); err != nil {
			log.Warn("failed to set mtu %d on %s@%s: %v", conf.MTU, name, namespace, err)
		}
	}

	if conf.MAC != "" {
		hw, err := net.ParseMAC(conf.MAC)
		if err != nil {
			log.Warn("skipping malformed MAC %q on %s@%s: %v", conf.MAC, name, namespace, err)
		} else if err := handle.LinkSetHardwareAddr(link, hw); err != nil {
			log.Warn("failed to set MAC %s on %s@%s: %v", conf.MAC, name, namespace, err)
		}
	}

	if err := handle.LinkSetUp(link); err != nil {
		return nsError("failed to bring up %s@%s: %v", name, namespace, err)
	}

	if conf.Latency > 0 || conf.Rate != "" {
		if err := addNetem(handle, link, conf); err != nil {
			return err
		}
	}

	return nil
}

// addNetem attaches a network-emulation queueing discipline delaying (and
// optionally rate-limiting) egress traffic on the link.
func addNetem(handle *netlink.Handle, link netlink.Link, conf *LinkConfig) error {
	attrs := netlink.NetemQdiscAttrs{
		Latency: uint32(conf.Latency / time.Microsecond),
	}
	if conf.Rate != "" {
		rate, err := ParseRate(conf.Rate)
		if err != nil {
			log.Warn("ignoring malformed rate %q on %s: %v", conf.Rate, link.Attrs().Name, err)
		} else {
			attrs.Rate64 = rate / 8 // netem rate is in bytes per second
		}
	}

	qdisc := netlink.NewNetem(netlink.QdiscAttrs{
		LinkIndex: link.Attrs().Index,
		Handle:    netlink.MakeHandle(1, 0),
		Parent:    netlink.HANDLE_ROOT,
	}, attrs)

	if err := handle.QdiscAdd(qdisc); err != nil && !os.IsExist(err) {
		return nsError("failed to add netem qdisc on %s: %v", link.Attrs().Name, err)
	}
	return nil
}
