// Package sbmodel defines the read-only snapshot and tracked-change views
// that the translator consumes: logical rows, port bindings, multicast
// groups, address sets, port groups, MAC bindings, load balancers, and the
// per-chassis runtime state.
package sbmodel

import "github.com/google/uuid"

// RowID is the stable identity of a logical row.
type RowID = uuid.UUID

// Pipeline is the ingress/egress tag carried by a logical row.
type Pipeline uint8

// Pipeline values.
const (
	Ingress Pipeline = iota
	Egress
)

func (p Pipeline) String() string {
	if p == Egress {
		return "egress"
	}
	return "ingress"
}

// DatapathID identifies a logical datapath by its tunnel key.
type DatapathID uint32

// Datapath is a virtual switch or router.
type Datapath struct {
	ID       DatapathID
	IsRouter bool
	Metadata map[string]string // notably NAT-zone preference
}

// NATZone returns the datapath's configured NAT zone, if any.
func (d *Datapath) NATZone() (string, bool) {
	z, ok := d.Metadata["nat-zone"]
	return z, ok
}

// LogicalRow is one declarative entry in the logical pipeline.
//
// Exactly one of Datapath or DatapathGroup is set (I2).
type LogicalRow struct {
	UUID            RowID
	Match           string
	Actions         string
	Pipeline        Pipeline
	TableID         uint8
	Priority        uint16
	ControllerMeter string

	// InOutPort is the logical port this row pins as its in-port or
	// out-port, set only when the row expresses that pin as a row
	// attribute rather than purely within Match (RC step 2). Empty if
	// the row carries no such pin.
	InOutPort string

	Datapath      *DatapathID
	DatapathGroup []DatapathID
}

// Datapaths returns the set of datapaths this row applies to.
func (r *LogicalRow) Datapaths() []DatapathID {
	if r.Datapath != nil {
		return []DatapathID{*r.Datapath}
	}
	return r.DatapathGroup
}

// PortType is the recognized type of a port binding.
type PortType string

// Known port-binding types.
const (
	PortTypeDefault        PortType = ""
	PortTypeChassisRedirect PortType = "chassisredirect"
	PortTypeLocalnet        PortType = "localnet"
	PortTypePatch           PortType = "patch"
)

// PortBinding names a logical port and binds it to a datapath/tunnel key.
type PortBinding struct {
	Name           string
	Datapath       DatapathID
	TunnelKey      uint32
	Type           PortType
	Chassis        string // empty if unbound
	HAChassisGroup string // empty if none

	// PortSecurity is the set of (mac, ipv4 set, ipv6 set) triples this
	// port is locked to. Empty if port security is not enabled on this
	// port.
	PortSecurity []PortSecurityEntry
}

// MulticastGroup maps a (datapath, name) pair to a tunnel key.
type MulticastGroup struct {
	Datapath  DatapathID
	Name      string
	TunnelKey uint32
}

// AddressFamily distinguishes the kind of address literal held by an
// AddressConstant.
type AddressFamily uint8

// AddressFamily values.
const (
	FamilyIPv4 AddressFamily = iota
	FamilyIPv6
	FamilyMAC
)

// AddressConstant is one element of an address set: an IPv4/IPv6/MAC value,
// optionally masked.
type AddressConstant struct {
	Family AddressFamily
	Value  string // canonical textual form, e.g. "10.0.0.1" or "10.0.0.0/24"
	Mask   string // empty if unmasked
}

// String renders the constant the way it would appear annotated on a flow.
func (a AddressConstant) String() string {
	if a.Mask == "" {
		return a.Value
	}
	return a.Value + "/" + a.Mask
}

// AddressSet is a named, ordered set of address constants. Equality between
// two AddressSet values is by Name only; callers compute membership deltas
// with Delta.
type AddressSet struct {
	Name    string
	Members []AddressConstant
}

// Delta computes the elements added and removed between old and new, in the
// order they appear in new/old respectively. It assumes Members has no
// duplicate Value+Mask pairs, which is guaranteed by the address-set
// collaborator upstream of this package.
func Delta(oldSet, newSet AddressSet) (added, deleted []AddressConstant) {
	oldIdx := make(map[string]struct{}, len(oldSet.Members))
	for _, m := range oldSet.Members {
		oldIdx[m.String()] = struct{}{}
	}
	newIdx := make(map[string]struct{}, len(newSet.Members))
	for _, m := range newSet.Members {
		newIdx[m.String()] = struct{}{}
	}

	for _, m := range newSet.Members {
		if _, ok := oldIdx[m.String()]; !ok {
			added = append(added, m)
		}
	}
	for _, m := range oldSet.Members {
		if _, ok := newIdx[m.String()]; !ok {
			deleted = append(deleted, m)
		}
	}
	return added, deleted
}

// PortGroup is a named set of ports, referenced by name only at the
// translation layer.
type PortGroup struct {
	Name  string
	Ports []string
}

// MACBinding is a learned mapping of an IP to a MAC on a logical port.
type MACBinding struct {
	LogicalPort string
	IP          string
	MAC         string
	Datapath    DatapathID
}

// StaticMACBinding is an administrator-configured MAC binding.
type StaticMACBinding struct {
	LogicalPort string
	IP          string
	MAC         string
	Datapath    DatapathID
	OverrideDynamic bool
}

// FDBEntry is a learned (datapath, mac) -> port mapping.
type FDBEntry struct {
	Datapath DatapathID
	MAC      string
	PortKey  uint32
}

// LBProtocol is the L4 protocol a load-balancer VIP/backend pair uses.
type LBProtocol string

// LBProtocol values.
const (
	LBProtocolTCP LBProtocol = "tcp"
	LBProtocolUDP LBProtocol = "udp"
	LBProtocolSCTP LBProtocol = "sctp"
)

// LBEndpoint is one side of a load-balancer VIP/backend pair.
type LBEndpoint struct {
	IP   string
	Port uint16
}

// LBRule is one VIP -> backend-set mapping within a load balancer.
type LBRule struct {
	VIP      LBEndpoint
	Backends []LBEndpoint
	Protocol LBProtocol
}

// LoadBalancer is a set of VIP/backend rules applied to a set of datapaths.
type LoadBalancer struct {
	Name           string
	Datapaths      []DatapathID
	Rules          []LBRule
	HairpinSNATIP4 string // empty if unset
	HairpinSNATIP6 string // empty if unset
}

// PortSecurityEntry is one (mac, ipv4 set, ipv6 set) triple bound to a
// port binding.
type PortSecurityEntry struct {
	MAC  string
	IPv4 []string // may include "<ip>/<prefix>" host-bits-zero entries
	IPv6 []string
}

// DHCPv4Options, DHCPv6Options, NDRAOptions, and ControllerEventOptions are
// opaque option bags threaded into the action parser; their internal shape
// is owned by the action-compiler collaborator (see spec.md §1 non-goals).
type (
	DHCPv4Options          map[string]string
	DHCPv6Options          map[string]string
	NDRAOptions            map[string]string
	ControllerEventOptions map[string]string
)
