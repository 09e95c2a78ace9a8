package sbmodel

import "fmt"

// Snapshot is the read-only view of the southbound tables the translator
// consumes during one cycle, plus the indexes the spec calls for in §6.
type Snapshot struct {
	LogicalRows       map[RowID]*LogicalRow
	Datapaths          map[DatapathID]*Datapath
	PortBindings       map[string]*PortBinding // by name
	MulticastGroups    map[dpName]*MulticastGroup
	AddressSets        map[string]*AddressSet
	PortGroups         map[string]*PortGroup
	MACBindings        []*MACBinding
	StaticMACBindings  []*StaticMACBinding
	FDBEntries         []*FDBEntry
	LoadBalancers      map[string]*LoadBalancer
	DHCPv4             map[string]DHCPv4Options
	DHCPv6             map[string]DHCPv6Options
	NDRA               map[string]NDRAOptions
	ControllerEvents   map[string]ControllerEventOptions
	DatapathGroups     map[string][]DatapathID

	byDatapath   map[DatapathID][]RowID
	byDPGroup    map[string][]RowID
}

type dpName struct {
	Datapath DatapathID
	Name     string
}

// NewSnapshot builds an empty Snapshot with all maps and indexes
// initialized; AddRow fills the by-datapath index as rows arrive.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		LogicalRows:      make(map[RowID]*LogicalRow),
		Datapaths:        make(map[DatapathID]*Datapath),
		PortBindings:     make(map[string]*PortBinding),
		MulticastGroups:  make(map[dpName]*MulticastGroup),
		AddressSets:      make(map[string]*AddressSet),
		PortGroups:       make(map[string]*PortGroup),
		LoadBalancers:    make(map[string]*LoadBalancer),
		DHCPv4:           make(map[string]DHCPv4Options),
		DHCPv6:           make(map[string]DHCPv6Options),
		NDRA:             make(map[string]NDRAOptions),
		ControllerEvents: make(map[string]ControllerEventOptions),
		DatapathGroups:   make(map[string][]DatapathID),
		byDatapath:       make(map[DatapathID][]RowID),
		byDPGroup:        make(map[string][]RowID),
	}
}

// AddRow inserts row into the snapshot and its datapath index.
func (s *Snapshot) AddRow(row *LogicalRow) {
	s.LogicalRows[row.UUID] = row
	for _, dp := range row.Datapaths() {
		s.byDatapath[dp] = append(s.byDatapath[dp], row.UUID)
	}
}

// AddDatapath inserts or replaces a datapath.
func (s *Snapshot) AddDatapath(d *Datapath) {
	s.Datapaths[d.ID] = d
}

// MulticastGroupLookup finds a multicast group by (datapath, name).
func (s *Snapshot) MulticastGroupLookup(dp DatapathID, name string) (*MulticastGroup, bool) {
	mg, ok := s.MulticastGroups[dpName{Datapath: dp, Name: name}]
	return mg, ok
}

// PutMulticastGroup inserts or replaces a multicast group.
func (s *Snapshot) PutMulticastGroup(mg *MulticastGroup) {
	s.MulticastGroups[dpName{Datapath: mg.Datapath, Name: mg.Name}] = mg
}

// RowsForDatapath returns the rows that apply to dp, whether bound to it
// directly or through a datapath group that contains it.
func (s *Snapshot) RowsForDatapath(dp DatapathID) []RowID {
	return s.byDatapath[dp]
}

// RuntimeState is the per-cycle chassis-local runtime data (§6).
type RuntimeState struct {
	// ThisChassis is this controller's chassis identity.
	ThisChassis string
	// ActiveTunnels is the set of tunnel keys currently reachable.
	ActiveTunnels map[uint32]struct{}
	// RelatedLocalPorts is the set of logical port names considered local
	// for the purposes of the row compiler's port-pinning checks.
	RelatedLocalPorts map[string]struct{}
	// LocalDatapaths is the set of datapaths instantiated on this chassis.
	LocalDatapaths map[DatapathID]struct{}
	// ChassisTunnels maps a chassis name to its tunnel key.
	ChassisTunnels map[string]uint32
	// ActiveHAChassisGroups is the set of HA-chassis-group names for which
	// this chassis is currently the active member.
	ActiveHAChassisGroups map[string]struct{}
}

// IsLocalDatapath reports whether dp is instantiated on this chassis.
func (r *RuntimeState) IsLocalDatapath(dp DatapathID) bool {
	_, ok := r.LocalDatapaths[dp]
	return ok
}

// IsRelatedLocalPort reports whether a logical port is in the related-
// local-ports set.
func (r *RuntimeState) IsRelatedLocalPort(name string) bool {
	_, ok := r.RelatedLocalPorts[name]
	return ok
}

// IsChassisResident evaluates the is_chassis_resident(name) condition used
// by RC step 8. name may be a plain logical port or a chassis-redirect
// port backed by an HA chassis group; the latter resolves to whether this
// chassis is the active member of that group.
func (r *RuntimeState) IsChassisResident(name string, pb *PortBinding) bool {
	if pb == nil {
		return false
	}
	if pb.HAChassisGroup != "" {
		_, ok := r.ActiveHAChassisGroups[pb.HAChassisGroup]
		return ok
	}
	return pb.Chassis == r.ThisChassis
}

// MCGroupKey identifies a multicast group by (datapath, name), the
// exported counterpart of the snapshot's private dpName index key.
type MCGroupKey struct {
	Datapath DatapathID
	Name     string
}

// RefName returns the string the resource-reference index stores a
// KindMCGroup reference under, since R's key space is flat per kind and a
// multicast group's natural key spans (datapath, name).
func (k MCGroupKey) RefName() string {
	return fmt.Sprintf("%d:%s", k.Datapath, k.Name)
}

// TrackedChange describes a batch of entities that changed since the last
// cycle, as delivered by the ingestion layer (out of scope, §1).
type TrackedChange struct {
	ChangedRows        []RowID
	ChangedRefs        []RefChange
	AddrSetUpdates     []AddrSetUpdate
	ChangedPorts       []string
	ChangedMCGroups    []MCGroupKey
	ChangedLBs         []string
	ChangedFDBs        []FDBKey
	ChangedMACBindings []string
}

// RefChange names a resource whose content changed such that every row
// referencing it must be reprocessed (e.g. a port binding moved chassis).
type RefChange struct {
	Kind ResourceKind
	Name string
}

// AddrSetUpdate carries the name of an updated address set plus its delta.
type AddrSetUpdate struct {
	Name    string
	Added   []AddressConstant
	Deleted []AddressConstant
	OldSize int
	NewSize int
}

// FDBKey identifies an FDB entry by its natural key.
type FDBKey struct {
	Datapath DatapathID
	MAC      string
}

// ResourceKind is one of the four external-entity kinds the resource-
// reference index tracks.
type ResourceKind uint8

// ResourceKind values.
const (
	KindPortBinding ResourceKind = iota
	KindMCGroup
	KindAddrSet
	KindPortGroup
)

func (k ResourceKind) String() string {
	switch k {
	case KindPortBinding:
		return "PORTBINDING"
	case KindMCGroup:
		return "MC_GROUP"
	case KindAddrSet:
		return "ADDRSET"
	case KindPortGroup:
		return "PORTGROUP"
	default:
		return "UNKNOWN"
	}
}
