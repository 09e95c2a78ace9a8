// Package adjunct implements the adjunct emitters (AE) of spec.md §4.6:
// neighbor flows, FDB flows, load-balancer hairpin flows, and port-security
// flows. None of these consult R, CID, or TC (the resource-reference index,
// conjunction-id allocator, or translation cache) — each is a direct
// function from the snapshot to staged flows, keyed by the entity's own
// identity rather than a row id, so there is nothing here for those three
// components to track.
package adjunct

import (
	"fmt"
	"strings"

	"github.com/ovnlocal/lflow/internal/actionprog"
	"github.com/ovnlocal/lflow/internal/flowsink"
	"github.com/ovnlocal/lflow/internal/reflog"
	"github.com/ovnlocal/lflow/internal/sbmodel"
)

// Config bundles the physical table numbers the adjunct emitters target.
// These sit outside the row compiler's ingress/egress table mapping (RC
// step 3): adjunct rules are not compiled from logical rows, so they need
// their own fixed slots in the pipeline.
type Config struct {
	NeighborGetTable    uint8
	NeighborLookupTable uint8
	FDBGetTable         uint8
	FDBLookupTable      uint8
	LBHairpinTable      uint8
	LBSNATTable         uint8
	InPortSecTable      uint8
	InPortSecNDTable    uint8
	OutPortSecTable     uint8
	OutPortSecNDTable   uint8
}

// Emitter is the adjunct emitters (AE).
type Emitter struct {
	Snapshot *sbmodel.Snapshot
	Runtime  *sbmodel.RuntimeState
	Sink     flowsink.Sink
	Config   Config
	Log      *reflog.RateLimited

	lbConjIDs    map[string]uint32
	nextLBConjID uint32
}

// New returns an Emitter wired to its collaborators.
func New(snap *sbmodel.Snapshot, rt *sbmodel.RuntimeState, sink flowsink.Sink, cfg Config, log *reflog.RateLimited) *Emitter {
	return &Emitter{
		Snapshot:     snap,
		Runtime:      rt,
		Sink:         sink,
		Config:       cfg,
		Log:          log,
		lbConjIDs:    make(map[string]uint32),
		nextLBConjID: 1,
	}
}

// RunAll emits every adjunct entity's rules. The translator drives this once
// per full cycle alongside the delta engine's RunFull; spec.md §4.5's
// run_full describes only the row compiler's sweep, since adjunct emission
// has no row or cache state of its own to rebuild.
func (e *Emitter) RunAll() {
	for _, mb := range e.Snapshot.MACBindings {
		e.emitMACBinding(mb.LogicalPort, mb.IP, mb.MAC, mb.Datapath, 100)
	}
	for _, smb := range e.Snapshot.StaticMACBindings {
		prio := uint16(50)
		if smb.OverrideDynamic {
			prio = 150
		}
		e.emitMACBinding(smb.LogicalPort, smb.IP, smb.MAC, smb.Datapath, prio)
	}
	for _, f := range e.Snapshot.FDBEntries {
		e.emitFDB(*f)
	}
	for _, lb := range e.Snapshot.LoadBalancers {
		e.emitLB(lb)
	}
	for _, pb := range e.Snapshot.PortBindings {
		if len(pb.PortSecurity) > 0 {
			e.emitPortSecurity(pb)
		}
	}
}

// EmitForPort re-synthesizes the port-security rules for one port binding.
// It is the collaborator delta.Engine.HandleChangedPorts calls after
// clearing the port's previously staged rules.
func (e *Emitter) EmitForPort(name string) {
	pb, ok := e.Snapshot.PortBindings[name]
	if !ok {
		return
	}
	if len(pb.PortSecurity) > 0 {
		e.emitPortSecurity(pb)
	}
}

// EmitForLB re-synthesizes one load balancer's hairpin and SNAT rules.
func (e *Emitter) EmitForLB(name string) {
	lb, ok := e.Snapshot.LoadBalancers[name]
	if !ok {
		return
	}
	e.emitLB(lb)
}

// EmitForFDB re-synthesizes one (datapath, mac) FDB entry's rules.
func (e *Emitter) EmitForFDB(key sbmodel.FDBKey) {
	for _, f := range e.Snapshot.FDBEntries {
		if f.Datapath == key.Datapath && f.MAC == key.MAC {
			e.emitFDB(*f)
			return
		}
	}
}

// EmitForMACBinding re-synthesizes every dynamic and static MAC binding rule
// for one logical port.
func (e *Emitter) EmitForMACBinding(logicalPort string) {
	for _, mb := range e.Snapshot.MACBindings {
		if mb.LogicalPort == logicalPort {
			e.emitMACBinding(mb.LogicalPort, mb.IP, mb.MAC, mb.Datapath, 100)
		}
	}
	for _, smb := range e.Snapshot.StaticMACBindings {
		if smb.LogicalPort != logicalPort {
			continue
		}
		prio := uint16(50)
		if smb.OverrideDynamic {
			prio = 150
		}
		e.emitMACBinding(smb.LogicalPort, smb.IP, smb.MAC, smb.Datapath, prio)
	}
}

// emitMACBinding installs the get-rule/lookup-rule pair for one (port, ip,
// mac) binding, per spec.md §4.6's neighbor-flows bullet.
func (e *Emitter) emitMACBinding(port, ip, mac string, dp sbmodel.DatapathID, prio uint16) {
	if !e.Runtime.IsLocalDatapath(dp) {
		return
	}
	pb, ok := e.Snapshot.PortBindings[port]
	if !ok || pb.Datapath != dp {
		return
	}

	owner := flowsink.OwnerForAdjunct("neighbor", port+"/"+ip)
	dstField, _ := addrMatchField(ip, true)
	srcField, _ := addrMatchField(ip, false)
	meta := metadataField(dp)

	get := flowsink.Flow{
		Table: e.Config.NeighborGetTable, Priority: prio, Owner: owner,
		Match: flowsink.Match{Fields: []flowsink.MatchField{
			meta,
			{Name: "outport", Value: port},
			{Name: dstField, Value: ip},
		}},
		Actions: []flowsink.Action{
			{Raw: fmt.Sprintf("set_field:%s->eth_dst", mac)},
			{Raw: "load:1->NXM_NX_REG10[0]"},
			{Raw: fmt.Sprintf("resubmit(,%d)", e.Config.NeighborLookupTable)},
		},
	}
	e.Sink.AddFlow(get)

	lookup := flowsink.Flow{
		Table: e.Config.NeighborLookupTable, Priority: prio, Owner: owner,
		Match: flowsink.Match{Fields: []flowsink.MatchField{
			meta,
			{Name: "inport", Value: port},
			{Name: "eth_src", Value: mac},
			{Name: srcField, Value: ip},
		}},
		Actions: []flowsink.Action{
			{Raw: "load:1->NXM_NX_REG10[0]"},
		},
	}
	e.Sink.AddFlow(lookup)
}

// emitFDB installs the get-rule/lookup-rule pair for one (datapath, mac)
// FDB entry, per spec.md §4.6's FDB-flows bullet.
func (e *Emitter) emitFDB(f sbmodel.FDBEntry) {
	if !e.Runtime.IsLocalDatapath(f.Datapath) {
		return
	}
	owner := flowsink.OwnerForAdjunct("fdb", fdbOwnerKey(f))
	meta := metadataField(f.Datapath)

	get := flowsink.Flow{
		Table: e.Config.FDBGetTable, Priority: 100, Owner: owner,
		Match: flowsink.Match{Fields: []flowsink.MatchField{
			meta,
			{Name: "eth_dst", Value: f.MAC},
		}},
		Actions: []flowsink.Action{
			{Raw: fmt.Sprintf("load:0x%x->NXM_NX_REG11[]", f.PortKey)},
			{Raw: fmt.Sprintf("resubmit(,%d)", e.Config.FDBLookupTable)},
		},
	}
	e.Sink.AddFlow(get)

	lookup := flowsink.Flow{
		Table: e.Config.FDBLookupTable, Priority: 100, Owner: owner,
		Match: flowsink.Match{Fields: []flowsink.MatchField{
			meta,
			{Name: "eth_src", Value: f.MAC},
			{Name: "in_port_key", Value: fmt.Sprintf("%d", f.PortKey)},
		}},
		Actions: []flowsink.Action{
			{Raw: "load:1->NXM_NX_REG10[1]"},
		},
	}
	e.Sink.AddFlow(lookup)
}

func fdbOwnerKey(f sbmodel.FDBEntry) string {
	return fmt.Sprintf("%d-%s", f.Datapath, f.MAC)
}

// emitLB installs one load balancer's hairpin-detection rules (one per
// vip/backend pair) and its SNAT rule, per spec.md §4.6's load-balancer
// hairpin-flows bullet. Both are gated on the LB having at least one local
// datapath, not per-datapath: the original's consider_lb_hairpin_flows skips
// a load balancer entirely unless one of its datapaths is local, then treats
// the match as datapath-independent, since a hairpin session is local by
// construction once it is on the wire at all.
func (e *Emitter) emitLB(lb *sbmodel.LoadBalancer) {
	if !e.anyDatapathLocal(lb) {
		return
	}
	owner := flowsink.OwnerForAdjunct("lb", lb.Name)

	for _, rule := range lb.Rules {
		for _, backend := range rule.Backends {
			e.emitHairpinDetect(owner, backend, rule.Protocol)
		}
	}

	e.emitHairpinSNAT(lb, owner)
}

func (e *Emitter) anyDatapathLocal(lb *sbmodel.LoadBalancer) bool {
	for _, dp := range lb.Datapaths {
		if e.Runtime.IsLocalDatapath(dp) {
			return true
		}
	}
	return false
}

// emitHairpinDetect installs the detection rule for one vip/backend pair: a
// client behind the same backend reaching the VIP and landing back on
// itself, with a learn action installing the reply-side rule on first hit.
// The match carries no datapath/metadata field: add_lb_vip_hairpin_flows
// deliberately omits it ("it's good enough to not include the datapath
// tunnel_key in the match... this allows us to reduce the number of flows"),
// since ip.src == ip.dst plus the backend's protocol/port is restrictive
// enough on its own.
func (e *Emitter) emitHairpinDetect(owner string, backend sbmodel.LBEndpoint, proto sbmodel.LBProtocol) {
	dstField, _ := addrMatchField(backend.IP, true)
	srcField, _ := addrMatchField(backend.IP, false)

	learn := fmt.Sprintf(
		"learn(table=%d,priority=100,idle_timeout=30,eth_type=0x800,nw_proto=%s,"+
			"NXM_OF_IP_SRC[]=NXM_OF_IP_DST[],NXM_OF_IP_DST[]=NXM_OF_IP_SRC[],"+
			"NXM_OF_TCP_SRC[]=NXM_OF_TCP_DST[],NXM_OF_TCP_DST[]=NXM_OF_TCP_SRC[],"+
			"output:NXM_OF_IN_PORT[])", e.Config.LBHairpinTable, protoNumber(proto))

	f := flowsink.Flow{
		Table: e.Config.LBHairpinTable, Priority: 100, Owner: owner,
		Match: flowsink.Match{Fields: []flowsink.MatchField{
			{Name: srcField, Value: backend.IP},
			{Name: dstField, Value: backend.IP},
			{Name: "tp_dst", Value: fmt.Sprintf("%d", backend.Port)},
			{Name: "ct_state", Value: "+trk+est"},
		}},
		Actions: []flowsink.Action{{Raw: learn}, {Raw: "next"}},
	}
	e.Sink.AddFlow(f)
}

// emitHairpinSNAT installs this load balancer's ct-SNAT-hairpin-finish
// rule(s), per add_lb_ct_snat_hairpin_flows/add_lb_ct_snat_hairpin_vip_flow/
// add_lb_ct_snat_hairpin_dp_flows: one flow per VIP, independent of
// datapath, SNAT-ing to that VIP's own address — unless hairpin_snat_ip is
// set for the VIP's address family, in which case that VIP's flow instead
// joins a two-dimensional conjunction (VIP clause × datapath clause, one
// datapath clause per *every* datapath this LB belongs to, not only the
// local ones) whose conj_id-matching finish flow SNATs to hairpin_snat_ip.
// IPv4 and IPv6 are handled independently: an LB with both
// hairpin_snat_ip4 and hairpin_snat_ip6 set gets both finish flows, sharing
// the one conjunction id this load balancer was assigned (drawn from this
// Emitter's own per-load-balancer pool, keyed by name — spec.md §4.6
// deliberately keeps this pool separate from CID, since adjunct emitters
// never touch it).
func (e *Emitter) emitHairpinSNAT(lb *sbmodel.LoadBalancer, owner string) {
	useConj := lb.HairpinSNATIP4 != "" || lb.HairpinSNATIP6 != ""

	var id uint32
	if useConj {
		id = e.lbConjID(lb.Name)
	}

	seenVIP := make(map[string]struct{})
	for _, rule := range lb.Rules {
		if _, dup := seenVIP[rule.VIP.IP]; dup {
			continue
		}
		seenVIP[rule.VIP.IP] = struct{}{}

		ipv6 := strings.Contains(rule.VIP.IP, ":")
		familySNATIP := lb.HairpinSNATIP4
		if ipv6 {
			familySNATIP = lb.HairpinSNATIP6
		}
		dstField, _ := addrMatchField(rule.VIP.IP, true)

		if familySNATIP == "" {
			action := flowsink.Action{Raw: fmt.Sprintf("ct(commit,nat(src=%s))", rule.VIP.IP)}
			e.Sink.AddOrAppendFlow(flowsink.Flow{
				Table: e.Config.LBSNATTable, Priority: 100, Owner: owner,
				Match:   flowsink.Match{Fields: []flowsink.MatchField{{Name: dstField, Value: rule.VIP.IP}}},
				Actions: []flowsink.Action{action},
			})
			continue
		}

		action := actionprog.ConjunctionAction(actionprog.ConjunctionEncoding{ID: id, Dim: 1, NDims: 2})
		e.Sink.AddOrAppendFlow(flowsink.Flow{
			Table: e.Config.LBSNATTable, Priority: 200, Owner: owner,
			Match:   flowsink.Match{Fields: []flowsink.MatchField{{Name: dstField, Value: rule.VIP.IP}}},
			Actions: []flowsink.Action{action},
		})
	}

	if !useConj {
		return
	}

	for _, dp := range lb.Datapaths {
		action := actionprog.ConjunctionAction(actionprog.ConjunctionEncoding{ID: id, Dim: 0, NDims: 2})
		e.Sink.AddOrAppendFlow(flowsink.Flow{
			Table: e.Config.LBSNATTable, Priority: 200, Owner: owner,
			Match:   flowsink.Match{Fields: []flowsink.MatchField{metadataField(dp)}},
			Actions: []flowsink.Action{action},
		})
	}

	if lb.HairpinSNATIP4 != "" {
		e.Sink.AddFlow(flowsink.Flow{
			Table: e.Config.LBSNATTable, Priority: 200, Owner: owner,
			Match:   flowsink.Match{Fields: []flowsink.MatchField{{Name: "conj_id", Value: fmt.Sprintf("%d", id)}, {Name: "eth_type", Value: "0x0800"}}},
			Actions: []flowsink.Action{{Raw: fmt.Sprintf("ct(commit,nat(src=%s))", lb.HairpinSNATIP4)}},
		})
	}
	if lb.HairpinSNATIP6 != "" {
		e.Sink.AddFlow(flowsink.Flow{
			Table: e.Config.LBSNATTable, Priority: 200, Owner: owner,
			Match:   flowsink.Match{Fields: []flowsink.MatchField{{Name: "conj_id", Value: fmt.Sprintf("%d", id)}, {Name: "eth_type", Value: "0x86dd"}}},
			Actions: []flowsink.Action{{Raw: fmt.Sprintf("ct(commit,nat(src=%s))", lb.HairpinSNATIP6)}},
		})
	}
}

func (e *Emitter) lbConjID(name string) uint32 {
	if id, ok := e.lbConjIDs[name]; ok {
		return id
	}
	id := e.nextLBConjID
	e.nextLBConjID++
	e.lbConjIDs[name] = id
	return id
}

func protoNumber(proto sbmodel.LBProtocol) string {
	switch proto {
	case sbmodel.LBProtocolUDP:
		return "17"
	case sbmodel.LBProtocolSCTP:
		return "132"
	default:
		return "6"
	}
}

// emitPortSecurity installs a port binding's default-deny rules plus its
// per-(mac, ipv4 set, ipv6 set) allow rules, mirrored on the out-port-sec
// side, per spec.md §4.6's port-security-flows bullet. Ports not in the
// related-local-ports set produce nothing: port security is only ever
// locally enforced for ports actually bound to this chassis.
func (e *Emitter) emitPortSecurity(pb *sbmodel.PortBinding) {
	if !e.Runtime.IsRelatedLocalPort(pb.Name) {
		return
	}
	owner := flowsink.OwnerForAdjunct("portsec", pb.Name)
	meta := metadataField(pb.Datapath)

	e.Sink.AddFlow(flowsink.Flow{
		Table: e.Config.InPortSecTable, Priority: 0, Owner: owner,
		Match:   flowsink.Match{Fields: []flowsink.MatchField{meta, {Name: "inport", Value: pb.Name}}},
		Actions: []flowsink.Action{{Raw: "drop"}},
	})
	e.Sink.AddFlow(flowsink.Flow{
		Table: e.Config.InPortSecNDTable, Priority: 0, Owner: owner,
		Match:   flowsink.Match{Fields: []flowsink.MatchField{meta, {Name: "inport", Value: pb.Name}}},
		Actions: []flowsink.Action{{Raw: "drop"}},
	})
	e.Sink.AddFlow(flowsink.Flow{
		Table: e.Config.OutPortSecTable, Priority: 0, Owner: owner,
		Match:   flowsink.Match{Fields: []flowsink.MatchField{meta, {Name: "outport", Value: pb.Name}}},
		Actions: []flowsink.Action{{Raw: "drop"}},
	})
	e.Sink.AddFlow(flowsink.Flow{
		Table: e.Config.OutPortSecNDTable, Priority: 0, Owner: owner,
		Match:   flowsink.Match{Fields: []flowsink.MatchField{meta, {Name: "outport", Value: pb.Name}}},
		Actions: []flowsink.Action{{Raw: "drop"}},
	})

	for _, entry := range pb.PortSecurity {
		e.emitPortSecurityEntry(pb, entry, owner, meta)
	}
}

func (e *Emitter) emitPortSecurityEntry(pb *sbmodel.PortBinding, entry sbmodel.PortSecurityEntry, owner string, meta flowsink.MatchField) {
	addrs := append(append([]string{}, entry.IPv4...), entry.IPv6...)

	if len(addrs) == 0 {
		e.allowIn(owner, meta, pb.Name, entry.MAC, "", "")
		e.allowOut(owner, meta, pb.Name, entry.MAC, "", "")
	}
	for _, addr := range addrs {
		field, val := addrMatchField(addr, false)
		e.allowIn(owner, meta, pb.Name, entry.MAC, field, val)
		outField, _ := addrMatchField(addr, true)
		e.allowOut(owner, meta, pb.Name, entry.MAC, outField, val)
	}

	// Targeted allows: DHCP needs the client's source address carried. ARP
	// is always allowed for an authorized MAC regardless of which address
	// is currently bound; IPv6 router/neighbor solicitation is allowed only
	// when the entry lists at least one IPv6 address.
	e.Sink.AddFlow(flowsink.Flow{
		Table: e.Config.InPortSecNDTable, Priority: 90, Owner: owner,
		Match: flowsink.Match{Fields: []flowsink.MatchField{
			meta, {Name: "inport", Value: pb.Name}, {Name: "arp_sha", Value: entry.MAC},
		}},
		Actions: []flowsink.Action{{Raw: "next"}},
	})
	if len(entry.IPv4) > 0 {
		e.Sink.AddFlow(flowsink.Flow{
			Table: e.Config.InPortSecTable, Priority: 90, Owner: owner,
			Match: flowsink.Match{Fields: []flowsink.MatchField{
				meta, {Name: "inport", Value: pb.Name}, {Name: "eth_src", Value: entry.MAC}, {Name: "udp_dst", Value: "67"},
			}},
			Actions: []flowsink.Action{{Raw: "next"}},
		})
	}
	if len(entry.IPv6) > 0 {
		for _, icmpType := range []string{"133", "135"} { // router solicitation, neighbor solicitation
			e.Sink.AddFlow(flowsink.Flow{
				Table: e.Config.InPortSecNDTable, Priority: 90, Owner: owner,
				Match: flowsink.Match{Fields: []flowsink.MatchField{
					meta, {Name: "inport", Value: pb.Name}, {Name: "eth_src", Value: entry.MAC}, {Name: "icmp6_type", Value: icmpType},
				}},
				Actions: []flowsink.Action{{Raw: "next"}},
			})
		}
	}
}

func (e *Emitter) allowIn(owner string, meta flowsink.MatchField, port, mac, addrField, addrVal string) {
	fields := []flowsink.MatchField{meta, {Name: "inport", Value: port}, {Name: "eth_src", Value: mac}}
	if addrField != "" {
		fields = append(fields, flowsink.MatchField{Name: addrField, Value: addrVal})
	}
	e.Sink.AddFlow(flowsink.Flow{
		Table: e.Config.InPortSecTable, Priority: 90, Owner: owner,
		Match: flowsink.Match{Fields: fields}, Actions: []flowsink.Action{{Raw: "next"}},
	})
}

func (e *Emitter) allowOut(owner string, meta flowsink.MatchField, port, mac, addrField, addrVal string) {
	fields := []flowsink.MatchField{meta, {Name: "outport", Value: port}, {Name: "eth_dst", Value: mac}}
	if addrField != "" {
		fields = append(fields, flowsink.MatchField{Name: addrField, Value: addrVal})
	}
	e.Sink.AddFlow(flowsink.Flow{
		Table: e.Config.OutPortSecTable, Priority: 90, Owner: owner,
		Match: flowsink.Match{Fields: fields}, Actions: []flowsink.Action{{Raw: "next"}},
	})
}

func metadataField(dp sbmodel.DatapathID) flowsink.MatchField {
	return flowsink.MatchField{Name: "metadata", Value: fmt.Sprintf("0x%x", uint32(dp))}
}

// addrMatchField picks the concrete match field name for addr (which may
// carry a "/mask" suffix for a host-bits-zero subnet entry), by IP family
// and by which side of the flow it pins.
func addrMatchField(addr string, dst bool) (name, value string) {
	ip := addr
	mask := ""
	if idx := strings.IndexByte(addr, '/'); idx >= 0 {
		ip = addr[:idx]
		mask = addr[idx+1:]
	}
	v6 := strings.Contains(ip, ":")
	switch {
	case v6 && dst:
		name = "ipv6_dst"
	case v6 && !dst:
		name = "ipv6_src"
	case dst:
		name = "nw_dst"
	default:
		name = "nw_src"
	}
	value = ip
	if mask != "" {
		value = ip + "/" + mask
	}
	return name, value
}
