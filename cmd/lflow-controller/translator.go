package main

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/ovnlocal/lflow/internal/adjunct"
	"github.com/ovnlocal/lflow/internal/cidpool"
	"github.com/ovnlocal/lflow/internal/delta"
	"github.com/ovnlocal/lflow/internal/flowsink"
	"github.com/ovnlocal/lflow/internal/lflowexpr"
	"github.com/ovnlocal/lflow/internal/metrics"
	"github.com/ovnlocal/lflow/internal/ovnconfig"
	"github.com/ovnlocal/lflow/internal/reftrack"
	"github.com/ovnlocal/lflow/internal/rowcompile"
	"github.com/ovnlocal/lflow/internal/sbmodel"
	"github.com/ovnlocal/lflow/internal/xlatecache"
	"github.com/ovnlocal/lflow/ovsnl"
)

// defaultFieldNames is the symbol table the match grammar resolves row
// text against. The grammar itself is an external collaborator (spec.md
// §1); this binary only needs to supply some concrete field vocabulary, so
// it lists the field names OVN's own logical pipeline documents.
var defaultFieldNames = []string{
	"inport", "outport",
	"eth.src", "eth.dst", "eth.type",
	"ip4.src", "ip4.dst", "ip4.proto",
	"ip6.src", "ip6.dst",
	"tcp.src", "tcp.dst", "udp.src", "udp.dst",
	"arp.spa", "arp.tpa", "arp.sha", "arp.tha", "arp.op",
	"icmp4.type", "icmp6.type",
	"ct.new", "ct.est", "ct.rel", "ct.trk",
}

// translator bundles every piece buildTranslator wires together: the
// translator's own components plus the snapshot/runtime-state views the
// (out-of-scope) ingestion layer is responsible for keeping current.
type translator struct {
	snapshot *sbmodel.Snapshot
	runtime  *sbmodel.RuntimeState
	sink     *flowsink.MemSink
	engine   *delta.Engine
	adjunct  *adjunct.Emitter
	metrics  *metrics.Collector
}

// buildTranslator constructs the full translation core from cfg: R, CID,
// TC, RC, DE, and AE, plus an initially empty snapshot and runtime state for
// the ingestion layer (out of scope, spec.md §1) to populate.
func buildTranslator(cfg *ovnconfig.Config, log *logrus.Logger, reg prometheus.Registerer) *translator {
	snap := sbmodel.NewSnapshot()
	rt := &sbmodel.RuntimeState{
		ThisChassis:           cfg.Chassis,
		ActiveTunnels:         make(map[uint32]struct{}),
		RelatedLocalPorts:     make(map[string]struct{}),
		LocalDatapaths:        make(map[sbmodel.DatapathID]struct{}),
		ChassisTunnels:        make(map[string]uint32),
		ActiveHAChassisGroups: make(map[string]struct{}),
	}

	idx := reftrack.New()
	cid := cidpool.New()
	cache := xlatecache.New(cfg.CacheSizeBytes)
	sink := flowsink.NewMemSink()
	symbols := lflowexpr.NewStaticSymbolTable(defaultFieldNames...)
	meters := rowcompile.NewMeterTable(cfg.MeterCapacity)
	rlog := cfg.NewRateLimited(log)
	mcol := metrics.New(reg)

	rc := rowcompile.New(snap, rt, idx, cid, cache, sink, symbols, meters, cfg.RowCompileConfig(), rlog)
	rc.CacheObserver = mcol

	ae := adjunct.New(snap, rt, sink, cfg.AdjunctConfig(), rlog)
	engine := delta.New(snap, rt, idx, cid, cache, sink, rc, ae, rlog)

	return &translator{snapshot: snap, runtime: rt, sink: sink, engine: engine, adjunct: ae, metrics: mcol}
}

// runFullCycle runs one full translation cycle: every logical row through
// the row compiler, plus every adjunct entity. It does not reset the
// processed-row set, matching spec.md §5/§4.5's description of run_full.
func (t *translator) runFullCycle() {
	t.engine.RunFull()
	t.adjunct.RunAll()
	t.metrics.CyclesFull.Inc()
}

// refreshLocalDatapaths asks the kernel, via ovsnl, which datapaths this
// chassis actually has instantiated and updates runtime.LocalDatapaths
// accordingly. It is best effort: a host without the OVS generic netlink
// families (no kernel module loaded, insufficient privilege, non-Linux)
// leaves the previous locality view untouched rather than failing the
// cycle.
//
// localBridge is assumed to carry every logical datapath the (out-of-scope)
// ingestion layer has bound locally; ovsnl only confirms that bridge still
// exists as a kernel datapath; the port-binding correlation that would
// narrow this further is ingestion's job, not netlink's.
func (t *translator) refreshLocalDatapaths(localBridge string, log *logrus.Logger) {
	c, err := ovsnl.New()
	if err != nil {
		log.WithError(err).Debug("ovsnl unavailable, leaving local datapaths as-is")
		return
	}
	defer c.Close()

	var known []sbmodel.DatapathID
	for id := range t.snapshot.Datapaths {
		known = append(known, id)
	}

	local, err := c.LocalDatapaths(ovsnl.BridgeDatapaths{localBridge: known})
	if err != nil {
		log.WithError(err).Warn("failed to list local datapaths")
		return
	}

	t.runtime.LocalDatapaths = local
}
