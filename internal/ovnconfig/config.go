// Package ovnconfig loads the controller binary's runtime configuration:
// chassis identity, OVSDB endpoints, the local bridge, the metrics bind
// address, and the physical-table/sizing constants the row compiler and
// adjunct emitters need. It binds a config file, environment variables, and
// command-line flags together with github.com/spf13/viper and
// github.com/spf13/pflag, the idiom the rest of the retrieval pack reaches
// for around a cobra command tree (see SPEC_FULL.md's ambient stack).
package ovnconfig

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ovnlocal/lflow/internal/adjunct"
	"github.com/ovnlocal/lflow/internal/rowcompile"
)

// Config is the full set of values the controller binary needs to wire up
// the translator for one chassis.
type Config struct {
	Chassis            string   `mapstructure:"chassis"`
	OVSDBEndpoints     []string `mapstructure:"ovsdb-endpoints"`
	LocalBridge        string   `mapstructure:"local-bridge"`
	MetricsBindAddress string   `mapstructure:"metrics-bind-address"`
	LogLevel           string   `mapstructure:"log-level"`

	IngressTableBase uint8 `mapstructure:"ingress-table-base"`
	EgressTableBase  uint8 `mapstructure:"egress-table-base"`

	NeighborGetTable    uint8 `mapstructure:"neighbor-get-table"`
	NeighborLookupTable uint8 `mapstructure:"neighbor-lookup-table"`
	FDBGetTable         uint8 `mapstructure:"fdb-get-table"`
	FDBLookupTable      uint8 `mapstructure:"fdb-lookup-table"`
	LBHairpinTable      uint8 `mapstructure:"lb-hairpin-table"`
	LBSNATTable         uint8 `mapstructure:"lb-snat-table"`
	InPortSecTable      uint8 `mapstructure:"in-portsec-table"`
	InPortSecNDTable    uint8 `mapstructure:"in-portsec-nd-table"`
	OutPortSecTable     uint8 `mapstructure:"out-portsec-table"`
	OutPortSecNDTable   uint8 `mapstructure:"out-portsec-nd-table"`

	CacheSizeBytes  int           `mapstructure:"cache-size-bytes"`
	MeterCapacity   int           `mapstructure:"meter-capacity"`
	RateLimitWindow time.Duration `mapstructure:"rate-limit-window"`
	RateLimitBurst  int           `mapstructure:"rate-limit-burst"`
}

// Defaults returns the baseline configuration applied before any file,
// environment, or flag overrides. Physical table numbers are laid out with
// enough headroom between the ingress/egress pipelines and the adjunct
// emitters' fixed tables that a reasonably sized logical pipeline (spec.md
// §3's TableID is a uint8) cannot collide with them.
func Defaults() Config {
	return Config{
		MetricsBindAddress: ":9090",
		LogLevel:           "info",

		IngressTableBase: 8,
		EgressTableBase:  136,

		NeighborGetTable:    250,
		NeighborLookupTable: 251,
		FDBGetTable:         252,
		FDBLookupTable:      253,
		LBHairpinTable:      254,
		LBSNATTable:         255,
		InPortSecTable:      0,
		InPortSecNDTable:    1,
		OutPortSecTable:     2,
		OutPortSecNDTable:   3,

		CacheSizeBytes:  64 << 20,
		MeterCapacity:   4096,
		RateLimitWindow: 5 * time.Second,
		RateLimitBurst:  20,
	}
}

// BindFlags registers every config-backed flag on fs, for cobra commands to
// attach before argument parsing. Flag names mirror the mapstructure tags
// above so viper.BindPFlags needs no manual key translation.
func BindFlags(fs *pflag.FlagSet) {
	d := Defaults()

	fs.String("chassis", d.Chassis, "this controller's chassis name")
	fs.StringSlice("ovsdb-endpoints", d.OVSDBEndpoints, "OVSDB server endpoints to connect to")
	fs.String("local-bridge", d.LocalBridge, "name of the local integration bridge")
	fs.String("metrics-bind-address", d.MetricsBindAddress, "address to serve /metrics on")
	fs.String("log-level", d.LogLevel, "logrus level: debug, info, warn, error")

	fs.Uint8("ingress-table-base", d.IngressTableBase, "physical table offset for ingress logical table 0")
	fs.Uint8("egress-table-base", d.EgressTableBase, "physical table offset for egress logical table 0")

	fs.Uint8("neighbor-get-table", d.NeighborGetTable, "physical table for neighbor get-rules")
	fs.Uint8("neighbor-lookup-table", d.NeighborLookupTable, "physical table for neighbor lookup-rules")
	fs.Uint8("fdb-get-table", d.FDBGetTable, "physical table for FDB get-rules")
	fs.Uint8("fdb-lookup-table", d.FDBLookupTable, "physical table for FDB lookup-rules")
	fs.Uint8("lb-hairpin-table", d.LBHairpinTable, "physical table for load-balancer hairpin detection")
	fs.Uint8("lb-snat-table", d.LBSNATTable, "physical table for load-balancer hairpin SNAT")
	fs.Uint8("in-portsec-table", d.InPortSecTable, "physical table for inbound port security")
	fs.Uint8("in-portsec-nd-table", d.InPortSecNDTable, "physical table for inbound port security, ND/ARP")
	fs.Uint8("out-portsec-table", d.OutPortSecTable, "physical table for outbound port security")
	fs.Uint8("out-portsec-nd-table", d.OutPortSecNDTable, "physical table for outbound port security, ND/ARP")

	fs.Int("cache-size-bytes", d.CacheSizeBytes, "translation cache size bound, in its internal size units")
	fs.Int("meter-capacity", d.MeterCapacity, "maximum number of distinct controller meters")
	fs.Duration("rate-limit-window", d.RateLimitWindow, "rate-limited logging window")
	fs.Int("rate-limit-burst", d.RateLimitBurst, "rate-limited logging burst per window")
}

// Load builds a Config from Defaults, an optional config file named
// lflow-controller.(yaml|json|toml) searched for in /etc/lflow-controller,
// $HOME/.lflow-controller, and the working directory, environment variables
// prefixed LFLOW_, and finally fs's already-parsed flag values, in
// increasing order of precedence.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	d := Defaults()
	v.SetDefault("metrics-bind-address", d.MetricsBindAddress)
	v.SetDefault("log-level", d.LogLevel)
	v.SetDefault("ingress-table-base", d.IngressTableBase)
	v.SetDefault("egress-table-base", d.EgressTableBase)
	v.SetDefault("neighbor-get-table", d.NeighborGetTable)
	v.SetDefault("neighbor-lookup-table", d.NeighborLookupTable)
	v.SetDefault("fdb-get-table", d.FDBGetTable)
	v.SetDefault("fdb-lookup-table", d.FDBLookupTable)
	v.SetDefault("lb-hairpin-table", d.LBHairpinTable)
	v.SetDefault("lb-snat-table", d.LBSNATTable)
	v.SetDefault("in-portsec-table", d.InPortSecTable)
	v.SetDefault("in-portsec-nd-table", d.InPortSecNDTable)
	v.SetDefault("out-portsec-table", d.OutPortSecTable)
	v.SetDefault("out-portsec-nd-table", d.OutPortSecNDTable)
	v.SetDefault("cache-size-bytes", d.CacheSizeBytes)
	v.SetDefault("meter-capacity", d.MeterCapacity)
	v.SetDefault("rate-limit-window", d.RateLimitWindow)
	v.SetDefault("rate-limit-burst", d.RateLimitBurst)

	v.SetConfigName("lflow-controller")
	v.AddConfigPath("/etc/lflow-controller/")
	v.AddConfigPath("$HOME/.lflow-controller")
	v.AddConfigPath(".")

	v.SetEnvPrefix("LFLOW")
	v.AutomaticEnv()

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return nil, errors.Wrap(err, "ovnconfig: bind flags")
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, errors.Wrap(err, "ovnconfig: read config file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "ovnconfig: unmarshal")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the one precondition this translator cannot run
// without: a chassis identity and at least one OVSDB endpoint to learn it
// from.
func (c *Config) Validate() error {
	if c.Chassis == "" {
		return errors.New("ovnconfig: chassis is required")
	}
	if len(c.OVSDBEndpoints) == 0 {
		return errors.New("ovnconfig: at least one OVSDB endpoint is required")
	}
	return nil
}

// RowCompileConfig projects the row-compiler-relevant fields of c.
func (c *Config) RowCompileConfig() rowcompile.Config {
	return rowcompile.Config{
		IngressTableBase: c.IngressTableBase,
		EgressTableBase:  c.EgressTableBase,
	}
}

// AdjunctConfig projects the adjunct-emitter-relevant fields of c.
func (c *Config) AdjunctConfig() adjunct.Config {
	return adjunct.Config{
		NeighborGetTable:    c.NeighborGetTable,
		NeighborLookupTable: c.NeighborLookupTable,
		FDBGetTable:         c.FDBGetTable,
		FDBLookupTable:      c.FDBLookupTable,
		LBHairpinTable:      c.LBHairpinTable,
		LBSNATTable:         c.LBSNATTable,
		InPortSecTable:      c.InPortSecTable,
		InPortSecNDTable:    c.InPortSecNDTable,
		OutPortSecTable:     c.OutPortSecTable,
		OutPortSecNDTable:   c.OutPortSecNDTable,
	}
}
