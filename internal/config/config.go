// Package config holds the settings of a deployment run. Values come from
// defaults, an optional config file, SRV6_TINET_* environment variables and
// command-line flags, in increasing order of precedence.
package config

import (
	"net/netip"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/zinrai/srv6-tinet/internal/addr"
	"github.com/zinrai/srv6-tinet/internal/export"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "SRV6_TINET"

// ErrInvalidConfig is wrapped by every validation error.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the deployment configuration.
type Config struct {
	Topology  string `mapstructure:"topology"`
	Output    string `mapstructure:"output"`
	Templates string `mapstructure:"templates"`
	Image     string `mapstructure:"image"`

	MgmtNet        string `mapstructure:"mgmt-net"`
	MgmtMask       int    `mapstructure:"mgmt-mask"`
	DataPlaneSpace string `mapstructure:"dataplane-space"`
	LinkMask       int    `mapstructure:"link-mask"`
	VNFMask        int    `mapstructure:"vnf-mask"`
	LoopbackNet    string `mapstructure:"loopback-net"`
	RouterIDNet    string `mapstructure:"router-id-net"`

	LogLevel string `mapstructure:"log-level"`

	Neo4jURI      string `mapstructure:"neo4j-uri"`
	Neo4jUser     string `mapstructure:"neo4j-user"`
	Neo4jPassword string `mapstructure:"neo4j-password"`
	Neo4jDatabase string `mapstructure:"neo4j-database"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Topology:       "topology.yaml",
		Output:         "deployment",
		Templates:      "",
		Image:          export.DefaultImage,
		MgmtNet:        "2000::/64",
		MgmtMask:       64,
		DataPlaneSpace: "2001::/56",
		LinkMask:       64,
		VNFMask:        128,
		LoopbackNet:    "fcff::/64",
		RouterIDNet:    "10.255.0.0/16",
		LogLevel:       "info",
		Neo4jDatabase:  "neo4j",
	}
}

// BindFlags registers one flag per setting on fs, defaulting to
// DefaultConfig.
func BindFlags(fs *pflag.FlagSet) {
	cfg := DefaultConfig()

	fs.StringP("topology", "t", cfg.Topology, "Path to the topology YAML file")
	fs.StringP("output", "o", cfg.Output, "Directory to write the deployment to")
	fs.String("templates", cfg.Templates, "Path to the daemon templates YAML file")
	fs.String("image", cfg.Image, "Container image used for all nodes")
	fs.String("mgmt-net", cfg.MgmtNet, "Management network")
	fs.Int("mgmt-mask", cfg.MgmtMask, "Prefix length of management addresses")
	fs.String("dataplane-space", cfg.DataPlaneSpace, "Address space link and VNF subnets are carved from")
	fs.Int("link-mask", cfg.LinkMask, "Prefix length of link subnets")
	fs.Int("vnf-mask", cfg.VNFMask, "Prefix length of VNF addresses")
	fs.String("loopback-net", cfg.LoopbackNet, "Router loopback network")
	fs.String("router-id-net", cfg.RouterIDNet, "Router ID network")
	fs.String("log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	fs.String("neo4j-uri", cfg.Neo4jURI, "Neo4j URI to store the topology in (disabled when empty)")
	fs.String("neo4j-user", cfg.Neo4jUser, "Neo4j user")
	fs.String("neo4j-password", cfg.Neo4jPassword, "Neo4j password")
	fs.String("neo4j-database", cfg.Neo4jDatabase, "Neo4j database")
}

// Load reads the configuration from v. When file is set it is read as the
// config file. Unset keys keep their defaults.
func Load(v *viper.Viper, file string) (Config, error) {
	def := DefaultConfig()
	defaults := map[string]any{
		"topology":        def.Topology,
		"output":          def.Output,
		"templates":       def.Templates,
		"image":           def.Image,
		"mgmt-net":        def.MgmtNet,
		"mgmt-mask":       def.MgmtMask,
		"dataplane-space": def.DataPlaneSpace,
		"link-mask":       def.LinkMask,
		"vnf-mask":        def.VNFMask,
		"loopback-net":    def.LoopbackNet,
		"router-id-net":   def.RouterIDNet,
		"log-level":       def.LogLevel,
		"neo4j-uri":       def.Neo4jURI,
		"neo4j-user":      def.Neo4jUser,
		"neo4j-password":  def.Neo4jPassword,
		"neo4j-database":  def.Neo4jDatabase,
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "config file %s", file)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}
	return cfg, nil
}

// Validate checks that the address plan can be allocated from.
func (c Config) Validate() error {
	mgmt, err := parsePrefix("mgmt-net", c.MgmtNet)
	if err != nil {
		return err
	}
	dp, err := parsePrefix("dataplane-space", c.DataPlaneSpace)
	if err != nil {
		return err
	}
	lo, err := parsePrefix("loopback-net", c.LoopbackNet)
	if err != nil {
		return err
	}
	rid, err := parsePrefix("router-id-net", c.RouterIDNet)
	if err != nil {
		return err
	}
	if !rid.Addr().Is4() {
		return errors.Wrapf(ErrInvalidConfig, "router-id-net %s is not IPv4", rid)
	}

	if c.MgmtMask < mgmt.Bits() || c.MgmtMask > mgmt.Addr().BitLen() {
		return errors.Wrapf(ErrInvalidConfig, "mgmt-mask /%d does not fit %s", c.MgmtMask, mgmt)
	}
	// A link subnet carries two hosts besides its reserved addresses
	maxLink := dp.Addr().BitLen() - 2
	if dp.Addr().Is4() {
		maxLink = 30
	}
	if c.LinkMask < dp.Bits() || c.LinkMask > maxLink {
		return errors.Wrapf(ErrInvalidConfig, "link-mask /%d does not fit %s", c.LinkMask, dp)
	}
	if c.VNFMask < c.LinkMask || c.VNFMask > dp.Addr().BitLen() {
		return errors.Wrapf(ErrInvalidConfig, "vnf-mask /%d does not fit a /%d subnet", c.VNFMask, c.LinkMask)
	}

	if err := addr.Disjoint(mgmt, dp, lo, rid); err != nil {
		return errors.Wrap(ErrInvalidConfig, err.Error())
	}

	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrapf(ErrInvalidConfig, "log-level %q", c.LogLevel)
	}
	return nil
}

func parsePrefix(key, s string) (netip.Prefix, error) {
	p, err := netip.ParsePrefix(s)
	if err != nil {
		return netip.Prefix{}, errors.Wrapf(ErrInvalidConfig, "%s: %v", key, err)
	}
	if p != p.Masked() {
		return netip.Prefix{}, errors.Wrapf(ErrInvalidConfig, "%s %s has host bits set", key, s)
	}
	return p, nil
}

// Plan returns the address plan of the configuration.
func (c Config) Plan() addr.Plan {
	return addr.Plan{
		MgmtNet:        c.MgmtNet,
		MgmtBits:       c.MgmtMask,
		DataPlaneSpace: c.DataPlaneSpace,
		LinkBits:       c.LinkMask,
		VNFBits:        c.VNFMask,
		LoopbackNet:    c.LoopbackNet,
		RouterIDNet:    c.RouterIDNet,
	}
}

// AreaRange is the range daemon templates summarize the data plane with.
func (c Config) AreaRange() netip.Prefix {
	p, _ := netip.ParsePrefix(c.DataPlaneSpace)
	return p
}

// Level returns the parsed log level, info when unparsable.
func (c Config) Level() zapcore.Level {
	l, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return zapcore.InfoLevel
	}
	return l
}
