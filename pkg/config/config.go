// Package config provides a reusable loader for ClawMiner configuration
// files and environment variables. It is versioned so that applications can
// depend on a stable API contract.
package config

import (
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/b0ase/clawminer/pkg/envutil"
	"github.com/b0ase/clawminer/pkg/errs"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config is the unified configuration for a ClawMiner daemon instance.
type Config struct {
	DataDirPath string `mapstructure:"data_dir" json:"data_dir"`

	Wallet struct {
		Key     string `mapstructure:"wif" json:"wif"`
		Address string `mapstructure:"address" json:"address"`
	} `mapstructure:"wallet" json:"wallet"`

	Gossip struct {
		Port           int      `mapstructure:"port" json:"port"`
		MaxPeers       int      `mapstructure:"max_peers" json:"max_peers"`
		BootstrapPeers []string `mapstructure:"bootstrap_peers" json:"bootstrap_peers"`
		EnableDHT      bool     `mapstructure:"enable_dht" json:"enable_dht"`
		EnableMDNS     bool     `mapstructure:"enable_mdns" json:"enable_mdns"`
		DiscoveryTag   string   `mapstructure:"discovery_tag" json:"discovery_tag"`
	} `mapstructure:"gossip" json:"gossip"`

	Mining struct {
		Enabled           bool          `mapstructure:"enabled" json:"enabled"`
		Difficulty        int           `mapstructure:"difficulty" json:"difficulty"`
		MinItems          int           `mapstructure:"min_items" json:"min_items"`
		BatchSize         int           `mapstructure:"batch_size" json:"batch_size"`
		AdjustmentPeriod  int64         `mapstructure:"adjustment_period" json:"adjustment_period"`
		TargetBlockTime   time.Duration `mapstructure:"target_block_time" json:"target_block_time"`
		HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" json:"heartbeat_interval"`
		BroadcastMode     string        `mapstructure:"broadcast_mode" json:"broadcast_mode"`
		ArcURL            string        `mapstructure:"arc_url" json:"arc_url"`
		ArcAPIKey         string        `mapstructure:"arc_api_key" json:"arc_api_key"`
		TokenID           string        `mapstructure:"token_id" json:"token_id"`
		MintEndpoint      string        `mapstructure:"mint_endpoint" json:"mint_endpoint"`
	} `mapstructure:"mining" json:"mining"`

	Headers struct {
		BHSURL       string        `mapstructure:"bhs_url" json:"bhs_url"`
		BHSAPIKey    string        `mapstructure:"bhs_api_key" json:"bhs_api_key"`
		SyncOnBoot   bool          `mapstructure:"sync_on_boot" json:"sync_on_boot"`
		PollInterval time.Duration `mapstructure:"poll_interval" json:"poll_interval"`
		BatchSize    int           `mapstructure:"batch_size" json:"batch_size"`
		MaxRetries   int           `mapstructure:"max_retries" json:"max_retries"`
	} `mapstructure:"headers" json:"headers"`

	API struct {
		Bind string `mapstructure:"bind" json:"bind"`
		Port int    `mapstructure:"port" json:"port"`
	} `mapstructure:"api" json:"api"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// DBPath returns the path to the embedded store file within the data
// directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.dataDir(), "clawminer.db")
}

// ContentDir returns the directory holding content-addressed blobs.
func (c *Config) ContentDir() string {
	return filepath.Join(c.dataDir(), "content")
}

func (c *Config) dataDir() string {
	if c.DataDirPath != "" {
		return c.DataDirPath
	}
	return "."
}

func setDefaults() {
	viper.SetDefault("data_dir", ".")
	viper.SetDefault("gossip.port", 4001)
	viper.SetDefault("gossip.max_peers", 64)
	viper.SetDefault("gossip.enable_dht", false)
	viper.SetDefault("gossip.enable_mdns", true)
	viper.SetDefault("gossip.discovery_tag", "clawminer-poi")
	viper.SetDefault("mining.enabled", true)
	viper.SetDefault("mining.difficulty", 1)
	viper.SetDefault("mining.min_items", 1)
	viper.SetDefault("mining.batch_size", 500)
	viper.SetDefault("mining.adjustment_period", 144)
	viper.SetDefault("mining.target_block_time", 10*time.Minute)
	viper.SetDefault("mining.heartbeat_interval", 250*time.Millisecond)
	viper.SetDefault("mining.broadcast_mode", "noop")
	viper.SetDefault("headers.sync_on_boot", true)
	viper.SetDefault("headers.poll_interval", 30*time.Second)
	viper.SetDefault("headers.batch_size", 2000)
	viper.SetDefault("headers.max_retries", 5)
	viper.SetDefault("api.bind", "0.0.0.0")
	viper.SetDefault("api.port", 8090)
	viper.SetDefault("logging.level", "info")
}

// Load reads the configuration file at path (TOML, YAML, or JSON, detected
// by extension) if non-empty, merges environment variable overrides, and
// returns the populated Config. An empty path loads defaults only.
//
// CLAWMINER_WALLET_WIF and CLAWMINER_BHS_API_KEY always override whatever
// the config file says, so secrets never need to live on disk.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults()
	for _, key := range viper.AllKeys() {
		v.SetDefault(key, viper.Get(key))
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errs.Wrapf(errs.ErrConfigInvalid, "load config %s: %v", path, err)
		}
	}

	v.SetEnvPrefix("CLAWMINER")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errs.Wrapf(errs.ErrConfigInvalid, "unmarshal config: %v", err)
	}

	if wif := envutil.EnvOrDefault("CLAWMINER_WALLET_WIF", ""); wif != "" {
		cfg.Wallet.Key = wif
	}
	if apiKey := envutil.EnvOrDefault("CLAWMINER_BHS_API_KEY", ""); apiKey != "" {
		cfg.Headers.BHSAPIKey = apiKey
	}

	return &cfg, nil
}
