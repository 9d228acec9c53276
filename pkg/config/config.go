// Package config provides a reusable loader for meshline configuration
// files and environment variables. It is versioned so that applications
// can depend on a stable API contract.
//
// Version: v0.1.0
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"meshline/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config represents the unified configuration for a meshline node, mirroring
// the YAML files under cmd/config.
type Config struct {
	Node struct {
		Host     string `mapstructure:"host" json:"host"`
		Port     int    `mapstructure:"port" json:"port"`
		Username string `mapstructure:"username" json:"username"`
	} `mapstructure:"node" json:"node"`

	Network struct {
		BroadcastPort          int           `mapstructure:"broadcast_port" json:"broadcast_port"`
		BroadcastIntervalMS    int           `mapstructure:"broadcast_interval_ms" json:"broadcast_interval_ms"`
		SyncIntervalMS         int           `mapstructure:"sync_interval_ms" json:"sync_interval_ms"`
		MaxConnections         int           `mapstructure:"max_connections" json:"max_connections"`
		MempoolMiningThreshold int           `mapstructure:"mempool_mining_threshold" json:"mempool_mining_threshold"`
		BootstrapPeers         []string      `mapstructure:"bootstrap_peers" json:"bootstrap_peers"`
	} `mapstructure:"network" json:"network"`

	Consensus struct {
		Difficulty int `mapstructure:"difficulty" json:"difficulty"`
	} `mapstructure:"consensus" json:"consensus"`

	Crypto struct {
		KeyAgreementCurve string `mapstructure:"key_agreement_curve" json:"key_agreement_curve"`
	} `mapstructure:"crypto" json:"crypto"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment-specific
// overrides. The resulting configuration is stored in AppConfig and
// returned.
//
// The function uses the provided environment name to merge additional
// config files. If env is empty, only the default configuration is
// loaded.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.SetEnvPrefix("MESHLINE")
	viper.AutomaticEnv()

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the MESHLINE_ENV environment
// variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("MESHLINE_ENV", ""))
}
