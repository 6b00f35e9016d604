// Package config loads node configuration from a JSON file, TOLASK_*
// environment overrides and secret environment variables.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Storage backends a node can run on.
const (
	BackendLevelDB = "leveldb"
	BackendSQLite  = "sqlite"
	BackendMySQL   = "mysql"
)

// GenesisConfig describes the ledger's initial host state.
type GenesisConfig struct {
	ChainID string `json:"chain_id" mapstructure:"chain_id" validate:"required"`
	// Escrow is the host account holding attached value until it is paid out.
	Escrow string            `json:"escrow" mapstructure:"escrow" validate:"required"`
	Alloc  map[string]uint64 `json:"alloc" mapstructure:"alloc"` // pubkey hex → initial balance
}

// StorageConfig selects the key-value backend.
type StorageConfig struct {
	Backend string `json:"backend" mapstructure:"backend" validate:"oneof=leveldb sqlite mysql"`
	DSN     string `json:"dsn,omitempty" mapstructure:"dsn" validate:"required_if=Backend mysql"`
}

// Config holds all node configuration.
type Config struct {
	NodeID       string        `json:"node_id" mapstructure:"node_id" validate:"required"`
	DataDir      string        `json:"data_dir" mapstructure:"data_dir" validate:"required"`
	RPCPort      int           `json:"rpc_port" mapstructure:"rpc_port" validate:"min=1,max=65535"`
	RPCAuthToken string        `json:"rpc_auth_token,omitempty" mapstructure:"rpc_auth_token"`
	RPCTLS       TLSConfig     `json:"rpc_tls" mapstructure:"rpc_tls"`
	LogLevel     string        `json:"log_level" mapstructure:"log_level" validate:"oneof=debug info warn error"`
	Storage      StorageConfig `json:"storage" mapstructure:"storage"`
	Genesis      GenesisConfig `json:"genesis" mapstructure:"genesis"`
}

// Secrets are read from the environment only, never from the config file.
type Secrets struct {
	KeyPassword  string `env:"TOL_PASSWORD"`
	RPCAuthToken string `env:"TOLASK_RPC_AUTH_TOKEN"`
}

// DefaultConfig returns a single-node development configuration.
func DefaultConfig() *Config {
	return &Config{
		NodeID:   "node0",
		DataDir:  "./data",
		RPCPort:  8545,
		LogLevel: "info",
		Storage:  StorageConfig{Backend: BackendLevelDB},
		Genesis: GenesisConfig{
			ChainID: "tolask-dev",
			Escrow:  "tolask:escrow",
			Alloc:   map[string]uint64{},
		},
	}
}

func newViper() *viper.Viper {
	v := viper.New()
	def := DefaultConfig()
	v.SetDefault("node_id", def.NodeID)
	v.SetDefault("data_dir", def.DataDir)
	v.SetDefault("rpc_port", def.RPCPort)
	v.SetDefault("rpc_auth_token", "")
	v.SetDefault("rpc_tls.ca_cert", "")
	v.SetDefault("rpc_tls.cert", "")
	v.SetDefault("rpc_tls.key", "")
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("storage.backend", def.Storage.Backend)
	v.SetDefault("storage.dsn", "")
	v.SetDefault("genesis.chain_id", def.Genesis.ChainID)
	v.SetDefault("genesis.escrow", def.Genesis.Escrow)

	v.SetEnvPrefix("TOLASK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads a JSON config file from path and applies TOLASK_* environment
// overrides (e.g. TOLASK_RPC_PORT, TOLASK_STORAGE_BACKEND). A missing file
// yields the defaults with overrides applied. Alloc keys are lower-cased,
// which matches hex-encoded public keys.
func Load(path string) (*Config, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Genesis.Alloc == nil {
		cfg.Genesis.Alloc = map[string]uint64{}
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// LoadSecrets reads secret values from the environment.
func LoadSecrets() (*Secrets, error) {
	var s Secrets
	if err := env.Parse(&s); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &s, nil
}

// ApplySecrets overrides config values with secrets that are set.
func (c *Config) ApplySecrets(s *Secrets) {
	if s.RPCAuthToken != "" {
		c.RPCAuthToken = s.RPCAuthToken
	}
}

// Save writes the config to path as formatted JSON.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
