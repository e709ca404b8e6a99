// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"

	"github.com/BoostyLabs/ordindex/bitcoin/ord"
)

// envPrefix defines the prefix of every recognized environment variable.
const envPrefix = "ORD"

// Config holds every setting of the indexing process. Values come from an
// optional YAML file overridden by ORD_-prefixed environment variables.
type Config struct {
	DataDir   string `yaml:"dataDir"   envconfig:"DATA_DIR"`
	IndexPath string `yaml:"indexPath" envconfig:"INDEX_PATH"`
	Network   string `yaml:"network"   envconfig:"NETWORK"`

	Logging LoggingConfig `yaml:"logging"`
	Bitcoin BitcoinConfig `yaml:"bitcoin"`
	Index   IndexConfig   `yaml:"index"`

	// resolved from Network after loading.
	Chain ord.Chain `yaml:"-"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	Level string `yaml:"level" envconfig:"LOGGING_LEVEL"`
}

// BitcoinConfig holds settings of the upstream bitcoin full node.
type BitcoinConfig struct {
	RPCURL      string `yaml:"rpcUrl"      envconfig:"BITCOIN_RPC_URL"`
	RPCUsername string `yaml:"rpcUsername" envconfig:"BITCOIN_RPC_USERNAME"`
	RPCPassword string `yaml:"rpcPassword" envconfig:"BITCOIN_RPC_PASSWORD"`
	CookieFile  string `yaml:"cookieFile"  envconfig:"BITCOIN_RPC_COOKIE_FILE"`
	RPCLimit    int    `yaml:"rpcLimit"    envconfig:"BITCOIN_RPC_LIMIT"`
}

// IndexConfig holds settings of the index pipeline.
type IndexConfig struct {
	Sats               bool     `yaml:"sats"               envconfig:"INDEX_SATS"`
	Runes              bool     `yaml:"runes"              envconfig:"INDEX_RUNES"`
	Transactions       bool     `yaml:"transactions"       envconfig:"INDEX_TRANSACTIONS"`
	Addresses          bool     `yaml:"addresses"          envconfig:"INDEX_ADDRESSES"`
	CommitInterval     uint32   `yaml:"commitInterval"     envconfig:"COMMIT_INTERVAL"`
	HeightLimit        uint32   `yaml:"heightLimit"        envconfig:"HEIGHT_LIMIT"`
	ReorgHorizon       uint32   `yaml:"reorgHorizon"       envconfig:"REORG_HORIZON"`
	HiddenInscriptions []string `yaml:"hiddenInscriptions" envconfig:"HIDDEN_INSCRIPTIONS"`
}

// Load reads the optional YAML file, applies environment overrides and
// resolves derived values.
func Load(configFile string) (*Config, error) {
	cfg := &Config{
		DataDir: ".ordindex",
		Network: "mainnet",
		Logging: LoggingConfig{Level: "info"},
		Bitcoin: BitcoinConfig{
			RPCURL:   "127.0.0.1:8332",
			RPCLimit: 12,
		},
		Index: IndexConfig{
			Runes:          true,
			CommitInterval: 1,
			ReorgHorizon:   6,
		},
	}

	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err = yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	// the nested sections carry full variable names in their tags, so each is
	// also read against the bare prefix.
	for _, section := range []any{cfg, &cfg.Logging, &cfg.Bitcoin, &cfg.Index} {
		if err := envconfig.Process(envPrefix, section); err != nil {
			return nil, fmt.Errorf("error processing environment: %w", err)
		}
	}

	chain, err := ord.NewChain(cfg.Network)
	if err != nil {
		return nil, err
	}
	cfg.Chain = chain

	if cfg.IndexPath == "" {
		cfg.IndexPath = filepath.Join(cfg.DataDir, "index")
	}

	if cfg.Index.CommitInterval == 0 {
		cfg.Index.CommitInterval = 1
	}
	if cfg.Bitcoin.RPCLimit <= 0 {
		cfg.Bitcoin.RPCLimit = 1
	}

	return cfg, nil
}

// Credentials resolves RPC credentials from the configured user/password pair
// or a bitcoind cookie file.
func (cfg *BitcoinConfig) Credentials() (user string, pass string, err error) {
	if cfg.RPCUsername != "" {
		return cfg.RPCUsername, cfg.RPCPassword, nil
	}

	if cfg.CookieFile == "" {
		return "", "", fmt.Errorf("neither rpc credentials nor cookie file configured")
	}

	cookie, err := os.ReadFile(cfg.CookieFile)
	if err != nil {
		return "", "", fmt.Errorf("error reading cookie file: %w", err)
	}

	for i, b := range cookie {
		if b == ':' {
			return string(cookie[:i]), string(cookie[i+1:]), nil
		}
	}

	return "", "", fmt.Errorf("malformed cookie file %s", cfg.CookieFile)
}
