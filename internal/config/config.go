// Package config loads runtime configuration from the environment and the
// approval chain definition from YAML, so the chain is data rather than code.
package config

import (
	"fmt"
	"os"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/oddo-hq/expenseflow/internal/app/domain/user"
	"github.com/oddo-hq/expenseflow/internal/app/policy"
)

// Config holds the server's environment-driven settings. An empty
// DatabaseURL selects the in-memory store.
type Config struct {
	ListenAddr      string `env:"LISTEN_ADDR,default=:8080"`
	DatabaseURL     string `env:"DATABASE_URL"`
	MigrationsDir   string `env:"MIGRATIONS_DIR,default=migrations"`
	ExchangeRateURL string `env:"EXCHANGE_RATE_URL"`
	ExchangeRateKey string `env:"EXCHANGE_RATE_KEY"`
	ChainPath       string `env:"CHAIN_CONFIG,default=config/chain.yaml"`
}

// Load reads a .env file when present, then decodes the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}
	return cfg, nil
}

type chainFile struct {
	Levels []string `yaml:"levels"`
}

// LoadChain parses an approval chain definition of the form:
//
//	levels:
//	  - MANAGER
//	  - CFO
func LoadChain(path string) (policy.Chain, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return policy.Chain{}, fmt.Errorf("read chain config: %w", err)
	}

	var file chainFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return policy.Chain{}, fmt.Errorf("parse chain config: %w", err)
	}

	levels := make([]user.Role, 0, len(file.Levels))
	for _, raw := range file.Levels {
		role, err := user.ParseRole(raw)
		if err != nil {
			return policy.Chain{}, fmt.Errorf("chain config: %w", err)
		}
		levels = append(levels, role)
	}
	return policy.NewChain(levels)
}

// LoadChainOrDefault falls back to the built-in manager→CFO chain when the
// file is absent.
func LoadChainOrDefault(path string) policy.Chain {
	chain, err := LoadChain(path)
	if err != nil {
		return policy.Default()
	}
	return chain
}
