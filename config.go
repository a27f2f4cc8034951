package fedloop

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml"
)

type Config struct {
	Coordinator CoordinatorConfig `toml:"coordinator"`
	Session     SessionConfig     `toml:"session"`
	Drift       DriftConfig       `toml:"drift"`
}

type CoordinatorConfig struct {
	URL         string `toml:"url"`
	RegistryURL string `toml:"registry_url"`
	Cluster     string `toml:"cluster"`
}

type SessionConfig struct {
	NumRounds       int    `toml:"num_rounds"`
	MinClients      int    `toml:"min_clients"`
	RoundTimeout    string `toml:"round_timeout"`
	MaxRoundRetries int    `toml:"max_round_retries"`
	ModelSchema     int    `toml:"model_schema"`
}

type DriftConfig struct {
	Statistic  string  `toml:"statistic"`
	Reduction  string  `toml:"reduction"`
	Threshold  float64 `toml:"threshold"`
	MinSamples int     `toml:"min_samples"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	tree, err := toml.Load(string(data))
	if err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	var cfg Config
	if err := tree.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &cfg, nil
}
