package session

import (
	"errors"
	"fmt"
	"time"
)

const (
	DefRoundTimeout    = 2 * time.Minute
	DefMaxRoundRetries = 2
	DefMalformedLimit  = 3

	maxNumRounds    = 10000
	maxMinClients   = 10000
	maxRoundTimeout = 24 * time.Hour
)

var (
	ErrInvalidNumRounds    = errors.New("num_rounds must be between 1 and 10000")
	ErrInvalidMinClients   = errors.New("min_clients must be between 1 and 10000")
	ErrInvalidRoundTimeout = errors.New("round_timeout must be between 1s and 24h")
	ErrInvalidRetries      = errors.New("max_round_retries must not be negative")
	ErrInvalidSchema       = errors.New("model_schema must be a positive weight count")
	ErrInvalidPlateau      = errors.New("plateau_delta must be positive when plateau_patience is set")
)

// Config holds every recognized coordination option. Validate rejects
// out-of-range values at construction time, before a session exists.
type Config struct {
	Cluster         string        `json:"cluster"`
	NumRounds       int           `json:"num_rounds"`
	MinClients      int           `json:"min_clients"`
	RoundTimeout    time.Duration `json:"round_timeout"`
	MaxRoundRetries int           `json:"max_round_retries"`

	// ModelSchema is the expected weight-delta length. Updates whose delta
	// length differs are malformed.
	ModelSchema int `json:"model_schema"`

	// MalformedLimit is the number of malformed submissions after which a
	// node is excluded from the remainder of the session.
	MalformedLimit int `json:"malformed_limit,omitempty"`

	// Optional early stopping: the session succeeds early once the
	// aggregated metric has improved by less than PlateauDelta for
	// PlateauPatience consecutive closed rounds. Zero patience disables it.
	PlateauDelta    float64 `json:"plateau_delta,omitempty"`
	PlateauPatience int     `json:"plateau_patience,omitempty"`
}

func (c *Config) Validate() error {
	if c.Cluster == "" {
		return errors.New("cluster is required")
	}
	if c.NumRounds < 1 || c.NumRounds > maxNumRounds {
		return ErrInvalidNumRounds
	}
	if c.MinClients < 1 || c.MinClients > maxMinClients {
		return ErrInvalidMinClients
	}
	if c.RoundTimeout == 0 {
		c.RoundTimeout = DefRoundTimeout
	}
	if c.RoundTimeout < time.Second || c.RoundTimeout > maxRoundTimeout {
		return ErrInvalidRoundTimeout
	}
	if c.MaxRoundRetries < 0 {
		return ErrInvalidRetries
	}
	if c.ModelSchema < 1 {
		return ErrInvalidSchema
	}
	if c.MalformedLimit == 0 {
		c.MalformedLimit = DefMalformedLimit
	}
	if c.MalformedLimit < 0 {
		return errors.New("malformed_limit must not be negative")
	}
	if c.PlateauPatience < 0 {
		return fmt.Errorf("plateau_patience must not be negative")
	}
	if c.PlateauPatience > 0 && c.PlateauDelta <= 0 {
		return ErrInvalidPlateau
	}

	return nil
}
