package session_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedloop/fedloop/session"
)

func TestConfigValidateDefaults(t *testing.T) {
	t.Parallel()

	cfg := session.Config{
		Cluster:     "edge-eu-1",
		NumRounds:   10,
		MinClients:  3,
		ModelSchema: 1024,
	}

	require.NoError(t, cfg.Validate())
	assert.Equal(t, session.DefRoundTimeout, cfg.RoundTimeout)
	assert.Equal(t, session.DefMalformedLimit, cfg.MalformedLimit)
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()

	valid := session.Config{
		Cluster:     "edge-eu-1",
		NumRounds:   10,
		MinClients:  3,
		ModelSchema: 1024,
	}

	tests := []struct {
		name   string
		mutate func(*session.Config)
		err    error
	}{
		{
			name:   "zero rounds",
			mutate: func(c *session.Config) { c.NumRounds = 0 },
			err:    session.ErrInvalidNumRounds,
		},
		{
			name:   "too many rounds",
			mutate: func(c *session.Config) { c.NumRounds = 10001 },
			err:    session.ErrInvalidNumRounds,
		},
		{
			name:   "zero min clients",
			mutate: func(c *session.Config) { c.MinClients = 0 },
			err:    session.ErrInvalidMinClients,
		},
		{
			name:   "timeout too short",
			mutate: func(c *session.Config) { c.RoundTimeout = 500 * time.Millisecond },
			err:    session.ErrInvalidRoundTimeout,
		},
		{
			name:   "timeout too long",
			mutate: func(c *session.Config) { c.RoundTimeout = 25 * time.Hour },
			err:    session.ErrInvalidRoundTimeout,
		},
		{
			name:   "negative retries",
			mutate: func(c *session.Config) { c.MaxRoundRetries = -1 },
			err:    session.ErrInvalidRetries,
		},
		{
			name:   "zero schema",
			mutate: func(c *session.Config) { c.ModelSchema = 0 },
			err:    session.ErrInvalidSchema,
		},
		{
			name:   "plateau patience without delta",
			mutate: func(c *session.Config) { c.PlateauPatience = 3 },
			err:    session.ErrInvalidPlateau,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := valid
			tc.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), tc.err)
		})
	}
}

func TestStateTransitionsTerminal(t *testing.T) {
	t.Parallel()

	assert.False(t, session.Pending.Terminal())
	assert.False(t, session.Running.Terminal())
	assert.True(t, session.Succeeded.Terminal())
	assert.True(t, session.Failed.Terminal())
	assert.True(t, session.Aborted.Terminal())
}
