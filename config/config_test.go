package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 100000.0, cfg.Account.Value)
	assert.Equal(t, 0.25, cfg.Risk.KellyFraction)
	assert.Equal(t, 0.85, cfg.Execution.HaltUncertainty)
	assert.Equal(t, 50, cfg.Canary.Disabled.MinTrades)
	assert.Equal(t, "beta", cfg.Router.Posterior)
	assert.Equal(t, "sqlite", cfg.Journal.Type)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "quant.yaml")
	doc := `
account:
  value: 250000
risk:
  kelly_fraction: 0.5
router:
  posterior: normal
journal:
  type: csv
  dir: out
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 250000.0, cfg.Account.Value)
	assert.Equal(t, 0.5, cfg.Risk.KellyFraction)
	assert.Equal(t, "normal", cfg.Router.Posterior)
	assert.Equal(t, "csv", cfg.Journal.Type)
	assert.Equal(t, "debug", cfg.Log.Level)

	// Untouched sections keep their defaults.
	assert.Equal(t, 0.03, cfg.Risk.DailyLossLimit)
	assert.Equal(t, 20.0, cfg.Execution.HaltVolatility)
	assert.Equal(t, 0.55, cfg.Canary.Canary.MinWinRate)
}

func TestLoadFromFile_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  string
	}{
		{"bad posterior", "router:\n  posterior: epsilon-greedy\n"},
		{"kelly above one", "risk:\n  kelly_fraction: 1.5\n"},
		{"bad journal type", "journal:\n  type: kafka\n"},
		{"bad log level", "log:\n  level: shouty\n"},
		{"not yaml", "{{{{"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(t.TempDir(), "quant.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.doc), 0o644))

			_, err := LoadFromFile(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadFromFile_Missing(t *testing.T) {
	t.Parallel()

	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestSaveToFile_RoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "quant.yaml")
	want := Default()
	want.Account.Value = 42000

	require.NoError(t, want.SaveToFile(path))

	got, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
