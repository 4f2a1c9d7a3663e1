package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	c, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, "badger", c.Database.Driver)
	assert.True(t, c.Database.InMemory)
	assert.Equal(t, 15*time.Minute, c.Leases.TTL)
	assert.Equal(t, 8192, c.Leases.MaxGames)
	assert.Equal(t, "logistic", c.SPRT.Model)
}

func TestParseOverrides(t *testing.T) {
	c, err := Parse([]byte(`
database:
  driver: postgres
  host: db.internal
  user: sprt
  dbname: sprt
web_server:
  address: ":7000"
leases:
  ttl: 20m
  poll_rate: 0.5
sprt:
  model: normalized
log:
  format: json
`))
	require.NoError(t, err)
	assert.Equal(t, "db.internal", c.Database.Host)
	assert.Equal(t, ":7000", c.WebServer.Address)
	assert.Equal(t, ":8080", c.Admin.Address)
	assert.Equal(t, 20*time.Minute, c.Leases.TTL)
	assert.Equal(t, 0.5, c.Leases.PollRate)
	assert.Equal(t, 30*time.Second, c.Leases.SweepInterval)
	assert.Equal(t, "normalized", c.SPRT.Model)
	assert.Equal(t, "json", c.Log.Format)
}

func TestParseRejectsInvalid(t *testing.T) {
	tests := map[string]string{
		"unknown driver":      "database:\n  driver: mysql\n",
		"postgres needs host": "database:\n  driver: postgres\n  dbname: sprt\n",
		"badger needs path":   "database:\n  in_memory: false\n",
		"bad confidence":      "sprt:\n  confidence: 1.5\n",
		"bad model":           "sprt:\n  model: bayes\n",
		"huge lease":          "leases:\n  max_games: 4000000000\n",
		"not yaml":            "database: [",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(content))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serverconfig.yaml")
	require.NoError(t, os.WriteFile(path, []byte("admin:\n  address: \":9999\"\n"), 0o600))
	require.NoError(t, LoadConfig(path))
	assert.Equal(t, ":9999", Config.Admin.Address)

	assert.Error(t, LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")))
}
