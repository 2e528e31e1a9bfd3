package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, int64(10<<20), cfg.Import.MaxBytes)
	assert.Equal(t, "PYG", cfg.Currency)
}

func TestLoad_OverridesOnlyGivenKeys(t *testing.T) {
	// GIVEN: A file setting the port, a postgres database and JSON logs
	path := filepath.Join(t.TempDir(), "spending-tracker.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
database:
  driver: postgres
  dsn: postgres://localhost/spending?sslmode=disable
log:
  format: json
`), 0o644))

	// WHEN: Loaded
	cfg, err := Load(path)
	require.NoError(t, err)

	// THEN: Given keys are read and the rest keep their defaults
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, Default().CORS.AllowedOrigins, cfg.CORS.AllowedOrigins)
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad port", "server:\n  port: 0\n"},
		{"unknown driver", "database:\n  driver: mysql\n"},
		{"empty dsn", "database:\n  dsn: \"\"\n"},
		{"unknown log format", "log:\n  format: xml\n"},
		{"negative upload limit", "import:\n  max_bytes: -1\n"},
		{"not yaml", "server: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "c.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	cfg := Default()
	cfg.Server.Port = 7000
	cfg.CORS.AllowedOrigins = []string{"https://example.com"}

	require.NoError(t, Save(path, cfg))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
