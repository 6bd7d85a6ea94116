package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const configYaml = `
port: 8000
catalogPath: /etc/docai/dags.yaml
logger:
  level: debug
  format: json
database:
  driver: sqlite
  sqlitePath: /data/dagruns.db
airflow:
  baseUrl: http://airflow:8080
  username: admin
  maxAttempts: 5
tracker:
  requireKnownDag: true
  listLimit: 20
  callbackBaseUrl: http://tracker:8000
  requestTimeout: 5s
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dagrund.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestParseConfigFromFile(t *testing.T) {
	t.Setenv(envJwtSecret, "jwt-secret")
	t.Setenv(envAirflowPassword, "af-secret")
	path := writeConfig(t, configYaml)

	cfg, err := ParseConfig([]string{"-config", path, "-port", "9000"})
	require.NoError(t, err)
	require.Equal(t, 9000, cfg.Port)
	require.Equal(t, "/etc/docai/dags.yaml", cfg.CatalogPath)
	require.Equal(t, "/data/dagruns.db", cfg.Database.SqlitePath)
	require.Equal(t, "admin", cfg.Airflow.Username)
	require.Equal(t, "af-secret", cfg.Airflow.Password)
	require.Equal(t, 5, cfg.Airflow.MaxAttempts)
	require.Equal(t, 10*time.Second, cfg.Airflow.Timeout)
	require.Equal(t, "jwt-secret", cfg.JwtSecret)

	tc := cfg.trackerConfig()
	require.True(t, tc.RequireKnownDag)
	require.Equal(t, 20, tc.ListLimit)
	require.Equal(t, 5*time.Second, tc.RequestTimeout)
	require.Equal(t, "http://tracker:8000", tc.CallbackBaseUrl)
}

func TestParseConfigDefaults(t *testing.T) {
	t.Setenv(envJwtSecret, "jwt-secret")
	cfg, err := ParseConfig(nil)
	require.NoError(t, err)
	require.Equal(t, 9321, cfg.Port)
	require.Equal(t, "sqlite", cfg.Database.Driver)
	require.Equal(t, "http://localhost:9321", cfg.trackerConfig().CallbackBaseUrl)
}

func TestParseConfigInvalid(t *testing.T) {
	t.Setenv(envJwtSecret, "")
	t.Setenv(envPostgresDsn, "")
	_, err := ParseConfig([]string{"-db", "postgres"})
	require.Error(t, err)
	require.Contains(t, err.Error(), envJwtSecret)
	require.Contains(t, err.Error(), envPostgresDsn)

	t.Setenv(envJwtSecret, "x")
	_, err = ParseConfig([]string{"-db", "mysql"})
	require.ErrorContains(t, err, "unsupported database driver")

	_, err = ParseConfig([]string{"-config", writeConfig(t, "port: [")})
	require.ErrorContains(t, err, "cannot parse config file")
}
