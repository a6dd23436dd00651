package node

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestValidateConfigOK(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MetricsAddr = "127.0.0.1:9464"
	require.NoError(t, ValidateConfig(cfg))
}

func TestValidateConfigRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"empty_network":    func(c *Config) { c.Network = " " },
		"network_path":     func(c *Config) { c.Network = "../x" },
		"empty_data_dir":   func(c *Config) { c.DataDir = "" },
		"bad_log_level":    func(c *Config) { c.LogLevel = "trace" },
		"negative_cache":   func(c *Config) { c.ProofCacheMB = -1 },
		"negative_ttl":     func(c *Config) { c.ProofCacheTTLSec = -1 },
		"bad_metrics_addr": func(c *Config) { c.MetricsAddr = "127.0.0.1" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			require.Error(t, ValidateConfig(cfg))
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sccert.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
  "network": "testnet",
  "data_dir": "/var/lib/sccert",
  "log_level": "debug",
  "proof_cache_ttl_sec": 30
}`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "testnet", cfg.Network)
	require.Equal(t, "/var/lib/sccert", cfg.DataDir)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, 64, cfg.ProofCacheMB, "unset fields keep defaults")
	require.Equal(t, 30*time.Second, cfg.ProofCacheTTL())
}

func TestLoadConfigRejectsUnknownAndInvalid(t *testing.T) {
	dir := t.TempDir()
	unknown := filepath.Join(dir, "unknown.json")
	require.NoError(t, os.WriteFile(unknown, []byte(`{"netwrok":"x"}`), 0o600))
	_, err := LoadConfig(unknown)
	require.Error(t, err)

	invalid := filepath.Join(dir, "invalid.json")
	require.NoError(t, os.WriteFile(invalid, []byte(`{"log_level":"loud"}`), 0o600))
	_, err = LoadConfig(invalid)
	require.Error(t, err)

	_, err = LoadConfig(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
}

func TestNewLoggerWritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "sccert.log")
	log, err := NewLogger("info", path)
	require.NoError(t, err)
	log.Info("hello")
	_ = log.Sync()

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(b), `"msg":"hello"`)

	_, err = NewLogger("loud", "")
	require.Error(t, err)
}

func TestReadOperatorFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))

	b, err := ReadOperatorFile(path)
	require.NoError(t, err)
	require.Equal(t, "{}", string(b))

	_, err = ReadOperatorFile("")
	require.Error(t, err)
	_, err = ReadOperatorFile(dir)
	require.ErrorContains(t, err, "not a regular file")
	_, err = ReadOperatorFile(filepath.Join(dir, "missing"))
	require.Error(t, err)

	big := filepath.Join(dir, "big.json")
	require.NoError(t, os.WriteFile(big, make([]byte, maxOperatorFile+1), 0o600))
	_, err = ReadOperatorFile(big)
	require.ErrorContains(t, err, "exceeds")
}
