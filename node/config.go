package node

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Config struct {
	Network             string `json:"network"`
	DataDir             string `json:"data_dir"`
	LogLevel            string `json:"log_level"`
	LogFile             string `json:"log_file"`
	VerificationKeyPath string `json:"verification_key_path"`
	ProofCacheMB        int    `json:"proof_cache_mb"`
	ProofCacheTTLSec    int    `json:"proof_cache_ttl_sec"`
	MetricsAddr         string `json:"metrics_addr"`
}

var allowedLogLevels = map[string]struct{}{
	"debug": {},
	"info":  {},
	"warn":  {},
	"error": {},
}

func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".sccert"
	}
	return filepath.Join(home, ".sccert")
}

func DefaultConfig() Config {
	return Config{
		Network:          "regtest",
		DataDir:          DefaultDataDir(),
		LogLevel:         "info",
		ProofCacheMB:     64,
		ProofCacheTTLSec: 600,
	}
}

// LoadConfig reads a JSON config file over DefaultConfig. Unknown fields are
// rejected so typos do not silently fall back to defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	raw, err := ReadOperatorFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := ValidateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.Network) == "" {
		return errors.New("network is required")
	}
	if strings.ContainsAny(cfg.Network, `/\`) || cfg.Network == "." || cfg.Network == ".." {
		return fmt.Errorf("invalid network %q", cfg.Network)
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return errors.New("data_dir is required")
	}
	logLevel := strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if _, ok := allowedLogLevels[logLevel]; !ok {
		return fmt.Errorf("invalid log_level %q", cfg.LogLevel)
	}
	if cfg.ProofCacheMB < 0 {
		return errors.New("proof_cache_mb must be >= 0")
	}
	if cfg.ProofCacheTTLSec < 0 {
		return errors.New("proof_cache_ttl_sec must be >= 0")
	}
	if cfg.MetricsAddr != "" {
		if err := validateAddr(cfg.MetricsAddr); err != nil {
			return fmt.Errorf("invalid metrics_addr: %w", err)
		}
	}
	return nil
}

// ProofCacheTTL is zero when caching falls back to its default lifetime.
func (c Config) ProofCacheTTL() time.Duration {
	return time.Duration(c.ProofCacheTTLSec) * time.Second
}

func validateAddr(addr string) error {
	if strings.TrimSpace(addr) == "" {
		return errors.New("empty address")
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if strings.TrimSpace(port) == "" {
		return errors.New("missing port")
	}
	if strings.Contains(host, " ") {
		return errors.New("invalid host")
	}
	return nil
}

// maxOperatorFile bounds config, certificate and proof input files.
const maxOperatorFile = 4 << 20

// ReadOperatorFile reads an operator supplied file such as the config or a
// certificate. It is opened through an fs.FS rooted at its own directory
// and must be a regular file of at most maxOperatorFile bytes.
func ReadOperatorFile(path string) ([]byte, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("file path is required")
	}
	dir, name := filepath.Split(filepath.Clean(path))
	if dir == "" {
		dir = "."
	}
	f, err := os.DirFS(dir).Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if !st.Mode().IsRegular() {
		return nil, fmt.Errorf("%s: not a regular file", path)
	}
	if st.Size() > maxOperatorFile {
		return nil, fmt.Errorf("%s: %d bytes exceeds %d", path, st.Size(), maxOperatorFile)
	}
	b, err := io.ReadAll(io.LimitReader(f, maxOperatorFile+1))
	if err != nil {
		return nil, err
	}
	if len(b) > maxOperatorFile {
		return nil, fmt.Errorf("%s: grew past %d bytes", path, maxOperatorFile)
	}
	return b, nil
}
