package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sccert.dev/node/consensus"
	"sccert.dev/node/node"
	"sccert.dev/node/zendoo"
)

type rootOptions struct {
	configPath string
	cfg        node.Config
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &rootOptions{cfg: node.DefaultConfig()}
	root := &cobra.Command{
		Use:           "sccert",
		Short:         "Sidechain certificate validation and ledger tool",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.resolve(cmd)
		},
	}
	root.SetOut(out)

	defaults := node.DefaultConfig()
	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "JSON config file")
	pf.StringVar(&opts.cfg.Network, "network", defaults.Network, "network name")
	pf.StringVar(&opts.cfg.DataDir, "datadir", defaults.DataDir, "data directory")
	pf.StringVar(&opts.cfg.LogLevel, "log-level", defaults.LogLevel, "log level: debug|info|warn|error")
	pf.StringVar(&opts.cfg.LogFile, "log-file", "", "log file (rotated); stderr when empty")
	pf.StringVar(&opts.cfg.VerificationKeyPath, "vk", "", "verification key file")
	pf.StringVar(&opts.cfg.MetricsAddr, "metrics-addr", "", "serve prometheus metrics on host:port")

	root.AddCommand(
		newKeygenCmd(),
		newProveCmd(),
		newVerifyCmd(opts),
		newApplyCmd(opts),
		newRevertCmd(opts),
		newShowCmd(opts),
		newServeCmd(opts),
	)
	return root
}

// resolve loads the config file, if any, and lets explicitly set flags win.
func (o *rootOptions) resolve(cmd *cobra.Command) error {
	if o.configPath != "" {
		fileCfg, err := node.LoadConfig(o.configPath)
		if err != nil {
			return err
		}
		flags := cmd.Flags()
		override := func(name string, dst *string, v string) {
			if flags.Changed(name) {
				*dst = v
			}
		}
		override("network", &fileCfg.Network, o.cfg.Network)
		override("datadir", &fileCfg.DataDir, o.cfg.DataDir)
		override("log-level", &fileCfg.LogLevel, o.cfg.LogLevel)
		override("log-file", &fileCfg.LogFile, o.cfg.LogFile)
		override("vk", &fileCfg.VerificationKeyPath, o.cfg.VerificationKeyPath)
		override("metrics-addr", &fileCfg.MetricsAddr, o.cfg.MetricsAddr)
		o.cfg = fileCfg
	}
	o.cfg.LogLevel = strings.ToLower(strings.TrimSpace(o.cfg.LogLevel))
	if err := node.ValidateConfig(o.cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// verifier builds the configured oracle: Groth16 behind a result cache.
// The returned close func releases the cache.
func (o *rootOptions) verifier(ctx context.Context) (consensus.ProofVerifier, func(), error) {
	cv, err := zendoo.NewCachingVerifier(ctx, zendoo.NewGroth16Verifier(), zendoo.CacheConfig{
		TTL:       o.cfg.ProofCacheTTL(),
		MaxSizeMB: o.cfg.ProofCacheMB,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("proof cache: %w", err)
	}
	return cv, func() { _ = cv.Close() }, nil
}

func (o *rootOptions) verificationKey() (consensus.ScVerificationKey, error) {
	if o.cfg.VerificationKeyPath == "" {
		return nil, fmt.Errorf("verification key required (--vk or verification_key_path)")
	}
	return zendoo.LoadVerificationKey(o.cfg.VerificationKeyPath)
}

func (o *rootOptions) logger() (*zap.Logger, error) {
	return node.NewLoggerFromConfig(o.cfg)
}
