package main

import (
	"bufio"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sccert.dev/node/consensus"
	"sccert.dev/node/node"
	"sccert.dev/node/node/store"
	"sccert.dev/node/zendoo"
)

const (
	provingKeyFile      = "proving.key"
	verificationKeyFile = "verification.key"
)

func newKeygenCmd() *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Run a development trusted setup and write the proving and verification keys",
		RunE: func(cmd *cobra.Command, _ []string) error {
			prover, vk, err := zendoo.Setup()
			if err != nil {
				return err
			}
			if err := os.MkdirAll(outDir, 0o750); err != nil {
				return err
			}
			f, err := os.OpenFile(filepath.Join(outDir, provingKeyFile), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
			if err != nil {
				return err
			}
			if err := prover.WriteProvingKey(f); err != nil {
				_ = f.Close()
				return fmt.Errorf("write proving key: %w", err)
			}
			if err := f.Close(); err != nil {
				return err
			}
			if err := os.WriteFile(filepath.Join(outDir, verificationKeyFile), vk, 0o600); err != nil {
				return fmt.Errorf("write verification key: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %s and %s to %s\n", provingKeyFile, verificationKeyFile, outDir)
			return nil
		},
	}
	cmd.Flags().StringVar(&outDir, "out", ".", "output directory")
	return cmd
}

func newProveCmd() *cobra.Command {
	var certPath, epochPath, pkPath, stateRootHex, outPath string
	cmd := &cobra.Command{
		Use:   "prove",
		Short: "Produce a proof input for a certificate from an epoch file and a state root",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cert, err := loadCertificate(certPath)
			if err != nil {
				return err
			}
			in, err := loadProofInput(epochPath)
			if err != nil {
				return err
			}
			rootBytes, err := hexDecodeStrict(stateRootHex)
			if err != nil {
				return fmt.Errorf("state root: %w", err)
			}
			stateRoot, err := zendoo.DeserializeField(rootBytes)
			if err != nil {
				return fmt.Errorf("state root: %w", err)
			}
			f, err := os.Open(pkPath) // #nosec G304 -- operator-supplied key path.
			if err != nil {
				return err
			}
			prover, err := zendoo.LoadProver(bufio.NewReader(f))
			_ = f.Close()
			if err != nil {
				return err
			}

			st, err := zendoo.StatementFor(cert, in)
			if err != nil {
				return err
			}
			if in.ProofData, err = zendoo.ProofDataFor(st, stateRoot); err != nil {
				return err
			}
			st.ProofData = in.ProofData
			if in.Proof, err = prover.Prove(st, stateRoot); err != nil {
				return err
			}
			if err := writeJSONFile(outPath, proofInputFrom(in)); err != nil {
				return err
			}
			h := cert.Hash()
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "proved %x -> %s\n", h, outPath)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&certPath, "cert", "", "certificate JSON file")
	f.StringVar(&epochPath, "epoch", "", "epoch JSON file (proof input without proof)")
	f.StringVar(&pkPath, "proving-key", provingKeyFile, "proving key file")
	f.StringVar(&stateRootHex, "state-root", "", "sidechain state root, 32-byte canonical field element in hex")
	f.StringVar(&outPath, "out", "input.json", "output proof input file")
	_ = cmd.MarkFlagRequired("cert")
	_ = cmd.MarkFlagRequired("epoch")
	_ = cmd.MarkFlagRequired("state-root")
	return cmd
}

// submissions pairs --cert and --input flags in order.
func submissions(certPaths, inputPaths []string, vk consensus.ScVerificationKey) ([]zendoo.BatchItem, error) {
	if len(certPaths) == 0 {
		return nil, fmt.Errorf("at least one --cert required")
	}
	if len(certPaths) != len(inputPaths) {
		return nil, fmt.Errorf("%d --cert but %d --input", len(certPaths), len(inputPaths))
	}
	items := make([]zendoo.BatchItem, len(certPaths))
	for i := range certPaths {
		cert, err := loadCertificate(certPaths[i])
		if err != nil {
			return nil, err
		}
		in, err := loadProofInput(inputPaths[i])
		if err != nil {
			return nil, err
		}
		in.VerificationKey = vk
		items[i] = zendoo.BatchItem{Cert: cert, Input: in}
	}
	return items, nil
}

func newVerifyCmd(opts *rootOptions) *cobra.Command {
	var certPaths, inputPaths []string
	var parallel int
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check certificate proofs without touching the ledger",
		RunE: func(cmd *cobra.Command, _ []string) error {
			vk, err := opts.verificationKey()
			if err != nil {
				return err
			}
			items, err := submissions(certPaths, inputPaths, vk)
			if err != nil {
				return err
			}
			v, closeFn, err := opts.verifier(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			results, err := zendoo.VerifyBatch(cmd.Context(), v, items, parallel)
			if err != nil {
				return err
			}
			failed := 0
			for i, res := range results {
				h := items[i].Cert.Hash()
				if res != nil {
					failed++
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "rejected %x: %v\n", h, res)
					continue
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "accepted %x\n", h)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d certificates rejected", failed, len(results))
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringArrayVar(&certPaths, "cert", nil, "certificate JSON file (repeatable)")
	f.StringArrayVar(&inputPaths, "input", nil, "proof input JSON file, paired with --cert (repeatable)")
	f.IntVar(&parallel, "parallel", 0, "maximum concurrent checks (0: unbounded)")
	return cmd
}

// walletListener logs the backward transfers a wallet would pick up.
type walletListener struct {
	log *zap.Logger
}

func (w walletListener) CertificateConnected(cert *consensus.Certificate, blockHash [32]byte, height uint64) {
	for i, bt := range cert.BackwardTransfers() {
		w.log.Info("backward transfer connected",
			zap.String("block", hex.EncodeToString(blockHash[:])),
			zap.Uint64("height", height),
			zap.Int("index", i),
			zap.String("pubkey_hash", hex.EncodeToString(bt.PubKeyHash[:])),
			zap.Stringer("value", bt.Value))
	}
}

func (w walletListener) CertificateDisconnected(cert *consensus.Certificate, blockHash [32]byte) {
	h := cert.Hash()
	w.log.Info("certificate disconnected",
		zap.String("block", hex.EncodeToString(blockHash[:])),
		zap.String("cert", hex.EncodeToString(h[:])))
}

type session struct {
	db       *store.DB
	proc     *node.Processor
	log      *zap.Logger
	registry *prometheus.Registry
	closeFn  func()
}

func (s *session) Close() {
	s.closeFn()
	_ = s.db.Close()
	_ = s.log.Sync()
}

func (o *rootOptions) openSession(ctx context.Context) (*session, error) {
	log, err := o.logger()
	if err != nil {
		return nil, err
	}
	db, err := store.Open(o.cfg.DataDir, o.cfg.Network)
	if err != nil {
		return nil, err
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	metrics, err := node.NewMetrics(reg)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	v, closeFn, err := o.verifier(ctx)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	proc, err := node.NewProcessor(db, v, log, metrics)
	if err != nil {
		closeFn()
		_ = db.Close()
		return nil, err
	}
	proc.Subscribe(walletListener{log: log.With(zap.String("module", "wallet"))})
	return &session{db: db, proc: proc, log: log, registry: reg, closeFn: closeFn}, nil
}

// nextBlock returns an empty template extending the current tip.
func nextBlock(proc *node.Processor) (*node.BlockTemplate, error) {
	tip, ok, err := proc.Tip()
	if err != nil {
		return nil, err
	}
	if !ok {
		return node.NewBlockTemplate([32]byte{}, 0), nil
	}
	return node.NewBlockTemplate(tip.Hash, tip.Height+1), nil
}

func newApplyCmd(opts *rootOptions) *cobra.Command {
	var certPaths, inputPaths []string
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Verify certificates and connect them to the ledger as one block",
		RunE: func(cmd *cobra.Command, _ []string) error {
			vk, err := opts.verificationKey()
			if err != nil {
				return err
			}
			items, err := submissions(certPaths, inputPaths, vk)
			if err != nil {
				return err
			}
			s, err := opts.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			tmpl, err := nextBlock(s.proc)
			if err != nil {
				return err
			}
			inputs := make([]consensus.CertificateProofInput, len(items))
			for i, it := range items {
				if err := tmpl.AddCertificateWithFee(it.Cert); err != nil {
					return fmt.Errorf("certificate %d: %w", i, err)
				}
				inputs[i] = it.Input
			}
			blk := &tmpl.Block
			hash, err := s.proc.ConnectBlock(cmd.Context(), blk, inputs)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "connected block %x at height %d with %d certificates\n", hash, blk.Height, len(items))
			return nil
		},
	}
	f := cmd.Flags()
	f.StringArrayVar(&certPaths, "cert", nil, "certificate JSON file (repeatable)")
	f.StringArrayVar(&inputPaths, "input", nil, "proof input JSON file, paired with --cert (repeatable)")
	return cmd
}

func newRevertCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "revert",
		Short: "Disconnect the most recent block and restore the ledger before it",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := opts.openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()
			blk, err := s.proc.DisconnectTip()
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "disconnected block %x at height %d (%d certificates)\n",
				blk.Hash, blk.Height, len(blk.CertHashes))
			return nil
		},
	}
}

func newShowCmd(opts *rootOptions) *cobra.Command {
	var certPath, coinsHex, storedHex string
	var tip bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print a certificate file, a stored certificate, a coins entry or the tip",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if certPath != "" {
				cert, err := loadCertificate(certPath)
				if err != nil {
					return err
				}
				return printCertificate(cmd, cert)
			}
			if coinsHex == "" && storedHex == "" && !tip {
				return fmt.Errorf("one of --cert, --coins, --stored or --tip required")
			}
			db, err := store.Open(opts.cfg.DataDir, opts.cfg.Network)
			if err != nil {
				return err
			}
			defer db.Close()
			switch {
			case tip:
				t, ok, err := db.Tip()
				if err != nil {
					return err
				}
				if !ok {
					_, _ = fmt.Fprintln(out, "no blocks connected")
					return nil
				}
				_, _ = fmt.Fprintf(out, "tip %x height %d\n", t.Hash, t.Height)
			case coinsHex != "":
				id, err := parseHash(coinsHex)
				if err != nil {
					return err
				}
				c, ok, err := db.GetCoins(id)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("no coins for %x", id)
				}
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(c)
			default:
				h, err := parseHash(storedHex)
				if err != nil {
					return err
				}
				cert, ok, err := db.GetCertificate(h)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("no certificate %x", h)
				}
				return printCertificate(cmd, cert)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&certPath, "cert", "", "certificate JSON file")
	f.StringVar(&coinsHex, "coins", "", "coins id (certificate hash) in hex")
	f.StringVar(&storedHex, "stored", "", "stored certificate hash in hex")
	f.BoolVar(&tip, "tip", false, "print the connected tip")
	return cmd
}

func printCertificate(cmd *cobra.Command, cert *consensus.Certificate) error {
	out := cmd.OutOrStdout()
	h := cert.Hash()
	_, _ = fmt.Fprintln(out, cert.String())
	_, _ = fmt.Fprintf(out, "hash %x\n", h)
	_, _ = fmt.Fprintf(out, "size %d\n", cert.SerializeSize())
	fee, err := cert.FeeAmount()
	if err != nil {
		_, _ = fmt.Fprintf(out, "fee invalid: %v\n", err)
		return nil
	}
	_, _ = fmt.Fprintf(out, "fee %s\n", fee)
	return nil
}

type serveEntry struct {
	Certificate certificateJSON `json:"certificate"`
	Input       proofInputJSON  `json:"input"`
}

type serveRequest struct {
	Disconnect   bool         `json:"disconnect,omitempty"`
	Certificates []serveEntry `json:"certificates,omitempty"`
}

type serveResponse struct {
	Block  string `json:"block,omitempty"`
	Height uint64 `json:"height"`
	Error  string `json:"error,omitempty"`
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Read blocks as JSON lines on stdin, apply them and serve metrics",
		Long: `Each input line is either {"certificates":[{"certificate":{...},"input":{...}}, ...]},
which connects one block on top of the tip, or {"disconnect":true}. One JSON result
line is written per request.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			vk, err := opts.verificationKey()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			s, err := opts.openSession(ctx)
			if err != nil {
				return err
			}
			defer s.Close()

			if opts.cfg.MetricsAddr != "" {
				go func() {
					if err := node.ServeMetrics(ctx, opts.cfg.MetricsAddr, s.registry); err != nil {
						s.log.Error("metrics server", zap.Error(err))
					}
				}()
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			sc := bufio.NewScanner(cmd.InOrStdin())
			sc.Buffer(make([]byte, 0, 64*1024), 16<<20)
			for sc.Scan() {
				if len(sc.Bytes()) == 0 {
					continue
				}
				if err := enc.Encode(serveOne(ctx, s.proc, vk, sc.Bytes())); err != nil {
					return err
				}
			}
			return sc.Err()
		},
	}
}

func serveOne(ctx context.Context, proc *node.Processor, vk consensus.ScVerificationKey, line []byte) serveResponse {
	var req serveRequest
	if err := json.Unmarshal(line, &req); err != nil {
		return serveResponse{Error: err.Error()}
	}
	if req.Disconnect {
		blk, err := proc.DisconnectTip()
		if err != nil {
			return serveResponse{Error: err.Error()}
		}
		return serveResponse{Block: hex.EncodeToString(blk.Hash[:]), Height: blk.Height}
	}
	tmpl, err := nextBlock(proc)
	if err != nil {
		return serveResponse{Error: err.Error()}
	}
	blk := &tmpl.Block
	inputs := make([]consensus.CertificateProofInput, len(req.Certificates))
	for i, e := range req.Certificates {
		cert, err := e.Certificate.certificate()
		if err != nil {
			return serveResponse{Error: fmt.Sprintf("certificates[%d]: %v", i, err)}
		}
		in, err := e.Input.input()
		if err != nil {
			return serveResponse{Error: fmt.Sprintf("certificates[%d]: %v", i, err)}
		}
		in.VerificationKey = vk
		if err := tmpl.AddCertificateWithFee(cert); err != nil {
			return serveResponse{Height: blk.Height, Error: fmt.Sprintf("certificates[%d]: %v", i, err)}
		}
		inputs[i] = in
	}
	hash, err := proc.ConnectBlock(ctx, blk, inputs)
	if err != nil {
		return serveResponse{Height: blk.Height, Error: err.Error()}
	}
	return serveResponse{Block: hex.EncodeToString(hash[:]), Height: blk.Height}
}
