package node

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"sccert.dev/node/consensus"
	"sccert.dev/node/node/store"
)

// CertificateListener is told about certificates after their block is
// committed or disconnected. Wallets use it to track backward transfers.
type CertificateListener interface {
	CertificateConnected(cert *consensus.Certificate, blockHash [32]byte, height uint64)
	CertificateDisconnected(cert *consensus.Certificate, blockHash [32]byte)
}

// Processor gates certificates on their proofs and applies them to the
// persistent ledger. Ledger writes are serialized by mu; proof checks run
// before the lock is taken.
type Processor struct {
	mu       sync.RWMutex
	db       *store.DB
	verifier consensus.ProofVerifier
	log      *zap.Logger
	metrics  *Metrics

	checkLimit int

	lmu       sync.Mutex
	listeners []CertificateListener
}

func NewProcessor(db *store.DB, v consensus.ProofVerifier, log *zap.Logger, m *Metrics) (*Processor, error) {
	if db == nil {
		return nil, errors.New("processor: store required")
	}
	if v == nil {
		return nil, errors.New("processor: proof verifier required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Processor{
		db:         db,
		verifier:   v,
		log:        log.With(zap.String("module", ModuleCert)),
		metrics:    m,
		checkLimit: runtime.GOMAXPROCS(0),
	}, nil
}

// SetCheckConcurrency bounds the proof checks run in parallel for a block.
func (p *Processor) SetCheckConcurrency(n int) {
	if n > 0 {
		p.checkLimit = n
	}
}

func (p *Processor) Subscribe(l CertificateListener) {
	p.lmu.Lock()
	defer p.lmu.Unlock()
	p.listeners = append(p.listeners, l)
}

// Check runs the proof gate for a single certificate without touching the
// ledger.
func (p *Processor) Check(cert *consensus.Certificate, in consensus.CertificateProofInput) (*consensus.CertLifecycle, error) {
	lc := consensus.NewCertLifecycle(cert)
	return lc, p.check(lc, in)
}

func (p *Processor) check(lc *consensus.CertLifecycle, in consensus.CertificateProofInput) error {
	start := time.Now()
	err := lc.Check(p.verifier, in)
	elapsed := time.Since(start)
	var h [32]byte
	if lc.Cert != nil {
		h = lc.Cert.Hash()
	}
	switch {
	case err == nil:
		p.metrics.observeCheck(resultAccepted, elapsed)
		p.log.Debug("certificate accepted", hashField("cert", h), zap.Duration("elapsed", elapsed))
	case consensus.IsProofRejected(err):
		p.metrics.observeCheck(resultRejected, elapsed)
		p.log.Info("certificate proof rejected", hashField("cert", h), zap.Error(err))
	default:
		p.metrics.observeCheck(resultInvalid, elapsed)
		p.log.Info("certificate invalid", hashField("cert", h), zap.Error(err))
	}
	return err
}

// ConnectBlock checks every certificate of blk against inputs[i], then
// applies them in order and commits the block atomically. Certificates with
// a negative fee refuse the block before any proof is checked. Any failure
// leaves the ledger as it was.
func (p *Processor) ConnectBlock(ctx context.Context, blk *Block, inputs []consensus.CertificateProofInput) ([32]byte, error) {
	if blk == nil {
		return [32]byte{}, errors.New("connect: nil block")
	}
	if len(inputs) != len(blk.Certificates) {
		return [32]byte{}, fmt.Errorf("connect: %d certificates, %d proof inputs", len(blk.Certificates), len(inputs))
	}
	for i, c := range blk.Certificates {
		if _, err := CertificateFee(c); err != nil {
			p.log.Warn("block refused: certificate fails fee policy", zap.Int("index", i), zap.Error(err))
			return [32]byte{}, fmt.Errorf("certificate %d: %w", i, err)
		}
	}
	hash := blk.Hash()
	log := p.log.With(hashField("block", hash), zap.Uint64("height", blk.Height))

	lcs := make([]*consensus.CertLifecycle, len(blk.Certificates))
	results := make([]error, len(blk.Certificates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.checkLimit)
	for i, c := range blk.Certificates {
		lcs[i] = consensus.NewCertLifecycle(c)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = p.check(lcs[i], inputs[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return [32]byte{}, err
	}
	for i, err := range results {
		if err != nil {
			log.Warn("block refused: certificate failed proof gate", zap.Int("index", i), zap.Error(err))
			return [32]byte{}, fmt.Errorf("certificate %d: %w", i, err)
		}
	}

	p.mu.Lock()
	err := p.applyLocked(hash, blk, lcs, log)
	p.mu.Unlock()
	if err != nil {
		return [32]byte{}, err
	}

	p.metrics.addApplied(len(blk.Certificates))
	log.Info("block connected", zap.Int("certificates", len(blk.Certificates)))
	for _, l := range p.snapshotListeners() {
		for _, c := range blk.Certificates {
			l.CertificateConnected(c, hash, blk.Height)
		}
	}
	return hash, nil
}

func (p *Processor) applyLocked(hash [32]byte, blk *Block, lcs []*consensus.CertLifecycle, log *zap.Logger) error {
	view := consensus.NewCoinsViewCache(p.db)
	undo := &consensus.UndoRecord{}
	for i, lc := range lcs {
		if err := lc.Apply(view, undo, blk.Height); err != nil {
			if consensus.IsLedgerConflict(err) {
				p.metrics.incConflict()
			}
			log.Warn("block refused: certificate not applicable", zap.Int("index", i), zap.Error(err))
			p.unwind(lcs[:i], view, undo, log)
			return fmt.Errorf("certificate %d: %w", i, err)
		}
	}
	rec := store.BlockRecord{Hash: hash, PrevHash: blk.PrevHash, Height: blk.Height}
	if err := p.db.CommitConnect(rec, blk.Certificates, view, undo); err != nil {
		log.Error("block commit failed", zap.Error(err))
		p.unwind(lcs, view, undo, log)
		return err
	}
	return nil
}

// unwind reverts staged applications newest first so that every lifecycle
// ends in a terminal state.
func (p *Processor) unwind(lcs []*consensus.CertLifecycle, view *consensus.CoinsViewCache, undo *consensus.UndoRecord, log *zap.Logger) {
	for i := len(lcs) - 1; i >= 0; i-- {
		if err := lcs[i].Revert(view, undo); err != nil {
			log.Error("unwind failed", zap.Int("index", i), zap.Error(err))
		}
	}
}

// DisconnectTip rolls back the most recently connected block.
func (p *Processor) DisconnectTip() (*store.BlockRecord, error) {
	p.mu.Lock()
	blk, certs, err := p.disconnectLocked()
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}

	p.metrics.addReverted(len(certs))
	p.log.Info("block disconnected", hashField("block", blk.Hash), zap.Uint64("height", blk.Height),
		zap.Int("certificates", len(certs)))
	for _, l := range p.snapshotListeners() {
		for i := len(certs) - 1; i >= 0; i-- {
			l.CertificateDisconnected(certs[i], blk.Hash)
		}
	}
	return blk, nil
}

func (p *Processor) disconnectLocked() (*store.BlockRecord, []*consensus.Certificate, error) {
	blk, undo, certs, err := p.db.TipBlock()
	if err != nil {
		return nil, nil, err
	}
	view := consensus.NewCoinsViewCache(p.db)
	for i := len(certs) - 1; i >= 0; i-- {
		if err := consensus.RevertCertificate(certs[i], view, undo); err != nil {
			return nil, nil, fmt.Errorf("revert certificate %d: %w", i, err)
		}
	}
	if err := p.db.CommitDisconnect(blk, view, undo); err != nil {
		p.log.Error("block disconnect refused", hashField("block", blk.Hash), zap.Error(err))
		return nil, nil, err
	}
	return blk, certs, nil
}

func (p *Processor) Coins(id [32]byte) (consensus.Coins, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.db.GetCoins(id)
}

func (p *Processor) Certificate(hash [32]byte) (*consensus.Certificate, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.db.GetCertificate(hash)
}

func (p *Processor) Tip() (store.Tip, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.db.Tip()
}

func (p *Processor) snapshotListeners() []CertificateListener {
	p.lmu.Lock()
	defer p.lmu.Unlock()
	return append([]CertificateListener(nil), p.listeners...)
}

func hashField(key string, h [32]byte) zap.Field {
	return zap.String(key, hex.EncodeToString(h[:]))
}
