package zendoo

import (
	"context"
	"encoding/binary"
	"errors"
	"time"

	"github.com/allegro/bigcache/v3"
	"golang.org/x/crypto/sha3"

	"sccert.dev/node/consensus"
)

// CachingVerifier memoizes the answers of an inner verifier. Verification
// is a pure function of its arguments, so a cached answer is always valid;
// the cache only bounds memory.
type CachingVerifier struct {
	inner consensus.ProofVerifier
	cache *bigcache.BigCache
}

var _ consensus.ProofVerifier = (*CachingVerifier)(nil)

type CacheConfig struct {
	TTL       time.Duration
	MaxSizeMB int
}

func NewCachingVerifier(ctx context.Context, inner consensus.ProofVerifier, cfg CacheConfig) (*CachingVerifier, error) {
	if inner == nil {
		return nil, errors.New("inner verifier required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 10 * time.Minute
	}
	bc := bigcache.DefaultConfig(cfg.TTL)
	bc.Verbose = false
	if cfg.MaxSizeMB > 0 {
		bc.HardMaxCacheSize = cfg.MaxSizeMB
	}
	cache, err := bigcache.New(ctx, bc)
	if err != nil {
		return nil, err
	}
	return &CachingVerifier{inner: inner, cache: cache}, nil
}

func (c *CachingVerifier) VerifyScProof(
	endEpochBlockHash [32]byte,
	prevEndEpochBlockHash [32]byte,
	bts []consensus.BackwardTransfer,
	quality uint64,
	constant consensus.FieldElement,
	proofData consensus.FieldElement,
	proof consensus.ScProof,
	vk consensus.ScVerificationKey,
) bool {
	key := callKey(endEpochBlockHash, prevEndEpochBlockHash, bts, quality, constant, proofData, proof, vk)
	if v, err := c.cache.Get(key); err == nil && len(v) == 1 {
		return v[0] == 1
	}
	ok := c.inner.VerifyScProof(endEpochBlockHash, prevEndEpochBlockHash, bts, quality, constant, proofData, proof, vk)
	var v byte
	if ok {
		v = 1
	}
	_ = c.cache.Set(key, []byte{v})
	return ok
}

func (c *CachingVerifier) Stats() bigcache.Stats { return c.cache.Stats() }

func (c *CachingVerifier) Close() error { return c.cache.Close() }

// callKey hashes every argument with a length prefix so distinct calls
// cannot share a key.
func callKey(
	end [32]byte,
	prev [32]byte,
	bts []consensus.BackwardTransfer,
	quality uint64,
	constant consensus.FieldElement,
	proofData consensus.FieldElement,
	proof consensus.ScProof,
	vk consensus.ScVerificationKey,
) string {
	h := sha3.New256()
	var tmp [8]byte
	writeVar := func(b []byte) {
		binary.LittleEndian.PutUint64(tmp[:], uint64(len(b)))
		_, _ = h.Write(tmp[:])
		_, _ = h.Write(b)
	}
	_, _ = h.Write(end[:])
	_, _ = h.Write(prev[:])
	binary.LittleEndian.PutUint64(tmp[:], uint64(len(bts)))
	_, _ = h.Write(tmp[:])
	for _, bt := range bts {
		_, _ = h.Write(bt.PubKeyHash[:])
		binary.LittleEndian.PutUint64(tmp[:], bt.Amount)
		_, _ = h.Write(tmp[:])
	}
	binary.LittleEndian.PutUint64(tmp[:], quality)
	_, _ = h.Write(tmp[:])
	writeVar(constant)
	writeVar(proofData)
	writeVar(proof)
	writeVar(vk)
	return string(h.Sum(nil))
}
