package zendoo

import (
	"context"

	"golang.org/x/sync/errgroup"

	"sccert.dev/node/consensus"
)

// BatchItem is one certificate awaiting its proof check.
type BatchItem struct {
	Cert  *consensus.Certificate
	Input consensus.CertificateProofInput
}

// VerifyBatch checks independent certificates concurrently with at most
// limit checks in flight. results[i] is the outcome for items[i]; a
// rejection of one item does not stop the others. The returned error is
// only set when ctx is cancelled.
func VerifyBatch(ctx context.Context, v consensus.ProofVerifier, items []BatchItem, limit int) ([]error, error) {
	results := make([]error, len(items))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i := range items {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = consensus.VerifyCertificate(v, items[i].Cert, items[i].Input)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
