package store

import (
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"sccert.dev/node/consensus"
)

// TipBlock loads what is needed to disconnect the tip: its record, its undo
// log and its certificates in application order.
func (d *DB) TipBlock() (*BlockRecord, *consensus.UndoRecord, []*consensus.Certificate, error) {
	tip, ok, err := d.Tip()
	if err != nil {
		return nil, nil, nil, err
	}
	if !ok {
		return nil, nil, nil, ErrNoTip
	}
	blk, ok, err := d.GetBlock(tip.Hash)
	if err != nil {
		return nil, nil, nil, err
	}
	if !ok {
		return nil, nil, nil, errors.Errorf("REORG_ERR_BLOCK_MISSING %x", tip.Hash[:8])
	}
	undo, ok, err := d.GetUndo(tip.Hash)
	if err != nil {
		return nil, nil, nil, err
	}
	if !ok {
		return nil, nil, nil, errors.Errorf("REORG_ERR_UNDO_MISSING %x", tip.Hash[:8])
	}
	certs := make([]*consensus.Certificate, len(blk.CertHashes))
	for i, h := range blk.CertHashes {
		c, ok, err := d.GetCertificate(h)
		if err != nil {
			return nil, nil, nil, err
		}
		if !ok {
			return nil, nil, nil, errors.Errorf("REORG_ERR_CERT_MISSING %x", h[:8])
		}
		certs[i] = c
	}
	return blk, undo, certs, nil
}

// CommitDisconnect writes the reverted coins in view, drops the block's undo
// log and record, and moves the tip to the parent in one transaction. undo
// is the block's log after every certificate was reverted and must be
// empty. When the parent was never connected here the tip is cleared.
func (d *DB) CommitDisconnect(blk *BlockRecord, view *consensus.CoinsViewCache, undo *consensus.UndoRecord) error {
	if blk == nil || view == nil {
		return errors.New("disconnect: block and view required")
	}
	if undo.Len() != 0 {
		return errors.Errorf("REORG_ERR_UNDO_LEFTOVER %d entries", undo.Len())
	}
	err := d.db.Update(func(tx *bolt.Tx) error {
		tip, ok, err := readTip(tx)
		if err != nil {
			return err
		}
		if !ok || tip.Hash != blk.Hash {
			return errors.Errorf("disconnect: block %x is not the tip", blk.Hash[:8])
		}
		if err := putCoinsChanges(tx.Bucket(bucketCoins), view.Changes()); err != nil {
			return err
		}
		if err := tx.Bucket(bucketUndo).Delete(blk.Hash[:]); err != nil {
			return errors.Wrap(err, "disconnect: delete undo")
		}
		if err := tx.Bucket(bucketBlocks).Delete(blk.Hash[:]); err != nil {
			return errors.Wrap(err, "disconnect: delete block")
		}
		if tx.Bucket(bucketBlocks).Get(blk.PrevHash[:]) == nil {
			return tx.Bucket(bucketMeta).Delete(keyTip)
		}
		return writeTip(tx, Tip{Hash: blk.PrevHash, Height: blk.Height - 1})
	})
	if err != nil {
		return err
	}
	return view.Flush(discardWriter{})
}
