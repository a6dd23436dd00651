package store

import (
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"sccert.dev/node/consensus"
)

// ErrNotTipChild is returned when a block does not extend the current tip.
var ErrNotTipChild = errors.New("STORE_ERR_NOT_TIP_CHILD")

// ErrNoTip is returned when there is no connected block to disconnect.
var ErrNoTip = errors.New("STORE_ERR_NO_TIP")

// CommitConnect persists an already staged block in one bbolt transaction:
// the coin changes in view, the undo log, the certificates, the block record
// and the new tip. blk.CertHashes is filled from certs.
func (d *DB) CommitConnect(blk BlockRecord, certs []*consensus.Certificate, view *consensus.CoinsViewCache, undo *consensus.UndoRecord) error {
	if view == nil || undo == nil {
		return errors.New("connect: view and undo required")
	}
	blk.CertHashes = make([][32]byte, len(certs))
	certBytes := make([][]byte, len(certs))
	for i, c := range certs {
		blk.CertHashes[i] = c.Hash()
		b, err := c.MarshalBinary()
		if err != nil {
			return errors.Wrapf(err, "connect: marshal certificate %d", i)
		}
		certBytes[i] = b
	}
	blkBytes, err := encodeBlockRecord(&blk)
	if err != nil {
		return err
	}
	undoBytes, err := encodeUndoRecord(undo)
	if err != nil {
		return err
	}

	err = d.db.Update(func(tx *bolt.Tx) error {
		tip, ok, err := readTip(tx)
		if err != nil {
			return err
		}
		if ok && (tip.Hash != blk.PrevHash || tip.Height+1 != blk.Height) {
			return errors.Wrapf(ErrNotTipChild, "block %x at %d, tip %x at %d", blk.Hash[:8], blk.Height, tip.Hash[:8], tip.Height)
		}
		if tx.Bucket(bucketBlocks).Get(blk.Hash[:]) != nil {
			return errors.Errorf("connect: block %x already connected", blk.Hash[:8])
		}
		if err := putCoinsChanges(tx.Bucket(bucketCoins), view.Changes()); err != nil {
			return err
		}
		bc := tx.Bucket(bucketCerts)
		for i, h := range blk.CertHashes {
			if err := bc.Put(h[:], certBytes[i]); err != nil {
				return errors.Wrap(err, "connect: put certificate")
			}
		}
		if err := tx.Bucket(bucketUndo).Put(blk.Hash[:], undoBytes); err != nil {
			return errors.Wrap(err, "connect: put undo")
		}
		if err := tx.Bucket(bucketBlocks).Put(blk.Hash[:], blkBytes); err != nil {
			return errors.Wrap(err, "connect: put block")
		}
		return writeTip(tx, Tip{Hash: blk.Hash, Height: blk.Height})
	})
	if err != nil {
		return err
	}
	// The staged entries are now persisted; drop them so view reads through.
	return view.Flush(discardWriter{})
}

type discardWriter struct{}

func (discardWriter) BatchWrite(map[[32]byte]*consensus.Coins) error { return nil }
