package store

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"sccert.dev/node/consensus"
)

var (
	bucketCoins  = []byte("coins_by_id")
	bucketUndo   = []byte("undo_by_block_hash")
	bucketCerts  = []byte("certs_by_hash")
	bucketBlocks = []byte("blocks_by_hash")
	bucketMeta   = []byte("meta")

	keyTip = []byte("tip")
)

// BlockRecord lists the certificates a connected block applied, in
// application order.
type BlockRecord struct {
	Hash       [32]byte
	PrevHash   [32]byte
	Height     uint64
	CertHashes [][32]byte
}

// Tip is the most recently connected block.
type Tip struct {
	Hash   [32]byte
	Height uint64
}

// DB is the persistent coins view. It satisfies consensus.CoinsView and
// consensus.CoinsBatchWriter, so a consensus.CoinsViewCache can sit on top
// and flush into it.
type DB struct {
	dir      string
	db       *bolt.DB
	manifest *Manifest
}

var (
	_ consensus.CoinsView        = (*DB)(nil)
	_ consensus.CoinsBatchWriter = (*DB)(nil)
)

func Open(datadir string, network string) (*DB, error) {
	if datadir == "" {
		return nil, errors.New("datadir required")
	}
	if network == "" {
		return nil, errors.New("network required")
	}

	dir := NetworkDir(datadir, network)
	if err := ensureDir(filepath.Join(dir, "db")); err != nil {
		return nil, err
	}

	bdb, err := bolt.Open(filepath.Join(dir, "db", "kv.db"), 0o600, &bolt.Options{
		Timeout: 1 * time.Second,
	})
	if err != nil {
		return nil, errors.Wrap(err, "open bbolt")
	}

	d := &DB{dir: dir, db: bdb}
	if err := d.db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketCoins, bucketUndo, bucketCerts, bucketBlocks, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return errors.Wrapf(err, "create bucket %s", string(b))
			}
		}
		return nil
	}); err != nil {
		_ = bdb.Close()
		return nil, err
	}

	m, err := readManifest(dir)
	switch {
	case os.IsNotExist(errors.Cause(err)):
		m = &Manifest{SchemaVersion: SchemaVersionV1, Network: network}
		if err := writeManifestAtomic(dir, m); err != nil {
			_ = bdb.Close()
			return nil, err
		}
	case err != nil:
		_ = bdb.Close()
		return nil, errors.Wrap(err, "read manifest")
	case m.SchemaVersion > SchemaVersionV1:
		_ = bdb.Close()
		return nil, errors.Errorf("manifest schema_version %d > supported %d", m.SchemaVersion, SchemaVersionV1)
	case m.Network != network:
		_ = bdb.Close()
		return nil, errors.Errorf("manifest network %q, opened as %q", m.Network, network)
	}
	d.manifest = m
	return d, nil
}

func (d *DB) Close() error {
	if d == nil || d.db == nil {
		return nil
	}
	return d.db.Close()
}

func (d *DB) Dir() string { return d.dir }

func (d *DB) Manifest() *Manifest {
	if d == nil {
		return nil
	}
	return d.manifest
}

// GetCoins implements consensus.CoinsView.
func (d *DB) GetCoins(id [32]byte) (consensus.Coins, bool, error) {
	var out consensus.Coins
	var ok bool
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketCoins).Get(id[:])
		if v == nil {
			return nil
		}
		c, err := decodeCoinsExact(v)
		if err != nil {
			return errors.Wrapf(err, "coins %x", id[:8])
		}
		out, ok = c, true
		return nil
	})
	return out, ok, err
}

// BatchWrite implements consensus.CoinsBatchWriter in a single bbolt
// transaction.
func (d *DB) BatchWrite(changes map[[32]byte]*consensus.Coins) error {
	return d.db.Update(func(tx *bolt.Tx) error {
		return putCoinsChanges(tx.Bucket(bucketCoins), changes)
	})
}

func putCoinsChanges(b *bolt.Bucket, changes map[[32]byte]*consensus.Coins) error {
	for id, c := range changes {
		if c == nil {
			if err := b.Delete(id[:]); err != nil {
				return errors.Wrapf(err, "delete coins %x", id[:8])
			}
			continue
		}
		if err := b.Put(id[:], encodeCoins(*c)); err != nil {
			return errors.Wrapf(err, "put coins %x", id[:8])
		}
	}
	return nil
}

// ForEachCoins visits every stored entry in key order.
func (d *DB) ForEachCoins(fn func(id [32]byte, c consensus.Coins) error) error {
	return d.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCoins).ForEach(func(k, v []byte) error {
			if len(k) != 32 {
				return errors.Errorf("coins: bad key length %d", len(k))
			}
			c, err := decodeCoinsExact(v)
			if err != nil {
				return err
			}
			var id [32]byte
			copy(id[:], k)
			return fn(id, c)
		})
	})
}

// GetCertificate returns a certificate previously committed by a connected
// block. Entries survive disconnection.
func (d *DB) GetCertificate(hash [32]byte) (*consensus.Certificate, bool, error) {
	var out *consensus.Certificate
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketCerts).Get(hash[:])
		if v == nil {
			return nil
		}
		c, err := consensus.ParseCertificate(v)
		if err != nil {
			return errors.Wrapf(err, "certificate %x", hash[:8])
		}
		out = c
		return nil
	})
	if err != nil || out == nil {
		return nil, false, err
	}
	return out, true, nil
}

func (d *DB) GetBlock(hash [32]byte) (*BlockRecord, bool, error) {
	var out *BlockRecord
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketBlocks).Get(hash[:])
		if v == nil {
			return nil
		}
		r, err := decodeBlockRecord(hash, v)
		if err != nil {
			return err
		}
		out = r
		return nil
	})
	if err != nil || out == nil {
		return nil, false, err
	}
	return out, true, nil
}

func (d *DB) GetUndo(blockHash [32]byte) (*consensus.UndoRecord, bool, error) {
	var out *consensus.UndoRecord
	err := d.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketUndo).Get(blockHash[:])
		if v == nil {
			return nil
		}
		u, err := decodeUndoRecord(v)
		if err != nil {
			return err
		}
		out = u
		return nil
	})
	if err != nil || out == nil {
		return nil, false, err
	}
	return out, true, nil
}

// Tip returns the last connected block, if any.
func (d *DB) Tip() (Tip, bool, error) {
	var out Tip
	var ok bool
	err := d.db.View(func(tx *bolt.Tx) error {
		t, found, err := readTip(tx)
		out, ok = t, found
		return err
	})
	return out, ok, err
}

func readTip(tx *bolt.Tx) (Tip, bool, error) {
	v := tx.Bucket(bucketMeta).Get(keyTip)
	if v == nil {
		return Tip{}, false, nil
	}
	if len(v) != 32+8 {
		return Tip{}, false, errors.Errorf("tip: bad length %d", len(v))
	}
	var t Tip
	copy(t.Hash[:], v[:32])
	t.Height = binary.LittleEndian.Uint64(v[32:40])
	return t, true, nil
}

func writeTip(tx *bolt.Tx, t Tip) error {
	v := make([]byte, 32+8)
	copy(v[:32], t.Hash[:])
	binary.LittleEndian.PutUint64(v[32:], t.Height)
	return tx.Bucket(bucketMeta).Put(keyTip, v)
}

// Layout: height u64le | prev_hash 32 | cert_count u32le | cert_hash 32 * cert_count
func encodeBlockRecord(r *BlockRecord) ([]byte, error) {
	if len(r.CertHashes) > 0xffffffff {
		return nil, errors.New("block: too many certificates")
	}
	out := make([]byte, 8+32+4, 8+32+4+32*len(r.CertHashes))
	binary.LittleEndian.PutUint64(out[0:8], r.Height)
	copy(out[8:40], r.PrevHash[:])
	binary.LittleEndian.PutUint32(out[40:44], uint32(len(r.CertHashes))) // #nosec G115 -- checked against 0xffffffff above.
	for _, h := range r.CertHashes {
		out = append(out, h[:]...)
	}
	return out, nil
}

func decodeBlockRecord(hash [32]byte, b []byte) (*BlockRecord, error) {
	if len(b) < 8+32+4 {
		return nil, errors.New("block: truncated")
	}
	r := &BlockRecord{Hash: hash, Height: binary.LittleEndian.Uint64(b[0:8])}
	copy(r.PrevHash[:], b[8:40])
	n := binary.LittleEndian.Uint32(b[40:44])
	if uint64(len(b)-44) != uint64(n)*32 {
		return nil, errors.New("block: bad cert_count")
	}
	r.CertHashes = make([][32]byte, n)
	for i := range r.CertHashes {
		copy(r.CertHashes[i][:], b[44+32*i:44+32*(i+1)])
	}
	return r, nil
}
