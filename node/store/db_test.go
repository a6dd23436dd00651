package store

import (
	"os"
	"path/filepath"
	"testing"

	"sccert.dev/node/consensus"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(t.TempDir(), "regtest")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func hashOf(b byte) [32]byte {
	var out [32]byte
	out[0] = b
	return out
}

func testCert(nonce byte, values ...consensus.Amount) *consensus.Certificate {
	m := consensus.NewMutableCertificate(hashOf(0xaa))
	m.Nonce = hashOf(nonce)
	var total consensus.Amount
	for i, v := range values {
		m.AddOutput(v, []byte{0x51, byte(i)})
		total += v
	}
	m.AddBackwardTransfer(1, [20]byte{nonce})
	m.TotalAmount = total + 2
	return consensus.NewCertificate(m)
}

func TestOpen_WritesManifestAndRejectsOtherNetwork(t *testing.T) {
	datadir := t.TempDir()
	db, err := Open(datadir, "regtest")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	m := db.Manifest()
	if m == nil || m.Network != "regtest" || m.SchemaVersion != SchemaVersionV1 {
		t.Fatalf("manifest=%+v", m)
	}
	if _, err := os.Stat(filepath.Join(db.Dir(), "MANIFEST.json")); err != nil {
		t.Fatalf("manifest file: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err = Open(datadir, "regtest")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	_ = db.Close()

	if err := os.Rename(NetworkDir(datadir, "regtest"), NetworkDir(datadir, "mainnet")); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if _, err := Open(datadir, "mainnet"); err == nil {
		t.Fatalf("expected network mismatch error")
	}
}

func TestOpen_RequiresArgs(t *testing.T) {
	if _, err := Open("", "regtest"); err == nil {
		t.Fatalf("expected datadir error")
	}
	if _, err := Open(t.TempDir(), ""); err == nil {
		t.Fatalf("expected network error")
	}
}

func TestDB_BatchWriteAndGetCoins(t *testing.T) {
	db := openTestDB(t)
	a, b := hashOf(1), hashOf(2)
	ca := consensus.Coins{Version: -5, Height: 3, CreatedByCertificate: true, Outputs: []consensus.CoinOut{
		{Value: 7, Script: []byte{0x01}},
		{Value: 9, Script: nil, Spent: true},
	}}
	if err := db.BatchWrite(map[[32]byte]*consensus.Coins{a: &ca, b: {Height: 1}}); err != nil {
		t.Fatalf("BatchWrite: %v", err)
	}
	got, ok, err := db.GetCoins(a)
	if err != nil || !ok {
		t.Fatalf("GetCoins: ok=%v err=%v", ok, err)
	}
	if !got.Equal(ca) {
		t.Fatalf("got %+v want %+v", got, ca)
	}

	if err := db.BatchWrite(map[[32]byte]*consensus.Coins{b: nil}); err != nil {
		t.Fatalf("BatchWrite delete: %v", err)
	}
	if _, ok, _ := db.GetCoins(b); ok {
		t.Fatalf("expected b deleted")
	}

	n := 0
	if err := db.ForEachCoins(func(id [32]byte, _ consensus.Coins) error {
		if id != a {
			t.Fatalf("unexpected id %x", id)
		}
		n++
		return nil
	}); err != nil {
		t.Fatalf("ForEachCoins: %v", err)
	}
	if n != 1 {
		t.Fatalf("n=%d", n)
	}
}

func TestCache_FlushIntoDB(t *testing.T) {
	db := openTestDB(t)
	cert := testCert(1, 4, 6)
	view := consensus.NewCoinsViewCache(db)
	if err := consensus.ApplyCertificate(cert, view, 10); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, ok, _ := db.GetCoins(cert.Hash()); ok {
		t.Fatalf("store changed before flush")
	}
	if err := view.Flush(db); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	got, ok, err := db.GetCoins(cert.Hash())
	if err != nil || !ok {
		t.Fatalf("GetCoins: ok=%v err=%v", ok, err)
	}
	if got.Height != 10 || !got.CreatedByCertificate || len(got.Outputs) != 2 {
		t.Fatalf("got %+v", got)
	}
}

func TestCoinsEncoding_RejectsMalformed(t *testing.T) {
	good := encodeCoins(consensus.Coins{Height: 1, Outputs: []consensus.CoinOut{{Value: 1, Script: []byte{1, 2}}}})
	if _, err := decodeCoinsExact(good); err != nil {
		t.Fatalf("decode good: %v", err)
	}
	cases := map[string][]byte{
		"truncated": good[:len(good)-1],
		"trailing":  append(append([]byte(nil), good...), 0),
		"bad_flag":  func() []byte { b := append([]byte(nil), good...); b[12] = 2; return b }(),
		"short":     good[:5],
	}
	for name, b := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := decodeCoinsExact(b); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestUndoEncoding_PreservesEntries(t *testing.T) {
	u := &consensus.UndoRecord{Entries: []consensus.CoinsUndo{
		{Key: hashOf(1)},
		{Key: hashOf(2), HadPrev: true, Prev: consensus.Coins{Height: 4, Outputs: []consensus.CoinOut{{Value: 3, Spent: true}}}},
	}}
	b, err := encodeUndoRecord(u)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := decodeUndoRecord(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Len() != 2 || got.Entries[0].HadPrev || !got.Entries[1].HadPrev || !got.Entries[1].Prev.Equal(u.Entries[1].Prev) {
		t.Fatalf("got %+v", got)
	}
	if _, err := decodeUndoRecord(b[:len(b)-1]); err == nil {
		t.Fatalf("expected truncation error")
	}
}
