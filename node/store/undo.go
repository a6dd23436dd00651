package store

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"sccert.dev/node/consensus"
)

// encodeUndoRecord persists a block's undo log in application order.
//
// Layout:
//
//	entry_count u32le
//	  (key 32 | had_prev u8 | [coins_len u32le | coins_bytes]) * entry_count
func encodeUndoRecord(u *consensus.UndoRecord) ([]byte, error) {
	n := u.Len()
	if n > 0xffffffff {
		return nil, errors.New("undo: too many entries")
	}
	out := make([]byte, 0, 4+n*(32+1))
	var tmp4 [4]byte
	binary.LittleEndian.PutUint32(tmp4[:], uint32(n)) // #nosec G115 -- n checked against 0xffffffff above.
	out = append(out, tmp4[:]...)
	for i := 0; i < n; i++ {
		e := u.Entries[i]
		out = append(out, e.Key[:]...)
		out = append(out, boolByte(e.HadPrev))
		if !e.HadPrev {
			continue
		}
		cb := encodeCoins(e.Prev)
		binary.LittleEndian.PutUint32(tmp4[:], uint32(len(cb))) // #nosec G115 -- encoded coins are bounded well below u32.
		out = append(out, tmp4[:]...)
		out = append(out, cb...)
	}
	return out, nil
}

func decodeUndoRecord(b []byte) (*consensus.UndoRecord, error) {
	off := 0
	readU32 := func() (uint32, error) {
		if off+4 > len(b) {
			return 0, errors.New("undo: truncated u32")
		}
		v := binary.LittleEndian.Uint32(b[off : off+4])
		off += 4
		return v, nil
	}
	n, err := readU32()
	if err != nil {
		return nil, err
	}
	if uint64(n) > uint64(len(b)-off)/(32+1) {
		return nil, errors.New("undo: entry_count exceeds payload")
	}
	u := &consensus.UndoRecord{Entries: make([]consensus.CoinsUndo, 0, n)}
	for i := uint32(0); i < n; i++ {
		if off+33 > len(b) {
			return nil, errors.New("undo: truncated entry")
		}
		var e consensus.CoinsUndo
		copy(e.Key[:], b[off:off+32])
		off += 32
		had, err := byteBool(b[off])
		if err != nil {
			return nil, errors.Wrapf(err, "undo: entry %d", i)
		}
		off++
		e.HadPrev = had
		if had {
			cl, err := readU32()
			if err != nil {
				return nil, err
			}
			if uint64(cl) > uint64(len(b)-off) {
				return nil, errors.New("undo: truncated coins")
			}
			c, err := decodeCoinsExact(b[off : off+int(cl)])
			if err != nil {
				return nil, errors.Wrapf(err, "undo: entry %d", i)
			}
			off += int(cl)
			e.Prev = c
		}
		u.Entries = append(u.Entries, e)
	}
	if off != len(b) {
		return nil, errors.New("undo: trailing bytes")
	}
	return u, nil
}
