package consensus

import "fmt"

// CoinsUndo captures the entry at Key as it was before a record was applied.
// HadPrev is false when the key was absent.
type CoinsUndo struct {
	Key     [32]byte
	HadPrev bool
	Prev    Coins
}

// UndoRecord is an append-only log of pre-mutation snapshots. Entries are
// reverted last-in first-out.
type UndoRecord struct {
	Entries []CoinsUndo
}

func (u *UndoRecord) append(e CoinsUndo) {
	if u == nil {
		return
	}
	u.Entries = append(u.Entries, e)
}

func (u *UndoRecord) Len() int {
	if u == nil {
		return 0
	}
	return len(u.Entries)
}

// peek returns the last entry, which must belong to key.
func (u *UndoRecord) peek(key [32]byte) (CoinsUndo, error) {
	if u == nil || len(u.Entries) == 0 {
		return CoinsUndo{}, certerr(CERT_ERR_UNDO_MISMATCH, "undo record empty")
	}
	last := u.Entries[len(u.Entries)-1]
	if last.Key != key {
		return CoinsUndo{}, certerr(CERT_ERR_UNDO_MISMATCH, fmt.Sprintf("undo entry for %x, want %x", last.Key[:8], key[:8]))
	}
	return last, nil
}
