package consensus

// LedgerRecord is the capability set shared by every record kind that can
// affect ledger state.
type LedgerRecord interface {
	Hash() [32]byte
	ValueOut() (Amount, error)
	UpdateCoins(view *CoinsViewCache, undo *UndoRecord, height uint64) error
}

var _ LedgerRecord = (*Certificate)(nil)

// UpdateCoins applies the certificate to view, recording the prior state of
// the touched key into undo when undo is non-nil. All checks run before the
// first write, so a failed call leaves view unchanged.
func (c *Certificate) UpdateCoins(view *CoinsViewCache, undo *UndoRecord, height uint64) error {
	if c == nil {
		return errNilCertificate()
	}
	if view == nil {
		return certerr(CERT_ERR_STATE, "nil coins view")
	}
	if err := c.CheckAmounts(); err != nil {
		return err
	}
	key := c.hash
	prev, had, err := view.GetCoins(key)
	if err != nil {
		return err
	}
	if had && !prev.IsPruned() {
		return certerr(CERT_ERR_LEDGER_CONFLICT, "unspent coins already exist for certificate hash")
	}

	entry, err := view.ModifyCoins(key)
	if err != nil {
		return err
	}
	entry.FromCertificate(c, height)
	undo.append(CoinsUndo{Key: key, HadPrev: had, Prev: prev})
	return nil
}

// ApplyCertificate is the apply operation without undo bookkeeping.
func ApplyCertificate(cert *Certificate, view *CoinsViewCache, height uint64) error {
	return cert.UpdateCoins(view, nil, height)
}

// ApplyCertificateWithUndo applies cert and appends its undo entry to undo.
func ApplyCertificateWithUndo(cert *Certificate, view *CoinsViewCache, undo *UndoRecord, height uint64) error {
	if undo == nil {
		return certerr(CERT_ERR_STATE, "nil undo record")
	}
	return cert.UpdateCoins(view, undo, height)
}

// RevertCertificate undoes the most recent application of cert recorded in
// undo. The entry at the certificate key must still exist.
func RevertCertificate(cert *Certificate, view *CoinsViewCache, undo *UndoRecord) error {
	if cert == nil {
		return errNilCertificate()
	}
	if view == nil {
		return certerr(CERT_ERR_STATE, "nil coins view")
	}
	key := cert.hash
	e, err := undo.peek(key)
	if err != nil {
		return err
	}
	if _, ok, err := view.AccessCoins(key); err != nil {
		return err
	} else if !ok {
		return certerr(CERT_ERR_UNDO_MISMATCH, "no coins to revert for certificate hash")
	}
	undo.Entries = undo.Entries[:len(undo.Entries)-1]
	if e.HadPrev {
		view.SetCoins(key, e.Prev)
	} else {
		view.RemoveCoins(key)
	}
	return nil
}
