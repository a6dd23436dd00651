package consensus

import "testing"

func TestCertLifecycle_AcceptApplyRevert(t *testing.T) {
	cert := NewCertificate(sampleBuilder())
	l := NewCertLifecycle(cert)
	if l.State() != CertAssembled {
		t.Fatalf("state=%s", l.State())
	}
	if err := l.Check(StaticVerifier{Accept: true}, sampleProofInput()); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if l.State() != CertAccepted {
		t.Fatalf("state=%s", l.State())
	}

	view := NewCoinsViewCache(nil)
	undo := &UndoRecord{}
	if err := l.Apply(view, undo, 77); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if l.State() != CertLedgerApplied {
		t.Fatalf("state=%s", l.State())
	}
	c, ok, _ := view.GetCoins(cert.Hash())
	if !ok || c.Height != 77 {
		t.Fatalf("coins missing or wrong height: %+v", c)
	}
	fee, err := cert.FeeAmount()
	if err != nil || fee != 10 {
		t.Fatalf("fee=%d err=%v", fee, err)
	}

	if err := l.Apply(view, undo, 77); CodeOf(err) != CERT_ERR_STATE {
		t.Fatalf("double apply: %v", err)
	}
	if err := l.Revert(view, undo); err != nil {
		t.Fatalf("Revert: %v", err)
	}
	if l.State() != CertReverted {
		t.Fatalf("state=%s", l.State())
	}
	if ok, _ := view.HaveCoins(cert.Hash()); ok {
		t.Fatalf("coins still present after revert")
	}
	if err := l.Revert(view, undo); CodeOf(err) != CERT_ERR_STATE {
		t.Fatalf("double revert: %v", err)
	}
}

func TestCertLifecycle_RejectedIsDiscarded(t *testing.T) {
	l := NewCertLifecycle(NewCertificate(sampleBuilder()))
	if err := l.Check(StaticVerifier{Accept: false}, sampleProofInput()); !IsProofRejected(err) {
		t.Fatalf("expected rejection, got %v", err)
	}
	if l.State() != CertDiscarded {
		t.Fatalf("state=%s", l.State())
	}
	if err := l.Apply(NewCoinsViewCache(nil), &UndoRecord{}, 1); CodeOf(err) != CERT_ERR_STATE {
		t.Fatalf("apply after discard: %v", err)
	}
	if err := l.Check(StaticVerifier{Accept: true}, sampleProofInput()); CodeOf(err) != CERT_ERR_STATE {
		t.Fatalf("re-check after discard: %v", err)
	}
}

func TestCertLifecycle_ConflictDiscards(t *testing.T) {
	cert := NewCertificate(sampleBuilder())
	view := NewCoinsViewCache(nil)
	if err := ApplyCertificate(cert, view, 1); err != nil {
		t.Fatalf("seed: %v", err)
	}
	l := NewCertLifecycle(cert)
	if err := l.Check(StaticVerifier{Accept: true}, sampleProofInput()); err != nil {
		t.Fatalf("Check: %v", err)
	}
	if err := l.Apply(view, &UndoRecord{}, 2); !IsLedgerConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if l.State() != CertDiscarded {
		t.Fatalf("state=%s", l.State())
	}
}

func TestCertState_String(t *testing.T) {
	if CertState(99).String() != "UNKNOWN" || CertLedgerApplied.String() != "LEDGER_APPLIED" {
		t.Fatalf("unexpected names")
	}
}
