package consensus

import "fmt"

type CertState uint8

const (
	CertAssembled CertState = iota
	CertAccepted
	CertRejected
	CertLedgerApplied
	CertDiscarded
	CertReverted
)

func (s CertState) String() string {
	switch s {
	case CertAssembled:
		return "ASSEMBLED"
	case CertAccepted:
		return "ACCEPTED"
	case CertRejected:
		return "REJECTED"
	case CertLedgerApplied:
		return "LEDGER_APPLIED"
	case CertDiscarded:
		return "DISCARDED"
	case CertReverted:
		return "REVERTED"
	default:
		return "UNKNOWN"
	}
}

var certTransitions = map[CertState][]CertState{
	CertAssembled:     {CertAccepted, CertRejected, CertDiscarded},
	CertAccepted:      {CertLedgerApplied, CertDiscarded},
	CertRejected:      {CertDiscarded},
	CertLedgerApplied: {CertReverted},
}

// CertLifecycle tracks one certificate through acceptance. Transitions only
// move forward; LedgerApplied to Reverted is the single reversal.
type CertLifecycle struct {
	Cert  *Certificate
	state CertState
}

func NewCertLifecycle(cert *Certificate) *CertLifecycle {
	return &CertLifecycle{Cert: cert, state: CertAssembled}
}

func (l *CertLifecycle) State() CertState { return l.state }

func (l *CertLifecycle) transition(to CertState) error {
	for _, s := range certTransitions[l.state] {
		if s == to {
			l.state = to
			return nil
		}
	}
	return certerr(CERT_ERR_STATE, fmt.Sprintf("illegal transition %s -> %s", l.state, to))
}

// Check runs the proof gate. A rejection moves the certificate to Rejected
// and then Discarded; the returned error is CERT_ERR_PROOF_REJECTED. A value
// range failure discards without consulting v.
func (l *CertLifecycle) Check(v ProofVerifier, in CertificateProofInput) error {
	if l.state != CertAssembled {
		return certerr(CERT_ERR_STATE, fmt.Sprintf("check in state %s", l.state))
	}
	err := VerifyCertificate(v, l.Cert, in)
	switch {
	case err == nil:
		return l.transition(CertAccepted)
	case IsProofRejected(err):
		_ = l.transition(CertRejected)
		_ = l.transition(CertDiscarded)
		return err
	default:
		_ = l.transition(CertDiscarded)
		return err
	}
}

// Apply writes the accepted certificate into view. On failure the
// certificate is discarded and view is untouched.
func (l *CertLifecycle) Apply(view *CoinsViewCache, undo *UndoRecord, height uint64) error {
	if l.state != CertAccepted {
		return certerr(CERT_ERR_STATE, fmt.Sprintf("apply in state %s", l.state))
	}
	if err := ApplyCertificateWithUndo(l.Cert, view, undo, height); err != nil {
		_ = l.transition(CertDiscarded)
		return err
	}
	return l.transition(CertLedgerApplied)
}

// Revert rolls back an applied certificate during reorganization.
func (l *CertLifecycle) Revert(view *CoinsViewCache, undo *UndoRecord) error {
	if l.state != CertLedgerApplied {
		return certerr(CERT_ERR_STATE, fmt.Sprintf("revert in state %s", l.state))
	}
	if err := RevertCertificate(l.Cert, view, undo); err != nil {
		return err
	}
	return l.transition(CertReverted)
}
