package consensus

// FieldElement, ScProof and ScVerificationKey are opaque encodings owned by
// the proof system. This package never interprets them.
type (
	FieldElement      []byte
	ScProof           []byte
	ScVerificationKey []byte
)

// BackwardTransfer is the proof-system view of a backward transfer output.
type BackwardTransfer struct {
	PubKeyHash [20]byte
	Amount     uint64
}

// ProofVerifier attests that a sidechain epoch transition is valid. The
// argument order is part of the cross-node contract and must not change.
//
// Implementations must be free of side effects and must return false, not
// panic, for malformed or missing input.
type ProofVerifier interface {
	VerifyScProof(
		endEpochBlockHash [32]byte,
		prevEndEpochBlockHash [32]byte,
		bts []BackwardTransfer,
		quality uint64,
		constant FieldElement,
		proofData FieldElement,
		proof ScProof,
		vk ScVerificationKey,
	) bool
}

// VerifierFunc adapts a function to ProofVerifier.
type VerifierFunc func(
	endEpochBlockHash [32]byte,
	prevEndEpochBlockHash [32]byte,
	bts []BackwardTransfer,
	quality uint64,
	constant FieldElement,
	proofData FieldElement,
	proof ScProof,
	vk ScVerificationKey,
) bool

func (f VerifierFunc) VerifyScProof(
	endEpochBlockHash [32]byte,
	prevEndEpochBlockHash [32]byte,
	bts []BackwardTransfer,
	quality uint64,
	constant FieldElement,
	proofData FieldElement,
	proof ScProof,
	vk ScVerificationKey,
) bool {
	if f == nil {
		return false
	}
	return f(endEpochBlockHash, prevEndEpochBlockHash, bts, quality, constant, proofData, proof, vk)
}

// StaticVerifier returns Accept for every call. Test double.
type StaticVerifier struct {
	Accept bool
}

func (s StaticVerifier) VerifyScProof([32]byte, [32]byte, []BackwardTransfer, uint64, FieldElement, FieldElement, ScProof, ScVerificationKey) bool {
	return s.Accept
}

// CertificateProofInput carries the epoch-side arguments of a proof check.
// The backward transfers come from the certificate itself.
type CertificateProofInput struct {
	EndEpochBlockHash     [32]byte
	PrevEndEpochBlockHash [32]byte
	Quality               uint64
	Constant              FieldElement
	ProofData             FieldElement
	Proof                 ScProof
	VerificationKey       ScVerificationKey
}

// BackwardTransferList converts the certificate's backward transfer outputs,
// in order, into proof inputs. Amounts are range checked first.
func (c *Certificate) BackwardTransferList() ([]BackwardTransfer, error) {
	if _, err := c.ValueBackwardTransferOut(); err != nil {
		return nil, err
	}
	out := make([]BackwardTransfer, len(c.vbtOut))
	for i, bt := range c.vbtOut {
		out[i] = BackwardTransfer{PubKeyHash: bt.PubKeyHash, Amount: uint64(bt.Value)} // #nosec G115 -- range checked above.
	}
	return out, nil
}

// VerifyCertificate consults v for cert. A false answer, a nil verifier or a
// panicking verifier all yield CERT_ERR_PROOF_REJECTED; range errors in the
// backward transfers are returned as is. A nil cert is CERT_ERR_STATE.
func VerifyCertificate(v ProofVerifier, cert *Certificate, in CertificateProofInput) error {
	if cert == nil {
		return errNilCertificate()
	}
	bts, err := cert.BackwardTransferList()
	if err != nil {
		return err
	}
	if v == nil {
		return certerr(CERT_ERR_PROOF_REJECTED, "no proof verifier")
	}
	if !callVerifier(v, bts, in) {
		return certerr(CERT_ERR_PROOF_REJECTED, "sidechain proof rejected")
	}
	return nil
}

func callVerifier(v ProofVerifier, bts []BackwardTransfer, in CertificateProofInput) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return v.VerifyScProof(
		in.EndEpochBlockHash,
		in.PrevEndEpochBlockHash,
		bts,
		in.Quality,
		in.Constant,
		in.ProofData,
		in.Proof,
		in.VerificationKey,
	)
}
