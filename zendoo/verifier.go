package zendoo

import (
	"io"
	"sync"

	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/frontend"
	gnarklogger "github.com/consensys/gnark/logger"
	"github.com/rs/zerolog"

	"sccert.dev/node/consensus"
)

var quietOnce sync.Once

// silenceGnark routes gnark's internal zerolog output to io.Discard. gnark
// logs every setup and proof at debug level otherwise.
func silenceGnark() {
	quietOnce.Do(func() {
		gnarklogger.Set(zerolog.New(io.Discard).Level(zerolog.Disabled))
	})
}

// Groth16Verifier checks epoch transition proofs over BN254. It holds no
// mutable state and is safe for concurrent use.
type Groth16Verifier struct{}

var _ consensus.ProofVerifier = Groth16Verifier{}

func NewGroth16Verifier() Groth16Verifier {
	silenceGnark()
	return Groth16Verifier{}
}

func (Groth16Verifier) VerifyScProof(
	endEpochBlockHash [32]byte,
	prevEndEpochBlockHash [32]byte,
	bts []consensus.BackwardTransfer,
	quality uint64,
	constant consensus.FieldElement,
	proofData consensus.FieldElement,
	proof consensus.ScProof,
	vk consensus.ScVerificationKey,
) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	st := Statement{
		EndEpochBlockHash:     endEpochBlockHash,
		PrevEndEpochBlockHash: prevEndEpochBlockHash,
		BackwardTransfers:     bts,
		Quality:               quality,
		Constant:              constant,
		ProofData:             proofData,
	}
	return verifyStatement(st, proof, vk) == nil
}

// Verify is VerifyScProof with the reason for a rejection.
func Verify(st Statement, proof consensus.ScProof, vk consensus.ScVerificationKey) error {
	return verifyStatement(st, proof, vk)
}

func verifyStatement(st Statement, proof consensus.ScProof, vk consensus.ScVerificationKey) error {
	pub, err := st.decode()
	if err != nil {
		return err
	}
	p, err := DeserializeProof(proof)
	if err != nil {
		return err
	}
	k, err := DeserializeVerificationKey(vk)
	if err != nil {
		return err
	}
	w, err := frontend.NewWitness(pub.assignment(nil), curve.ScalarField(), frontend.PublicOnly())
	if err != nil {
		return err
	}
	return groth16.Verify(p, k, w)
}
