package zendoo

import (
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"

	"sccert.dev/node/consensus"
)

// Statement is the public part of an epoch transition, in oracle argument
// order minus the proof and key.
type Statement struct {
	EndEpochBlockHash     [32]byte
	PrevEndEpochBlockHash [32]byte
	BackwardTransfers     []consensus.BackwardTransfer
	Quality               uint64
	Constant              consensus.FieldElement
	ProofData             consensus.FieldElement
}

// StatementFor builds the statement for cert from the epoch-side input.
func StatementFor(cert *consensus.Certificate, in consensus.CertificateProofInput) (Statement, error) {
	bts, err := cert.BackwardTransferList()
	if err != nil {
		return Statement{}, err
	}
	return Statement{
		EndEpochBlockHash:     in.EndEpochBlockHash,
		PrevEndEpochBlockHash: in.PrevEndEpochBlockHash,
		BackwardTransfers:     bts,
		Quality:               in.Quality,
		Constant:              in.Constant,
		ProofData:             in.ProofData,
	}, nil
}

func (s Statement) decode() (publicInputs, error) {
	var p publicInputs
	var err error
	if p.constant, err = DeserializeField(s.Constant); err != nil {
		return p, err
	}
	if p.proofData, err = DeserializeField(s.ProofData); err != nil {
		return p, err
	}
	p.prevEndEpochHi, p.prevEndEpochLo = hashLimbs(s.PrevEndEpochBlockHash)
	p.endEpochHi, p.endEpochLo = hashLimbs(s.EndEpochBlockHash)
	p.btCommitment = BackwardTransferCommitment(s.BackwardTransfers)
	p.quality.SetUint64(s.Quality)
	return p, nil
}

// ProofDataFor returns the proof data a prover holding stateRoot must publish.
func ProofDataFor(s Statement, stateRoot fr.Element) (consensus.FieldElement, error) {
	constant, err := DeserializeField(s.Constant)
	if err != nil {
		return nil, err
	}
	pd := TransitionCommitment(s.EndEpochBlockHash, s.PrevEndEpochBlockHash, s.BackwardTransfers, s.Quality, constant, stateRoot)
	return SerializeField(pd), nil
}
