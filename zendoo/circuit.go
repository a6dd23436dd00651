package zendoo

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	"github.com/consensys/gnark/std/hash/mimc"
)

const curve = ecc.BN254

// epochCircuit proves knowledge of the sidechain state root that, together
// with the public epoch data, hashes to ProofData. Block hashes enter as
// 128-bit limbs.
type epochCircuit struct {
	Constant       frontend.Variable `gnark:",public"`
	PrevEndEpochHi frontend.Variable `gnark:",public"`
	PrevEndEpochLo frontend.Variable `gnark:",public"`
	EndEpochHi     frontend.Variable `gnark:",public"`
	EndEpochLo     frontend.Variable `gnark:",public"`
	BtCommitment   frontend.Variable `gnark:",public"`
	Quality        frontend.Variable `gnark:",public"`
	ProofData      frontend.Variable `gnark:",public"`

	StateRoot frontend.Variable
}

func (c *epochCircuit) Define(api frontend.API) error {
	h, err := mimc.NewMiMC(api)
	if err != nil {
		return err
	}
	h.Write(c.Constant, c.PrevEndEpochHi, c.PrevEndEpochLo, c.EndEpochHi, c.EndEpochLo, c.BtCommitment, c.Quality)
	h.Write(c.StateRoot)
	api.AssertIsEqual(h.Sum(), c.ProofData)
	return nil
}

func compileEpochCircuit() (constraint.ConstraintSystem, error) {
	return frontend.Compile(curve.ScalarField(), r1cs.NewBuilder, &epochCircuit{})
}

func bigOf(e fr.Element) *big.Int {
	return e.BigInt(new(big.Int))
}

// publicInputs is the decoded form of one oracle call.
type publicInputs struct {
	constant       fr.Element
	prevEndEpochHi fr.Element
	prevEndEpochLo fr.Element
	endEpochHi     fr.Element
	endEpochLo     fr.Element
	btCommitment   fr.Element
	quality        fr.Element
	proofData      fr.Element
}

func (p publicInputs) assignment(stateRoot *fr.Element) *epochCircuit {
	a := &epochCircuit{
		Constant:       bigOf(p.constant),
		PrevEndEpochHi: bigOf(p.prevEndEpochHi),
		PrevEndEpochLo: bigOf(p.prevEndEpochLo),
		EndEpochHi:     bigOf(p.endEpochHi),
		EndEpochLo:     bigOf(p.endEpochLo),
		BtCommitment:   bigOf(p.btCommitment),
		Quality:        bigOf(p.quality),
		ProofData:      bigOf(p.proofData),
		StateRoot:      0,
	}
	if stateRoot != nil {
		a.StateRoot = bigOf(*stateRoot)
	}
	return a
}
