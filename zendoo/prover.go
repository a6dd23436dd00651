package zendoo

import (
	"bytes"
	"fmt"
	"io"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"

	"sccert.dev/node/consensus"
)

// Prover produces epoch transition proofs. It stands in for the sidechain
// side of the protocol in tests and development networks.
type Prover struct {
	ccs constraint.ConstraintSystem
	pk  groth16.ProvingKey
}

// Setup runs a fresh (non-ceremony) trusted setup and returns the prover
// together with the matching serialized verifying key.
func Setup() (*Prover, consensus.ScVerificationKey, error) {
	silenceGnark()
	ccs, err := compileEpochCircuit()
	if err != nil {
		return nil, nil, fmt.Errorf("compile circuit: %w", err)
	}
	pk, vk, err := groth16.Setup(ccs)
	if err != nil {
		return nil, nil, fmt.Errorf("groth16 setup: %w", err)
	}
	vkBytes, err := SerializeVerificationKey(vk)
	if err != nil {
		return nil, nil, err
	}
	return &Prover{ccs: ccs, pk: pk}, vkBytes, nil
}

// LoadProver rebuilds a prover from a serialized proving key.
func LoadProver(r io.Reader) (*Prover, error) {
	silenceGnark()
	ccs, err := compileEpochCircuit()
	if err != nil {
		return nil, fmt.Errorf("compile circuit: %w", err)
	}
	pk := groth16.NewProvingKey(curve)
	if _, err := pk.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("proving key: %w", err)
	}
	return &Prover{ccs: ccs, pk: pk}, nil
}

func (p *Prover) WriteProvingKey(w io.Writer) error {
	_, err := p.pk.WriteTo(w)
	return err
}

// Prove builds a proof that stateRoot links the statement's public inputs
// to its proof data. The statement's ProofData must equal ProofDataFor(st,
// stateRoot), otherwise the witness does not satisfy the circuit.
func (p *Prover) Prove(st Statement, stateRoot fr.Element) (consensus.ScProof, error) {
	pub, err := st.decode()
	if err != nil {
		return nil, err
	}
	w, err := frontend.NewWitness(pub.assignment(&stateRoot), curve.ScalarField())
	if err != nil {
		return nil, err
	}
	proof, err := groth16.Prove(p.ccs, p.pk, w)
	if err != nil {
		return nil, fmt.Errorf("groth16 prove: %w", err)
	}
	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, err
	}
	return consensus.ScProof(buf.Bytes()), nil
}
