package zendoo

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"

	"sccert.dev/node/consensus"
)

// FieldSize is the byte length of a serialized field element.
const FieldSize = fr.Bytes

// DeserializeField decodes a canonical big-endian field element.
func DeserializeField(b consensus.FieldElement) (fr.Element, error) {
	var e fr.Element
	if len(b) != FieldSize {
		return e, fmt.Errorf("field: expected %d bytes, got %d", FieldSize, len(b))
	}
	if err := e.SetBytesCanonical(b); err != nil {
		return e, fmt.Errorf("field: %w", err)
	}
	return e, nil
}

func SerializeField(e fr.Element) consensus.FieldElement {
	b := e.Bytes()
	return consensus.FieldElement(b[:])
}

// hashLimbs splits a 32-byte block hash into its high and low 128-bit
// halves. Each half is below the field modulus, so distinct hashes map to
// distinct limb pairs.
func hashLimbs(h [32]byte) (hi, lo fr.Element) {
	hi.SetBytes(h[:16])
	lo.SetBytes(h[16:])
	return hi, lo
}

func mimcSum(elems ...fr.Element) fr.Element {
	h := mimc.NewMiMC()
	for i := range elems {
		b := elems[i].Bytes()
		_, _ = h.Write(b[:])
	}
	var out fr.Element
	out.SetBytes(h.Sum(nil))
	return out
}

// BackwardTransferCommitment folds the ordered backward transfer list into
// one field element. Order matters.
func BackwardTransferCommitment(bts []consensus.BackwardTransfer) fr.Element {
	elems := make([]fr.Element, 0, 2*len(bts))
	for _, bt := range bts {
		var pk, amt fr.Element
		pk.SetBytes(bt.PubKeyHash[:])
		amt.SetUint64(bt.Amount)
		elems = append(elems, pk, amt)
	}
	return mimcSum(elems...)
}

// TransitionCommitment is the value a valid proof binds as proof data for a
// sidechain whose post-epoch state root is stateRoot.
func TransitionCommitment(
	endEpochBlockHash [32]byte,
	prevEndEpochBlockHash [32]byte,
	bts []consensus.BackwardTransfer,
	quality uint64,
	constant fr.Element,
	stateRoot fr.Element,
) fr.Element {
	var q fr.Element
	q.SetUint64(quality)
	prevHi, prevLo := hashLimbs(prevEndEpochBlockHash)
	endHi, endLo := hashLimbs(endEpochBlockHash)
	return mimcSum(
		constant,
		prevHi, prevLo,
		endHi, endLo,
		BackwardTransferCommitment(bts),
		q,
		stateRoot,
	)
}
