package node

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/sha3"

	"sccert.dev/node/consensus"
)

// Block carries the certificates included at one height, in inclusion
// order. Everything else about the block lives outside this core.
type Block struct {
	PrevHash     [32]byte
	Height       uint64
	Certificates []*consensus.Certificate
}

func (b *Block) AddCertificate(cert *consensus.Certificate) {
	b.Certificates = append(b.Certificates, cert)
}

// Hash commits to the parent, the height and the certificate hashes in order.
func (b *Block) Hash() [32]byte {
	h := sha3.New256()
	h.Write(b.PrevHash[:])
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], b.Height)
	h.Write(tmp[:])
	for _, c := range b.Certificates {
		ch := c.Hash()
		h.Write(ch[:])
	}
	var out [32]byte
	h.Sum(out[:0])
	return out
}

var (
	ErrNilCertificate       = errors.New("nil certificate")
	ErrNegativeFee          = errors.New("certificate fee is negative")
	ErrDuplicateCertificate = errors.New("certificate already in template")
)

// CertificateFee returns the fee cert pays to its block. The ledger core
// accepts any signed fee; blocks assembled or connected by this node only
// carry certificates whose fee is non-negative.
func CertificateFee(cert *consensus.Certificate) (consensus.Amount, error) {
	if cert == nil {
		return 0, ErrNilCertificate
	}
	fee, err := cert.FeeAmount()
	if err != nil {
		return 0, err
	}
	if fee < 0 {
		return 0, fmt.Errorf("%w: %s", ErrNegativeFee, fee)
	}
	return fee, nil
}

// BlockTemplate assembles a candidate block. Unlike the ledger core it
// refuses certificates whose fee is negative.
type BlockTemplate struct {
	Block
	Fees []consensus.Amount

	seen map[[32]byte]struct{}
}

func NewBlockTemplate(prevHash [32]byte, height uint64) *BlockTemplate {
	return &BlockTemplate{
		Block: Block{PrevHash: prevHash, Height: height},
		seen:  make(map[[32]byte]struct{}),
	}
}

// AddCertificate includes cert with the fee the caller computed for it.
func (t *BlockTemplate) AddCertificate(cert *consensus.Certificate, fee consensus.Amount) error {
	if cert == nil {
		return ErrNilCertificate
	}
	if fee < 0 {
		return fmt.Errorf("%w: %s", ErrNegativeFee, fee)
	}
	if !consensus.MoneyRange(fee) {
		return fmt.Errorf("fee %s out of range", fee)
	}
	h := cert.Hash()
	if _, ok := t.seen[h]; ok {
		return fmt.Errorf("%w: %x", ErrDuplicateCertificate, h[:8])
	}
	t.seen[h] = struct{}{}
	t.Block.AddCertificate(cert)
	t.Fees = append(t.Fees, fee)
	return nil
}

// AddCertificateWithFee computes the fee from the certificate itself.
func (t *BlockTemplate) AddCertificateWithFee(cert *consensus.Certificate) error {
	fee, err := CertificateFee(cert)
	if err != nil {
		return err
	}
	return t.AddCertificate(cert, fee)
}

// TotalFees sums the fees of every included certificate.
func (t *BlockTemplate) TotalFees() (consensus.Amount, error) {
	var total consensus.Amount
	for _, f := range t.Fees {
		total += f
		if !consensus.MoneyRange(total) {
			return 0, fmt.Errorf("total fees out of range")
		}
	}
	return total, nil
}
