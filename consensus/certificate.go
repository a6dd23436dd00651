package consensus

import (
	"bytes"
	"fmt"
)

// CERT_VERSION marks the certificate variant in the shared record version
// space. It is negative so it can never collide with a transaction version.
const CERT_VERSION int32 = -5

// TxOut is an ordinary ledger-visible payment carried by a certificate.
type TxOut struct {
	Value  Amount
	Script []byte
}

func (o TxOut) clone() TxOut {
	return TxOut{Value: o.Value, Script: append([]byte(nil), o.Script...)}
}

// BackwardTransferOutput moves Value from the sidechain to the main-chain
// address identified by PubKeyHash.
type BackwardTransferOutput struct {
	Value      Amount
	PubKeyHash [20]byte
}

func (o BackwardTransferOutput) appendTo(dst []byte) []byte {
	dst = appendAmount(dst, o.Value)
	return append(dst, o.PubKeyHash[:]...)
}

func (o BackwardTransferOutput) Hash() [32]byte {
	return sha3_256(o.appendTo(nil))
}

// Certificate is the finalized, immutable form. The identity hash is fixed
// when the value is built and every accessor hands out copies, so the cached
// hash can never go stale.
type Certificate struct {
	hash        [32]byte
	version     int32
	vout        []TxOut
	scID        [32]byte
	totalAmount Amount
	vbtOut      []BackwardTransferOutput
	nonce       [32]byte
}

// EmptyCertificate returns a certificate with no outputs and zero identifiers.
func EmptyCertificate() *Certificate {
	return NewCertificate(&MutableCertificate{Version: CERT_VERSION})
}

// NewCertificate finalizes a builder. The builder may be reused afterwards;
// nothing is shared with the returned certificate.
func NewCertificate(m *MutableCertificate) *Certificate {
	if m == nil {
		return EmptyCertificate()
	}
	c := &Certificate{
		version:     m.Version,
		vout:        cloneOutputs(m.Outputs),
		scID:        m.ScID,
		totalAmount: m.TotalAmount,
		vbtOut:      cloneBackwardTransfers(m.BackwardTransfers),
		nonce:       m.Nonce,
	}
	c.UpdateHash()
	return c
}

// Copy returns an independent duplicate carrying the already computed hash.
func (c *Certificate) Copy() *Certificate {
	if c == nil {
		return nil
	}
	out := new(Certificate)
	out.Assign(c)
	return out
}

// Assign overwrites c with a deep copy of src, keeping src's hash.
func (c *Certificate) Assign(src *Certificate) {
	if src == nil {
		*c = *EmptyCertificate()
		return
	}
	c.hash = src.hash
	c.version = src.version
	c.vout = cloneOutputs(src.vout)
	c.scID = src.scID
	c.totalAmount = src.totalAmount
	c.vbtOut = cloneBackwardTransfers(src.vbtOut)
	c.nonce = src.nonce
}

// UpdateHash recomputes the identity hash from the serialized content.
func (c *Certificate) UpdateHash() {
	c.hash = sha3_256(c.appendTo(nil))
}

// Mutable returns a builder holding a deep copy of c.
func (c *Certificate) Mutable() *MutableCertificate {
	return &MutableCertificate{
		Version:           c.version,
		Outputs:           cloneOutputs(c.vout),
		ScID:              c.scID,
		TotalAmount:       c.totalAmount,
		BackwardTransfers: cloneBackwardTransfers(c.vbtOut),
		Nonce:             c.nonce,
	}
}

func (c *Certificate) Hash() [32]byte      { return c.hash }
func (c *Certificate) Version() int32      { return c.version }
func (c *Certificate) ScID() [32]byte      { return c.scID }
func (c *Certificate) TotalAmount() Amount { return c.totalAmount }
func (c *Certificate) Nonce() [32]byte     { return c.nonce }
func (c *Certificate) NumOutputs() int     { return len(c.vout) }
func (c *Certificate) NumBackwardTransfers() int {
	return len(c.vbtOut)
}

func (c *Certificate) Outputs() []TxOut { return cloneOutputs(c.vout) }

func (c *Certificate) BackwardTransfers() []BackwardTransferOutput {
	return cloneBackwardTransfers(c.vbtOut)
}

func (c *Certificate) IsNull() bool {
	return len(c.vout) == 0 && len(c.vbtOut) == 0 && c.totalAmount == 0 &&
		c.scID == ([32]byte{}) && c.nonce == ([32]byte{})
}

// Equal compares serialized content; two equal certificates share a hash.
func (c *Certificate) Equal(o *Certificate) bool {
	if c == nil || o == nil {
		return c == o
	}
	return bytes.Equal(c.appendTo(nil), o.appendTo(nil))
}

func (c *Certificate) String() string {
	return fmt.Sprintf("Certificate(hash=%x, ver=%d, sc_id=%x, total_amount=%s, vout=%d, vbt_ccout=%d, nonce=%x)",
		c.hash[:8], c.version, c.scID[:8], c.totalAmount, len(c.vout), len(c.vbtOut), c.nonce[:8])
}

// MutableCertificate is the staging form used while a certificate is being
// assembled. It carries no cached hash.
type MutableCertificate struct {
	Version           int32
	Outputs           []TxOut
	ScID              [32]byte
	TotalAmount       Amount
	BackwardTransfers []BackwardTransferOutput
	Nonce             [32]byte
}

func NewMutableCertificate(scID [32]byte) *MutableCertificate {
	return &MutableCertificate{Version: CERT_VERSION, ScID: scID}
}

func (m *MutableCertificate) AddOutput(value Amount, script []byte) *MutableCertificate {
	m.Outputs = append(m.Outputs, TxOut{Value: value, Script: append([]byte(nil), script...)})
	return m
}

func (m *MutableCertificate) AddBackwardTransfer(value Amount, pubKeyHash [20]byte) *MutableCertificate {
	m.BackwardTransfers = append(m.BackwardTransfers, BackwardTransferOutput{Value: value, PubKeyHash: pubKeyHash})
	return m
}

// Hash computes the hash the staged content would finalize to. It is not cached.
func (m *MutableCertificate) Hash() [32]byte {
	return NewCertificate(m).Hash()
}

func (m *MutableCertificate) Finalize() *Certificate {
	return NewCertificate(m)
}

func cloneOutputs(in []TxOut) []TxOut {
	if in == nil {
		return nil
	}
	out := make([]TxOut, len(in))
	for i, o := range in {
		out[i] = o.clone()
	}
	return out
}

func cloneBackwardTransfers(in []BackwardTransferOutput) []BackwardTransferOutput {
	if in == nil {
		return nil
	}
	return append([]BackwardTransferOutput(nil), in...)
}
