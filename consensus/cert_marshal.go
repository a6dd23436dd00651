package consensus

import "fmt"

// Layout:
//
//	version i32le
//	vout_count CompactSize | (value i64le | script_len CompactSize | script) * vout_count
//	sc_id 32
//	total_amount i64le
//	vbt_count CompactSize | (value i64le | pubkey_hash 20) * vbt_count
//	nonce 32
func (c *Certificate) appendTo(dst []byte) []byte {
	dst = appendU32le(dst, uint32(c.version)) // #nosec G115 -- bit-preserving conversion.
	dst = appendCompactSize(dst, uint64(len(c.vout)))
	for _, o := range c.vout {
		dst = appendAmount(dst, o.Value)
		dst = appendBytes(dst, o.Script)
	}
	dst = append(dst, c.scID[:]...)
	dst = appendAmount(dst, c.totalAmount)
	dst = appendCompactSize(dst, uint64(len(c.vbtOut)))
	for _, bt := range c.vbtOut {
		dst = bt.appendTo(dst)
	}
	return append(dst, c.nonce[:]...)
}

func (c *Certificate) MarshalBinary() ([]byte, error) {
	return c.appendTo(make([]byte, 0, c.SerializeSize())), nil
}

// SerializeSize is the exact encoded length in bytes.
func (c *Certificate) SerializeSize() int {
	n := 4 + compactSizeLen(uint64(len(c.vout)))
	for _, o := range c.vout {
		n += 8 + compactSizeLen(uint64(len(o.Script))) + len(o.Script)
	}
	n += 32 + 8 + compactSizeLen(uint64(len(c.vbtOut)))
	n += len(c.vbtOut) * (8 + 20)
	return n + 32
}

// ParseCertificate decodes a certificate and computes its identity hash.
// Amounts are not range checked here; that is the job of value accounting.
func ParseCertificate(b []byte) (*Certificate, error) {
	off := 0
	ver, err := readU32le(b, &off)
	if err != nil {
		return nil, err
	}
	m := &MutableCertificate{Version: int32(ver)} // #nosec G115 -- bit-preserving conversion.

	nOut, err := readCount(b, &off, "vout")
	if err != nil {
		return nil, err
	}
	m.Outputs = make([]TxOut, 0, nOut)
	for i := 0; i < nOut; i++ {
		v, err := readAmount(b, &off)
		if err != nil {
			return nil, err
		}
		script, err := readVarBytes(b, &off, "script")
		if err != nil {
			return nil, err
		}
		m.Outputs = append(m.Outputs, TxOut{Value: v, Script: script})
	}

	if m.ScID, err = readHash32(b, &off); err != nil {
		return nil, err
	}
	if m.TotalAmount, err = readAmount(b, &off); err != nil {
		return nil, err
	}

	nBt, err := readCount(b, &off, "vbt_ccout")
	if err != nil {
		return nil, err
	}
	m.BackwardTransfers = make([]BackwardTransferOutput, 0, nBt)
	for i := 0; i < nBt; i++ {
		v, err := readAmount(b, &off)
		if err != nil {
			return nil, err
		}
		pkh, err := readBytes(b, &off, 20)
		if err != nil {
			return nil, err
		}
		bt := BackwardTransferOutput{Value: v}
		copy(bt.PubKeyHash[:], pkh)
		m.BackwardTransfers = append(m.BackwardTransfers, bt)
	}

	if m.Nonce, err = readHash32(b, &off); err != nil {
		return nil, err
	}
	if off != len(b) {
		return nil, certerr(CERT_ERR_PARSE, fmt.Sprintf("trailing bytes: %d", len(b)-off))
	}
	return NewCertificate(m), nil
}
