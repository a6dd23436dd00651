package consensus

func h32(b byte) [32]byte {
	var out [32]byte
	for i := range out {
		out[i] = b
	}
	return out
}

func pkh(b byte) [20]byte {
	var out [20]byte
	out[0] = b
	return out
}

// sampleBuilder: two backward transfers (5, 7), total 20, outputs summing to 10.
func sampleBuilder() *MutableCertificate {
	m := NewMutableCertificate(h32(0xaa))
	m.TotalAmount = 20
	m.Nonce = h32(0x01)
	m.AddOutput(4, []byte{0x51})
	m.AddOutput(6, []byte{0x52, 0x53})
	m.AddBackwardTransfer(5, pkh(1))
	m.AddBackwardTransfer(7, pkh(2))
	return m
}
