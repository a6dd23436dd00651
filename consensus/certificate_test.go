package consensus

import (
	"strings"
	"testing"
)

func TestNewCertificate_HashIsDeterministic(t *testing.T) {
	a := NewCertificate(sampleBuilder())
	b := NewCertificate(sampleBuilder())
	if a.Hash() != b.Hash() {
		t.Fatalf("identical content, different hashes")
	}
	if a.Hash() == ([32]byte{}) {
		t.Fatalf("hash not computed")
	}
	if !a.Equal(b) {
		t.Fatalf("expected equal certificates")
	}
	if got := sampleBuilder().Hash(); got != a.Hash() {
		t.Fatalf("builder hash %x != finalized %x", got, a.Hash())
	}
}

func TestNewCertificate_EveryFieldAffectsHash(t *testing.T) {
	base := NewCertificate(sampleBuilder()).Hash()
	cases := map[string]func(m *MutableCertificate){
		"version":      func(m *MutableCertificate) { m.Version = 1 },
		"sc_id":        func(m *MutableCertificate) { m.ScID[31] ^= 1 },
		"total_amount": func(m *MutableCertificate) { m.TotalAmount++ },
		"nonce":        func(m *MutableCertificate) { m.Nonce[0] ^= 1 },
		"vout_value":   func(m *MutableCertificate) { m.Outputs[0].Value++ },
		"vout_script":  func(m *MutableCertificate) { m.Outputs[1].Script = []byte{0x52} },
		"vout_order":   func(m *MutableCertificate) { m.Outputs[0], m.Outputs[1] = m.Outputs[1], m.Outputs[0] },
		"bt_value":     func(m *MutableCertificate) { m.BackwardTransfers[1].Value = 8 },
		"bt_pkh":       func(m *MutableCertificate) { m.BackwardTransfers[0].PubKeyHash[19] = 9 },
		"bt_order": func(m *MutableCertificate) {
			m.BackwardTransfers[0], m.BackwardTransfers[1] = m.BackwardTransfers[1], m.BackwardTransfers[0]
		},
		"bt_extra": func(m *MutableCertificate) { m.AddBackwardTransfer(0, pkh(3)) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			m := sampleBuilder()
			mutate(m)
			if NewCertificate(m).Hash() == base {
				t.Fatalf("hash unchanged after %s mutation", name)
			}
		})
	}
}

func TestCertificate_CopyIsIndependent(t *testing.T) {
	m := sampleBuilder()
	src := NewCertificate(m)
	cp := src.Copy()
	if cp.Hash() != src.Hash() {
		t.Fatalf("copy must keep hash")
	}

	// Builder mutation after finalization does not leak into the certificate.
	m.Outputs[0].Value = 999
	m.Outputs[0].Script[0] = 0xff
	m.BackwardTransfers[0].Value = 999
	if src.Outputs()[0].Value != 4 || src.Outputs()[0].Script[0] != 0x51 {
		t.Fatalf("builder mutation leaked into certificate")
	}

	// Accessor slices are copies.
	outs := src.Outputs()
	outs[0].Script[0] = 0xee
	bts := src.BackwardTransfers()
	bts[0].Value = 1000
	if !cp.Equal(src) {
		t.Fatalf("accessor mutation leaked into certificate")
	}

	// Re-finalizing a mutated builder from the source leaves the copy alone.
	mm := src.Mutable()
	mm.Outputs[0].Value = 1
	changed := NewCertificate(mm)
	if changed.Hash() == cp.Hash() || cp.Outputs()[0].Value != 4 {
		t.Fatalf("copy affected by source-derived mutation")
	}
}

func TestCertificate_Assign(t *testing.T) {
	src := NewCertificate(sampleBuilder())
	dst := EmptyCertificate()
	emptyHash := dst.Hash()
	dst.Assign(src)
	if dst.Hash() != src.Hash() || !dst.Equal(src) {
		t.Fatalf("assign mismatch")
	}
	dst.Assign(nil)
	if dst.Hash() != emptyHash || !dst.IsNull() {
		t.Fatalf("assign nil must reset to empty certificate")
	}
}

func TestCertificate_UpdateHashIsStable(t *testing.T) {
	c := NewCertificate(sampleBuilder())
	h := c.Hash()
	c.UpdateHash()
	if c.Hash() != h {
		t.Fatalf("refresh changed hash of unchanged content")
	}
}

func TestEmptyCertificate(t *testing.T) {
	c := EmptyCertificate()
	if !c.IsNull() {
		t.Fatalf("expected null certificate")
	}
	if c.Version() != CERT_VERSION {
		t.Fatalf("version=%d", c.Version())
	}
	if NewCertificate(nil).Hash() != c.Hash() {
		t.Fatalf("nil builder must finalize to the empty certificate")
	}
	if v, err := c.ValueOut(); err != nil || v != 0 {
		t.Fatalf("ValueOut=%d err=%v", v, err)
	}
}

func TestBackwardTransferOutput_Hash(t *testing.T) {
	a := BackwardTransferOutput{Value: 5, PubKeyHash: pkh(1)}
	b := BackwardTransferOutput{Value: 5, PubKeyHash: pkh(1)}
	if a.Hash() != b.Hash() {
		t.Fatalf("same content, different hash")
	}
	b.Value = 6
	if a.Hash() == b.Hash() {
		t.Fatalf("value change did not change hash")
	}
}

func TestCertificate_String(t *testing.T) {
	s := NewCertificate(sampleBuilder()).String()
	for _, want := range []string{"Certificate(", "total_amount=0.00000020", "vout=2", "vbt_ccout=2"} {
		if !strings.Contains(s, want) {
			t.Fatalf("%q missing %q", s, want)
		}
	}
}
