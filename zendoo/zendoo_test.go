package zendoo

import (
	"bytes"
	"context"
	"math/big"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/stretchr/testify/require"

	"sccert.dev/node/consensus"
)

var (
	setupOnce sync.Once
	testProv  *Prover
	testVK    consensus.ScVerificationKey
	setupErr  error
)

func fixture(t *testing.T) (*Prover, consensus.ScVerificationKey) {
	t.Helper()
	setupOnce.Do(func() {
		testProv, testVK, setupErr = Setup()
	})
	require.NoError(t, setupErr)
	return testProv, testVK
}

func hash32(b byte) [32]byte {
	var out [32]byte
	for i := range out {
		out[i] = b
	}
	return out
}

func sampleCert() *consensus.Certificate {
	m := consensus.NewMutableCertificate(hash32(0xaa))
	m.TotalAmount = 20
	m.AddOutput(4, []byte{0x51})
	m.AddOutput(6, []byte{0x52})
	m.AddBackwardTransfer(5, [20]byte{1})
	m.AddBackwardTransfer(7, [20]byte{2})
	return m.Finalize()
}

func field(v uint64) consensus.FieldElement {
	var e fr.Element
	e.SetUint64(v)
	return SerializeField(e)
}

// provenInput returns a proof input for cert that a correct verifier accepts.
func provenInput(t *testing.T, cert *consensus.Certificate, quality uint64) consensus.CertificateProofInput {
	t.Helper()
	prov, vk := fixture(t)
	in := consensus.CertificateProofInput{
		EndEpochBlockHash:     hash32(0x20),
		PrevEndEpochBlockHash: hash32(0x10),
		Quality:               quality,
		Constant:              field(42),
		VerificationKey:       vk,
	}
	var root fr.Element
	root.SetUint64(0xdeadbeef)

	st, err := StatementFor(cert, in)
	require.NoError(t, err)
	in.ProofData, err = ProofDataFor(st, root)
	require.NoError(t, err)
	st.ProofData = in.ProofData
	in.Proof, err = prov.Prove(st, root)
	require.NoError(t, err)
	return in
}

func TestGroth16Verifier_AcceptsValidProof(t *testing.T) {
	cert := sampleCert()
	in := provenInput(t, cert, 3)
	require.NoError(t, consensus.VerifyCertificate(NewGroth16Verifier(), cert, in))

	st, err := StatementFor(cert, in)
	require.NoError(t, err)
	require.NoError(t, Verify(st, in.Proof, in.VerificationKey))
}

func TestGroth16Verifier_RejectsTampering(t *testing.T) {
	cert := sampleCert()
	in := provenInput(t, cert, 3)
	v := NewGroth16Verifier()

	cases := map[string]func(in *consensus.CertificateProofInput){
		"proof_bit_flip": func(in *consensus.CertificateProofInput) {
			p := append(consensus.ScProof(nil), in.Proof...)
			p[5] ^= 0x01
			in.Proof = p
		},
		"proof_truncated": func(in *consensus.CertificateProofInput) { in.Proof = in.Proof[:len(in.Proof)-1] },
		"proof_trailing": func(in *consensus.CertificateProofInput) {
			in.Proof = append(append(consensus.ScProof(nil), in.Proof...), 0)
		},
		"proof_nil":     func(in *consensus.CertificateProofInput) { in.Proof = nil },
		"proof_garbage": func(in *consensus.CertificateProofInput) { in.Proof = bytes.Repeat([]byte{0xff}, len(in.Proof)) },
		"vk_bit_flip": func(in *consensus.CertificateProofInput) {
			k := append(consensus.ScVerificationKey(nil), in.VerificationKey...)
			k[3] ^= 0x01
			in.VerificationKey = k
		},
		"vk_nil":            func(in *consensus.CertificateProofInput) { in.VerificationKey = nil },
		"quality":           func(in *consensus.CertificateProofInput) { in.Quality++ },
		"end_epoch":         func(in *consensus.CertificateProofInput) { in.EndEpochBlockHash[0] ^= 1 },
		"prev_end_epoch":    func(in *consensus.CertificateProofInput) { in.PrevEndEpochBlockHash[31] ^= 1 },
		"constant":          func(in *consensus.CertificateProofInput) { in.Constant = field(43) },
		"constant_short":    func(in *consensus.CertificateProofInput) { in.Constant = in.Constant[:31] },
		"proof_data":        func(in *consensus.CertificateProofInput) { in.ProofData = field(1) },
		"proof_data_nonfit": func(in *consensus.CertificateProofInput) { in.ProofData = bytes.Repeat([]byte{0xff}, FieldSize) },
	}
	for name, tamper := range cases {
		t.Run(name, func(t *testing.T) {
			bad := in
			tamper(&bad)
			err := consensus.VerifyCertificate(v, cert, bad)
			require.True(t, consensus.IsProofRejected(err), "got %v", err)
		})
	}
}

func TestGroth16Verifier_RejectsProofForOtherCertificate(t *testing.T) {
	cert := sampleCert()
	in := provenInput(t, cert, 3)

	m := cert.Mutable()
	m.BackwardTransfers[1].Value = 8
	other := m.Finalize()
	err := consensus.VerifyCertificate(NewGroth16Verifier(), other, in)
	require.True(t, consensus.IsProofRejected(err), "got %v", err)

	// Reordering backward transfers changes the commitment too.
	m = cert.Mutable()
	m.BackwardTransfers[0], m.BackwardTransfers[1] = m.BackwardTransfers[1], m.BackwardTransfers[0]
	err = consensus.VerifyCertificate(NewGroth16Verifier(), m.Finalize(), in)
	require.True(t, consensus.IsProofRejected(err), "got %v", err)
}

func TestProver_RefusesWrongProofData(t *testing.T) {
	prov, _ := fixture(t)
	st, err := StatementFor(sampleCert(), consensus.CertificateProofInput{Constant: field(1)})
	require.NoError(t, err)
	st.ProofData = field(2)
	var root fr.Element
	root.SetUint64(9)
	_, err = prov.Prove(st, root)
	require.Error(t, err)
}

func TestProver_ProvingKeyRoundTrip(t *testing.T) {
	prov, vk := fixture(t)
	var buf bytes.Buffer
	require.NoError(t, prov.WriteProvingKey(&buf))
	loaded, err := LoadProver(&buf)
	require.NoError(t, err)

	cert := sampleCert()
	in := provenInput(t, cert, 11)
	st, err := StatementFor(cert, in)
	require.NoError(t, err)
	var root fr.Element
	root.SetUint64(0xdeadbeef)
	proof, err := loaded.Prove(st, root)
	require.NoError(t, err)
	require.True(t, NewGroth16Verifier().VerifyScProof(st.EndEpochBlockHash, st.PrevEndEpochBlockHash,
		st.BackwardTransfers, st.Quality, st.Constant, st.ProofData, proof, vk))
}

func TestLoadVerificationKey(t *testing.T) {
	_, vk := fixture(t)
	dir := t.TempDir()

	good := filepath.Join(dir, "sc.vk")
	require.NoError(t, os.WriteFile(good, vk, 0o600))
	got, err := LoadVerificationKey(good)
	require.NoError(t, err)
	require.Equal(t, []byte(vk), []byte(got))

	bad := filepath.Join(dir, "bad.vk")
	require.NoError(t, os.WriteFile(bad, []byte("not a key"), 0o600))
	_, err = LoadVerificationKey(bad)
	require.Error(t, err)

	_, err = LoadVerificationKey(filepath.Join(dir, "missing.vk"))
	require.Error(t, err)
}

func TestDeserializeField(t *testing.T) {
	e, err := DeserializeField(field(7))
	require.NoError(t, err)
	require.True(t, e.IsUint64() && e.Uint64() == 7)

	_, err = DeserializeField(nil)
	require.Error(t, err)
	_, err = DeserializeField(bytes.Repeat([]byte{0xff}, FieldSize))
	require.Error(t, err)
}

func TestBackwardTransferCommitment_OrderSensitive(t *testing.T) {
	a := []consensus.BackwardTransfer{{PubKeyHash: [20]byte{1}, Amount: 5}, {PubKeyHash: [20]byte{2}, Amount: 7}}
	b := []consensus.BackwardTransfer{a[1], a[0]}
	ca, cb := BackwardTransferCommitment(a), BackwardTransferCommitment(b)
	require.False(t, ca.Equal(&cb))
	again := BackwardTransferCommitment(a)
	require.True(t, ca.Equal(&again))
}

func TestTransitionCommitment_HashesCongruentModFieldDiffer(t *testing.T) {
	var h [32]byte
	h[31] = 1
	var shifted [32]byte
	new(big.Int).Add(new(big.Int).SetBytes(h[:]), fr.Modulus()).FillBytes(shifted[:])

	var reduced fr.Element
	reduced.SetBytes(shifted[:])
	require.True(t, reduced.IsOne(), "shifted hash must reduce to the same field element")

	hi1, lo1 := hashLimbs(h)
	hi2, lo2 := hashLimbs(shifted)
	require.False(t, hi1.Equal(&hi2) && lo1.Equal(&lo2))

	var constant, root fr.Element
	constant.SetUint64(42)
	root.SetUint64(7)
	a := TransitionCommitment(h, [32]byte{}, nil, 1, constant, root)
	b := TransitionCommitment(shifted, [32]byte{}, nil, 1, constant, root)
	require.False(t, a.Equal(&b))
	a = TransitionCommitment([32]byte{}, h, nil, 1, constant, root)
	b = TransitionCommitment([32]byte{}, shifted, nil, 1, constant, root)
	require.False(t, a.Equal(&b))
}

func TestCachingVerifier(t *testing.T) {
	var calls atomic.Int32
	inner := consensus.VerifierFunc(func(_ [32]byte, _ [32]byte, _ []consensus.BackwardTransfer, quality uint64,
		_ consensus.FieldElement, _ consensus.FieldElement, _ consensus.ScProof, _ consensus.ScVerificationKey) bool {
		calls.Add(1)
		return quality%2 == 0
	})
	cv, err := NewCachingVerifier(context.Background(), inner, CacheConfig{MaxSizeMB: 8})
	require.NoError(t, err)
	defer func() { require.NoError(t, cv.Close()) }()

	cert := sampleCert()
	even := consensus.CertificateProofInput{Quality: 2, Proof: consensus.ScProof{1}}
	odd := consensus.CertificateProofInput{Quality: 3, Proof: consensus.ScProof{1}}
	for i := 0; i < 3; i++ {
		require.NoError(t, consensus.VerifyCertificate(cv, cert, even))
		require.True(t, consensus.IsProofRejected(consensus.VerifyCertificate(cv, cert, odd)))
	}
	require.Equal(t, int32(2), calls.Load())
	require.EqualValues(t, 4, cv.Stats().Hits)

	_, err = NewCachingVerifier(context.Background(), nil, CacheConfig{})
	require.Error(t, err)
}

func TestCallKey_Distinguishes(t *testing.T) {
	base := callKey(hash32(1), hash32(2), nil, 1, []byte{1}, []byte{2}, []byte{3}, []byte{4})
	// Moving a byte across buffer boundaries must change the key.
	shifted := callKey(hash32(1), hash32(2), nil, 1, []byte{1, 2}, []byte{}, []byte{3}, []byte{4})
	require.NotEqual(t, base, shifted)
	require.Equal(t, base, callKey(hash32(1), hash32(2), nil, 1, []byte{1}, []byte{2}, []byte{3}, []byte{4}))
}

func TestVerifyBatch(t *testing.T) {
	accepted := sampleCert()
	m := accepted.Mutable()
	m.Nonce = hash32(9)
	rejected := m.Finalize()
	m = accepted.Mutable()
	m.BackwardTransfers[0].Value = -1
	outOfRange := m.Finalize()

	v := consensus.VerifierFunc(func(_ [32]byte, _ [32]byte, bts []consensus.BackwardTransfer, quality uint64,
		_ consensus.FieldElement, _ consensus.FieldElement, _ consensus.ScProof, _ consensus.ScVerificationKey) bool {
		return quality == 1
	})
	items := []BatchItem{
		{Cert: accepted, Input: consensus.CertificateProofInput{Quality: 1}},
		{Cert: rejected, Input: consensus.CertificateProofInput{Quality: 2}},
		{Cert: outOfRange, Input: consensus.CertificateProofInput{Quality: 1}},
	}
	results, err := VerifyBatch(context.Background(), v, items, 2)
	require.NoError(t, err)
	require.Len(t, results, 3)
	require.NoError(t, results[0])
	require.True(t, consensus.IsProofRejected(results[1]))
	require.True(t, consensus.IsValueRange(results[2]))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = VerifyBatch(ctx, v, items, 1)
	require.ErrorIs(t, err, context.Canceled)
}
