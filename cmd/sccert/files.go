package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"sccert.dev/node/consensus"
	"sccert.dev/node/node"
)

type outputJSON struct {
	Value  int64  `json:"value"`
	Script string `json:"script"`
}

type backwardTransferJSON struct {
	Value      int64  `json:"value"`
	PubKeyHash string `json:"pubkey_hash"`
}

// certificateJSON is the operator-facing certificate file. Byte fields are
// hex; amounts are in base units.
type certificateJSON struct {
	Version           *int32                 `json:"version,omitempty"`
	ScID              string                 `json:"sc_id"`
	TotalAmount       int64                  `json:"total_amount"`
	Nonce             string                 `json:"nonce"`
	Outputs           []outputJSON           `json:"outputs"`
	BackwardTransfers []backwardTransferJSON `json:"backward_transfers"`
}

// proofInputJSON carries the epoch side of a proof check. proof_data and
// proof are empty in an epoch file handed to prove.
type proofInputJSON struct {
	EndEpochBlockHash     string `json:"end_epoch_block_hash"`
	PrevEndEpochBlockHash string `json:"prev_end_epoch_block_hash"`
	Quality               uint64 `json:"quality"`
	Constant              string `json:"constant"`
	ProofData             string `json:"proof_data,omitempty"`
	Proof                 string `json:"proof,omitempty"`
}

func hexDecodeStrict(s string) ([]byte, error) {
	cleaned := strings.Join(strings.Fields(s), "")
	return hex.DecodeString(strings.TrimPrefix(cleaned, "0x"))
}

func hexFixed(dst []byte, s string, what string) error {
	b, err := hexDecodeStrict(s)
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if len(b) != len(dst) {
		return fmt.Errorf("%s: expected %d bytes, got %d", what, len(dst), len(b))
	}
	copy(dst, b)
	return nil
}

func (j certificateJSON) certificate() (*consensus.Certificate, error) {
	var scID [32]byte
	if err := hexFixed(scID[:], j.ScID, "sc_id"); err != nil {
		return nil, err
	}
	m := consensus.NewMutableCertificate(scID)
	if j.Version != nil {
		m.Version = *j.Version
	}
	if j.Nonce != "" {
		if err := hexFixed(m.Nonce[:], j.Nonce, "nonce"); err != nil {
			return nil, err
		}
	}
	m.TotalAmount = consensus.Amount(j.TotalAmount)
	for i, o := range j.Outputs {
		script, err := hexDecodeStrict(o.Script)
		if err != nil {
			return nil, fmt.Errorf("outputs[%d].script: %w", i, err)
		}
		m.AddOutput(consensus.Amount(o.Value), script)
	}
	for i, bt := range j.BackwardTransfers {
		var h [20]byte
		if err := hexFixed(h[:], bt.PubKeyHash, fmt.Sprintf("backward_transfers[%d].pubkey_hash", i)); err != nil {
			return nil, err
		}
		m.AddBackwardTransfer(consensus.Amount(bt.Value), h)
	}
	return m.Finalize(), nil
}

func (j proofInputJSON) input() (consensus.CertificateProofInput, error) {
	var in consensus.CertificateProofInput
	if err := hexFixed(in.EndEpochBlockHash[:], j.EndEpochBlockHash, "end_epoch_block_hash"); err != nil {
		return in, err
	}
	if err := hexFixed(in.PrevEndEpochBlockHash[:], j.PrevEndEpochBlockHash, "prev_end_epoch_block_hash"); err != nil {
		return in, err
	}
	in.Quality = j.Quality
	var err error
	if in.Constant, err = hexDecodeStrict(j.Constant); err != nil {
		return in, fmt.Errorf("constant: %w", err)
	}
	if in.ProofData, err = hexDecodeStrict(j.ProofData); err != nil {
		return in, fmt.Errorf("proof_data: %w", err)
	}
	if in.Proof, err = hexDecodeStrict(j.Proof); err != nil {
		return in, fmt.Errorf("proof: %w", err)
	}
	return in, nil
}

func proofInputFrom(in consensus.CertificateProofInput) proofInputJSON {
	return proofInputJSON{
		EndEpochBlockHash:     hex.EncodeToString(in.EndEpochBlockHash[:]),
		PrevEndEpochBlockHash: hex.EncodeToString(in.PrevEndEpochBlockHash[:]),
		Quality:               in.Quality,
		Constant:              hex.EncodeToString(in.Constant),
		ProofData:             hex.EncodeToString(in.ProofData),
		Proof:                 hex.EncodeToString(in.Proof),
	}
}

func readJSONFile(path string, v any) error {
	raw, err := node.ReadOperatorFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func writeJSONFile(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(b, '\n'), 0o600)
}

func loadCertificate(path string) (*consensus.Certificate, error) {
	var j certificateJSON
	if err := readJSONFile(path, &j); err != nil {
		return nil, err
	}
	c, err := j.certificate()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func loadProofInput(path string) (consensus.CertificateProofInput, error) {
	var j proofInputJSON
	if err := readJSONFile(path, &j); err != nil {
		return consensus.CertificateProofInput{}, err
	}
	in, err := j.input()
	if err != nil {
		return in, fmt.Errorf("%s: %w", path, err)
	}
	return in, nil
}

func parseHash(s string) ([32]byte, error) {
	var h [32]byte
	err := hexFixed(h[:], s, "hash")
	return h, err
}
