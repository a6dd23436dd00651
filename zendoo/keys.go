package zendoo

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/consensys/gnark/backend/groth16"

	"sccert.dev/node/consensus"
)

// DeserializeProof decodes a compressed Groth16 proof. Trailing bytes are an error.
func DeserializeProof(b consensus.ScProof) (groth16.Proof, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("proof: empty")
	}
	proof := groth16.NewProof(curve)
	if err := readExact(proof, b); err != nil {
		return nil, fmt.Errorf("proof: %w", err)
	}
	return proof, nil
}

// DeserializeVerificationKey decodes a compressed Groth16 verifying key.
func DeserializeVerificationKey(b consensus.ScVerificationKey) (groth16.VerifyingKey, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("vk: empty")
	}
	vk := groth16.NewVerifyingKey(curve)
	if err := readExact(vk, b); err != nil {
		return nil, fmt.Errorf("vk: %w", err)
	}
	return vk, nil
}

// LoadVerificationKey reads a verifying key file and checks that it decodes.
func LoadVerificationKey(path string) (consensus.ScVerificationKey, error) {
	b, err := os.ReadFile(path) // #nosec G304 -- path is operator supplied config.
	if err != nil {
		return nil, err
	}
	if _, err := DeserializeVerificationKey(b); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return consensus.ScVerificationKey(b), nil
}

func SerializeVerificationKey(vk groth16.VerifyingKey) (consensus.ScVerificationKey, error) {
	var buf bytes.Buffer
	if _, err := vk.WriteTo(&buf); err != nil {
		return nil, err
	}
	return consensus.ScVerificationKey(buf.Bytes()), nil
}

func readExact(dst io.ReaderFrom, b []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("decode panic: %v", r)
		}
	}()
	n, err := dst.ReadFrom(bytes.NewReader(b))
	if err != nil {
		return err
	}
	if n != int64(len(b)) {
		return fmt.Errorf("trailing bytes: %d", int64(len(b))-n)
	}
	return nil
}
