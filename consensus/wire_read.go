package consensus

import (
	"encoding/binary"
	"fmt"
)

// MAX_CERT_VECTOR_LEN bounds every decoded count so a hostile prefix cannot
// force a huge allocation before the payload is checked.
const MAX_CERT_VECTOR_LEN = 1 << 16

func readU32le(b []byte, off *int) (uint32, error) {
	if *off+4 > len(b) {
		return 0, certerr(CERT_ERR_PARSE, "unexpected EOF (u32le)")
	}
	v := binary.LittleEndian.Uint32(b[*off : *off+4])
	*off += 4
	return v, nil
}

func readU64le(b []byte, off *int) (uint64, error) {
	if *off+8 > len(b) {
		return 0, certerr(CERT_ERR_PARSE, "unexpected EOF (u64le)")
	}
	v := binary.LittleEndian.Uint64(b[*off : *off+8])
	*off += 8
	return v, nil
}

func readAmount(b []byte, off *int) (Amount, error) {
	v, err := readU64le(b, off)
	if err != nil {
		return 0, err
	}
	return Amount(int64(v)), nil // #nosec G115 -- bit-preserving conversion.
}

func readBytes(b []byte, off *int, n int) ([]byte, error) {
	if n < 0 {
		return nil, certerr(CERT_ERR_PARSE, "negative length")
	}
	if *off+n > len(b) {
		return nil, certerr(CERT_ERR_PARSE, "unexpected EOF (bytes)")
	}
	v := b[*off : *off+n]
	*off += n
	return v, nil
}

func readHash32(b []byte, off *int) ([32]byte, error) {
	var out [32]byte
	v, err := readBytes(b, off, 32)
	if err != nil {
		return out, err
	}
	copy(out[:], v)
	return out, nil
}

func readCount(b []byte, off *int, name string) (int, error) {
	if *off > len(b) {
		return 0, certerr(CERT_ERR_PARSE, "unexpected EOF (compactsize)")
	}
	n, used, err := DecodeCompactSize(b[*off:])
	if err != nil {
		return 0, err
	}
	if uint64(n) > MAX_CERT_VECTOR_LEN {
		return 0, certerr(CERT_ERR_PARSE, fmt.Sprintf("%s count %d exceeds limit", name, n))
	}
	*off += used
	return int(n), nil
}

func readVarBytes(b []byte, off *int, name string) ([]byte, error) {
	n, err := readCount(b, off, name)
	if err != nil {
		return nil, err
	}
	v, err := readBytes(b, off, n)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), v...), nil
}
