package consensus

import "encoding/binary"

// CompactSize is the variable-length count prefix used for every vector in
// the certificate encoding. Decoding rejects non-minimal forms so that each
// certificate has exactly one byte representation.
type CompactSize uint64

func (c CompactSize) Encode() []byte {
	return appendCompactSize(nil, uint64(c))
}

func appendCompactSize(dst []byte, n uint64) []byte {
	switch {
	case n < 0xfd:
		return append(dst, byte(n))
	case n <= 0xffff:
		return appendU16le(append(dst, 0xfd), uint16(n))
	case n <= 0xffffffff:
		return appendU32le(append(dst, 0xfe), uint32(n))
	default:
		return appendU64le(append(dst, 0xff), n)
	}
}

func compactSizeLen(n uint64) int {
	switch {
	case n < 0xfd:
		return 1
	case n <= 0xffff:
		return 3
	case n <= 0xffffffff:
		return 5
	default:
		return 9
	}
}

func DecodeCompactSize(b []byte) (CompactSize, int, error) {
	if len(b) < 1 {
		return 0, 0, certerr(CERT_ERR_PARSE, "compactsize: empty")
	}
	tag := b[0]
	switch {
	case tag < 0xfd:
		return CompactSize(tag), 1, nil
	case tag == 0xfd:
		if len(b) < 3 {
			return 0, 0, certerr(CERT_ERR_PARSE, "compactsize: truncated u16")
		}
		n := uint64(binary.LittleEndian.Uint16(b[1:3]))
		if n < 0xfd {
			return 0, 0, certerr(CERT_ERR_PARSE, "compactsize: non-minimal u16")
		}
		return CompactSize(n), 3, nil
	case tag == 0xfe:
		if len(b) < 5 {
			return 0, 0, certerr(CERT_ERR_PARSE, "compactsize: truncated u32")
		}
		n := uint64(binary.LittleEndian.Uint32(b[1:5]))
		if n <= 0xffff {
			return 0, 0, certerr(CERT_ERR_PARSE, "compactsize: non-minimal u32")
		}
		return CompactSize(n), 5, nil
	default:
		if len(b) < 9 {
			return 0, 0, certerr(CERT_ERR_PARSE, "compactsize: truncated u64")
		}
		n := binary.LittleEndian.Uint64(b[1:9])
		if n <= 0xffffffff {
			return 0, 0, certerr(CERT_ERR_PARSE, "compactsize: non-minimal u64")
		}
		return CompactSize(n), 9, nil
	}
}
