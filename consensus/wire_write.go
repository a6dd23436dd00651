package consensus

import "encoding/binary"

func appendU16le(dst []byte, v uint16) []byte {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	return append(dst, buf[:]...)
}

func appendU32le(dst []byte, v uint32) []byte {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return append(dst, buf[:]...)
}

func appendU64le(dst []byte, v uint64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return append(dst, buf[:]...)
}

// appendAmount writes the two's complement bit pattern of v so that
// out-of-range values survive a round trip and are rejected by accounting,
// not by the codec.
func appendAmount(dst []byte, v Amount) []byte {
	return appendU64le(dst, uint64(v)) // #nosec G115 -- bit-preserving conversion.
}

func appendBytes(dst []byte, b []byte) []byte {
	dst = appendCompactSize(dst, uint64(len(b)))
	return append(dst, b...)
}
