package store

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"sccert.dev/node/consensus"
)

// Coins KV encoding. This is a persistence format, not a consensus wire
// format:
//
//	version i32le | height u64le | created_by_certificate u8 |
//	out_count CompactSize | (value u64le | spent u8 | script_len CompactSize | script) * out_count
func encodeCoins(c consensus.Coins) []byte {
	out := make([]byte, 0, 4+8+1+1+len(c.Outputs)*(8+1+1+25))
	var tmp8 [8]byte
	var tmp4 [4]byte
	binary.LittleEndian.PutUint32(tmp4[:], uint32(c.Version)) // #nosec G115 -- bit-preserving i32 encoding.
	out = append(out, tmp4[:]...)
	binary.LittleEndian.PutUint64(tmp8[:], c.Height)
	out = append(out, tmp8[:]...)
	out = append(out, boolByte(c.CreatedByCertificate))
	out = append(out, consensus.CompactSize(len(c.Outputs)).Encode()...)
	for _, o := range c.Outputs {
		binary.LittleEndian.PutUint64(tmp8[:], uint64(o.Value)) // #nosec G115 -- bit-preserving amount encoding.
		out = append(out, tmp8[:]...)
		out = append(out, boolByte(o.Spent))
		out = append(out, consensus.CompactSize(len(o.Script)).Encode()...)
		out = append(out, o.Script...)
	}
	return out
}

func decodeCoins(b []byte) (consensus.Coins, int, error) {
	var c consensus.Coins
	if len(b) < 4+8+1 {
		return c, 0, errors.New("coins: truncated")
	}
	off := 0
	c.Version = int32(binary.LittleEndian.Uint32(b[off : off+4])) // #nosec G115 -- bit-preserving i32 decoding.
	off += 4
	c.Height = binary.LittleEndian.Uint64(b[off : off+8])
	off += 8
	flag, err := byteBool(b[off])
	if err != nil {
		return c, 0, errors.Wrap(err, "coins: created_by_certificate")
	}
	c.CreatedByCertificate = flag
	off++

	n, used, err := consensus.DecodeCompactSize(b[off:])
	if err != nil {
		return c, 0, errors.Wrap(err, "coins: out_count")
	}
	off += used
	if uint64(n) > uint64(len(b)-off)/(8+1+1) {
		return c, 0, errors.New("coins: out_count exceeds payload")
	}
	if n > 0 {
		c.Outputs = make([]consensus.CoinOut, 0, int(n))
	}
	for i := uint64(0); i < uint64(n); i++ {
		if off+8+1 > len(b) {
			return c, 0, errors.New("coins: truncated output")
		}
		value := consensus.Amount(binary.LittleEndian.Uint64(b[off : off+8])) // #nosec G115 -- bit-preserving amount decoding.
		off += 8
		spent, err := byteBool(b[off])
		if err != nil {
			return c, 0, errors.Wrapf(err, "coins: output %d spent flag", i)
		}
		off++
		sl, used, err := consensus.DecodeCompactSize(b[off:])
		if err != nil {
			return c, 0, errors.Wrapf(err, "coins: output %d script_len", i)
		}
		off += used
		if uint64(sl) > uint64(len(b)-off) {
			return c, 0, errors.Errorf("coins: output %d script truncated", i)
		}
		script := append([]byte(nil), b[off:off+int(sl)]...)
		off += int(sl)
		c.Outputs = append(c.Outputs, consensus.CoinOut{Value: value, Script: script, Spent: spent})
	}
	return c, off, nil
}

func decodeCoinsExact(b []byte) (consensus.Coins, error) {
	c, n, err := decodeCoins(b)
	if err != nil {
		return c, err
	}
	if n != len(b) {
		return c, errors.New("coins: trailing bytes")
	}
	return c, nil
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}

func byteBool(b byte) (bool, error) {
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, errors.Errorf("bad flag byte 0x%02x", b)
	}
}
