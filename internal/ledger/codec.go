// Package ledger defines the node's wire-level data objects: transactions,
// blocks and account projections. Every object exposes Size/Serialize/
// Deserialize, little-endian and densely packed, in the idiom of the
// decred/btcd "wire" package's readElements/writeElements helpers.
package ledger

import (
	"encoding/binary"
	"errors"
	"fmt"

	"duskledger/internal/crypto"
)

var (
	ErrShortBuffer    = errors.New("ledger: buffer too short")
	ErrBufferTooSmall = errors.New("ledger: output does not fit in buffer")
	ErrMissingField   = errors.New("ledger: required field is unset")
	ErrTooManyAddrs   = errors.New("ledger: address projection exceeds the endpoint cap")
)

func putUint32(buf []byte, offset int, v uint32) int {
	binary.LittleEndian.PutUint32(buf[offset:offset+4], v)
	return offset + 4
}

func getUint32(buf []byte, offset int) (uint32, int, error) {
	if offset < 0 || offset+4 > len(buf) {
		return 0, offset, ErrShortBuffer
	}
	return binary.LittleEndian.Uint32(buf[offset : offset+4]), offset + 4, nil
}

func putInt64(buf []byte, offset int, v int64) int {
	binary.LittleEndian.PutUint64(buf[offset:offset+8], uint64(v))
	return offset + 8
}

func getInt64(buf []byte, offset int) (int64, int, error) {
	if offset < 0 || offset+8 > len(buf) {
		return 0, offset, ErrShortBuffer
	}
	return int64(binary.LittleEndian.Uint64(buf[offset : offset+8])), offset + 8, nil
}

func putUint64(buf []byte, offset int, v uint64) int {
	binary.LittleEndian.PutUint64(buf[offset:offset+8], v)
	return offset + 8
}

func getUint64(buf []byte, offset int) (uint64, int, error) {
	if offset < 0 || offset+8 > len(buf) {
		return 0, offset, ErrShortBuffer
	}
	return binary.LittleEndian.Uint64(buf[offset : offset+8]), offset + 8, nil
}

func putDigest(buf []byte, offset int, d crypto.Digest) int {
	copy(buf[offset:offset+crypto.Size], d[:])
	return offset + crypto.Size
}

func getDigest(buf []byte, offset int) (crypto.Digest, int, error) {
	if offset < 0 || offset+crypto.Size > len(buf) {
		return crypto.Digest{}, offset, ErrShortBuffer
	}
	d, _ := crypto.DigestFromBytes(buf[offset : offset+crypto.Size])
	return d, offset + crypto.Size, nil
}

// putBytes writes a u32 length prefix followed by b.
func putBytes(buf []byte, offset int, b []byte) int {
	offset = putUint32(buf, offset, uint32(len(b)))
	copy(buf[offset:offset+len(b)], b)
	return offset + len(b)
}

func getBytes(buf []byte, offset int) ([]byte, int, error) {
	n, offset, err := getUint32(buf, offset)
	if err != nil {
		return nil, offset, err
	}
	if offset+int(n) > len(buf) {
		return nil, offset, ErrShortBuffer
	}
	out := make([]byte, n)
	copy(out, buf[offset:offset+int(n)])
	return out, offset + int(n), nil
}

func requireRoom(buf []byte, offset, need int) error {
	if offset+need > len(buf) {
		return fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrBufferTooSmall, need, offset, len(buf))
	}
	return nil
}
