// Package wire implements the node's on-the-wire message framing: a
// 16-byte envelope (magic, type, size, checksum) in front of every typed
// payload, plus the VERSION/inventory/proposal payload shapes that ride
// inside it. Grounded on original_source/src/Network/Message.hpp.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"duskledger/internal/crypto"
)

// MessageType is both the wire discriminator and, numerically, the
// processor's priority: lower values are drained first.
type MessageType uint32

const (
	MsgVersion       MessageType = 0
	MsgAck           MessageType = 1
	MsgInventory     MessageType = 50
	MsgGetData       MessageType = 51
	MsgTransaction   MessageType = 100
	MsgBlockProposal MessageType = 101
	MsgAccount       MessageType = 102
	MsgBlock         MessageType = 103
)

func (t MessageType) String() string {
	switch t {
	case MsgVersion:
		return "VERSION"
	case MsgAck:
		return "ACK"
	case MsgInventory:
		return "INVENTORY"
	case MsgGetData:
		return "GETDATA"
	case MsgTransaction:
		return "TRANSACTION"
	case MsgBlockProposal:
		return "BLOCK_PROPOSAL"
	case MsgAccount:
		return "ACCOUNT"
	case MsgBlock:
		return "BLOCK"
	default:
		return fmt.Sprintf("MessageType(%d)", uint32(t))
	}
}

// MaxMessageSize is the logical upper bound on a message's payload: a
// block, the largest object on the wire.
const MaxMessageSize = 1 << 20 // 1 MiB

const envelopeSize = 16

// Magic is the first 32 bits of SHA-512("") interpreted as a
// little-endian u32, used as the framing marker at the start of every
// message.
var Magic = computeMagic()

func computeMagic() uint32 {
	h := crypto.Hash(nil)
	return binary.LittleEndian.Uint32(h[:4])
}

var (
	ErrBadMagic        = errors.New("wire: bad magic number")
	ErrBadChecksum     = errors.New("wire: checksum mismatch")
	ErrMessageTooLarge = errors.New("wire: message exceeds maximum size")
)

func checksum(header12, payload []byte) uint32 {
	preimage := make([]byte, 0, len(header12)+len(payload))
	preimage = append(preimage, header12...)
	preimage = append(preimage, payload...)
	h := crypto.Hash(preimage)
	return binary.LittleEndian.Uint32(h[:4])
}

// WriteFrame writes one framed message: envelope followed by payload.
func WriteFrame(w io.Writer, msgType MessageType, payload []byte) error {
	if len(payload) > MaxMessageSize {
		return fmt.Errorf("wire: %w: %d bytes", ErrMessageTooLarge, len(payload))
	}
	buf := make([]byte, envelopeSize+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], Magic)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(msgType))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(payload)))
	binary.LittleEndian.PutUint32(buf[12:16], checksum(buf[0:12], payload))
	copy(buf[envelopeSize:], payload)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("wire: write frame: %w", err)
	}
	return nil
}

// ReadFrame blocks until one full framed message has been read from r,
// validates magic and checksum, and returns the message type and
// payload. A bad magic or checksum is a DecodeFailure: the frame is
// dropped by returning an error, the connection is left open for the
// caller to decide whether repeated failures warrant closing it.
func ReadFrame(r io.Reader) (MessageType, []byte, error) {
	header := make([]byte, envelopeSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, fmt.Errorf("wire: read envelope: %w", err)
	}
	magic := binary.LittleEndian.Uint32(header[0:4])
	if magic != Magic {
		return 0, nil, ErrBadMagic
	}
	msgType := binary.LittleEndian.Uint32(header[4:8])
	size := binary.LittleEndian.Uint32(header[8:12])
	wantChecksum := binary.LittleEndian.Uint32(header[12:16])
	if size > MaxMessageSize {
		return 0, nil, fmt.Errorf("wire: %w: claimed %d bytes", ErrMessageTooLarge, size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, fmt.Errorf("wire: read payload: %w", err)
	}
	if checksum(header[0:12], payload) != wantChecksum {
		return 0, nil, ErrBadChecksum
	}
	return MessageType(msgType), payload, nil
}
