package wire

import (
	"encoding/binary"
	"fmt"

	"duskledger/internal/crypto"
)

// NodeType distinguishes a plain relaying node from one that also votes
// in consensus, carried in the VERSION handshake.
type NodeType uint32

const (
	NodeServer    NodeType = 0
	NodeValidator NodeType = 1
)

// VersionPayload is the payload of MsgVersion: protocol version, this
// node's type, and its peer id (the digest of its long-term public key).
type VersionPayload struct {
	ProtocolVersion uint32
	NodeType        NodeType
	PeerID          crypto.Digest
}

const versionPayloadSize = 4 + 4 + crypto.Size

func (v *VersionPayload) Encode() []byte {
	buf := make([]byte, versionPayloadSize)
	binary.LittleEndian.PutUint32(buf[0:4], v.ProtocolVersion)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(v.NodeType))
	copy(buf[8:8+crypto.Size], v.PeerID[:])
	return buf
}

func DecodeVersion(buf []byte) (VersionPayload, error) {
	if len(buf) != versionPayloadSize {
		return VersionPayload{}, fmt.Errorf("wire: version payload: expected %d bytes, got %d", versionPayloadSize, len(buf))
	}
	var v VersionPayload
	v.ProtocolVersion = binary.LittleEndian.Uint32(buf[0:4])
	v.NodeType = NodeType(binary.LittleEndian.Uint32(buf[4:8]))
	v.PeerID, _ = crypto.DigestFromBytes(buf[8 : 8+crypto.Size])
	return v, nil
}

// InvType names what kind of object an inventory item refers to.
type InvType uint32

const (
	InvBlock   InvType = 0
	InvTx      InvType = 1
	InvAccount InvType = 2
)

// InvItem is one (kind, id) advertisement.
type InvItem struct {
	Type InvType
	ID   crypto.Digest
}

const invItemSize = 4 + crypto.Size

// InventoryList is the shared payload shape of both MsgInventory and
// MsgGetData: a count followed by that many (inv-type, item-id) pairs.
type InventoryList struct {
	Items []InvItem
}

func (l *InventoryList) Encode() []byte {
	buf := make([]byte, 4+len(l.Items)*invItemSize)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(l.Items)))
	o := 4
	for _, item := range l.Items {
		binary.LittleEndian.PutUint32(buf[o:o+4], uint32(item.Type))
		copy(buf[o+4:o+4+crypto.Size], item.ID[:])
		o += invItemSize
	}
	return buf
}

func DecodeInventoryList(buf []byte) (InventoryList, error) {
	if len(buf) < 4 {
		return InventoryList{}, fmt.Errorf("wire: inventory list: %w", ErrBadChecksum)
	}
	count := binary.LittleEndian.Uint32(buf[0:4])
	want := 4 + int(count)*invItemSize
	if len(buf) != want {
		return InventoryList{}, fmt.Errorf("wire: inventory list: expected %d bytes for %d items, got %d", want, count, len(buf))
	}
	items := make([]InvItem, count)
	o := 4
	for i := range items {
		items[i].Type = InvType(binary.LittleEndian.Uint32(buf[o : o+4]))
		items[i].ID, _ = crypto.DigestFromBytes(buf[o+4 : o+4+crypto.Size])
		o += invItemSize
	}
	return InventoryList{Items: items}, nil
}

// ProposalKind distinguishes the two payload shapes BLOCK_PROPOSAL
// carries: a finalized block header proposal, or a candidate TxSet
// proposal, sharing one routing slot as "proposal with inner type".
type ProposalKind uint32

const (
	ProposalBlock  ProposalKind = 0
	ProposalTxSet  ProposalKind = 1
)

// EncodeProposal prefixes inner with a one-word discriminator so a
// MsgBlockProposal payload self-describes which of the two proposal
// shapes it carries.
func EncodeProposal(kind ProposalKind, inner []byte) []byte {
	buf := make([]byte, 4+len(inner))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(kind))
	copy(buf[4:], inner)
	return buf
}

func DecodeProposal(buf []byte) (ProposalKind, []byte, error) {
	if len(buf) < 4 {
		return 0, nil, fmt.Errorf("wire: proposal envelope too short")
	}
	kind := ProposalKind(binary.LittleEndian.Uint32(buf[0:4]))
	return kind, buf[4:], nil
}
