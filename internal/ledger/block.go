package ledger

import (
	"fmt"
	"sort"

	"duskledger/internal/crypto"
	"duskledger/internal/merkle"
)

// BlockHeader is everything a chain-tree node keys on. AccountRoot is the
// zero digest while the header is unexecuted; it is filled in only after
// the block it belongs to is applied to storage (see chain.AssignAccountHashToValid),
// so a zero AccountRoot is not a missing-field error the way a zero
// TxRoot would be.
type BlockHeader struct {
	Version     uint32
	Sequence    uint32
	Size        uint32
	TxRoot      crypto.Digest
	PrevBlockID crypto.Digest
	AccountRoot crypto.Digest
}

const blockHeaderSize = 4 + 4 + 4 + crypto.Size + crypto.Size + crypto.Size

// bytes is the canonical preimage of the block id: the header fields in
// declared order. Block id intentionally depends on AccountRoot, so
// filling it in after execution changes the block's id (see chain.tree,
// which re-keys the node accordingly).
func (h *BlockHeader) bytes() []byte {
	buf := make([]byte, blockHeaderSize)
	o := 0
	o = putUint32(buf, o, h.Version)
	o = putUint32(buf, o, h.Sequence)
	o = putUint32(buf, o, h.Size)
	o = putDigest(buf, o, h.TxRoot)
	o = putDigest(buf, o, h.PrevBlockID)
	putDigest(buf, o, h.AccountRoot)
	return buf
}

// ID computes the block id this header implies: SHA-512(header).
func (h *BlockHeader) ID() crypto.Digest {
	return crypto.Hash(h.bytes())
}

func (h *BlockHeader) HeaderSize() int { return blockHeaderSize }

func (h *BlockHeader) Serialize(buf []byte, offset int) (int, error) {
	if h.TxRoot.IsZero() {
		return offset, fmt.Errorf("ledger: block header %w: transaction root", ErrMissingField)
	}
	if err := requireRoom(buf, offset, blockHeaderSize); err != nil {
		return offset, err
	}
	copy(buf[offset:offset+blockHeaderSize], h.bytes())
	return offset + blockHeaderSize, nil
}

func (h *BlockHeader) Deserialize(buf []byte, offset int) (int, error) {
	start := offset
	var err error
	if h.Version, offset, err = getUint32(buf, offset); err != nil {
		return start, err
	}
	if h.Sequence, offset, err = getUint32(buf, offset); err != nil {
		return start, err
	}
	if h.Size, offset, err = getUint32(buf, offset); err != nil {
		return start, err
	}
	if h.TxRoot, offset, err = getDigest(buf, offset); err != nil {
		return start, err
	}
	if h.PrevBlockID, offset, err = getDigest(buf, offset); err != nil {
		return start, err
	}
	if h.AccountRoot, offset, err = getDigest(buf, offset); err != nil {
		return start, err
	}
	return offset, nil
}

// Block is a header plus the transaction set it commits, already in
// canonical order.
type Block struct {
	Header       BlockHeader
	Transactions []Transaction
	ID           crypto.Digest
}

// NewBlock orders txs canonically, computes the transaction Merkle root
// and the block's body size, and leaves AccountRoot zero for the chain
// tree to fill in once executed.
func NewBlock(sequence uint32, prevBlockID crypto.Digest, txs []Transaction) *Block {
	ordered := make([]Transaction, len(txs))
	copy(ordered, txs)
	sort.Slice(ordered, Order(ordered))

	ids := make([]crypto.Digest, len(ordered))
	bodySize := 4
	for i, tx := range ordered {
		ids[i] = tx.ID
		bodySize += tx.Size()
	}

	b := &Block{
		Header: BlockHeader{
			Version:     1,
			Sequence:    sequence,
			Size:        uint32(bodySize),
			TxRoot:      merkle.Root(ids),
			PrevBlockID: prevBlockID,
		},
		Transactions: ordered,
	}
	b.ComputeID()
	return b
}

func (b *Block) ComputeID() { b.ID = b.Header.ID() }

func (b *Block) Size() int {
	size := blockHeaderSize + 4
	for i := range b.Transactions {
		size += b.Transactions[i].Size()
	}
	return size
}

func (b *Block) Serialize(buf []byte, offset int) (int, error) {
	o, err := b.Header.Serialize(buf, offset)
	if err != nil {
		return offset, err
	}
	if err := requireRoom(buf, o, 4); err != nil {
		return offset, err
	}
	o = putUint32(buf, o, uint32(len(b.Transactions)))
	for i := range b.Transactions {
		o, err = b.Transactions[i].Serialize(buf, o)
		if err != nil {
			return offset, err
		}
	}
	return o, nil
}

func (b *Block) Deserialize(buf []byte, offset int) (int, error) {
	start := offset
	var err error
	if offset, err = b.Header.Deserialize(buf, offset); err != nil {
		return start, err
	}
	var count uint32
	if count, offset, err = getUint32(buf, offset); err != nil {
		return start, err
	}
	b.Transactions = make([]Transaction, count)
	for i := range b.Transactions {
		if offset, err = b.Transactions[i].Deserialize(buf, offset); err != nil {
			return start, err
		}
	}
	b.ComputeID()
	return offset, nil
}
