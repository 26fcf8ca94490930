package ledger

import (
	"fmt"
	"sort"

	"duskledger/internal/crypto"
	"duskledger/internal/merkle"
)

// BlockProposal is what a node broadcasts when it accepts a block locally:
// a claim "this header is my finalized block", signed by the issuer.
type BlockProposal struct {
	IssuerID  crypto.Digest
	BlockID   crypto.Digest
	Header    BlockHeader
	Signature []byte
}

func (p *BlockProposal) signedBody() []byte {
	buf := make([]byte, crypto.Size+crypto.Size)
	o := putDigest(buf, 0, p.IssuerID)
	putDigest(buf, o, p.BlockID)
	return buf
}

func (p *BlockProposal) Sign(signer crypto.Signer, sk []byte) error {
	sig, err := signer.Sign(sk, p.signedBody())
	if err != nil {
		return fmt.Errorf("ledger: sign block proposal: %w", err)
	}
	p.Signature = sig
	return nil
}

func (p *BlockProposal) VerifySignature(signer crypto.Signer, pk []byte) bool {
	if len(p.Signature) == 0 {
		return false
	}
	return signer.Verify(pk, p.Signature, p.signedBody())
}

func (p *BlockProposal) Size() int {
	return crypto.Size + crypto.Size + blockHeaderSize + 4 + len(p.Signature)
}

func (p *BlockProposal) Serialize(buf []byte, offset int) (int, error) {
	if len(p.Signature) == 0 {
		return offset, fmt.Errorf("ledger: block proposal %w: signature", ErrMissingField)
	}
	if err := requireRoom(buf, offset, p.Size()); err != nil {
		return offset, err
	}
	o := putDigest(buf, offset, p.IssuerID)
	o = putDigest(buf, o, p.BlockID)
	var err error
	if o, err = p.Header.Serialize(buf, o); err != nil {
		return offset, err
	}
	o = putBytes(buf, o, p.Signature)
	return o, nil
}

func (p *BlockProposal) Deserialize(buf []byte, offset int) (int, error) {
	start := offset
	var err error
	if p.IssuerID, offset, err = getDigest(buf, offset); err != nil {
		return start, err
	}
	if p.BlockID, offset, err = getDigest(buf, offset); err != nil {
		return start, err
	}
	if offset, err = p.Header.Deserialize(buf, offset); err != nil {
		return start, err
	}
	if p.Signature, offset, err = getBytes(buf, offset); err != nil {
		return start, err
	}
	return offset, nil
}

// TxSetProposal is a node's current candidate transaction set for the
// round in progress, re-issued with an incrementing Sequence each time
// the set changes.
type TxSetProposal struct {
	Sequence        uint32
	Timestamp       int64
	IssuerID        crypto.Digest
	Root            crypto.Digest
	PreviousBlockID crypto.Digest
	Signature       []byte
	Transactions    []Transaction
}

// NewTxSetProposal snapshots txs in canonical order and computes Root
// over their ids.
func NewTxSetProposal(sequence uint32, timestamp int64, issuer, previousBlockID crypto.Digest, txs []Transaction) *TxSetProposal {
	ordered := make([]Transaction, len(txs))
	copy(ordered, txs)
	sort.Slice(ordered, Order(ordered))
	ids := make([]crypto.Digest, len(ordered))
	for i, tx := range ordered {
		ids[i] = tx.ID
	}
	return &TxSetProposal{
		Sequence:        sequence,
		Timestamp:       timestamp,
		IssuerID:        issuer,
		PreviousBlockID: previousBlockID,
		Root:            merkle.Root(ids),
		Transactions:    ordered,
	}
}

func (p *TxSetProposal) signedBody() []byte {
	buf := make([]byte, 4+8+crypto.Size+crypto.Size+crypto.Size)
	o := putUint32(buf, 0, p.Sequence)
	o = putInt64(buf, o, p.Timestamp)
	o = putDigest(buf, o, p.IssuerID)
	o = putDigest(buf, o, p.Root)
	putDigest(buf, o, p.PreviousBlockID)
	return buf
}

func (p *TxSetProposal) Sign(signer crypto.Signer, sk []byte) error {
	sig, err := signer.Sign(sk, p.signedBody())
	if err != nil {
		return fmt.Errorf("ledger: sign tx-set proposal: %w", err)
	}
	p.Signature = sig
	return nil
}

func (p *TxSetProposal) VerifySignature(signer crypto.Signer, pk []byte) bool {
	if len(p.Signature) == 0 {
		return false
	}
	return signer.Verify(pk, p.Signature, p.signedBody())
}

func (p *TxSetProposal) Size() int {
	size := 4 + 8 + crypto.Size + crypto.Size + crypto.Size + 4 + len(p.Signature) + 4
	for i := range p.Transactions {
		size += p.Transactions[i].Size()
	}
	return size
}

func (p *TxSetProposal) Serialize(buf []byte, offset int) (int, error) {
	if len(p.Signature) == 0 {
		return offset, fmt.Errorf("ledger: tx-set proposal %w: signature", ErrMissingField)
	}
	if err := requireRoom(buf, offset, p.Size()); err != nil {
		return offset, err
	}
	o := putUint32(buf, offset, p.Sequence)
	o = putInt64(buf, o, p.Timestamp)
	o = putDigest(buf, o, p.IssuerID)
	o = putDigest(buf, o, p.Root)
	o = putDigest(buf, o, p.PreviousBlockID)
	o = putBytes(buf, o, p.Signature)
	o = putUint32(buf, o, uint32(len(p.Transactions)))
	var err error
	for i := range p.Transactions {
		if o, err = p.Transactions[i].Serialize(buf, o); err != nil {
			return offset, err
		}
	}
	return o, nil
}

func (p *TxSetProposal) Deserialize(buf []byte, offset int) (int, error) {
	start := offset
	var err error
	if p.Sequence, offset, err = getUint32(buf, offset); err != nil {
		return start, err
	}
	if p.Timestamp, offset, err = getInt64(buf, offset); err != nil {
		return start, err
	}
	if p.IssuerID, offset, err = getDigest(buf, offset); err != nil {
		return start, err
	}
	if p.Root, offset, err = getDigest(buf, offset); err != nil {
		return start, err
	}
	if p.PreviousBlockID, offset, err = getDigest(buf, offset); err != nil {
		return start, err
	}
	if p.Signature, offset, err = getBytes(buf, offset); err != nil {
		return start, err
	}
	var count uint32
	if count, offset, err = getUint32(buf, offset); err != nil {
		return start, err
	}
	p.Transactions = make([]Transaction, count)
	for i := range p.Transactions {
		if offset, err = p.Transactions[i].Deserialize(buf, offset); err != nil {
			return start, err
		}
	}
	return offset, nil
}
