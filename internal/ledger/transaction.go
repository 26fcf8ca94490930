package ledger

import (
	"fmt"

	"duskledger/internal/crypto"
)

// Transaction is a single value transfer: sender pays receiver amount at
// sequence, strictly greater than sender's last executed sequence. ID and
// Signature are set by Sign and travel with the transaction from the
// moment it leaves the wallet.
type Transaction struct {
	Version   uint32
	Sequence  uint32
	Amount    uint32
	Timestamp int64
	Sender    crypto.Digest
	Receiver  crypto.Digest
	ID        crypto.Digest
	Signature []byte
}

const txCanonicalBodySize = 4 + 4 + 4 + 8 + crypto.Size + crypto.Size

// canonicalBody is the exact byte sequence both hashed into ID and signed:
// version, sequence, amount, timestamp, sender, receiver. ID and signature
// are deliberately excluded from their own preimage.
func (t *Transaction) canonicalBody() []byte {
	buf := make([]byte, txCanonicalBodySize)
	o := 0
	o = putUint32(buf, o, t.Version)
	o = putUint32(buf, o, t.Sequence)
	o = putUint32(buf, o, t.Amount)
	o = putInt64(buf, o, t.Timestamp)
	o = putDigest(buf, o, t.Sender)
	putDigest(buf, o, t.Receiver)
	return buf
}

// ComputeID sets ID = SHA-512(canonical body). Callers normally reach this
// through Sign; it is exported separately so a receiver can recompute and
// compare an inbound transaction's claimed ID before trusting it.
func (t *Transaction) ComputeID() {
	t.ID = crypto.Hash(t.canonicalBody())
}

// Sign computes ID and signs it with sk under signer, populating both ID
// and Signature.
func (t *Transaction) Sign(signer crypto.Signer, sk []byte) error {
	t.ComputeID()
	sig, err := signer.Sign(sk, t.ID[:])
	if err != nil {
		return fmt.Errorf("ledger: sign transaction: %w", err)
	}
	t.Signature = sig
	return nil
}

// VerifySignature reports whether Signature is valid over ID under pk. It
// does not recompute ID from the body; callers that received this
// transaction over the wire should call ComputeID first and compare.
func (t *Transaction) VerifySignature(signer crypto.Signer, pk []byte) bool {
	if len(t.Signature) == 0 {
		return false
	}
	return signer.Verify(pk, t.Signature, t.ID[:])
}

func (t *Transaction) Size() int {
	return txCanonicalBodySize + crypto.Size + 4 + len(t.Signature)
}

func (t *Transaction) Serialize(buf []byte, offset int) (int, error) {
	if len(t.Signature) == 0 {
		return offset, fmt.Errorf("ledger: transaction %w: signature", ErrMissingField)
	}
	if t.Sender.IsZero() {
		return offset, fmt.Errorf("ledger: transaction %w: sender", ErrMissingField)
	}
	if t.Receiver.IsZero() {
		return offset, fmt.Errorf("ledger: transaction %w: receiver", ErrMissingField)
	}
	if t.ID.IsZero() {
		return offset, fmt.Errorf("ledger: transaction %w: id", ErrMissingField)
	}
	if err := requireRoom(buf, offset, t.Size()); err != nil {
		return offset, err
	}
	o := offset
	o = putUint32(buf, o, t.Version)
	o = putUint32(buf, o, t.Sequence)
	o = putUint32(buf, o, t.Amount)
	o = putInt64(buf, o, t.Timestamp)
	o = putDigest(buf, o, t.Sender)
	o = putDigest(buf, o, t.Receiver)
	o = putDigest(buf, o, t.ID)
	o = putBytes(buf, o, t.Signature)
	return o, nil
}

func (t *Transaction) Deserialize(buf []byte, offset int) (int, error) {
	start := offset
	var err error
	if t.Version, offset, err = getUint32(buf, offset); err != nil {
		return start, err
	}
	if t.Sequence, offset, err = getUint32(buf, offset); err != nil {
		return start, err
	}
	if t.Amount, offset, err = getUint32(buf, offset); err != nil {
		return start, err
	}
	if t.Timestamp, offset, err = getInt64(buf, offset); err != nil {
		return start, err
	}
	if t.Sender, offset, err = getDigest(buf, offset); err != nil {
		return start, err
	}
	if t.Receiver, offset, err = getDigest(buf, offset); err != nil {
		return start, err
	}
	if t.ID, offset, err = getDigest(buf, offset); err != nil {
		return start, err
	}
	if t.Signature, offset, err = getBytes(buf, offset); err != nil {
		return start, err
	}
	return offset, nil
}

// Order is the canonical block ordering: (sender, sequence) ascending.
func Order(txs []Transaction) func(i, j int) bool {
	return func(i, j int) bool {
		si, sj := txs[i].Sender, txs[j].Sender
		for k := 0; k < crypto.Size; k++ {
			if si[k] != sj[k] {
				return si[k] < sj[k]
			}
		}
		return txs[i].Sequence < txs[j].Sequence
	}
}
