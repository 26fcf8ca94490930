package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"

	"duskledger/internal/crypto"
)

func mustSignedTx(t *testing.T, signer crypto.Signer, sk []byte, sender, receiver crypto.Digest, seq uint32) Transaction {
	t.Helper()
	tx := Transaction{Version: 1, Sequence: seq, Amount: 5, Timestamp: 42, Sender: sender, Receiver: receiver}
	require.NoError(t, tx.Sign(signer, sk))
	return tx
}

func TestBlockRoundTrip(t *testing.T) {
	signer, err := crypto.Select("ed25519")
	require.NoError(t, err)
	sk, pk, err := signer.GenerateKeys()
	require.NoError(t, err)
	sender := crypto.AccountID(pk)
	receiver := crypto.Hash([]byte("receiver"))

	txs := []Transaction{
		mustSignedTx(t, signer, sk, sender, receiver, 2),
		mustSignedTx(t, signer, sk, sender, receiver, 1),
	}
	prev := crypto.Hash([]byte("genesis"))
	block := NewBlock(1, prev, txs)

	require.Equal(t, uint32(1), block.Transactions[0].Sequence, "canonical order orders by sequence within a sender")

	buf := make([]byte, block.Size())
	n, err := block.Serialize(buf, 0)
	require.NoError(t, err)
	require.Equal(t, block.Size(), n)

	var got Block
	n2, err := got.Deserialize(buf, 0)
	require.NoError(t, err)
	require.Equal(t, n, n2)
	require.Equal(t, block.ID, got.ID)
	require.Equal(t, block.Header, got.Header)
	require.Len(t, got.Transactions, 2)
}

func TestBlockIDChangesWithAccountRoot(t *testing.T) {
	block := NewBlock(1, crypto.Digest{}, nil)
	before := block.ID
	block.Header.AccountRoot = crypto.Hash([]byte("some account merkle root"))
	block.ComputeID()
	require.NotEqual(t, before, block.ID)
}

func TestBlockHeaderSerializeRefusesZeroTxRoot(t *testing.T) {
	var h BlockHeader
	buf := make([]byte, 256)
	_, err := h.Serialize(buf, 0)
	require.ErrorIs(t, err, ErrMissingField)
}

func TestBlockAllowsZeroPrevBlockIDForGenesis(t *testing.T) {
	block := NewBlock(0, crypto.Digest{}, nil)
	buf := make([]byte, block.Size())
	_, err := block.Serialize(buf, 0)
	require.NoError(t, err)
}
