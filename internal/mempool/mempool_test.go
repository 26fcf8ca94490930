package mempool

import (
	"testing"

	"github.com/stretchr/testify/require"

	"duskledger/internal/crypto"
	"duskledger/internal/ledger"
)

func newTx(t *testing.T, signer crypto.Signer, sk []byte, sender, receiver crypto.Digest, seq uint32) ledger.Transaction {
	t.Helper()
	tx := ledger.Transaction{Version: 1, Sequence: seq, Amount: 1, Sender: sender, Receiver: receiver}
	require.NoError(t, tx.Sign(signer, sk))
	return tx
}

func TestAddRejectsDuplicateByID(t *testing.T) {
	signer, err := crypto.Select("ed25519")
	require.NoError(t, err)
	sk, pk, err := signer.GenerateKeys()
	require.NoError(t, err)
	sender := crypto.AccountID(pk)
	receiver := crypto.Hash([]byte("receiver"))

	mp := New()
	tx := newTx(t, signer, sk, sender, receiver, 1)
	require.NoError(t, mp.Add(tx))
	require.ErrorIs(t, mp.Add(tx), ErrTxExists)
	require.Equal(t, 1, mp.Count())
}

func TestRemoveDropsFromPool(t *testing.T) {
	signer, err := crypto.Select("ed25519")
	require.NoError(t, err)
	sk, pk, err := signer.GenerateKeys()
	require.NoError(t, err)
	sender := crypto.AccountID(pk)
	receiver := crypto.Hash([]byte("receiver"))

	mp := New()
	tx := newTx(t, signer, sk, sender, receiver, 1)
	require.NoError(t, mp.Add(tx))

	mp.Remove(tx.ID)
	require.Equal(t, 0, mp.Count())
	require.False(t, mp.Has(tx))
}

func TestSnapshotReturnsIndependentCopy(t *testing.T) {
	signer, err := crypto.Select("ed25519")
	require.NoError(t, err)
	sk, pk, err := signer.GenerateKeys()
	require.NoError(t, err)
	sender := crypto.AccountID(pk)
	receiver := crypto.Hash([]byte("receiver"))

	mp := New()
	tx := newTx(t, signer, sk, sender, receiver, 1)
	require.NoError(t, mp.Add(tx))

	snap := mp.Snapshot()
	require.Len(t, snap, 1)
	snap[0].Amount = 999
	require.Equal(t, uint32(1), mp.Snapshot()[0].Amount)
}
