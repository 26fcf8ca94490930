package wallet

import (
	"testing"

	"github.com/stretchr/testify/require"

	"duskledger/internal/crypto"
	"duskledger/internal/ledger"
)

func newTestWallet(t *testing.T) *Wallet {
	t.Helper()
	signer, err := crypto.Select("ed25519")
	require.NoError(t, err)
	sk, pk, err := signer.GenerateKeys()
	require.NoError(t, err)
	return New(signer, sk, pk)
}

func TestCreateTransactionAdvancesSequenceAndRecordsPending(t *testing.T) {
	w := newTestWallet(t)
	receiver := crypto.Hash([]byte("receiver"))

	tx1, err := w.CreateTransaction(receiver, 10)
	require.NoError(t, err)
	require.Equal(t, uint32(1), tx1.Sequence)

	tx2, err := w.CreateTransaction(receiver, 20)
	require.NoError(t, err)
	require.Equal(t, uint32(2), tx2.Sequence)

	records := w.Transactions()
	require.Len(t, records, 2)
	require.Equal(t, StatusPending, records[0].Status)
	require.Equal(t, StatusPending, records[1].Status)
}

func TestNotifyExecutedUpdatesKnownRecord(t *testing.T) {
	w := newTestWallet(t)
	receiver := crypto.Hash([]byte("receiver"))
	tx, err := w.CreateTransaction(receiver, 10)
	require.NoError(t, err)

	w.NotifyExecuted(tx)

	records := w.Transactions()
	require.Len(t, records, 1)
	require.Equal(t, StatusExecuted, records[0].Status)
}

func TestNotifyIgnoresUnrelatedTransaction(t *testing.T) {
	w := newTestWallet(t)
	other := ledger.Transaction{
		Sender:   crypto.Hash([]byte("someone else")),
		Receiver: crypto.Hash([]byte("someone else too")),
	}
	w.NotifyExecuted(other)
	require.Empty(t, w.Transactions())
}

func TestNotifyRecordsReceivedTransactionNotPreviouslyKnown(t *testing.T) {
	w := newTestWallet(t)
	received := ledger.Transaction{
		Sender:   crypto.Hash([]byte("someone else")),
		Receiver: w.AccountID(),
	}
	w.NotifyExecuted(received)

	records := w.Transactions()
	require.Len(t, records, 1)
	require.Equal(t, StatusExecuted, records[0].Status)
}
