package processor

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"duskledger/internal/chain"
	"duskledger/internal/consensus"
	"duskledger/internal/crypto"
	"duskledger/internal/ledger"
	"duskledger/internal/mempool"
	"duskledger/internal/p2p"
	"duskledger/internal/storage"
)

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func nopLog() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(nopWriter{})
	return l
}

type stubNotifier struct{}

func (stubNotifier) NotifyExecuted(ledger.Transaction)  {}
func (stubNotifier) NotifyCancelled(ledger.Transaction) {}

type stubBroadcaster struct{}

func (stubBroadcaster) BroadcastTxSetProposal(*ledger.TxSetProposal) {}
func (stubBroadcaster) BroadcastBlockProposal(*ledger.BlockProposal) {}

func newTestProcessor(t *testing.T) (*Processor, crypto.Signer, *storage.Store) {
	t.Helper()
	signer, err := crypto.Select("ed25519")
	require.NoError(t, err)
	sk, pk, err := signer.GenerateKeys()
	require.NoError(t, err)
	localID := ledger.AccountID(pk)

	store, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	genesis := ledger.BlockHeader{Version: 1, Sequence: 0}
	tree := chain.New(genesis, 0)
	params := consensus.Params{UNL: map[crypto.Digest]bool{}, QuorumPercent: 0.8, MinRoundTime: 5 * time.Second}
	pool := mempool.New()
	log := nopLog()

	engine := consensus.New(signer, sk, localID, params, pool, tree, store, stubNotifier{}, stubBroadcaster{}, log)
	manager := p2p.NewManager(localID, map[crypto.Digest]bool{}, log)

	proc := New(signer, store, pool, engine, manager, 0, 2, log)
	return proc, signer, store
}

func putBalance(t *testing.T, store *storage.Store, id crypto.Digest, pk []byte, balance uint64, lastSeq uint32) {
	t.Helper()
	b := ledger.BalanceProjection{PublicKey: pk, Balance: balance, LastSequence: lastSeq}
	buf := make([]byte, b.Size())
	_, err := b.Serialize(buf, 0)
	require.NoError(t, err)
	require.NoError(t, store.PutBalance(id, buf))
}

func signedTx(t *testing.T, signer crypto.Signer, sk []byte, sender, receiver crypto.Digest, seq uint32, amount uint32) ledger.Transaction {
	t.Helper()
	tx := ledger.Transaction{Version: 1, Sequence: seq, Amount: amount, Sender: sender, Receiver: receiver}
	require.NoError(t, tx.Sign(signer, sk))
	return tx
}

func TestHandleTransactionAddsVerifiedTxToMempool(t *testing.T) {
	proc, signer, store := newTestProcessor(t)
	aSK, aPK, err := signer.GenerateKeys()
	require.NoError(t, err)
	sender := ledger.AccountID(aPK)
	receiver := crypto.Hash([]byte("receiver"))
	putBalance(t, store, sender, aPK, 1000, 0)

	tx := signedTx(t, signer, aSK, sender, receiver, 1, 5)
	buf := make([]byte, tx.Size())
	_, err = tx.Serialize(buf, 0)
	require.NoError(t, err)

	proc.handleTransaction(job{msgType: 100, payload: buf})
	require.True(t, proc.pool.HasID(tx.ID))
}

func TestHandleTransactionRejectsBadSignature(t *testing.T) {
	proc, signer, store := newTestProcessor(t)
	_, aPK, err := signer.GenerateKeys()
	require.NoError(t, err)
	sender := ledger.AccountID(aPK)
	receiver := crypto.Hash([]byte("receiver"))
	putBalance(t, store, sender, aPK, 1000, 0)

	_, otherSK, err := signer.GenerateKeys()
	require.NoError(t, err)

	tx := signedTx(t, signer, otherSK, sender, receiver, 1, 5)
	buf := make([]byte, tx.Size())
	_, err = tx.Serialize(buf, 0)
	require.NoError(t, err)

	proc.handleTransaction(job{msgType: 100, payload: buf})
	require.False(t, proc.pool.HasID(tx.ID))
}

func TestHandleTransactionDropsUnregisteredSender(t *testing.T) {
	proc, signer, _ := newTestProcessor(t)
	aSK, aPK, err := signer.GenerateKeys()
	require.NoError(t, err)
	sender := ledger.AccountID(aPK)
	receiver := crypto.Hash([]byte("receiver"))

	tx := signedTx(t, signer, aSK, sender, receiver, 1, 5)
	buf := make([]byte, tx.Size())
	_, err = tx.Serialize(buf, 0)
	require.NoError(t, err)

	proc.handleTransaction(job{msgType: 100, payload: buf})
	require.False(t, proc.pool.HasID(tx.ID))
}

func TestHandleBlockIgnoresUnsolicitedBlock(t *testing.T) {
	proc, _, _ := newTestProcessor(t)
	block := ledger.NewBlock(1, crypto.Digest{}, nil)
	buf := make([]byte, block.Size())
	_, err := block.Serialize(buf, 0)
	require.NoError(t, err)

	proc.handleBlock(job{msgType: 103, payload: buf})
	require.False(t, proc.inv.isRequested(block.ID))
}

func TestHandleAccountPersistsAddressProjection(t *testing.T) {
	proc, _, store := newTestProcessor(t)
	id := crypto.Hash([]byte("account"))
	addrs := ledger.AddressProjection{}
	buf := make([]byte, crypto.Size+addrs.Size())
	copy(buf, id[:])
	_, err := addrs.Serialize(buf, crypto.Size)
	require.NoError(t, err)

	proc.handleAccount(job{msgType: 102, payload: buf})
	_, err = store.GetAddress(id)
	require.NoError(t, err)
}

func TestQuorumForRoundsUpToEightyPercent(t *testing.T) {
	require.Equal(t, 4, quorumFor(5))
	require.Equal(t, 1, quorumFor(1))
	require.Equal(t, 1, quorumFor(0))
}
