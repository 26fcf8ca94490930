package consensus

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"duskledger/internal/chain"
	"duskledger/internal/crypto"
	"duskledger/internal/ledger"
	"duskledger/internal/mempool"
	"duskledger/internal/storage"
)

type recordingBroadcaster struct {
	txSets []*ledger.TxSetProposal
	blocks []*ledger.BlockProposal
}

func (r *recordingBroadcaster) BroadcastTxSetProposal(p *ledger.TxSetProposal) {
	r.txSets = append(r.txSets, p)
}

func (r *recordingBroadcaster) BroadcastBlockProposal(p *ledger.BlockProposal) {
	r.blocks = append(r.blocks, p)
}

type recordingNotifier struct {
	executed  []ledger.Transaction
	cancelled []ledger.Transaction
}

func (r *recordingNotifier) NotifyExecuted(tx ledger.Transaction)  { r.executed = append(r.executed, tx) }
func (r *recordingNotifier) NotifyCancelled(tx ledger.Transaction) { r.cancelled = append(r.cancelled, tx) }

func newTestEngine(t *testing.T, unl map[crypto.Digest]bool) (*Engine, *recordingBroadcaster, *recordingNotifier, crypto.Signer, []byte) {
	t.Helper()
	signer, err := crypto.Select("ed25519")
	require.NoError(t, err)
	sk, pk, err := signer.GenerateKeys()
	require.NoError(t, err)
	accountID := ledger.AccountID(pk)

	store, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	genesis := ledger.BlockHeader{Version: 1, Sequence: 0}
	tree := chain.New(genesis, len(unl))

	params := Params{
		UNL:            unl,
		QuorumPercent:  0.8,
		IdleResetAfter: 3 * time.Second,
		DisputeMaxAge:  20 * time.Second,
		MinRoundTime:   5 * time.Second,
	}

	bc := &recordingBroadcaster{}
	notifier := &recordingNotifier{}
	pool := mempool.New()
	log := logrus.New()
	log.SetOutput(nopWriter{})

	e := New(signer, sk, accountID, params, pool, tree, store, notifier, bc, log)
	return e, bc, notifier, signer, sk
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func signedTx(t *testing.T, signer crypto.Signer, sk []byte, sender, receiver crypto.Digest, seq uint32, amount uint32) ledger.Transaction {
	t.Helper()
	tx := ledger.Transaction{Version: 1, Sequence: seq, Amount: amount, Sender: sender, Receiver: receiver}
	require.NoError(t, tx.Sign(signer, sk))
	return tx
}

func putBalance(t *testing.T, e *Engine, id crypto.Digest, pk []byte, balance uint64, lastSeq uint32) {
	t.Helper()
	b := ledger.BalanceProjection{PublicKey: pk, Balance: balance, LastSequence: lastSeq}
	buf := make([]byte, b.Size())
	_, err := b.Serialize(buf, 0)
	require.NoError(t, err)
	require.NoError(t, e.store.PutBalance(id, buf))
}

// TestExecuteBlockAppliesSingleSenderChain mirrors the two-transaction
// A->B scenario: a 10000-balance sender pays 20 then 10 to the same
// receiver, both transactions valid, balances and sequence update and
// the block commits at sequence 1.
func TestExecuteBlockAppliesSingleSenderChain(t *testing.T) {
	e, _, notifier, signer, sk := newTestEngine(t, map[crypto.Digest]bool{})
	aSK, aPK, err := signer.GenerateKeys()
	require.NoError(t, err)
	_ = sk
	a := ledger.AccountID(aPK)
	e.accountID = a
	b := crypto.Hash([]byte("receiver b"))

	putBalance(t, e, a, aPK, 10000, 0)

	tx1 := signedTx(t, signer, aSK, a, b, 1, 20)
	tx2 := signedTx(t, signer, aSK, a, b, 2, 10)
	block := ledger.NewBlock(1, e.preferred.id, []ledger.Transaction{tx1, tx2})

	e.ExecuteFinalizedBlock(block)

	raw, err := e.store.GetBalance(a)
	require.NoError(t, err)
	var balA ledger.BalanceProjection
	_, err = balA.Deserialize(raw, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(9970), balA.Balance)
	require.Equal(t, uint32(2), balA.LastSequence)

	raw, err = e.store.GetBalance(b)
	require.NoError(t, err)
	var balB ledger.BalanceProjection
	_, err = balB.Deserialize(raw, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(30), balB.Balance)

	require.Len(t, notifier.executed, 2)
	require.Empty(t, notifier.cancelled)
}

// TestExecuteBlockDropsDuplicateSequence mirrors the scenario where two
// transactions from the same sender reuse a sequence number: both are
// cancelled and balances/sequence are untouched.
func TestExecuteBlockDropsDuplicateSequence(t *testing.T) {
	e, _, notifier, signer, sk := newTestEngine(t, map[crypto.Digest]bool{})
	aSK, aPK, err := signer.GenerateKeys()
	require.NoError(t, err)
	_ = sk
	a := ledger.AccountID(aPK)
	e.accountID = a
	b := crypto.Hash([]byte("receiver b"))
	putBalance(t, e, a, aPK, 10000, 0)

	tx1 := signedTx(t, signer, aSK, a, b, 1, 20)
	tx2 := signedTx(t, signer, aSK, a, b, 1, 30)
	block := ledger.NewBlock(1, e.preferred.id, []ledger.Transaction{tx1, tx2})

	e.ExecuteFinalizedBlock(block)

	raw, err := e.store.GetBalance(a)
	require.NoError(t, err)
	var balA ledger.BalanceProjection
	_, err = balA.Deserialize(raw, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(10000), balA.Balance)
	require.Equal(t, uint32(0), balA.LastSequence)

	require.Empty(t, notifier.executed)
	require.Len(t, notifier.cancelled, 2)
}

// TestExecuteBlockCancelsInsufficientBalance mirrors a sender attempting
// to spend more than its balance: the transaction cancels and nothing
// moves.
func TestExecuteBlockCancelsInsufficientBalance(t *testing.T) {
	e, _, notifier, signer, sk := newTestEngine(t, map[crypto.Digest]bool{})
	aSK, aPK, err := signer.GenerateKeys()
	require.NoError(t, err)
	_ = sk
	a := ledger.AccountID(aPK)
	e.accountID = a
	b := crypto.Hash([]byte("receiver b"))
	putBalance(t, e, a, aPK, 5, 0)

	tx := signedTx(t, signer, aSK, a, b, 1, 20)
	block := ledger.NewBlock(1, e.preferred.id, []ledger.Transaction{tx})

	e.ExecuteFinalizedBlock(block)

	raw, err := e.store.GetBalance(a)
	require.NoError(t, err)
	var balA ledger.BalanceProjection
	_, err = balA.Deserialize(raw, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(5), balA.Balance)
	require.Equal(t, uint32(0), balA.LastSequence)

	require.Empty(t, notifier.executed)
	require.Len(t, notifier.cancelled, 1)
}

func TestHaveConsensusClearsAboveEightyPercentOfUNL(t *testing.T) {
	unl := make(map[crypto.Digest]bool)
	peers := make([]crypto.Digest, 4)
	for i := range peers {
		peers[i] = crypto.Hash([]byte{byte(i)})
		unl[peers[i]] = true
	}
	e, _, _, _, _ := newTestEngine(t, unl)

	e.result.proposal = &ledger.TxSetProposal{Root: crypto.Hash([]byte("set"))}
	require.False(t, e.haveConsensus(), "no peer positions yet")

	for _, p := range peers {
		e.peerProposals[p] = peerPosition{setID: e.result.proposal.Root, timestamp: time.Now()}
	}
	require.True(t, e.haveConsensus(), "self plus all 4 UNL peers should clear 80%")
}

func TestCreateDisputesSeedsFromAcquiredPeerPositions(t *testing.T) {
	e, _, _, signer, sk := newTestEngine(t, map[crypto.Digest]bool{})
	_, pk, err := signer.GenerateKeys()
	require.NoError(t, err)
	sender := ledger.AccountID(pk)
	receiver := crypto.Hash([]byte("r"))
	tx := signedTx(t, signer, sk, sender, receiver, 1, 1)

	peer := crypto.Hash([]byte("peer"))
	peerSetID := crypto.Hash([]byte("peer set"))
	e.acquiredSets[peerSetID] = acquiredSet{txns: []ledger.Transaction{tx}, timestamp: time.Now()}
	e.peerProposals[peer] = peerPosition{setID: peerSetID, timestamp: time.Now()}

	e.result.txns = nil
	e.createDisputes(peerSetID, []ledger.Transaction{tx})
	d, ok := e.result.disputes[tx.ID]
	require.True(t, ok)
	require.False(t, d.ourVote)
	require.True(t, d.peerVotes[peer])
}

func TestUpdateProposalsEvictsStalePeerPositions(t *testing.T) {
	e, _, _, _, _ := newTestEngine(t, map[crypto.Digest]bool{})
	e.params.DisputeMaxAge = time.Millisecond
	peer := crypto.Hash([]byte("peer"))
	e.peerProposals[peer] = peerPosition{setID: crypto.Hash([]byte("s")), timestamp: time.Now().Add(-time.Hour)}

	e.updateProposals(0)
	_, ok := e.peerProposals[peer]
	require.False(t, ok)
}
