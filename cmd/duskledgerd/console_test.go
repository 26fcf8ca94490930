package main

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"duskledger/internal/chain"
	"duskledger/internal/crypto"
	"duskledger/internal/ledger"
	"duskledger/internal/mempool"
	"duskledger/internal/p2p"
	"duskledger/internal/storage"
	"duskledger/internal/wallet"
)

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func nopLog() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(nopWriter{})
	return l
}

func newTestConsole(t *testing.T) *console {
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
	tree := chain.New(genesis, 0)
	pool := mempool.New()
	w := wallet.New(signer, sk, pk)
	manager := p2p.NewManager(accountID, map[crypto.Digest]bool{}, nopLog())

	bal := ledger.BalanceProjection{PublicKey: pk, Balance: 1000, LastSequence: 0}
	buf := make([]byte, bal.Size())
	_, err = bal.Serialize(buf, 0)
	require.NoError(t, err)
	require.NoError(t, store.PutBalance(accountID, buf))

	return newConsole(w, store, tree, pool, manager, accountID)
}

func TestWhoamiPrintsAccountAndPublicKey(t *testing.T) {
	c := newTestConsole(t)
	var out bytes.Buffer
	c.dispatch("whoami", &out)
	require.Contains(t, out.String(), hex.EncodeToString(c.accountID.Bytes()))
	require.Contains(t, out.String(), hex.EncodeToString(c.wallet.PublicKey()))
}

func TestCreateTxAddsToMempoolAndWalletRecords(t *testing.T) {
	c := newTestConsole(t)
	receiver := crypto.Hash([]byte("receiver"))
	var out bytes.Buffer
	c.dispatch("createTx 10 "+hex.EncodeToString(receiver.Bytes()), &out)

	require.Contains(t, out.String(), "created tx")
	require.Equal(t, 1, c.pool.Count())
	require.Len(t, c.wallet.Transactions(), 1)
}

func TestCreateTxRejectsMalformedReceiver(t *testing.T) {
	c := newTestConsole(t)
	var out bytes.Buffer
	c.dispatch("createTx 10 not-hex", &out)
	require.Contains(t, out.String(), "error")
	require.Equal(t, 0, c.pool.Count())
}

func TestEchoReturnsArguments(t *testing.T) {
	c := newTestConsole(t)
	var out bytes.Buffer
	c.dispatch("echo hello world", &out)
	require.Equal(t, "hello world\n", out.String())
}

func TestUnknownCommandReportsError(t *testing.T) {
	c := newTestConsole(t)
	var out bytes.Buffer
	c.dispatch("bogus", &out)
	require.True(t, strings.HasPrefix(out.String(), "error:"))
}

func TestExitStopsDispatchLoop(t *testing.T) {
	c := newTestConsole(t)
	var out bytes.Buffer
	require.False(t, c.dispatch("exit", &out))
}

func TestAccsListsStoredBalances(t *testing.T) {
	c := newTestConsole(t)
	var out bytes.Buffer
	c.accs(&out)
	require.Contains(t, out.String(), "balance=1000")
}
