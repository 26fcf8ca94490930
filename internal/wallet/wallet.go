// Package wallet tracks the local node's own account: its keypair, the
// sequence number its next transaction must use, and the lifecycle of
// every transaction it has sent or received, from pending through
// executed or cancelled. Grounded on
// original_source/src/Wallet/Wallet.{hpp,cpp}; WalletData's publicKey,
// secretKey, walletID, txSequenceNumber and txRecords map directly onto
// the fields below, generalized from that wallet's single-process
// config-file model to the in-process consensus.WalletNotifier it
// implements here.
package wallet

import (
	"sort"
	"sync"
	"time"

	"duskledger/internal/crypto"
	"duskledger/internal/ledger"
)

// Status is where a wallet-owned transaction stands in its lifecycle.
type Status int

const (
	StatusPending Status = iota
	StatusExecuted
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "PENDING"
	case StatusExecuted:
		return "EXECUTED"
	case StatusCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// Record is one transaction this wallet sent or received, alongside its
// current status.
type Record struct {
	Tx     ledger.Transaction
	Status Status
}

// Wallet owns the node's signing key and its own view of which of its
// transactions have confirmed. It implements consensus.WalletNotifier.
type Wallet struct {
	mu sync.RWMutex

	signer    crypto.Signer
	sk        []byte
	pk        []byte
	accountID crypto.Digest

	nextSequence uint32
	records      map[crypto.Digest]*Record
}

// New builds a wallet around an already-generated keypair. Sequence
// numbers start at 1, matching WalletData::setNull's txSequenceNumber
// reset.
func New(signer crypto.Signer, sk, pk []byte) *Wallet {
	return &Wallet{
		signer:       signer,
		sk:           sk,
		pk:           pk,
		accountID:    crypto.AccountID(pk),
		nextSequence: 1,
		records:      make(map[crypto.Digest]*Record),
	}
}

func (w *Wallet) AccountID() crypto.Digest { return w.accountID }
func (w *Wallet) PublicKey() []byte        { return w.pk }

// SetNextSequence resets the sequence counter, for a wallet resuming
// after restart once its last executed sequence is read back from
// storage.
func (w *Wallet) SetNextSequence(seq uint32) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.nextSequence = seq
}

// CreateTransaction signs a new transaction at the wallet's next
// sequence number, records it as pending, and advances the counter.
func (w *Wallet) CreateTransaction(receiver crypto.Digest, amount uint32) (ledger.Transaction, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	tx := ledger.Transaction{
		Version:   1,
		Sequence:  w.nextSequence,
		Amount:    amount,
		Timestamp: time.Now().Unix(),
		Sender:    w.accountID,
		Receiver:  receiver,
	}
	if err := tx.Sign(w.signer, w.sk); err != nil {
		return ledger.Transaction{}, err
	}
	w.nextSequence++
	w.records[tx.ID] = &Record{Tx: tx, Status: StatusPending}
	return tx, nil
}

// NotifyExecuted marks tx confirmed. Transactions the wallet never
// created itself (it was only the receiver) are recorded here for the
// first time.
func (w *Wallet) NotifyExecuted(tx ledger.Transaction) {
	if tx.Sender != w.accountID && tx.Receiver != w.accountID {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if r, ok := w.records[tx.ID]; ok {
		r.Status = StatusExecuted
		return
	}
	w.records[tx.ID] = &Record{Tx: tx, Status: StatusExecuted}
}

// NotifyCancelled marks tx cancelled, the same way.
func (w *Wallet) NotifyCancelled(tx ledger.Transaction) {
	if tx.Sender != w.accountID && tx.Receiver != w.accountID {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if r, ok := w.records[tx.ID]; ok {
		r.Status = StatusCancelled
		return
	}
	w.records[tx.ID] = &Record{Tx: tx, Status: StatusCancelled}
}

// Transactions returns every known record ordered by timestamp, the
// same ordering TransactionDataTimestampComparator gives the original.
func (w *Wallet) Transactions() []Record {
	w.mu.RLock()
	defer w.mu.RUnlock()

	out := make([]Record, 0, len(w.records))
	for _, r := range w.records {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tx.Timestamp < out[j].Tx.Timestamp })
	return out
}
