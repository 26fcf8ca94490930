// Package consensus implements the round-based OPEN -> ESTABLISH ->
// ACCEPTED state machine described by original_source/src/Consensus/Consensus.{hpp,cpp},
// itself documented there as a port of Ripple/XRPL's consensus algorithm.
package consensus

import (
	"time"

	"duskledger/internal/chain"
	"duskledger/internal/crypto"
	"duskledger/internal/ledger"
)

// Phase is the round's current stage.
type Phase int

const (
	PhaseOpen Phase = iota
	PhaseEstablish
	PhaseAccepted
)

func (p Phase) String() string {
	switch p {
	case PhaseOpen:
		return "OPEN"
	case PhaseEstablish:
		return "ESTABLISH"
	case PhaseAccepted:
		return "ACCEPTED"
	default:
		return "UNKNOWN"
	}
}

// WalletNotifier is consensus's dependency on the local wallet: every
// transaction sent or received by this node gets a CONFIRMED/CANCELLED
// notification once its block executes. It lives here, not in
// internal/wallet, because consensus is the one that depends on it —
// the concrete implementation lives in internal/wallet.
type WalletNotifier interface {
	NotifyExecuted(tx ledger.Transaction)
	NotifyCancelled(tx ledger.Transaction)
}

// Broadcaster is consensus's dependency on outbound networking. A
// concrete implementation lives in internal/p2p; consensus only ever
// calls through this interface, so it never imports p2p directly.
type Broadcaster interface {
	BroadcastTxSetProposal(p *ledger.TxSetProposal)
	BroadcastBlockProposal(p *ledger.BlockProposal)
}

// dispute is a transaction present in at least one, but not all,
// observed TxSet proposals.
type dispute struct {
	txID      crypto.Digest
	tx        ledger.Transaction
	ourVote   bool
	peerVotes map[crypto.Digest]bool
}

// result is the round's working state.
type result struct {
	txns      []ledger.Transaction
	proposal  *ledger.TxSetProposal
	disputes  map[crypto.Digest]*dispute
	roundTime time.Duration
}

// peerPosition is the last TxSet position a peer issuer advertised.
type peerPosition struct {
	setID     crypto.Digest
	seq       uint32
	timestamp time.Time
}

// acquiredSet is a resolved TxSet body we either produced ourselves or
// learned of from a peer.
type acquiredSet struct {
	txns      []ledger.Transaction
	timestamp time.Time
}

// preferredNode snapshots what the chain tree currently considers
// preferred, so the engine can detect when it changes.
type preferredNode struct {
	id     crypto.Digest
	header ledger.BlockHeader
}

func treePreferred(tree *chain.Tree) preferredNode {
	id, header := tree.GetPreferred()
	return preferredNode{id: id, header: header}
}
