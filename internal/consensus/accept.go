package consensus

import (
	"errors"

	"duskledger/internal/crypto"
	"duskledger/internal/ledger"
	"duskledger/internal/merkle"
	"duskledger/internal/storage"
)

// onAccept materializes a block from the round's agreed transaction
// set, broadcasts it as a signed BlockProposal, records our own vote in
// the chain tree, executes it if that vote alone promotes it, and
// starts the next round regardless.
func (e *Engine) onAccept() {
	block := ledger.NewBlock(e.preferred.header.Sequence+1, e.preferred.id, e.result.txns)

	prop := &ledger.BlockProposal{IssuerID: e.accountID, BlockID: block.ID, Header: block.Header}
	if err := prop.Sign(e.signer, e.sk); err != nil {
		e.log.WithError(err).Error("failed to sign block proposal")
		e.resetRound()
		return
	}
	e.broadcaster.BroadcastBlockProposal(prop)

	if err := e.tree.Insert(e.accountID, block.Header, true); err != nil {
		e.log.WithError(err).Warn("failed to insert own block header into chain tree")
	}
	if e.tree.UpdateValidBlock(block.ID) {
		e.executeBlock(block)
	}
	e.resetRound()
}

// PeerProposal is the consensus-side entry point for a BlockProposal
// received over the network. It only matters at the sequence the
// working round is actually trying to close; anything else is either
// stale or ahead of where our own chain tree stands.
func (e *Engine) PeerProposal(prop *ledger.BlockProposal) {
	e.mu.Lock()
	defer e.mu.Unlock()

	working := e.preferred.header.Sequence + 1
	if prop.Header.Sequence != working {
		return
	}
	if err := e.tree.Insert(prop.IssuerID, prop.Header, false); err != nil {
		e.log.WithField("sequence", prop.Header.Sequence).Debug("dropped block proposal with unknown parent")
		return
	}
	if !e.tree.UpdateValidBlock(prop.BlockID) {
		return
	}

	// We may already hold this set's body from our own round bookkeeping.
	// If not, the transaction body arrives later as an explicit BLOCK
	// message and ExecuteFinalizedBlock runs the same execution path then.
	if set, ok := e.acquiredSets[prop.Header.TxRoot]; ok {
		block := &ledger.Block{Header: prop.Header, Transactions: set.txns, ID: prop.BlockID}
		e.executeBlock(block)
	}
	e.resetRound()
}

// ExecuteFinalizedBlock runs the balance-execution path for a block
// whose body arrived separately (the processor's BLOCK handler), after
// the chain tree already promoted its header via PeerProposal.
func (e *Engine) ExecuteFinalizedBlock(block *ledger.Block) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.executeBlock(block)
}

// executeBlock applies a block's transactions to account balances in
// canonical order: a same-sender adjacent duplicate sequence cancels
// both transactions, an insufficient balance or non-increasing sequence
// cancels the one transaction, otherwise the transfer applies and the
// sender's sequence advances. All balance deltas commit in one atomic
// batch, after which the account Merkle root is recomputed and the
// chain tree's valid node re-keyed to match. Grounded on
// original_source/src/Consensus/Consensus.cpp's executeBlock.
func (e *Engine) executeBlock(block *ledger.Block) {
	balances := make(map[crypto.Digest]*ledger.BalanceProjection)
	getBalance := func(id crypto.Digest) (*ledger.BalanceProjection, error) {
		if b, ok := balances[id]; ok {
			return b, nil
		}
		raw, err := e.store.GetBalance(id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				b := &ledger.BalanceProjection{}
				balances[id] = b
				return b, nil
			}
			return nil, err
		}
		var b ledger.BalanceProjection
		if _, err := b.Deserialize(raw, 0); err != nil {
			return nil, err
		}
		balances[id] = &b
		return &b, nil
	}

	txs := block.Transactions
	var executed, cancelled []ledger.Transaction

	for i := 0; i < len(txs); i++ {
		tx := txs[i]
		if i+1 < len(txs) && txs[i+1].Sender == tx.Sender && txs[i+1].Sequence == tx.Sequence {
			cancelled = append(cancelled, tx, txs[i+1])
			i++
			continue
		}

		sender, err := getBalance(tx.Sender)
		if err != nil {
			e.log.WithError(err).Error("storage failure reading sender balance")
			continue
		}
		if sender.Balance < uint64(tx.Amount) || tx.Sequence <= sender.LastSequence {
			cancelled = append(cancelled, tx)
			continue
		}

		receiver, err := getBalance(tx.Receiver)
		if err != nil {
			e.log.WithError(err).Error("storage failure reading receiver balance")
			continue
		}

		sender.Balance -= uint64(tx.Amount)
		sender.LastSequence = tx.Sequence
		receiver.Balance += uint64(tx.Amount)
		executed = append(executed, tx)
	}

	batch := storage.NewBatch()
	for id, bal := range balances {
		buf := make([]byte, bal.Size())
		if _, err := bal.Serialize(buf, 0); err != nil {
			e.log.WithError(err).Error("serialize balance projection")
			continue
		}
		batch.PutBalance(id, buf)
	}
	if err := e.store.Write(batch); err != nil {
		e.log.WithError(err).Error("batch write account balances")
	}

	root := e.computeAccountRoot()
	e.tree.AssignAccountHashToValid(root)

	finalID, finalHeader := e.tree.Valid()
	block.Header = finalHeader
	block.ID = finalID
	blockBuf := make([]byte, block.Size())
	if _, err := block.Serialize(blockBuf, 0); err != nil {
		e.log.WithError(err).Error("serialize finalized block")
	} else if err := e.store.PutBlock(finalID, blockBuf); err != nil {
		e.log.WithError(err).Error("persist finalized block")
	}

	e.pool.Remove(idsOf(executed)...)
	e.pool.Remove(idsOf(cancelled)...)

	for _, tx := range executed {
		if tx.Sender == e.accountID || tx.Receiver == e.accountID {
			e.notifier.NotifyExecuted(tx)
		}
	}
	for _, tx := range cancelled {
		if tx.Sender == e.accountID || tx.Receiver == e.accountID {
			e.notifier.NotifyCancelled(tx)
		}
	}
}

// computeAccountRoot walks the balance keyspace in key order (already
// digest order) and recomputes the account Merkle root over a leaf per
// account: SHA-512(id || serialized balance projection). Leaving the
// balance bytes out of the leaf would make the root insensitive to
// balance changes, defeating its purpose as a commitment to account
// state.
func (e *Engine) computeAccountRoot() crypto.Digest {
	var leaves []crypto.Digest
	if err := e.store.IterateBalances(func(id crypto.Digest, value []byte) bool {
		leaves = append(leaves, crypto.Hash(append(append([]byte{}, id[:]...), value...)))
		return true
	}); err != nil {
		e.log.WithError(err).Error("iterate balances for account root")
	}
	return merkle.Root(leaves)
}

func idsOf(txs []ledger.Transaction) []crypto.Digest {
	ids := make([]crypto.Digest, len(txs))
	for i, tx := range txs {
		ids[i] = tx.ID
	}
	return ids
}
