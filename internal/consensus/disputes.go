package consensus

import (
	"time"

	"duskledger/internal/crypto"
	"duskledger/internal/ledger"
)

// idMap indexes a transaction slice by id for set-membership checks.
func idMap(txs []ledger.Transaction) map[crypto.Digest]ledger.Transaction {
	m := make(map[crypto.Digest]ledger.Transaction, len(txs))
	for _, tx := range txs {
		m[tx.ID] = tx
	}
	return m
}

// createDisputes opens a dispute for every transaction that differs
// between the working result and a newly acquired set, seeding each
// dispute's peer votes from every acquiredSet already on hand. Disputes
// that already exist for a transaction id are left untouched.
func (e *Engine) createDisputes(_ crypto.Digest, setBody []ledger.Transaction) {
	resultByID := idMap(e.result.txns)
	setByID := idMap(setBody)

	diff := make(map[crypto.Digest]ledger.Transaction)
	for id, tx := range resultByID {
		if _, ok := setByID[id]; !ok {
			diff[id] = tx
		}
	}
	for id, tx := range setByID {
		if _, ok := resultByID[id]; !ok {
			diff[id] = tx
		}
	}

	for id, tx := range diff {
		if _, exists := e.result.disputes[id]; exists {
			continue
		}
		_, ours := resultByID[id]
		d := &dispute{
			txID:      id,
			tx:        tx,
			ourVote:   ours,
			peerVotes: make(map[crypto.Digest]bool),
		}
		for issuer, pos := range e.peerProposals {
			set, ok := e.acquiredSets[pos.setID]
			if !ok {
				continue
			}
			_, has := idMap(set.txns)[id]
			d.peerVotes[issuer] = has
		}
		e.result.disputes[id] = d
	}
}

// updateDisputes records peer's vote, derived from its acquired set
// body, on every dispute currently open.
func (e *Engine) updateDisputes(peer crypto.Digest, setBody []ledger.Transaction) {
	setByID := idMap(setBody)
	for _, d := range e.result.disputes {
		_, has := setByID[d.txID]
		d.peerVotes[peer] = has
	}
}

// disputeThreshold is the yes-vote ratio a dispute must clear to flip
// in our favor, tightening as the round converges. Grounded on
// original_source/src/Consensus/Consensus.cpp's updateOurPositions.
func disputeThreshold(converge float64) float64 {
	switch {
	case converge < 0.5:
		return 0.50
	case converge < 0.85:
		return 0.65
	case converge < 2.0:
		return 0.70
	default:
		return 0.95
	}
}

// recomputeVote derives a dispute's new vote: our own vote counts once,
// alongside every known peer vote, against the converge-scaled threshold.
func recomputeVote(d *dispute, converge float64) bool {
	threshold := disputeThreshold(converge)
	yays, nays := 0, 0
	for _, v := range d.peerVotes {
		if v {
			yays++
		} else {
			nays++
		}
	}
	ours := 0
	if d.ourVote {
		ours = 1
	}
	ratio := float64(yays+ours) / float64(yays+nays+1)
	return ratio > threshold
}

// applyDisputesToResultTxns rebuilds result.txns so it agrees with the
// current vote on every open dispute, leaving undisputed transactions
// untouched.
func (e *Engine) applyDisputesToResultTxns() {
	byID := idMap(e.result.txns)
	for _, d := range e.result.disputes {
		if d.ourVote {
			byID[d.txID] = d.tx
		} else {
			delete(byID, d.txID)
		}
	}
	txns := make([]ledger.Transaction, 0, len(byID))
	for _, tx := range byID {
		txns = append(txns, tx)
	}
	e.result.txns = txns
}

// updateProposals evicts stale peer positions and acquired sets, folds
// any dispute votes that flipped this round into result.txns, and
// re-proposes if the set actually changed.
func (e *Engine) updateProposals(converge float64) {
	now := time.Now()

	for issuer, pos := range e.peerProposals {
		if now.Sub(pos.timestamp) <= e.params.DisputeMaxAge {
			continue
		}
		delete(e.peerProposals, issuer)
		for _, d := range e.result.disputes {
			delete(d.peerVotes, issuer)
		}
	}
	for setID, set := range e.acquiredSets {
		if now.Sub(set.timestamp) > e.params.DisputeMaxAge {
			delete(e.acquiredSets, setID)
		}
	}

	changed := false
	for _, d := range e.result.disputes {
		newVote := recomputeVote(d, converge)
		if newVote != d.ourVote {
			d.ourVote = newVote
			changed = true
		}
	}
	if !changed {
		return
	}

	e.applyDisputesToResultTxns()

	seq := uint32(0)
	if e.result.proposal != nil {
		seq = e.result.proposal.Sequence + 1
	}
	prop := ledger.NewTxSetProposal(seq, time.Now().Unix(), e.accountID, e.preferred.id, e.result.txns)
	if err := prop.Sign(e.signer, e.sk); err != nil {
		e.log.WithError(err).Error("failed to sign updated tx-set proposal")
		return
	}
	e.result.proposal = prop
	e.broadcaster.BroadcastTxSetProposal(prop)
	e.acquiredSets[prop.Root] = acquiredSet{txns: e.result.txns, timestamp: now}
}

// haveConsensus reports whether enough UNL members, including ourself,
// are proposing the same tx set. The original compares integer vote
// counts; this compares the equivalent rational directly in float64,
// resolving the ambiguity noted in the design notes.
func (e *Engine) haveConsensus() bool {
	if e.result.proposal == nil {
		return false
	}
	agree := 0
	for _, pos := range e.peerProposals {
		if pos.setID == e.result.proposal.Root {
			agree++
		}
	}
	unl := e.params.unlSize()
	return float64(agree+1)/float64(unl+1) > e.params.QuorumPercent
}

// GotTxSet is the consensus-side entry point for a TxSetProposal
// received over the network.
func (e *Engine) GotTxSet(prop *ledger.TxSetProposal) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase == PhaseAccepted {
		return
	}
	if prop.PreviousBlockID != e.preferred.id {
		return
	}
	if prev, known := e.peerProposals[prop.IssuerID]; known && prop.Sequence <= prev.seq {
		return
	}

	isNewSet := false
	if _, ok := e.acquiredSets[prop.Root]; !ok {
		e.acquiredSets[prop.Root] = acquiredSet{txns: prop.Transactions, timestamp: time.Now()}
		isNewSet = true
	}
	e.peerProposals[prop.IssuerID] = peerPosition{setID: prop.Root, seq: prop.Sequence, timestamp: time.Now()}

	if isNewSet {
		e.createDisputes(prop.Root, prop.Transactions)
	}
	for issuer, pos := range e.peerProposals {
		if pos.setID == prop.Root {
			e.updateDisputes(issuer, prop.Transactions)
		}
	}
}
