package consensus

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"duskledger/internal/chain"
	"duskledger/internal/crypto"
	"duskledger/internal/ledger"
	"duskledger/internal/mempool"
	"duskledger/internal/storage"
)

// Params is ConsensusParams: the UNL member list, quorum percentage and
// round timing constants, read from config at startup and passed by
// value into the engine. Grounded on
// original_source/src/Consensus/ConsensusParams.hpp.
type Params struct {
	UNL            map[crypto.Digest]bool
	QuorumPercent  float64
	IdleResetAfter time.Duration
	DisputeMaxAge  time.Duration
	MinRoundTime   time.Duration
}

func (p Params) unlSize() int { return len(p.UNL) }

// Engine is the consensus thread: it owns the round state machine, the
// chain tree, and the link to storage used when a block is finalized.
// Its own goroutine (Start) drives the round through timerEntry. The
// inbound entry points GotTxSet, PeerProposal and ExecuteFinalizedBlock
// run on their callers' goroutines and change round state there
// directly; every one of them, like timerEntry, holds the engine's mutex
// while it does so.
type Engine struct {
	mu sync.Mutex

	signer      crypto.Signer
	sk          []byte
	accountID   crypto.Digest
	params      Params
	pool        *mempool.Mempool
	tree        *chain.Tree
	store       *storage.Store
	notifier    WalletNotifier
	broadcaster Broadcaster
	log         *logrus.Entry

	phase         Phase
	result        result
	peerProposals map[crypto.Digest]peerPosition
	acquiredSets  map[crypto.Digest]acquiredSet
	prevRoundTime time.Duration
	roundStart    time.Time
	preferred     preferredNode
	poolEmptySince time.Time

	stopCh chan struct{}
	wakeCh chan struct{}
	wg     sync.WaitGroup
}

func New(
	signer crypto.Signer,
	sk []byte,
	accountID crypto.Digest,
	params Params,
	pool *mempool.Mempool,
	tree *chain.Tree,
	store *storage.Store,
	notifier WalletNotifier,
	broadcaster Broadcaster,
	log *logrus.Logger,
) *Engine {
	preferredID, preferredHeader := tree.GetPreferred()
	e := &Engine{
		signer:        signer,
		sk:            sk,
		accountID:     accountID,
		params:        params,
		pool:          pool,
		tree:          tree,
		store:         store,
		notifier:      notifier,
		broadcaster:   broadcaster,
		log:           log.WithField("component", "consensus"),
		phase:         PhaseOpen,
		peerProposals: make(map[crypto.Digest]peerPosition),
		acquiredSets:  make(map[crypto.Digest]acquiredSet),
		prevRoundTime: params.MinRoundTime,
		preferred:     preferredNode{id: preferredID, header: preferredHeader},
		stopCh:        make(chan struct{}),
		wakeCh:        make(chan struct{}, 1),
	}
	e.result.disputes = make(map[crypto.Digest]*dispute)
	return e
}

// wake nudges the driver loop to run timerEntry sooner than its 1s
// cadence, called whenever the pool becomes non-empty.
func (e *Engine) wake() {
	select {
	case e.wakeCh <- struct{}{}:
	default:
	}
}

// Start runs the dedicated consensus goroutine: timerEntry once per
// second, or sooner on a wake, matching the scheduler described in
// spec §4.F/§5.
func (e *Engine) Start() {
	e.log.Info("starting consensus engine")
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-e.stopCh:
				e.log.Info("consensus engine stopping")
				return
			case <-ticker.C:
				e.timerEntry()
			case <-e.wakeCh:
				e.timerEntry()
			}
		}
	}()
}

func (e *Engine) Stop() {
	close(e.stopCh)
	e.wg.Wait()
	e.log.Info("consensus engine stopped")
}

// NotifyNewTransaction lets any thread that just added a transaction to
// the pool nudge the consensus loop awake.
func (e *Engine) NotifyNewTransaction() {
	e.wake()
}

func (e *Engine) resetRound() {
	e.phase = PhaseOpen
	e.result = result{disputes: make(map[crypto.Digest]*dispute)}
	e.peerProposals = make(map[crypto.Digest]peerPosition)
	e.acquiredSets = make(map[crypto.Digest]acquiredSet)
	e.roundStart = time.Time{}
	e.log.WithField("preferred", e.preferred.header.Sequence).Debug("round reset")
}

// timerEntry drives one step of the round. Called on the engine's own
// goroutine only.
func (e *Engine) timerEntry() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.phase == PhaseAccepted {
		return
	}

	current := treePreferred(e.tree)
	if current.id != e.preferred.id {
		e.preferred = current
		e.resetRound()
	}

	if e.pool.Count() == 0 {
		if e.poolEmptySince.IsZero() {
			e.poolEmptySince = time.Now()
		} else if time.Since(e.poolEmptySince) > e.params.IdleResetAfter {
			e.resetRound()
		}
	} else {
		e.poolEmptySince = time.Time{}
	}

	switch e.phase {
	case PhaseOpen:
		if e.roundStart.IsZero() {
			e.roundStart = time.Now()
		}
		if time.Since(e.roundStart) >= e.prevRoundTime/2 {
			e.phase = PhaseEstablish
			e.closeBlock()
		}
	case PhaseEstablish:
		e.result.roundTime = time.Since(e.roundStart)
		converge := convergeRatio(e.result.roundTime, e.prevRoundTime)
		e.updateProposals(converge)
		if e.haveConsensus() {
			e.phase = PhaseAccepted
			e.prevRoundTime = e.result.roundTime
			e.onAccept()
		}
	}
}

func convergeRatio(roundTime, prevRoundTime time.Duration) float64 {
	floor := 5 * time.Second
	if prevRoundTime > floor {
		floor = prevRoundTime
	}
	return float64(roundTime) / float64(floor)
}

// closeBlock snapshots the pool into result.txns, proposes it, and seeds
// acquiredSets and disputes against any peer positions already observed.
func (e *Engine) closeBlock() {
	txns := e.pool.Snapshot()
	e.result.txns = txns

	seq := uint32(0)
	if e.result.proposal != nil {
		seq = e.result.proposal.Sequence + 1
	}
	prop := ledger.NewTxSetProposal(seq, time.Now().Unix(), e.accountID, e.preferred.id, txns)
	if err := prop.Sign(e.signer, e.sk); err != nil {
		e.log.WithError(err).Error("failed to sign tx-set proposal")
		return
	}
	e.result.proposal = prop
	e.broadcaster.BroadcastTxSetProposal(prop)

	e.acquiredSets[prop.Root] = acquiredSet{txns: txns, timestamp: time.Now()}
	e.createDisputes(prop.Root, txns)

	for issuer, pos := range e.peerProposals {
		if set, ok := e.acquiredSets[pos.setID]; ok {
			e.createDisputes(pos.setID, set.txns)
			e.updateDisputes(issuer, set.txns)
		}
	}
}
