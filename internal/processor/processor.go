package processor

import (
	"errors"

	"github.com/sirupsen/logrus"

	"duskledger/internal/consensus"
	"duskledger/internal/crypto"
	"duskledger/internal/ledger"
	"duskledger/internal/mempool"
	"duskledger/internal/p2p"
	"duskledger/internal/storage"
	"duskledger/internal/wire"
)

// Processor is the node's late-message handler: a pool of workers
// draining queue in priority order, each running one of the per-type
// handlers below. It implements p2p.Dispatcher.
type Processor struct {
	signer  crypto.Signer
	store   *storage.Store
	pool    *mempool.Mempool
	engine  *consensus.Engine
	manager *p2p.Manager
	log     *logrus.Entry

	inv *inventory
	q   *queue

	workers int
	done    chan struct{}
}

// New builds a processor. unlSize feeds the inventory quorum tracker's
// threshold (spec's advertise-before-fetch rule); workers is the size
// of the handler pool.
func New(signer crypto.Signer, store *storage.Store, pool *mempool.Mempool, engine *consensus.Engine, manager *p2p.Manager, unlSize, workers int, log *logrus.Logger) *Processor {
	if workers < 1 {
		workers = 1
	}
	return &Processor{
		signer:  signer,
		store:   store,
		pool:    pool,
		engine:  engine,
		manager: manager,
		log:     log.WithField("component", "processor"),
		inv:     newInventory(quorumFor(unlSize)),
		q:       newQueue(),
		workers: workers,
		done:    make(chan struct{}),
	}
}

// quorumFor is the advertisement count needed before we trust an
// inventory item enough to fetch it: per spec scenario 5, a UNL of 5
// needs the 4th distinct advertisement.
func quorumFor(unlSize int) int {
	n := (unlSize*4 + 4) / 5 // ceil(0.8 * unlSize), matching consensus's own 80% quorum
	if n < 1 {
		n = 1
	}
	return n
}

// Dispatch implements p2p.Dispatcher: it only ever queues. All decoding
// and handling happens on worker goroutines.
func (p *Processor) Dispatch(from *p2p.Connection, msgType wire.MessageType, payload []byte) {
	p.q.push(job{conn: from, msgType: msgType, payload: payload})
}

func (p *Processor) Start() {
	for i := 0; i < p.workers; i++ {
		go p.work()
	}
}

func (p *Processor) Stop() {
	p.q.stop()
}

func (p *Processor) work() {
	for {
		j, ok := p.q.pop()
		if !ok {
			return
		}
		p.handle(j)
	}
}

func (p *Processor) handle(j job) {
	switch j.msgType {
	case wire.MsgTransaction:
		p.handleTransaction(j)
	case wire.MsgBlockProposal:
		p.handleProposal(j)
	case wire.MsgBlock:
		p.handleBlock(j)
	case wire.MsgAccount:
		p.handleAccount(j)
	case wire.MsgInventory:
		p.handleInventory(j)
	case wire.MsgGetData:
		p.handleGetData(j)
	default:
		p.log.WithField("type", j.msgType).Debug("no handler for message type")
	}
}

// publicKeyFor looks up a known account's public key from its stored
// balance record; an account that has never sent a transaction or
// registered itself has no key on file yet, and its signature cannot
// be checked.
func (p *Processor) publicKeyFor(id crypto.Digest) ([]byte, bool) {
	raw, err := p.store.GetBalance(id)
	if err != nil {
		return nil, false
	}
	var bal ledger.BalanceProjection
	if _, err := bal.Deserialize(raw, 0); err != nil {
		return nil, false
	}
	if len(bal.PublicKey) == 0 {
		return nil, false
	}
	return bal.PublicKey, true
}

func (p *Processor) handleTransaction(j job) {
	var tx ledger.Transaction
	if _, err := tx.Deserialize(j.payload, 0); err != nil {
		p.log.WithError(err).Debug("dropped malformed transaction")
		return
	}
	pk, ok := p.publicKeyFor(tx.Sender)
	if !ok {
		p.log.Debug("dropped transaction from unregistered sender")
		return
	}
	if !tx.VerifySignature(p.signer, pk) {
		p.log.Debug("dropped transaction with bad signature")
		return
	}
	if err := p.pool.Add(tx); err != nil {
		if !errors.Is(err, mempool.ErrTxExists) {
			p.log.WithError(err).Debug("mempool rejected transaction")
		}
		return
	}
	p.engine.NotifyNewTransaction()
	p.manager.BroadcastInventory(wire.InvItem{Type: wire.InvTx, ID: tx.ID})
}

func (p *Processor) handleProposal(j job) {
	kind, inner, err := wire.DecodeProposal(j.payload)
	if err != nil {
		p.log.WithError(err).Debug("dropped malformed proposal envelope")
		return
	}
	switch kind {
	case wire.ProposalTxSet:
		var prop ledger.TxSetProposal
		if _, err := prop.Deserialize(inner, 0); err != nil {
			p.log.WithError(err).Debug("dropped malformed tx-set proposal")
			return
		}
		pk, ok := p.publicKeyFor(prop.IssuerID)
		if !ok || !prop.VerifySignature(p.signer, pk) {
			p.log.Debug("dropped tx-set proposal with unverifiable signature")
			return
		}
		p.engine.GotTxSet(&prop)
	case wire.ProposalBlock:
		var prop ledger.BlockProposal
		if _, err := prop.Deserialize(inner, 0); err != nil {
			p.log.WithError(err).Debug("dropped malformed block proposal")
			return
		}
		pk, ok := p.publicKeyFor(prop.IssuerID)
		if !ok || !prop.VerifySignature(p.signer, pk) {
			p.log.Debug("dropped block proposal with unverifiable signature")
			return
		}
		p.engine.PeerProposal(&prop)
	default:
		p.log.WithField("kind", kind).Debug("unknown proposal kind")
	}
}

// handleBlock only accepts a block whose id we actually requested via
// GETDATA, matching the accept-only-if-pending-request rule.
func (p *Processor) handleBlock(j job) {
	var block ledger.Block
	if _, err := block.Deserialize(j.payload, 0); err != nil {
		p.log.WithError(err).Debug("dropped malformed block")
		return
	}
	if !p.inv.isRequested(block.ID) {
		p.log.Debug("dropped unsolicited block")
		return
	}
	p.inv.fulfilled(block.ID)
	p.engine.ExecuteFinalizedBlock(&block)
}

// handleAccount only stores and re-advertises an address projection the
// first time it sees the account; one already on file is left alone, per
// spec's "if unknown locally, store and broadcast an INVENTORY".
func (p *Processor) handleAccount(j job) {
	if len(j.payload) < crypto.Size {
		p.log.Debug("dropped malformed account payload")
		return
	}
	id, ok := crypto.DigestFromBytes(j.payload[:crypto.Size])
	if !ok {
		p.log.Debug("dropped malformed account id")
		return
	}
	if _, err := p.store.GetAddress(id); err == nil {
		return
	}
	var addrs ledger.AddressProjection
	if _, err := addrs.Deserialize(j.payload, crypto.Size); err != nil {
		p.log.WithError(err).Debug("dropped malformed address projection")
		return
	}
	buf := make([]byte, addrs.Size())
	if _, err := addrs.Serialize(buf, 0); err != nil {
		p.log.WithError(err).Error("re-serialize address projection")
		return
	}
	if err := p.store.PutAddress(id, buf); err != nil {
		p.log.WithError(err).Error("persist address projection")
		return
	}
	p.manager.BroadcastInventory(wire.InvItem{Type: wire.InvAccount, ID: id})
}

// haveLocally reports whether we already hold the object an inventory
// item names, so we neither re-fetch nor keep tracking it.
func (p *Processor) haveLocally(item wire.InvItem) bool {
	switch item.Type {
	case wire.InvBlock:
		_, err := p.store.GetBlock(item.ID)
		return err == nil
	case wire.InvAccount:
		_, err := p.store.GetAddress(item.ID)
		return err == nil
	case wire.InvTx:
		for _, tx := range p.pool.Snapshot() {
			if tx.ID == item.ID {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// handleInventory requests anything we lack and aren't already waiting
// on, then re-advertises the same inventory to every other peer
// (excluding whoever just sent it to us) so it propagates across the
// mesh.
func (p *Processor) handleInventory(j job) {
	list, err := wire.DecodeInventoryList(j.payload)
	if err != nil {
		p.log.WithError(err).Debug("dropped malformed inventory list")
		return
	}
	peer := j.conn.RemoteID()
	var toRequest []wire.InvItem
	for _, item := range list.Items {
		if p.inv.observe(peer, item.Type, item.ID, p.haveLocally(item)) {
			toRequest = append(toRequest, item)
		}
	}
	if len(toRequest) > 0 {
		req := &wire.InventoryList{Items: toRequest}
		j.conn.Send(wire.MsgGetData, req.Encode())
	}
	p.manager.BroadcastExcept(j.conn, wire.MsgInventory, list.Encode())
}

func (p *Processor) handleGetData(j job) {
	list, err := wire.DecodeInventoryList(j.payload)
	if err != nil {
		p.log.WithError(err).Debug("dropped malformed getdata request")
		return
	}
	for _, item := range list.Items {
		switch item.Type {
		case wire.InvBlock:
			raw, err := p.store.GetBlock(item.ID)
			if err != nil {
				continue
			}
			j.conn.Send(wire.MsgBlock, raw)
		case wire.InvTx:
			// Transactions live in the mempool, not storage, until a block
			// commits them; a peer asking for one we no longer have gets
			// nothing back.
			for _, tx := range p.pool.Snapshot() {
				if tx.ID == item.ID {
					buf := make([]byte, tx.Size())
					if _, err := tx.Serialize(buf, 0); err == nil {
						j.conn.Send(wire.MsgTransaction, buf)
					}
					break
				}
			}
		case wire.InvAccount:
			raw, err := p.store.GetAddress(item.ID)
			if err != nil {
				continue
			}
			payload := make([]byte, crypto.Size+len(raw))
			copy(payload, item.ID[:])
			copy(payload[crypto.Size:], raw)
			j.conn.Send(wire.MsgAccount, payload)
		}
	}
}
