package processor

import (
	"sync"

	"duskledger/internal/crypto"
	"duskledger/internal/wire"
)

// invRecord tracks one advertised object: which peers have claimed to
// have it, and whether we have already sent a GETDATA for it.
//
// The design note this resolves: the original tracked "already
// requested" by overloading the advertisement counter itself with a
// sentinel value, which conflates "nobody has advertised this" with
// "we gave up waiting for it". Tracking requested as its own explicit
// bool removes that ambiguity outright.
type invRecord struct {
	kind      wire.InvType
	advertise map[crypto.Digest]bool
	requested bool
}

// inventory is the quorum tracker: an item is only worth fetching once
// enough distinct UNL members have advertised it.
type inventory struct {
	mu      sync.Mutex
	quorum  int
	records map[crypto.Digest]*invRecord
}

func newInventory(quorum int) *inventory {
	return &inventory{quorum: quorum, records: make(map[crypto.Digest]*invRecord)}
}

// observe records that peer advertised id/kind and reports whether this
// advertisement is the one that should trigger a GETDATA. BLOCK items
// need the quorum count (spec scenario 5: 80% of the UNL); TX and
// ACCOUNT items are fetched on the very first advertisement of
// something we lack, per spec §4.I. haveLocally lets the caller short
// circuit an item we already hold.
func (inv *inventory) observe(peer crypto.Digest, kind wire.InvType, id crypto.Digest, haveLocally bool) bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if haveLocally {
		delete(inv.records, id)
		return false
	}

	r, ok := inv.records[id]
	if !ok {
		r = &invRecord{kind: kind, advertise: make(map[crypto.Digest]bool)}
		inv.records[id] = r
	}
	r.advertise[peer] = true

	if r.requested {
		return false
	}
	if kind == wire.InvBlock && len(r.advertise) < inv.quorum {
		return false
	}
	r.requested = true
	return true
}

// fulfilled drops tracking for an id once its data has arrived.
func (inv *inventory) fulfilled(id crypto.Digest) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	delete(inv.records, id)
}

// isRequested reports whether id is a pending request we are still
// waiting on data for — internal/processor's BLOCK handler only
// accepts a block whose id clears this check.
func (inv *inventory) isRequested(id crypto.Digest) bool {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	r, ok := inv.records[id]
	return ok && r.requested
}
