package p2p

import (
	"encoding/hex"
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"duskledger/internal/crypto"
	"duskledger/internal/wire"
)

// Dispatcher is what the manager routes an inbound message to, once the
// processor decides it is worth looking at. Its signature mirrors the
// early/late split of spec §4.I: every message past the VERSION/ACK
// handshake is handed here with its originating connection and raw
// payload.
type Dispatcher interface {
	Dispatch(from *Connection, msgType wire.MessageType, payload []byte)
}

// castKind is how a MessageRequest's target set is chosen.
type castKind int

const (
	castOne castKind = iota
	castBroadcast
	castUNL
	castExcept
)

type messageRequest struct {
	kind    castKind
	target  crypto.Digest
	except  *Connection
	msgType wire.MessageType
	payload []byte
}

// Manager owns the live connection set and is the single goroutine that
// ever mutates it, serializing accepts, drops, and casts through
// channels instead of a mutex.
type Manager struct {
	localID crypto.Digest
	unl     map[crypto.Digest]bool
	log     *logrus.Entry

	dispatcher Dispatcher

	connectCh    chan *Connection
	disconnectCh chan *Connection
	confirmCh    chan *Connection
	castCh       chan messageRequest
	stopCh       chan struct{}
	wg           sync.WaitGroup

	byRemote map[crypto.Digest]*Connection
	all      map[*Connection]struct{}
}

func NewManager(localID crypto.Digest, unl map[crypto.Digest]bool, log *logrus.Logger) *Manager {
	return &Manager{
		localID:      localID,
		unl:          unl,
		log:          log.WithField("component", "p2p"),
		connectCh:    make(chan *Connection, 16),
		disconnectCh: make(chan *Connection, 16),
		confirmCh:    make(chan *Connection, 16),
		castCh:       make(chan messageRequest, 256),
		stopCh:       make(chan struct{}),
		byRemote:     make(map[crypto.Digest]*Connection),
		all:          make(map[*Connection]struct{}),
	}
}

// SetDispatcher wires the processor in. Must be called before Start.
func (m *Manager) SetDispatcher(d Dispatcher) { m.dispatcher = d }

func (m *Manager) Start() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case <-m.stopCh:
				return
			case c := <-m.connectCh:
				m.handleConnect(c)
			case c := <-m.disconnectCh:
				m.handleDisconnect(c)
			case c := <-m.confirmCh:
				m.registerConfirmed(c)
			case req := <-m.castCh:
				m.handleCast(req)
			}
		}
	}()
}

func (m *Manager) Stop() {
	close(m.stopCh)
	m.wg.Wait()
	for c := range m.all {
		c.Close()
	}
}

// adopt wraps a raw net.Conn as a Connection and registers it, whether
// dialed by us or accepted from the listener.
func (m *Manager) adopt(conn net.Conn) *Connection {
	c := newConnection(conn, m.localID, m.log, m.onMessage, m.onDisconnect)
	m.connectCh <- c
	go c.run()
	return c
}

// onMessage implements the early/late split of spec §4.I: VERSION and
// ACK are handled here, inline, because the handshake cannot wait on the
// processor's priority queue; everything else is only ever handed to the
// dispatcher once the connection is confirmed.
func (m *Manager) onMessage(c *Connection, msgType wire.MessageType, payload []byte) {
	switch msgType {
	case wire.MsgVersion:
		v, err := wire.DecodeVersion(payload)
		if err != nil {
			m.log.WithError(err).Debug("bad version payload")
			c.Close()
			return
		}
		c.setRemoteID(v.PeerID)
		c.Send(wire.MsgAck, nil)
		return
	case wire.MsgAck:
		if c.confirmOnce() {
			m.confirmCh <- c
		}
		return
	}
	if !c.isConfirmed() {
		m.log.Debug("dropping message from unconfirmed connection")
		return
	}
	if m.dispatcher != nil {
		m.dispatcher.Dispatch(c, msgType, payload)
	}
}

func (m *Manager) onDisconnect(c *Connection) {
	m.disconnectCh <- c
}

func (m *Manager) handleConnect(c *Connection) {
	m.all[c] = struct{}{}
}

// handleDisconnect forgets c. It removes c from the byRemote index only
// while c is still the connection registered for its remote id, so the
// disconnect of a duplicate that registerConfirmed already dropped
// leaves the surviving connection registered.
func (m *Manager) handleDisconnect(c *Connection) {
	delete(m.all, c)
	remote := c.RemoteID()
	if existing, ok := m.byRemote[remote]; ok && existing == c {
		delete(m.byRemote, remote)
	}
}

// registerConfirmed records c under its now-known remote id. If a
// connection to remote is already registered, this is the simultaneous-
// dial case: the lexicographically smaller local id keeps the
// newly-confirmed connection c and drops the existing one; the larger
// id keeps its existing connection and drops the new duplicate. Applied
// symmetrically on both peers this converges on one surviving
// connection per spec §8 scenario 4.
func (m *Manager) registerConfirmed(c *Connection) {
	remote := c.RemoteID()
	existing, ok := m.byRemote[remote]
	if !ok {
		m.byRemote[remote] = c
		return
	}
	if existing == c {
		return
	}
	if winnerIsLocal(m.localID, remote) {
		existing.Close()
		m.byRemote[remote] = c
		return
	}
	c.Close()
}

// winnerIsLocal reports whether, between this node's id and a peer's
// id, the local id is lexicographically smaller and therefore keeps its
// connection on a duplicate.
func winnerIsLocal(local, remote crypto.Digest) bool {
	return hex.EncodeToString(local[:]) < hex.EncodeToString(remote[:])
}

func (m *Manager) handleCast(req messageRequest) {
	switch req.kind {
	case castOne:
		if c, ok := m.byRemote[req.target]; ok {
			c.Send(req.msgType, req.payload)
		}
	case castBroadcast:
		for c := range m.all {
			if c.isConfirmed() {
				c.Send(req.msgType, req.payload)
			}
		}
	case castUNL:
		for id, c := range m.byRemote {
			if m.unl[id] {
				c.Send(req.msgType, req.payload)
			}
		}
	case castExcept:
		for c := range m.all {
			if c.isConfirmed() && c != req.except {
				c.Send(req.msgType, req.payload)
			}
		}
	}
}

// Broadcast sends a message to every confirmed connection.
func (m *Manager) Broadcast(msgType wire.MessageType, payload []byte) {
	m.castCh <- messageRequest{kind: castBroadcast, msgType: msgType, payload: payload}
}

// BroadcastUNL sends a message only to confirmed connections whose peer
// id is a UNL member.
func (m *Manager) BroadcastUNL(msgType wire.MessageType, payload []byte) {
	m.castCh <- messageRequest{kind: castUNL, msgType: msgType, payload: payload}
}

// SendTo sends a message to one specific peer, if currently connected.
func (m *Manager) SendTo(target crypto.Digest, msgType wire.MessageType, payload []byte) {
	m.castCh <- messageRequest{kind: castOne, target: target, msgType: msgType, payload: payload}
}

// BroadcastExcept sends a message to every confirmed connection other
// than except, used to re-forward an INVENTORY without echoing it back
// to whoever just sent it to us.
func (m *Manager) BroadcastExcept(except *Connection, msgType wire.MessageType, payload []byte) {
	m.castCh <- messageRequest{kind: castExcept, except: except, msgType: msgType, payload: payload}
}
