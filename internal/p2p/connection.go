// Package p2p owns the node's TCP connections and the single goroutine
// that serializes the peer set against concurrent accept/dial/drop
// events. The wire protocol itself (internal/wire) is a fixed binary
// envelope, not a stream-multiplexed or pubsub one, so this talks
// directly to net.Conn rather than reaching for a library like
// orbas1-Synnergy's libp2p host; the reader/writer-goroutine-per-connection
// shape and the manager's single-owner channel pattern carry over the
// in-memory simulated network's per-peer delivery model
// (Peer.conceptualPeerMessageProcessor, SimulatedNetwork.sendToPeers),
// adapted from channel-only delivery to real net.Conn I/O.
package p2p

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"duskledger/internal/crypto"
	"duskledger/internal/wire"
)

// connState is where a Connection stands in its handshake lifecycle.
type connState int

const (
	stateUnconfirmed connState = iota
	stateConfirmed
)

// frame is one outbound message queued for a connection's writer
// goroutine.
type frame struct {
	msgType wire.MessageType
	payload []byte
}

// Connection is one TCP link to a peer, plain or UNL, in either
// direction. localID records this node's own id; the manager resolves a
// simultaneous-dial duplicate with its own copy of that id.
type Connection struct {
	conn     net.Conn
	localID  crypto.Digest
	remoteID crypto.Digest
	log      *logrus.Entry

	mu    sync.Mutex
	state connState

	sendCh chan frame
	closed chan struct{}
	once   sync.Once

	onMessage    func(c *Connection, msgType wire.MessageType, payload []byte)
	onDisconnect func(c *Connection)
}

const sendQueueDepth = 64

// newConnection tags every connection with a session id so its log lines
// stay correlated across the reader and writer goroutines even once two
// connections to the same remote peer have come and gone.
func newConnection(conn net.Conn, localID crypto.Digest, log *logrus.Entry, onMessage func(*Connection, wire.MessageType, []byte), onDisconnect func(*Connection)) *Connection {
	sessionID := uuid.NewString()
	return &Connection{
		conn:         conn,
		localID:      localID,
		log:          log.WithField("session", sessionID),
		sendCh:       make(chan frame, sendQueueDepth),
		closed:       make(chan struct{}),
		onMessage:    onMessage,
		onDisconnect: onDisconnect,
	}
}

// RemoteID is the peer id learned from its VERSION handshake; the zero
// digest until then.
func (c *Connection) RemoteID() crypto.Digest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remoteID
}

// setRemoteID records the peer id carried by an inbound VERSION. It does
// not itself confirm the connection — spec §4.H confirms only once the
// matching ACK is processed.
func (c *Connection) setRemoteID(remoteID crypto.Digest) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remoteID = remoteID
}

// confirmOnce marks the connection confirmed on its first ACK and
// reports whether this call is the one that did so. A repeat ACK on an
// already-confirmed connection reports false and changes nothing,
// giving ACK the idempotent no-op behavior spec §8 requires.
func (c *Connection) confirmOnce() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateConfirmed {
		return false
	}
	c.state = stateConfirmed
	return true
}

func (c *Connection) isConfirmed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateConfirmed
}

// Send queues msgType/payload for the writer goroutine. A full queue
// drops the message rather than blocking the manager goroutine.
func (c *Connection) Send(msgType wire.MessageType, payload []byte) {
	select {
	case c.sendCh <- frame{msgType: msgType, payload: payload}:
	default:
		c.log.WithField("type", msgType).Warn("send queue full, dropping message")
	}
}

// run starts the reader and writer goroutines and blocks until either
// side closes. Call in its own goroutine.
func (c *Connection) run() {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.readLoop()
	}()
	go func() {
		defer wg.Done()
		c.writeLoop()
	}()
	wg.Wait()
	if c.onDisconnect != nil {
		c.onDisconnect(c)
	}
}

// maxConsecutiveBadFrames bounds how long a stream of malformed frames
// is tolerated: a single bad magic/checksum drops the frame and keeps
// the connection open, but a run of them past this count closes it.
const maxConsecutiveBadFrames = 5

func (c *Connection) readLoop() {
	defer c.Close()
	badFrames := 0
	for {
		msgType, payload, err := wire.ReadFrame(c.conn)
		if err != nil {
			if isDecodeFailure(err) {
				badFrames++
				c.log.WithError(err).Debug("dropped malformed frame")
				if badFrames < maxConsecutiveBadFrames {
					continue
				}
				c.log.Warn("too many consecutive malformed frames, closing")
			} else {
				c.log.WithError(err).Debug("connection read failed, closing")
			}
			return
		}
		badFrames = 0
		if c.onMessage != nil {
			c.onMessage(c, msgType, payload)
		}
	}
}

// isDecodeFailure reports whether err is a framing-level DecodeFailure
// (bad magic, bad checksum) as opposed to a real I/O failure (EOF,
// connection reset): the former is dropped and retried, the latter ends
// the connection immediately.
func isDecodeFailure(err error) bool {
	return errors.Is(err, wire.ErrBadMagic) || errors.Is(err, wire.ErrBadChecksum)
}

func (c *Connection) writeLoop() {
	for {
		select {
		case <-c.closed:
			return
		case f := <-c.sendCh:
			if err := wire.WriteFrame(c.conn, f.msgType, f.payload); err != nil {
				c.log.WithError(err).Debug("connection write failed, closing")
				c.Close()
				return
			}
		}
	}
}

// Close shuts the connection down at most once.
func (c *Connection) Close() {
	c.once.Do(func() {
		close(c.closed)
		_ = c.conn.Close()
	})
}

func (c *Connection) setDeadline(d time.Duration) {
	if d > 0 {
		_ = c.conn.SetDeadline(time.Now().Add(d))
	}
}
