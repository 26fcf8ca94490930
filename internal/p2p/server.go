package p2p

import (
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"duskledger/internal/ledger"
	"duskledger/internal/wire"
)

// backlog caps concurrent in-flight accepts, a TCP-level analogue of a
// bounded incoming-message channel.
const backlog = 30

// Server listens for inbound connections and hands each one to the
// manager. Default address/port come from config.Default (":8330").
type Server struct {
	listener net.Listener
	manager  *Manager
	nodeType wire.NodeType
	log      *logrus.Entry

	sem    chan struct{}
	wg     sync.WaitGroup
	stopCh chan struct{}
}

func NewServer(addr string, manager *Manager, nodeType wire.NodeType, log *logrus.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: ln,
		manager:  manager,
		nodeType: nodeType,
		log:      log.WithField("component", "p2p.server"),
		sem:      make(chan struct{}, backlog),
		stopCh:   make(chan struct{}),
	}, nil
}

// Start runs the accept loop in its own goroutine.
func (s *Server) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.stopCh:
					return
				default:
					s.log.WithError(err).Warn("accept failed")
					continue
				}
			}
			select {
			case s.sem <- struct{}{}:
			default:
				s.log.Warn("backlog full, rejecting connection")
				_ = conn.Close()
				continue
			}
			c := s.manager.adopt(conn)
			go s.handshakeInbound(c)
		}
	}()
}

func (s *Server) Stop() {
	close(s.stopCh)
	_ = s.listener.Close()
	s.wg.Wait()
}

func (s *Server) handshakeInbound(c *Connection) {
	defer func() { <-s.sem }()
	v := &wire.VersionPayload{ProtocolVersion: 1, NodeType: s.nodeType, PeerID: s.manager.localID}
	c.Send(wire.MsgVersion, v.Encode())
}

// Dial connects out to addr and sends our own VERSION handshake.
func (s *Server) Dial(addr string) (*Connection, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	c := s.manager.adopt(conn)
	v := &wire.VersionPayload{ProtocolVersion: 1, NodeType: s.nodeType, PeerID: s.manager.localID}
	c.Send(wire.MsgVersion, v.Encode())
	return c, nil
}

// BroadcastTxSetProposal implements consensus.Broadcaster.
func (m *Manager) BroadcastTxSetProposal(p *ledger.TxSetProposal) {
	buf := make([]byte, p.Size())
	if _, err := p.Serialize(buf, 0); err != nil {
		m.log.WithError(err).Error("serialize tx-set proposal for broadcast")
		return
	}
	m.Broadcast(wire.MsgBlockProposal, wire.EncodeProposal(wire.ProposalTxSet, buf))
}

// BroadcastBlockProposal implements consensus.Broadcaster.
func (m *Manager) BroadcastBlockProposal(p *ledger.BlockProposal) {
	buf := make([]byte, p.Size())
	if _, err := p.Serialize(buf, 0); err != nil {
		m.log.WithError(err).Error("serialize block proposal for broadcast")
		return
	}
	m.Broadcast(wire.MsgBlockProposal, wire.EncodeProposal(wire.ProposalBlock, buf))
}

// BroadcastInventory advertises a newly-seen object to every peer.
func (m *Manager) BroadcastInventory(item wire.InvItem) {
	l := &wire.InventoryList{Items: []wire.InvItem{item}}
	m.Broadcast(wire.MsgInventory, l.Encode())
}
