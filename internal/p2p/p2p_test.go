package p2p

import (
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"duskledger/internal/crypto"
	"duskledger/internal/wire"
)

func nopLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(nopWriter{})
	return l.WithField("test", true)
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestWinnerIsLocalIsDeterministicAndAntisymmetric(t *testing.T) {
	a := crypto.Hash([]byte("a"))
	b := crypto.Hash([]byte("b"))
	require.NotEqual(t, winnerIsLocal(a, b), winnerIsLocal(b, a))
}

func TestConnectionDeliversFramedMessages(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	received := make(chan wire.MessageType, 1)
	c := newConnection(serverConn, crypto.Digest{}, nopLog(), func(_ *Connection, msgType wire.MessageType, _ []byte) {
		received <- msgType
	}, func(*Connection) {})
	go c.run()
	defer c.Close()

	require.NoError(t, wire.WriteFrame(clientConn, wire.MsgAck, nil))

	select {
	case got := <-received:
		require.Equal(t, wire.MsgAck, got)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivered message")
	}
}

func TestConnectionSendWritesFrameToPeer(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()

	c := newConnection(clientConn, crypto.Digest{}, nopLog(), func(*Connection, wire.MessageType, []byte) {}, func(*Connection) {})
	go c.run()
	defer c.Close()

	c.Send(wire.MsgAck, nil)

	msgType, _, err := wire.ReadFrame(serverConn)
	require.NoError(t, err)
	require.Equal(t, wire.MsgAck, msgType)
}
