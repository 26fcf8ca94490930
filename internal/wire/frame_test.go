package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"duskledger/internal/crypto"
)

func TestWriteReadFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("a transaction's serialized bytes")
	require.NoError(t, WriteFrame(&buf, MsgTransaction, payload))

	gotType, gotPayload, err := ReadFrame(&buf)
	require.NoError(t, err)
	require.Equal(t, MsgTransaction, gotType)
	require.Equal(t, payload, gotPayload)
}

func TestReadFrameRejectsBadMagic(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, MsgAck, nil))
	corrupted := buf.Bytes()
	corrupted[0] ^= 0xFF

	_, _, err := ReadFrame(bytes.NewReader(corrupted))
	require.ErrorIs(t, err, ErrBadMagic)
}

func TestReadFrameRejectsBadChecksum(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, MsgTransaction, []byte("payload")))
	corrupted := buf.Bytes()
	corrupted[len(corrupted)-1] ^= 0xFF

	_, _, err := ReadFrame(bytes.NewReader(corrupted))
	require.ErrorIs(t, err, ErrBadChecksum)
}

func TestMessageTypePriorityOrder(t *testing.T) {
	require.Less(t, int(MsgVersion), int(MsgAck))
	require.Less(t, int(MsgAck), int(MsgInventory))
	require.Less(t, int(MsgInventory), int(MsgGetData))
	require.Less(t, int(MsgGetData), int(MsgTransaction))
	require.Less(t, int(MsgTransaction), int(MsgBlockProposal))
	require.Less(t, int(MsgBlockProposal), int(MsgAccount))
	require.Less(t, int(MsgAccount), int(MsgBlock))
}

func TestVersionPayloadRoundTrip(t *testing.T) {
	v := VersionPayload{ProtocolVersion: 1, NodeType: NodeValidator, PeerID: crypto.Hash([]byte("peer"))}
	got, err := DecodeVersion(v.Encode())
	require.NoError(t, err)
	require.Equal(t, v, got)
}

func TestInventoryListRoundTrip(t *testing.T) {
	l := InventoryList{Items: []InvItem{
		{Type: InvBlock, ID: crypto.Hash([]byte("block"))},
		{Type: InvTx, ID: crypto.Hash([]byte("tx"))},
	}}
	got, err := DecodeInventoryList(l.Encode())
	require.NoError(t, err)
	require.Equal(t, l, got)
}

func TestProposalEnvelopeRoundTrip(t *testing.T) {
	inner := []byte("inner proposal bytes")
	encoded := EncodeProposal(ProposalTxSet, inner)
	kind, got, err := DecodeProposal(encoded)
	require.NoError(t, err)
	require.Equal(t, ProposalTxSet, kind)
	require.Equal(t, inner, got)
}

func TestMagicMatchesSHA512OfEmptyString(t *testing.T) {
	h := crypto.Hash(nil)
	require.Equal(t, h[0], byte(Magic))
}
