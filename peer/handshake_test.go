package peer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandshakeBuildLayout(t *testing.T) {
	var infoHash, peerID [20]byte
	for i := range infoHash {
		infoHash[i] = byte(i)
		peerID[i] = byte(i + 100)
	}
	h := Handshake{InfoHash: infoHash, PeerID: peerID}
	wire := h.Build()

	require.Len(t, wire, HandshakeLen)
	require.Equal(t, byte(19), wire[0])
	require.Equal(t, "BitTorrent protocol", string(wire[1:20]))
	require.Equal(t, infoHash[:], wire[28:48])
	require.Equal(t, peerID[:], wire[48:68])
}

func TestHandshakeRoundTrip(t *testing.T) {
	var infoHash, peerID [20]byte
	infoHash[0] = 0xAB
	peerID[0] = 0xCD

	wire := Handshake{InfoHash: infoHash, PeerID: peerID}.Build()
	got, err := ParseHandshake(wire)
	require.NoError(t, err)
	require.Equal(t, infoHash, got.InfoHash)
	require.Equal(t, peerID, got.PeerID)
}

func TestParseHandshakeRejectsWrongLength(t *testing.T) {
	_, err := ParseHandshake(make([]byte, 10))
	require.Error(t, err)
}

func TestParseHandshakeRejectsWrongProtocol(t *testing.T) {
	wire := Handshake{}.Build()
	wire[1] = 'x'
	_, err := ParseHandshake(wire)
	require.Error(t, err)
}
