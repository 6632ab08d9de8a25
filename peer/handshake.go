package peer

import (
	"bytes"
	"fmt"
)

// protocolID is the fixed protocol name every handshake advertises.
const protocolID = "BitTorrent protocol"

// HandshakeLen is the wire length of a handshake message: 1 + 19 + 8 + 20 + 20.
const HandshakeLen = 1 + len(protocolID) + 8 + 20 + 20

// Handshake is the 68-byte message exchanged before any other traffic
// on a peer connection.
type Handshake struct {
	InfoHash [20]byte
	PeerID   [20]byte
}

// Build serialises h into the wire handshake. The 8 reserved extension
// bytes are left zeroed; we don't advertise any extension bits.
func (h Handshake) Build() []byte {
	buf := make([]byte, HandshakeLen)
	buf[0] = byte(len(protocolID))
	copy(buf[1:], protocolID)
	copy(buf[1+len(protocolID)+8:], h.InfoHash[:])
	copy(buf[1+len(protocolID)+8+20:], h.PeerID[:])
	return buf
}

// ParseHandshake validates and decodes a received handshake. It does
// not check InfoHash against an expected value; callers compare that
// themselves so the error can be attributed precisely.
func ParseHandshake(data []byte) (Handshake, error) {
	if len(data) != HandshakeLen {
		return Handshake{}, fmt.Errorf("peer: handshake length %d, want %d", len(data), HandshakeLen)
	}
	plen := int(data[0])
	if plen != len(protocolID) || !bytes.Equal(data[1:1+plen], []byte(protocolID)) {
		return Handshake{}, fmt.Errorf("peer: unrecognised protocol %q", data[1:1+min(plen, len(data)-1)])
	}
	var h Handshake
	copy(h.InfoHash[:], data[1+plen+8:1+plen+28])
	copy(h.PeerID[:], data[1+plen+28:1+plen+48])
	return h, nil
}
