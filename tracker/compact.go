package tracker

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/ottobrain/torrentcore/errs"
)

// parseCompactPeers decodes the BEP-23 compact peer format: each
// entry is ipSize bytes of address followed by a 2-byte big-endian
// port.
func parseCompactPeers(data []byte, ipSize int) ([]Peer, error) {
	entrySize := ipSize + 2
	if len(data)%entrySize != 0 {
		return nil, errs.New(errs.TrackerProtocolError,
			fmt.Sprintf("compact peer list length %d is not a multiple of %d", len(data), entrySize), nil)
	}
	peers := make([]Peer, 0, len(data)/entrySize)
	for i := 0; i < len(data); i += entrySize {
		ip := make(net.IP, ipSize)
		copy(ip, data[i:i+ipSize])
		port := binary.BigEndian.Uint16(data[i+ipSize : i+entrySize])
		peers = append(peers, Peer{IP: ip, Port: port})
	}
	return peers, nil
}
