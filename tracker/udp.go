package tracker

import (
	"encoding/binary"
	"math/rand"
	"net"
	"net/url"

	"github.com/cenkalti/backoff/v4"

	"github.com/ottobrain/torrentcore/errs"
)

// udpConnectMagic is the fixed connection id used to establish a new
// UDP tracker session (BEP 15).
const udpConnectMagic uint64 = 0x41727101980

const (
	actionConnect  uint32 = 0
	actionAnnounce uint32 = 1
	actionError    uint32 = 3
)

func announceUDP(u *url.URL, params Params) ([]Peer, error) {
	ipv6 := u.Scheme == "udp6"

	conn, err := net.Dial("udp", u.Host)
	if err != nil {
		return nil, errs.New(errs.TrackerProtocolError, "resolving/dialing UDP tracker", err)
	}
	defer conn.Close()

	var peers []Peer
	op := func() error {
		if err := conn.SetDeadline(deadline(params.timeout())); err != nil {
			return backoff.Permanent(err)
		}
		connID, err := udpConnect(conn)
		if err != nil {
			return err
		}
		if err := conn.SetDeadline(deadline(params.timeout())); err != nil {
			return backoff.Permanent(err)
		}
		p, err := udpAnnounce(conn, connID, params, ipv6)
		if err != nil {
			return err
		}
		peers = p
		return nil
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2)
	if err := backoff.Retry(op, policy); err != nil {
		if e, ok := err.(*errs.Error); ok {
			return nil, e
		}
		return nil, errs.New(errs.TrackerTimeout, "UDP tracker request timed out", err)
	}
	return peers, nil
}

func udpConnect(conn net.Conn) (uint64, error) {
	txID := rand.Uint32()

	req := make([]byte, 16)
	binary.BigEndian.PutUint64(req[0:8], udpConnectMagic)
	binary.BigEndian.PutUint32(req[8:12], actionConnect)
	binary.BigEndian.PutUint32(req[12:16], txID)

	if _, err := conn.Write(req); err != nil {
		return 0, classifyUDPError(err)
	}

	resp := make([]byte, 16)
	n, err := conn.Read(resp)
	if err != nil {
		return 0, classifyUDPError(err)
	}
	if n < 16 {
		return 0, errs.New(errs.TrackerProtocolError, "connect response shorter than 16 bytes", nil)
	}

	action := binary.BigEndian.Uint32(resp[0:4])
	gotTxID := binary.BigEndian.Uint32(resp[4:8])
	if action == actionError {
		return 0, backoff.Permanent(udpErrorResponse(resp[8:n]))
	}
	if action != actionConnect || gotTxID != txID {
		return 0, backoff.Permanent(errs.New(errs.TrackerProtocolError, "connect response action/transaction mismatch", nil))
	}
	return binary.BigEndian.Uint64(resp[8:16]), nil
}

func udpAnnounce(conn net.Conn, connID uint64, params Params, ipv6 bool) ([]Peer, error) {
	txID := rand.Uint32()

	req := make([]byte, 98)
	binary.BigEndian.PutUint64(req[0:8], connID)
	binary.BigEndian.PutUint32(req[8:12], actionAnnounce)
	binary.BigEndian.PutUint32(req[12:16], txID)
	copy(req[16:36], params.InfoHash[:])
	copy(req[36:56], params.PeerID[:])
	binary.BigEndian.PutUint64(req[56:64], uint64(params.Downloaded))
	binary.BigEndian.PutUint64(req[64:72], uint64(params.Left))
	binary.BigEndian.PutUint64(req[72:80], uint64(params.Uploaded))
	binary.BigEndian.PutUint32(req[80:84], params.Event.udpValue())
	binary.BigEndian.PutUint32(req[84:88], 0) // ip: 0 means "use sender's address"
	binary.BigEndian.PutUint32(req[88:92], rand.Uint32())
	binary.BigEndian.PutUint32(req[92:96], 0xFFFFFFFF) // num_want: -1, all peers
	binary.BigEndian.PutUint16(req[96:98], params.Port)

	if _, err := conn.Write(req); err != nil {
		return nil, classifyUDPError(err)
	}

	resp := make([]byte, 8192)
	n, err := conn.Read(resp)
	if err != nil {
		return nil, classifyUDPError(err)
	}
	if n < 20 {
		return nil, errs.New(errs.TrackerProtocolError, "announce response shorter than 20 bytes", nil)
	}
	resp = resp[:n]

	action := binary.BigEndian.Uint32(resp[0:4])
	gotTxID := binary.BigEndian.Uint32(resp[4:8])
	if action == actionError {
		return nil, backoff.Permanent(udpErrorResponse(resp[8:]))
	}
	if action != actionAnnounce || gotTxID != txID {
		return nil, backoff.Permanent(errs.New(errs.TrackerProtocolError, "announce response action/transaction mismatch", nil))
	}

	ipSize := net.IPv4len
	if ipv6 {
		ipSize = net.IPv6len
	}
	peers, err := parseCompactPeers(resp[20:], ipSize)
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	return peers, nil
}

func udpErrorResponse(body []byte) error {
	return errs.New(errs.TrackerRejected, string(body), nil)
}

func classifyUDPError(err error) error {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return errs.New(errs.TrackerTimeout, "UDP tracker timed out", err)
	}
	return err
}
