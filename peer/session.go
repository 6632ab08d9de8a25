package peer

import (
	"fmt"
	"log"
	"net"
	"time"

	"github.com/bits-and-blooms/bitset"

	"github.com/ottobrain/torrentcore/errs"
)

// dialTimeout bounds the TCP connect and handshake exchange.
const dialTimeout = 5 * time.Second

// Session is a single connection to a peer: its handshake state, the
// set of pieces it has announced, and our local choke/interest state.
// One Session serves one peer; callers run one per goroutine.
type Session struct {
	conn    net.Conn
	Address string

	availability *bitset.BitSet
	numPieces    int

	AmChoking      bool
	AmInterested   bool
	PeerChoking    bool
	PeerInterested bool
}

// Dial connects to address, performs the handshake, and reads the
// peer's first message (normally its bitfield or a have), applying it
// to session state. numPieces sizes the availability set.
func Dial(address string, infoHash, peerID [20]byte, numPieces int) (*Session, error) {
	conn, err := net.DialTimeout("tcp", address, dialTimeout)
	if err != nil {
		return nil, errs.New(errs.PeerUnreachable, fmt.Sprintf("dialing %s", address), err)
	}

	s := &Session{
		conn:         conn,
		Address:      address,
		availability: bitset.New(uint(numPieces)),
		numPieces:    numPieces,
		AmChoking:    true,
		PeerChoking:  true,
	}

	if err := s.handshake(infoHash, peerID); err != nil {
		conn.Close()
		return nil, err
	}

	// The wire convention is that the peer sends a bitfield (or a run
	// of have messages, or nothing if it holds no pieces) immediately
	// after the handshake. Exactly one message is read and applied
	// here; if the peer sends nothing within dialTimeout, Dial fails.
	if err := s.primeAvailability(); err != nil {
		conn.Close()
		return nil, err
	}

	return s, nil
}

func (s *Session) handshake(infoHash, peerID [20]byte) error {
	s.conn.SetDeadline(time.Now().Add(dialTimeout))
	defer s.conn.SetDeadline(time.Time{})

	out := Handshake{InfoHash: infoHash, PeerID: peerID}.Build()
	if _, err := s.conn.Write(out); err != nil {
		return errs.New(errs.PeerUnreachable, "writing handshake", err)
	}

	buf := make([]byte, HandshakeLen)
	if _, err := fillBuffer(s.conn, buf); err != nil {
		return errs.New(errs.PeerUnreachable, "reading handshake", err)
	}

	got, err := ParseHandshake(buf)
	if err != nil {
		return errs.New(errs.HandshakeMismatch, err.Error(), err)
	}
	if got.InfoHash != infoHash {
		return errs.New(errs.HandshakeMismatch, "info hash mismatch", nil)
	}
	return nil
}

func (s *Session) primeAvailability() error {
	s.conn.SetDeadline(time.Now().Add(dialTimeout))
	defer s.conn.SetDeadline(time.Time{})

	msg, err := ReadMessage(s.conn)
	if err != nil {
		return errs.New(errs.PeerUnreachable, "reading initial announcement", err)
	}
	return s.handleControl(msg)
}

// handleControl applies a non-piece message's effect to session state.
// It is a no-op (and returns nil) for a MsgPiece message; callers that
// need piece payloads use readBlock instead. Unknown message ids and
// payloads of the wrong length for their id are logged and skipped
// rather than treated as fatal: only a failed write (e.g. sending
// interested in response) returns an error here.
func (s *Session) handleControl(msg *Message) error {
	if msg.ID > MsgCancel {
		log.Printf("peer %s: skipping unknown message id %d", s.Address, msg.ID)
		return nil
	}
	if !msg.ID.BodyLenOK(msg.Payload) {
		log.Printf("peer %s: skipping %s with malformed payload length %d", s.Address, msg.ID, len(msg.Payload))
		return nil
	}

	switch msg.ID {
	case MsgChoke:
		s.PeerChoking = true
	case MsgUnchoke:
		s.PeerChoking = false
	case MsgInterested:
		s.PeerInterested = true
	case MsgNotInterested:
		s.PeerInterested = false
	case MsgHave:
		index, _ := ParseHave(msg.Payload)
		s.markAvailable(index)
		return s.declareInterestIfAvailable()
	case MsgBitfield:
		bf := Bitfield(msg.Payload)
		for i := 0; i < s.numPieces; i++ {
			if bf.Has(i) {
				s.availability.Set(uint(i))
			}
		}
		return s.declareInterestIfAvailable()
	case MsgPiece:
		// handled by readBlock; nothing to update here.
	case MsgRequest, MsgCancel:
		// We don't serve uploads; ignore silently rather than disconnect.
	}
	return nil
}

// declareInterestIfAvailable sends interested the first time the peer
// has announced at least one piece. It is a no-op on subsequent calls
// once AmInterested is set.
func (s *Session) declareInterestIfAvailable() error {
	if s.AmInterested || s.availability.Count() == 0 {
		return nil
	}
	return s.SendInterested()
}

// markAvailable records that the peer holds piece index, silently
// ignoring indices beyond numPieces.
func (s *Session) markAvailable(index int) {
	if index < 0 || index >= s.numPieces {
		return
	}
	s.availability.Set(uint(index))
}

// HasPiece reports whether the peer has announced piece index.
func (s *Session) HasPiece(index int) bool {
	if index < 0 || index >= s.numPieces {
		return false
	}
	return s.availability.Test(uint(index))
}

// SendInterested tells the peer we want its pieces.
func (s *Session) SendInterested() error {
	s.AmInterested = true
	return s.write(InterestedMsg())
}

// SendUnchoke lifts a choke we previously applied to the peer's requests.
func (s *Session) SendUnchoke() error {
	s.AmChoking = false
	return s.write(UnchokeMsg())
}

// SendHave announces that we finished downloading piece index.
func (s *Session) SendHave(index int) error {
	return s.write(HaveMsg(index))
}

func (s *Session) write(b []byte) error {
	if _, err := s.conn.Write(b); err != nil {
		return errs.New(errs.PeerUnreachable, "writing to peer", err)
	}
	return nil
}

// Close tears down the underlying connection.
func (s *Session) Close() error {
	return s.conn.Close()
}

func fillBuffer(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
