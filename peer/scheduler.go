package peer

import (
	"bytes"
	"crypto/sha1"
	"fmt"
	"time"

	"github.com/ottobrain/torrentcore/errs"
)

// BlockSize is the max number of bytes requested in a single block,
// the conventional BitTorrent value.
const BlockSize = 1 << 14

// MaxPipeline bounds how many block requests may be outstanding at once.
const MaxPipeline = 5

// pieceTimeout is the deadline for downloading one whole piece, so a
// single stuck peer doesn't block a download forever.
const pieceTimeout = 15 * time.Second

// DownloadPiece fetches and verifies piece index, whose plaintext is
// length bytes long and must hash to expectedHash. It pipelines block
// requests up to MaxPipeline outstanding, waiting for the peer to
// unchoke us before issuing any. A hash mismatch is returned as an
// error so the caller can re-request the piece from another peer.
func (s *Session) DownloadPiece(index int, length int, expectedHash [20]byte) ([]byte, error) {
	s.conn.SetDeadline(time.Now().Add(pieceTimeout))
	defer s.conn.SetDeadline(time.Time{})

	buf := make([]byte, length)
	downloaded := 0
	requested := 0
	inFlight := 0

	for downloaded < length {
		for !s.PeerChoking && inFlight < MaxPipeline && requested < length {
			begin := requested
			blockLen := BlockSize
			if begin+blockLen > length {
				blockLen = length - begin
			}
			if err := s.write(RequestMsg(index, begin, blockLen)); err != nil {
				return nil, err
			}
			requested += blockLen
			inFlight++
		}

		block, err := s.readBlock()
		if err != nil {
			return nil, errs.New(errs.PeerProtocolError, "reading piece data", err)
		}
		if block == nil {
			continue
		}
		if block.Index != index {
			continue
		}
		if block.Begin+len(block.Data) > length {
			return nil, errs.New(errs.PeerProtocolError,
				fmt.Sprintf("block extends to %d, past piece length %d", block.Begin+len(block.Data), length), nil)
		}
		downloaded += copy(buf[block.Begin:], block.Data)
		inFlight--
	}

	if got := sha1.Sum(buf); !bytes.Equal(got[:], expectedHash[:]) {
		return nil, errs.New(errs.PeerProtocolError,
			fmt.Sprintf("piece %d failed hash check", index), nil)
	}
	return buf, nil
}

// readBlock reads one message, applying control messages to session
// state and returning the payload of a piece message, or nil if the
// message just read was a control message.
func (s *Session) readBlock() (*Block, error) {
	msg, err := ReadMessage(s.conn)
	if err != nil {
		return nil, err
	}
	if msg.ID == MsgPiece {
		block, err := ParseBlock(msg.Payload)
		if err != nil {
			return nil, err
		}
		return &block, nil
	}
	if err := s.handleControl(msg); err != nil {
		return nil, err
	}
	return nil, nil
}
