package peer

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MessageID identifies the payload format of a peer wire message.
type MessageID uint8

const (
	MsgChoke MessageID = iota
	MsgUnchoke
	MsgInterested
	MsgNotInterested
	MsgHave
	MsgBitfield
	MsgRequest
	MsgPiece
	MsgCancel
)

func (id MessageID) String() string {
	switch id {
	case MsgChoke:
		return "choke"
	case MsgUnchoke:
		return "unchoke"
	case MsgInterested:
		return "interested"
	case MsgNotInterested:
		return "not_interested"
	case MsgHave:
		return "have"
	case MsgBitfield:
		return "bitfield"
	case MsgRequest:
		return "request"
	case MsgPiece:
		return "piece"
	case MsgCancel:
		return "cancel"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(id))
	}
}

// Message is a single framed peer wire message, minus its length
// prefix. A nil *Message (no error) represents a keepalive.
type Message struct {
	ID      MessageID
	Payload []byte
}

// Serialize returns the wire encoding of msg: a 4-byte big-endian
// length followed by the id byte and payload.
func (msg *Message) Serialize() []byte {
	if msg == nil {
		return make([]byte, 4)
	}
	length := uint32(len(msg.Payload) + 1)
	buf := make([]byte, 4+length)
	binary.BigEndian.PutUint32(buf, length)
	buf[4] = byte(msg.ID)
	copy(buf[5:], msg.Payload)
	return buf
}

// readMessage reads exactly one frame. A zero-length frame (keepalive)
// yields (nil, nil).
func readMessage(r io.Reader) (*Message, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length == 0 {
		return nil, nil
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return &Message{ID: MessageID(body[0]), Payload: body[1:]}, nil
}

// ReadMessage reads and discards keepalives until a real message
// arrives; keepalives carry no information and need no response.
func ReadMessage(r io.Reader) (*Message, error) {
	for {
		msg, err := readMessage(r)
		if err != nil {
			return nil, err
		}
		if msg != nil {
			return msg, nil
		}
	}
}

func simpleMessage(id MessageID) []byte {
	return (&Message{ID: id}).Serialize()
}

// ChokeMsg, UnchokeMsg, InterestedMsg and NotInterestedMsg are the
// zero-payload state transition messages.
func ChokeMsg() []byte         { return simpleMessage(MsgChoke) }
func UnchokeMsg() []byte       { return simpleMessage(MsgUnchoke) }
func InterestedMsg() []byte    { return simpleMessage(MsgInterested) }
func NotInterestedMsg() []byte { return simpleMessage(MsgNotInterested) }

// HaveMsg announces possession of piece index.
func HaveMsg(index int) []byte {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, uint32(index))
	return (&Message{ID: MsgHave, Payload: payload}).Serialize()
}

// BitfieldMsg announces the full set of held pieces.
func BitfieldMsg(bf Bitfield) []byte {
	return (&Message{ID: MsgBitfield, Payload: []byte(bf)}).Serialize()
}

// RequestMsg asks for a block of length bytes at begin within piece index.
func RequestMsg(index, begin, length int) []byte {
	payload := make([]byte, 12)
	binary.BigEndian.PutUint32(payload[0:4], uint32(index))
	binary.BigEndian.PutUint32(payload[4:8], uint32(begin))
	binary.BigEndian.PutUint32(payload[8:12], uint32(length))
	return (&Message{ID: MsgRequest, Payload: payload}).Serialize()
}

// PieceMsg delivers block's bytes at begin within piece index.
func PieceMsg(index, begin int, block []byte) []byte {
	payload := make([]byte, 8+len(block))
	binary.BigEndian.PutUint32(payload[0:4], uint32(index))
	binary.BigEndian.PutUint32(payload[4:8], uint32(begin))
	copy(payload[8:], block)
	return (&Message{ID: MsgPiece, Payload: payload}).Serialize()
}

// CancelMsg withdraws a previously sent request.
func CancelMsg(index, begin, length int) []byte {
	payload := make([]byte, 12)
	binary.BigEndian.PutUint32(payload[0:4], uint32(index))
	binary.BigEndian.PutUint32(payload[4:8], uint32(begin))
	binary.BigEndian.PutUint32(payload[8:12], uint32(length))
	return (&Message{ID: MsgCancel, Payload: payload}).Serialize()
}

// Block is a parsed MsgPiece payload.
type Block struct {
	Index int
	Begin int
	Data  []byte
}

// ParseBlock decodes a piece message's payload.
func ParseBlock(payload []byte) (Block, error) {
	if len(payload) < 8 {
		return Block{}, fmt.Errorf("peer: piece payload length %d shorter than 8", len(payload))
	}
	return Block{
		Index: int(binary.BigEndian.Uint32(payload[0:4])),
		Begin: int(binary.BigEndian.Uint32(payload[4:8])),
		Data:  payload[8:],
	}, nil
}

// ParseRequest decodes a request/cancel message's payload.
func ParseRequest(payload []byte) (index, begin, length int, err error) {
	if len(payload) != 12 {
		return 0, 0, 0, fmt.Errorf("peer: request payload length %d, want 12", len(payload))
	}
	return int(binary.BigEndian.Uint32(payload[0:4])),
		int(binary.BigEndian.Uint32(payload[4:8])),
		int(binary.BigEndian.Uint32(payload[8:12])),
		nil
}

// ParseHave decodes a have message's payload.
func ParseHave(payload []byte) (int, error) {
	if len(payload) != 4 {
		return 0, fmt.Errorf("peer: have payload length %d, want 4", len(payload))
	}
	return int(binary.BigEndian.Uint32(payload)), nil
}

// BodyLenOK reports whether payload has the length id's body
// requires: an exact length for the fixed-size ids, and at least 8
// bytes (index and begin) for piece. Bitfield and unknown ids always
// pass: their length is only bounded by the frame itself. A message with
// the wrong body length for its id is malformed but not fatal to the
// session - the caller skips it and keeps reading.
func (id MessageID) BodyLenOK(payload []byte) bool {
	switch id {
	case MsgChoke, MsgUnchoke, MsgInterested, MsgNotInterested:
		return len(payload) == 0
	case MsgHave:
		return len(payload) == 4
	case MsgRequest, MsgCancel:
		return len(payload) == 12
	case MsgPiece:
		return len(payload) >= 8
	default:
		return true
	}
}
