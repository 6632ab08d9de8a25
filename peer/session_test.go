package peer

import (
	"crypto/sha1"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakePeer runs a minimal peer endpoint on a loopback listener: it
// accepts one connection, replies to the handshake, sends the given
// announcement message, then runs handler against the connection.
func fakePeer(t *testing.T, infoHash [20]byte, announce []byte, handler func(conn net.Conn)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		defer ln.Close()
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		buf := make([]byte, HandshakeLen)
		if _, err := fillBuffer(conn, buf); err != nil {
			return
		}
		var peerID [20]byte
		peerID[0] = 0xEE
		conn.Write(Handshake{InfoHash: infoHash, PeerID: peerID}.Build())

		if announce != nil {
			conn.Write(announce)
		}
		if handler != nil {
			handler(conn)
		}
	}()

	return ln.Addr().String()
}

func TestDialHandshakeAndBitfield(t *testing.T) {
	var infoHash, peerID [20]byte
	infoHash[0] = 1

	bf := NewBitfield(4)
	bf.Set(0)
	bf.Set(2)

	addr := fakePeer(t, infoHash, BitfieldMsg(bf), nil)

	sess, err := Dial(addr, infoHash, peerID, 4)
	require.NoError(t, err)
	defer sess.Close()

	require.True(t, sess.HasPiece(0))
	require.False(t, sess.HasPiece(1))
	require.True(t, sess.HasPiece(2))
	require.False(t, sess.HasPiece(3))
	require.True(t, sess.AmInterested)
}

func TestDialRejectsInfoHashMismatch(t *testing.T) {
	var infoHash, otherHash, peerID [20]byte
	infoHash[0] = 1
	otherHash[0] = 2

	addr := fakePeer(t, otherHash, UnchokeMsg(), nil)

	_, err := Dial(addr, infoHash, peerID, 1)
	require.Error(t, err)
}

func TestSessionHaveUpdatesAvailabilityInPlace(t *testing.T) {
	var infoHash, peerID [20]byte
	infoHash[0] = 3

	haveResponses := make(chan struct{})
	addr := fakePeer(t, infoHash, UnchokeMsg(), func(conn net.Conn) {
		conn.Write(HaveMsg(5))
		close(haveResponses)
	})

	sess, err := Dial(addr, infoHash, peerID, 10)
	require.NoError(t, err)
	defer sess.Close()
	require.False(t, sess.PeerChoking)

	<-haveResponses
	msg, err := ReadMessage(sess.conn)
	require.NoError(t, err)
	require.NoError(t, sess.handleControl(msg))
	require.True(t, sess.HasPiece(5))
	require.True(t, sess.AmInterested)
}

func TestHaveBeyondTotalPiecesIgnoredAndNotInteresting(t *testing.T) {
	var infoHash, peerID [20]byte
	infoHash[0] = 4

	addr := fakePeer(t, infoHash, HaveMsg(99), nil)

	sess, err := Dial(addr, infoHash, peerID, 10)
	require.NoError(t, err)
	defer sess.Close()

	require.False(t, sess.HasPiece(99))
	require.False(t, sess.AmInterested)
}

func TestMalformedHavePayloadIsSkippedNotFatal(t *testing.T) {
	var infoHash, peerID [20]byte
	infoHash[0] = 5

	bad := (&Message{ID: MsgHave, Payload: []byte{1, 2}}).Serialize()
	addr := fakePeer(t, infoHash, bad, nil)

	sess, err := Dial(addr, infoHash, peerID, 10)
	require.NoError(t, err)
	defer sess.Close()

	require.False(t, sess.AmInterested)
}

func TestUnknownMessageIDIsSkippedNotFatal(t *testing.T) {
	var infoHash, peerID [20]byte
	infoHash[0] = 6

	unknown := (&Message{ID: MessageID(200), Payload: []byte("whatever")}).Serialize()
	addr := fakePeer(t, infoHash, unknown, nil)

	_, err := Dial(addr, infoHash, peerID, 10)
	require.NoError(t, err)
}

func TestDownloadPieceVerifiesHash(t *testing.T) {
	var infoHash, peerID [20]byte
	infoHash[0] = 9
	data := make([]byte, BlockSize)
	for i := range data {
		data[i] = byte(i)
	}
	hash := sha1.Sum(data)

	addr := fakePeer(t, infoHash, UnchokeMsg(), func(conn net.Conn) {
		msg, err := ReadMessage(conn)
		if err != nil {
			return
		}
		index, begin, length, err := ParseRequest(msg.Payload)
		if err != nil {
			return
		}
		conn.Write(PieceMsg(index, begin, data[begin:begin+length]))
	})

	sess, err := Dial(addr, infoHash, peerID, 1)
	require.NoError(t, err)
	defer sess.Close()

	got, err := sess.DownloadPiece(0, len(data), hash)
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestDownloadPieceRejectsBadHash(t *testing.T) {
	var infoHash, peerID [20]byte
	infoHash[0] = 11
	data := make([]byte, 100)

	addr := fakePeer(t, infoHash, UnchokeMsg(), func(conn net.Conn) {
		msg, err := ReadMessage(conn)
		if err != nil {
			return
		}
		index, begin, length, err := ParseRequest(msg.Payload)
		if err != nil {
			return
		}
		conn.Write(PieceMsg(index, begin, data[begin:begin+length]))
	})

	sess, err := Dial(addr, infoHash, peerID, 1)
	require.NoError(t, err)
	defer sess.Close()

	var wrongHash [20]byte
	wrongHash[0] = 0xFF
	_, err = sess.DownloadPiece(0, len(data), wrongHash)
	require.Error(t, err)
}

func TestDownloadPieceWaitsForUnchoke(t *testing.T) {
	var infoHash, peerID [20]byte
	infoHash[0] = 13
	data := []byte("short piece data")
	hash := sha1.Sum(data)

	addr := fakePeer(t, infoHash, BitfieldMsg(NewBitfield(1)), func(conn net.Conn) {
		time.Sleep(20 * time.Millisecond)
		conn.Write(UnchokeMsg())
		msg, err := ReadMessage(conn)
		if err != nil {
			return
		}
		index, begin, length, err := ParseRequest(msg.Payload)
		if err != nil {
			return
		}
		conn.Write(PieceMsg(index, begin, data[begin:begin+length]))
	})

	sess, err := Dial(addr, infoHash, peerID, 1)
	require.NoError(t, err)
	defer sess.Close()
	require.True(t, sess.PeerChoking)

	got, err := sess.DownloadPiece(0, len(data), hash)
	require.NoError(t, err)
	require.Equal(t, data, got)
}
