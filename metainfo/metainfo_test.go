package metainfo

import (
	"crypto/sha1"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ottobrain/torrentcore/bencode"
)

func singleFileTorrent(pieceLen, length int64, numPieces int) []byte {
	pieces := make([]byte, 20*numPieces)
	for i := range pieces {
		pieces[i] = byte(i)
	}
	info := bencode.Dict(map[string]bencode.Value{
		"name":         bencode.Bytes([]byte("movie.mp4")),
		"piece length": bencode.Int64(pieceLen),
		"pieces":       bencode.Bytes(pieces),
		"length":       bencode.Int64(length),
	})
	root := bencode.Dict(map[string]bencode.Value{
		"announce": bencode.Bytes([]byte("http://tracker.example/announce")),
		"info":     info,
	})
	return bencode.Encode(root)
}

func TestParseSingleFile(t *testing.T) {
	data := singleFileTorrent(512, 1000, 2)
	tr, err := Parse(data)
	require.NoError(t, err)

	require.Equal(t, "http://tracker.example/announce", tr.Announce)
	require.Equal(t, "movie.mp4", tr.Name)
	require.EqualValues(t, 512, tr.PieceLength)
	require.Len(t, tr.Pieces, 2)
	require.EqualValues(t, 1000, tr.Length)
	require.False(t, tr.Multi())
	require.EqualValues(t, 488, tr.PieceLen(1)) // 1000 - 512
	require.EqualValues(t, 512, tr.PieceLen(0))
}

func TestInfoHashIsStableAcrossReparse(t *testing.T) {
	data := singleFileTorrent(256, 900, 4)
	first, err := Parse(data)
	require.NoError(t, err)
	second, err := Parse(data)
	require.NoError(t, err)
	require.Equal(t, first.InfoHash, second.InfoHash)

	// The info-hash must be exactly sha1(encode(info)), independent
	// of how the parser internally represents the dictionary.
	info, ok := func() (bencode.Value, bool) {
		root, err := bencode.Decode(data)
		require.NoError(t, err)
		return root.Get("info")
	}()
	require.True(t, ok)
	require.Equal(t, sha1.Sum(bencode.Encode(info)), first.InfoHash)
}

func TestParseMultiFile(t *testing.T) {
	pieces := make([]byte, 40)
	info := bencode.Dict(map[string]bencode.Value{
		"name":         bencode.Bytes([]byte("album")),
		"piece length": bencode.Int64(1024),
		"pieces":       bencode.Bytes(pieces),
		"files": bencode.List(
			bencode.Dict(map[string]bencode.Value{
				"length": bencode.Int64(700),
				"path":   bencode.List(bencode.Bytes([]byte("01.flac"))),
			}),
			bencode.Dict(map[string]bencode.Value{
				"length": bencode.Int64(300),
				"path":   bencode.List(bencode.Bytes([]byte("02.flac"))),
			}),
		),
	})
	root := bencode.Dict(map[string]bencode.Value{
		"announce": bencode.Bytes([]byte("udp://tracker.example:80")),
		"info":     info,
	})
	tr, err := Parse(bencode.Encode(root))
	require.NoError(t, err)
	require.True(t, tr.Multi())
	require.EqualValues(t, 1000, tr.Length)
	require.Len(t, tr.Files, 2)
	require.EqualValues(t, 0, tr.Files[0].CumulativeStart)
	require.EqualValues(t, 700, tr.Files[1].CumulativeStart)
}

func TestParseRejectsMissingAnnounce(t *testing.T) {
	root := bencode.Dict(map[string]bencode.Value{
		"info": bencode.Dict(map[string]bencode.Value{
			"name":         bencode.Bytes([]byte("x")),
			"piece length": bencode.Int64(1),
			"pieces":       bencode.Bytes(make([]byte, 20)),
			"length":       bencode.Int64(1),
		}),
	})
	_, err := Parse(bencode.Encode(root))
	require.Error(t, err)
}

func TestParseRejectsPiecesNotMultipleOf20(t *testing.T) {
	root := bencode.Dict(map[string]bencode.Value{
		"announce": bencode.Bytes([]byte("http://t")),
		"info": bencode.Dict(map[string]bencode.Value{
			"name":         bencode.Bytes([]byte("x")),
			"piece length": bencode.Int64(1),
			"pieces":       bencode.Bytes(make([]byte, 21)),
			"length":       bencode.Int64(1),
		}),
	})
	_, err := Parse(bencode.Encode(root))
	require.Error(t, err)
}

func TestParseRejectsMissingLengthAndFiles(t *testing.T) {
	root := bencode.Dict(map[string]bencode.Value{
		"announce": bencode.Bytes([]byte("http://t")),
		"info": bencode.Dict(map[string]bencode.Value{
			"name":         bencode.Bytes([]byte("x")),
			"piece length": bencode.Int64(1),
			"pieces":       bencode.Bytes(make([]byte, 20)),
		}),
	})
	_, err := Parse(bencode.Encode(root))
	require.Error(t, err)
}
