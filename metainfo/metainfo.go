// Package metainfo parses a torrent file into a canonical in-memory
// form and derives its info-hash: the SHA-1 of the canonical
// bencoding of the "info" sub-dictionary.
package metainfo

import (
	"crypto/sha1"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ottobrain/torrentcore/bencode"
	"github.com/ottobrain/torrentcore/errs"
)

// File describes one file inside a multi-file torrent.
type File struct {
	// CumulativeStart is the byte offset of this file within the
	// concatenation of all files, in announce order.
	CumulativeStart int64
	Length          int64
	Path            string
}

// Torrent is the typed view over a decoded torrent file.
type Torrent struct {
	Announce    string
	InfoHash    [20]byte
	Name        string
	PieceLength int64
	Pieces      [][20]byte
	Length      int64
	Files       []File
	// Info is the raw decoded "info" sub-dictionary, preserved so it
	// can be re-encoded (e.g. to recompute the info-hash, or to
	// serve it back to a peer under the metadata extension).
	Info bencode.Value
}

// Multi reports whether the torrent describes more than one file.
func (t *Torrent) Multi() bool {
	return len(t.Files) > 1
}

// PieceCount returns the number of pieces, i.e. len(Pieces).
func (t *Torrent) PieceCount() int {
	return len(t.Pieces)
}

// PieceLen returns the expected length of piece i, shortening the
// final piece to what remains of Length: the last piece is rarely an
// exact multiple of PieceLength, so callers must never assume a fixed
// piece size when sizing the last block scan or storage write.
func (t *Torrent) PieceLen(i int) int64 {
	if i == len(t.Pieces)-1 {
		if rem := t.Length % t.PieceLength; rem != 0 {
			return rem
		}
	}
	return t.PieceLength
}

// Open reads and parses a torrent file from disk.
func Open(path string) (*Torrent, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.New(errs.IoError, "reading torrent file", err)
	}
	return Parse(data)
}

// Parse decodes raw torrent-file bytes into a Torrent.
func Parse(data []byte) (*Torrent, error) {
	root, err := bencode.Decode(data)
	if err != nil {
		return nil, err
	}
	if root.Kind != bencode.KindDict {
		return nil, errs.New(errs.MalformedTorrent, "top-level value is not a dictionary", nil)
	}

	announce, ok := root.Get("announce")
	if !ok || announce.Kind != bencode.KindString {
		return nil, errs.New(errs.MalformedTorrent, "missing or invalid \"announce\"", nil)
	}

	info, ok := root.Get("info")
	if !ok || info.Kind != bencode.KindDict {
		return nil, errs.New(errs.MalformedTorrent, "missing or invalid \"info\" dictionary", nil)
	}

	hash := sha1.Sum(bencode.Encode(info))

	t, err := parseInfo(info)
	if err != nil {
		return nil, err
	}
	t.Announce = string(announce.Str)
	t.InfoHash = hash
	t.Info = info
	return t, nil
}

func parseInfo(info bencode.Value) (*Torrent, error) {
	name, ok := info.Get("name")
	if !ok || name.Kind != bencode.KindString {
		return nil, errs.New(errs.MalformedTorrent, "info dictionary missing \"name\"", nil)
	}

	pieceLen, ok := info.Get("piece length")
	if !ok || pieceLen.Kind != bencode.KindInt || pieceLen.Int <= 0 {
		return nil, errs.New(errs.MalformedTorrent, "info dictionary missing or invalid \"piece length\"", nil)
	}

	piecesVal, ok := info.Get("pieces")
	if !ok || piecesVal.Kind != bencode.KindString {
		return nil, errs.New(errs.MalformedTorrent, "info dictionary missing \"pieces\"", nil)
	}
	pieces, err := splitPieces(piecesVal.Str)
	if err != nil {
		return nil, err
	}

	var files []File
	var total int64

	if length, ok := info.Get("length"); ok {
		if length.Kind != bencode.KindInt || length.Int < 0 {
			return nil, errs.New(errs.MalformedTorrent, "invalid \"length\"", nil)
		}
		total = length.Int
		files = []File{{Length: total, Path: string(name.Str)}}
	} else if filesVal, ok := info.Get("files"); ok {
		if filesVal.Kind != bencode.KindList || len(filesVal.List) == 0 {
			return nil, errs.New(errs.MalformedTorrent, "invalid \"files\" list", nil)
		}
		files, total, err = parseFiles(filesVal.List)
		if err != nil {
			return nil, err
		}
	} else {
		return nil, errs.New(errs.MalformedTorrent, "info dictionary has neither \"length\" nor \"files\"", nil)
	}

	return &Torrent{
		Name:        string(name.Str),
		PieceLength: pieceLen.Int,
		Pieces:      pieces,
		Length:      total,
		Files:       files,
	}, nil
}

func splitPieces(pieces []byte) ([][20]byte, error) {
	if len(pieces)%20 != 0 {
		return nil, errs.New(errs.MalformedTorrent,
			fmt.Sprintf("\"pieces\" length %d is not a multiple of 20", len(pieces)), nil)
	}
	hashes := make([][20]byte, len(pieces)/20)
	for i := range hashes {
		copy(hashes[i][:], pieces[i*20:(i+1)*20])
	}
	return hashes, nil
}

func parseFiles(list []bencode.Value) ([]File, int64, error) {
	files := make([]File, len(list))
	var total int64
	for i, entry := range list {
		if entry.Kind != bencode.KindDict {
			return nil, 0, errs.New(errs.MalformedTorrent, fmt.Sprintf("file %d is not a dictionary", i), nil)
		}
		length, ok := entry.Get("length")
		if !ok || length.Kind != bencode.KindInt || length.Int < 0 {
			return nil, 0, errs.New(errs.MalformedTorrent, fmt.Sprintf("file %d missing valid \"length\"", i), nil)
		}
		pathVal, ok := entry.Get("path")
		if !ok || pathVal.Kind != bencode.KindList || len(pathVal.List) == 0 {
			return nil, 0, errs.New(errs.MalformedTorrent, fmt.Sprintf("file %d missing valid \"path\"", i), nil)
		}
		parts := make([]string, len(pathVal.List))
		for j, p := range pathVal.List {
			if p.Kind != bencode.KindString {
				return nil, 0, errs.New(errs.MalformedTorrent, fmt.Sprintf("file %d path segment %d is not a string", i, j), nil)
			}
			parts[j] = string(p.Str)
		}
		files[i] = File{
			CumulativeStart: total,
			Length:          length.Int,
			Path:            filepath.Join(parts...),
		}
		total += length.Int
	}
	return files, total, nil
}
