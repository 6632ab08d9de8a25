package peer

import (
	"os"
	"path/filepath"

	"github.com/ottobrain/torrentcore/errs"
	"github.com/ottobrain/torrentcore/metainfo"
)

// Storage writes verified piece bytes to the files a torrent
// describes, splitting a piece across file boundaries where
// necessary. Every file is opened up front and kept open for the
// life of the download rather than reopened per write.
type Storage struct {
	files []*os.File
	specs []metainfo.File
}

// OpenStorage creates (or truncates) every file the torrent names
// under outDir, pre-sized to its final length.
func OpenStorage(t *metainfo.Torrent, outDir string) (*Storage, error) {
	s := &Storage{specs: t.Files, files: make([]*os.File, len(t.Files))}
	for i, f := range t.Files {
		path := filepath.Join(outDir, f.Path)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errs.New(errs.IoError, "creating output directory", err)
		}
		fd, err := os.Create(path)
		if err != nil {
			return nil, errs.New(errs.IoError, "creating output file", err)
		}
		if f.Length > 0 {
			if err := fd.Truncate(f.Length); err != nil {
				fd.Close()
				return nil, errs.New(errs.IoError, "sizing output file", err)
			}
		}
		s.files[i] = fd
	}
	return s, nil
}

// WritePiece writes data, the full contents of piece index, at its
// correct offset(s) across one or more underlying files.
func (s *Storage) WritePiece(t *metainfo.Torrent, index int, data []byte) error {
	pieceStart := int64(index) * t.PieceLength
	pieceEnd := pieceStart + int64(len(data))

	for i, f := range s.specs {
		fileStart := f.CumulativeStart
		fileEnd := fileStart + f.Length
		if pieceEnd <= fileStart || pieceStart >= fileEnd {
			continue
		}
		srcOffset, dstOffset := int64(0), pieceStart-fileStart
		if dstOffset < 0 {
			srcOffset, dstOffset = -dstOffset, 0
		}
		end := int64(len(data))
		if pieceStart+end > fileEnd {
			end = fileEnd - pieceStart
		}
		if _, err := s.files[i].WriteAt(data[srcOffset:end], dstOffset); err != nil {
			return errs.New(errs.IoError, "writing piece to disk", err)
		}
	}
	return nil
}

// Close releases every open file handle.
func (s *Storage) Close() error {
	var first error
	for _, fd := range s.files {
		if fd == nil {
			continue
		}
		if err := fd.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
