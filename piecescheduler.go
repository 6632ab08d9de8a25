package torrentcore

import (
	"sync"

	"github.com/bits-and-blooms/bitset"

	"github.com/ottobrain/torrentcore/metainfo"
	"github.com/ottobrain/torrentcore/peer"
)

// pieceScheduler hands out the first missing piece a given peer has
// announced; pieces are assigned to at most one peer session at a
// time so two sessions never race to write the same piece.
type pieceScheduler struct {
	mu         sync.Mutex
	total      int
	completed  *bitset.BitSet
	inProgress *bitset.BitSet
	completedN int
}

func newPieceScheduler(t *metainfo.Torrent) *pieceScheduler {
	n := t.PieceCount()
	return &pieceScheduler{
		total:      n,
		completed:  bitset.New(uint(n)),
		inProgress: bitset.New(uint(n)),
	}
}

// next returns the index of a piece sess has announced that is
// neither completed nor already assigned to another peer, or
// (0, false) if no such piece remains.
func (s *pieceScheduler) next(sess *peer.Session) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < s.total; i++ {
		if s.completed.Test(uint(i)) || s.inProgress.Test(uint(i)) {
			continue
		}
		if !sess.HasPiece(i) {
			continue
		}
		s.inProgress.Set(uint(i))
		return i, true
	}
	return 0, false
}

// release returns index to the pool after a failed download attempt.
func (s *pieceScheduler) release(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inProgress.Clear(uint(index))
}

// complete marks index as downloaded and verified.
func (s *pieceScheduler) complete(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.completed.Test(uint(index)) {
		s.completedN++
	}
	s.completed.Set(uint(index))
	s.inProgress.Clear(uint(index))
}

func (s *pieceScheduler) done() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completedN == s.total
}

func (s *pieceScheduler) completedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completedN
}
