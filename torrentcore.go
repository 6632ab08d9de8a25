// Package torrentcore downloads a single torrent: it parses the
// metainfo file, announces to its tracker, and drives one peer
// session per discovered address until every piece has been
// downloaded and verified to disk.
package torrentcore

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ottobrain/torrentcore/errs"
	"github.com/ottobrain/torrentcore/metainfo"
	"github.com/ottobrain/torrentcore/peer"
	"github.com/ottobrain/torrentcore/tracker"
)

// clientIDPrefix identifies this implementation in the conventional
// Azureus-style peer id: '-' + 2-letter client code + 4-digit version
// + '-' followed by random bytes.
const clientIDPrefix = "-TC0001-"

// newPeerID returns a fresh 20-byte peer id.
func newPeerID() ([20]byte, error) {
	var id [20]byte
	copy(id[:], clientIDPrefix)
	if _, err := rand.Read(id[len(clientIDPrefix):]); err != nil {
		return id, errs.New(errs.IoError, "generating peer id", err)
	}
	return id, nil
}

// Options configures a Download run.
type Options struct {
	// OutDir is where downloaded files are written. Defaults to the
	// torrent file's own directory if empty.
	OutDir string
	// MaxPeers bounds how many peer sessions run concurrently.
	// Defaults to 30 if zero or negative.
	MaxPeers int
}

func (o Options) maxPeers() int {
	if o.MaxPeers <= 0 {
		return 30
	}
	return o.MaxPeers
}

// Download fetches every piece of the torrent at torrentPath and
// writes the result under opts.OutDir, logging progress with a
// per-run correlation id.
func Download(ctx context.Context, torrentPath string, opts Options) error {
	runID := uuid.NewString()
	logger := log.New(log.Writer(), fmt.Sprintf("[%s] ", runID), log.LstdFlags)

	t, err := metainfo.Open(torrentPath)
	if err != nil {
		return err
	}

	outDir := opts.OutDir
	if outDir == "" {
		outDir = filepath.Dir(torrentPath)
	}

	peerID, err := newPeerID()
	if err != nil {
		return err
	}

	logger.Printf("announcing %q (%d pieces, %d bytes)", t.Name, t.PieceCount(), t.Length)
	peers, err := tracker.Announce(t.Announce, tracker.Params{
		InfoHash: t.InfoHash,
		PeerID:   peerID,
		Port:     6881,
		Left:     t.Length,
		Event:    tracker.EventStarted,
	})
	if err != nil {
		return err
	}
	if len(peers) == 0 {
		return errs.New(errs.TrackerRejected, "tracker returned no peers", nil)
	}
	logger.Printf("tracker returned %d peers", len(peers))

	storage, err := peer.OpenStorage(t, outDir)
	if err != nil {
		return err
	}
	defer storage.Close()

	sched := newPieceScheduler(t)

	group, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, min(opts.maxPeers(), len(peers)))
	var mu sync.Mutex // guards storage.WritePiece, which is not safe for concurrent callers

	for _, p := range peers {
		address := p.String()
		group.Go(func() error {
			sem <- struct{}{}
			defer func() { <-sem }()

			if err := runPeer(gctx, address, t, peerID, sched, storage, &mu); err != nil {
				logger.Printf("peer %s: %v", address, err)
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return err
	}
	if !sched.done() {
		return errs.New(errs.PeerProtocolError,
			fmt.Sprintf("download incomplete: %d/%d pieces", sched.completedCount(), t.PieceCount()), nil)
	}
	logger.Printf("download complete")
	return nil
}

// runPeer drives a single peer session until it disconnects, the
// scheduler runs dry, or ctx is cancelled.
func runPeer(ctx context.Context, address string, t *metainfo.Torrent, peerID [20]byte, sched *pieceScheduler, storage *peer.Storage, mu *sync.Mutex) error {
	sess, err := peer.Dial(address, t.InfoHash, peerID, t.PieceCount())
	if err != nil {
		return err
	}
	defer sess.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		index, ok := sched.next(sess)
		if !ok {
			return nil
		}

		data, err := sess.DownloadPiece(index, int(t.PieceLen(index)), t.Pieces[index])
		if err != nil {
			sched.release(index)
			return err
		}

		mu.Lock()
		writeErr := storage.WritePiece(t, index, data)
		mu.Unlock()
		if writeErr != nil {
			sched.release(index)
			return writeErr
		}

		sched.complete(index)
		sess.SendHave(index)
	}
}
