// Package tracker announces to a BitTorrent tracker over HTTP(S) or
// UDP and harvests peer endpoints from its response.
package tracker

import (
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/ottobrain/torrentcore/errs"
)

// Event mirrors the BEP-3 announce event parameter.
type Event int

const (
	EventNone Event = iota
	EventStarted
	EventCompleted
	EventStopped
)

func (e Event) httpValue() string {
	switch e {
	case EventStarted:
		return "started"
	case EventCompleted:
		return "completed"
	case EventStopped:
		return "stopped"
	default:
		return ""
	}
}

// udpValue maps to the wire encoding used by the UDP announce request:
// 0=none, 1=completed, 2=started, 3=stopped (note the reordering
// relative to the HTTP event strings - this is BEP 15, not a typo).
func (e Event) udpValue() uint32 {
	switch e {
	case EventCompleted:
		return 1
	case EventStarted:
		return 2
	case EventStopped:
		return 3
	default:
		return 0
	}
}

// Peer is one endpoint returned by a tracker.
type Peer struct {
	IP   net.IP
	Port uint16
}

func (p Peer) String() string {
	return net.JoinHostPort(p.IP.String(), fmt.Sprintf("%d", p.Port))
}

// Params bundles the parameters of a BEP-3 announce request.
type Params struct {
	InfoHash   [20]byte
	PeerID     [20]byte
	Port       uint16
	Uploaded   int64
	Downloaded int64
	Left       int64
	Event      Event
	// Timeout bounds a single UDP connect/announce round trip, and the
	// overall HTTP request. Defaults to 10s if zero.
	Timeout time.Duration
}

func (p Params) timeout() time.Duration {
	if p.Timeout <= 0 {
		return 10 * time.Second
	}
	return p.Timeout
}

func deadline(timeout time.Duration) time.Time {
	return time.Now().Add(timeout)
}

// Announce dispatches to the HTTP(S) or UDP subdriver based on
// rawURL's scheme. A tracker error returns an empty peer list
// alongside the error rather than panicking, so callers can retry
// with another tracker.
func Announce(rawURL string, params Params) ([]Peer, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errs.New(errs.UnsupportedScheme, "invalid tracker URL", err)
	}

	switch u.Scheme {
	case "http", "https":
		peers, err := announceHTTP(u, params)
		if err != nil {
			return nil, err
		}
		return peers, nil
	case "udp", "udp4", "udp6":
		peers, err := announceUDP(u, params)
		if err != nil {
			return nil, err
		}
		return peers, nil
	default:
		return nil, errs.New(errs.UnsupportedScheme, fmt.Sprintf("scheme %q", u.Scheme), nil)
	}
}
