package tracker

import (
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/cenkalti/backoff/v4"

	"github.com/ottobrain/torrentcore/bencode"
	"github.com/ottobrain/torrentcore/errs"
)

func announceHTTP(u *url.URL, params Params) ([]Peer, error) {
	announceURL := buildAnnounceURL(u, params)

	client := &http.Client{Timeout: params.timeout()}

	var peers []Peer
	op := func() error {
		resp, err := client.Get(announceURL)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(errs.New(errs.TrackerProtocolError,
				fmt.Sprintf("tracker returned status %s", resp.Status), nil))
		}

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		parsed, err := parseHTTPResponse(body)
		if err != nil {
			return backoff.Permanent(err)
		}
		peers = parsed
		return nil
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, asTrackerError(err)
	}
	return peers, nil
}

func asTrackerError(err error) error {
	if e, ok := err.(*errs.Error); ok {
		return e
	}
	return errs.New(errs.TrackerTimeout, "HTTP tracker request failed", err)
}

// buildAnnounceURL constructs the GET query string. info_hash and
// peer_id are raw 20-byte strings: url.Values.Encode percent-encodes
// every byte outside the unreserved set (Go strings are byte
// sequences, not runes) except space, which it writes as '+' and which
// is rewritten to %20 below. That is exactly the byte-wise escaping a
// tracker expects - a text-mode/rune-aware encoder would mangle these.
func buildAnnounceURL(u *url.URL, params Params) string {
	q := url.Values{
		"info_hash":  []string{string(params.InfoHash[:])},
		"peer_id":    []string{string(params.PeerID[:])},
		"port":       []string{strconv.Itoa(int(params.Port))},
		"uploaded":   []string{strconv.FormatInt(params.Uploaded, 10)},
		"downloaded": []string{strconv.FormatInt(params.Downloaded, 10)},
		"left":       []string{strconv.FormatInt(params.Left, 10)},
		"compact":    []string{"1"},
	}
	if ev := params.Event.httpValue(); ev != "" {
		q.Set("event", ev)
	}
	out := *u
	// A literal '+' is already escaped as %2B, so every '+' left is a space.
	out.RawQuery = strings.ReplaceAll(q.Encode(), "+", "%20")
	return out.String()
}

func parseHTTPResponse(body []byte) ([]Peer, error) {
	v, err := bencode.Decode(body)
	if err != nil {
		return nil, errs.New(errs.TrackerProtocolError, "tracker response is not valid bencode", err)
	}
	if v.Kind != bencode.KindDict {
		return nil, errs.New(errs.TrackerProtocolError, "tracker response is not a dictionary", nil)
	}

	if reason, ok := v.Get("failure reason"); ok && reason.Kind == bencode.KindString {
		return nil, errs.New(errs.TrackerRejected, string(reason.Str), nil)
	}

	peersVal, ok := v.Get("peers")
	if !ok {
		return nil, errs.New(errs.TrackerProtocolError, "tracker response missing \"peers\"", nil)
	}

	var peers []Peer
	switch peersVal.Kind {
	case bencode.KindString:
		peers, err = parseCompactPeers(peersVal.Str, net.IPv4len)
		if err != nil {
			return nil, err
		}
	case bencode.KindList:
		peers, err = parseDictPeers(peersVal.List)
		if err != nil {
			return nil, err
		}
	default:
		return nil, errs.New(errs.TrackerProtocolError, "\"peers\" is neither a string nor a list", nil)
	}

	if peers6, ok := v.Get("peers6"); ok && peers6.Kind == bencode.KindString {
		if more, err := parseCompactPeers(peers6.Str, net.IPv6len); err == nil {
			peers = append(peers, more...)
		}
	}

	return peers, nil
}

func parseDictPeers(list []bencode.Value) ([]Peer, error) {
	peers := make([]Peer, 0, len(list))
	for _, entry := range list {
		ipVal, ok := entry.Get("ip")
		if !ok || ipVal.Kind != bencode.KindString {
			continue
		}
		portVal, ok := entry.Get("port")
		if !ok || portVal.Kind != bencode.KindInt {
			continue
		}
		ip := net.ParseIP(string(ipVal.Str))
		if ip == nil {
			continue
		}
		peers = append(peers, Peer{IP: ip, Port: uint16(portVal.Int)})
	}
	return peers, nil
}
