// Package relay defines the relay value type: a normalized websocket URL
// classified as clearnet or tor. The URL is the stable identity of a relay
// everywhere in the system.
package relay

import (
	"net/url"
	"regexp"
	"strings"

	"bigbrotr.dev/pkg/utils/errorf"
)

// Network values.
const (
	NetworkClearnet = "clearnet"
	NetworkTor      = "tor"
)

// onionHost matches v2 and v3 onion hosts, with an optional port.
var onionHost = regexp.MustCompile(`^[a-z2-7]{16,56}\.onion(:\d+)?$`)

// R is a relay. Immutable once constructed; construct with New so the URL is
// normalized and the network classified.
type R struct {
	URL     string `json:"url"`
	Network string `json:"network"`
}

// New normalizes raw and classifies its network. The scheme must be ws:// or
// wss://; the host is lowercased and a bare trailing slash is stripped so
// equivalent spellings share one identity.
func New(raw string) (r R, err error) {
	raw = strings.TrimSpace(raw)
	lower := strings.ToLower(raw)
	if !strings.HasPrefix(lower, "wss://") && !strings.HasPrefix(lower, "ws://") {
		err = errorf.D("relay url %q: scheme must be ws:// or wss://", raw)
		return
	}
	var u *url.URL
	if u, err = url.Parse(raw); err != nil {
		err = errorf.D("relay url %q: %v", raw, err)
		return
	}
	if u.Host == "" {
		err = errorf.D("relay url %q: missing host", raw)
		return
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Path == "/" {
		u.Path = ""
	}
	u.Fragment = ""
	r.URL = strings.TrimSuffix(u.String(), "/")
	r.Network = NetworkClearnet
	if onionHost.MatchString(u.Host) {
		r.Network = NetworkTor
	}
	return
}

// MustNew is New for inputs known to be valid, such as test fixtures.
func MustNew(raw string) R {
	r, err := New(raw)
	if err != nil {
		panic(err)
	}
	return r
}

// IsTor reports whether the relay is reached through the SOCKS5 proxy.
func (r R) IsTor() bool { return r.Network == NetworkTor }

// Hostname returns the host (with port, if any) of the relay URL.
func (r R) Hostname() string {
	u, err := url.Parse(r.URL)
	if err != nil {
		return ""
	}
	return u.Host
}

func (r R) String() string { return r.URL }
