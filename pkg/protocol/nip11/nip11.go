// Package nip11 fetches relay information documents over HTTP.
package nip11

import (
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/proxy"

	"bigbrotr.dev/pkg/encoders/relay"
	"bigbrotr.dev/pkg/encoders/relayinfo"
	"bigbrotr.dev/pkg/utils/chk"
	"bigbrotr.dev/pkg/utils/context"
	"bigbrotr.dev/pkg/utils/errorf"
	"bigbrotr.dev/pkg/utils/log"
)

const (
	acceptHeader   = "application/nostr+json"
	maxDocumentLen = 1 << 20
	// DefaultTimeout bounds one HTTP attempt.
	DefaultTimeout = 10 * time.Second
)

// Fetch retrieves the information document for a relay. The websocket URL is
// rewritten to its HTTP form, preferring the scheme the relay URL implies and
// falling back to the other. A relay without a document is not an error: the
// result is simply nil. An error means neither scheme produced a response at
// all.
func Fetch(
	c context.T, r relay.R, socks proxy.ContextDialer,
) (doc *relayinfo.Document, err error) {
	hc := &http.Client{Timeout: DefaultTimeout}
	if socks != nil {
		hc.Transport = &http.Transport{DialContext: socks.DialContext}
	}
	return fetchFrom(c, hc, r.URL, httpForms(r))
}

// fetchFrom tries each candidate URL in order. A transport failure, a non-200
// status and an unparseable body all fall through to the next candidate; the
// first parsed document wins. The relay counts as unreachable only when no
// candidate produced a response at all.
func fetchFrom(
	c context.T, hc *http.Client, relayURL string, urls []string,
) (doc *relayinfo.Document, err error) {
	var lastErr error
	responded := false
	for _, url := range urls {
		body, status, gerr := get(c, hc, url)
		if gerr != nil {
			lastErr = gerr
			log.T.F("{%s} nip11 %s: %v", relayURL, url, gerr)
			continue
		}
		responded = true
		if status != http.StatusOK {
			log.T.F("{%s} nip11 %s: status %d", relayURL, url, status)
			continue
		}
		var perr error
		if doc, perr = relayinfo.ParseDocument(body); perr != nil {
			log.D.F("{%s} nip11 %s unparseable: %v", relayURL, url, perr)
			doc = nil
			continue
		}
		return doc, nil
	}
	if responded {
		return nil, nil
	}
	return nil, errorf.D("{%s} nip11 unreachable: %v", relayURL, lastErr)
}

func get(c context.T, hc *http.Client, url string) (body []byte, status int, err error) {
	req, err := http.NewRequestWithContext(c, http.MethodGet, url, nil)
	if chk.E(err) {
		return
	}
	req.Header.Set("Accept", acceptHeader)
	resp, err := hc.Do(req)
	if err != nil {
		return
	}
	defer resp.Body.Close()
	status = resp.StatusCode
	body, err = io.ReadAll(io.LimitReader(resp.Body, maxDocumentLen))
	return
}

// httpForms returns the candidate HTTP URLs for a relay, native scheme first.
func httpForms(r relay.R) (urls []string) {
	switch {
	case strings.HasPrefix(r.URL, "wss://"):
		rest := strings.TrimPrefix(r.URL, "wss://")
		return []string{"https://" + rest, "http://" + rest}
	case strings.HasPrefix(r.URL, "ws://"):
		rest := strings.TrimPrefix(r.URL, "ws://")
		return []string{"http://" + rest, "https://" + rest}
	}
	return []string{r.URL}
}
