// Package deeplink handles app links such as nfcreader://jca.nfcreader.open,
// the value written by the write-deeplink operation.
package deeplink

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// DefaultScheme is the URL scheme the app answers to.
const DefaultScheme = "nfcreader"

var (
	ErrInvalidURL  = errors.New("invalid deeplink URL")
	ErrWrongScheme = errors.New("unsupported deeplink scheme")
)

// Link is an accepted deeplink.
type Link struct {
	URL    *url.URL
	Action string // host part, e.g. "jca.nfcreader.open"
	Params url.Values
}

func (l Link) String() string {
	return l.URL.String()
}

// Handler accepts deeplinks for one scheme and fans them out to listeners.
type Handler struct {
	scheme string

	mu        sync.Mutex
	last      *Link
	listeners []func(Link)
}

// NewHandler creates a handler for scheme. An empty scheme uses DefaultScheme.
func NewHandler(scheme string) *Handler {
	if scheme == "" {
		scheme = DefaultScheme
	}
	return &Handler{scheme: strings.ToLower(scheme)}
}

// Scheme returns the accepted scheme.
func (h *Handler) Scheme() string {
	return h.scheme
}

// OnLink registers fn to be called for every accepted link.
func (h *Handler) OnLink(fn func(Link)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, fn)
}

// Handle parses raw and notifies listeners if it uses the handler's scheme.
func (h *Handler) Handle(raw string) (Link, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Link{}, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme == "" {
		return Link{}, fmt.Errorf("%w: %q has no scheme", ErrInvalidURL, raw)
	}
	if !strings.EqualFold(u.Scheme, h.scheme) {
		return Link{}, fmt.Errorf("%w: %q", ErrWrongScheme, u.Scheme)
	}

	link := Link{URL: u, Action: u.Host, Params: u.Query()}
	logrus.WithField("url", u.String()).Info("App opened with URL")

	h.mu.Lock()
	h.last = &link
	listeners := append(([]func(Link))(nil), h.listeners...)
	h.mu.Unlock()

	for _, fn := range listeners {
		fn(link)
	}
	return link, nil
}

// Last returns the most recent accepted link.
func (h *Handler) Last() (Link, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.last == nil {
		return Link{}, false
	}
	return *h.last, true
}
