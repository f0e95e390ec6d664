// Package scrape extracts data from logged-in Rumble pages that no API
// exposes, such as mute record IDs and channel listings.
package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/net/html"

	"github.com/zeroproject-dev/gorumble/internal/rumble"
	"github.com/zeroproject-dev/gorumble/session"
)

// ErrNotFound is returned when the scraped pages do not contain the
// requested entity.
var ErrNotFound = fmt.Errorf("not found in scraped pages")

// Scraper fetches pages with a session's credentials and parses them.
type Scraper struct {
	sess    *session.Session
	httpc   rumble.Doer
	log     zerolog.Logger
	baseURL string
}

// Option configures a Scraper.
type Option func(*Scraper)

// WithHTTPClient replaces the HTTP client used for page fetches.
func WithHTTPClient(c rumble.Doer) Option {
	return func(s *Scraper) { s.httpc = c }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Scraper) { s.log = log }
}

// WithBaseURL points the scraper at a different site root.
func WithBaseURL(u string) Option {
	return func(s *Scraper) { s.baseURL = u }
}

// New returns a scraper authenticated as the given session.
func New(sess *session.Session, opts ...Option) *Scraper {
	s := &Scraper{
		sess:    sess,
		httpc:   rumble.NewHTTPClient(),
		log:     zerolog.Nop(),
		baseURL: rumble.BaseURL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// fetch GETs a page with the session cookie and parses the HTML.
func (s *Scraper) fetch(ctx context.Context, url string) (*html.Node, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", rumble.UserAgent)
	req.AddCookie(&http.Cookie{Name: rumble.SessionCookieName, Value: s.sess.Token()})

	resp, err := s.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("fetch %s: %w", url, &rumble.StatusError{Code: resp.StatusCode, Body: string(body)})
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", url, err)
	}
	return doc, nil
}

// MutedUserRecord walks the paginated mutes listing until it finds the
// record ID for the given username. Returns ErrNotFound when the user is
// not muted.
func (s *Scraper) MutedUserRecord(ctx context.Context, username string) (int64, error) {
	records, err := s.mutedRecords(ctx, username)
	if err != nil {
		return 0, err
	}
	id, ok := records[username]
	if !ok {
		return 0, fmt.Errorf("mute record for %q: %w", username, ErrNotFound)
	}
	return id, nil
}

// MutedUserRecords returns the record ID for every muted user, keyed by
// username.
func (s *Scraper) MutedUserRecords(ctx context.Context) (map[string]int64, error) {
	return s.mutedRecords(ctx, "")
}

// mutedRecords pages through the mutes listing. When target is non-empty the
// walk stops as soon as it is found.
func (s *Scraper) mutedRecords(ctx context.Context, target string) (map[string]int64, error) {
	records := map[string]int64{}
	for page := 1; ; page++ {
		doc, err := s.fetch(ctx, s.baseURL+fmt.Sprintf(rumble.MutesPagePath, page))
		if err != nil {
			return nil, err
		}

		buttons := findAll(doc, func(n *html.Node) bool {
			return n.Data == "button" && hasClass(n, "unmute_action")
		})
		// An empty page means we ran past the last one.
		if len(buttons) == 0 {
			return records, nil
		}

		for _, b := range buttons {
			name := attr(b, "data-username")
			id, err := strconv.ParseInt(attr(b, "data-record-id"), 10, 64)
			if err != nil {
				s.log.Warn().Str("username", name).Msg("mute button with unparseable record id")
				continue
			}
			records[name] = id
			if target != "" && name == target {
				return records, nil
			}
		}
	}
}

// Channel is a channel under a user, as listed on the user's channels page.
type Channel struct {
	Slug  string
	ID    int64
	Title string
}

// Channels lists the channels under a username. An empty username means the
// session's own.
func (s *Scraper) Channels(ctx context.Context, username string) ([]Channel, error) {
	if username == "" {
		username = s.sess.Username()
	}
	doc, err := s.fetch(ctx, s.baseURL+fmt.Sprintf(rumble.ChannelsPagePath, username))
	if err != nil {
		return nil, err
	}

	divs := findAll(doc, func(n *html.Node) bool {
		return n.Data == "div" && attr(n, "data-type") == "channel"
	})
	channels := make([]Channel, 0, len(divs))
	for _, d := range divs {
		id, err := strconv.ParseInt(attr(d, "data-id"), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("channel %q: bad data-id %q", attr(d, "data-slug"), attr(d, "data-id"))
		}
		channels = append(channels, Channel{
			Slug:  attr(d, "data-slug"),
			ID:    id,
			Title: attr(d, "data-title"),
		})
	}
	return channels, nil
}

// attr returns the value of an attribute on an element node.
func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// hasClass reports whether an element's class list contains the given class.
func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// findAll walks the node tree depth-first collecting element nodes that
// match.
func findAll(root *html.Node, match func(*html.Node) bool) []*html.Node {
	var found []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && match(n) {
			found = append(found, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return found
}
