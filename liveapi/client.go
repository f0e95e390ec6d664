// Package liveapi is a client for the Rumble Live Stream API v1.0 (beta).
//
// The client fetches the whole API document at once and reuses it until the
// refresh rate has elapsed; any accessor for a non-static field re-fetches
// when the cached snapshot is stale. Timestamps are parsed to UTC time at
// fetch time. Incremental accessors (NewFollowers, NewSubscribers, and the
// chat's NewMessages/NewRants) return only entries that appeared since the
// previous call.
package liveapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/zeroproject-dev/gorumble/ids"
	"github.com/zeroproject-dev/gorumble/internal/rumble"
)

// ErrFieldMissing is returned when the API document does not carry the
// requested field, such as channel fields on a user-type API key.
var ErrFieldMissing = errors.New("field not present in API data")

// Option configures a Client.
type Option func(*Client)

// WithRefreshRate sets how long fetched data is reused before a re-fetch.
// Rates below the platform minimum are allowed but logged; the platform
// rejects over-polling.
func WithRefreshRate(d time.Duration) Option {
	return func(c *Client) { c.refreshRate = d }
}

// WithHTTPClient substitutes the HTTP transport.
func WithHTTPClient(doer rumble.Doer) Option {
	return func(c *Client) { c.http = doer }
}

// WithLogger attaches a logger. The default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// Client polls the Live Stream API for one API key.
type Client struct {
	url         string
	refreshRate time.Duration
	http        rumble.Doer
	log         zerolog.Logger

	mu          sync.Mutex
	snap        *snapshot
	lastRefresh time.Time
	streams     map[string]*Livestream

	followerCursor   timeCursor
	subscriberCursor timeCursor
}

// New creates a client for the given API URL (including the key) and
// performs the initial fetch, so static fields are immediately available.
func New(ctx context.Context, apiURL string, opts ...Option) (*Client, error) {
	c := &Client{
		url:         apiURL,
		refreshRate: rumble.DefaultRefreshRate,
		http:        rumble.NewHTTPClient(),
		log:         zerolog.Nop(),
		streams:     make(map[string]*Livestream),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With().Str("component", "liveapi").Logger()

	if c.refreshRate < rumble.MinRefreshRate {
		c.log.Warn().
			Dur("refresh_rate", c.refreshRate).
			Dur("minimum", rumble.MinRefreshRate).
			Msg("refresh rate below platform minimum, queries may be rejected")
	}

	now := time.Now()
	c.followerCursor = timeCursor{last: now}
	c.subscriberCursor = timeCursor{last: now}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.refreshLocked(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Refresh re-fetches the API document regardless of staleness.
func (c *Client) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshLocked(ctx)
}

// maybeRefreshLocked re-fetches only when the snapshot is stale. A failed
// fetch leaves the previous snapshot in place as last known good and does
// not advance the refresh clock, so the next access retries.
func (c *Client) maybeRefreshLocked(ctx context.Context) error {
	if time.Since(c.lastRefresh) < c.refreshRate {
		return nil
	}
	return c.refreshLocked(ctx)
}

func (c *Client) refreshLocked(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("liveapi: build request: %w", err)
	}
	req.Header.Set("User-Agent", rumble.UserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("liveapi: fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("liveapi: fetch: %w", &rumble.StatusError{Code: resp.StatusCode, Body: string(body)})
	}

	var doc apiDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return fmt.Errorf("liveapi: decode response: %w", err)
	}

	snap, err := doc.toSnapshot()
	if err != nil {
		return fmt.Errorf("liveapi: %w", err)
	}

	c.snap = snap
	c.lastRefresh = time.Now()
	c.reconcileStreamsLocked()

	c.log.Debug().
		Int("livestreams", len(snap.streams)).
		Time("data_timestamp", snap.dataTime).
		Msg("snapshot refreshed")
	return nil
}

// reconcileStreamsLocked keeps one Livestream handle per listed stream alive
// across refreshes, and marks handles whose stream left the listing as
// disappeared. Disappeared handles keep serving their last data.
func (c *Client) reconcileStreamsLocked() {
	listed := make(map[string]bool, len(c.snap.streams))
	for i := range c.snap.streams {
		data := &c.snap.streams[i]
		listed[data.id] = true
		ls, ok := c.streams[data.id]
		if !ok {
			ls = newLivestream(c, data)
			c.streams[data.id] = ls
			continue
		}
		ls.data = data
	}
	for id, ls := range c.streams {
		if !listed[id] {
			ls.disappeared = true
			delete(c.streams, id)
			c.log.Debug().Str("stream_id", id).Msg("livestream left the API listing")
		}
	}
}

// APIType reports whether the API key is for a user or a channel. Static.
func (c *Client) APIType() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap.apiType
}

// UserID returns the account's user ID in base 36. Static.
func (c *Client) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap.userID
}

// UserIDBase10 returns the account's user ID as a number.
func (c *Client) UserIDBase10() (int64, error) {
	return ids.ToBase10(strings.TrimPrefix(c.UserID(), "_"))
}

// Username returns the account's username. Static.
func (c *Client) Username() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap.username
}

// ChannelID returns the channel ID when the API key is channel-typed.
func (c *Client) ChannelID() (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snap.channelID == nil {
		return 0, fmt.Errorf("channel_id: %w", ErrFieldMissing)
	}
	return *c.snap.channelID, nil
}

// ChannelName returns the channel name when the API key is channel-typed.
func (c *Client) ChannelName() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.snap.channelName == "" {
		return "", fmt.Errorf("channel_name: %w", ErrFieldMissing)
	}
	return c.snap.channelName, nil
}

// DataTimestamp is the server's timestamp on the current snapshot. Reading
// it never triggers a refresh.
func (c *Client) DataTimestamp() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap.dataTime
}

// LastRefresh is when the current snapshot was fetched.
func (c *Client) LastRefresh() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRefresh
}

// NumFollowers is the follower count of this user or channel.
func (c *Client) NumFollowers(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.maybeRefreshLocked(ctx); err != nil {
		return 0, err
	}
	return c.snap.followers.count, nil
}

// NumFollowersTotal is the follower count across the whole account.
func (c *Client) NumFollowersTotal(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.maybeRefreshLocked(ctx); err != nil {
		return 0, err
	}
	return c.snap.followers.total, nil
}

// LatestFollower returns the most recent follower, or nil if there is none.
func (c *Client) LatestFollower(ctx context.Context) (*Follower, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.maybeRefreshLocked(ctx); err != nil {
		return nil, err
	}
	if c.snap.followers.latest == nil {
		return nil, nil
	}
	f := *c.snap.followers.latest
	return &f, nil
}

// RecentFollowers returns the API's window of recent followers.
func (c *Client) RecentFollowers(ctx context.Context) ([]Follower, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.maybeRefreshLocked(ctx); err != nil {
		return nil, err
	}
	out := make([]Follower, len(c.snap.followers.recent))
	copy(out, c.snap.followers.recent)
	return out, nil
}

// NewFollowers returns followers that appeared since the previous call (or
// since the client was created), oldest first.
func (c *Client) NewFollowers(ctx context.Context) ([]Follower, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.maybeRefreshLocked(ctx); err != nil {
		return nil, err
	}
	var out []Follower
	for _, f := range c.snap.followers.recent {
		if f.FollowedOn.After(c.followerCursor.last) {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FollowedOn.Before(out[j].FollowedOn) })
	if len(out) > 0 {
		c.followerCursor.last = out[len(out)-1].FollowedOn
	}
	return out, nil
}

// NumSubscribers is the subscriber count of this user or channel.
func (c *Client) NumSubscribers(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.maybeRefreshLocked(ctx); err != nil {
		return 0, err
	}
	return c.snap.subscribers.count, nil
}

// NumSubscribersTotal is the subscriber count across the whole account.
func (c *Client) NumSubscribersTotal(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.maybeRefreshLocked(ctx); err != nil {
		return 0, err
	}
	return c.snap.subscribers.total, nil
}

// LatestSubscriber returns the most recent subscriber, or nil if there is
// none.
func (c *Client) LatestSubscriber(ctx context.Context) (*Subscriber, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.maybeRefreshLocked(ctx); err != nil {
		return nil, err
	}
	if c.snap.subscribers.latest == nil {
		return nil, nil
	}
	s := *c.snap.subscribers.latest
	return &s, nil
}

// RecentSubscribers returns the API's window of recent subscribers.
func (c *Client) RecentSubscribers(ctx context.Context) ([]Subscriber, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.maybeRefreshLocked(ctx); err != nil {
		return nil, err
	}
	out := make([]Subscriber, len(c.snap.subscribers.recent))
	copy(out, c.snap.subscribers.recent)
	return out, nil
}

// NewSubscribers returns subscribers that appeared since the previous call
// (or since the client was created), oldest first.
func (c *Client) NewSubscribers(ctx context.Context) ([]Subscriber, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.maybeRefreshLocked(ctx); err != nil {
		return nil, err
	}
	var out []Subscriber
	for _, s := range c.snap.subscribers.recent {
		if s.SubscribedOn.After(c.subscriberCursor.last) {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubscribedOn.Before(out[j].SubscribedOn) })
	if len(out) > 0 {
		c.subscriberCursor.last = out[len(out)-1].SubscribedOn
	}
	return out, nil
}

// Livestreams returns a handle per currently listed livestream. Handles are
// stable across refreshes for as long as the stream stays listed.
func (c *Client) Livestreams(ctx context.Context) ([]*Livestream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.maybeRefreshLocked(ctx); err != nil {
		return nil, err
	}
	out := make([]*Livestream, 0, len(c.snap.streams))
	for i := range c.snap.streams {
		out = append(out, c.streams[c.snap.streams[i].id])
	}
	return out, nil
}

// LatestLivestream returns the most recently created listed livestream, or
// nil when none is running.
func (c *Client) LatestLivestream(ctx context.Context) (*Livestream, error) {
	streams, err := c.Livestreams(ctx)
	if err != nil {
		return nil, err
	}
	var latest *Livestream
	for _, ls := range streams {
		if latest == nil || ls.CreatedOn().After(latest.CreatedOn()) {
			latest = ls
		}
	}
	return latest, nil
}

// timeCursor tracks the newest entry timestamp already consumed by an
// incremental accessor. Advancing by observed data time rather than the wall
// clock keeps clock skew from replaying or swallowing entries.
type timeCursor struct {
	last time.Time
}
