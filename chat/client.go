// Package chat streams a livestream's chat over Rumble's internal SSE API
// and performs the logged-in chat actions.
//
// A Client delivers messages through a blocking inbox:
//
//	c, err := chat.Connect(ctx, streamID)
//	if err != nil { ... }
//	defer c.Close()
//	for {
//		msg, err := c.GetMessage(ctx)
//		if err != nil { ... }
//		fmt.Println(msg.Text)
//	}
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/zeroproject-dev/gorumble/ids"
	"github.com/zeroproject-dev/gorumble/internal/rumble"
	"github.com/zeroproject-dev/gorumble/scrape"
	"github.com/zeroproject-dev/gorumble/session"
)

// ErrClosed is returned by inbox operations after the stream has ended or
// Close was called.
var ErrClosed = errors.New("chat stream closed")

// State of the SSE connection.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateStreaming
	StateError
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateError:
		return "error"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Client is a connected SSE chat. Messages accumulate in an unbounded inbox
// until read with GetMessage.
type Client struct {
	stream ids.StreamID
	log    zerolog.Logger
	httpc  rumble.Doer

	sess    *session.Session
	scraper *scrape.Scraper

	sseURL     string
	messageURL string
	commandURL string

	mu         sync.Mutex
	wake       chan struct{}
	state      State
	streamErr  error
	inbox      []Message
	history    []Message
	historyLen int
	deletedIDs []int64
	pinned     *Message

	users    map[int64]User
	channels map[int64]Channel
	badges   map[string]Badge

	rantsEnabled  bool
	maxMessageLen int

	lastSend time.Time

	resp *http.Response
}

// Option configures a Client before it connects.
type Option func(*Client)

// WithSession provides login credentials for the authenticated actions
// (sending, deleting, pinning, muting). Without one the client is read-only.
func WithSession(sess *session.Session) Option {
	return func(c *Client) {
		c.sess = sess
		c.scraper = scrape.New(sess)
	}
}

// WithScraper replaces the page scraper used to resolve mute records.
// Implies nothing about the session; pair it with WithSession.
func WithScraper(s *scrape.Scraper) Option {
	return func(c *Client) { c.scraper = s }
}

// WithHTTPClient replaces the HTTP client used for chat actions. The SSE
// stream itself always uses a client without a request timeout.
func WithHTTPClient(hc rumble.Doer) Option {
	return func(c *Client) { c.httpc = hc }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithHistoryLen bounds the number of read messages kept for deletion
// tracking. Defaults to 1000.
func WithHistoryLen(n int) Option {
	return func(c *Client) { c.historyLen = n }
}

// WithAPIBase overrides the chat API base URL, formatted with the base-10
// stream ID.
func WithAPIBase(format string) Option {
	return func(c *Client) {
		c.sseURL = format + "/stream"
		c.messageURL = format + "/message"
	}
}

// WithCommandURL overrides the native chat command endpoint.
func WithCommandURL(u string) Option {
	return func(c *Client) { c.commandURL = u }
}

// Connect opens the SSE stream for a livestream's chat and parses the
// initial state before returning. The returned client keeps reading in the
// background until Close is called or the server ends the stream.
func Connect(ctx context.Context, stream ids.StreamID, opts ...Option) (*Client, error) {
	c := &Client{
		stream:     stream,
		log:        zerolog.Nop(),
		httpc:      rumble.NewHTTPClient(),
		wake:       make(chan struct{}),
		state:      StateConnecting,
		historyLen: 1000,
		users:      map[int64]User{},
		channels:   map[int64]Channel{},
		badges:     map[string]Badge{},
		commandURL: rumble.ChatCommandURL,
	}
	base := fmt.Sprintf(rumble.ChatAPIFormat, stream.Base10())
	c.sseURL = base + "/stream"
	c.messageURL = base + "/message"
	for _, opt := range opts {
		opt(c)
	}
	if f := findFormatVerb(c.sseURL); f {
		c.sseURL = fmt.Sprintf(c.sseURL, stream.Base10())
		c.messageURL = fmt.Sprintf(c.messageURL, stream.Base10())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.sseURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", rumble.UserAgent)
	req.Header.Set("Accept", "text/event-stream")

	// The stream stays open for the lifetime of the chat, so it cannot go
	// through a client with a request timeout.
	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		c.state = StateError
		return nil, fmt.Errorf("connect chat: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		c.state = StateError
		return nil, fmt.Errorf("connect chat: %w", &rumble.StatusError{Code: resp.StatusCode})
	}
	c.resp = resp

	// The first event must be the init payload; parse it before handing the
	// client out so the config and backlog are ready.
	reader := newSSEReader(resp.Body)
	data, err := reader.next()
	if err != nil {
		resp.Body.Close()
		c.state = StateError
		return nil, fmt.Errorf("connect chat: reading init event: %w", err)
	}
	ev, err := parseEvent(data)
	if err != nil {
		resp.Body.Close()
		c.state = StateError
		return nil, fmt.Errorf("connect chat: %w", err)
	}
	if ev.Type != eventInit {
		resp.Body.Close()
		c.state = StateError
		return nil, fmt.Errorf("connect chat: expected init event, got %q", ev.Type)
	}

	c.mu.Lock()
	c.applyInitLocked(ev)
	c.state = StateStreaming
	c.mu.Unlock()

	c.log.Info().Str("stream", stream.Base36()).Msg("chat connected")
	go c.listen(reader)
	return c, nil
}

// findFormatVerb reports whether an option left a %d placeholder in a URL.
func findFormatVerb(s string) bool {
	return strings.Contains(s, "%d")
}

// isCleanEnd distinguishes the server closing the stream from a transport
// failure.
func isCleanEnd(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// listen pumps SSE events into the inbox until the stream ends.
func (c *Client) listen(reader *sseReader) {
	for {
		data, err := reader.next()
		if err != nil {
			c.finish(err)
			return
		}
		ev, err := parseEvent(data)
		if err != nil {
			c.log.Warn().Err(err).Msg("undecodable chat event")
			continue
		}
		c.apply(ev)
	}
}

// finish records why the stream ended and wakes all inbox waiters.
func (c *Client) finish(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateDisconnected || c.state == StateError {
		return
	}
	if isCleanEnd(err) {
		c.state = StateDisconnected
	} else {
		c.state = StateError
		c.streamErr = fmt.Errorf("chat stream: %w", err)
		c.log.Error().Err(err).Msg("chat stream failed")
	}
	c.wakeLocked()
}

func (c *Client) apply(ev *event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Type {
	case eventInit:
		// The server restarted the stream; it resends full state.
		c.applyInitLocked(ev)
	case eventMessages:
		c.applyRosterLocked(&ev.Data)
		c.appendMessagesLocked(ev.Data.Messages)
	case eventDeleteMessages, eventDeleteNonRantMessages:
		for _, id := range ev.Data.MessageIDs {
			c.deletedIDs = append(c.deletedIDs, int64(id))
		}
		c.markDeletedLocked(ev.Data.MessageIDs)
	case eventPinMessage:
		if ev.Data.Message != nil {
			m := fromWireMessage(ev.Data.Message)
			c.pinned = &m
		}
	default:
		c.log.Debug().Str("type", ev.Type).Msg("unhandled chat event")
	}
	c.wakeLocked()
}

func (c *Client) applyInitLocked(ev *event) {
	c.applyRosterLocked(&ev.Data)
	c.appendMessagesLocked(ev.Data.Messages)
	if cfg := ev.Data.Config; cfg != nil {
		c.rantsEnabled = cfg.Rants.Enable
		c.maxMessageLen = cfg.MessageLengthMax
		for slug, b := range cfg.Badges {
			c.badges[slug] = fromWireBadge(slug, b)
		}
	}
}

func (c *Client) applyRosterLocked(data *eventData) {
	for i := range data.Users {
		u := fromWireUser(&data.Users[i])
		c.users[u.ID] = u
	}
	for i := range data.Channels {
		ch := fromWireChannel(&data.Channels[i])
		c.channels[ch.ID] = ch
	}
}

// appendMessagesLocked queues messages, skipping IDs already queued or read.
// A server-side re-init resends the backlog.
func (c *Client) appendMessagesLocked(msgs []wireMessage) {
	for i := range msgs {
		m := fromWireMessage(&msgs[i])
		if c.seenLocked(m.ID) {
			continue
		}
		c.inbox = append(c.inbox, m)
	}
}

func (c *Client) seenLocked(id int64) bool {
	for i := range c.inbox {
		if c.inbox[i].ID == id {
			return true
		}
	}
	for i := range c.history {
		if c.history[i].ID == id {
			return true
		}
	}
	return false
}

func (c *Client) markDeletedLocked(msgIDs []flexInt64) {
	for _, id := range msgIDs {
		for i := range c.history {
			if c.history[i].ID == int64(id) {
				c.history[i].Deleted = true
			}
		}
		for i := range c.inbox {
			if c.inbox[i].ID == int64(id) {
				c.inbox[i].Deleted = true
			}
		}
	}
}

// wakeLocked signals every goroutine blocked in GetMessage.
func (c *Client) wakeLocked() {
	close(c.wake)
	c.wake = make(chan struct{})
}

// GetMessage blocks until a message is available and returns the oldest
// unread one. It returns ErrClosed once the stream has ended cleanly, the
// stream error if it broke, or the context error if ctx is done first.
func (c *Client) GetMessage(ctx context.Context) (Message, error) {
	for {
		c.mu.Lock()
		if len(c.inbox) > 0 {
			m := c.inbox[0]
			c.inbox = c.inbox[1:]
			c.history = append(c.history, m)
			if over := len(c.history) - c.historyLen; over > 0 {
				c.history = c.history[over:]
			}
			c.mu.Unlock()
			return m, nil
		}
		if c.streamErr != nil {
			err := c.streamErr
			c.mu.Unlock()
			return Message{}, err
		}
		if c.state == StateDisconnected {
			c.mu.Unlock()
			return Message{}, ErrClosed
		}
		wake := c.wake
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return Message{}, ctx.Err()
		case <-wake:
		}
	}
}

// ClearMailbox drops every unread message, so the next GetMessage call only
// returns messages that arrive afterwards.
func (c *Client) ClearMailbox() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inbox = nil
}

// DeletedMessageIDs returns the IDs the server has reported as deleted since
// the last call, and clears the list.
func (c *Client) DeletedMessageIDs() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.deletedIDs
	c.deletedIDs = nil
	return out
}

// History returns a copy of the messages already read through GetMessage,
// oldest first, with deletion flags up to date.
func (c *Client) History() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.history))
	copy(out, c.history)
	return out
}

// Pinned returns the currently pinned message, or nil.
func (c *Client) Pinned() *Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pinned == nil {
		return nil
	}
	m := *c.pinned
	return &m
}

// User looks up a chat participant by ID.
func (c *Client) User(id int64) (User, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u, ok := c.users[id]
	return u, ok
}

// Channel looks up a chat channel by ID.
func (c *Client) Channel(id int64) (Channel, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch, ok := c.channels[id]
	return ch, ok
}

// Badge looks up a badge definition by slug.
func (c *Client) Badge(slug string) (Badge, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.badges[slug]
	return b, ok
}

// RantsEnabled reports whether the stream accepts paid rants.
func (c *Client) RantsEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rantsEnabled
}

// MaxMessageLen is the server-announced message length limit.
func (c *Client) MaxMessageLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.maxMessageLen > 0 {
		return c.maxMessageLen
	}
	return rumble.MaxMessageLen
}

// State reports the connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// StreamID returns the stream this chat belongs to.
func (c *Client) StreamID() ids.StreamID {
	return c.stream
}

// Close ends the SSE stream. Pending and future GetMessage calls return
// ErrClosed once the inbox is drained.
func (c *Client) Close() error {
	c.mu.Lock()
	resp := c.resp
	c.resp = nil
	if c.state == StateStreaming || c.state == StateConnecting {
		c.state = StateDisconnected
	}
	c.wakeLocked()
	c.mu.Unlock()

	if resp != nil {
		return resp.Body.Close()
	}
	return nil
}
