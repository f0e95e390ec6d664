package liveapi

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// LiveChat is the polled view of a livestream's chat. NewMessages and
// NewRants are incremental: each entry is returned exactly once across the
// lifetime of the cursor, in chat order.
type LiveChat struct {
	stream *Livestream

	messageCursor listCursor
	rantCursor    listCursor
}

// LatestMessage returns the newest chat message, or nil if nobody has
// chatted yet.
func (lc *LiveChat) LatestMessage(ctx context.Context) (*ChatMessage, error) {
	data, done, err := lc.stream.read(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	if data.chat.latestMessage == nil {
		return nil, nil
	}
	m := *data.chat.latestMessage
	return &m, nil
}

// RecentMessages returns the API's window of recent chat messages.
func (lc *LiveChat) RecentMessages(ctx context.Context) ([]ChatMessage, error) {
	data, done, err := lc.stream.read(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	out := make([]ChatMessage, len(data.chat.recentMessages))
	copy(out, data.chat.recentMessages)
	return out, nil
}

// NewMessages returns chat messages that appeared since the previous call.
// The first call returns everything currently present; use SkipBacklog to
// start from the live edge instead. Two consecutive calls with no new server
// data yield a non-empty then an empty slice.
func (lc *LiveChat) NewMessages(ctx context.Context) ([]ChatMessage, error) {
	data, done, err := lc.stream.read(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	entries := sortedMessages(data.chat.recentMessages)
	picked := lc.messageCursor.advance(messageEntries(entries))
	out := make([]ChatMessage, 0, len(picked))
	for _, i := range picked {
		out = append(out, entries[i])
	}
	return out, nil
}

// LatestRant returns the newest rant, or nil if nobody has ranted yet.
func (lc *LiveChat) LatestRant(ctx context.Context) (*Rant, error) {
	data, done, err := lc.stream.read(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	if data.chat.latestRant == nil {
		return nil, nil
	}
	r := *data.chat.latestRant
	return &r, nil
}

// RecentRants returns the API's window of recent rants.
func (lc *LiveChat) RecentRants(ctx context.Context) ([]Rant, error) {
	data, done, err := lc.stream.read(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	out := make([]Rant, len(data.chat.recentRants))
	copy(out, data.chat.recentRants)
	return out, nil
}

// NewRants returns rants that appeared since the previous call, with the
// same cursor semantics as NewMessages.
func (lc *LiveChat) NewRants(ctx context.Context) ([]Rant, error) {
	data, done, err := lc.stream.read(ctx)
	if err != nil {
		return nil, err
	}
	defer done()

	entries := sortedRants(data.chat.recentRants)
	picked := lc.rantCursor.advance(rantEntries(entries))
	out := make([]Rant, 0, len(picked))
	for _, i := range picked {
		out = append(out, entries[i])
	}
	return out, nil
}

// SkipBacklog marks everything currently in the chat as already read, so the
// next NewMessages/NewRants call only reports entries that arrive later.
func (lc *LiveChat) SkipBacklog(ctx context.Context) error {
	data, done, err := lc.stream.read(ctx)
	if err != nil {
		return err
	}
	defer done()

	lc.messageCursor.advance(messageEntries(sortedMessages(data.chat.recentMessages)))
	lc.rantCursor.advance(rantEntries(sortedRants(data.chat.recentRants)))
	return nil
}

func sortedMessages(in []ChatMessage) []ChatMessage {
	out := make([]ChatMessage, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedOn.Before(out[j].CreatedOn) })
	return out
}

func sortedRants(in []Rant) []Rant {
	out := make([]Rant, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedOn.Before(out[j].CreatedOn) })
	return out
}

// cursorEntry identifies one list entry. The polled API assigns no message
// IDs, so the key is a fingerprint of the entry's stable fields.
type cursorEntry struct {
	key  string
	time time.Time
}

func messageEntries(msgs []ChatMessage) []cursorEntry {
	out := make([]cursorEntry, len(msgs))
	for i, m := range msgs {
		out[i] = cursorEntry{
			key:  fmt.Sprintf("%d|%s|%s", m.CreatedOn.Unix(), m.Username, m.Text),
			time: m.CreatedOn,
		}
	}
	return out
}

func rantEntries(rants []Rant) []cursorEntry {
	out := make([]cursorEntry, len(rants))
	for i, r := range rants {
		out[i] = cursorEntry{
			key:  fmt.Sprintf("%d|%s|%d|%s", r.CreatedOn.Unix(), r.Username, r.AmountCents, r.Text),
			time: r.CreatedOn,
		}
	}
	return out
}

// listCursor tracks the last-read position in a server-side list that only
// grows between refreshes, but is served through a bounded recent window and
// may be reset by the server.
type listCursor struct {
	primed   bool
	lastKey  string
	lastLen  int
	lastTime time.Time
}

// advance returns the indexes of entries not yet consumed and moves the
// cursor to the end of the list. Entries must be in ascending chat order.
//
// The last consumed entry is located by key. When it is gone and the list
// shrank, the server reset or truncated history: the cursor clamps to the
// new end and reports nothing rather than replaying entries. When it is
// gone but the list did not shrink, the recent window slid past it and
// entries strictly newer than the last consumed timestamp are new.
func (cu *listCursor) advance(entries []cursorEntry) []int {
	var picked []int
	switch {
	case !cu.primed:
		for i := range entries {
			picked = append(picked, i)
		}
	default:
		at := -1
		for i := range entries {
			if entries[i].key == cu.lastKey {
				at = i
			}
		}
		switch {
		case at >= 0:
			for i := at + 1; i < len(entries); i++ {
				picked = append(picked, i)
			}
		case len(entries) < cu.lastLen:
			// Server-side truncation: clamp.
		default:
			for i := range entries {
				if entries[i].time.After(cu.lastTime) {
					picked = append(picked, i)
				}
			}
		}
	}

	cu.primed = true
	cu.lastLen = len(entries)
	if len(entries) > 0 {
		last := entries[len(entries)-1]
		cu.lastKey = last.key
		if last.time.After(cu.lastTime) {
			cu.lastTime = last.time
		}
	}
	return picked
}
