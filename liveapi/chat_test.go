package liveapi

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entries(keys ...string) []cursorEntry {
	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	out := make([]cursorEntry, len(keys))
	for i, k := range keys {
		// Timestamps follow the key so sliding windows stay monotonic.
		at := base.Add(time.Duration(k[0]-'a') * time.Second)
		out[i] = cursorEntry{key: k, time: at}
	}
	return out
}

func keysOf(start int, n int) []string {
	keys := make([]string, n)
	for i := range keys {
		keys[i] = string(rune('a' + start + i))
	}
	return keys
}

func TestListCursorFirstCallReturnsBacklog(t *testing.T) {
	t.Parallel()

	var cur listCursor
	got := cur.advance(entries("a", "b"))
	assert.Equal(t, []int{0, 1}, got, "an unprimed cursor yields the whole list")

	got = cur.advance(entries("a", "b"))
	assert.Empty(t, got, "nothing new on the second call")
}

func TestListCursorYieldsSuffix(t *testing.T) {
	t.Parallel()

	var cur listCursor
	cur.advance(entries("a", "b"))

	got := cur.advance(entries("a", "b", "c", "d"))
	assert.Equal(t, []int{2, 3}, got)

	got = cur.advance(entries("b", "c", "d", "e"))
	assert.Equal(t, []int{3}, got, "items sliding off the front are not re-reported")
}

func TestListCursorClampsOnTruncation(t *testing.T) {
	t.Parallel()

	var cur listCursor
	cur.advance(entries("a", "b", "c"))

	// The window shrank and the last seen item is gone. The cursor clamps
	// rather than replaying old entries.
	got := cur.advance(entries("a", "b"))
	assert.Empty(t, got)

	got = cur.advance(entries("a", "b", "x"))
	require.Len(t, got, 1)
	assert.Equal(t, []int{2}, got, "reporting resumes from the clamped position")
}

func TestListCursorFallsBackToTimeWhenWindowSlides(t *testing.T) {
	t.Parallel()

	var cur listCursor
	cur.advance(entries(keysOf(0, 3)...)) // a b c

	// Everything seen so far slid out of the window. Newer-than-last-seen
	// entries are still reported exactly once.
	got := cur.advance(entries(keysOf(3, 4)...)) // d e f g
	assert.Equal(t, []int{0, 1, 2, 3}, got)

	got = cur.advance(entries(keysOf(3, 4)...))
	assert.Empty(t, got)
}

func TestNewMessagesExactlyOnce(t *testing.T) {
	t.Parallel()

	at := time.Now().Add(-time.Minute)
	srv := newAPIServer(t, docWith([]string{chatMsg("alice", "hi", at)}, ""))
	c, err := New(context.Background(), srv.URL, WithRefreshRate(0))
	require.NoError(t, err)

	ctx := context.Background()
	ls, err := c.LatestLivestream(ctx)
	require.NoError(t, err)
	chat := ls.Chat()

	got, err := chat.NewMessages(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "hi", got[0].Text)

	got, err = chat.NewMessages(ctx)
	require.NoError(t, err)
	assert.Empty(t, got, "a message is delivered at most once")

	srv.set(docWith([]string{
		chatMsg("alice", "hi", at),
		chatMsg("bob", "hello", at.Add(time.Second)),
		chatMsg("alice", "how goes", at.Add(2*time.Second)),
	}, ""))

	got, err = chat.NewMessages(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "hello", got[0].Text)
	assert.Equal(t, "how goes", got[1].Text)
}

func TestNewMessagesIndependentOfRecent(t *testing.T) {
	t.Parallel()

	at := time.Now().Add(-time.Minute)
	srv := newAPIServer(t, docWith([]string{chatMsg("alice", "hi", at)}, ""))
	c, err := New(context.Background(), srv.URL, WithRefreshRate(time.Hour))
	require.NoError(t, err)

	ctx := context.Background()
	ls, err := c.LatestLivestream(ctx)
	require.NoError(t, err)
	chat := ls.Chat()

	// Reading the plain listing does not move the cursor.
	recent, err := chat.RecentMessages(ctx)
	require.NoError(t, err)
	require.Len(t, recent, 1)

	got, err := chat.NewMessages(ctx)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSkipBacklog(t *testing.T) {
	t.Parallel()

	at := time.Now().Add(-time.Minute)
	srv := newAPIServer(t, docWith([]string{chatMsg("alice", "old", at)}, ""))
	c, err := New(context.Background(), srv.URL, WithRefreshRate(0))
	require.NoError(t, err)

	ctx := context.Background()
	ls, err := c.LatestLivestream(ctx)
	require.NoError(t, err)
	chat := ls.Chat()

	require.NoError(t, chat.SkipBacklog(ctx))

	got, err := chat.NewMessages(ctx)
	require.NoError(t, err)
	assert.Empty(t, got, "the backlog was skipped")

	srv.set(docWith([]string{
		chatMsg("alice", "old", at),
		chatMsg("bob", "fresh", at.Add(time.Second)),
	}, ""))

	got, err = chat.NewMessages(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "fresh", got[0].Text)
}
