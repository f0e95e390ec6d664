package liveapi

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// apiServer serves a mutable Live Stream API document and counts fetches.
type apiServer struct {
	*httptest.Server

	mu      sync.Mutex
	doc     string
	status  int
	fetches int
}

func newAPIServer(t *testing.T, doc string) *apiServer {
	t.Helper()
	s := &apiServer{doc: doc, status: http.StatusOK}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.fetches++
		if s.status != http.StatusOK {
			w.WriteHeader(s.status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, s.doc)
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *apiServer) set(doc string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = doc
}

func (s *apiServer) fail(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

func (s *apiServer) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

func ts(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05") + "+00:00"
}

// docWith builds a minimal API document. Messages are injected as the chat
// recent_messages block of a single livestream.
func docWith(messages []string, followers string) string {
	if followers == "" {
		followers = `{"num_followers": 2, "num_followers_total": 5, "latest_follower": null, "recent_followers": []}`
	}
	return fmt.Sprintf(`{
		"now": %q,
		"type": "user",
		"user_id": "c2kpa",
		"username": "testuser",
		"followers": %s,
		"subscribers": {"num_subscribers": 1, "num_subscribers_total": 1, "latest_subscriber": null, "recent_subscribers": []},
		"livestreams": [{
			"id": "v123ab",
			"title": "Test Stream",
			"created_on": %q,
			"is_live": true,
			"visibility": "public",
			"categories": {"news": {"slug": "news", "title": "News"}},
			"likes": 3,
			"dislikes": 1,
			"watching_now": 42,
			"chat": {
				"latest_message": null,
				"recent_messages": [%s],
				"latest_rant": null,
				"recent_rants": []
			}
		}]
	}`, ts(time.Now()), followers, ts(time.Now().Add(-time.Hour)), strings.Join(messages, ","))
}

func chatMsg(user, text string, at time.Time) string {
	return fmt.Sprintf(`{"username": %q, "text": %q, "created_on": %q, "badges": {}}`, user, text, ts(at))
}

func TestStaticFieldsDoNotRefresh(t *testing.T) {
	t.Parallel()

	srv := newAPIServer(t, docWith(nil, ""))
	c, err := New(context.Background(), srv.URL, WithRefreshRate(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 1, srv.count())

	assert.Equal(t, "user", c.APIType())
	assert.Equal(t, "testuser", c.Username())
	assert.Equal(t, "c2kpa", c.UserID())
	assert.Equal(t, 1, srv.count(), "static accessors must not fetch")

	_, err = c.ChannelID()
	assert.ErrorIs(t, err, ErrFieldMissing)
}

func TestAccessWithinRefreshRateFetchesOnce(t *testing.T) {
	t.Parallel()

	srv := newAPIServer(t, docWith(nil, ""))
	c, err := New(context.Background(), srv.URL, WithRefreshRate(time.Hour))
	require.NoError(t, err)

	ctx := context.Background()
	_, err = c.NumFollowers(ctx)
	require.NoError(t, err)
	_, err = c.NumFollowers(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, srv.count(), "accesses within the refresh rate must reuse the snapshot")
}

func TestAccessAfterRefreshRateFetchesAgain(t *testing.T) {
	t.Parallel()

	srv := newAPIServer(t, docWith(nil, ""))
	c, err := New(context.Background(), srv.URL, WithRefreshRate(0))
	require.NoError(t, err)

	ctx := context.Background()
	before := c.LastRefresh()
	time.Sleep(5 * time.Millisecond)

	n, err := c.NumFollowers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, srv.count())
	assert.True(t, c.LastRefresh().After(before), "refresh must advance the refresh time")
}

func TestFailedFetchKeepsLastKnownGood(t *testing.T) {
	t.Parallel()

	srv := newAPIServer(t, docWith(nil, ""))
	c, err := New(context.Background(), srv.URL, WithRefreshRate(0))
	require.NoError(t, err)

	stamp := c.DataTimestamp()
	srv.fail(http.StatusInternalServerError)

	ctx := context.Background()
	_, err = c.NumFollowers(ctx)
	require.Error(t, err, "fetch failure must surface to the caller")

	// Stale cache is kept, not invalidated.
	assert.Equal(t, "testuser", c.Username())
	assert.True(t, stamp.Equal(c.DataTimestamp()))

	// Recovery on the next access once the server is healthy again.
	srv.fail(http.StatusOK)
	n, err := c.NumFollowers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestNewFollowersCursor(t *testing.T) {
	t.Parallel()

	srv := newAPIServer(t, docWith(nil, ""))
	c, err := New(context.Background(), srv.URL, WithRefreshRate(0))
	require.NoError(t, err)

	// A follower that arrives after the client was created.
	followedOn := time.Now().Add(time.Minute)
	srv.set(docWith(nil, fmt.Sprintf(
		`{"num_followers": 3, "num_followers_total": 6, "latest_follower": null, "recent_followers": [{"username": "fan", "followed_on": %q}]}`,
		ts(followedOn),
	)))

	ctx := context.Background()
	got, err := c.NewFollowers(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "fan", got[0].Username)

	got, err = c.NewFollowers(ctx)
	require.NoError(t, err)
	assert.Empty(t, got, "a follower is only reported once")
}

func TestLivestreamFields(t *testing.T) {
	t.Parallel()

	srv := newAPIServer(t, docWith(nil, ""))
	c, err := New(context.Background(), srv.URL, WithRefreshRate(time.Hour))
	require.NoError(t, err)

	ctx := context.Background()
	ls, err := c.LatestLivestream(ctx)
	require.NoError(t, err)
	require.NotNil(t, ls)

	assert.Equal(t, "v123ab", ls.ID())

	title, err := ls.Title(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Test Stream", title)

	live, err := ls.IsLive(ctx)
	require.NoError(t, err)
	assert.True(t, live)

	ratio, ok, err := ls.LikeRatio(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.InDelta(t, 0.75, ratio, 1e-9)

	cats, err := ls.Categories(ctx)
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, "news", cats[0].Slug)

	id, err := ls.StreamID()
	require.NoError(t, err)
	assert.Equal(t, "v123ab", id.Base36())
}

func TestLivestreamDisappears(t *testing.T) {
	t.Parallel()

	srv := newAPIServer(t, docWith(nil, ""))
	c, err := New(context.Background(), srv.URL, WithRefreshRate(0))
	require.NoError(t, err)

	ctx := context.Background()
	ls, err := c.LatestLivestream(ctx)
	require.NoError(t, err)
	require.NotNil(t, ls)

	// The stream drops out of the listing.
	srv.set(strings.Replace(docWith(nil, ""), `"livestreams": [{`, `"livestreams": [], "unused": [{`, 1))
	require.NoError(t, c.Refresh(ctx))

	assert.True(t, ls.IsDisappeared())

	live, err := ls.IsLive(ctx)
	require.NoError(t, err)
	assert.False(t, live, "disappeared streams are never live")

	// Last known data is still served.
	title, err := ls.Title(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Test Stream", title)

	streams, err := c.Livestreams(ctx)
	require.NoError(t, err)
	assert.Empty(t, streams)
}
