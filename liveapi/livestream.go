package liveapi

import (
	"context"

	"time"

	"github.com/zeroproject-dev/gorumble/ids"
)

// Livestream is a handle on one livestream in the API listing. It holds no
// data of its own: reads go through the parent client's current snapshot,
// refreshing it when stale. A stream that drops out of the listing keeps
// serving its last known data and stops refreshing.
type Livestream struct {
	c           *Client
	data        *streamData
	disappeared bool
	chat        *LiveChat
}

func newLivestream(c *Client, data *streamData) *Livestream {
	ls := &Livestream{c: c, data: data}
	ls.chat = &LiveChat{stream: ls}
	return ls
}

// ID is the livestream ID in base 36. Static.
func (ls *Livestream) ID() string {
	ls.c.mu.Lock()
	defer ls.c.mu.Unlock()
	return ls.data.id
}

// StreamID is the livestream ID as a typed stream identifier, usable with
// the chat package.
func (ls *Livestream) StreamID() (ids.StreamID, error) {
	return ids.Parse(ls.ID())
}

// CreatedOn is when the livestream was created. Static.
func (ls *Livestream) CreatedOn() time.Time {
	ls.c.mu.Lock()
	defer ls.c.mu.Unlock()
	return ls.data.createdOn
}

// IsDisappeared reports whether the stream has dropped out of the API
// listing since this handle was created.
func (ls *Livestream) IsDisappeared() bool {
	ls.c.mu.Lock()
	defer ls.c.mu.Unlock()
	return ls.disappeared
}

// read refreshes the parent snapshot if needed and returns the stream data
// under the client lock. Disappeared streams never refresh.
func (ls *Livestream) read(ctx context.Context) (*streamData, func(), error) {
	ls.c.mu.Lock()
	if !ls.disappeared {
		if err := ls.c.maybeRefreshLocked(ctx); err != nil {
			ls.c.mu.Unlock()
			return nil, nil, err
		}
	}
	return ls.data, ls.c.mu.Unlock, nil
}

// Title is the title of the livestream.
func (ls *Livestream) Title(ctx context.Context) (string, error) {
	data, done, err := ls.read(ctx)
	if err != nil {
		return "", err
	}
	defer done()
	return data.title, nil
}

// IsLive reports whether the stream is currently live. Streams that left
// the API listing are never live.
func (ls *Livestream) IsLive(ctx context.Context) (bool, error) {
	data, done, err := ls.read(ctx)
	if err != nil {
		return false, err
	}
	defer done()
	return data.isLive && !ls.disappeared, nil
}

// Visibility reports whether the stream is public, unlisted, or private.
func (ls *Livestream) Visibility(ctx context.Context) (string, error) {
	data, done, err := ls.read(ctx)
	if err != nil {
		return "", err
	}
	defer done()
	return data.visibility, nil
}

// Categories lists the stream's categories, ordered by slug.
func (ls *Livestream) Categories(ctx context.Context) ([]StreamCategory, error) {
	data, done, err := ls.read(ctx)
	if err != nil {
		return nil, err
	}
	defer done()
	out := make([]StreamCategory, len(data.categories))
	copy(out, data.categories)
	return out, nil
}

// Likes is the number of likes on the stream.
func (ls *Livestream) Likes(ctx context.Context) (int, error) {
	data, done, err := ls.read(ctx)
	if err != nil {
		return 0, err
	}
	defer done()
	return data.likes, nil
}

// Dislikes is the number of dislikes on the stream.
func (ls *Livestream) Dislikes(ctx context.Context) (int, error) {
	data, done, err := ls.read(ctx)
	if err != nil {
		return 0, err
	}
	defer done()
	return data.dislikes, nil
}

// LikeRatio is the share of reactions that are likes. The second return is
// false when nobody has reacted.
func (ls *Livestream) LikeRatio(ctx context.Context) (float64, bool, error) {
	data, done, err := ls.read(ctx)
	if err != nil {
		return 0, false, err
	}
	defer done()
	total := data.likes + data.dislikes
	if total == 0 {
		return 0, false, nil
	}
	return float64(data.likes) / float64(total), true, nil
}

// WatchingNow is the current viewer count.
func (ls *Livestream) WatchingNow(ctx context.Context) (int, error) {
	data, done, err := ls.read(ctx)
	if err != nil {
		return 0, err
	}
	defer done()
	return data.watchingNow, nil
}

// Chat is the livestream's chat view, with incremental read cursors.
func (ls *Livestream) Chat() *LiveChat {
	return ls.chat
}
