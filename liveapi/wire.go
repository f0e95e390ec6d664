package liveapi

import (
	"fmt"
	"sort"
	"time"

	"github.com/zeroproject-dev/gorumble/internal/rumble"
)

// Wire types mirror the Live Stream API v1.0 JSON document. They exist only
// long enough to be converted into the typed snapshot; timestamps are parsed
// during conversion so repeated reads of the same snapshot stay cheap.

type apiDocument struct {
	Now         string           `json:"now"`
	Type        string           `json:"type"`
	UserID      string           `json:"user_id"`
	Username    string           `json:"username"`
	ChannelID   *int64           `json:"channel_id"`
	ChannelName string           `json:"channel_name"`
	Followers   followersBlock   `json:"followers"`
	Subscribers subscribersBlock `json:"subscribers"`
	Livestreams []streamBlock    `json:"livestreams"`
}

type followersBlock struct {
	NumFollowers      int           `json:"num_followers"`
	NumFollowersTotal int           `json:"num_followers_total"`
	LatestFollower    *actionBlock  `json:"latest_follower"`
	RecentFollowers   []actionBlock `json:"recent_followers"`
}

type subscribersBlock struct {
	NumSubscribers      int           `json:"num_subscribers"`
	NumSubscribersTotal int           `json:"num_subscribers_total"`
	LatestSubscriber    *actionBlock  `json:"latest_subscriber"`
	RecentSubscribers   []actionBlock `json:"recent_subscribers"`
}

// actionBlock is the shared shape of follower, subscriber, message, and rant
// entries: a user action with a timestamp and, depending on kind, an amount.
type actionBlock struct {
	Username      string            `json:"username"`
	User          string            `json:"user"`
	ProfilePicURL string            `json:"profile_pic_url"`
	FollowedOn    string            `json:"followed_on"`
	SubscribedOn  string            `json:"subscribed_on"`
	AmountCents   int               `json:"amount_cents"`
	AmountDollars float64           `json:"amount_dollars"`
	Text          string            `json:"text"`
	CreatedOn     string            `json:"created_on"`
	ExpiresOn     string            `json:"expires_on"`
	Badges        map[string]string `json:"badges"`
}

type streamBlock struct {
	ID          string                   `json:"id"`
	Title       string                   `json:"title"`
	CreatedOn   string                   `json:"created_on"`
	IsLive      bool                     `json:"is_live"`
	Visibility  string                   `json:"visibility"`
	Categories  map[string]categoryBlock `json:"categories"`
	Likes       int                      `json:"likes"`
	Dislikes    int                      `json:"dislikes"`
	WatchingNow int                      `json:"watching_now"`
	Chat        chatBlock                `json:"chat"`
}

type categoryBlock struct {
	Slug  string `json:"slug"`
	Title string `json:"title"`
}

type chatBlock struct {
	LatestMessage  *actionBlock  `json:"latest_message"`
	RecentMessages []actionBlock `json:"recent_messages"`
	LatestRant     *actionBlock  `json:"latest_rant"`
	RecentRants    []actionBlock `json:"recent_rants"`
}

// snapshot is the typed, timestamp-parsed form of one API document.
type snapshot struct {
	dataTime    time.Time
	apiType     string
	userID      string
	username    string
	channelID   *int64
	channelName string
	followers   followerStats
	subscribers subscriberStats
	streams     []streamData
}

type followerStats struct {
	count  int
	total  int
	latest *Follower
	recent []Follower
}

type subscriberStats struct {
	count  int
	total  int
	latest *Subscriber
	recent []Subscriber
}

type streamData struct {
	id          string
	title       string
	createdOn   time.Time
	isLive      bool
	visibility  string
	categories  []StreamCategory
	likes       int
	dislikes    int
	watchingNow int
	chat        chatData
}

type chatData struct {
	latestMessage  *ChatMessage
	recentMessages []ChatMessage
	latestRant     *Rant
	recentRants    []Rant
}

func (d *apiDocument) toSnapshot() (*snapshot, error) {
	snap := &snapshot{
		apiType:     d.Type,
		userID:      d.UserID,
		username:    d.Username,
		channelID:   d.ChannelID,
		channelName: d.ChannelName,
	}

	var err error
	if snap.dataTime, err = rumble.ParseTimestamp(d.Now); err != nil {
		return nil, fmt.Errorf("data timestamp: %w", err)
	}

	snap.followers = followerStats{
		count: d.Followers.NumFollowers,
		total: d.Followers.NumFollowersTotal,
	}
	if d.Followers.LatestFollower != nil {
		f, err := d.Followers.LatestFollower.toFollower()
		if err != nil {
			return nil, err
		}
		snap.followers.latest = &f
	}
	for _, b := range d.Followers.RecentFollowers {
		f, err := b.toFollower()
		if err != nil {
			return nil, err
		}
		snap.followers.recent = append(snap.followers.recent, f)
	}

	snap.subscribers = subscriberStats{
		count: d.Subscribers.NumSubscribers,
		total: d.Subscribers.NumSubscribersTotal,
	}
	if d.Subscribers.LatestSubscriber != nil {
		s, err := d.Subscribers.LatestSubscriber.toSubscriber()
		if err != nil {
			return nil, err
		}
		snap.subscribers.latest = &s
	}
	for _, b := range d.Subscribers.RecentSubscribers {
		s, err := b.toSubscriber()
		if err != nil {
			return nil, err
		}
		snap.subscribers.recent = append(snap.subscribers.recent, s)
	}

	for _, b := range d.Livestreams {
		sd, err := b.toStreamData()
		if err != nil {
			return nil, fmt.Errorf("livestream %q: %w", b.ID, err)
		}
		snap.streams = append(snap.streams, sd)
	}

	return snap, nil
}

func (b *actionBlock) toFollower() (Follower, error) {
	t, err := rumble.ParseTimestamp(b.FollowedOn)
	if err != nil {
		return Follower{}, fmt.Errorf("follower %q: %w", b.Username, err)
	}
	return Follower{
		Username:      b.Username,
		ProfilePicURL: b.ProfilePicURL,
		FollowedOn:    t,
	}, nil
}

func (b *actionBlock) toSubscriber() (Subscriber, error) {
	t, err := rumble.ParseTimestamp(b.SubscribedOn)
	if err != nil {
		return Subscriber{}, fmt.Errorf("subscriber %q: %w", b.Username, err)
	}
	return Subscriber{
		Username:      b.Username,
		User:          b.User,
		ProfilePicURL: b.ProfilePicURL,
		AmountCents:   b.AmountCents,
		AmountDollars: b.AmountDollars,
		SubscribedOn:  t,
	}, nil
}

func (b *actionBlock) toChatMessage() (ChatMessage, error) {
	t, err := rumble.ParseTimestamp(b.CreatedOn)
	if err != nil {
		return ChatMessage{}, fmt.Errorf("chat message by %q: %w", b.Username, err)
	}
	return ChatMessage{
		Username:      b.Username,
		Text:          b.Text,
		CreatedOn:     t,
		Badges:        badgeList(b.Badges),
		ProfilePicURL: b.ProfilePicURL,
	}, nil
}

func (b *actionBlock) toRant() (Rant, error) {
	msg, err := b.toChatMessage()
	if err != nil {
		return Rant{}, err
	}
	r := Rant{
		ChatMessage:   msg,
		AmountCents:   b.AmountCents,
		AmountDollars: b.AmountDollars,
	}
	if b.ExpiresOn != "" {
		if r.ExpiresOn, err = rumble.ParseTimestamp(b.ExpiresOn); err != nil {
			return Rant{}, fmt.Errorf("rant by %q: %w", b.Username, err)
		}
	}
	return r, nil
}

func (b *streamBlock) toStreamData() (streamData, error) {
	sd := streamData{
		id:          b.ID,
		title:       b.Title,
		isLive:      b.IsLive,
		visibility:  b.Visibility,
		likes:       b.Likes,
		dislikes:    b.Dislikes,
		watchingNow: b.WatchingNow,
	}

	var err error
	if sd.createdOn, err = rumble.ParseTimestamp(b.CreatedOn); err != nil {
		return streamData{}, err
	}

	// Categories arrive keyed by slug; order them for stable output.
	for _, cb := range b.Categories {
		sd.categories = append(sd.categories, StreamCategory{Slug: cb.Slug, Title: cb.Title})
	}
	sort.Slice(sd.categories, func(i, j int) bool { return sd.categories[i].Slug < sd.categories[j].Slug })

	if b.Chat.LatestMessage != nil {
		m, err := b.Chat.LatestMessage.toChatMessage()
		if err != nil {
			return streamData{}, err
		}
		sd.chat.latestMessage = &m
	}
	for _, mb := range b.Chat.RecentMessages {
		m, err := mb.toChatMessage()
		if err != nil {
			return streamData{}, err
		}
		sd.chat.recentMessages = append(sd.chat.recentMessages, m)
	}
	if b.Chat.LatestRant != nil {
		r, err := b.Chat.LatestRant.toRant()
		if err != nil {
			return streamData{}, err
		}
		sd.chat.latestRant = &r
	}
	for _, rb := range b.Chat.RecentRants {
		r, err := rb.toRant()
		if err != nil {
			return streamData{}, err
		}
		sd.chat.recentRants = append(sd.chat.recentRants, r)
	}

	return sd, nil
}

// badgeList flattens the API's slug-keyed badge map, sorted by slug.
func badgeList(badges map[string]string) []string {
	if len(badges) == 0 {
		return nil
	}
	slugs := make([]string, 0, len(badges))
	for slug := range badges {
		slugs = append(slugs, slug)
	}
	sort.Strings(slugs)
	return slugs
}
