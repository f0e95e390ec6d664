package liveapi

import "time"

// Follower is somebody following the user or channel.
type Follower struct {
	Username      string
	ProfilePicURL string
	FollowedOn    time.Time
}

// Subscriber is a paying subscriber of the user or channel.
type Subscriber struct {
	Username      string
	User          string // older alias of Username served by the API
	ProfilePicURL string
	AmountCents   int
	AmountDollars float64
	SubscribedOn  time.Time
}

// StreamCategory is one category a livestream is filed under.
type StreamCategory struct {
	Slug  string
	Title string
}

// ChatMessage is a single message in a livestream chat, as reported by the
// polled API. The polled API does not assign message IDs.
type ChatMessage struct {
	Username      string
	Text          string
	CreatedOn     time.Time
	Badges        []string
	ProfilePicURL string
}

// Rant is a paid, highlighted chat message.
type Rant struct {
	ChatMessage
	AmountCents   int
	AmountDollars float64
	ExpiresOn     time.Time
}
