package chat

import (
	"time"

	"github.com/zeroproject-dev/gorumble/internal/rumble"
)

// Message is a single chat message as delivered over the SSE stream.
type Message struct {
	ID        int64
	Time      time.Time
	UserID    int64
	ChannelID int64 // zero when the author did not post as a channel
	Text      string

	Rant         *RantDetails
	Raid         *RaidNotification
	GiftPurchase *GiftPurchaseNotification

	// Deleted is set when the server later reports this message as removed.
	Deleted bool
}

// IsRant reports whether the message carried a paid rant.
func (m *Message) IsRant() bool {
	return m.Rant != nil
}

// RantDetails is the paid portion of a rant message.
type RantDetails struct {
	PriceCents int
	Duration   time.Duration
	ExpiresOn  time.Time
}

// RaidNotification marks a message announcing an incoming raid.
type RaidNotification struct {
	Text []string
}

// GiftPurchaseNotification marks a message announcing gifted subscriptions.
type GiftPurchaseNotification struct {
	TotalGifts       int
	GiftType         string
	VideoID          int64
	PurchasedBy      string
	CreatorUserID    int64
	CreatorChannelID int64
}

// User is a chat participant. The client keeps one record per user ID and
// updates it in place as the stream reports changes.
type User struct {
	ID         int64
	Username   string
	Link       string
	ChannelID  int64 // zero when the user is not appearing as a channel
	IsFollower bool
	Color      string // RGB hex without the leading #
	Badges     []string
	ImageURL   string
}

// Channel is a channel a user appears in chat as.
type Channel struct {
	ID       int64
	Username string
	Link     string
	ImageURL string
}

// Badge describes one of the badge slugs attached to users.
type Badge struct {
	Slug   string
	Labels map[string]string // keyed by language code
	IconURL string
}

func fromWireMessage(w *wireMessage) Message {
	m := Message{
		ID:     int64(w.ID),
		UserID: int64(w.UserID),
		Text:   w.Text,
	}
	if t, err := rumble.ParseTimestamp(w.Time); err == nil {
		m.Time = t
	}
	if w.ChannelID != nil {
		m.ChannelID = int64(*w.ChannelID)
	}
	if w.Rant != nil {
		m.Rant = &RantDetails{
			PriceCents: w.Rant.PriceCents,
			Duration:   time.Duration(w.Rant.Duration) * time.Second,
		}
		if t, err := rumble.ParseTimestamp(w.Rant.ExpiresOn); err == nil {
			m.Rant.ExpiresOn = t
		}
	}
	if w.Raid != nil {
		m.Raid = &RaidNotification{Text: w.Raid.Text}
	}
	if w.GiftPurchase != nil {
		m.GiftPurchase = &GiftPurchaseNotification{
			TotalGifts:       w.GiftPurchase.TotalGifts,
			GiftType:         w.GiftPurchase.GiftType,
			VideoID:          int64(w.GiftPurchase.VideoID),
			PurchasedBy:      w.GiftPurchase.PurchasedBy,
			CreatorUserID:    int64(w.GiftPurchase.CreatorUserID),
			CreatorChannelID: int64(w.GiftPurchase.CreatorChannelID),
		}
	}
	return m
}

func fromWireUser(w *wireUser) User {
	u := User{
		ID:         int64(w.ID),
		Username:   w.Username,
		Link:       w.Link,
		IsFollower: w.IsFollower,
		Color:      w.Color,
		Badges:     w.Badges,
		ImageURL:   w.ImageURL,
	}
	if w.ChannelID != nil {
		u.ChannelID = int64(*w.ChannelID)
	}
	return u
}

func fromWireChannel(w *wireChannel) Channel {
	return Channel{
		ID:       int64(w.ID),
		Username: w.Username,
		Link:     w.Link,
		ImageURL: w.ImageURL,
	}
}

func fromWireBadge(slug string, w wireBadge) Badge {
	b := Badge{Slug: slug, Labels: w.Labels}
	if icon, ok := w.Icons[rumble.BadgeIconSize]; ok {
		b.IconURL = rumble.BaseURL + icon
	}
	return b
}
