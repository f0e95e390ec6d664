package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Event types sent over the SSE stream.
const (
	eventInit                  = "init"
	eventMessages              = "messages"
	eventDeleteMessages        = "delete_messages"
	eventDeleteNonRantMessages = "delete_non_rant_messages"
	eventPinMessage            = "pin_message"
)

// flexInt64 decodes a JSON number or a quoted number. The chat API is not
// consistent about which one it sends for IDs.
type flexInt64 int64

func (f *flexInt64) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if string(data) == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("flexible int: %w", err)
	}
	*f = flexInt64(n)
	return nil
}

// event is the envelope of every SSE payload.
type event struct {
	Type string    `json:"type"`
	Data eventData `json:"data"`
}

type eventData struct {
	Messages   []wireMessage  `json:"messages"`
	Users      []wireUser     `json:"users"`
	Channels   []wireChannel  `json:"channels"`
	MessageIDs []flexInt64    `json:"message_ids"`
	Message    *wireMessage   `json:"message"`
	Config     *wireConfig    `json:"config"`
}

type wireMessage struct {
	ID        flexInt64  `json:"id"`
	Time      string     `json:"time"`
	UserID    flexInt64  `json:"user_id"`
	ChannelID *flexInt64 `json:"channel_id"`
	Text      string     `json:"text"`
	Rant      *wireRant  `json:"rant"`

	Raid         *wireRaid         `json:"raid_notification"`
	GiftPurchase *wireGiftPurchase `json:"gift_purchase_notification"`
}

type wireRant struct {
	PriceCents int    `json:"price_cents"`
	Duration   int    `json:"duration"`
	ExpiresOn  string `json:"expires_on"`
}

type wireRaid struct {
	Text []string `json:"text"`
}

type wireGiftPurchase struct {
	TotalGifts       int       `json:"total_gifts"`
	GiftType         string    `json:"gift_type"`
	VideoID          flexInt64 `json:"video_id"`
	PurchasedBy      string    `json:"purchased_by"`
	CreatorUserID    flexInt64 `json:"creator_user_id"`
	CreatorChannelID flexInt64 `json:"creator_channel_id"`
}

type wireUser struct {
	ID         flexInt64  `json:"id"`
	Username   string     `json:"username"`
	Link       string     `json:"link"`
	ChannelID  *flexInt64 `json:"channel_id"`
	IsFollower bool       `json:"is_follower"`
	Color      string     `json:"color"`
	Badges     []string   `json:"badges"`
	ImageURL   string     `json:"image.1"`
}

type wireChannel struct {
	ID       flexInt64 `json:"id"`
	Username string    `json:"username"`
	Link     string    `json:"link"`
	ImageURL string    `json:"image.1"`
}

type wireConfig struct {
	Badges           map[string]wireBadge `json:"badges"`
	MessageLengthMax int                  `json:"message_length_max"`
	Rants            struct {
		Enable bool `json:"enable"`
	} `json:"rants"`
}

type wireBadge struct {
	Labels map[string]string `json:"label"`
	Icons  map[string]string `json:"icons"`
}

func parseEvent(data []byte) (*event, error) {
	var ev event
	if err := json.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("chat event: %w", err)
	}
	return &ev, nil
}
