package session

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/zeroproject-dev/gorumble/ids"
)

// PinMessage pins a chat message to the top of a stream's chat.
func (s *Session) PinMessage(ctx context.Context, stream ids.StreamID, messageID int64) error {
	return s.chatPin(ctx, "chat.message.pin", stream, messageID)
}

// UnpinMessage removes a previously pinned chat message.
func (s *Session) UnpinMessage(ctx context.Context, stream ids.StreamID, messageID int64) error {
	return s.chatPin(ctx, "chat.message.unpin", stream, messageID)
}

func (s *Session) chatPin(ctx context.Context, name string, stream ids.StreamID, messageID int64) error {
	_, err := s.request(ctx, http.MethodPost, name, url.Values{
		"video_id":   {strconv.FormatInt(stream.Base10(), 10)},
		"message_id": {strconv.FormatInt(messageID, 10)},
	}, true)
	return err
}

// MuteOptions controls the scope of a chat mute.
type MuteOptions struct {
	// IsChannel marks the named entity as a channel rather than a user.
	IsChannel bool
	// Duration in seconds. Zero mutes indefinitely.
	Duration int
	// Total extends the mute from this video to the whole account.
	Total bool
}

// MuteUser mutes a user or channel by name on the given stream.
func (s *Session) MuteUser(ctx context.Context, username string, stream ids.StreamID, opts MuteOptions) error {
	entity := "user"
	if opts.IsChannel {
		entity = "channel"
	}
	scope := "video"
	if opts.Total {
		scope = "total"
	}
	form := url.Values{
		"user_to_mute": {username},
		"entity_type":  {entity},
		"video":        {strconv.FormatInt(stream.Base10(), 10)},
		"type":         {scope},
	}
	if opts.Duration > 0 {
		form.Set("duration", strconv.Itoa(opts.Duration))
	}
	_, err := s.request(ctx, http.MethodPost, "moderation.mute", form, true)
	if err == nil {
		s.log.Info().Str("username", username).Str("scope", scope).Msg("muted")
	}
	return err
}

// UnmuteUser lifts a mute by its record ID. Record IDs come from the mutes
// page, see the scrape package.
func (s *Session) UnmuteUser(ctx context.Context, recordID int64) error {
	_, err := s.request(ctx, http.MethodPost, "moderation.unmute", url.Values{
		"record_id": {strconv.FormatInt(recordID, 10)},
	}, true)
	return err
}
