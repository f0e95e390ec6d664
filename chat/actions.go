package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zeroproject-dev/gorumble/internal/rumble"
	"github.com/zeroproject-dev/gorumble/session"
)

var (
	// ErrNotLoggedIn is returned by actions that need a session when the
	// client was connected without one.
	ErrNotLoggedIn = errors.New("not logged in")

	// ErrMessageTooLong is returned when a message exceeds the server's
	// length limit.
	ErrMessageTooLong = errors.New("message too long")

	// ErrSendCooldown is returned when messages are sent faster than the
	// server allows.
	ErrSendCooldown = errors.New("sending messages too fast")

	// ErrNotCommand is returned by Command for text without the command
	// prefix.
	ErrNotCommand = errors.New("not a command message")
)

// sendPayload is the JSON body of a message post.
type sendPayload struct {
	Data sendData `json:"data"`
}

type sendData struct {
	RequestID string      `json:"request_id"`
	Message   sendMessage `json:"message"`
	Rant      *struct{}   `json:"rant"`
	ChannelID *int64      `json:"channel_id"`
}

type sendMessage struct {
	Text string `json:"text"`
}

// SendMessage posts a message to the chat, optionally as one of the
// session's channels, and returns the new message ID along with the
// server's view of the sending user. A zero channelID posts as the user.
func (c *Client) SendMessage(ctx context.Context, text string, channelID int64) (int64, *User, error) {
	if c.sess == nil {
		return 0, nil, ErrNotLoggedIn
	}
	if len(text) > c.MaxMessageLen() {
		return 0, nil, fmt.Errorf("%w: %d bytes, limit %d", ErrMessageTooLong, len(text), c.MaxMessageLen())
	}

	c.mu.Lock()
	if since := time.Since(c.lastSend); since < rumble.SendCooldown {
		c.mu.Unlock()
		return 0, nil, fmt.Errorf("%w: wait %s", ErrSendCooldown, rumble.SendCooldown-since)
	}
	c.lastSend = time.Now()
	c.mu.Unlock()

	if err := c.preflight(ctx, c.messageURL, http.MethodPost); err != nil {
		return 0, nil, err
	}

	payload := sendPayload{Data: sendData{
		RequestID: uuid.NewString(),
		Message:   sendMessage{Text: text},
	}}
	if channelID != 0 {
		payload.Data.ChannelID = &channelID
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.messageURL, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, nil, fmt.Errorf("send message: %w", &rumble.StatusError{Code: resp.StatusCode, Body: string(raw)})
	}

	var res struct {
		Data struct {
			ID   flexInt64 `json:"id"`
			User *wireUser `json:"user"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return 0, nil, fmt.Errorf("send message: %w", err)
	}

	var user *User
	if res.Data.User != nil {
		u := fromWireUser(res.Data.User)
		user = &u
	}
	c.log.Debug().Int64("id", int64(res.Data.ID)).Msg("message sent")
	return int64(res.Data.ID), user, nil
}

// Command sends a native chat command such as "/raid" and returns the raw
// response payload.
func (c *Client) Command(ctx context.Context, text string) (json.RawMessage, error) {
	if c.sess == nil {
		return nil, ErrNotLoggedIn
	}
	if !strings.HasPrefix(text, rumble.CommandPrefix) {
		return nil, fmt.Errorf("%w: %q", ErrNotCommand, text)
	}

	form := url.Values{
		"video_id": {fmt.Sprint(c.stream.Base10())},
		"message":  {text},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.commandURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", rumble.UserAgent)
	c.authorize(req)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat command: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("chat command: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chat command: %w", &rumble.StatusError{Code: resp.StatusCode, Body: string(raw)})
	}
	return raw, nil
}

// DeleteMessage removes a message from the chat.
func (c *Client) DeleteMessage(ctx context.Context, messageID int64) error {
	if c.sess == nil {
		return ErrNotLoggedIn
	}
	target := fmt.Sprintf("%s/%d", c.messageURL, messageID)
	if err := c.preflight(ctx, target, http.MethodDelete); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, target, nil)
	if err != nil {
		return err
	}
	c.authorize(req)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("delete message: %w", &rumble.StatusError{Code: resp.StatusCode, Body: string(raw)})
	}

	c.mu.Lock()
	c.markDeletedLocked([]flexInt64{flexInt64(messageID)})
	c.mu.Unlock()
	return nil
}

// PinMessage pins a message in this chat.
func (c *Client) PinMessage(ctx context.Context, messageID int64) error {
	if c.sess == nil {
		return ErrNotLoggedIn
	}
	return c.sess.PinMessage(ctx, c.stream, messageID)
}

// UnpinMessage unpins a message. A zero messageID unpins the currently
// known pinned message.
func (c *Client) UnpinMessage(ctx context.Context, messageID int64) error {
	if c.sess == nil {
		return ErrNotLoggedIn
	}
	if messageID == 0 {
		pinned := c.Pinned()
		if pinned == nil {
			return errors.New("no known pinned message")
		}
		messageID = pinned.ID
	}
	return c.sess.UnpinMessage(ctx, c.stream, messageID)
}

// MuteUser mutes a user on this stream.
func (c *Client) MuteUser(ctx context.Context, username string, opts session.MuteOptions) error {
	if c.sess == nil {
		return ErrNotLoggedIn
	}
	return c.sess.MuteUser(ctx, username, c.stream, opts)
}

// UnmuteUser lifts a mute by username, resolving the mute record from the
// account's moderation pages.
func (c *Client) UnmuteUser(ctx context.Context, username string) error {
	if c.sess == nil || c.scraper == nil {
		return ErrNotLoggedIn
	}
	recordID, err := c.scraper.MutedUserRecord(ctx, username)
	if err != nil {
		return err
	}
	return c.sess.UnmuteUser(ctx, recordID)
}

// authorize attaches the session cookie.
func (c *Client) authorize(req *http.Request) {
	req.AddCookie(&http.Cookie{Name: rumble.SessionCookieName, Value: c.sess.Token()})
}

// preflight mirrors the browser's CORS OPTIONS check; the server rejects
// writes that skip it.
func (c *Client) preflight(ctx context.Context, target, method string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodOptions, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Access-Control-Request-Method", method)
	req.Header.Set("Origin", rumble.BaseURL)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return fmt.Errorf("preflight %s: %w", target, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("preflight %s: %w", target, &rumble.StatusError{Code: resp.StatusCode})
	}
	return nil
}
