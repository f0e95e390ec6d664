// Package rumble holds the wire-level constants and helpers shared by every
// client in this module: endpoint URLs, request headers, the platform's
// timestamp format, and the Doer interface used to inject transports.
package rumble

import (
	"fmt"
	"net/http"
	"time"
)

const (
	// BaseURL is the root of Rumble's website, for URLs relative to it.
	BaseURL = "https://rumble.com"

	// ServicePHPURL is the service.php API endpoint.
	ServicePHPURL = BaseURL + "/service.php"

	// ChatCommandURL receives native chat commands (does not use the chat API base).
	ChatCommandURL = BaseURL + "/chat/command"

	// MutesPagePath is the account moderation page listing mutes, relative to
	// the site root and formatted with a page number.
	MutesPagePath = "/account/moderation/muting?pg=%d"

	// ChannelsPagePath is the page listing the channels under a user, relative
	// to the site root and formatted with a username.
	ChannelsPagePath = "/user/%s/channels"

	// ChatAPIFormat is the internal chat API base for a stream, formatted with
	// a base-10 stream ID.
	ChatAPIFormat = "https://web7.rumble.com/chat/api/chat/%d"

	// ChatSSEFormat is the SSE event stream for a chat, formatted with a
	// base-10 stream ID.
	ChatSSEFormat = ChatAPIFormat + "/stream"

	// ChatMessageFormat is the message action endpoint for a chat, formatted
	// with a base-10 stream ID.
	ChatMessageFormat = ChatAPIFormat + "/message"
)

const (
	// UserAgent fakes a browser; the platform rejects requests without one.
	UserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/51.0.2704.103 Safari/537.36"

	// SessionCookieName is the key of the session token cookie.
	SessionCookieName = "u_s"

	// BadgeIconSize is the only badge icon size the platform has ever served.
	BadgeIconSize = "48"
)

const (
	// DefaultTimeout bounds non-streaming HTTP requests.
	DefaultTimeout = 20 * time.Second

	// DefaultRefreshRate is how long polled API data is reused before a
	// re-fetch.
	DefaultRefreshRate = 10 * time.Second

	// MinRefreshRate is the fastest polling the platform permits.
	MinRefreshRate = 5 * time.Second

	// MaxMessageLen is the chat message length cap.
	MaxMessageLen = 200

	// SendCooldown is the required wait between sent chat messages.
	SendCooldown = 3 * time.Second

	// CommandPrefix starts a native chat command.
	CommandPrefix = "/"
)

// timestampLayout is the platform's timestamp format. Every timestamp carries
// a fixed-width UTC offset suffix that ParseTimestamp trims.
const timestampLayout = "2006-01-02T15:04:05"

// ParseTimestamp parses a platform timestamp into UTC time. The trailing
// six-character offset is discarded; the platform always reports UTC.
func ParseTimestamp(s string) (time.Time, error) {
	if len(s) > len(timestampLayout) {
		s = s[:len(timestampLayout)]
	}
	t, err := time.ParseInLocation(timestampLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// Doer is the subset of http.Client the clients in this module need. Tests
// substitute transports through it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// StatusError reports a non-success HTTP response from the platform.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("rumble: unexpected status %d", e.Code)
	}
	return fmt.Sprintf("rumble: unexpected status %d: %s", e.Code, e.Body)
}

// NewHTTPClient returns the default client for non-streaming requests.
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: DefaultTimeout}
}
