// Package session authenticates against Rumble's service.php endpoint and
// exposes the logged-in operations the rest of the library builds on.
package session

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/zeroproject-dev/gorumble/ids"
	"github.com/zeroproject-dev/gorumble/internal/rumble"
)

// ErrLoginFailed is returned when service.php accepts the request but does
// not hand back a session token.
var ErrLoginFailed = errors.New("login failed, no session token returned")

// Session is an authenticated service.php client. The zero value is not
// usable; construct one with New or NewFromToken.
type Session struct {
	httpc   rumble.Doer
	log     zerolog.Logger
	baseURL string

	token    string
	username string
	userID   int64
}

// Option configures a Session.
type Option func(*Session)

// WithHTTPClient replaces the HTTP client used for every request.
func WithHTTPClient(c rumble.Doer) Option {
	return func(s *Session) { s.httpc = c }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Session) { s.log = log }
}

// WithBaseURL points the session at a different service.php endpoint.
func WithBaseURL(u string) Option {
	return func(s *Session) { s.baseURL = u }
}

func newSession(opts []Option) *Session {
	s := &Session{
		httpc:   rumble.NewHTTPClient(),
		log:     zerolog.Nop(),
		baseURL: rumble.ServicePHPURL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// New logs in with a username and password and returns an authenticated
// session.
func New(ctx context.Context, username, password string, opts ...Option) (*Session, error) {
	s := newSession(opts)
	s.username = username
	if err := s.login(ctx, username, password); err != nil {
		return nil, err
	}
	return s, nil
}

// NewFromToken wraps an existing session cookie value, as copied from a
// logged-in browser's u_s cookie.
func NewFromToken(token string, opts ...Option) *Session {
	s := newSession(opts)
	s.token = token
	return s
}

// Token returns the raw session cookie value.
func (s *Session) Token() string {
	return s.token
}

// Username returns the name used at login, or "" for token sessions.
func (s *Session) Username() string {
	return s.username
}

func (s *Session) login(ctx context.Context, username, password string) error {
	res, err := s.request(ctx, http.MethodPost, "user.get_salts", url.Values{
		"username": {username},
	}, false)
	if err != nil {
		return fmt.Errorf("get salts: %w", err)
	}
	var saltData struct {
		Salts []string `json:"salts"`
	}
	if err := json.Unmarshal(res.Data, &saltData); err != nil {
		return fmt.Errorf("get salts: %w", err)
	}
	if len(saltData.Salts) < 3 {
		return fmt.Errorf("get salts: expected 3 salts, got %d", len(saltData.Salts))
	}

	res, err = s.request(ctx, http.MethodPost, "user.login", url.Values{
		"username":        {username},
		"password_hashes": {strings.Join(passwordHashes(password, saltData.Salts), ",")},
	}, false)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	var loginData struct {
		Session string `json:"session"`
	}
	if err := json.Unmarshal(res.Data, &loginData); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if loginData.Session == "" {
		return ErrLoginFailed
	}

	s.token = loginData.Session
	s.log.Info().Str("username", username).Msg("logged in")
	return nil
}

// passwordHashes computes the three comma-joined hashes Rumble's login form
// sends instead of the plain password. The first two salts feed an iterated
// MD5 stretch, the middle salt is echoed back verbatim.
func passwordHashes(password string, salts []string) []string {
	stretched1 := hashStretch(password, salts[0], 128)
	stretched2 := hashStretch(password, salts[2], 128)
	final := md5Hex(stretched1 + salts[1])
	return []string{final, stretched2, salts[1]}
}

// hashStretch hashes the salted password, then re-hashes the hex digest with
// the password appended for the given number of rounds.
func hashStretch(password, salt string, iterations int) string {
	current := md5Hex(salt + password)
	for i := 0; i < iterations; i++ {
		current = md5Hex(current + password)
	}
	return current
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// response is the common service.php envelope.
type response struct {
	Data json.RawMessage `json:"data"`
	User json.RawMessage `json:"user"`
}

// request performs a service.php call and checks the data.success flag when
// the endpoint returns one.
func (s *Session) request(ctx context.Context, method, name string, form url.Values, loggedIn bool) (*response, error) {
	u := s.baseURL + "?name=" + url.QueryEscape(name)

	var body io.Reader
	if method != http.MethodGet && form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", rumble.UserAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if loggedIn {
		req.AddCookie(&http.Cookie{Name: rumble.SessionCookieName, Value: s.token})
	}

	resp, err := s.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("service.php %s: %w", name, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("service.php %s: %w", name, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("service.php %s: %w", name, &rumble.StatusError{Code: resp.StatusCode, Body: string(raw)})
	}

	var res response
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("service.php %s: %w", name, err)
	}

	// Endpoints that report success do so inside the data object.
	var flag struct {
		Success *bool `json:"success"`
	}
	if len(res.Data) > 0 && json.Unmarshal(res.Data, &flag) == nil && flag.Success != nil && !*flag.Success {
		return nil, fmt.Errorf("service.php %s: request unsuccessful: %s", name, raw)
	}
	return &res, nil
}

// UserID returns the numeric ID of the logged-in user, fetching it on first
// use from the unread notifications endpoint.
func (s *Session) UserID(ctx context.Context) (int64, error) {
	if s.userID != 0 {
		return s.userID, nil
	}
	res, err := s.request(ctx, http.MethodGet, "user.has_unread_notifications", nil, true)
	if err != nil {
		return 0, err
	}
	var user struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(res.User, &user); err != nil {
		return 0, fmt.Errorf("unread notifications: %w", err)
	}
	id, err := ids.Parse(strings.TrimPrefix(user.ID, "_"))
	if err != nil {
		return 0, fmt.Errorf("unread notifications: bad user id %q: %w", user.ID, err)
	}
	s.userID = id.Base10()
	return s.userID, nil
}
