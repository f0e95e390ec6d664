package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeroproject-dev/gorumble/internal/rumble"
	"github.com/zeroproject-dev/gorumble/session"
)

// newActionServer extends the SSE server with the message endpoint.
func newActionServer(t *testing.T) (*sseServer, *Client) {
	t.Helper()
	srv := newSSEServer(t)

	var sawPreflight bool
	mux := srv.Config.Handler.(*http.ServeMux)
	mux.HandleFunc("/chat/api/chat/123/message", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodOptions:
			sawPreflight = true
			w.WriteHeader(http.StatusNoContent)
		case http.MethodPost:
			require.True(t, sawPreflight, "POST must follow an OPTIONS preflight")
			c, err := r.Cookie(rumble.SessionCookieName)
			require.NoError(t, err)
			assert.Equal(t, "tok123", c.Value)

			var payload sendPayload
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.NotEmpty(t, payload.Data.RequestID)
			assert.Equal(t, "hello chat", payload.Data.Message.Text)
			assert.Nil(t, payload.Data.Rant)

			fmt.Fprint(w, `{"data": {"id": "3001", "user": {"id": 77, "username": "alice", "link": "/user/alice"}}}`)
		default:
			http.Error(w, "bad method", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/chat/api/chat/123/message/", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodOptions:
			w.WriteHeader(http.StatusNoContent)
		case http.MethodDelete:
			_, err := r.Cookie(rumble.SessionCookieName)
			require.NoError(t, err)
			fmt.Fprint(w, `{}`)
		default:
			http.Error(w, "bad method", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/chat/command", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "123", r.PostForm.Get("video_id"))
		assert.Equal(t, "/mod alice", r.PostForm.Get("message"))
		fmt.Fprint(w, `{"ok": true}`)
	})

	sess := session.NewFromToken("tok123")
	c := connectTest(t, srv, WithSession(sess), WithCommandURL(srv.URL+"/chat/command"))
	return srv, c
}

func TestSendMessage(t *testing.T) {
	t.Parallel()

	_, c := newActionServer(t)

	id, user, err := c.SendMessage(context.Background(), "hello chat", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3001), id)
	require.NotNil(t, user)
	assert.Equal(t, "alice", user.Username)
}

func TestSendMessageCooldown(t *testing.T) {
	t.Parallel()

	_, c := newActionServer(t)

	ctx := context.Background()
	_, _, err := c.SendMessage(ctx, "hello chat", 0)
	require.NoError(t, err)

	_, _, err = c.SendMessage(ctx, "hello chat", 0)
	assert.ErrorIs(t, err, ErrSendCooldown)
}

func TestSendMessageTooLong(t *testing.T) {
	t.Parallel()

	_, c := newActionServer(t)

	long := make([]byte, c.MaxMessageLen()+1)
	for i := range long {
		long[i] = 'a'
	}
	_, _, err := c.SendMessage(context.Background(), string(long), 0)
	assert.ErrorIs(t, err, ErrMessageTooLong)
}

func TestDeleteMessageMarksHistory(t *testing.T) {
	t.Parallel()

	_, c := newActionServer(t)

	ctx := context.Background()
	m, err := c.GetMessage(ctx)
	require.NoError(t, err)

	require.NoError(t, c.DeleteMessage(ctx, m.ID))
	h := c.History()
	require.Len(t, h, 1)
	assert.True(t, h[0].Deleted)
}

func TestCommand(t *testing.T) {
	t.Parallel()

	_, c := newActionServer(t)

	ctx := context.Background()
	raw, err := c.Command(ctx, "/mod alice")
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok": true}`, string(raw))

	_, err = c.Command(ctx, "not a command")
	assert.ErrorIs(t, err, ErrNotCommand)
}
