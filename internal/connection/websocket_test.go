package connection

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newWSPair returns the server side channel and the client connection of one socket.
func newWSPair(t *testing.T, cfg WSConfig) (*WSChannel, *websocket.Conn) {
	t.Helper()
	upgrader := websocket.Upgrader{}
	channels := make(chan *WSChannel, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		channels <- NewWSChannel(conn, cfg)
	}))
	t.Cleanup(srv.Close)

	client, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	select {
	case ch := <-channels:
		return ch, client
	case <-time.After(5 * time.Second):
		t.Fatal("server never upgraded the connection")
		return nil, nil
	}
}

func TestWSChannel_SendAndRead(t *testing.T) {
	ch, client := newWSPair(t, WSConfig{WriteTimeout: time.Second, MaxMessageSize: 1024})
	assert.NotEmpty(t, ch.ID())

	require.NoError(t, ch.Send([]byte(`{"action":"activate"}`)))
	_, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, `{"action":"activate"}`, string(data))

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"action":"identify"}`)))
	got, err := ch.Read()
	require.NoError(t, err)
	assert.Equal(t, `{"action":"identify"}`, string(got))
}

func TestWSChannel_Close(t *testing.T) {
	ch, client := newWSPair(t, WSConfig{PingInterval: time.Hour, PongTimeout: time.Second})

	require.NoError(t, ch.Close())
	assert.NoError(t, ch.Close(), "close is idempotent")
	assert.ErrorIs(t, ch.Send([]byte("x")), ErrChannelClosed)

	select {
	case <-ch.Done():
	default:
		t.Fatal("done channel not closed")
	}

	_, _, err := client.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}
