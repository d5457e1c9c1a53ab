package connection

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Stream is a Channel that can also be read from. Device sessions consume it.
type Stream interface {
	Channel
	Read() ([]byte, error)
}

// WSConfig holds the keepalive settings of a WebSocket channel.
type WSConfig struct {
	PingInterval   time.Duration
	PongTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxMessageSize int64
}

// WSChannel is a Stream over a gorilla WebSocket connection. Writes are
// serialized; reads must come from a single goroutine.
type WSChannel struct {
	id   string
	conn *websocket.Conn
	cfg  WSConfig

	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// NewWSChannel wraps conn and starts its ping loop.
func NewWSChannel(conn *websocket.Conn, cfg WSConfig) *WSChannel {
	c := &WSChannel{
		id:   uuid.NewString(),
		conn: conn,
		cfg:  cfg,
		done: make(chan struct{}),
	}

	if cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	c.extendReadDeadline()
	conn.SetPongHandler(func(string) error {
		c.extendReadDeadline()
		return nil
	})

	if cfg.PingInterval > 0 {
		go c.keepalive()
	}
	return c
}

// ID returns the unique ID of this connection.
func (c *WSChannel) ID() string { return c.id }

// Send writes payload as a single text frame.
func (c *WSChannel) Send(payload []byte) error {
	select {
	case <-c.done:
		return ErrChannelClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.cfg.WriteTimeout > 0 {
		//nolint:errcheck // write error is reported below
		c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Read blocks for the next data frame. Any frame extends the read deadline.
func (c *WSChannel) Read() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		select {
		case <-c.done:
			return nil, ErrChannelClosed
		default:
		}
		return nil, err
	}
	c.extendReadDeadline()
	return data, nil
}

// Close sends a close frame and shuts the connection. It is safe to call more than once.
func (c *WSChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		//nolint:errcheck // best-effort close frame
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

// Done is closed once the channel is closed.
func (c *WSChannel) Done() <-chan struct{} { return c.done }

func (c *WSChannel) extendReadDeadline() {
	if c.cfg.PingInterval <= 0 || c.cfg.PongTimeout <= 0 {
		return
	}
	//nolint:errcheck // best-effort deadline
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PingInterval + c.cfg.PongTimeout))
}

func (c *WSChannel) keepalive() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.PongTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				if !errors.Is(err, websocket.ErrCloseSent) {
					log.Debug().Err(err).Str("channel", c.id).Msg("ping failed")
				}
				return
			}
		}
	}
}
