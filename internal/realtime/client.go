// Package realtime implements the pub/sub relay client the signaling layer
// rides on. It speaks a small broadcast protocol over a single WebSocket:
// the client attaches to named channels and every message published to a
// channel fans out to all attached clients.
package realtime

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"wavechat/native/internal/domain"
)

const pingInterval = 25 * time.Second

// frame is the wire unit exchanged with the relay.
type frame struct {
	ID      string          `json:"id"`
	Event   string          `json:"event"` // subscribe | unsubscribe | broadcast
	Channel string          `json:"channel"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const (
	eventSubscribe   = "subscribe"
	eventUnsubscribe = "unsubscribe"
	eventBroadcast   = "broadcast"
)

// Client is a relay connection implementing domain.Transport.
type Client struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	subMu sync.RWMutex
	subs  map[string]func([]byte)

	closeOnce sync.Once
	closed    chan struct{}
}

// Dial connects to the relay at rawURL, authenticating with token via query
// parameter, and starts the read and ping loops.
func Dial(rawURL, token string) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse relay url: %w", err)
	}
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, &domain.TransportError{Op: "dial", Channel: u.Host, Err: err}
	}

	c := &Client{
		conn:   conn,
		subs:   make(map[string]func([]byte)),
		closed: make(chan struct{}),
	}

	go c.readLoop()
	go c.pingLoop()

	log.Debug().Str("component", "realtime").Str("relay", u.Host).Msg("connected")
	return c, nil
}

// Subscribe attaches to a channel and registers the message handler.
// Subscribing twice to the same channel replaces the handler.
func (c *Client) Subscribe(channel string, onMessage func(data []byte)) error {
	c.subMu.Lock()
	c.subs[channel] = onMessage
	c.subMu.Unlock()

	if err := c.writeFrame(frame{ID: uuid.NewString(), Event: eventSubscribe, Channel: channel}); err != nil {
		c.subMu.Lock()
		delete(c.subs, channel)
		c.subMu.Unlock()
		return &domain.TransportError{Op: "subscribe", Channel: channel, Err: err}
	}
	return nil
}

// Publish broadcasts data on a channel. Best-effort: errors are surfaced,
// never retried here.
func (c *Client) Publish(channel string, data []byte) error {
	f := frame{ID: uuid.NewString(), Event: eventBroadcast, Channel: channel, Payload: data}
	if err := c.writeFrame(f); err != nil {
		return &domain.TransportError{Op: "publish", Channel: channel, Err: err}
	}
	return nil
}

// Unsubscribe detaches from a channel. Unknown channels are a no-op.
func (c *Client) Unsubscribe(channel string) error {
	c.subMu.Lock()
	_, known := c.subs[channel]
	delete(c.subs, channel)
	c.subMu.Unlock()
	if !known {
		return nil
	}

	if err := c.writeFrame(frame{ID: uuid.NewString(), Event: eventUnsubscribe, Channel: channel}); err != nil {
		return &domain.TransportError{Op: "unsubscribe", Channel: channel, Err: err}
	}
	return nil
}

// Close shuts down the connection. Idempotent.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.conn.Close()
	})
}

func (c *Client) writeFrame(f frame) error {
	select {
	case <-c.closed:
		return fmt.Errorf("connection closed")
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(f)
}

func (c *Client) readLoop() {
	defer c.Close()

	for {
		var f frame
		if err := c.conn.ReadJSON(&f); err != nil {
			select {
			case <-c.closed:
			default:
				log.Error().Str("component", "realtime").Err(err).Msg("read loop terminated")
			}
			return
		}

		if f.Event != eventBroadcast {
			continue
		}

		c.subMu.RLock()
		handler := c.subs[f.Channel]
		c.subMu.RUnlock()
		if handler != nil {
			handler(f.Payload)
		}
	}
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(5*time.Second))
			c.writeMu.Unlock()
			if err != nil {
				select {
				case <-c.closed:
				default:
					log.Warn().Str("component", "realtime").Err(err).Msg("ping failed")
				}
				return
			}
		}
	}
}
