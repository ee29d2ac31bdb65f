package signal

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ErrClosed is returned by Send after the connection is gone.
var ErrClosed = errors.New("signaling connection closed")

// Client is a peer's connection to the signaling server.
type Client struct {
	conn     *websocket.Conn
	id       string
	writeMu  sync.Mutex
	messages chan Message

	closeOnce sync.Once
	done      chan struct{}
	mu        sync.Mutex
	err       error
}

// Dial connects to the signaling server at rawURL and waits for the open
// message carrying this peer's id.
func Dial(ctx context.Context, rawURL string) (*Client, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse signaling url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("signaling url must be ws or wss, got %q", u.Scheme)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial signaling server: %w", err)
	}

	// Unblock the open read if ctx ends first.
	opened := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-opened:
		}
	}()

	var open Message
	err = conn.ReadJSON(&open)
	close(opened)
	if err != nil {
		conn.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("read open message: %w", err)
	}

	var payload OpenPayload
	if open.Type != TypeOpen {
		conn.Close()
		return nil, fmt.Errorf("expected %s message, got %q", TypeOpen, open.Type)
	}
	if err := open.Decode(&payload); err != nil || payload.PeerID == "" {
		conn.Close()
		return nil, fmt.Errorf("open message carries no peer id")
	}

	c := &Client{
		conn:     conn,
		id:       payload.PeerID,
		messages: make(chan Message, 16),
		done:     make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// ID returns the peer id assigned by the server.
func (c *Client) ID() string {
	return c.id
}

// Messages delivers inbound messages. The channel is closed when the
// connection ends; Err then reports why.
func (c *Client) Messages() <-chan Message {
	return c.messages
}

// Err returns the error that ended the connection, or nil while it is open
// or after a local Close.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Send writes msg to the server.
func (c *Client) Send(msg Message) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(DefaultWriteTimeout))
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("send %s: %w", msg.Type, err)
	}
	return nil
}

// Close closes the connection. It is safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

func (c *Client) readLoop() {
	defer close(c.messages)
	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			select {
			case <-c.done:
			default:
				c.mu.Lock()
				c.err = err
				c.mu.Unlock()
			}
			return
		}
		select {
		case c.messages <- msg:
		case <-c.done:
			return
		}
	}
}
