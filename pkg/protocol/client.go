// ABOUTME: WebSocket client for a remote encoder worker
// ABOUTME: Implements Worker over a WebSocket connection to mp3rec-worker
package protocol

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// DefaultPath is the HTTP path the encoder worker serves WebSocket upgrades on
const DefaultPath = "/encoder"

// ClientOption configures a Client
type ClientOption func(*Client)

// WithLogger sets the client logger
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithDialer overrides the WebSocket dialer
func WithDialer(dialer *websocket.Dialer) ClientOption {
	return func(c *Client) {
		c.dialer = dialer
	}
}

// Client is a Worker backed by a remote encoder worker
type Client struct {
	url    string
	conn   *websocket.Conn
	dialer *websocket.Dialer
	logger *zap.Logger

	outbox     *Mailbox
	dispatcher Dispatcher

	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	terminated bool
	mu         sync.Mutex
}

// Dial connects to a remote encoder worker
func Dial(ctx context.Context, url string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		url:    url,
		dialer: websocket.DefaultDialer,
		logger: zap.NewNop(),
		outbox: NewMailbox(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.logger.Info("connecting to encoder worker", zap.String("url", url))

	conn, _, err := c.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial failed: %w", err)
	}
	c.conn = conn
	c.ctx, c.cancel = context.WithCancel(context.Background())

	c.wg.Add(2)
	go c.readMessages()
	go c.writeMessages()

	return c, nil
}

// PostMessage queues a message for the remote encoder
func (c *Client) PostMessage(msg Message) error {
	return c.outbox.Put(msg)
}

// SetHandler installs the reply handler
func (c *Client) SetHandler(handler func(Message)) {
	c.dispatcher.SetHandler(handler)
}

// Terminate closes the connection and waits for the I/O goroutines
func (c *Client) Terminate() error {
	c.mu.Lock()
	if c.terminated {
		c.mu.Unlock()
		return nil
	}
	c.terminated = true
	c.mu.Unlock()

	c.outbox.Close()
	c.cancel()

	deadline := time.Now().Add(time.Second)
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	err := c.conn.Close()
	c.wg.Wait()

	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return fmt.Errorf("close failed: %w", err)
	}
	return nil
}

func (c *Client) isTerminated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.terminated
}

// readMessages decodes replies and hands them to the dispatcher
func (c *Client) readMessages() {
	defer c.wg.Done()

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if !c.isTerminated() {
				c.logger.Warn("encoder worker connection lost", zap.Error(err))
				c.dispatcher.Dispatch(ErrorMessage(ReasonInternal))
			}
			return
		}

		msg, err := DecodeWire(messageType, data)
		if err != nil {
			c.logger.Warn("dropping malformed message", zap.Error(err))
			continue
		}
		c.dispatcher.Dispatch(msg)
	}
}

// writeMessages drains the outbox onto the connection
func (c *Client) writeMessages() {
	defer c.wg.Done()

	for {
		msg, err := c.outbox.Get(c.ctx)
		if err != nil {
			return
		}

		messageType, data, err := EncodeWire(msg)
		if err != nil {
			c.logger.Error("failed to encode message", zap.Stringer("message", msg), zap.Error(err))
			continue
		}
		if err := c.conn.WriteMessage(messageType, data); err != nil {
			c.logger.Warn("write failed", zap.Stringer("message", msg), zap.Error(err))
			return
		}
	}
}
