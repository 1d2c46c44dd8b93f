package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"fsgate/internal/domain/fsevent"
	"fsgate/internal/shared/logging"
)

const writeWait = 10 * time.Second

// ErrNotConnected is returned by Publish while the link is down.
var ErrNotConnected = errors.New("remote transport not connected")

// NotificationHandler consumes approval decisions arriving from the remote side.
type NotificationHandler interface {
	HandleRemoteNotification(ctx context.Context, n fsevent.RemoteNotification)
}

// Config configures the remote link.
type Config struct {
	URL                  string
	Header               http.Header
	InitialInterval      time.Duration
	MaxReconnectInterval time.Duration
	HandshakeTimeout     time.Duration
}

// Client keeps a websocket link to a remote approval service. Outbound
// approval traffic is published on it and inbound frames are decoded as
// remote notifications.
type Client struct {
	cfg     Config
	handler NotificationHandler
	logger  logging.Logger
	dialer  *websocket.Dialer

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex

	// newBackoff is replaceable in tests.
	newBackoff func() backoff.BackOff
}

// NewClient creates a client for cfg.URL. Run must be called to connect.
func NewClient(cfg Config, handler NotificationHandler, logger logging.Logger) *Client {
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 500 * time.Millisecond
	}
	if cfg.MaxReconnectInterval <= 0 {
		cfg.MaxReconnectInterval = 30 * time.Second
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	c := &Client{
		cfg:     cfg,
		handler: handler,
		logger:  logging.OrNop(logger),
		dialer:  &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout, Proxy: http.ProxyFromEnvironment},
	}
	c.newBackoff = func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = c.cfg.InitialInterval
		b.MaxInterval = c.cfg.MaxReconnectInterval
		b.MaxElapsedTime = 0
		return b
	}
	return c
}

// SetHandler installs the consumer of inbound notifications.
func (c *Client) SetHandler(handler NotificationHandler) {
	c.mu.Lock()
	c.handler = handler
	c.mu.Unlock()
}

// Connected reports whether the link is currently up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Run dials the remote endpoint and reconnects with exponential backoff until
// ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	for {
		conn, err := c.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		c.setConn(conn)
		c.logger.Info("remote transport connected to %s", c.cfg.URL)

		stop := make(chan struct{})
		go func() {
			select {
			case <-ctx.Done():
				_ = conn.Close()
			case <-stop:
			}
		}()
		err = c.readLoop(ctx, conn)
		close(stop)
		c.setConn(nil)
		_ = conn.Close()

		if ctx.Err() != nil {
			return nil
		}
		c.logger.Warn("remote transport disconnected: %v", err)
	}
}

func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	var conn *websocket.Conn
	op := func() error {
		dialed, resp, err := c.dialer.DialContext(ctx, c.cfg.URL, c.cfg.Header)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			return fmt.Errorf("dial %s: %w", c.cfg.URL, err)
		}
		conn = dialed
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn("remote transport unavailable, retrying in %s: %v", wait, err)
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(c.newBackoff(), ctx), notify); err != nil {
		return nil, err
	}
	return conn, nil
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.handleFrame(ctx, data)
	}
}

func (c *Client) handleFrame(ctx context.Context, data []byte) {
	var env fsevent.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logger.Warn("remote transport: malformed frame: %v", err)
		return
	}
	if env.Type != "" && env.Type != fsevent.TypeRemoteNotification {
		c.logger.Debug("remote transport: ignoring frame of type %q", env.Type)
		return
	}
	if env.MessageID == "" || env.State == "" {
		c.logger.Warn("remote transport: notification without messageId or state")
		return
	}
	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()
	if handler == nil {
		return
	}
	handler.HandleRemoteNotification(ctx, fsevent.RemoteNotification{
		MessageID: env.MessageID,
		State:     env.State,
		Reason:    env.Reason,
	})
}

// Publish writes msg to the remote side. It fails with ErrNotConnected while
// the link is down; callers treat remote delivery as best effort.
func (c *Client) Publish(ctx context.Context, msg any) error {
	if c == nil {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("remote publish: %w", err)
	}
	return nil
}
