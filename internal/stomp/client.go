package stomp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sync"
	"time"

	"github.com/go-stomp/stomp/v3"

	"github.com/O-HAM-MA/apartner-chat/config"
	"github.com/O-HAM-MA/apartner-chat/pkg/logger"
)

// ErrNotConnected is returned when publishing without a live connection.
// Messages are not queued; a message typed while offline is lost unless
// the user resends it.
var ErrNotConnected = errors.New("stomp: not connected")

// subscription tracks one desired destination. The live *stomp.Subscription
// is replaced on every reconnect; deliver survives across reconnects.
type subscription struct {
	destination string
	deliver     func([]byte)
	sub         *stomp.Subscription
	done        chan struct{}
	canceled    bool
}

// Client maintains one STOMP session over a WebSocket and the set of
// destinations subscribed on it. Subscriptions are tracked per destination
// so a dropped connection can be re-established with the same set, and so
// a destination can never be subscribed twice.
type Client struct {
	cfg    config.Config
	logger logger.Logger
	dial   func(ctx context.Context) (io.ReadWriteCloser, error)
	host   string

	mu           sync.Mutex
	conn         *stomp.Conn
	subs         map[string]*subscription
	connected    bool
	closing      bool
	reconnecting bool
	onChange     []func(bool)
}

func NewClient(cfg config.Config, logg logger.Logger) *Client {
	c := &Client{
		cfg:    cfg,
		logger: logg.WithModule("stomp"),
		subs:   make(map[string]*subscription),
	}
	c.dial = c.dialWebSocket
	if u, err := url.Parse(cfg.StompURL); err == nil {
		c.host = u.Hostname()
	}
	return c
}

// Connect establishes the WebSocket and the STOMP session on top of it.
// Connecting an already-connected client is a no-op.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return nil
	}
	if c.closing {
		return errors.New("stomp: client closed")
	}
	return c.connectLocked(ctx)
}

func (c *Client) connectLocked(ctx context.Context) error {
	if c.connected {
		return nil
	}
	rwc, err := c.dial(ctx)
	if err != nil {
		return err
	}

	opts := []func(*stomp.Conn) error{
		stomp.ConnOpt.HeartBeat(c.cfg.Heartbeat, c.cfg.Heartbeat),
	}
	if c.host != "" {
		opts = append(opts, stomp.ConnOpt.Host(c.host))
	}

	conn, err := stomp.Connect(rwc, opts...)
	if err != nil {
		rwc.Close()
		return fmt.Errorf("stomp handshake: %w", err)
	}

	c.conn = conn
	c.connected = true

	// Re-establish every destination the session still wants.
	for _, s := range c.subs {
		s.canceled = false
		if err := c.subscribeLocked(s); err != nil {
			c.logger.Errorf("resubscribe %s: %v", s.destination, err)
		}
	}

	c.logger.Infof("connected to %s", c.cfg.StompURL)
	return nil
}

func (c *Client) subscribeLocked(s *subscription) error {
	sub, err := c.conn.Subscribe(s.destination, stomp.AckAuto)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", s.destination, err)
	}
	s.sub = sub
	s.done = make(chan struct{})
	go c.readLoop(s, sub, s.done)
	return nil
}

// readLoop drains one live subscription until it completes. A completion
// that was neither requested by UnsubscribeRoom nor by Close means the
// connection is gone and triggers the reconnect loop.
func (c *Client) readLoop(s *subscription, sub *stomp.Subscription, done chan struct{}) {
	defer close(done)

	lost := false
	for msg := range sub.C {
		if msg == nil {
			break
		}
		if msg.Err != nil {
			lost = true
			break
		}
		s.deliver(msg.Body)
	}

	c.mu.Lock()
	deliberate := s.canceled || c.closing || s.sub != sub
	c.mu.Unlock()

	if lost && !deliberate {
		c.connectionLost()
	}
}

func (c *Client) connectionLost() {
	c.mu.Lock()
	if c.closing || !c.connected || c.reconnecting {
		c.mu.Unlock()
		return
	}
	c.connected = false
	c.conn = nil
	c.reconnecting = true
	listeners := append([]func(bool){}, c.onChange...)
	c.mu.Unlock()

	c.logger.Warnf("connection lost, reconnecting every %s", c.cfg.ReconnectDelay)
	for _, fn := range listeners {
		fn(false)
	}
	go c.reconnectLoop()
}

// reconnectLoop retries with a fixed delay. History is REST-sourced, so a
// successful reconnect needs no replay, only resubscription.
func (c *Client) reconnectLoop() {
	for {
		time.Sleep(c.cfg.ReconnectDelay)

		c.mu.Lock()
		// A manual Connect may have restored the session in the meantime;
		// dialing again here would leave two live connections with the same
		// destinations subscribed on both.
		if c.closing || c.connected {
			c.reconnecting = false
			c.mu.Unlock()
			return
		}
		err := c.connectLocked(context.Background())
		if err == nil {
			c.reconnecting = false
			listeners := append([]func(bool){}, c.onChange...)
			c.mu.Unlock()
			for _, fn := range listeners {
				fn(true)
			}
			return
		}
		c.mu.Unlock()
		c.logger.Errorf("reconnect failed: %v", err)
	}
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *Client) OnConnectionChange(fn func(connected bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = append(c.onChange, fn)
}

// Close tears down every subscription and the STOMP session.
func (c *Client) Close() {
	c.mu.Lock()
	c.closing = true
	c.connected = false
	conn := c.conn
	c.conn = nil
	subs := make([]*subscription, 0, len(c.subs))
	for dest, s := range c.subs {
		s.canceled = true
		subs = append(subs, s)
		delete(c.subs, dest)
	}
	c.mu.Unlock()

	for _, s := range subs {
		if s.sub != nil {
			_ = s.sub.Unsubscribe()
		}
	}
	if conn != nil {
		if err := conn.Disconnect(); err != nil {
			c.logger.Errorf("disconnect: %v", err)
		}
	}
}
