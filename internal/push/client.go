// Package push maintains the WebSocket connection that delivers live
// notifications and fans inbound messages out to subscribers.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/nhle/authnotify/internal/logging"
	"github.com/nhle/authnotify/internal/model"
)

// ErrNotConnected is returned by Send when no connection is open.
var ErrNotConnected = errors.New("push channel not connected")

const (
	pingPayload       = "ping"
	closeReason       = "User disconnected"
	closeWriteTimeout = time.Second
	tokenReadTimeout  = 5 * time.Second
)

// TokenSource supplies the bearer token used to authenticate the channel.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// Client owns at most one live push connection. It walks the candidate
// URLs on failure, schedules a whole-cycle retry when all of them fail,
// and keeps the connection alive with periodic pings.
//
// All state is guarded by mu. Background goroutines and timers capture the
// generation they were started under and do nothing once it has moved on.
type Client struct {
	cfg     model.PushConfig
	baseURL string
	dialer  Dialer
	tokens  TokenSource
	retry   RetryPolicy
	log     zerolog.Logger

	mu         sync.Mutex
	state      State
	gen        uint64
	conn       Conn
	cancelDial context.CancelFunc
	stopPing   chan struct{}
	reconnect  *time.Timer
	attempts   int
	subs       map[Subscriber]struct{}

	// writeMu serializes data frames; gorilla allows one concurrent writer.
	writeMu sync.Mutex
}

// New creates a disconnected client. baseURL is the API origin used to
// derive same-origin candidate URLs.
func New(cfg model.PushConfig, baseURL string, dialer Dialer, tokens TokenSource, log zerolog.Logger) *Client {
	return &Client{
		cfg:     cfg,
		baseURL: baseURL,
		dialer:  dialer,
		tokens:  tokens,
		retry:   NewRetryPolicy(cfg.Retry),
		log:     log.With().Str("component", "push").Logger(),
		state:   Disconnected,
		subs:    make(map[Subscriber]struct{}),
	}
}

// Connect starts connecting unless an attempt is in flight or a
// connection is already open. Failures are reported through Status and
// the log only.
func (c *Client) Connect() {
	c.mu.Lock()
	if c.state == Connecting || c.state == Connected {
		c.log.Debug().Str("state", c.state.String()).Msg("connect ignored")
		c.mu.Unlock()
		return
	}
	gen := c.gen
	c.mu.Unlock()

	// The token source may be a slow keyring; read it unlocked.
	ctx, cancel := context.WithTimeout(context.Background(), tokenReadTimeout)
	token, err := c.tokens.Token(ctx)
	cancel()
	if err != nil || token == "" {
		c.log.Info().AnErr("reason", err).Msg("no session token, not connecting")
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.state == Connecting || c.state == Connected {
		c.log.Debug().Str("state", c.state.String()).Msg("connect superseded")
		return
	}

	c.log.Debug().Str("token", logging.TokenPreview(token)).Msg("connecting")
	c.tryConnectLocked(CandidateURLs(c.cfg, c.baseURL, token), 0)
}

// tryConnectLocked dials urls[index], or schedules a whole-cycle retry
// when the list is exhausted.
func (c *Client) tryConnectLocked(urls []string, index int) {
	c.detachLocked()

	if index >= len(urls) {
		c.state = Disconnected
		c.log.Warn().Int("candidates", len(urls)).Msg("all push endpoints failed")
		c.scheduleReconnectLocked(urls)
		return
	}

	c.state = Connecting
	gen := c.gen
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.ConnectTimeout())
	c.cancelDial = cancel

	attempt := uuid.NewString()
	c.log.Debug().
		Str("attempt", attempt).
		Str("url", redact(urls[index])).
		Int("index", index).
		Msg("dialing push endpoint")

	go c.dial(ctx, gen, urls, index, attempt)
}

func (c *Client) dial(ctx context.Context, gen uint64, urls []string, index int, attempt string) {
	conn, err := c.dialer.Dial(ctx, urls[index])

	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		// Detached while dialing.
		if conn != nil {
			conn.Close()
		}
		return
	}

	c.cancelDial()
	c.cancelDial = nil

	if err != nil {
		c.log.Warn().Err(err).
			Str("attempt", attempt).
			Str("url", redact(urls[index])).
			Msg("push endpoint failed")
		c.tryConnectLocked(urls, index+1)
		return
	}

	c.conn = conn
	c.state = Connected
	c.attempts = 0
	c.stopReconnectLocked()
	c.startPingLocked(conn)

	c.log.Info().
		Str("attempt", attempt).
		Str("url", redact(urls[index])).
		Msg("connected to notification server")

	go c.readLoop(conn, gen, urls, index)
}

func (c *Client) readLoop(conn Conn, gen uint64, urls []string, index int) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(gen, urls, index, err)
			return
		}

		payload := decodePayload(data)

		c.mu.Lock()
		if gen != c.gen {
			c.mu.Unlock()
			return
		}
		subs := make([]Subscriber, 0, len(c.subs))
		for s := range c.subs {
			subs = append(subs, s)
		}
		c.mu.Unlock()

		// Membership is checked again per subscriber, so one removed
		// by an earlier callback is skipped. A callback already running
		// when Unsubscribe returns still completes.
		for _, s := range subs {
			if c.live(gen, s) {
				c.deliver(s, payload)
			}
		}
	}
}

func (c *Client) handleClose(gen uint64, urls []string, index int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		return
	}

	if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		c.detachLocked()
		c.state = Disconnected
		c.log.Info().Msg("push channel closed by server")
		return
	}

	c.log.Warn().Err(err).Str("url", redact(urls[index])).Msg("push channel closed unexpectedly")
	c.tryConnectLocked(urls, index+1)
}

func (c *Client) deliver(s Subscriber, payload any) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Interface("panic", r).Msg("subscriber panicked")
		}
	}()
	s.HandleMessage(payload)
}

// decodePayload decodes a JSON frame. A frame holding a JSON string is
// decoded once more; anything undecodable is returned as raw text.
func decodePayload(data []byte) any {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return string(data)
	}
	if s, ok := v.(string); ok {
		var inner any
		if err := json.Unmarshal([]byte(s), &inner); err == nil {
			return inner
		}
		return s
	}
	return v
}

// Disconnect closes the connection with a normal-closure frame and
// cancels every pending dial, ping and retry. Safe to call repeatedly.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopReconnectLocked()
	c.attempts = 0

	if c.conn == nil && c.cancelDial == nil {
		// Still invalidates a Connect that is reading the token.
		c.gen++
		c.state = Disconnected
		return
	}

	c.state = Closing
	if c.conn != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, closeReason)
		if err := c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout)); err != nil {
			c.log.Debug().Err(err).Msg("writing close frame")
		}
	}
	c.detachLocked()
	c.state = Disconnected
	c.log.Info().Msg("disconnected from notification server")
}

// detachLocked invalidates the current generation, then releases the
// socket and everything bound to it.
func (c *Client) detachLocked() {
	c.gen++
	if c.cancelDial != nil {
		c.cancelDial()
		c.cancelDial = nil
	}
	c.stopPingLocked()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) scheduleReconnectLocked(urls []string) {
	if c.reconnect != nil {
		return
	}
	delay, ok := c.retry.Delay(c.attempts)
	if !ok {
		c.log.Error().Int("attempts", c.attempts).Msg("giving up on push reconnects")
		return
	}
	c.attempts++

	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		c.mu.Lock()
		if c.reconnect != t {
			c.mu.Unlock()
			return
		}
		c.reconnect = nil
		c.mu.Unlock()
		c.Connect()
	})
	c.reconnect = t

	c.log.Info().Dur("delay", delay).Int("attempt", c.attempts).Msg("scheduled push reconnect")
}

func (c *Client) stopReconnectLocked() {
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
}

func (c *Client) startPingLocked(conn Conn) {
	interval := c.cfg.PingInterval()
	if interval <= 0 {
		return
	}
	stop := make(chan struct{})
	c.stopPing = stop

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := c.write(conn, websocket.TextMessage, []byte(pingPayload)); err != nil {
					c.log.Debug().Err(err).Msg("keep-alive ping failed")
					return
				}
			}
		}
	}()
}

func (c *Client) stopPingLocked() {
	if c.stopPing != nil {
		close(c.stopPing)
		c.stopPing = nil
	}
}

func (c *Client) write(conn Conn, messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteMessage(messageType, data)
}

// Send writes v as a JSON text frame.
func (c *Client) Send(v any) error {
	c.mu.Lock()
	conn := c.conn
	connected := c.state == Connected
	c.mu.Unlock()

	if !connected || conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.write(conn, websocket.TextMessage, data)
}

// Subscribe adds s to the subscriber set. Adding a present subscriber is a
// no-op.
func (c *Client) Subscribe(s Subscriber) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs[s] = struct{}{}
}

// Unsubscribe removes s. Removing an absent subscriber is a no-op.
func (c *Client) Unsubscribe(s Subscriber) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.subs, s)
}

// live reports whether s should still receive messages read under gen.
func (c *Client) live(gen uint64, s Subscriber) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subs[s]
	return ok && gen == c.gen
}

// SubscriberCount returns the size of the subscriber set.
func (c *Client) SubscriberCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

// Status returns the current connection state.
func (c *Client) Status() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Candidates returns the URLs Connect would try for token, with the token
// redacted.
func (c *Client) Candidates(token string) []string {
	urls := CandidateURLs(c.cfg, c.baseURL, token)
	for i, u := range urls {
		urls[i] = redact(u)
	}
	return urls
}
