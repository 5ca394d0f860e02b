package push

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nhle/authnotify/internal/model"
)

type staticToken string

func (s staticToken) Token(context.Context) (string, error) {
	if s == "" {
		return "", errors.New("no token")
	}
	return string(s), nil
}

type frame struct {
	data []byte
	err  error
}

type fakeConn struct {
	frames chan frame
	done   chan struct{}
	once   sync.Once

	mu       sync.Mutex
	written  []string
	controls [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan frame, 16), done: make(chan struct{})}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case fr := <-f.frames:
		if fr.err != nil {
			return 0, nil, fr.err
		}
		return websocket.TextMessage, fr.data, nil
	case <-f.done:
		return 0, nil, errors.New("use of closed connection")
	}
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, string(data))
	return nil
}

func (f *fakeConn) WriteControl(_ int, data []byte, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.controls = append(f.controls, data)
	return nil
}

func (f *fakeConn) Close() error {
	f.once.Do(func() { close(f.done) })
	return nil
}

func (f *fakeConn) closed() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

func (f *fakeConn) writes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.written...)
}

func (f *fakeConn) send(s string) { f.frames <- frame{data: []byte(s)} }

func (f *fakeConn) closeWith(code int) {
	f.frames <- frame{err: &websocket.CloseError{Code: code}}
}

// fakeDialer runs fn for each dial and records the URLs it was asked for.
type fakeDialer struct {
	fn func(ctx context.Context, url string) (Conn, error)

	mu    sync.Mutex
	calls []string
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.mu.Lock()
	d.calls = append(d.calls, url)
	d.mu.Unlock()
	return d.fn(ctx, url)
}

func (d *fakeDialer) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

func failingDial(context.Context, string) (Conn, error) {
	return nil, errors.New("connection refused")
}

func testConfig() model.PushConfig {
	return model.PushConfig{
		DirectURL:        "ws://direct.test/ws",
		Path:             "/ws",
		ProxyPath:        "/proxy",
		ConnectTimeoutMs: 1000,
		Retry: model.RetryConfig{
			Policy:  "fixed",
			DelayMs: int(time.Hour / time.Millisecond),
		},
	}
}

func (c *Client) reconnectPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnect != nil
}

func (c *Client) subscribed(s Subscriber) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.subs[s]
	return ok
}

// slowToken blocks Token until release is closed.
type slowToken struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newSlowToken() *slowToken {
	return &slowToken{entered: make(chan struct{}), release: make(chan struct{})}
}

func (s *slowToken) Token(ctx context.Context) (string, error) {
	s.once.Do(func() { close(s.entered) })
	select {
	case <-s.release:
		return "tok", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
