// Package wsock is the gorilla/websocket implementation of stream.Transport.
package wsock

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/ecogrid-lab/ecogrid-gateway/internal/stream"
	"github.com/gorilla/websocket"
)

const defaultWriteTimeout = 10 * time.Second

// TokenSource returns the current bearer token, or "" when there is none.
type TokenSource func() string

// Transport dials the EMS push endpoint.
type Transport struct {
	url          string
	token        TokenSource
	dialer       *websocket.Dialer
	writeTimeout time.Duration
}

// New returns a transport for rawURL. token may be nil.
func New(rawURL string, token TokenSource) *Transport {
	return &Transport{
		url:          rawURL,
		token:        token,
		dialer:       websocket.DefaultDialer,
		writeTimeout: defaultWriteTimeout,
	}
}

// Dial performs the handshake, reports the open connection to h and starts
// the read loop.
func (t *Transport) Dial(ctx context.Context, h stream.Handler) error {
	u, err := url.Parse(t.url)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}

	header := http.Header{}
	if t.token != nil {
		if tok := t.token(); tok != "" {
			q := u.Query()
			q.Set("token", tok)
			u.RawQuery = q.Encode()
			header.Set("Authorization", "Bearer "+tok)
		}
	}

	ws, resp, err := t.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s://%s%s: status %d: %w", u.Scheme, u.Host, u.Path, resp.StatusCode, err)
		}
		return fmt.Errorf("dial %s://%s%s: %w", u.Scheme, u.Host, u.Path, err)
	}

	c := &conn{ws: ws, writeTimeout: t.writeTimeout}
	h.HandleOpen(c)
	go c.readLoop(h)
	return nil
}

type conn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
}

func (c *conn) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

func (c *conn) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	msg := websocket.FormatCloseMessage(code, reason)
	werr := c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.writeTimeout))
	cerr := c.ws.Close()
	if werr != nil && !errors.Is(werr, websocket.ErrCloseSent) {
		return werr
	}
	return cerr
}

func (c *conn) readLoop(h stream.Handler) {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.closed = true
			c.mu.Unlock()
			_ = c.ws.Close()

			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				h.HandleClose(ce.Code, ce.Text)
				return
			}
			h.HandleError(err)
			h.HandleClose(stream.CloseAbnormal, err.Error())
			return
		}
		h.HandleMessage(data)
	}
}

// ErrClosed is returned by Send after the connection closed.
var ErrClosed = errors.New("wsock: connection closed")
