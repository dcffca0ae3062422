package push

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rafflio/platform/internal/domain"
)

// WSChannel subscribes to a remote API's push stream over WebSocket. It
// satisfies the same Subscribe contract as Hub.
type WSChannel struct {
	baseURL     string
	token       string
	dialTimeout time.Duration
	logger      *slog.Logger
}

// NewWSChannel accepts the API base URL (http or https) and derives the
// WebSocket endpoint from it. token is the purchase token sent on the
// handshake.
func NewWSChannel(baseURL, token string, logger *slog.Logger) *WSChannel {
	return &WSChannel{
		baseURL:     strings.TrimRight(baseURL, "/"),
		token:       token,
		dialTimeout: 10 * time.Second,
		logger:      logger,
	}
}

func (c *WSChannel) endpoint(purchaseID string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/purchases/" + url.PathEscape(purchaseID)
	return u.String(), nil
}

// Subscribe dials the stream and calls fn for each event frame. The returned
// function closes the connection; fn is not called after it returns and
// must not call it itself.
func (c *WSChannel) Subscribe(purchaseID string, fn func(domain.PushEvent)) (func(), error) {
	if purchaseID == "" {
		return nil, ErrEmptyPurchase
	}
	endpoint, err := c.endpoint(purchaseID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.dialTimeout)
	defer cancel()
	header := http.Header{}
	if c.token != "" {
		header.Set("X-Purchase-Token", c.token)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", endpoint, err)
	}

	var (
		mu     sync.Mutex
		closed bool
		done   = make(chan struct{})
	)

	go func() {
		defer close(done)
		for {
			var evt domain.PushEvent
			if err := conn.ReadJSON(&evt); err != nil {
				mu.Lock()
				stopped := closed
				mu.Unlock()
				if !stopped {
					c.logger.Debug("push stream ended", "purchase_id", purchaseID, "error", err)
				}
				return
			}
			mu.Lock()
			if !closed {
				fn(evt)
			}
			mu.Unlock()
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			mu.Lock()
			closed = true
			mu.Unlock()
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			conn.Close()
			<-done
		})
	}, nil
}
