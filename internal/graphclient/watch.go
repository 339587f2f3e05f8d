package graphclient

import (
	"context"
	"fmt"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/shaman2009/lang-lens/internal/domain"
)

// WatchHandler is called for each notification on a thread watch connection.
type WatchHandler func(event domain.WatchEvent)

// Watch opens a websocket subscription for out-of-band state notifications
// on a thread (branch switches, cross-client updates). It blocks until ctx
// is cancelled or the connection drops.
func (c *Client) Watch(ctx context.Context, threadID string, handler WatchHandler) error {
	wsURL := strings.Replace(c.baseURL, "http", "ws", 1)
	addr := fmt.Sprintf("%s/v1/threads/%s/ws", wsURL, threadID)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	// Close the connection when ctx ends so ReadJSON unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var event domain.WatchEvent
		if err := conn.ReadJSON(&event); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read watch event: %w", err)
		}
		handler(event)
	}
}
