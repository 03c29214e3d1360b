package stomp

import (
	"context"
	"fmt"
	"io"

	"github.com/gorilla/websocket"
)

// wsConn adapts a WebSocket connection to the io.ReadWriteCloser the STOMP
// codec expects, splicing consecutive WebSocket messages into one stream.
type wsConn struct {
	ws *websocket.Conn
	r  io.Reader
}

func (c *wsConn) Read(p []byte) (int, error) {
	for {
		if c.r == nil {
			_, r, err := c.ws.NextReader()
			if err != nil {
				return 0, err
			}
			c.r = r
		}
		n, err := c.r.Read(p)
		if err == io.EOF {
			c.r = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *wsConn) Write(p []byte) (int, error) {
	if err := c.ws.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) Close() error {
	return c.ws.Close()
}

func (c *Client) dialWebSocket(ctx context.Context) (io.ReadWriteCloser, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, c.cfg.StompURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.cfg.StompURL, err)
	}
	return &wsConn{ws: ws}, nil
}
