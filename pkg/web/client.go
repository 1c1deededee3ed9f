package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client is a /ws/status client used by terminal tools.
type Client struct {
	conn *websocket.Conn
	wmu  sync.Mutex // gorilla allows one concurrent writer
}

// Dial connects to the status socket of the dashboard at addr (host:port).
func Dial(ctx context.Context, addr string) (*Client, error) {
	u := url.URL{Scheme: "ws", Host: addr, Path: "/ws/status"}
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.String(), err)
	}
	return &Client{conn: conn}, nil
}

// Capture sends the capture command. The answer arrives as a CaptureReply
// from Next.
func (c *Client) Capture() error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, []byte(CommandCapture))
}

// Next blocks for the next message and returns either a Status or a
// CaptureReply.
func (c *Client) Next() (any, error) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		switch env.Type {
		case MessageStatus:
			var st Status
			if err := json.Unmarshal(data, &st); err != nil {
				return nil, fmt.Errorf("decode status: %w", err)
			}
			return st, nil
		case MessageCapture:
			var r CaptureReply
			if err := json.Unmarshal(data, &r); err != nil {
				return nil, fmt.Errorf("decode capture reply: %w", err)
			}
			return r, nil
		}
		// Unknown types are skipped so older clients keep working.
	}
}

// Close sends a close frame and closes the connection.
func (c *Client) Close() error {
	c.wmu.Lock()
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeTimeout))
	c.wmu.Unlock()
	return c.conn.Close()
}

const writeTimeout = 5 * time.Second
