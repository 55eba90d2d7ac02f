package ws

import (
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/krobus00/fx-stream-service/internal/entity"
	"github.com/sirupsen/logrus"
)

type client struct {
	session entity.SessionID
	conn    *websocket.Conn
	send    chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		_ = c.conn.Close()
	})
}

// writePump drains the session's send channel onto the wire and keeps the
// connection alive with periodic pings. It exits when the session is closed.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				logrus.WithField("session", c.session).Warnf("websocket write failed: %v", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *client) sendControl(response controlResponse) {
	payload, err := json.Marshal(response)
	if err != nil {
		return
	}

	select {
	case c.send <- payload:
	default:
		logrus.WithField("session", c.session).Warn("control frame dropped, send buffer full")
	}
}
