package session

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zhouzirui/yui-companion/backend/internal/analysis/emotion"
	"github.com/zhouzirui/yui-companion/backend/internal/model/chat"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

type inboundMessage struct {
	Type   string  `json:"type"`
	Text   string  `json:"text,omitempty"`
	Index  int     `json:"index,omitempty"`
	Seq    uint64  `json:"seq,omitempty"`
	X      float64 `json:"x,omitempty"`
	Y      float64 `json:"y,omitempty"`
	Width  float64 `json:"width,omitempty"`
	Height float64 `json:"height,omitempty"`
}

type outgoingMessage struct {
	Type      string        `json:"type"`
	SessionID string        `json:"sessionId,omitempty"`
	Role      chat.Role     `json:"role,omitempty"`
	Content   string        `json:"content,omitempty"`
	Emotion   emotion.Label `json:"emotion,omitempty"`
	Value     any           `json:"value,omitempty"`
	X         *float64      `json:"x,omitempty"`
	Y         *float64      `json:"y,omitempty"`
	Index     *int          `json:"index,omitempty"`
	Seq       uint64        `json:"seq,omitempty"`
	Text      string        `json:"text,omitempty"`
	Format    string        `json:"format,omitempty"`
	Bytes     int           `json:"bytes,omitempty"`
	Error     string        `json:"error,omitempty"`
	Timestamp int64         `json:"timestamp"`
}

// wsConn serializes writes to a websocket connection.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) send(msg outgoingMessage) error {
	msg.Timestamp = time.Now().UnixMilli()

	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

// sendAudio writes the segment header and its binary frame back to back.
func (c *wsConn) sendAudio(header outgoingMessage, audio []byte) error {
	header.Timestamp = time.Now().UnixMilli()

	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteJSON(header); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.BinaryMessage, audio)
}

func (c *wsConn) ping() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}
