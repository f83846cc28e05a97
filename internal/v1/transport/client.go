package transport

import (
	"context"
	"sync"
	"time"

	"github.com/castwire/signal/internal/v1/logging"
	"github.com/castwire/signal/internal/v1/metrics"
	"github.com/castwire/signal/internal/v1/room"
	"github.com/castwire/signal/internal/v1/types"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// wsConnection is the slice of *websocket.Conn the Client actually uses,
// narrowed so tests can substitute a fake without a real socket.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(string) error)
	Close() error
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 90 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Client is one live connection's handle, satisfying types.ClientHandle so
// the room package can address it without importing this package.
type Client struct {
	conn  wsConnection
	id    types.ClientIDType
	coord *room.Coordinator
	hub   *Hub

	mu     sync.Mutex
	roomID types.RoomIDType
	bound  bool

	send chan []byte
}

func newClient(id types.ClientIDType, conn wsConnection, coord *room.Coordinator, hub *Hub) *Client {
	return &Client{
		id:    id,
		conn:  conn,
		coord: coord,
		hub:   hub,
		send:  make(chan []byte, 64),
	}
}

// --- types.ClientHandle ---

func (c *Client) ID() types.ClientIDType { return c.id }

func (c *Client) RoomID() (types.RoomIDType, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID, c.bound
}

func (c *Client) SetRoomID(id types.RoomIDType, bound bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomID = id
	c.bound = bound
}

// Send enqueues raw for delivery. It never blocks the caller: a full
// buffer drops the frame, matching the transport's best-effort write
// policy for a connection that is slow or already dead.
func (c *Client) Send(raw []byte) {
	if raw == nil {
		return
	}
	select {
	case c.send <- raw:
	default:
		logging.Warn(context.Background(), "dropping frame, client send buffer full", zap.String("client_id", string(c.id)))
	}
}

// readPump owns the connection's read side: one goroutine per connection,
// frames processed strictly in arrival order.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.coord.Leave(c)
		c.conn.Close()
		metrics.DecConnection()
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		c.coord.HandleFrame(c, data)
	}
}

// writePump owns the connection's write side and its periodic keep-alive
// ping; gorilla/websocket requires both directions be single-writer.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
