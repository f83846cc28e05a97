// Package transport is the websocket boundary: it accepts connections,
// mints connection-registry identifiers, runs the read/write pumps, and
// fans a room-list snapshot out to every live connection whenever the
// room package reports the inventory changed.
package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/castwire/signal/internal/v1/logging"
	"github.com/castwire/signal/internal/v1/metrics"
	"github.com/castwire/signal/internal/v1/room"
	"github.com/castwire/signal/internal/v1/types"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Hub is the connection registry: it owns every live Client, mints their
// opaque ids, and is the one types.RoomListSink the room store broadcasts
// through.
type Hub struct {
	coord *room.Coordinator
	store *room.Store

	mu      sync.Mutex
	clients map[types.ClientIDType]*Client
	nextID  uint64

	upgrader websocket.Upgrader
}

// NewHub wires a Hub to the given coordinator/store and allowed CORS
// origins for the websocket upgrade's origin check. store is used only to
// send a fresh arrival its initial room-list snapshot; every subsequent
// snapshot arrives through BroadcastRoomList.
func NewHub(coord *room.Coordinator, store *room.Store, allowedOrigins []string) *Hub {
	originSet := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		originSet[o] = struct{}{}
	}

	return &Hub{
		coord:   coord,
		store:   store,
		clients: make(map[types.ClientIDType]*Client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true // non-browser clients (curl, server-to-server tests)
				}
				if len(originSet) == 0 {
					return false
				}
				_, ok := originSet[origin]
				return ok
			},
		},
	}
}

// ServeWs upgrades the request to a websocket connection, registers the
// resulting Client, sends it the current room inventory, and starts its
// read/write pumps.
func (h *Hub) ServeWs(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Warn(c.Request.Context(), "websocket upgrade failed", zap.Error(err))
		return
	}

	client := h.register(conn)
	metrics.IncConnection()

	client.Send(marshalRoomList(h.store.Snapshot()))

	go client.writePump()
	go client.readPump()
}

func marshalRoomList(rooms []types.RoomSummary) []byte {
	data, err := json.Marshal(types.RoomListFrame{Type: types.FrameTypeRoomList, Rooms: rooms})
	if err != nil {
		logging.Error(context.Background(), "failed to marshal room-list frame", zap.Error(err))
		return nil
	}
	return data
}

func (h *Hub) register(conn wsConnection) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := types.ClientIDType("client-" + strconv.FormatUint(h.nextID, 10))
	client := newClient(id, conn, h.coord, h)
	h.clients[id] = client

	logging.Info(context.Background(), "client connected", zap.String("client_id", string(id)))
	return client
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.ID())
	h.mu.Unlock()

	logging.Info(context.Background(), "client disconnected", zap.String("client_id", string(c.ID())))
}

// BroadcastRoomList satisfies types.RoomListSink: it is called by the room
// store after every operation that changes the room inventory.
func (h *Hub) BroadcastRoomList(rooms []types.RoomSummary) {
	data := marshalRoomList(rooms)
	if data == nil {
		return
	}

	h.mu.Lock()
	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		c.Send(data)
	}
}

// Shutdown closes every live connection. Each connection's readPump exit
// runs the ordinary leave path, so every room is vacated without relying
// on cleanup timers.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	targets := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		targets = append(targets, c)
	}
	h.mu.Unlock()

	for _, c := range targets {
		c.conn.Close()
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		h.mu.Lock()
		remaining := len(h.clients)
		h.mu.Unlock()
		if remaining == 0 {
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return ctx.Err()
}

// ConnectionCount reports the number of currently registered connections.
func (h *Hub) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
