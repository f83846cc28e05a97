package room

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/castwire/signal/internal/v1/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frameOf(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	require.NotNil(t, raw)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

func TestCoordinatorCreateThenJoinScenario(t *testing.T) {
	store := NewStore(5, time.Second, nil)
	coord := NewCoordinator(store)

	a := newMockClient("client-1")
	b := newMockClient("client-2")

	coord.HandleFrame(a, []byte(`{"type":"create-room","name":"movie","key":"hunter2"}`))
	created := frameOf(t, a.lastSent())
	assert.Equal(t, "room-created", created["type"])
	assert.Equal(t, "broadcaster", created["role"])
	roomID := created["roomId"].(string)

	coord.HandleFrame(b, []byte(`{"type":"join-room","roomId":"`+roomID+`","key":"hunter2"}`))
	joined := frameOf(t, b.lastSent())
	assert.Equal(t, "room-joined", joined["type"])
	assert.Equal(t, "viewer", joined["role"])

	notify := frameOf(t, a.lastSent())
	assert.Equal(t, "viewer-joined", notify["type"])
	assert.Equal(t, "client-2", notify["viewerId"])
}

func TestCoordinatorWrongKeyRejected(t *testing.T) {
	store := NewStore(5, time.Second, nil)
	coord := NewCoordinator(store)

	a := newMockClient("client-1")
	c := newMockClient("client-3")

	coord.HandleFrame(a, []byte(`{"type":"create-room","name":"movie","key":"hunter2"}`))
	created := frameOf(t, a.lastSent())
	roomID := created["roomId"].(string)

	coord.HandleFrame(c, []byte(`{"type":"join-room","roomId":"`+roomID+`","key":"wrong"}`))
	errFrame := frameOf(t, c.lastSent())
	assert.Equal(t, "room-error", errFrame["type"])
	assert.Equal(t, "INVALID_KEY", errFrame["code"])

	_, bound := c.RoomID()
	assert.False(t, bound)
}

func TestCoordinatorFullRoomRejectsThirdJoin(t *testing.T) {
	store := NewStore(5, time.Second, nil)
	coord := NewCoordinator(store)

	a := newMockClient("client-1")
	b := newMockClient("client-2")
	d := newMockClient("client-4")

	coord.HandleFrame(a, []byte(`{"type":"create-room","name":"movie","key":"hunter2"}`))
	roomID := frameOf(t, a.lastSent())["roomId"].(string)
	coord.HandleFrame(b, []byte(`{"type":"join-room","roomId":"`+roomID+`","key":"hunter2"}`))

	coord.HandleFrame(d, []byte(`{"type":"join-room","roomId":"`+roomID+`","key":"hunter2"}`))
	errFrame := frameOf(t, d.lastSent())
	assert.Equal(t, "room-error", errFrame["type"])
	assert.Equal(t, "ROOM_FULL", errFrame["code"])
}

func TestCoordinatorMaxRoomsRejectsCreate(t *testing.T) {
	store := NewStore(1, time.Second, nil)
	coord := NewCoordinator(store)

	a := newMockClient("client-1")
	e := newMockClient("client-5")

	coord.HandleFrame(a, []byte(`{"type":"create-room","name":"a","key":"k"}`))
	coord.HandleFrame(e, []byte(`{"type":"create-room","name":"b","key":"k"}`))

	errFrame := frameOf(t, e.lastSent())
	assert.Equal(t, "room-error", errFrame["type"])
	assert.Equal(t, "MAX_ROOMS", errFrame["code"])
	assert.Equal(t, 1, store.Count())
}

func TestCoordinatorSignalingRelay(t *testing.T) {
	store := NewStore(5, time.Second, nil)
	coord := NewCoordinator(store)

	a := newMockClient("client-1")
	b := newMockClient("client-2")

	coord.HandleFrame(a, []byte(`{"type":"create-room","name":"movie","key":"hunter2"}`))
	roomID := frameOf(t, a.lastSent())["roomId"].(string)
	coord.HandleFrame(b, []byte(`{"type":"join-room","roomId":"`+roomID+`","key":"hunter2"}`))

	coord.HandleFrame(a, []byte(`{"type":"offer","viewerId":"client-2","offer":{"sdp":"v=0"}}`))
	offer := frameOf(t, b.lastSent())
	assert.Equal(t, "offer", offer["type"])
	_, hasViewerID := offer["viewerId"]
	assert.False(t, hasViewerID, "offer delivered to the viewer must not carry a viewerId")
	assert.Equal(t, map[string]any{"sdp": "v=0"}, offer["offer"])

	coord.HandleFrame(b, []byte(`{"type":"answer","answer":{"sdp":"v=1"}}`))
	answer := frameOf(t, a.lastSent())
	assert.Equal(t, "answer", answer["type"])
	assert.Equal(t, "client-2", answer["viewerId"])
	assert.Equal(t, map[string]any{"sdp": "v=1"}, answer["answer"])
}

func TestCoordinatorDisconnectAndCleanup(t *testing.T) {
	sink := &mockSink{}
	store := NewStore(5, 20*time.Millisecond, sink)
	coord := NewCoordinator(store)

	a := newMockClient("client-1")
	b := newMockClient("client-2")

	coord.HandleFrame(a, []byte(`{"type":"create-room","name":"movie","key":"hunter2"}`))
	roomID := frameOf(t, a.lastSent())["roomId"].(string)
	coord.HandleFrame(b, []byte(`{"type":"join-room","roomId":"`+roomID+`","key":"hunter2"}`))

	coord.Leave(a)
	left := frameOf(t, b.lastSent())
	assert.Equal(t, "broadcaster-left", left["type"])

	coord.Leave(b)
	assert.Eventually(t, func() bool {
		_, ok := store.Lookup(types.RoomIDType(roomID))
		return !ok
	}, 200*time.Millisecond, 5*time.Millisecond)
}

func TestCoordinatorChatRelay(t *testing.T) {
	store := NewStore(5, time.Second, nil)
	coord := NewCoordinator(store)

	a := newMockClient("client-1")
	b := newMockClient("client-2")

	coord.HandleFrame(a, []byte(`{"type":"create-room","name":"movie","key":"hunter2"}`))
	roomID := frameOf(t, a.lastSent())["roomId"].(string)
	coord.HandleFrame(b, []byte(`{"type":"join-room","roomId":"`+roomID+`","key":"hunter2"}`))

	coord.HandleFrame(a, []byte(`{"type":"chat-message","message":"hello"}`))
	chat := frameOf(t, b.lastSent())
	assert.Equal(t, "chat-broadcast", chat["type"])
	assert.Equal(t, "broadcaster", chat["sender"])
	assert.Equal(t, "hello", chat["message"])
	assert.NotNil(t, chat["timestamp"])
}

func TestCoordinatorPing(t *testing.T) {
	store := NewStore(5, time.Second, nil)
	coord := NewCoordinator(store)
	a := newMockClient("client-1")

	coord.HandleFrame(a, []byte(`{"type":"ping"}`))
	assert.Equal(t, "pong", frameOf(t, a.lastSent())["type"])
}

func TestCoordinatorMalformedFrameIsDiscarded(t *testing.T) {
	store := NewStore(5, time.Second, nil)
	coord := NewCoordinator(store)
	a := newMockClient("client-1")

	coord.HandleFrame(a, []byte(`not json`))
	assert.Equal(t, 0, a.sentCount())
}

func TestCoordinatorOfferFromUnboundConnectionIsDiscarded(t *testing.T) {
	store := NewStore(5, time.Second, nil)
	coord := NewCoordinator(store)
	a := newMockClient("client-1")

	coord.HandleFrame(a, []byte(`{"type":"offer","offer":{}}`))
	assert.Equal(t, 0, a.sentCount())
}

func TestCoordinatorViewerJoinNotifiesBroadcasterOrNoBroadcaster(t *testing.T) {
	store := NewStore(5, time.Second, nil)
	coord := NewCoordinator(store)

	a := newMockClient("client-1")
	b := newMockClient("client-2")
	coord.HandleFrame(a, []byte(`{"type":"create-room","name":"movie","key":"hunter2"}`))
	roomID := frameOf(t, a.lastSent())["roomId"].(string)
	coord.HandleFrame(b, []byte(`{"type":"join-room","roomId":"`+roomID+`","key":"hunter2"}`))

	coord.HandleFrame(b, []byte(`{"type":"viewer-join"}`))
	notify := frameOf(t, a.lastSent())
	assert.Equal(t, "viewer-joined", notify["type"])
}

func TestCoordinatorBroadcasterReadyRenotifiesSelf(t *testing.T) {
	store := NewStore(5, time.Second, nil)
	coord := NewCoordinator(store)

	a := newMockClient("client-1")
	b := newMockClient("client-2")
	coord.HandleFrame(a, []byte(`{"type":"create-room","name":"movie","key":"hunter2"}`))
	roomID := frameOf(t, a.lastSent())["roomId"].(string)
	coord.HandleFrame(b, []byte(`{"type":"join-room","roomId":"`+roomID+`","key":"hunter2"}`))

	coord.HandleFrame(a, []byte(`{"type":"broadcaster-ready"}`))
	notify := frameOf(t, a.lastSent())
	assert.Equal(t, "viewer-joined", notify["type"])
	assert.Equal(t, "client-2", notify["viewerId"])
}

func TestCoordinatorLeaveRoomFrameIsIdempotent(t *testing.T) {
	store := NewStore(5, time.Second, nil)
	coord := NewCoordinator(store)
	a := newMockClient("client-1")
	coord.HandleFrame(a, []byte(`{"type":"create-room","name":"movie","key":"hunter2"}`))

	coord.HandleFrame(a, []byte(`{"type":"leave-room"}`))
	assert.Equal(t, "room-left", frameOf(t, a.lastSent())["type"])

	coord.HandleFrame(a, []byte(`{"type":"leave-room"}`))
	assert.Equal(t, "room-left", frameOf(t, a.lastSent())["type"])
}

// abusiveKindLimiter mimics a real ratelimit.Limiter: it only ever rejects
// the frame kinds a flood would actually target.
type abusiveKindLimiter struct{}

func (abusiveKindLimiter) AllowFrame(ctx context.Context, clientID, frameType string) bool {
	return frameType != "create-room" && frameType != "join-room" && frameType != "chat-message"
}

func TestCoordinatorRateLimitedFrameIsRejected(t *testing.T) {
	store := NewStore(5, time.Second, nil)
	coord := NewCoordinator(store).WithLimiter(abusiveKindLimiter{})

	a := newMockClient("client-1")
	coord.HandleFrame(a, []byte(`{"type":"create-room","name":"movie","key":"hunter2"}`))

	got := frameOf(t, a.lastSent())
	assert.Equal(t, "room-error", got["type"])
	assert.Equal(t, "RATE_LIMITED", got["code"])
}

func TestCoordinatorRateLimiterDoesNotBlockUnlistedFrameKinds(t *testing.T) {
	store := NewStore(5, time.Second, nil)
	coord := NewCoordinator(store).WithLimiter(abusiveKindLimiter{})

	a := newMockClient("client-1")
	coord.HandleFrame(a, []byte(`{"type":"ping"}`))

	got := frameOf(t, a.lastSent())
	assert.Equal(t, "pong", got["type"])
}
