package room

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/castwire/signal/internal/v1/logging"
	"github.com/castwire/signal/internal/v1/metrics"
	"github.com/castwire/signal/internal/v1/types"
	"go.uber.org/zap"
)

// Coordinator routes inbound frames from a connection to room operations
// and emits the resulting outbound frames. It holds no per-connection
// state of its own; everything it needs (role, room binding) lives on the
// ClientHandle and the Room it resolves to.
type Coordinator struct {
	store   *Store
	limiter types.FrameLimiter
}

func NewCoordinator(store *Store) *Coordinator {
	return &Coordinator{store: store}
}

// WithLimiter attaches a frame-rate limiter. Every well-formed inbound frame
// is checked against it before dispatch; which kinds it actually limits is
// up to the limiter (ratelimit.Limiter limits only create-room, join-room
// and chat-message). Nil (the zero value) disables limiting.
func (c *Coordinator) WithLimiter(limiter types.FrameLimiter) *Coordinator {
	c.limiter = limiter
	return c
}

// HandleFrame unmarshals raw into an InboundFrame and dispatches it. A
// malformed payload is logged and discarded, never propagated. A panic in
// a handler is recovered and logged, so it never ends the connection's
// read loop.
func (c *Coordinator) HandleFrame(handle types.ClientHandle, raw []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			logging.Error(context.Background(), "recovered from panic while handling frame",
				zap.String("client_id", string(handle.ID())), zap.Any("panic", rec))
		}
	}()

	var frame types.InboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		logging.Warn(context.Background(), "discarding malformed frame",
			zap.String("client_id", string(handle.ID())), zap.Error(err))
		metrics.FrameTotal.WithLabelValues("malformed", "discarded").Inc()
		return
	}

	start := time.Now()
	status := "ok"

	if c.limiter != nil && !c.limiter.AllowFrame(context.Background(), string(handle.ID()), string(frame.Type)) {
		code := types.ErrRateLimited
		c.sendError(handle, code)
		metrics.FrameTotal.WithLabelValues(string(frame.Type), string(code)).Inc()
		return
	}

	switch frame.Type {
	case types.FrameTypePing:
		c.handlePing(handle)
	case types.FrameTypeCreateRoom:
		status = c.handleCreateRoom(handle, frame)
	case types.FrameTypeJoinRoom:
		status = c.handleJoinRoom(handle, frame)
	case types.FrameTypeLeaveRoom:
		c.handleLeaveRoomFrame(handle)
	case types.FrameTypeGetRoomList:
		c.handleGetRoomList(handle)
	case types.FrameTypeBroadcasterReady:
		c.handleBroadcasterReady(handle)
	case types.FrameTypeViewerJoin:
		c.handleViewerJoin(handle)
	case types.FrameTypeOffer:
		c.handleOffer(handle, frame)
	case types.FrameTypeAnswer:
		c.handleAnswer(handle, frame)
	case types.FrameTypeIceCandidate:
		c.handleIceCandidate(handle, frame)
	case types.FrameTypeChatMessage:
		c.handleChatMessage(handle, frame)
	default:
		status = "unknown"
		logging.Warn(context.Background(), "unknown frame type",
			zap.String("client_id", string(handle.ID())), zap.String("type", string(frame.Type)))
	}

	metrics.FrameTotal.WithLabelValues(string(frame.Type), status).Inc()
	metrics.FrameDuration.WithLabelValues(string(frame.Type)).Observe(time.Since(start).Seconds())
}

// Leave unconditionally runs the disconnect path for handle: vacates
// whatever slot it holds, notifies the counterpart, schedules cleanup if
// the room is now empty, and pushes a room-list update. It is the single
// entry point used both by an explicit leave-room frame and by transport
// close, and is idempotent — a second call for an already-unbound handle
// does nothing.
func (c *Coordinator) Leave(handle types.ClientHandle) {
	roomID, bound := handle.RoomID()
	if !bound {
		return
	}

	r, ok := c.store.Lookup(roomID)
	if !ok {
		handle.SetRoomID("", false)
		return
	}

	role, counterpart, changed := r.Leave(handle)
	handle.SetRoomID("", false)
	if !changed {
		return
	}

	if counterpart != nil {
		switch role {
		case types.RoleBroadcaster:
			counterpart.Send(marshal(types.SimpleFrame{Type: types.FrameTypeBroadcasterLeft}))
		case types.RoleViewer:
			counterpart.Send(marshal(types.ViewerLeftFrame{Type: types.FrameTypeViewerLeft, ViewerID: string(handle.ID())}))
		}
	}

	if r.Empty() {
		c.store.ScheduleCleanup(r)
	}
	metrics.RoomParticipants.WithLabelValues(string(r.ID)).Set(float64(r.Participants()))
	c.store.BroadcastChanged()
}

func (c *Coordinator) handlePing(handle types.ClientHandle) {
	handle.Send(marshal(types.SimpleFrame{Type: types.FrameTypePong}))
}

func (c *Coordinator) handleCreateRoom(handle types.ClientHandle, frame types.InboundFrame) string {
	name := frame.Name
	if len(name) > types.MaxRoomNameLength {
		name = name[:types.MaxRoomNameLength]
	}

	r, err := c.store.Create(frame.Key, name, handle)
	if err != nil {
		code := c.sendCoordError(handle, err)
		return string(code)
	}

	metrics.AdmissionTotal.WithLabelValues("created").Inc()
	handle.Send(marshal(types.RoomCreatedFrame{
		Type:   types.FrameTypeRoomCreated,
		RoomID: string(r.ID),
		Name:   r.Name,
		Role:   types.RoleBroadcaster,
	}))
	c.store.BroadcastChanged()
	return "ok"
}

func (c *Coordinator) handleJoinRoom(handle types.ClientHandle, frame types.InboundFrame) string {
	if _, bound := handle.RoomID(); bound {
		c.sendError(handle, types.ErrAlreadyInRoom)
		return string(types.ErrAlreadyInRoom)
	}

	r, ok := c.store.Lookup(types.RoomIDType(frame.RoomID))
	if !ok {
		c.sendError(handle, types.ErrRoomNotFound)
		return string(types.ErrRoomNotFound)
	}

	if !r.VerifyKey(frame.Key) {
		c.sendError(handle, types.ErrInvalidKey)
		metrics.AdmissionTotal.WithLabelValues("invalid_key").Inc()
		return string(types.ErrInvalidKey)
	}

	role, err := r.Join(handle)
	if err != nil {
		code := c.sendCoordError(handle, err)
		return string(code)
	}

	handle.SetRoomID(r.ID, true)
	c.store.CancelCleanup(r)

	handle.Send(marshal(types.RoomJoinedFrame{
		Type:   types.FrameTypeRoomJoined,
		RoomID: string(r.ID),
		Name:   r.Name,
		Role:   role,
	}))

	if counterpart := r.Counterpart(handle); counterpart != nil {
		switch role {
		case types.RoleViewer:
			counterpart.Send(marshal(types.ViewerJoinedFrame{Type: types.FrameTypeViewerJoined, ViewerID: string(handle.ID())}))
		case types.RoleBroadcaster:
			counterpart.Send(marshal(types.SimpleFrame{Type: types.FrameTypeBroadcasterAvail}))
		}
	}

	metrics.AdmissionTotal.WithLabelValues("joined").Inc()
	metrics.RoomParticipants.WithLabelValues(string(r.ID)).Set(float64(r.Participants()))
	c.store.BroadcastChanged()
	return "ok"
}

func (c *Coordinator) handleLeaveRoomFrame(handle types.ClientHandle) {
	c.Leave(handle)
	handle.Send(marshal(types.SimpleFrame{Type: types.FrameTypeRoomLeft}))
}

func (c *Coordinator) handleGetRoomList(handle types.ClientHandle) {
	handle.Send(marshal(types.RoomListFrame{Type: types.FrameTypeRoomList, Rooms: c.store.Snapshot()}))
}

// handleBroadcasterReady lets a reconnected broadcaster re-trigger its
// offer path: if a viewer is already present, the broadcaster (not the
// viewer) is re-notified with the viewer's id.
func (c *Coordinator) handleBroadcasterReady(handle types.ClientHandle) {
	r, role, ok := c.boundRoom(handle)
	if !ok || role != types.RoleBroadcaster {
		return
	}
	if viewer := r.Counterpart(handle); viewer != nil {
		handle.Send(marshal(types.ViewerJoinedFrame{Type: types.FrameTypeViewerJoined, ViewerID: string(viewer.ID())}))
	}
}

func (c *Coordinator) handleViewerJoin(handle types.ClientHandle) {
	r, role, ok := c.boundRoom(handle)
	if !ok || role != types.RoleViewer {
		return
	}
	if broadcaster := r.Counterpart(handle); broadcaster != nil {
		broadcaster.Send(marshal(types.ViewerJoinedFrame{Type: types.FrameTypeViewerJoined, ViewerID: string(handle.ID())}))
	} else {
		handle.Send(marshal(types.SimpleFrame{Type: types.FrameTypeNoBroadcaster}))
	}
}

func (c *Coordinator) handleOffer(handle types.ClientHandle, frame types.InboundFrame) {
	r, role, ok := c.boundRoom(handle)
	if !ok || role != types.RoleBroadcaster {
		return
	}
	viewer := r.Counterpart(handle)
	if viewer == nil {
		return
	}
	viewer.Send(marshal(types.OfferFrame{Type: types.FrameTypeOffer, Offer: frame.Offer}))
}

func (c *Coordinator) handleAnswer(handle types.ClientHandle, frame types.InboundFrame) {
	r, role, ok := c.boundRoom(handle)
	if !ok || role != types.RoleViewer {
		return
	}
	broadcaster := r.Counterpart(handle)
	if broadcaster == nil {
		return
	}
	viewerID := frame.ViewerID
	if viewerID == "" {
		viewerID = string(handle.ID())
	}
	broadcaster.Send(marshal(types.AnswerFrame{Type: types.FrameTypeAnswer, ViewerID: viewerID, Answer: frame.Answer}))
}

// handleIceCandidate relays a candidate to the opposite slot. A candidate
// forwarded to the viewer never carries a viewerId (stripped, since a
// viewer has only one counterpart); a candidate forwarded to the
// broadcaster always does, inserted from the sender's id if the client
// didn't supply one, so the broadcaster can address the right viewer.
func (c *Coordinator) handleIceCandidate(handle types.ClientHandle, frame types.InboundFrame) {
	r, role, ok := c.boundRoom(handle)
	if !ok {
		return
	}
	counterpart := r.Counterpart(handle)
	if counterpart == nil {
		return
	}

	out := types.CandidateFrame{Type: types.FrameTypeIceCandidate, Candidate: frame.Candidate}
	if role == types.RoleViewer {
		out.ViewerID = frame.ViewerID
		if out.ViewerID == "" {
			out.ViewerID = string(handle.ID())
		}
	}
	counterpart.Send(marshal(out))
}

func (c *Coordinator) handleChatMessage(handle types.ClientHandle, frame types.InboundFrame) {
	r, role, ok := c.boundRoom(handle)
	if !ok {
		return
	}
	counterpart := r.Counterpart(handle)
	if counterpart == nil {
		return
	}

	msg := frame.Message
	if len(msg) > types.MaxChatMessageLength {
		msg = msg[:types.MaxChatMessageLength]
	}
	counterpart.Send(marshal(types.ChatBroadcastFrame{
		Type:      types.FrameTypeChatBroadcast,
		Sender:    role,
		Message:   msg,
		Timestamp: time.Now().UnixMilli(),
	}))
}

// boundRoom resolves the room and slot role for handle, or ok=false if
// handle is unbound, bound to a room that no longer exists, or (should
// never happen) bound but holding no slot in that room.
func (c *Coordinator) boundRoom(handle types.ClientHandle) (*Room, types.RoleType, bool) {
	roomID, bound := handle.RoomID()
	if !bound {
		return nil, "", false
	}
	r, ok := c.store.Lookup(roomID)
	if !ok {
		return nil, "", false
	}
	role, ok := r.RoleOf(handle)
	if !ok {
		return nil, "", false
	}
	return r, role, true
}

func (c *Coordinator) sendError(handle types.ClientHandle, code types.ErrorCode) {
	handle.Send(marshal(types.RoomErrorFrame{Type: types.FrameTypeRoomError, Code: code, Error: code.Message()}))
}

func (c *Coordinator) sendCoordError(handle types.ClientHandle, err error) types.ErrorCode {
	var coordErr *types.CoordError
	if errors.As(err, &coordErr) {
		c.sendError(handle, coordErr.Code)
		return coordErr.Code
	}
	logging.Error(context.Background(), "unexpected room error", zap.Error(err))
	c.sendError(handle, types.ErrRoomNotFound)
	return types.ErrRoomNotFound
}

func marshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		logging.Error(context.Background(), "failed to marshal outbound frame", zap.Error(err))
		return nil
	}
	return data
}
