package room

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/castwire/signal/internal/v1/admission"
	"github.com/castwire/signal/internal/v1/logging"
	"github.com/castwire/signal/internal/v1/metrics"
	"github.com/castwire/signal/internal/v1/types"
	"go.uber.org/zap"
)

// Store is the authoritative room-id -> Room mapping for the process. A
// single mutex is sufficient given the small room cap; per-room state is
// further guarded by each Room's own mutex so the store lock is only ever
// held for map bookkeeping.
type Store struct {
	mu           sync.Mutex
	rooms        map[types.RoomIDType]*Room
	cleanupTimer map[types.RoomIDType]*time.Timer

	maxRooms     int
	cleanupGrace time.Duration
	sink         types.RoomListSink
}

// NewStore builds an empty store. sink receives a snapshot each time
// BroadcastChanged runs. Create and Destroy do not call it themselves: the
// Coordinator calls it after each create, join and leave, and a fired
// cleanup timer calls it after destroying the room.
func NewStore(maxRooms int, cleanupGrace time.Duration, sink types.RoomListSink) *Store {
	return &Store{
		rooms:        make(map[types.RoomIDType]*Room),
		cleanupTimer: make(map[types.RoomIDType]*time.Timer),
		maxRooms:     maxRooms,
		cleanupGrace: cleanupGrace,
		sink:         sink,
	}
}

// SetSink (re)assigns the room-list sink after construction, for callers
// that must build the Store before the sink (e.g. a transport.Hub that
// itself needs the Store to hand new connections their initial snapshot).
func (s *Store) SetSink(sink types.RoomListSink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sink = sink
}

// Create allocates a new room bound to creator as broadcaster.
func (s *Store) Create(secret, name string, creator types.ClientHandle) (*Room, error) {
	if _, bound := creator.RoomID(); bound {
		return nil, types.NewCoordError(types.ErrAlreadyInRoom)
	}

	s.mu.Lock()
	if len(s.rooms) >= s.maxRooms {
		s.mu.Unlock()
		return nil, types.NewCoordError(types.ErrMaxRooms)
	}

	id, err := s.freshIDLocked()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	r := newRoom(id, name, admission.HashSecret(secret), creator, time.Now())
	s.rooms[id] = r
	s.mu.Unlock()

	creator.SetRoomID(id, true)
	metrics.ActiveRooms.Inc()
	metrics.RoomParticipants.WithLabelValues(string(id)).Set(1)
	logging.Info(context.Background(), "room created", zap.String("room_id", string(id)))
	return r, nil
}

// freshIDLocked must be called with s.mu held.
func (s *Store) freshIDLocked() (types.RoomIDType, error) {
	for attempt := 0; attempt < 10; attempt++ {
		buf := make([]byte, 4)
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		id := types.RoomIDType("room-" + hex.EncodeToString(buf))
		if _, exists := s.rooms[id]; !exists {
			return id, nil
		}
	}
	// Practically unreachable with a 5-room cap and 32 bits of entropy.
	return "", types.NewCoordError(types.ErrMaxRooms)
}

// Lookup returns the room for id, if any.
func (s *Store) Lookup(id types.RoomIDType) (*Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[id]
	return r, ok
}

// Destroy removes id from the store unconditionally.
func (s *Store) Destroy(id types.RoomIDType) {
	s.mu.Lock()
	delete(s.rooms, id)
	if timer, ok := s.cleanupTimer[id]; ok {
		timer.Stop()
		delete(s.cleanupTimer, id)
	}
	s.mu.Unlock()

	metrics.ActiveRooms.Dec()
	metrics.RoomParticipants.DeleteLabelValues(string(id))
	logging.Info(context.Background(), "room destroyed", zap.String("room_id", string(id)))
}

// ScheduleCleanup marks r pending and arms a timer that destroys it after
// the grace period unless a join cancels it first. Calling this again for
// a room that already has a timer replaces it.
func (s *Store) ScheduleCleanup(r *Room) {
	r.MarkPending()

	s.mu.Lock()
	if existing, ok := s.cleanupTimer[r.ID]; ok {
		existing.Stop()
	}
	s.cleanupTimer[r.ID] = time.AfterFunc(s.cleanupGrace, func() { s.fireCleanup(r) })
	s.mu.Unlock()
}

// CancelCleanup stops any pending cleanup timer for r. Join calls this so a
// revived room never gets destroyed out from under its new occupant.
func (s *Store) CancelCleanup(r *Room) {
	s.mu.Lock()
	if timer, ok := s.cleanupTimer[r.ID]; ok {
		timer.Stop()
		delete(s.cleanupTimer, r.ID)
	}
	s.mu.Unlock()
}

func (s *Store) fireCleanup(r *Room) {
	s.mu.Lock()
	delete(s.cleanupTimer, r.ID)
	s.mu.Unlock()

	// Re-check occupancy here, not at schedule time: a join racing the
	// timer must observe a non-empty room and do nothing.
	if !r.StillEmpty() {
		return
	}
	s.Destroy(r.ID)
	s.BroadcastChanged()
}

// Snapshot produces the secret-free inventory of every room, for a
// room-list frame.
func (s *Store) Snapshot() []types.RoomSummary {
	s.mu.Lock()
	rooms := make([]*Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		rooms = append(rooms, r)
	}
	s.mu.Unlock()

	out := make([]types.RoomSummary, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.Summary())
	}
	return out
}

// BroadcastChanged pushes a fresh snapshot to the configured sink. Safe to
// call even when sink is nil (tests that don't wire a transport hub).
func (s *Store) BroadcastChanged() {
	s.mu.Lock()
	sink := s.sink
	s.mu.Unlock()
	if sink == nil {
		return
	}
	sink.BroadcastRoomList(s.Snapshot())
}

// Count reports the current number of rooms held by the store.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}
