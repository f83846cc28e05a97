// Package room implements the per-room state machine: slot assignment,
// the broadcaster/viewer pairing, and the capped, deferred-cleanup-backed
// store that owns every room record in the process.
package room

import (
	"sync"
	"time"

	"github.com/castwire/signal/internal/v1/admission"
	"github.com/castwire/signal/internal/v1/types"
)

// State is the coarse state of a room derived from its slot occupancy.
type State string

const (
	StateEmpty           State = "EMPTY"
	StateBroadcasterOnly State = "BROADCASTER_ONLY"
	StateViewerOnly      State = "VIEWER_ONLY"
	StateFull            State = "FULL"
	StatePendingCleanup  State = "PENDING_CLEANUP"
)

// Room holds the two slots a signaling session pairs up, guarded by its own
// mutex so that concurrent connection handlers touching the same room
// serialize correctly without holding the store's lock.
type Room struct {
	ID        types.RoomIDType
	Name      string
	CreatedAt time.Time

	digest admission.Digest

	mu          sync.Mutex
	broadcaster types.ClientHandle
	viewer      types.ClientHandle
	pending     bool // true once both slots are empty and cleanup has been scheduled
}

func newRoom(id types.RoomIDType, name string, digest admission.Digest, creator types.ClientHandle, now time.Time) *Room {
	return &Room{
		ID:          id,
		Name:        name,
		CreatedAt:   now,
		digest:      digest,
		broadcaster: creator,
	}
}

// State reports the room's current coarse state.
func (r *Room) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stateLocked()
}

func (r *Room) stateLocked() State {
	switch {
	case r.broadcaster != nil && r.viewer != nil:
		return StateFull
	case r.broadcaster != nil:
		return StateBroadcasterOnly
	case r.viewer != nil:
		return StateViewerOnly
	case r.pending:
		return StatePendingCleanup
	default:
		return StateEmpty
	}
}

// Participants reports how many of the two slots are occupied.
func (r *Room) Participants() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	if r.broadcaster != nil {
		n++
	}
	if r.viewer != nil {
		n++
	}
	return n
}

// Empty reports whether both slots are currently vacant.
func (r *Room) Empty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.broadcaster == nil && r.viewer == nil
}

// VerifyKey checks candidate against the room's stored digest.
func (r *Room) VerifyKey(candidate string) bool {
	return admission.Verify(r.digest, candidate)
}

// Join places handle in the first empty slot, broadcaster before viewer.
// It cancels any pending-cleanup marker on success.
func (r *Room) Join(handle types.ClientHandle) (types.RoleType, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case r.broadcaster == nil:
		r.broadcaster = handle
		r.pending = false
		return types.RoleBroadcaster, nil
	case r.viewer == nil:
		r.viewer = handle
		r.pending = false
		return types.RoleViewer, nil
	default:
		return "", types.NewCoordError(types.ErrRoomFull)
	}
}

// Leave vacates handle's slot, if any. changed is false if handle held no
// slot in this room (the idempotent no-op case for a repeated leave).
func (r *Room) Leave(handle types.ClientHandle) (role types.RoleType, counterpart types.ClientHandle, changed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case r.broadcaster == handle:
		r.broadcaster = nil
		return types.RoleBroadcaster, r.viewer, true
	case r.viewer == handle:
		r.viewer = nil
		return types.RoleViewer, r.broadcaster, true
	default:
		return "", nil, false
	}
}

// MarkPending records that this room has just become empty and a cleanup
// timer has been scheduled for it.
func (r *Room) MarkPending() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = r.broadcaster == nil && r.viewer == nil
}

// StillEmpty reports whether the room is still vacant, for the cleanup
// timer to re-check at fire time without racing a concurrent join.
func (r *Room) StillEmpty() bool {
	return r.Empty()
}

// RoleOf reports which slot, if any, handle currently occupies.
func (r *Room) RoleOf(handle types.ClientHandle) (types.RoleType, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch handle {
	case r.broadcaster:
		return types.RoleBroadcaster, true
	case r.viewer:
		return types.RoleViewer, true
	default:
		return "", false
	}
}

// Counterpart returns whichever slot is not occupied by sender, or nil if
// sender holds no slot or the opposite slot is vacant.
func (r *Room) Counterpart(sender types.ClientHandle) types.ClientHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch sender {
	case r.broadcaster:
		return r.viewer
	case r.viewer:
		return r.broadcaster
	default:
		return nil
	}
}

// Summary produces the secret-free view of this room for a room-list frame.
func (r *Room) Summary() types.RoomSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	if r.broadcaster != nil {
		n++
	}
	if r.viewer != nil {
		n++
	}
	return types.RoomSummary{
		ID:           r.ID,
		Name:         r.Name,
		Participants: n,
		IsFull:       r.broadcaster != nil && r.viewer != nil,
	}
}
