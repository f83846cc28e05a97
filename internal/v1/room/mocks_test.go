package room

import (
	"sync"

	"github.com/castwire/signal/internal/v1/types"
)

// mockClient is a minimal types.ClientHandle for exercising room logic
// without a real websocket connection.
type mockClient struct {
	mu     sync.Mutex
	id     types.ClientIDType
	roomID types.RoomIDType
	bound  bool
	sent   [][]byte
}

func newMockClient(id string) *mockClient {
	return &mockClient{id: types.ClientIDType(id)}
}

func (m *mockClient) ID() types.ClientIDType { return m.id }

func (m *mockClient) Send(raw []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, raw)
}

func (m *mockClient) RoomID() (types.RoomIDType, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roomID, m.bound
}

func (m *mockClient) SetRoomID(id types.RoomIDType, bound bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roomID = id
	m.bound = bound
}

func (m *mockClient) lastSent() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return nil
	}
	return m.sent[len(m.sent)-1]
}

func (m *mockClient) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// mockSink collects every room-list broadcast for assertions.
type mockSink struct {
	mu    sync.Mutex
	calls [][]types.RoomSummary
}

func (s *mockSink) BroadcastRoomList(rooms []types.RoomSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, rooms)
}

func (s *mockSink) lastCall() []types.RoomSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.calls) == 0 {
		return nil
	}
	return s.calls[len(s.calls)-1]
}

func (s *mockSink) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}
