package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoleTypeConstants(t *testing.T) {
	assert.Equal(t, RoleType("broadcaster"), RoleBroadcaster)
	assert.Equal(t, RoleType("viewer"), RoleViewer)
}

func TestClientIDType(t *testing.T) {
	id := ClientIDType("client-2")
	assert.Equal(t, "client-2", string(id))
}

func TestRoomIDType(t *testing.T) {
	id := RoomIDType("room-abcd1234")
	assert.Equal(t, "room-abcd1234", string(id))
}

func TestErrorCodeMessages(t *testing.T) {
	cases := map[ErrorCode]string{
		ErrRoomNotFound:  "That room does not exist.",
		ErrInvalidKey:    "Incorrect room key.",
		ErrRoomFull:      "This room already has a broadcaster and a viewer.",
		ErrMaxRooms:      "The server has reached its room limit. Try again later.",
		ErrAlreadyInRoom: "You are already in a room. Leave it first.",
	}
	for code, want := range cases {
		assert.Equal(t, want, code.Message())
	}
}

func TestCoordError(t *testing.T) {
	err := NewCoordError(ErrInvalidKey)
	assert.Equal(t, ErrInvalidKey, err.Code)
	assert.Contains(t, err.Error(), "INVALID_KEY")
}

func TestInboundFrameRoundTrip(t *testing.T) {
	raw := []byte(`{"type":"join-room","roomId":"room-abcd1234","key":"hunter2"}`)
	var f InboundFrame
	assert.NoError(t, json.Unmarshal(raw, &f))
	assert.Equal(t, FrameTypeJoinRoom, f.Type)
	assert.Equal(t, "room-abcd1234", f.RoomID)
	assert.Equal(t, "hunter2", f.Key)
}

func TestRoomErrorFrameMarshal(t *testing.T) {
	frame := RoomErrorFrame{Type: FrameTypeRoomError, Code: ErrInvalidKey, Error: ErrInvalidKey.Message()}
	data, err := json.Marshal(frame)
	assert.NoError(t, err)
	assert.JSONEq(t, `{"type":"room-error","code":"INVALID_KEY","error":"Incorrect room key."}`, string(data))
}

func TestRoomSummaryMarshalHasNoSecretFields(t *testing.T) {
	summary := RoomSummary{ID: "room-abcd1234", Name: "movie night", Participants: 1, IsFull: false}
	data, err := json.Marshal(summary)
	assert.NoError(t, err)
	assert.JSONEq(t, `{"id":"room-abcd1234","name":"movie night","participants":1,"isFull":false}`, string(data))
}
