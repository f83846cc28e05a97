// Package types defines the shared domain vocabulary for the signaling
// service: role and identifier types, the fixed wire frame vocabulary, and
// the narrow interfaces that let the room package address a live connection
// without importing the transport package.
package types

import (
	"context"
	"encoding/json"
)

// --- Core Domain Types ---

// RoleType is the slot a connection occupies within a room.
type RoleType string

const (
	RoleBroadcaster RoleType = "broadcaster"
	RoleViewer      RoleType = "viewer"
)

// ClientIDType is a process-local opaque identifier minted for a connection
// at accept time. It is never reused for the lifetime of the process.
type ClientIDType string

// RoomIDType is the short, shareable room token ("room-" + 8 hex chars).
type RoomIDType string

// ErrorCode is the closed set of admission/relay failure codes the wire
// protocol can surface to a client.
type ErrorCode string

const (
	ErrRoomNotFound  ErrorCode = "ROOM_NOT_FOUND"
	ErrInvalidKey    ErrorCode = "INVALID_KEY"
	ErrRoomFull      ErrorCode = "ROOM_FULL"
	ErrMaxRooms      ErrorCode = "MAX_ROOMS"
	ErrAlreadyInRoom ErrorCode = "ALREADY_IN_ROOM"
	ErrRateLimited   ErrorCode = "RATE_LIMITED"
)

// Message maps each ErrorCode to the human-readable text clients display.
func (c ErrorCode) Message() string {
	switch c {
	case ErrRoomNotFound:
		return "That room does not exist."
	case ErrInvalidKey:
		return "Incorrect room key."
	case ErrRoomFull:
		return "This room already has a broadcaster and a viewer."
	case ErrMaxRooms:
		return "The server has reached its room limit. Try again later."
	case ErrAlreadyInRoom:
		return "You are already in a room. Leave it first."
	case ErrRateLimited:
		return "Too many requests. Slow down."
	default:
		return "Request could not be completed."
	}
}

// CoordError pairs a wire ErrorCode with its message so callers never have
// to re-derive one from the other.
type CoordError struct {
	Code ErrorCode
}

func (e *CoordError) Error() string { return string(e.Code) + ": " + e.Code.Message() }

func NewCoordError(code ErrorCode) *CoordError { return &CoordError{Code: code} }

// --- Client handle ---

// ClientHandle is the narrow view of a live connection the room package
// needs: enough to address it in a slot and write frames to it, without
// depending on the transport package's websocket machinery. The connection
// never owns the room: the RoomID back-reference below is written and
// cleared only by the room package, never by the connection itself.
type ClientHandle interface {
	ID() ClientIDType
	Send(raw []byte)

	// RoomID reports the room this connection is currently bound to, if any.
	RoomID() (RoomIDType, bool)
	// SetRoomID binds or clears the connection's room back-reference. Only
	// the room package calls it: Store.Create binds the creator, and the
	// Coordinator binds on join and clears on leave. The implementations in
	// this repository guard the field with their own mutex.
	SetRoomID(id RoomIDType, bound bool)
}

// RoomListSink receives a fresh room inventory snapshot whenever it
// changes. The transport package's Hub implements this; the room package
// depends only on this narrow interface, never on transport directly.
type RoomListSink interface {
	BroadcastRoomList(rooms []RoomSummary)
}

// FrameLimiter decides whether an inbound frame of frameType from clientID
// should be processed. The ratelimit package implements this; the room
// package depends only on this narrow interface, never on ratelimit
// directly.
type FrameLimiter interface {
	AllowFrame(ctx context.Context, clientID, frameType string) bool
}

// --- Room-list snapshot ---

// RoomSummary is the public, secret-free view of one room emitted in a
// room-list frame.
type RoomSummary struct {
	ID           RoomIDType `json:"id"`
	Name         string     `json:"name"`
	Participants int        `json:"participants"`
	IsFull       bool       `json:"isFull"`
}

// --- Inbound wire vocabulary (client -> server) ---

// FrameType is the closed tagged-union discriminant for every frame kind
// this service understands, in both directions. Keeping client- and
// server-originated kinds in one enum lets a single exhaustive switch in
// the coordinator's router double as the documentation of the whole
// protocol (see spec Design Notes: "closed tagged variant ... compile-time
// exhaustive match").
type FrameType string

const (
	// Client -> server
	FrameTypePing             FrameType = "ping"
	FrameTypeCreateRoom       FrameType = "create-room"
	FrameTypeJoinRoom         FrameType = "join-room"
	FrameTypeLeaveRoom        FrameType = "leave-room"
	FrameTypeGetRoomList      FrameType = "get-room-list"
	FrameTypeBroadcasterReady FrameType = "broadcaster-ready"
	FrameTypeViewerJoin       FrameType = "viewer-join"
	FrameTypeOffer            FrameType = "offer"
	FrameTypeAnswer           FrameType = "answer"
	FrameTypeIceCandidate     FrameType = "ice-candidate"
	FrameTypeChatMessage      FrameType = "chat-message"

	// Server -> client
	FrameTypePong             FrameType = "pong"
	FrameTypeRoomCreated      FrameType = "room-created"
	FrameTypeRoomJoined       FrameType = "room-joined"
	FrameTypeRoomLeft         FrameType = "room-left"
	FrameTypeRoomError        FrameType = "room-error"
	FrameTypeRoomList         FrameType = "room-list"
	FrameTypeViewerJoined     FrameType = "viewer-joined"
	FrameTypeViewerLeft       FrameType = "viewer-left"
	FrameTypeBroadcasterAvail FrameType = "broadcaster-available"
	FrameTypeBroadcasterLeft  FrameType = "broadcaster-left"
	FrameTypeNoBroadcaster    FrameType = "no-broadcaster"
	FrameTypeChatBroadcast    FrameType = "chat-broadcast"
)

// InboundFrame is the single permissive shape every client->server frame is
// first unmarshalled into. Fields not relevant to a given Type are left at
// their zero value; the router does not check that a kind's fields are
// present, and an absent field is handled as its zero value.
type InboundFrame struct {
	Type      FrameType       `json:"type"`
	Name      string          `json:"name,omitempty"`
	Key       string          `json:"key,omitempty"`
	RoomID    string          `json:"roomId,omitempty"`
	ViewerID  string          `json:"viewerId,omitempty"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
	Message   string          `json:"message,omitempty"`
}

// --- Outbound wire vocabulary (server -> client) ---

type RoomCreatedFrame struct {
	Type   FrameType `json:"type"`
	RoomID string    `json:"roomId"`
	Name   string    `json:"name"`
	Role   RoleType  `json:"role"`
}

type RoomJoinedFrame struct {
	Type   FrameType `json:"type"`
	RoomID string    `json:"roomId"`
	Name   string    `json:"name"`
	Role   RoleType  `json:"role"`
}

// SimpleFrame covers every outbound kind with no payload beyond its type:
// pong, room-left, broadcaster-available, broadcaster-left, no-broadcaster.
type SimpleFrame struct {
	Type FrameType `json:"type"`
}

type RoomErrorFrame struct {
	Type  FrameType `json:"type"`
	Code  ErrorCode `json:"code"`
	Error string    `json:"error"`
}

type RoomListFrame struct {
	Type  FrameType     `json:"type"`
	Rooms []RoomSummary `json:"rooms"`
}

type ViewerJoinedFrame struct {
	Type     FrameType `json:"type"`
	ViewerID string    `json:"viewerId"`
}

type ViewerLeftFrame struct {
	Type     FrameType `json:"type"`
	ViewerID string    `json:"viewerId"`
}

type OfferFrame struct {
	Type     FrameType       `json:"type"`
	ViewerID string          `json:"viewerId,omitempty"`
	Offer    json.RawMessage `json:"offer"`
}

type AnswerFrame struct {
	Type     FrameType       `json:"type"`
	ViewerID string          `json:"viewerId,omitempty"`
	Answer   json.RawMessage `json:"answer"`
}

type CandidateFrame struct {
	Type      FrameType       `json:"type"`
	ViewerID  string          `json:"viewerId,omitempty"`
	Candidate json.RawMessage `json:"candidate"`
}

type ChatBroadcastFrame struct {
	Type      FrameType `json:"type"`
	Sender    RoleType  `json:"sender"`
	Message   string    `json:"message"`
	Timestamp int64     `json:"timestamp"`
}

// MaxChatMessageLength bounds chat-message payloads (§6 "bounded").
const MaxChatMessageLength = 1000

// MaxRoomNameLength bounds create-room display names (§3 "free-form,
// bounded").
const MaxRoomNameLength = 200
