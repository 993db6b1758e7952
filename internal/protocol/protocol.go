package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Client to server events
const (
	EventJoinRoom       = "join_room"
	EventCodeChange     = "code_change"
	EventCursorMove     = "cursor_move"
	EventSaveVersion    = "save_version"
	EventRestoreVersion = "restore_version"
)

// Server to client events
const (
	EventConnected     = "connected"
	EventLoadCode      = "load_code"
	EventReceiveCode   = "receive_code"
	EventReceiveCursor = "receive_cursor"
	EventActiveUsers   = "active_users"
	EventVersionSaved  = "version_saved"
)

var ErrMalformed = errors.New("malformed event")

// Envelope is the frame carried by every WebSocket text message
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Position is an editor cursor location, 1-based like Monaco
type Position struct {
	LineNumber int `json:"lineNumber"`
	Column     int `json:"column"`
}

type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Cursor is what peers receive on receive_cursor
type Cursor struct {
	Position Position `json:"position"`
	UserID   string   `json:"userId"`
	Username string   `json:"username"`
}

type codePayload struct {
	RoomID string  `json:"roomId"`
	Code   *string `json:"code"`
}

type cursorPayload struct {
	RoomID   string    `json:"roomId"`
	Position *Position `json:"position"`
	UserID   string    `json:"userId"`
	Username string    `json:"username"`
}

// Decode parses a raw frame into an envelope
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("%w: missing event name", ErrMalformed)
	}
	return env, nil
}

// Encode builds an outbound frame
func Encode(event string, data any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: payload})
}

// ParseJoin accepts either a bare room id string or {"roomId": "..."}
func ParseJoin(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", fmt.Errorf("%w: join without room", ErrMalformed)
	}

	var roomID string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &roomID); err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformed, err)
		}
	} else {
		var obj struct {
			RoomID string `json:"roomId"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		roomID = obj.RoomID
	}

	if roomID == "" {
		return "", fmt.Errorf("%w: empty room id", ErrMalformed)
	}
	return roomID, nil
}

// ParseCode decodes the payload shared by code_change, save_version and restore_version
func ParseCode(raw json.RawMessage) (roomID, code string, err error) {
	var p codePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if p.RoomID == "" {
		return "", "", fmt.Errorf("%w: missing roomId", ErrMalformed)
	}
	if p.Code == nil {
		return "", "", fmt.Errorf("%w: missing code", ErrMalformed)
	}
	return p.RoomID, *p.Code, nil
}

// ParseCursor decodes a cursor_move payload. The userId field is returned as
// sent; callers decide whether to trust it.
func ParseCursor(raw json.RawMessage) (roomID string, cursor Cursor, err error) {
	var p cursorPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return "", Cursor{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if p.RoomID == "" {
		return "", Cursor{}, fmt.Errorf("%w: missing roomId", ErrMalformed)
	}
	if p.Position == nil {
		return "", Cursor{}, fmt.Errorf("%w: missing position", ErrMalformed)
	}
	if p.Position.LineNumber < 0 || p.Position.Column < 0 {
		return "", Cursor{}, fmt.Errorf("%w: negative position", ErrMalformed)
	}
	return p.RoomID, Cursor{
		Position: *p.Position,
		UserID:   p.UserID,
		Username: p.Username,
	}, nil
}
