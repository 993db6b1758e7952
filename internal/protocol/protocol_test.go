package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDecode(t *testing.T) {
	env, err := Decode([]byte(`{"event":"code_change","data":{"roomId":"abc","code":"x"}}`))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if env.Event != EventCodeChange {
		t.Errorf("Expected event %q, got %q", EventCodeChange, env.Event)
	}

	for _, raw := range []string{"", "not json", `{"data":1}`, `[]`} {
		if _, err := Decode([]byte(raw)); !errors.Is(err, ErrMalformed) {
			t.Errorf("Decode(%q): expected ErrMalformed, got %v", raw, err)
		}
	}
}

func TestEncode(t *testing.T) {
	frame, err := Encode(EventActiveUsers, []User{{ID: "a", Username: "User_a"}})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		t.Fatalf("Failed to decode frame: %v", err)
	}
	if env.Event != EventActiveUsers {
		t.Errorf("Expected event %q, got %q", EventActiveUsers, env.Event)
	}

	var users []User
	if err := json.Unmarshal(env.Data, &users); err != nil {
		t.Fatalf("Failed to decode users: %v", err)
	}
	if len(users) != 1 || users[0].Username != "User_a" {
		t.Errorf("Unexpected users: %+v", users)
	}
}

func TestParseJoin(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{name: "bare string", raw: `"abc123"`, want: "abc123"},
		{name: "object", raw: `{"roomId":"abc123"}`, want: "abc123"},
		{name: "empty string", raw: `""`, wantErr: true},
		{name: "missing", raw: ``, wantErr: true},
		{name: "number", raw: `42`, wantErr: true},
		{name: "object without room", raw: `{"room":"x"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseJoin(json.RawMessage(tt.raw))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformed) {
					t.Errorf("Expected ErrMalformed, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestParseCode(t *testing.T) {
	roomID, code, err := ParseCode(json.RawMessage(`{"roomId":"r","code":""}`))
	if err != nil {
		t.Fatalf("Empty code should be accepted: %v", err)
	}
	if roomID != "r" || code != "" {
		t.Errorf("Unexpected result %q %q", roomID, code)
	}

	bad := []string{
		`{"code":"x"}`,
		`{"roomId":"r"}`,
		`{"roomId":"r","code":5}`,
		`{"roomId":"r","code":null}`,
		`"r"`,
	}
	for _, raw := range bad {
		if _, _, err := ParseCode(json.RawMessage(raw)); !errors.Is(err, ErrMalformed) {
			t.Errorf("ParseCode(%s): expected ErrMalformed, got %v", raw, err)
		}
	}
}

func TestParseCursor(t *testing.T) {
	raw := `{"roomId":"r","position":{"lineNumber":3,"column":7},"userId":"u1","username":"User_u1"}`
	roomID, cursor, err := ParseCursor(json.RawMessage(raw))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if roomID != "r" {
		t.Errorf("Expected room r, got %q", roomID)
	}
	if cursor.Position.LineNumber != 3 || cursor.Position.Column != 7 {
		t.Errorf("Unexpected position %+v", cursor.Position)
	}
	if cursor.Username != "User_u1" {
		t.Errorf("Unexpected username %q", cursor.Username)
	}

	if _, _, err := ParseCursor(json.RawMessage(`{"roomId":"r"}`)); !errors.Is(err, ErrMalformed) {
		t.Errorf("Missing position should be malformed, got %v", err)
	}
	if _, _, err := ParseCursor(json.RawMessage(`{"roomId":"r","position":{"lineNumber":-1,"column":1}}`)); !errors.Is(err, ErrMalformed) {
		t.Errorf("Negative position should be malformed, got %v", err)
	}
}
