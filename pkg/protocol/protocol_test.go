package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		wantErr bool
	}{
		{
			name:  "register frame",
			frame: `{"type":"register","sender":"alice","timestamp":"2025-01-01T00:00:00"}`,
		},
		{
			name:  "broadcast with content",
			frame: `{"type":"broadcast","sender":"alice","content":"hola","timestamp":"2025-01-01T00:00:00"}`,
		},
		{
			name:  "private with target",
			frame: `{"type":"private","sender":"alice","target":"bob","content":"hey"}`,
		},
		{
			name:  "unknown kind passes decode",
			frame: `{"type":"frobnicate","sender":"alice"}`,
		},
		{
			name:    "not json",
			frame:   `hola que tal`,
			wantErr: true,
		},
		{
			name:    "json but not an object",
			frame:   `[1,2,3]`,
			wantErr: true,
		},
		{
			name:    "missing type",
			frame:   `{"sender":"alice","content":"x"}`,
			wantErr: true,
		},
		{
			name:    "missing sender",
			frame:   `{"type":"broadcast","content":"x"}`,
			wantErr: true,
		},
		{
			name:    "empty object",
			frame:   `{}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := Decode([]byte(tt.frame))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Decode(%q) succeeded, want error", tt.frame)
				}
				if !errors.Is(err, ErrMalformed) {
					t.Errorf("Decode(%q) error = %v, want ErrMalformed", tt.frame, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode(%q) error = %v", tt.frame, err)
			}
			if req.Type == "" || req.Sender == "" {
				t.Errorf("Decode(%q) returned incomplete request: %+v", tt.frame, req)
			}
		})
	}
}

func TestRequest_Text(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  string
	}{
		{"string content", `{"type":"broadcast","sender":"a","content":"hola"}`, "hola"},
		{"empty string content", `{"type":"broadcast","sender":"a","content":""}`, ""},
		{"absent content", `{"type":"list_users","sender":"a"}`, ""},
		{"null content", `{"type":"register","sender":"a","content":null}`, ""},
		{"object content", `{"type":"broadcast","sender":"a","content":{"x":1}}`, ""},
		{"unicode content", `{"type":"broadcast","sender":"a","content":"señal"}`, "señal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := Decode([]byte(tt.frame))
			if err != nil {
				t.Fatalf("Decode(%q) error = %v", tt.frame, err)
			}
			if got := req.Text(); got != tt.want {
				t.Errorf("Text() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEncode_StampsTimestamp(t *testing.T) {
	now := time.Date(2025, 3, 14, 15, 9, 26, 0, time.Local)
	resp := &Response{
		Type:    KindError,
		Sender:  SenderServer,
		Content: "Usuario no encontrado",
	}

	data, err := Encode(resp, now)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Encode produced invalid JSON: %v", err)
	}
	if decoded["timestamp"] != "2025-03-14T15:09:26" {
		t.Errorf("timestamp = %v, want 2025-03-14T15:09:26", decoded["timestamp"])
	}
	if decoded["type"] != KindError {
		t.Errorf("type = %v, want %v", decoded["type"], KindError)
	}
	if decoded["sender"] != SenderServer {
		t.Errorf("sender = %v, want %v", decoded["sender"], SenderServer)
	}
	if strings.Contains(string(data), "\n") {
		t.Error("Encode output should be compact, found newline")
	}
}

func TestEncode_ContentShapes(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name     string
		resp     *Response
		wantJSON string
	}{
		{
			name:     "name list",
			resp:     &Response{Type: KindRegisterSuccess, Sender: SenderServer, Content: []string{"alice", "bob"}},
			wantJSON: `["alice","bob"]`,
		},
		{
			name:     "status change object",
			resp:     &Response{Type: KindStatusUpdate, Sender: SenderServer, Content: StatusChange{User: "alice", Status: StatusInactive}},
			wantJSON: `{"user":"alice","status":"INACTIVO"}`,
		},
		{
			name:     "user info object",
			resp:     &Response{Type: KindUserInfoResponse, Sender: SenderServer, Content: UserInfo{IP: "127.0.0.1:9999", Status: StatusActive}},
			wantJSON: `{"ip":"127.0.0.1:9999","status":"ACTIVO"}`,
		},
		{
			name:     "empty string content survives",
			resp:     &Response{Type: KindBroadcast, Sender: "alice", Content: ""},
			wantJSON: `""`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.resp, now)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			var decoded struct {
				Content json.RawMessage `json:"content"`
			}
			if err := json.Unmarshal(data, &decoded); err != nil {
				t.Fatalf("Encode produced invalid JSON: %v", err)
			}
			if string(decoded.Content) != tt.wantJSON {
				t.Errorf("content = %s, want %s", decoded.Content, tt.wantJSON)
			}
		})
	}
}

func TestStatusLiterals(t *testing.T) {
	// The wire values are fixed by deployed clients.
	expected := map[string]string{
		"ACTIVO":   StatusActive,
		"OCUPADO":  StatusBusy,
		"INACTIVO": StatusInactive,
	}
	for want, got := range expected {
		if got != want {
			t.Errorf("status literal mismatch: got %v, want %v", got, want)
		}
	}
}

func TestIsValidStatus(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{"ACTIVO", true},
		{"OCUPADO", true},
		{"INACTIVO", true},
		{"ACTIVE", false},
		{"activo", false},
		{"", false},
		{"AUSENTE", false},
	}

	for _, tt := range tests {
		if got := IsValidStatus(tt.status); got != tt.want {
			t.Errorf("IsValidStatus(%q) = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestIsValidName(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want bool
	}{
		{"plain", "alice", true},
		{"with space", "alice smith", true},
		{"accented", "muñoz", true},
		{"empty", "", false},
		{"reserved server", "server", false},
		{"control char", "ali\x00ce", false},
		{"newline", "ali\nce", false},
		{"invalid utf8", string([]byte{0xff, 0xfe}), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidName(tt.id); got != tt.want {
				t.Errorf("IsValidName(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}
