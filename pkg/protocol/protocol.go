// Package protocol defines the JSON wire envelope exchanged between chat
// clients and the server, plus the enumerated message kinds and presence
// statuses carried end-to-end.
package protocol

import (
	"encoding/json"
)

// Subprotocol is the WebSocket subprotocol identifier negotiated during the
// upgrade handshake. Existing clients offer exactly this token.
const Subprotocol = "chat-protocol"

// SenderServer is the sender field on every server-originated frame.
const SenderServer = "server"

// TimeLayout renders timestamps at second precision in local time, the
// format existing clients parse.
const TimeLayout = "2006-01-02T15:04:05"

// Client-to-server message kinds.
const (
	KindRegister     = "register"
	KindBroadcast    = "broadcast"
	KindPrivate      = "private"
	KindListUsers    = "list_users"
	KindUserInfo     = "user_info"
	KindChangeStatus = "change_status"
	KindDisconnect   = "disconnect"
)

// Server-to-client message kinds. KindBroadcast and KindPrivate appear in
// both directions.
const (
	KindRegisterSuccess   = "register_success"
	KindListUsersResponse = "list_users_response"
	KindUserInfoResponse  = "user_info_response"
	KindStatusUpdate      = "status_update"
	KindUserDisconnected  = "user_disconnected"
	KindError             = "error"
)

// Presence statuses. The Spanish literals are the canonical wire values and
// must be preserved bit-exact for compatibility with deployed clients.
const (
	StatusActive   = "ACTIVO"
	StatusBusy     = "OCUPADO"
	StatusInactive = "INACTIVO"
)

// Error texts carried in the content of error frames. Clients display and
// match on these exact strings.
const (
	ErrTextNameTaken         = "Nombre de usuario en uso"
	ErrTextUserNotFound      = "Usuario no encontrado"
	ErrTextInvalidName       = "Nombre de usuario inválido"
	ErrTextNotRegistered     = "No registrado"
	ErrTextAlreadyRegistered = "Ya registrado"
	ErrTextUnknownCommand    = "Comando desconocido"
	ErrTextInvalidStatus     = "Estado inválido"
	ErrTextBinaryFrame       = "mensaje binario no soportado"
)

// Server notice texts.
const (
	NoticeNewUser     = "Nuevo usuario conectado"
	NoticeUserLeftFmt = "%s ha salido"
)

// Request is a decoded client frame. Content stays raw because its shape
// depends on Type; use Text for the string-payload kinds.
type Request struct {
	Type      string          `json:"type"`
	Sender    string          `json:"sender"`
	Target    string          `json:"target,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

// Text returns the content payload as plain text. Absent content and
// non-string content both yield "".
func (r *Request) Text() string {
	if len(r.Content) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(r.Content, &s); err != nil {
		return ""
	}
	return s
}

// Response is a server frame before serialization. Content takes whatever
// shape the kind calls for: a string, a name list, or one of the payload
// structs below.
type Response struct {
	Type      string `json:"type"`
	Sender    string `json:"sender"`
	Target    string `json:"target,omitempty"`
	Content   any    `json:"content"`
	Timestamp string `json:"timestamp"`
}

// StatusChange is the content of a status_update frame.
type StatusChange struct {
	User   string `json:"user"`
	Status string `json:"status"`
}

// UserInfo is the content of a user_info_response frame for a known target.
type UserInfo struct {
	IP     string `json:"ip"`
	Status string `json:"status"`
}
