package audit

import "time"

// Kind は監査イベントの種別を表します。
type Kind string

const (
	KindLogin    Kind = "login"
	KindRegister Kind = "register"
	KindLogout   Kind = "logout"
)

// Event は1件の監査イベントです。
type Event struct {
	Kind     Kind      `json:"kind"`
	Success  bool      `json:"success"`
	Username string    `json:"username,omitempty"`
	Role     string    `json:"role,omitempty"`
	Method   string    `json:"method,omitempty"`
	ClientIP string    `json:"clientIp,omitempty"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}
