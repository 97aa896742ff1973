package session

import "time"

// Session binds an opaque token to a logged-in user. Sessions are created by
// the login flow and never mutated afterwards, only deleted.
type Session struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

// User is the snapshot of the logged-in user returned by the backend at
// login time. Field names follow the backend's wire format.
type User struct {
	ID         string `json:"id"`
	NIK        string `json:"nik"`
	Name       string `json:"name,omitempty"`
	HakAksesID string `json:"hakAksesId,omitempty"`
}
