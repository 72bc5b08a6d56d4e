package models

// Identity is the verified user attached to a connection by the auth layer.
// The zero value means the connection is anonymous.
type Identity struct {
	UserID      string `json:"uid"`
	DisplayName string `json:"displayName"`
}

// IsZero reports whether no identity was verified.
func (i Identity) IsZero() bool {
	return i.UserID == ""
}
