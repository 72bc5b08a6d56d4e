package models

import "time"

// Message is a committed chat message.
// ID is assigned by the database at insert time and is the only authoritative
// identifier; a client-side provisional id never reaches this struct.
type Message struct {
	// ID is the auto-increment primary key and reflects commit order within a chat.
	ID uint `gorm:"primaryKey" json:"id"`
	// ChatID is the room the message belongs to.
	ChatID string `gorm:"type:text;not null;index:idx_chat_msg,priority:1" json:"chatId"`
	// SenderID is the verified user id, or config.AISenderID for assistant replies.
	SenderID string `gorm:"type:text;not null" json:"senderId"`
	// SenderName is denormalized so history reads need no user join.
	SenderName string `gorm:"type:text;not null" json:"senderName"`
	Text       string `gorm:"type:text;not null" json:"text"`
	// FileURL and FileType describe an optional attachment (AI-generated documents).
	FileURL  *string `gorm:"type:text" json:"fileUrl,omitempty"`
	FileType *string `gorm:"type:text" json:"fileType,omitempty"`
	// Timestamp is set by gorm when the row is created.
	Timestamp time.Time `gorm:"autoCreateTime;index:idx_chat_msg,priority:2" json:"timestamp"`
}

// HistoryOrder selects how FetchHistory orders its bounded window.
type HistoryOrder int

const (
	// OrderOldestFirst yields the most recent messages in ascending commit order.
	OrderOldestFirst HistoryOrder = iota
	// OrderNewestFirst yields the most recent messages in descending commit order.
	OrderNewestFirst
)

// ParseHistoryOrder maps the query-string form ("asc"/"desc") to a HistoryOrder.
func ParseHistoryOrder(s string) (HistoryOrder, bool) {
	switch s {
	case "", "asc", "oldest":
		return OrderOldestFirst, true
	case "desc", "newest":
		return OrderNewestFirst, true
	}
	return OrderOldestFirst, false
}
