package models

import "time"

// Chat is the durable conversation row. Membership and naming belong to the
// CRUD layer; the relay only touches the LastMessage columns.
type Chat struct {
	ID        string `gorm:"primaryKey;type:text"`
	Name      *string
	IsGroup   bool
	CreatedBy string `gorm:"type:text"`

	// LastMessageText is the text of the most recently committed message.
	LastMessageText *string `gorm:"type:text"`
	// LastMessageAt is when that message was committed.
	LastMessageAt *time.Time

	CreatedAt time.Time
}
