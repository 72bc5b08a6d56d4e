package models

import "time"

// ReadReceipt records that a user has read a message. The (message, user)
// pair is unique, so repeated receipts collapse into one row.
type ReadReceipt struct {
	ID        uint      `gorm:"primaryKey"`
	MessageID uint      `gorm:"not null;uniqueIndex:ux_read_msg_user,priority:1"`
	UserID    string    `gorm:"type:text;not null;uniqueIndex:ux_read_msg_user,priority:2"`
	ReadAt    time.Time `gorm:"autoCreateTime"`
}

// AnalysisResult is the latest AI analysis of a room.
type AnalysisResult struct {
	RoomID       string    `gorm:"primaryKey;type:text" json:"roomId"`
	AnalysisText string    `gorm:"type:text;not null" json:"analysis"`
	ProducedAt   time.Time `gorm:"not null" json:"producedAt"`
}

// TableName keeps one table per concept rather than gorm's pluralized default.
func (AnalysisResult) TableName() string { return "room_analyses" }

// IsStale reports whether the analysis is older than maxAge at now.
// A non-positive maxAge means analyses never go stale.
func (a *AnalysisResult) IsStale(now time.Time, maxAge time.Duration) bool {
	if a == nil {
		return true
	}
	if maxAge <= 0 {
		return false
	}
	return now.Sub(a.ProducedAt) > maxAge
}
