package model

import "time"

type ChatSession struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Title     string    `gorm:"size:256;not null" json:"title"`
	Category  *string   `gorm:"size:128" json:"category,omitempty"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;index" json:"updated_at"`
	IsActive  bool      `gorm:"not null;default:true;index" json:"is_active"`
}

func (ChatSession) TableName() string {
	return "chat_sessions"
}
