package model

import "time"

// SessionFile links an uploaded file to the session whose retrieval scope it joins.
type SessionFile struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	SessionID string    `gorm:"size:36;not null;uniqueIndex:uk_session_file,priority:1" json:"session_id"`
	FilePath  string    `gorm:"size:512;not null;uniqueIndex:uk_session_file,priority:2" json:"file_path"`
	CreatedAt time.Time `json:"created_at"`
}

func (SessionFile) TableName() string {
	return "session_files"
}
