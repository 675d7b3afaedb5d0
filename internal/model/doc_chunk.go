package model

import "time"

// DocChunk is one indexed fragment of an uploaded document.
// Size is the fragment length in bytes and feeds per-file chunk statistics.
type DocChunk struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	SessionID     string    `gorm:"size:36;not null;index:idx_docs_chunks_scope,priority:1" json:"session_id"`
	RelativePath  string    `gorm:"size:512;not null;index:idx_docs_chunks_scope,priority:2" json:"relative_path"`
	Size          int64     `gorm:"not null" json:"size"`
	FileURL       string    `gorm:"size:1024" json:"file_url"`
	ScopedFileURL string    `gorm:"type:text" json:"scoped_file_url"`
	Chunk         string    `gorm:"type:text;not null" json:"chunk"`
	Category      string    `gorm:"size:128" json:"category,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

func (DocChunk) TableName() string {
	return "docs_chunks"
}
