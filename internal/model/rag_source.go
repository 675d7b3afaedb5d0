package model

import "fmt"

// RagSource records that an assistant message cited a document.
type RagSource struct {
	ID             string  `gorm:"primaryKey;size:36" json:"id"`
	MessageID      string  `gorm:"size:36;not null;index" json:"message_id"`
	SessionID      string  `gorm:"size:36;not null;index" json:"session_id"`
	DocumentPath   string  `gorm:"size:512;not null" json:"document_path"`
	RelevanceScore float64 `gorm:"not null" json:"relevance_score"`
}

func (RagSource) TableName() string {
	return "rag_sources"
}

func (s RagSource) Validate() error {
	if s.RelevanceScore < 0 || s.RelevanceScore > 1 {
		return fmt.Errorf("relevance score %v outside [0,1]", s.RelevanceScore)
	}
	return nil
}
