package repository

import (
	"context"

	"gorm.io/gorm"
)

// Stores bundles every repository over one handle so a unit of work can be
// rebound to a transaction in one step.
type Stores struct {
	db       *gorm.DB
	Sessions *SessionRepository
	Messages *MessageRepository
	Files    *SessionFileRepository
	Chunks   *ChunkRepository
	Sources  *RagSourceRepository
}

func NewStores(db *gorm.DB) *Stores {
	return &Stores{
		db:       db,
		Sessions: NewSessionRepository(db),
		Messages: NewMessageRepository(db),
		Files:    NewSessionFileRepository(db),
		Chunks:   NewChunkRepository(db),
		Sources:  NewRagSourceRepository(db),
	}
}

// Transaction runs fn with repositories bound to a single transaction. Only
// the stores passed to fn may be used inside it.
func (s *Stores) Transaction(ctx context.Context, fn func(tx *Stores) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStores(tx))
	})
}
