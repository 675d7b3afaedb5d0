package model

import "time"

// StageFile mirrors one object in a session's stage namespace.
type StageFile struct {
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	MD5          string    `json:"md5,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

type StageStats struct {
	TotalFiles  int     `json:"total_files"`
	TotalBytes  int64   `json:"total_bytes"`
	AverageSize float64 `json:"average_size"`
}
