package model

// IngestJob asks for one staged file to be chunked and indexed.
type IngestJob struct {
	SessionID string `json:"session_id"`
	FileName  string `json:"file_name"`
	Category  string `json:"category,omitempty"`
}
