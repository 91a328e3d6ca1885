package domain

import "time"

// SavedVoice is a voice sample kept in the Voice Store. Remote and local
// fallback records share this shape.
type SavedVoice struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	AudioURL      string    `json:"audio_url"`
	FileSizeBytes int64     `json:"file_size"`
	CreatedAt     time.Time `json:"created_at"`
}

// CloneOutcome is the result of synthesizing text with a saved voice.
type CloneOutcome struct {
	AudioURL              string  `json:"audio_url"`
	DurationSeconds       float64 `json:"duration"`
	ProcessingTimeSeconds float64 `json:"processing_time"`
}
