package entities

import "time"

type MediaRecord struct {
	ID               int64          `json:"id"`
	UserID           int64          `json:"user_id"`
	Filename         string         `json:"filename"`
	Description      *string        `json:"description,omitempty"`
	Key              string         `json:"key"`
	MimeType         string         `json:"mime_type"`
	Size             int64          `json:"size"`
	Metadata         RecordMetadata `json:"metadata"`
	IsDeleted        bool           `json:"is_deleted"`
	CreatedTimestamp time.Time      `json:"created_timestamp"`
	UpdatedTimestamp time.Time      `json:"updated_timestamp"`
}

// RecordMetadata is the whole metadata document of a record. Rendition
// regeneration replaces the entire document, so anything that has to survive a
// regeneration (the cimo sub-document) must be carried over explicitly.
type RecordMetadata struct {
	Width      int                  `json:"width,omitempty"`
	Height     int                  `json:"height,omitempty"`
	Renditions map[string]Rendition `json:"renditions,omitempty"`
	Cimo       *ConversionInfo      `json:"cimo,omitempty"`
}

// Rendition is a derived variant of the original upload (thumbnail, webp).
type Rendition struct {
	Key      string `json:"key"`
	MimeType string `json:"mime_type"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
	Size     int64  `json:"size"`
}
