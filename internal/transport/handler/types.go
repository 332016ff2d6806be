package handler

import "github.com/trunov/optihub/internal/entities"

type UploadMediaParams struct {
	Description string `validate:"omitempty,max=255"` // media_records.description

	// Auth
	UserID int64 `validate:"required"`
}

// ingestRequest is the conversion metadata batch posted by the client-side
// optimizer. Decoding is strict: any key outside this shape rejects the whole
// request before it reaches the reconciliation engine.
type ingestRequest struct {
	Metadata []ingestEntry `json:"metadata" validate:"required,min=1,dive"`
}

type ingestEntry struct {
	Filename           string  `json:"filename" validate:"required"`
	OriginalFormat     string  `json:"originalFormat"`
	OriginalFilesize   int64   `json:"originalFilesize"`
	ConvertedFormat    string  `json:"convertedFormat"`
	ConvertedFilesize  int64   `json:"convertedFilesize"`
	ConversionTime     float64 `json:"conversionTime"`
	CompressionSavings float64 `json:"compressionSavings"`
}

func (e ingestEntry) toEntry() entities.PendingEntry {
	return entities.PendingEntry{
		Filename:           e.Filename,
		OriginalFormat:     e.OriginalFormat,
		OriginalFilesize:   e.OriginalFilesize,
		ConvertedFormat:    e.ConvertedFormat,
		ConvertedFilesize:  e.ConvertedFilesize,
		ConversionTime:     e.ConversionTime,
		CompressionSavings: e.CompressionSavings,
	}
}

type ingestResponse struct {
	Success     bool `json:"success"`
	QueuedCount int  `json:"queued_count"`
}

type uploadResponse struct {
	entities.MediaRecord
	Optimized bool `json:"optimized"`
}
