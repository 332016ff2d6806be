package entities

// PendingEntry is client-reported optimization metadata waiting for the media
// record it belongs to. Filename is the matching key; everything else is
// pass-through data from the client-side converter.
type PendingEntry struct {
	Filename           string  `json:"filename"`
	OriginalFormat     string  `json:"originalFormat,omitempty"`
	OriginalFilesize   int64   `json:"originalFilesize,omitempty"`
	ConvertedFormat    string  `json:"convertedFormat,omitempty"`
	ConvertedFilesize  int64   `json:"convertedFilesize,omitempty"`
	ConversionTime     float64 `json:"conversionTime,omitempty"`
	CompressionSavings float64 `json:"compressionSavings,omitempty"`
}

// ConversionInfo is a matched PendingEntry with the filename stripped, stored
// under the record metadata's "cimo" key.
type ConversionInfo struct {
	OriginalFormat     string  `json:"originalFormat,omitempty"`
	OriginalFilesize   int64   `json:"originalFilesize,omitempty"`
	ConvertedFormat    string  `json:"convertedFormat,omitempty"`
	ConvertedFilesize  int64   `json:"convertedFilesize,omitempty"`
	ConversionTime     float64 `json:"conversionTime,omitempty"`
	CompressionSavings float64 `json:"compressionSavings,omitempty"`
}

// Info returns the entry without its filename.
func (e PendingEntry) Info() ConversionInfo {
	return ConversionInfo{
		OriginalFormat:     e.OriginalFormat,
		OriginalFilesize:   e.OriginalFilesize,
		ConvertedFormat:    e.ConvertedFormat,
		ConvertedFilesize:  e.ConvertedFilesize,
		ConversionTime:     e.ConversionTime,
		CompressionSavings: e.CompressionSavings,
	}
}

// OptimizedRecord is the projection of a media record the stats fold needs:
// its id and the two sizes out of the cimo sub-document.
type OptimizedRecord struct {
	ID                int64
	OriginalFilesize  int64
	ConvertedFilesize int64
}

// StatsCheckpoint carries the running optimization totals and the high-water
// mark of record ids already folded in. Totals are kept in KB.
type StatsCheckpoint struct {
	LastProcessedID  int64   `json:"last_processed_record_id"`
	OptimizedCount   int64   `json:"media_optimized_num"`
	TotalOriginalKB  float64 `json:"total_original_size"`
	TotalOptimizedKB float64 `json:"total_optimized_size"`
}
