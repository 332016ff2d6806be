package stats

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/trunov/optihub/internal/entities"
)

// CheckpointKey is the blob the running totals live under.
const CheckpointKey = "stats_checkpoint"

type BlobStore interface {
	Load(ctx context.Context, key string, v any) (bool, error)
	Save(ctx context.Context, key string, v any, ttl time.Duration) error
}

type RecordSource interface {
	// OptimizedSince returns all records carrying conversion info with an id
	// strictly greater than afterID, newest id first.
	OptimizedSince(ctx context.Context, afterID int64) ([]entities.OptimizedRecord, error)
}

// StatsView is the formatted stats payload.
type StatsView struct {
	MediaOptimized        string  `json:"media_optimized"`
	Before                string  `json:"before"`
	After                 string  `json:"after"`
	Saved                 string  `json:"saved"`
	PercentageSaved       float64 `json:"percentage_saved"`
	CompressionRatio      float64 `json:"compression_ratio"`
	TotalStorageSaved     string  `json:"total_storage_saved"`
	LastProcessedRecordID int64   `json:"last_processed_record_id"`
}

// Aggregator folds newly optimized records into persisted running totals.
// Only records above the checkpoint's high-water mark are scanned, so the
// cost of a read is bounded by the delta since the previous read, not by the
// size of the whole library.
type Aggregator struct {
	blobs   BlobStore
	records RecordSource
}

func New(blobs BlobStore, records RecordSource) *Aggregator {
	return &Aggregator{
		blobs:   blobs,
		records: records,
	}
}

// GetStats catches the checkpoint up with any records optimized since the
// last call and returns the formatted totals. The checkpoint is written as a
// single document after the fold, so an interrupted scan just rescans the
// same delta next time; the fold is a plain sum, so that rescan converges to
// the same numbers.
func (a *Aggregator) GetStats(ctx context.Context) (StatsView, error) {
	var checkpoint entities.StatsCheckpoint
	if _, err := a.blobs.Load(ctx, CheckpointKey, &checkpoint); err != nil {
		return StatsView{}, fmt.Errorf("load stats checkpoint: %w", err)
	}

	rows, err := a.records.OptimizedSince(ctx, checkpoint.LastProcessedID)
	if err != nil {
		return StatsView{}, fmt.Errorf("scan optimized records: %w", err)
	}

	updated := checkpoint
	for _, row := range rows {
		updated.OptimizedCount++
		updated.TotalOriginalKB += float64(row.OriginalFilesize) / 1024
		updated.TotalOptimizedKB += float64(row.ConvertedFilesize) / 1024
		if row.ID > updated.LastProcessedID {
			updated.LastProcessedID = row.ID
		}
	}

	if updated != checkpoint {
		if err := a.blobs.Save(ctx, CheckpointKey, updated, 0); err != nil {
			return StatsView{}, fmt.Errorf("save stats checkpoint: %w", err)
		}
	}

	return formatView(updated), nil
}

func formatView(cp entities.StatsCheckpoint) StatsView {
	kbBefore := cp.TotalOriginalKB
	kbAfter := cp.TotalOptimizedKB
	kbSaved := math.Max(0, kbBefore-kbAfter)

	bytesBefore := int64(math.Round(kbBefore * 1024))
	bytesAfter := int64(math.Round(kbAfter * 1024))
	bytesSaved := int64(math.Round(kbSaved * 1024))

	var percentageSaved, compressionRatio float64
	if kbBefore > 0 {
		percentageSaved = round1(kbSaved / kbBefore * 100)
		if kbAfter > 0 {
			compressionRatio = round1(kbBefore / kbAfter)
		}
	}

	return StatsView{
		MediaOptimized:        formatCount(cp.OptimizedCount),
		Before:                formatBytes(bytesBefore),
		After:                 formatBytes(bytesAfter),
		Saved:                 formatBytes(bytesSaved),
		PercentageSaved:       percentageSaved,
		CompressionRatio:      compressionRatio,
		TotalStorageSaved:     formatBytes(bytesSaved),
		LastProcessedRecordID: cp.LastProcessedID,
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
