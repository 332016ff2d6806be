package reconcile

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/trunov/optihub/internal/entities"
)

// QueueKey is the blob the pending metadata queue lives under.
const QueueKey = "pending_metadata_queue"

type BlobStore interface {
	Update(ctx context.Context, key string, ttl time.Duration, fn func(raw []byte) (next any, write bool, err error)) error
}

type MetadataStore interface {
	GetMetadata(ctx context.Context, recordID int64) (entities.RecordMetadata, bool, error)
	UpdateMetadata(ctx context.Context, recordID int64, meta entities.RecordMetadata) error
}

// Engine buffers conversion metadata reported before its media record exists
// and attaches it once the record shows up. Clients convert in the browser
// and report metadata while the upload is still in flight, so the two events
// arrive in either order.
type Engine struct {
	blobs    BlobStore
	records  MetadataStore
	queueTTL time.Duration
}

func New(blobs BlobStore, records MetadataStore, queueTTL time.Duration) *Engine {
	return &Engine{
		blobs:    blobs,
		records:  records,
		queueTTL: queueTTL,
	}
}

// Enqueue sanitizes the entries and appends them to the pending queue.
// Duplicate filenames are kept; a match later consumes exactly one entry, so
// resubmitting a batch is safe. Returns the queue length after the append.
func (e *Engine) Enqueue(ctx context.Context, entries []entities.PendingEntry) (int, error) {
	sanitized := make([]entities.PendingEntry, 0, len(entries))
	for _, entry := range entries {
		sanitized = append(sanitized, sanitizeEntry(entry))
	}

	var total int
	err := e.blobs.Update(ctx, QueueKey, e.queueTTL, func(raw []byte) (any, bool, error) {
		queue := decodeQueue(raw)
		queue = append(queue, sanitized...)
		total = len(queue)
		return queue, true, nil
	})
	if err != nil {
		return 0, fmt.Errorf("enqueue pending metadata: %w", err)
	}
	return total, nil
}

// OnRecordCreated tries to match a pending entry to a freshly created record.
// The oldest matching entry is spliced out of the queue and written onto the
// record metadata under the cimo key. Records without a pending entry are a
// normal case and return false.
func (e *Engine) OnRecordCreated(ctx context.Context, recordID int64, filename string) (bool, error) {
	base, ext := splitName(filename)

	var matched *entities.PendingEntry
	err := e.blobs.Update(ctx, QueueKey, e.queueTTL, func(raw []byte) (any, bool, error) {
		matched = nil
		queue := decodeQueue(raw)
		for i, item := range queue {
			itemBase, itemExt := splitName(item.Filename)
			if matches(base, ext, itemBase, itemExt) {
				entry := item
				matched = &entry
				queue = append(queue[:i], queue[i+1:]...)
				return queue, true, nil
			}
		}
		return nil, false, nil
	})
	if err != nil {
		return false, fmt.Errorf("consume pending metadata: %w", err)
	}
	if matched == nil {
		return false, nil
	}

	meta, _, err := e.records.GetMetadata(ctx, recordID)
	if err != nil {
		return false, fmt.Errorf("load metadata for record %d: %w", recordID, err)
	}
	info := matched.Info()
	meta.Cimo = &info
	if err := e.records.UpdateMetadata(ctx, recordID, meta); err != nil {
		return false, fmt.Errorf("attach conversion info to record %d: %w", recordID, err)
	}
	return true, nil
}

// OnMetadataUpdating must be called before any whole-document metadata
// overwrite (rendition regeneration rebuilds the document from scratch). If
// the persisted document carries conversion info, it is copied into the
// incoming document so an unrelated overwrite cannot lose it.
func (e *Engine) OnMetadataUpdating(ctx context.Context, recordID int64, incoming entities.RecordMetadata) (entities.RecordMetadata, error) {
	existing, found, err := e.records.GetMetadata(ctx, recordID)
	if err != nil {
		return incoming, fmt.Errorf("load metadata for record %d: %w", recordID, err)
	}
	if found && existing.Cimo != nil {
		incoming.Cimo = existing.Cimo
	}
	return incoming, nil
}

// decodeQueue tolerates a missing or corrupt blob by starting over empty.
func decodeQueue(raw []byte) []entities.PendingEntry {
	if len(raw) == 0 {
		return nil
	}
	var queue []entities.PendingEntry
	if err := json.Unmarshal(raw, &queue); err != nil {
		return nil
	}
	return queue
}
