package reconcile

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trunov/optihub/internal/entities"
)

type memBlobs struct {
	blobs map[string][]byte
	ttls  map[string]time.Duration
}

func newMemBlobs() *memBlobs {
	return &memBlobs{
		blobs: map[string][]byte{},
		ttls:  map[string]time.Duration{},
	}
}

func (m *memBlobs) Update(_ context.Context, key string, ttl time.Duration, fn func(raw []byte) (any, bool, error)) error {
	next, write, err := fn(m.blobs[key])
	if err != nil {
		return err
	}
	if write {
		raw, err := json.Marshal(next)
		if err != nil {
			return err
		}
		m.blobs[key] = raw
		m.ttls[key] = ttl
	}
	return nil
}

func (m *memBlobs) queue(t *testing.T) []entities.PendingEntry {
	t.Helper()
	raw, ok := m.blobs[QueueKey]
	if !ok {
		return nil
	}
	var q []entities.PendingEntry
	require.NoError(t, json.Unmarshal(raw, &q))
	return q
}

func (m *memBlobs) expire(key string) {
	delete(m.blobs, key)
	delete(m.ttls, key)
}

type memRecords struct {
	metas map[int64]entities.RecordMetadata
}

func newMemRecords() *memRecords {
	return &memRecords{metas: map[int64]entities.RecordMetadata{}}
}

func (m *memRecords) GetMetadata(_ context.Context, recordID int64) (entities.RecordMetadata, bool, error) {
	meta, ok := m.metas[recordID]
	return meta, ok, nil
}

func (m *memRecords) UpdateMetadata(_ context.Context, recordID int64, meta entities.RecordMetadata) error {
	m.metas[recordID] = meta
	return nil
}

func newTestEngine() (*Engine, *memBlobs, *memRecords) {
	blobs := newMemBlobs()
	records := newMemRecords()
	return New(blobs, records, time.Hour), blobs, records
}

func TestEnqueueReturnsQueueLength(t *testing.T) {
	engine, _, _ := newTestEngine()
	ctx := context.Background()

	count, err := engine.Enqueue(ctx, []entities.PendingEntry{{Filename: "cat.jpg"}})
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = engine.Enqueue(ctx, []entities.PendingEntry{{Filename: "dog.png"}, {Filename: "bird.webp"}})
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestEnqueueKeepsDuplicates(t *testing.T) {
	// Re-submission safety lives on the consumer side: a match removes one
	// entry, so the producer never deduplicates.
	engine, blobs, _ := newTestEngine()
	ctx := context.Background()

	entry := entities.PendingEntry{Filename: "cat.jpg", OriginalFilesize: 100}
	_, err := engine.Enqueue(ctx, []entities.PendingEntry{entry})
	require.NoError(t, err)
	count, err := engine.Enqueue(ctx, []entities.PendingEntry{entry})
	require.NoError(t, err)

	assert.Equal(t, 2, count)
	assert.Len(t, blobs.queue(t), 2)
}

func TestEnqueueSanitizes(t *testing.T) {
	engine, blobs, _ := newTestEngine()

	_, err := engine.Enqueue(context.Background(), []entities.PendingEntry{{
		Filename:          " my cat.jpg ",
		OriginalFormat:    " image/png ",
		OriginalFilesize:  -5,
		ConvertedFilesize: 10,
	}})
	require.NoError(t, err)

	q := blobs.queue(t)
	require.Len(t, q, 1)
	assert.Equal(t, "my-cat.jpg", q[0].Filename)
	assert.Equal(t, "image/png", q[0].OriginalFormat)
	assert.Equal(t, int64(0), q[0].OriginalFilesize)
	assert.Equal(t, int64(10), q[0].ConvertedFilesize)
}

func TestEnqueueRefreshesExpiry(t *testing.T) {
	engine, blobs, _ := newTestEngine()
	ctx := context.Background()

	_, err := engine.Enqueue(ctx, []entities.PendingEntry{{Filename: "cat.jpg"}})
	require.NoError(t, err)
	assert.Equal(t, time.Hour, blobs.ttls[QueueKey])

	// The window counts from the latest write, not per entry.
	_, err = engine.Enqueue(ctx, []entities.PendingEntry{{Filename: "dog.jpg"}})
	require.NoError(t, err)
	assert.Equal(t, time.Hour, blobs.ttls[QueueKey])
}

func TestOnRecordCreatedAttachesMatch(t *testing.T) {
	engine, blobs, records := newTestEngine()
	ctx := context.Background()

	_, err := engine.Enqueue(ctx, []entities.PendingEntry{{
		Filename:          "cat.jpg",
		OriginalFilesize:  200000,
		ConvertedFilesize: 50000,
	}})
	require.NoError(t, err)
	records.metas[7] = entities.RecordMetadata{Width: 800, Height: 600}

	matched, err := engine.OnRecordCreated(ctx, 7, "cat.jpg")
	require.NoError(t, err)
	assert.True(t, matched)

	assert.Empty(t, blobs.queue(t))

	meta := records.metas[7]
	require.NotNil(t, meta.Cimo)
	assert.Equal(t, int64(200000), meta.Cimo.OriginalFilesize)
	assert.Equal(t, int64(50000), meta.Cimo.ConvertedFilesize)
	// The rest of the document stays intact.
	assert.Equal(t, 800, meta.Width)
}

func TestSpacedReportMatchesSanitizedRecord(t *testing.T) {
	engine, blobs, records := newTestEngine()
	ctx := context.Background()

	_, err := engine.Enqueue(ctx, []entities.PendingEntry{{
		Filename:         "my cat.jpg",
		OriginalFilesize: 100,
	}})
	require.NoError(t, err)
	records.metas[3] = entities.RecordMetadata{}

	// The upload side runs the same SanitizeFilename, so the record arrives
	// under the dashed name the entry was queued as.
	matched, err := engine.OnRecordCreated(ctx, 3, SanitizeFilename("my cat.jpg"))
	require.NoError(t, err)
	assert.True(t, matched)
	assert.Empty(t, blobs.queue(t))
}

func TestOnRecordCreatedDedupSuffix(t *testing.T) {
	engine, _, records := newTestEngine()
	ctx := context.Background()

	_, err := engine.Enqueue(ctx, []entities.PendingEntry{{Filename: "cat.jpg", OriginalFilesize: 1}})
	require.NoError(t, err)

	// Storage renamed the colliding upload to cat-1.jpg.
	matched, err := engine.OnRecordCreated(ctx, 3, "cat-1.jpg")
	require.NoError(t, err)
	assert.True(t, matched)
	assert.NotNil(t, records.metas[3].Cimo)
}

func TestOnRecordCreatedNoMatch(t *testing.T) {
	engine, blobs, records := newTestEngine()
	ctx := context.Background()

	_, err := engine.Enqueue(ctx, []entities.PendingEntry{{Filename: "cat.jpg"}})
	require.NoError(t, err)

	matched, err := engine.OnRecordCreated(ctx, 9, "dog.jpg")
	require.NoError(t, err)
	assert.False(t, matched)

	// Queue untouched, record untouched.
	assert.Len(t, blobs.queue(t), 1)
	assert.Empty(t, records.metas)
}

func TestOnRecordCreatedConsumesOldestFirst(t *testing.T) {
	engine, blobs, records := newTestEngine()
	ctx := context.Background()

	_, err := engine.Enqueue(ctx, []entities.PendingEntry{
		{Filename: "cat.jpg", OriginalFilesize: 111},
		{Filename: "cat.jpg", OriginalFilesize: 222},
	})
	require.NoError(t, err)

	matched, err := engine.OnRecordCreated(ctx, 1, "cat.jpg")
	require.NoError(t, err)
	require.True(t, matched)
	assert.Equal(t, int64(111), records.metas[1].Cimo.OriginalFilesize)

	matched, err = engine.OnRecordCreated(ctx, 2, "cat-1.jpg")
	require.NoError(t, err)
	require.True(t, matched)
	assert.Equal(t, int64(222), records.metas[2].Cimo.OriginalFilesize)

	assert.Empty(t, blobs.queue(t))
}

func TestExpiredQueueReadsAsEmpty(t *testing.T) {
	engine, blobs, _ := newTestEngine()
	ctx := context.Background()

	_, err := engine.Enqueue(ctx, []entities.PendingEntry{{Filename: "cat.jpg"}})
	require.NoError(t, err)

	blobs.expire(QueueKey)

	matched, err := engine.OnRecordCreated(ctx, 1, "cat.jpg")
	require.NoError(t, err)
	assert.False(t, matched)
}

func TestCorruptQueueStartsOver(t *testing.T) {
	engine, blobs, _ := newTestEngine()
	blobs.blobs[QueueKey] = []byte("not json")

	count, err := engine.Enqueue(context.Background(), []entities.PendingEntry{{Filename: "cat.jpg"}})
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestOnMetadataUpdatingPreservesConversionInfo(t *testing.T) {
	engine, _, records := newTestEngine()
	ctx := context.Background()

	records.metas[5] = entities.RecordMetadata{
		Cimo: &entities.ConversionInfo{OriginalFilesize: 200000, ConvertedFilesize: 50000},
	}

	// A rendition rebuild proposes a document without the cimo key.
	incoming := entities.RecordMetadata{
		Width:  1024,
		Height: 768,
		Renditions: map[string]entities.Rendition{
			"webp": {Key: "media/cat.jpg.webp", MimeType: "image/webp"},
		},
	}

	out, err := engine.OnMetadataUpdating(ctx, 5, incoming)
	require.NoError(t, err)
	require.NotNil(t, out.Cimo)
	assert.Equal(t, int64(200000), out.Cimo.OriginalFilesize)
	assert.Equal(t, 1024, out.Width)
	assert.Contains(t, out.Renditions, "webp")
}

func TestOnMetadataUpdatingWithoutExistingInfo(t *testing.T) {
	engine, _, _ := newTestEngine()

	incoming := entities.RecordMetadata{Width: 10}
	out, err := engine.OnMetadataUpdating(context.Background(), 404, incoming)
	require.NoError(t, err)
	assert.Equal(t, incoming, out)
}
