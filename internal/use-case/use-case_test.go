package use_case

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trunov/optihub/internal/entities"
	"github.com/trunov/optihub/internal/queue"
	"github.com/trunov/optihub/internal/repository/storage"
	"github.com/trunov/optihub/internal/transport/handler"
)

type fakeStorage struct {
	nextID  int64
	records map[int64]entities.MediaRecord
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{records: map[int64]entities.MediaRecord{}}
}

func (f *fakeStorage) InsertRecord(_ context.Context, rec entities.MediaRecord) (entities.MediaRecord, error) {
	f.nextID++
	rec.ID = f.nextID
	f.records[rec.ID] = rec
	return rec, nil
}

func (f *fakeStorage) GetByID(_ context.Context, id int64) (entities.MediaRecord, error) {
	rec, ok := f.records[id]
	if !ok {
		return entities.MediaRecord{}, storage.ErrRecordNotFound
	}
	return rec, nil
}

func (f *fakeStorage) FilenameExists(_ context.Context, filename string) (bool, error) {
	for _, rec := range f.records {
		if rec.Filename == filename {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStorage) UpdateMetadata(_ context.Context, recordID int64, meta entities.RecordMetadata) error {
	rec, ok := f.records[recordID]
	if !ok {
		return storage.ErrRecordNotFound
	}
	rec.Metadata = meta
	f.records[recordID] = rec
	return nil
}

func (f *fakeStorage) Ping(context.Context) error { return nil }

type fakeReconciler struct {
	storage     *fakeStorage
	matchOn     string
	info        entities.ConversionInfo
	createdWith []string
}

func (f *fakeReconciler) Enqueue(_ context.Context, entries []entities.PendingEntry) (int, error) {
	return len(entries), nil
}

func (f *fakeReconciler) OnRecordCreated(ctx context.Context, recordID int64, filename string) (bool, error) {
	f.createdWith = append(f.createdWith, filename)
	if filename != f.matchOn {
		return false, nil
	}
	rec, err := f.storage.GetByID(ctx, recordID)
	if err != nil {
		return false, err
	}
	meta := rec.Metadata
	info := f.info
	meta.Cimo = &info
	return true, f.storage.UpdateMetadata(ctx, recordID, meta)
}

func (f *fakeReconciler) OnMetadataUpdating(ctx context.Context, recordID int64, incoming entities.RecordMetadata) (entities.RecordMetadata, error) {
	rec, err := f.storage.GetByID(ctx, recordID)
	if err == nil && rec.Metadata.Cimo != nil {
		incoming.Cimo = rec.Metadata.Cimo
	}
	return incoming, nil
}

type fakeObjects struct {
	uploads map[string][]byte
}

func (f *fakeObjects) UploadWithHook(_ context.Context, key, _ string, payload []byte, onSuccess func()) error {
	if f.uploads == nil {
		f.uploads = map[string][]byte{}
	}
	f.uploads[key] = payload
	// Uploads here land synchronously.
	if onSuccess != nil {
		onSuccess()
	}
	return nil
}

type fakeQueue struct {
	jobs []queue.RenditionJob
}

func (f *fakeQueue) EnqueueRendition(_ context.Context, job queue.RenditionJob) error {
	f.jobs = append(f.jobs, job)
	return nil
}

func TestUploadMediaMatchesPendingMetadata(t *testing.T) {
	st := newFakeStorage()
	rec := &fakeReconciler{
		storage: st,
		matchOn: "cat.png",
		info:    entities.ConversionInfo{OriginalFilesize: 200000, ConvertedFilesize: 50000},
	}
	objects := &fakeObjects{}
	uc := New(st, rec, objects, &fakeQueue{})

	got, optimized, err := uc.UploadMedia(context.Background(), []byte("data"), "cat.png", ".png", "application/octet-stream", handler.UploadMediaParams{UserID: 1})
	require.NoError(t, err)

	assert.True(t, optimized)
	require.NotNil(t, got.Metadata.Cimo)
	assert.Equal(t, int64(200000), got.Metadata.Cimo.OriginalFilesize)
	assert.Contains(t, objects.uploads, "media/cat.png")
}

func TestUploadMediaWithoutPendingMetadata(t *testing.T) {
	st := newFakeStorage()
	rec := &fakeReconciler{storage: st}
	uc := New(st, rec, &fakeObjects{}, &fakeQueue{})

	got, optimized, err := uc.UploadMedia(context.Background(), []byte("data"), "dog.png", ".png", "application/octet-stream", handler.UploadMediaParams{UserID: 1})
	require.NoError(t, err)

	assert.False(t, optimized)
	assert.Nil(t, got.Metadata.Cimo)
}

func TestUploadMediaDedupsFilenames(t *testing.T) {
	st := newFakeStorage()
	rec := &fakeReconciler{storage: st}
	uc := New(st, rec, &fakeObjects{}, &fakeQueue{})
	ctx := context.Background()

	first, _, err := uc.UploadMedia(ctx, []byte("a"), "cat.png", ".png", "application/octet-stream", handler.UploadMediaParams{UserID: 1})
	require.NoError(t, err)
	second, _, err := uc.UploadMedia(ctx, []byte("b"), "cat.png", ".png", "application/octet-stream", handler.UploadMediaParams{UserID: 1})
	require.NoError(t, err)
	third, _, err := uc.UploadMedia(ctx, []byte("c"), "cat.png", ".png", "application/octet-stream", handler.UploadMediaParams{UserID: 1})
	require.NoError(t, err)

	assert.Equal(t, "cat.png", first.Filename)
	assert.Equal(t, "cat-1.png", second.Filename)
	assert.Equal(t, "cat-2.png", third.Filename)

	// The matcher saw the deduped names, so suffixed records can still claim
	// their pending entries.
	assert.Equal(t, []string{"cat.png", "cat-1.png", "cat-2.png"}, rec.createdWith)
}

func TestUploadMediaSanitizesSpacedFilenames(t *testing.T) {
	st := newFakeStorage()
	rec := &fakeReconciler{
		storage: st,
		matchOn: "my-cat.jpg",
		info:    entities.ConversionInfo{OriginalFilesize: 100},
	}
	uc := New(st, rec, &fakeObjects{}, &fakeQueue{})

	got, optimized, err := uc.UploadMedia(context.Background(), []byte("a"), "my cat.jpg", ".jpg", "application/octet-stream", handler.UploadMediaParams{UserID: 1})
	require.NoError(t, err)

	// The queue stored the entry under the sanitized name, so the record must
	// be created under it too or the match is lost.
	assert.Equal(t, "my-cat.jpg", got.Filename)
	assert.True(t, optimized)
	assert.Equal(t, []string{"my-cat.jpg"}, rec.createdWith)
}

func TestUploadMediaStripsClientPath(t *testing.T) {
	st := newFakeStorage()
	uc := New(st, &fakeReconciler{storage: st}, &fakeObjects{}, &fakeQueue{})

	got, _, err := uc.UploadMedia(context.Background(), []byte("a"), `C:\Users\me\cat.png`, ".png", "application/octet-stream", handler.UploadMediaParams{UserID: 1})
	require.NoError(t, err)
	assert.Equal(t, "cat.png", got.Filename)
}

func TestApplyRenditionsKeepsConversionInfo(t *testing.T) {
	st := newFakeStorage()
	rec := &fakeReconciler{storage: st}
	uc := New(st, rec, &fakeObjects{}, &fakeQueue{})
	ctx := context.Background()

	stored, err := st.InsertRecord(ctx, entities.MediaRecord{
		Filename: "cat.png",
		Metadata: entities.RecordMetadata{
			Cimo: &entities.ConversionInfo{OriginalFilesize: 9000},
		},
	})
	require.NoError(t, err)

	err = uc.ApplyRenditions(ctx, stored.ID, 640, 480, map[string]entities.Rendition{
		"webp": {Key: "media/cat.png.webp", MimeType: "image/webp"},
	})
	require.NoError(t, err)

	updated, err := st.GetByID(ctx, stored.ID)
	require.NoError(t, err)
	assert.Equal(t, 640, updated.Metadata.Width)
	assert.Contains(t, updated.Metadata.Renditions, "webp")
	require.NotNil(t, updated.Metadata.Cimo)
	assert.Equal(t, int64(9000), updated.Metadata.Cimo.OriginalFilesize)
}

func TestUploadMediaQueuesRenditionJobForImages(t *testing.T) {
	st := newFakeStorage()
	wq := &fakeQueue{}
	uc := New(st, &fakeReconciler{storage: st}, &fakeObjects{}, wq)

	got, _, err := uc.UploadMedia(context.Background(), []byte("img"), "cat.PNG", ".PNG", "image/png", handler.UploadMediaParams{UserID: 1})
	require.NoError(t, err)

	require.Len(t, wq.jobs, 1)
	assert.Equal(t, got.ID, wq.jobs[0].RecordID)
	assert.Equal(t, "media/cat.PNG", wq.jobs[0].ObjectKey)
	assert.Equal(t, ".png", wq.jobs[0].Ext)
}

func TestRegenerateRenditionsRejectsNonImages(t *testing.T) {
	st := newFakeStorage()
	uc := New(st, &fakeReconciler{storage: st}, &fakeObjects{}, &fakeQueue{})
	ctx := context.Background()

	stored, err := st.InsertRecord(ctx, entities.MediaRecord{Filename: "clip.mp4", MimeType: "video/mp4"})
	require.NoError(t, err)

	err = uc.RegenerateRenditions(ctx, stored.ID)
	assert.Error(t, err)
}
