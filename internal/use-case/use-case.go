package use_case

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/trunov/optihub/internal/entities"
	"github.com/trunov/optihub/internal/queue"
	"github.com/trunov/optihub/internal/reconcile"
	"github.com/trunov/optihub/internal/transport/handler"
)

const maxFilenameDedup = 1000

type Storage interface {
	InsertRecord(ctx context.Context, rec entities.MediaRecord) (entities.MediaRecord, error)
	GetByID(ctx context.Context, id int64) (entities.MediaRecord, error)
	FilenameExists(ctx context.Context, filename string) (bool, error)
	UpdateMetadata(ctx context.Context, recordID int64, meta entities.RecordMetadata) error
	Ping(ctx context.Context) error
}

type Reconciler interface {
	Enqueue(ctx context.Context, entries []entities.PendingEntry) (int, error)
	OnRecordCreated(ctx context.Context, recordID int64, filename string) (bool, error)
	OnMetadataUpdating(ctx context.Context, recordID int64, incoming entities.RecordMetadata) (entities.RecordMetadata, error)
}

type ObjectStorage interface {
	UploadWithHook(ctx context.Context, key string, contentType string, payload []byte, onSuccess func()) error
}

type RenditionQueue interface {
	EnqueueRendition(ctx context.Context, job queue.RenditionJob) error
}

type useCase struct {
	storage    Storage
	reconciler Reconciler
	objects    ObjectStorage
	wqueue     RenditionQueue
}

func New(storage Storage, reconciler Reconciler, objects ObjectStorage, wqueue RenditionQueue) *useCase {
	return &useCase{
		storage:    storage,
		reconciler: reconciler,
		objects:    objects,
		wqueue:     wqueue,
	}
}

// IngestMetadata queues client-reported conversion results until their media
// records exist.
func (c *useCase) IngestMetadata(ctx context.Context, entries []entities.PendingEntry) (int, error) {
	return c.reconciler.Enqueue(ctx, entries)
}

// UploadMedia stores the file, creates its record and immediately tries to
// reconcile it with pending conversion metadata. The bool reports whether
// metadata was attached.
func (c *useCase) UploadMedia(ctx context.Context, data []byte, filename, ext, mimeType string, params handler.UploadMediaParams) (entities.MediaRecord, bool, error) {
	name, err := c.resolveFilename(ctx, filename, ext)
	if err != nil {
		return entities.MediaRecord{}, false, err
	}

	key := "media/" + name

	var description *string
	if params.Description != "" {
		description = &params.Description
	}

	rec, err := c.storage.InsertRecord(ctx, entities.MediaRecord{
		UserID:      params.UserID,
		Filename:    name,
		Description: description,
		Key:         key,
		MimeType:    mimeType,
		Size:        int64(len(data)),
	})
	if err != nil {
		return entities.MediaRecord{}, false, err
	}

	matched, err := c.reconciler.OnRecordCreated(ctx, rec.ID, rec.Filename)
	if err != nil {
		return rec, false, fmt.Errorf("reconcile record %d: %w", rec.ID, err)
	}

	var hook func()
	if strings.HasPrefix(mimeType, "image/") {
		job := queue.RenditionJob{
			RecordID:    rec.ID,
			ObjectKey:   key,
			ContentType: mimeType,
			Ext:         strings.ToLower(ext),
		}
		hook = func() {
			// The upload pool may fire this after the request is done.
			_ = c.wqueue.EnqueueRendition(context.Background(), job)
		}
	}

	// The pool processes the upload after this request may have finished, so
	// detach it from the request's cancellation.
	if err := c.objects.UploadWithHook(context.WithoutCancel(ctx), key, mimeType, data, hook); err != nil {
		return rec, matched, err
	}

	if matched {
		// Reload so the response carries the attached conversion info.
		rec, err = c.storage.GetByID(ctx, rec.ID)
		if err != nil {
			return rec, true, err
		}
	}

	return rec, matched, nil
}

func (c *useCase) GetRecord(ctx context.Context, id int64) (entities.MediaRecord, error) {
	return c.storage.GetByID(ctx, id)
}

// RegenerateRenditions re-enqueues the rendition job for an existing record.
func (c *useCase) RegenerateRenditions(ctx context.Context, id int64) error {
	rec, err := c.storage.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(rec.MimeType, "image/") {
		return fmt.Errorf("renditions not supported for %s", rec.MimeType)
	}

	return c.wqueue.EnqueueRendition(ctx, queue.RenditionJob{
		RecordID:    rec.ID,
		ObjectKey:   rec.Key,
		ContentType: rec.MimeType,
		Ext:         strings.ToLower(path.Ext(rec.Filename)),
	})
}

// ApplyRenditions replaces the record's metadata document with a freshly
// built one. The rebuild knows nothing about conversion info, so the document
// is routed through the reconciliation engine first to carry it over.
func (c *useCase) ApplyRenditions(ctx context.Context, recordID int64, width, height int, renditions map[string]entities.Rendition) error {
	meta := entities.RecordMetadata{
		Width:      width,
		Height:     height,
		Renditions: renditions,
	}

	meta, err := c.reconciler.OnMetadataUpdating(ctx, recordID, meta)
	if err != nil {
		return err
	}

	return c.storage.UpdateMetadata(ctx, recordID, meta)
}

func (c *useCase) Ping(ctx context.Context) error {
	return c.storage.Ping(ctx)
}

// resolveFilename cleans the client filename and picks the first free
// "name.ext", "name-1.ext", "name-2.ext" variant, the usual dedup scheme for
// colliding uploads. The reconciliation matcher accepts the same dash-number
// suffixes, so a deduped record still finds its pending metadata.
func (c *useCase) resolveFilename(ctx context.Context, filename, ext string) (string, error) {
	// Same sanitization as the metadata queue, so a record created from
	// "my cat.jpg" carries the "my-cat.jpg" its pending entry was stored as.
	name := reconcile.SanitizeFilename(filename)
	if name == "" || name == "." {
		name = "file" + ext
	}

	exists, err := c.storage.FilenameExists(ctx, name)
	if err != nil {
		return "", err
	}
	if !exists {
		return name, nil
	}

	base := name
	var suffix string
	if i := strings.LastIndex(name, "."); i >= 0 {
		base, suffix = name[:i], name[i:]
	}

	for i := 1; i <= maxFilenameDedup; i++ {
		candidate := fmt.Sprintf("%s-%d%s", base, i, suffix)
		exists, err := c.storage.FilenameExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("no free filename variant for %q", name)
}
