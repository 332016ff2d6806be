package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/redis/go-redis/v9"

	"github.com/trunov/optihub/internal/config"
	"github.com/trunov/optihub/internal/entities"
	"github.com/trunov/optihub/internal/processor"
	webp_converter "github.com/trunov/optihub/internal/webp-converter"
)

type Storage interface {
	Download(ctx context.Context, key string) ([]byte, string, error)
	UploadWithHook(ctx context.Context, key, contentType string, payload []byte, onSuccess func()) error
}

// MetadataApplier persists a freshly built metadata document for a record.
// The implementation is responsible for carrying protected sub-documents
// over from the persisted one.
type MetadataApplier interface {
	ApplyRenditions(ctx context.Context, recordID int64, width, height int, renditions map[string]entities.Rendition) error
}

type Worker struct {
	rc      redis.UniversalClient
	cfg     config.RenditionWorkerConfig
	storage Storage
	applier MetadataApplier
	conv    webp_converter.Converter
}

func NewWorker(rc redis.UniversalClient, cfg config.RenditionWorkerConfig, storage Storage, applier MetadataApplier) *Worker {
	return &Worker{
		rc:      rc,
		cfg:     cfg,
		storage: storage,
		applier: applier,
		conv:    webp_converter.Converter{},
	}
}

func (w *Worker) EnsureGroup(ctx context.Context) error {
	// Without MkStream, Redis would error out if we try to create a group
	// before any messages exist in the stream.
	err := w.rc.XGroupCreateMkStream(ctx, w.cfg.Stream, w.cfg.Group, "0").Err()
	// Redis returns BUSYGROUP if the group already exists therefore we check for other errors
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}
	return nil
}

func (w *Worker) Start(ctx context.Context) error {
	if err := w.EnsureGroup(ctx); err != nil {
		return fmt.Errorf("failed to ensure Redis group: %w", err)
	}

	log.Printf("[rendition-worker] starting consumer group=%s stream=%s workers=%d",
		w.cfg.Group, w.cfg.Stream, w.cfg.Workers,
	)

	// Adopt orphaned pending messages
	w.autoClaim(ctx)

	errCh := make(chan error, w.cfg.Workers)
	for i := 0; i < w.cfg.Workers; i++ {
		id := i
		go func() {
			err := w.loop(ctx)
			if err != nil {
				log.Printf("[rendition-worker] worker #%d stopped with error: %v", id, err)
			}
			errCh <- err
		}()
	}

	select {
	case <-ctx.Done():
		log.Printf("[rendition-worker] context canceled, stopping all workers")
		return ctx.Err()
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("worker loop exited with error: %w", err)
		}
		return nil
	}
}

// autoClaim takes ownership of messages that were delivered to other
// consumers but never acknowledged, so jobs stuck behind a crashed worker get
// retried after a restart.
func (w *Worker) autoClaim(ctx context.Context) {
	next := "0-0"

	// A message must sit idle for a while before we steal it, so we do not
	// reclaim jobs a slow worker is still processing.
	minIdle := 30 * time.Second
	if w.cfg.BlockTimeout > 0 {
		if t := w.cfg.BlockTimeout * time.Second * 6; t > minIdle {
			minIdle = t
		}
	}

	for {
		msgs, start, err := w.rc.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   w.cfg.Stream,
			Group:    w.cfg.Group,
			Consumer: w.cfg.Consumer,
			MinIdle:  minIdle,
			Start:    next,
			Count:    100,
		}).Result()
		if err != nil || len(msgs) == 0 {
			return
		}
		next = start
	}
}

func (w *Worker) loop(ctx context.Context) error {
	for {
		// XREADGROUP marks delivered messages pending for this consumer; they
		// stay in the group's PEL until the XACK at the end of handle(). A
		// crash before XACK leaves the message for autoClaim on restart.
		streams, err := w.rc.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    w.cfg.Group,
			Consumer: w.cfg.Consumer,
			Streams:  []string{w.cfg.Stream, ">"},
			Count:    1,
			Block:    w.cfg.BlockTimeout * time.Second,
		}).Result()
		if err != nil && err != redis.Nil {
			if ctx.Err() != nil {
				return nil
			}
			continue
		}
		for _, s := range streams {
			for _, m := range s.Messages {
				_ = w.handle(ctx, m)
			}
		}
	}
}

func (w *Worker) handle(ctx context.Context, m redis.XMessage) error {
	defer func() {
		_ = w.rc.XAck(ctx, w.cfg.Stream, w.cfg.Group, m.ID).Err()
	}()

	raw, ok := m.Values["payload"].(string)
	if !ok {
		sentry.CaptureMessage(fmt.Sprintf("rendition job %s without payload", m.ID))
		return nil
	}
	var job RenditionJob
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		sentry.CaptureException(fmt.Errorf("decode rendition job %s: %w", m.ID, err))
		return nil
	}
	attempt := toInt(m.Values["attempt"])

	if err := w.process(ctx, job); err != nil {
		if attempt+1 >= w.cfg.MaxAttempts {
			sentry.CaptureException(fmt.Errorf("rendition job for record %d dropped after %d attempts: %w", job.RecordID, attempt+1, err))
			return nil
		}
		// simple exponential backoff requeue
		backoff := w.cfg.BackoffBase * time.Second << attempt
		time.AfterFunc(backoff, func() {
			_ = w.rc.XAdd(context.Background(), &redis.XAddArgs{
				Stream: w.cfg.Stream,
				MaxLen: w.cfg.MaxLen,
				Values: map[string]any{
					"payload": raw,
					"attempt": attempt + 1,
				},
			}).Err()
		})
		return err
	}
	return nil
}

func (w *Worker) process(ctx context.Context, job RenditionJob) error {
	orig, _, err := w.storage.Download(ctx, job.ObjectKey)
	if err != nil {
		return fmt.Errorf("download %s: %w", job.ObjectKey, err)
	}

	ext := strings.ToLower(job.Ext)

	builder := &processor.RenditionBuilder{}
	if err := builder.Load(bytes.NewReader(orig), ext); err != nil {
		return fmt.Errorf("load original: %w", err)
	}
	width, height := builder.Bounds()

	thumbBytes, err := processor.EncodeJPEG(builder.Thumbnail(w.cfg.ThumbnailMax))
	if err != nil {
		return fmt.Errorf("build thumbnail: %w", err)
	}

	webpBytes, err := w.conv.FromImage(builder.Image(), ext)
	if err != nil {
		return fmt.Errorf("convert to webp: %w", err)
	}

	thumbKey := job.ObjectKey + ".thumb.jpg"
	webpKey := job.ObjectKey + ".webp"

	if err := w.storage.UploadWithHook(ctx, thumbKey, "image/jpeg", thumbBytes, nil); err != nil {
		return fmt.Errorf("upload thumbnail: %w", err)
	}
	if err := w.storage.UploadWithHook(ctx, webpKey, "image/webp", webpBytes, nil); err != nil {
		return fmt.Errorf("upload webp: %w", err)
	}

	renditions := map[string]entities.Rendition{
		"thumbnail": {
			Key:      thumbKey,
			MimeType: "image/jpeg",
			Size:     int64(len(thumbBytes)),
		},
		"webp": {
			Key:      webpKey,
			MimeType: "image/webp",
			Width:    width,
			Height:   height,
			Size:     int64(len(webpBytes)),
		},
	}

	if err := w.applier.ApplyRenditions(ctx, job.RecordID, width, height, renditions); err != nil {
		return fmt.Errorf("apply renditions for record %d: %w", job.RecordID, err)
	}
	return nil
}

func toInt(v any) int {
	switch t := v.(type) {
	case int:
		return t
	case int64:
		return int(t)
	case string:
		var x int
		fmt.Sscanf(t, "%d", &x)
		return x
	default:
		return 0
	}
}
