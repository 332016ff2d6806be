package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/trunov/optihub/internal/config"
	"github.com/trunov/optihub/internal/entities"
	"github.com/trunov/optihub/internal/repository/storage"
	"github.com/trunov/optihub/internal/stats"
)

type UseCase interface {
	IngestMetadata(ctx context.Context, entries []entities.PendingEntry) (int, error)
	UploadMedia(ctx context.Context, data []byte, filename, ext, mimeType string, params UploadMediaParams) (entities.MediaRecord, bool, error)
	GetRecord(ctx context.Context, id int64) (entities.MediaRecord, error)
	RegenerateRenditions(ctx context.Context, id int64) error
	Ping(ctx context.Context) error
}

type StatsProvider interface {
	GetStats(ctx context.Context) (stats.StatsView, error)
}

type Handler struct {
	useCase   UseCase
	stats     StatsProvider
	cfg       *config.Config
	validator *validator.Validate
}

func New(useCase UseCase, statsProvider StatsProvider, cfg *config.Config) *Handler {
	return &Handler{
		useCase:   useCase,
		stats:     statsProvider,
		cfg:       cfg,
		validator: validator.New(),
	}
}

// IngestMetadata accepts a batch of conversion results from the client-side
// optimizer. The matching media records usually do not exist yet; entries go
// to the pending queue and get attached on record creation.
func (h *Handler) IngestMetadata(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req ingestRequest
	if err := dec.Decode(&req); err != nil {
		writeJSONError(w, "invalid metadata payload: "+err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.validator.Struct(req); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(validationErrorsToMap(err))
		return
	}

	entries := make([]entities.PendingEntry, 0, len(req.Metadata))
	for _, item := range req.Metadata {
		entries = append(entries, item.toEntry())
	}

	count, err := h.useCase.IngestMetadata(r.Context(), entries)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, ingestResponse{Success: true, QueuedCount: count})
}

func (h *Handler) UploadMedia(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.Upload.MaxRequestBodyMB<<20)

	maxMultipartMem := h.cfg.Upload.MaxMultipartMemoryMB
	if err := r.ParseMultipartForm(maxMultipartMem << 20); err != nil {
		writeMultipartError(w, err)
		return
	}

	file, fh, err := r.FormFile("media")
	if err != nil {
		if strings.Contains(err.Error(), "no such file") {
			writeJSONError(w, `missing media file: form field key should be "media"`, http.StatusBadRequest)
		} else {
			writeJSONError(w, "an error occurred while uploading the file: "+err.Error(), http.StatusBadRequest)
		}
		return
	}
	defer file.Close()

	params := UploadMediaParams{
		Description: r.Form.Get("description"),
		UserID:      parseInt64Default(r.Form.Get("userID"), 0),
	}

	if err := h.validator.Struct(params); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(validationErrorsToMap(err))
		return
	}

	mime, err := mimetype.DetectReader(file)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if _, err = file.Seek(0, 0); err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	ext := mime.Extension()
	fileType := mime.String()

	if err := validateMimeType(fileType); err != nil {
		writeJSONError(w, fmt.Sprintf("unsupported file type: %s", fileType), http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSONError(w, "failed to read uploaded file: "+err.Error(), http.StatusInternalServerError)
		return
	}

	rec, optimized, err := h.useCase.UploadMedia(r.Context(), data, fh.Filename, ext, fileType, params)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, uploadResponse{MediaRecord: rec, Optimized: optimized})
}

func (h *Handler) GetMedia(w http.ResponseWriter, r *http.Request) {
	id := parseInt64Default(chi.URLParam(r, "id"), 0)
	if id <= 0 {
		writeJSONError(w, "invalid media record id", http.StatusBadRequest)
		return
	}

	rec, err := h.useCase.GetRecord(r.Context(), id)
	if errors.Is(err, storage.ErrRecordNotFound) {
		writeJSONError(w, "media record not found", http.StatusNotFound)
		return
	}
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// RegenerateRenditions re-enqueues rendition generation for a record. The
// resulting metadata rewrite must not lose the record's conversion info; the
// reconciliation engine guards that.
func (h *Handler) RegenerateRenditions(w http.ResponseWriter, r *http.Request) {
	id := parseInt64Default(chi.URLParam(r, "id"), 0)
	if id <= 0 {
		writeJSONError(w, "invalid media record id", http.StatusBadRequest)
		return
	}

	err := h.useCase.RegenerateRenditions(r.Context(), id)
	if errors.Is(err, storage.ErrRecordNotFound) {
		writeJSONError(w, "media record not found", http.StatusNotFound)
		return
	}
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	view, err := h.stats.GetStats(r.Context())
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) Ping(w http.ResponseWriter, r *http.Request) {
	if err := h.useCase.Ping(r.Context()); err != nil {
		writeJSONError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}
