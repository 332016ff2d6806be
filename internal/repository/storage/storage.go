package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trunov/optihub/internal/entities"
)

var ErrRecordNotFound = errors.New("media record not found")

type dbStorage struct {
	dbpool *pgxpool.Pool
}

func New(ctx context.Context, databaseDSN string) (*dbStorage, error) {
	pool, err := pgxpool.New(ctx, databaseDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &dbStorage{dbpool: pool}, nil
}

func (s *dbStorage) Ping(ctx context.Context) error {
	return s.dbpool.Ping(ctx)
}

func (s *dbStorage) Close() {
	s.dbpool.Close()
}

// InsertRecord stores a new media record and returns it with its assigned id
// and timestamps.
func (s *dbStorage) InsertRecord(ctx context.Context, rec entities.MediaRecord) (entities.MediaRecord, error) {
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return entities.MediaRecord{}, fmt.Errorf("encode metadata: %w", err)
	}

	err = s.dbpool.QueryRow(ctx, `
		INSERT INTO media_records (user_id, filename, description, key, mime_type, size, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_timestamp, updated_timestamp`,
		rec.UserID, rec.Filename, rec.Description, rec.Key, rec.MimeType, rec.Size, meta,
	).Scan(&rec.ID, &rec.CreatedTimestamp, &rec.UpdatedTimestamp)
	if err != nil {
		return entities.MediaRecord{}, fmt.Errorf("insert media record: %w", err)
	}

	return rec, nil
}

func (s *dbStorage) GetByID(ctx context.Context, id int64) (entities.MediaRecord, error) {
	var (
		rec  entities.MediaRecord
		meta []byte
	)
	err := s.dbpool.QueryRow(ctx, `
		SELECT id, user_id, filename, description, key, mime_type, size, metadata,
		       is_deleted, created_timestamp, updated_timestamp
		FROM media_records
		WHERE id = $1 AND NOT is_deleted`, id,
	).Scan(
		&rec.ID, &rec.UserID, &rec.Filename, &rec.Description, &rec.Key,
		&rec.MimeType, &rec.Size, &meta,
		&rec.IsDeleted, &rec.CreatedTimestamp, &rec.UpdatedTimestamp,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return entities.MediaRecord{}, ErrRecordNotFound
	}
	if err != nil {
		return entities.MediaRecord{}, fmt.Errorf("select media record %d: %w", id, err)
	}

	if err := json.Unmarshal(meta, &rec.Metadata); err != nil {
		return entities.MediaRecord{}, fmt.Errorf("decode metadata for record %d: %w", id, err)
	}
	return rec, nil
}

// GetMetadata loads just the metadata document of a record. A missing record
// is not an error; it reports found=false.
func (s *dbStorage) GetMetadata(ctx context.Context, recordID int64) (entities.RecordMetadata, bool, error) {
	var raw []byte
	err := s.dbpool.QueryRow(ctx,
		`SELECT metadata FROM media_records WHERE id = $1 AND NOT is_deleted`, recordID,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return entities.RecordMetadata{}, false, nil
	}
	if err != nil {
		return entities.RecordMetadata{}, false, fmt.Errorf("select metadata for record %d: %w", recordID, err)
	}

	var meta entities.RecordMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return entities.RecordMetadata{}, false, fmt.Errorf("decode metadata for record %d: %w", recordID, err)
	}
	return meta, true, nil
}

// UpdateMetadata replaces the whole metadata document of a record.
func (s *dbStorage) UpdateMetadata(ctx context.Context, recordID int64, meta entities.RecordMetadata) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	tag, err := s.dbpool.Exec(ctx, `
		UPDATE media_records
		SET metadata = $2, updated_timestamp = now()
		WHERE id = $1 AND NOT is_deleted`,
		recordID, raw,
	)
	if err != nil {
		return fmt.Errorf("update metadata for record %d: %w", recordID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// OptimizedSince returns (id, sizes) of every record carrying a cimo
// sub-document with id greater than afterID, newest first. The stats
// aggregator only ever scans above its high-water mark, so this stays a
// delta query no matter how large the library grows.
func (s *dbStorage) OptimizedSince(ctx context.Context, afterID int64) ([]entities.OptimizedRecord, error) {
	rows, err := s.dbpool.Query(ctx, `
		SELECT id,
		       COALESCE((metadata->'cimo'->>'originalFilesize')::bigint, 0),
		       COALESCE((metadata->'cimo'->>'convertedFilesize')::bigint, 0)
		FROM media_records
		WHERE metadata ? 'cimo' AND id > $1 AND NOT is_deleted
		ORDER BY id DESC`,
		afterID,
	)
	if err != nil {
		return nil, fmt.Errorf("select optimized records after %d: %w", afterID, err)
	}
	defer rows.Close()

	var result []entities.OptimizedRecord
	for rows.Next() {
		var rec entities.OptimizedRecord
		if err := rows.Scan(&rec.ID, &rec.OriginalFilesize, &rec.ConvertedFilesize); err != nil {
			return nil, fmt.Errorf("scan optimized record: %w", err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate optimized records: %w", err)
	}
	return result, nil
}

// FilenameExists reports whether a live record already uses the filename.
func (s *dbStorage) FilenameExists(ctx context.Context, filename string) (bool, error) {
	var exists bool
	err := s.dbpool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM media_records WHERE filename = $1 AND NOT is_deleted)`,
		filename,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check filename %q: %w", filename, err)
	}
	return exists, nil
}
