package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ Store = (*PGBlobStore)(nil)

const blobCols = `id, booking_id, category, file_name, content_type, size, hash, created_at`

// PGBlobStore keeps blobs in the booking_documents table.
type PGBlobStore struct {
	pool *pgxpool.Pool
}

func NewPGBlobStore(pool *pgxpool.Pool) *PGBlobStore {
	return &PGBlobStore{pool: pool}
}

func scanMeta(row pgx.Row) (*BlobMetadata, error) {
	var m BlobMetadata
	var id, bookingID uuid.UUID
	err := row.Scan(&id, &bookingID, &m.Category, &m.FileName, &m.ContentType, &m.Size, &m.Hash, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, err
	}
	m.ID = id.String()
	m.BookingID = bookingID.String()
	return &m, nil
}

func (s *PGBlobStore) Upload(ctx context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	meta, data, err := prepare(meta, content)
	if err != nil {
		return nil, err
	}
	bookingID, err := uuid.Parse(meta.BookingID)
	if err != nil {
		return nil, fmt.Errorf("booking id %q: %w", meta.BookingID, err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO booking_documents (id, booking_id, category, file_name, content_type, size, hash, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		meta.ID, bookingID, meta.Category, meta.FileName, meta.ContentType, meta.Size, meta.Hash, data, meta.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert blob: %w", err)
	}
	return &meta, nil
}

func (s *PGBlobStore) Download(ctx context.Context, id string) (io.ReadCloser, *BlobMetadata, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, nil, ErrBlobNotFound
	}
	var data []byte
	var m BlobMetadata
	var blobID, bookingID uuid.UUID
	err = s.pool.QueryRow(ctx, `SELECT `+blobCols+`, content FROM booking_documents WHERE id = $1`, uid).
		Scan(&blobID, &bookingID, &m.Category, &m.FileName, &m.ContentType, &m.Size, &m.Hash, &m.CreatedAt, &data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	m.ID = blobID.String()
	m.BookingID = bookingID.String()
	return io.NopCloser(bytes.NewReader(data)), &m, nil
}

func (s *PGBlobStore) Delete(ctx context.Context, id string) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return ErrBlobNotFound
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM booking_documents WHERE id = $1`, uid)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBlobNotFound
	}
	return nil
}

func (s *PGBlobStore) GetMetadata(ctx context.Context, id string) (*BlobMetadata, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrBlobNotFound
	}
	return scanMeta(s.pool.QueryRow(ctx, `SELECT `+blobCols+` FROM booking_documents WHERE id = $1`, uid))
}

func (s *PGBlobStore) Latest(ctx context.Context, bookingID, category string) (*BlobMetadata, error) {
	bid, err := uuid.Parse(bookingID)
	if err != nil {
		return nil, ErrBlobNotFound
	}
	return scanMeta(s.pool.QueryRow(ctx, `
		SELECT `+blobCols+` FROM booking_documents
		WHERE booking_id = $1 AND ($2 = '' OR category = $2)
		ORDER BY created_at DESC LIMIT 1`, bid, category))
}
