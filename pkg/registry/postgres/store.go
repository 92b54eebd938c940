package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/viraltok/tokmint/pkg/registry"
)

// Store implements registry.Store using PostgreSQL.
type Store struct {
	pool *Pool
}

// NewStore creates a new Store.
func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

var _ registry.Store = (*Store)(nil)

const selectColumns = `
	SELECT id, address, name, symbol, image_url, metadata_uri, creator,
	       tiktok_url, tiktok_id, signature, timestamp, created_at
	FROM tokens
`

// Save inserts a record. Returns ErrDuplicateKey if the address exists.
func (s *Store) Save(ctx context.Context, r *registry.Record) error {
	if err := r.Validate(); err != nil {
		return err
	}
	id := r.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	query := `
		INSERT INTO tokens (
			id, address, name, symbol, image_url, metadata_uri, creator,
			tiktok_url, tiktok_id, signature, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at
	`

	err := s.pool.QueryRow(ctx, query,
		id,
		r.Address,
		r.Name,
		r.Symbol,
		r.ImageURL,
		r.MetadataURI,
		r.Creator,
		r.VideoURL,
		r.VideoID,
		r.Signature,
		r.Timestamp,
	).Scan(&r.CreatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return registry.ErrDuplicateKey
		}
		return fmt.Errorf("insert token: %w", err)
	}
	r.ID = id
	return nil
}

// GetByAddress retrieves a record. Returns ErrNotFound if not exists.
func (s *Store) GetByAddress(ctx context.Context, address string) (*registry.Record, error) {
	row := s.pool.QueryRow(ctx, selectColumns+` WHERE address = $1`, address)
	r, err := scanRecord(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, registry.ErrNotFound
		}
		return nil, fmt.Errorf("get token by address: %w", err)
	}
	return r, nil
}

// List returns records newest first.
func (s *Store) List(ctx context.Context, limit int) ([]*registry.Record, error) {
	query := selectColumns + ` ORDER BY timestamp DESC, address`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	return collect(rows)
}

// Random returns up to n distinct records.
func (s *Store) Random(ctx context.Context, n int) ([]*registry.Record, error) {
	if n <= 0 {
		return nil, registry.ErrInvalidInput
	}
	rows, err := s.pool.Query(ctx, selectColumns+` ORDER BY random() LIMIT $1`, n)
	if err != nil {
		return nil, fmt.Errorf("random tokens: %w", err)
	}
	return collect(rows)
}

// UpdateImageURL replaces the image URL. Returns ErrNotFound if not exists.
func (s *Store) UpdateImageURL(ctx context.Context, address, imageURL string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE tokens SET image_url = $2 WHERE address = $1`, address, imageURL)
	if err != nil {
		return fmt.Errorf("update image url: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return registry.ErrNotFound
	}
	return nil
}

func collect(rows pgx.Rows) ([]*registry.Record, error) {
	defer rows.Close()
	var out []*registry.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tokens: %w", err)
	}
	return out, nil
}

func scanRecord(row pgx.Row) (*registry.Record, error) {
	var r registry.Record
	err := row.Scan(
		&r.ID,
		&r.Address,
		&r.Name,
		&r.Symbol,
		&r.ImageURL,
		&r.MetadataURI,
		&r.Creator,
		&r.VideoURL,
		&r.VideoID,
		&r.Signature,
		&r.Timestamp,
		&r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}
