// Package registry stores the tokens minted through tokmint.
package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Storage errors shared by every backend.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when a token address is already recorded.
	ErrDuplicateKey = errors.New("duplicate key: token already recorded")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)

// Record is one minted token. Only ImageURL may change after creation.
type Record struct {
	ID          uuid.UUID
	Address     string
	Name        string
	Symbol      string
	ImageURL    string
	MetadataURI string
	Creator     string
	VideoURL    string
	VideoID     string
	Signature   string
	Timestamp   int64 // unix ms
	CreatedAt   time.Time
}

// NewRecord fills ID and Timestamp.
func NewRecord(now time.Time) *Record {
	return &Record{ID: uuid.New(), Timestamp: now.UnixMilli()}
}

// Validate checks the fields every backend requires.
func (r *Record) Validate() error {
	if r == nil {
		return ErrInvalidInput
	}
	switch {
	case r.Address == "":
		return fmt.Errorf("%w: address is required", ErrInvalidInput)
	case r.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	case r.Symbol == "":
		return fmt.Errorf("%w: symbol is required", ErrInvalidInput)
	}
	return nil
}

// Saver persists new records.
type Saver interface {
	// Save inserts r. Returns ErrDuplicateKey if the address exists.
	Save(ctx context.Context, r *Record) error
}

// Lister reads records back.
type Lister interface {
	// List returns records newest first. limit <= 0 means no limit.
	List(ctx context.Context, limit int) ([]*Record, error)
	// Random returns up to n distinct records in random order.
	Random(ctx context.Context, n int) ([]*Record, error)
}

// Store is a full registry backend.
type Store interface {
	Saver
	Lister
	// GetByAddress returns ErrNotFound if the address is unknown.
	GetByAddress(ctx context.Context, address string) (*Record, error)
	// UpdateImageURL returns ErrNotFound if the address is unknown.
	UpdateImageURL(ctx context.Context, address, imageURL string) error
}
