package domain

import (
	"context"
	"io"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
}

// Journal persists positions and fills for audit and restart.
type Journal interface {
	RecordFill(ctx context.Context, trade ApprovedTrade, fill Fill) error
	UpsertPosition(ctx context.Context, pos Position) error
	ListPositions(ctx context.Context, status PositionStatus, opts ListOpts) ([]Position, error)
}

// BlobWriter stores session reports under a bucket-relative path.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}
