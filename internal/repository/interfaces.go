package repository

import (
	"context"
	"time"
)

// Document is one stored record in a collection. Body holds the
// normalized JSON form of the record; SyncedAt and SyncSource mirror
// the metadata stamped inside the body so stores can index them.
type Document struct {
	Collection string
	ID         string
	Body       []byte
	SyncedAt   time.Time
	SyncSource string
}

// QueryOptions provides filtering options for reading a collection.
// Filter entries are equality matches against (possibly dotted, nested)
// fields of the document body. Projection limits the returned body to
// the named top-level fields.
type QueryOptions struct {
	Filter     map[string]any
	Projection []string
	Limit      int
	Skip       int
}

// Checkpoint records the last attempted and last confirmed sync instant
// for one resource. LastSuccess never runs ahead of LastSync.
type Checkpoint struct {
	Resource    string     `json:"resource"`
	LastSync    *time.Time `json:"last_sync"`
	LastSuccess *time.Time `json:"last_success"`
}

// DocumentStore manages document persistence across collections
type DocumentStore interface {
	Upsert(ctx context.Context, doc *Document) error
	Get(ctx context.Context, collection, id string) (*Document, error)
	List(ctx context.Context, collection string) ([]Document, error)
	Query(ctx context.Context, collection string, opts QueryOptions) ([]Document, error)
	ReplaceAll(ctx context.Context, collection string, docs []Document) error
	Count(ctx context.Context, collection string) (int64, error)
}

// CheckpointStore manages per-resource sync checkpoints
type CheckpointStore interface {
	Get(ctx context.Context, resource string) (*Checkpoint, error)
	List(ctx context.Context) ([]Checkpoint, error)
	// MarkAttempt advances last_sync for the resource.
	MarkAttempt(ctx context.Context, resource string, at time.Time) error
	// MarkSuccess advances last_success, pulling last_sync along when
	// needed so that last_success <= last_sync always holds.
	MarkSuccess(ctx context.Context, resource string, at time.Time) error
}
