package domain

import (
	"context"
	"time"
)

// CacheRepository defines the interface for caching operations
type CacheRepository interface {
	Get(ctx context.Context, key string) (interface{}, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// CatalogClient loads the reference catalog
type CatalogClient interface {
	FetchCatalog(ctx context.Context) ([]CatalogRow, error)
}

// SnapshotRepository persists comparison results
type SnapshotRepository interface {
	Save(ctx context.Context, snapshot *Snapshot) error
	Get(ctx context.Context, id string) (*Snapshot, error)
	Latest(ctx context.Context) (*Snapshot, error)
	List(ctx context.Context, limit int) ([]SnapshotInfo, error)
}
