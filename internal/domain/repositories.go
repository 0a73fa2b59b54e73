package domain

import (
	"context"
	"time"
)

// PageRequest selects one cursor page
type PageRequest struct {
	Scope   Scope
	Filters Filters
	Cursor  string // Empty for the first page
	Limit   int
}

// VideoLister fetches cursor pages (implemented by the API client)
type VideoLister interface {
	ListVideos(ctx context.Context, req PageRequest) (*Page, error)
}

// VideoMutator issues metadata and soft-delete mutations
type VideoMutator interface {
	UpdateVideo(ctx context.Context, id VideoID, changes VideoChanges) (*Video, error)
	BulkUpdate(ctx context.Context, ids []VideoID, changes VideoChanges) (BulkResult, error)
	DeleteVideo(ctx context.Context, id VideoID) error
	BulkDelete(ctx context.Context, ids []VideoID) (BulkResult, error)
	RestoreVideo(ctx context.Context, id VideoID) error
}

// StatsReader reads dashboard counters
type StatsReader interface {
	Stats(ctx context.Context) (Stats, error)
	TrashStats(ctx context.Context) (Stats, error)
}

// VideoRepository combines every backend operation the client uses
type VideoRepository interface {
	VideoLister
	VideoMutator
	StatsReader
}

// SegmentSnapshot is the persisted form of a segment used for warm starts
type SegmentSnapshot struct {
	Key     string    `json:"key"`
	Posts   []Video   `json:"posts"`
	Cursor  string    `json:"cursor"`
	HasMore bool      `json:"has_more"`
	SavedAt time.Time `json:"saved_at"`
}

// SnapshotStore persists segment snapshots between sessions
type SnapshotStore interface {
	LoadSegment(key string) (*SegmentSnapshot, bool)
	SaveSegment(snap *SegmentSnapshot) error
	DeleteSegment(key string)
	DeleteWhere(pred func(key string) bool)
	InvalidateAll()
	Close() error
}
