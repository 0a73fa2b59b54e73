package service

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/mmcdole/tagflow/internal/domain"
	"github.com/mmcdole/tagflow/internal/event"
	"github.com/mmcdole/tagflow/internal/pagination"
	"github.com/mmcdole/tagflow/internal/realtime"
	"github.com/mmcdole/tagflow/internal/search"
	"github.com/mmcdole/tagflow/internal/segment"
)

// Stats keys used to seed scope totals
const (
	StatTotalVideos  = "total_videos"
	StatTotalDeleted = "total_deleted"
)

// GalleryOptions configures a Gallery
type GalleryOptions struct {
	PageSize     int
	FetchTimeout time.Duration
	Logger       *slog.Logger

	// Context bounds background reloads of evicted segments; nil disables them
	Context context.Context
}

// Gallery coordinates per-scope pagination stores over one shared cache and
// applies mutations to the backend and the cache together.
type Gallery struct {
	repo   domain.VideoRepository
	cache  *segment.Cache
	opts   GalleryOptions
	logger *slog.Logger

	mu     sync.Mutex
	stores map[domain.Scope]*pagination.Store
	subs   event.Group
}

// NewGallery creates a gallery service
func NewGallery(repo domain.VideoRepository, cache *segment.Cache, opts GalleryOptions) *Gallery {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Gallery{
		repo:   repo,
		cache:  cache,
		opts:   opts,
		logger: opts.Logger,
		stores: make(map[domain.Scope]*pagination.Store),
	}
}

// Cache returns the shared segment cache
func (g *Gallery) Cache() *segment.Cache { return g.cache }

// Store returns the pagination store for scope, creating it on first use
func (g *Gallery) Store(scope domain.Scope) *pagination.Store {
	g.mu.Lock()
	defer g.mu.Unlock()

	if s, ok := g.stores[scope]; ok {
		return s
	}
	s := pagination.NewStore(pagination.Options{
		Scope:        scope,
		Lister:       g.repo,
		Cache:        g.cache,
		PageSize:     g.opts.PageSize,
		FetchTimeout: g.opts.FetchTimeout,
		Logger:       g.logger,
		Context:      g.opts.Context,
	})
	g.stores[scope] = s
	return s
}

// CloseScope releases the store for scope; its segments stay cached
func (g *Gallery) CloseScope(scope domain.Scope) {
	g.mu.Lock()
	s, ok := g.stores[scope]
	delete(g.stores, scope)
	g.mu.Unlock()

	if ok {
		s.Close()
	}
}

// Close releases every store and stops listening for invalidations
func (g *Gallery) Close() {
	g.subs.Unsubscribe()

	g.mu.Lock()
	stores := g.stores
	g.stores = make(map[domain.Scope]*pagination.Store)
	g.mu.Unlock()

	for _, s := range stores {
		s.Close()
	}
}

func (g *Gallery) openStores() []*pagination.Store {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*pagination.Store, 0, len(g.stores))
	for _, s := range g.stores {
		out = append(out, s)
	}
	return out
}

// UpdateVideo applies changes optimistically and confirms or rolls back
// once the backend answers
func (g *Gallery) UpdateVideo(ctx context.Context, id domain.VideoID, changes domain.VideoChanges) (*domain.Video, error) {
	original, cached := g.cache.Lookup(id)
	if cached {
		g.cache.PatchItem(id, domain.Mutation{VideoID: id, Changes: changes, Source: domain.SourceLocal})
	}

	v, err := g.repo.UpdateVideo(ctx, id, changes)
	if err != nil {
		if cached {
			g.cache.Rollback(original)
		}
		g.logger.Warn("update failed, rolled back", "video_id", id, "error", err)
		return nil, err
	}

	g.confirm(id, changes, v)
	return v, nil
}

// confirm settles a pending local change with the server's answer
func (g *Gallery) confirm(id domain.VideoID, changes domain.VideoChanges, server *domain.Video) {
	if server != nil && server.ID == id {
		g.cache.ReplaceItem(*server)
		return
	}
	// No server copy: re-apply as authoritative without moving UpdatedAt
	g.cache.PatchItem(id, domain.Mutation{VideoID: id, Changes: changes, Source: domain.SourceServer})
}

// BulkUpdate applies changes to ids optimistically. Items the backend rejects
// are rolled back; items it does not report on are evicted for reload.
func (g *Gallery) BulkUpdate(ctx context.Context, ids []domain.VideoID, changes domain.VideoChanges) (domain.BulkResult, error) {
	originals := make(map[domain.VideoID]domain.Video, len(ids))
	for _, id := range ids {
		if v, ok := g.cache.Lookup(id); ok {
			originals[id] = v
			g.cache.PatchItem(id, domain.Mutation{VideoID: id, Changes: changes, Source: domain.SourceLocal})
		}
	}

	res, err := g.repo.BulkUpdate(ctx, ids, changes)
	if err != nil {
		for _, v := range originals {
			g.cache.Rollback(v)
		}
		return res, err
	}

	for _, id := range res.Succeeded {
		g.confirm(id, changes, nil)
	}
	for id := range res.Failed {
		if v, ok := originals[id]; ok {
			g.cache.Rollback(v)
		}
	}
	for _, id := range unreported(ids, res) {
		if v, ok := originals[id]; ok {
			g.cache.Rollback(v)
		}
		g.evictContaining(id)
	}
	return res, partialError(len(ids), res)
}

// DeleteVideo moves id to the trash and reconciles the cache
func (g *Gallery) DeleteVideo(ctx context.Context, id domain.VideoID) error {
	if err := g.repo.DeleteVideo(ctx, id); err != nil {
		return err
	}
	g.trashed(id)
	return nil
}

// BulkDelete moves ids to the trash
func (g *Gallery) BulkDelete(ctx context.Context, ids []domain.VideoID) (domain.BulkResult, error) {
	res, err := g.repo.BulkDelete(ctx, ids)
	if err != nil {
		return res, err
	}
	for _, id := range res.Succeeded {
		g.trashed(id)
	}
	for _, id := range unreported(ids, res) {
		g.evictContaining(id)
	}
	return res, partialError(len(ids), res)
}

// RestoreVideo brings id back from the trash
func (g *Gallery) RestoreVideo(ctx context.Context, id domain.VideoID) error {
	if err := g.repo.RestoreVideo(ctx, id); err != nil {
		return err
	}
	removed := g.cache.RemoveItemWhere(id, func(k domain.SegmentKey) bool { return k.Scope.IsTrash() })
	g.adjustTotals(removed, -1)
	// Restored position in other listings is unknown
	g.cache.EvictWhere(func(k domain.SegmentKey) bool { return !k.Scope.IsTrash() })
	g.adjustScopeTotal(domain.GalleryScope, +1)
	return nil
}

func (g *Gallery) trashed(id domain.VideoID) {
	removed := g.cache.RemoveItemWhere(id, func(k domain.SegmentKey) bool { return !k.Scope.IsTrash() })
	g.adjustTotals(removed, -1)
	g.cache.EvictScope(domain.ScopeTrash)
	g.adjustScopeTotal(domain.TrashScope, +1)
}

func (g *Gallery) evictContaining(id domain.VideoID) {
	keys := g.cache.KeysWith(id)
	if len(keys) == 0 {
		return
	}
	g.cache.EvictWhere(func(k domain.SegmentKey) bool { return slices.Contains(keys, k) })
}

// adjustTotals shifts the total of every open store whose current segment is in keys
func (g *Gallery) adjustTotals(keys []domain.SegmentKey, delta int64) {
	if len(keys) == 0 {
		return
	}
	for _, s := range g.openStores() {
		if slices.Contains(keys, s.State().Key) {
			s.AdjustTotal(delta)
		}
	}
}

func (g *Gallery) adjustScopeTotal(scope domain.Scope, delta int64) {
	g.mu.Lock()
	s, ok := g.stores[scope]
	g.mu.Unlock()
	if ok {
		s.AdjustTotal(delta)
	}
}

// WatchInvalidations keeps scope totals in line with server pushes
func (g *Gallery) WatchInvalidations(inv *realtime.Invalidator) {
	g.subs.Add(inv.Applied().On(func(res realtime.Invalidation) {
		switch res.Notification.Action {
		case realtime.ActionDelete:
			g.adjustTotals(res.Removed, -1)
		case realtime.ActionMoveToTrash:
			g.adjustTotals(res.Removed, -1)
			g.adjustScopeTotal(domain.TrashScope, +1)
		case realtime.ActionRestore:
			g.adjustTotals(res.Removed, -1)
			g.adjustScopeTotal(domain.GalleryScope, +1)
		}
	}))
}

// Stats returns catalog counters
func (g *Gallery) Stats(ctx context.Context) (domain.Stats, error) {
	return g.repo.Stats(ctx)
}

// TrashStats returns trash counters
func (g *Gallery) TrashStats(ctx context.Context) (domain.Stats, error) {
	return g.repo.TrashStats(ctx)
}

// LoadTotals seeds the gallery and trash store totals from the stats endpoints
func (g *Gallery) LoadTotals(ctx context.Context) error {
	stats, err := g.repo.Stats(ctx)
	if err != nil {
		return err
	}
	g.Store(domain.GalleryScope).SetTotal(stats.Int(StatTotalVideos))

	trash, err := g.repo.TrashStats(ctx)
	if err != nil {
		return err
	}
	g.Store(domain.TrashScope).SetTotal(trash.Int(StatTotalDeleted))
	return nil
}

// MatchCreators suggests creators from every loaded video
func (g *Gallery) MatchCreators(query string) []string {
	var videos []domain.Video
	for _, s := range g.openStores() {
		videos = append(videos, s.State().Posts...)
	}
	return search.MatchCreators(query, videos)
}

// unreported lists ids a per-item result said nothing about
func unreported(ids []domain.VideoID, res domain.BulkResult) []domain.VideoID {
	if !res.PerItem {
		return nil
	}
	var out []domain.VideoID
	for _, id := range ids {
		if _, failed := res.Failed[id]; failed || slices.Contains(res.Succeeded, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}

func partialError(requested int, res domain.BulkResult) error {
	if len(res.Failed) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d of %d failed", domain.ErrBulkPartial, len(res.Failed), requested)
}
