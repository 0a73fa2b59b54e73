package realtime

import (
	"log/slog"

	"github.com/mmcdole/tagflow/internal/domain"
	"github.com/mmcdole/tagflow/internal/event"
	tflog "github.com/mmcdole/tagflow/internal/log"
	"github.com/mmcdole/tagflow/internal/segment"
)

// ItemCache is the part of segment.Cache the invalidator writes to
type ItemCache interface {
	PatchItem(id domain.VideoID, m domain.Mutation) int
	RemoveItem(id domain.VideoID) []domain.SegmentKey
	RemoveItemWhere(id domain.VideoID, pred func(domain.SegmentKey) bool) []domain.SegmentKey
	EvictWhere(pred func(domain.SegmentKey) bool) []domain.SegmentKey
}

// Invalidation describes what a notification did to the cache
type Invalidation struct {
	Notification Notification
	Patched      int
	Removed      []domain.SegmentKey
	Evicted      []domain.SegmentKey
}

// Invalidator applies server notifications to the segment cache
type Invalidator struct {
	cache  ItemCache
	logger *slog.Logger

	applied event.Emitter[Invalidation]
	sub     event.Subscription
}

// NewInvalidator creates an invalidator writing to cache
func NewInvalidator(cache ItemCache, logger *slog.Logger) *Invalidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Invalidator{cache: cache, logger: tflog.Component(logger, "invalidator")}
}

// Attach routes every notification from client through Apply until Detach
func (inv *Invalidator) Attach(client *Client) {
	inv.Detach()
	inv.sub = client.Notifications().On(func(n Notification) { inv.Apply(n) })
}

// Detach stops listening to the client
func (inv *Invalidator) Detach() {
	if inv.sub != nil {
		inv.sub.Unsubscribe()
		inv.sub = nil
	}
}

// Applied fires after each handled notification
func (inv *Invalidator) Applied() *event.Emitter[Invalidation] { return &inv.applied }

// Apply routes one notification. Unknown actions are logged and ignored.
func (inv *Invalidator) Apply(n Notification) {
	res := Invalidation{Notification: n}

	switch n.Action {
	case ActionUpdate:
		res.Patched = inv.cache.PatchItem(n.VideoID, domain.Mutation{
			VideoID:   n.VideoID,
			Changes:   n.Changes,
			Timestamp: n.Timestamp,
			Source:    domain.SourceServer,
		})
	case ActionDelete:
		res.Removed = inv.cache.RemoveItem(n.VideoID)
	case ActionMoveToTrash:
		res.Removed = inv.cache.RemoveItemWhere(n.VideoID, notTrash)
		// Trash listings gain an item at an unknown position
		res.Evicted = inv.cache.EvictWhere(isTrash)
	case ActionRestore:
		res.Removed = inv.cache.RemoveItemWhere(n.VideoID, isTrash)
		res.Evicted = inv.cache.EvictWhere(notTrash)
	default:
		inv.logger.Warn("ignoring notification with unknown action", "action", n.Action, "video_id", n.VideoID)
		return
	}

	inv.logger.Debug("applied notification",
		"action", n.Action,
		"video_id", n.VideoID,
		"patched", res.Patched,
		"removed", len(res.Removed),
		"evicted", len(res.Evicted),
	)
	inv.applied.Emit(res)
}

func isTrash(k domain.SegmentKey) bool  { return k.Scope.IsTrash() }
func notTrash(k domain.SegmentKey) bool { return !k.Scope.IsTrash() }

var _ ItemCache = (*segment.Cache)(nil)
