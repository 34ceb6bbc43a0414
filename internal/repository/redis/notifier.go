package redisrepo

import (
	"context"
	"log/slog"
)

// ChangeNotifier invalidates the cached copy of an event and announces the
// change on the pub/sub channel. Failures are logged: the write they follow
// has already committed.
type ChangeNotifier struct {
	cache  *Cache
	pubsub *EventsPubSub
	log    *slog.Logger
}

func NewChangeNotifier(cache *Cache, pubsub *EventsPubSub, log *slog.Logger) *ChangeNotifier {
	return &ChangeNotifier{cache: cache, pubsub: pubsub, log: log}
}

func (n *ChangeNotifier) EventChanged(ctx context.Context, eventID string) {
	if err := n.cache.InvalidateEvent(ctx, eventID); err != nil {
		n.log.Warn("cache invalidation failed", slog.String("event_id", eventID), slog.Any("error", err))
	}

	if err := n.pubsub.PublishEventChanged(ctx, eventID); err != nil {
		n.log.Warn("change publish failed", slog.String("event_id", eventID), slog.Any("error", err))
	}
}
