package out

import (
	"context"

	"indexer_server/core/domain"
)

// RealtimePort - server-push of index state to subscribed clients.
type RealtimePort interface {
	Subscribe(userID string) <-chan *domain.RealtimeEvent

	Unsubscribe(userID string, ch <-chan *domain.RealtimeEvent)

	Push(ctx context.Context, userID string, event *domain.RealtimeEvent) error

	ConnectedCount() int
}
