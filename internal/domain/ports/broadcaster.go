package ports

import "rssbox/internal/domain"

// StatusBroadcaster pushes pipeline state transitions onto a live monitoring
// feed. Implementations must not block the caller; a full or unsubscribed
// feed just drops the event.
type StatusBroadcaster interface {
	BroadcastStatus(event domain.StatusEvent)
}
