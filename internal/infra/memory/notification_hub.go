package memory

import (
	"context"
	"sync"

	"course-progress-service/internal/domain"
)

// historyLimit caps how many notifications are kept per learner.
const historyLimit = 50

// NotificationHub is an in-memory implementation of app.Notifier that also
// fans notifications out to live subscribers (websocket clients).
type NotificationHub struct {
	mu          sync.RWMutex
	history     map[string][]domain.Notification
	subscribers map[string]map[chan domain.Notification]struct{}
}

func NewNotificationHub() *NotificationHub {
	return &NotificationHub{
		history:     make(map[string][]domain.Notification),
		subscribers: make(map[string]map[chan domain.Notification]struct{}),
	}
}

// Notify records the notification and delivers it to every subscriber of the learner.
func (h *NotificationHub) Notify(_ context.Context, n domain.Notification) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	list := append([]domain.Notification{n}, h.history[n.LearnerID]...)
	if len(list) > historyLimit {
		list = list[:historyLimit]
	}
	h.history[n.LearnerID] = list

	for ch := range h.subscribers[n.LearnerID] {
		select {
		case ch <- n:
		default:
			// slow client: drop the oldest pending notification
			select {
			case <-ch:
			default:
			}
			ch <- n
		}
	}
	return nil
}

// Recent returns up to limit notifications, newest first.
func (h *NotificationHub) Recent(_ context.Context, learnerID string, limit int) ([]domain.Notification, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	list := h.history[learnerID]
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	out := make([]domain.Notification, len(list))
	copy(out, list)
	return out, nil
}

// Subscribe returns a channel receiving the learner's notifications.
// The caller must invoke the returned cancel function to avoid leaks.
func (h *NotificationHub) Subscribe(_ context.Context, learnerID string) (<-chan domain.Notification, func(), error) {
	ch := make(chan domain.Notification, 8)

	h.mu.Lock()
	subs, ok := h.subscribers[learnerID]
	if !ok {
		subs = make(map[chan domain.Notification]struct{})
		h.subscribers[learnerID] = subs
	}
	subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subs := h.subscribers[learnerID]
		if _, ok := subs[ch]; !ok {
			return
		}
		delete(subs, ch)
		close(ch)
		if len(subs) == 0 {
			delete(h.subscribers, learnerID)
		}
	}
	return ch, cancel, nil
}
