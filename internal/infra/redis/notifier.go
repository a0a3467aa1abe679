package redis

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"course-progress-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

const historyLimit = 50

// Notifier keeps a capped list of notifications per learner and publishes each
// one on a channel of the same name so every instance can reach live clients.
//
//	LPUSH notifications:{learnerID} {json}; LTRIM 0 49; PUBLISH notifications:{learnerID} {json}
type Notifier struct {
	client *redis.Client
}

func NewNotifier(client *redis.Client) *Notifier {
	return &Notifier{client: client}
}

func (n *Notifier) Notify(ctx context.Context, note domain.Notification) error {
	raw, err := json.Marshal(note)
	if err != nil {
		return err
	}
	key := notificationsKey(note.LearnerID)
	pipe := n.client.TxPipeline()
	pipe.LPush(ctx, key, raw)
	pipe.LTrim(ctx, key, 0, historyLimit-1)
	pipe.Publish(ctx, key, raw)
	_, err = pipe.Exec(ctx)
	return err
}

// Recent returns up to limit notifications, newest first.
func (n *Notifier) Recent(ctx context.Context, learnerID string, limit int) ([]domain.Notification, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	items, err := n.client.LRange(ctx, notificationsKey(learnerID), 0, stop).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.Notification, 0, len(items))
	for _, item := range items {
		var note domain.Notification
		if err := json.Unmarshal([]byte(item), &note); err != nil {
			log.Printf("skip malformed notification for %s: %v", learnerID, err)
			continue
		}
		out = append(out, note)
	}
	return out, nil
}

// Subscribe returns a channel receiving the learner's notifications.
// The caller must invoke the returned cancel function to avoid leaks.
func (n *Notifier) Subscribe(ctx context.Context, learnerID string) (<-chan domain.Notification, func(), error) {
	pubsub := n.client.Subscribe(ctx, notificationsKey(learnerID))
	// Wait for the subscription to be confirmed before returning.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, err
	}

	out := make(chan domain.Notification, 8)
	done := make(chan struct{})
	go func() {
		defer close(out)
		msgs := pubsub.Channel()
		for {
			select {
			case <-done:
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var note domain.Notification
				if err := json.Unmarshal([]byte(msg.Payload), &note); err != nil {
					log.Printf("skip malformed notification for %s: %v", learnerID, err)
					continue
				}
				select {
				case out <- note:
				default:
					// slow client: drop the oldest pending notification
					select {
					case <-out:
					default:
					}
					out <- note
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
		})
	}
	return out, cancel, nil
}

func notificationsKey(learnerID string) string {
	return "notifications:" + learnerID
}
