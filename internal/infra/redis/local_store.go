package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"course-progress-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// LocalStore keeps the learner's progress snapshot and quiz buffers in Redis.
// Keys:
//
//	progress:{learnerID}:snapshot        JSON snapshot
//	quiz:{learnerID}:{lessonID}:buffer   JSON buffer
//	progress:{learnerID}:buffers         set of lesson IDs with a buffer
//
// Every key is refreshed with ttl on write; zero ttl keeps keys forever.
type LocalStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLocalStore(client *redis.Client, ttl time.Duration) *LocalStore {
	return &LocalStore{client: client, ttl: ttl}
}

func (s *LocalStore) LoadSnapshot(ctx context.Context, learnerID string) (domain.ProgressSnapshot, bool, error) {
	raw, err := s.client.Get(ctx, snapshotKey(learnerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.ProgressSnapshot{}, false, nil
	}
	if err != nil {
		return domain.ProgressSnapshot{}, false, err
	}
	snap := domain.NewSnapshot(learnerID)
	if err := json.Unmarshal(raw, &snap); err != nil {
		return domain.ProgressSnapshot{}, false, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Lessons == nil {
		snap.Lessons = make(map[string]domain.LessonProgress)
	}
	if snap.Courses == nil {
		snap.Courses = make(map[string]domain.CourseProgress)
	}
	return snap, true, nil
}

func (s *LocalStore) SaveSnapshot(ctx context.Context, snap domain.ProgressSnapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, snapshotKey(snap.LearnerID), raw, s.ttl).Err()
}

// ClearLearner removes the snapshot, every indexed buffer and the index itself.
func (s *LocalStore) ClearLearner(ctx context.Context, learnerID string) error {
	lessons, err := s.client.SMembers(ctx, buffersKey(learnerID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	keys := []string{snapshotKey(learnerID), buffersKey(learnerID)}
	for _, lessonID := range lessons {
		keys = append(keys, bufferKey(learnerID, lessonID))
	}
	return s.client.Del(ctx, keys...).Err()
}

func (s *LocalStore) LoadBuffer(ctx context.Context, learnerID, lessonID string) (domain.QuizBuffer, bool, error) {
	empty := domain.QuizBuffer{LearnerID: learnerID, LessonID: lessonID}
	raw, err := s.client.Get(ctx, bufferKey(learnerID, lessonID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return empty, false, nil
	}
	if err != nil {
		return empty, false, err
	}
	var buf domain.QuizBuffer
	if err := json.Unmarshal(raw, &buf); err != nil {
		return empty, false, fmt.Errorf("decode quiz buffer: %w", err)
	}
	return buf, true, nil
}

func (s *LocalStore) SaveBuffer(ctx context.Context, buf domain.QuizBuffer) error {
	raw, err := json.Marshal(buf)
	if err != nil {
		return err
	}
	index := buffersKey(buf.LearnerID)
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, bufferKey(buf.LearnerID, buf.LessonID), raw, s.ttl)
	pipe.SAdd(ctx, index, buf.LessonID)
	if s.ttl > 0 {
		pipe.Expire(ctx, index, s.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *LocalStore) DeleteBuffer(ctx context.Context, learnerID, lessonID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, bufferKey(learnerID, lessonID))
	pipe.SRem(ctx, buffersKey(learnerID), lessonID)
	_, err := pipe.Exec(ctx)
	return err
}

func snapshotKey(learnerID string) string {
	return "progress:" + learnerID + ":snapshot"
}

func buffersKey(learnerID string) string {
	return "progress:" + learnerID + ":buffers"
}

func bufferKey(learnerID, lessonID string) string {
	return "quiz:" + learnerID + ":" + lessonID + ":buffer"
}
