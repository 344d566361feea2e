package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists jobs in Redis so queued work survives restarts and can
// be shared across processes.
//
// Key layout, all under the configured prefix:
//
//	job:<id>            job document as JSON
//	waiting:<type>      ZSET scored by priority then enqueue time
//	delayed:<type>      ZSET scored by the ready-at time in unix millis
//	active:<type>       ZSET scored by the lease expiry in unix millis
//	completed:<type>    ZSET scored by completion time in unix millis
//	failed:<type>       ZSET scored by failure time in unix millis
//	types               SET of job types seen by this store
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore builds a store on top of client. prefix namespaces the keys;
// it defaults to "automation:".
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "automation:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

var _ Store = (*RedisStore)(nil)

func (s *RedisStore) jobKey(id string) string      { return s.prefix + "job:" + id }
func (s *RedisStore) waitingKey(t string) string   { return s.prefix + "waiting:" + t }
func (s *RedisStore) delayedKey(t string) string   { return s.prefix + "delayed:" + t }
func (s *RedisStore) activeKey(t string) string    { return s.prefix + "active:" + t }
func (s *RedisStore) completedKey(t string) string { return s.prefix + "completed:" + t }
func (s *RedisStore) failedKey(t string) string    { return s.prefix + "failed:" + t }
func (s *RedisStore) typesKey() string             { return s.prefix + "types" }

// waitingScore orders waiting jobs by priority first, enqueue time second.
// The priority band dominates because a millisecond timestamp never reaches
// the band width.
func waitingScore(j *Job) float64 {
	return float64(j.Priority)*1e15 + float64(j.CreatedAt.UnixMilli())
}

func (s *RedisStore) saveJob(ctx context.Context, j *Job) error {
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("queue: encode job %s: %w", j.ID, err)
	}
	return s.client.Set(ctx, s.jobKey(j.ID), data, 0).Err()
}

func (s *RedisStore) loadJob(ctx context.Context, id string) (*Job, error) {
	data, err := s.client.Get(ctx, s.jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("queue: decode job %s: %w", id, err)
	}
	return &j, nil
}

func (s *RedisStore) Enqueue(ctx context.Context, job *Job) (*Job, bool, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return nil, false, fmt.Errorf("queue: encode job %s: %w", job.ID, err)
	}
	set, err := s.client.SetNX(ctx, s.jobKey(job.ID), data, 0).Result()
	if err != nil {
		return nil, false, err
	}
	if !set {
		existing, err := s.loadJob(ctx, job.ID)
		if err != nil {
			return nil, false, err
		}
		if existing != nil {
			return existing, true, nil
		}
		// Document vanished between SetNX and Get; treat as fresh.
		if err := s.saveJob(ctx, job); err != nil {
			return nil, false, err
		}
	}

	if err := s.client.SAdd(ctx, s.typesKey(), job.Type).Err(); err != nil {
		return nil, false, err
	}
	now := time.Now().UTC()
	if job.ReadyAt.After(now) {
		err = s.client.ZAdd(ctx, s.delayedKey(job.Type), redis.Z{
			Score:  float64(job.ReadyAt.UnixMilli()),
			Member: job.ID,
		}).Err()
	} else {
		err = s.client.ZAdd(ctx, s.waitingKey(job.Type), redis.Z{
			Score:  waitingScore(job),
			Member: job.ID,
		}).Err()
	}
	if err != nil {
		return nil, false, err
	}
	cp := *job
	return &cp, false, nil
}

// promoteDelayed moves due delayed jobs of jobType into the waiting set.
func (s *RedisStore) promoteDelayed(ctx context.Context, jobType string, now time.Time) error {
	ids, err := s.client.ZRangeByScore(ctx, s.delayedKey(jobType), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: 100,
	}).Result()
	if err != nil {
		return err
	}
	for _, id := range ids {
		j, err := s.loadJob(ctx, id)
		if err != nil {
			return err
		}
		if err := s.client.ZRem(ctx, s.delayedKey(jobType), id).Err(); err != nil {
			return err
		}
		if j == nil {
			continue
		}
		if err := s.client.ZAdd(ctx, s.waitingKey(jobType), redis.Z{
			Score:  waitingScore(j),
			Member: id,
		}).Err(); err != nil {
			return err
		}
	}
	return nil
}

func (s *RedisStore) Acquire(ctx context.Context, jobType string, now, leaseUntil time.Time) (*Job, error) {
	if err := s.promoteDelayed(ctx, jobType, now); err != nil {
		return nil, err
	}

	popped, err := s.client.ZPopMin(ctx, s.waitingKey(jobType), 1).Result()
	if err != nil {
		return nil, err
	}
	if len(popped) == 0 {
		return nil, nil
	}
	id, _ := popped[0].Member.(string)
	j, err := s.loadJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if j == nil {
		return nil, nil
	}

	j.Status = StatusActive
	j.Attempts++
	j.LeaseUntil = leaseUntil
	j.UpdatedAt = now
	if err := s.saveJob(ctx, j); err != nil {
		return nil, err
	}
	if err := s.client.ZAdd(ctx, s.activeKey(jobType), redis.Z{
		Score:  float64(leaseUntil.UnixMilli()),
		Member: id,
	}).Err(); err != nil {
		return nil, err
	}
	return j, nil
}

func (s *RedisStore) Complete(ctx context.Context, job *Job) error {
	now := time.Now().UTC()
	job.Status = StatusCompleted
	job.LastError = ""
	job.CompletedAt = now
	job.UpdatedAt = now
	if err := s.saveJob(ctx, job); err != nil {
		return err
	}
	if err := s.client.ZRem(ctx, s.activeKey(job.Type), job.ID).Err(); err != nil {
		return err
	}
	return s.client.ZAdd(ctx, s.completedKey(job.Type), redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: job.ID,
	}).Err()
}

func (s *RedisStore) Retry(ctx context.Context, job *Job, readyAt time.Time) error {
	job.Status = StatusWaiting
	job.LeaseUntil = time.Time{}
	job.ReadyAt = readyAt
	job.UpdatedAt = time.Now().UTC()
	if err := s.saveJob(ctx, job); err != nil {
		return err
	}
	if err := s.client.ZRem(ctx, s.activeKey(job.Type), job.ID).Err(); err != nil {
		return err
	}
	return s.client.ZAdd(ctx, s.delayedKey(job.Type), redis.Z{
		Score:  float64(readyAt.UnixMilli()),
		Member: job.ID,
	}).Err()
}

func (s *RedisStore) Fail(ctx context.Context, job *Job) error {
	now := time.Now().UTC()
	job.Status = StatusFailed
	job.CompletedAt = now
	job.UpdatedAt = now
	if err := s.saveJob(ctx, job); err != nil {
		return err
	}
	if err := s.client.ZRem(ctx, s.activeKey(job.Type), job.ID).Err(); err != nil {
		return err
	}
	return s.client.ZAdd(ctx, s.failedKey(job.Type), redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: job.ID,
	}).Err()
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Job, error) {
	return s.loadJob(ctx, id)
}

func (s *RedisStore) RemoveWaiting(ctx context.Context, id string) (bool, error) {
	j, err := s.loadJob(ctx, id)
	if err != nil {
		return false, err
	}
	if j == nil || j.Status != StatusWaiting {
		return false, nil
	}
	if err := s.client.ZRem(ctx, s.waitingKey(j.Type), id).Err(); err != nil {
		return false, err
	}
	if err := s.client.ZRem(ctx, s.delayedKey(j.Type), id).Err(); err != nil {
		return false, err
	}
	return true, s.client.Del(ctx, s.jobKey(id)).Err()
}

func (s *RedisStore) jobTypes(ctx context.Context) ([]string, error) {
	return s.client.SMembers(ctx, s.typesKey()).Result()
}

func (s *RedisStore) ReclaimStalled(ctx context.Context, now time.Time) ([]*Job, error) {
	types, err := s.jobTypes(ctx)
	if err != nil {
		return nil, err
	}

	var stalled []*Job
	cutoff := strconv.FormatInt(now.UnixMilli(), 10)
	for _, t := range types {
		ids, err := s.client.ZRangeByScore(ctx, s.activeKey(t), &redis.ZRangeBy{
			Min: "-inf",
			Max: cutoff,
		}).Result()
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			j, err := s.loadJob(ctx, id)
			if err != nil {
				return nil, err
			}
			if err := s.client.ZRem(ctx, s.activeKey(t), id).Err(); err != nil {
				return nil, err
			}
			if j == nil {
				continue
			}
			j.Status = StatusWaiting
			j.LeaseUntil = time.Time{}
			j.ReadyAt = now
			j.UpdatedAt = now
			if err := s.saveJob(ctx, j); err != nil {
				return nil, err
			}
			if err := s.client.ZAdd(ctx, s.waitingKey(t), redis.Z{
				Score:  waitingScore(j),
				Member: id,
			}).Err(); err != nil {
				return nil, err
			}
			cp := *j
			cp.Status = StatusStalled
			stalled = append(stalled, &cp)
		}
	}
	return stalled, nil
}

func (s *RedisStore) Stats(ctx context.Context) (map[string]Stats, error) {
	types, err := s.jobTypes(ctx)
	if err != nil {
		return nil, err
	}

	out := make(map[string]Stats, len(types))
	for _, t := range types {
		var st Stats
		waiting, err := s.client.ZCard(ctx, s.waitingKey(t)).Result()
		if err != nil {
			return nil, err
		}
		delayed, err := s.client.ZCard(ctx, s.delayedKey(t)).Result()
		if err != nil {
			return nil, err
		}
		st.Waiting = int(waiting + delayed)
		active, err := s.client.ZCard(ctx, s.activeKey(t)).Result()
		if err != nil {
			return nil, err
		}
		st.Active = int(active)
		completed, err := s.client.ZCard(ctx, s.completedKey(t)).Result()
		if err != nil {
			return nil, err
		}
		st.Completed = int(completed)
		failed, err := s.client.ZCard(ctx, s.failedKey(t)).Result()
		if err != nil {
			return nil, err
		}
		st.Failed = int(failed)
		out[t] = st
	}
	return out, nil
}

func (s *RedisStore) Cleanup(ctx context.Context, completedBefore, failedBefore time.Time) (int, error) {
	types, err := s.jobTypes(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, t := range types {
		n, err := s.evict(ctx, s.completedKey(t), completedBefore)
		if err != nil {
			return removed, err
		}
		removed += n
		n, err = s.evict(ctx, s.failedKey(t), failedBefore)
		if err != nil {
			return removed, err
		}
		removed += n
	}
	return removed, nil
}

func (s *RedisStore) evict(ctx context.Context, key string, before time.Time) (int, error) {
	ids, err := s.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(before.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		if err := s.client.ZRem(ctx, key, id).Err(); err != nil {
			return 0, err
		}
		if err := s.client.Del(ctx, s.jobKey(id)).Err(); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}
