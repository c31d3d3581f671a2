package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var enqueueScript = redis.NewScript(`
if redis.call('HEXISTS', KEYS[1], ARGV[1]) == 1 then
	return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
redis.call('ZADD', KEYS[2], ARGV[3], ARGV[1])
return 1
`)

var claimScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', ARGV[1], 'LIMIT', 0, 1)
if #ids == 0 then
	return false
end
local id = ids[1]
redis.call('ZREM', KEYS[2], id)
redis.call('ZADD', KEYS[3], ARGV[2], id)
local reaped = tonumber(redis.call('HGET', KEYS[4], id) or '0')
return {redis.call('HGET', KEYS[1], id), reaped}
`)

var requeueScript = redis.NewScript(`
redis.call('ZREM', KEYS[3], ARGV[1])
redis.call('HDEL', KEYS[4], ARGV[1])
redis.call('HSET', KEYS[1], ARGV[1], ARGV[2])
redis.call('ZADD', KEYS[2], ARGV[3], ARGV[1])
return 1
`)

var ackScript = redis.NewScript(`
redis.call('ZREM', KEYS[3], ARGV[1])
redis.call('ZREM', KEYS[2], ARGV[1])
redis.call('HDEL', KEYS[1], ARGV[1])
redis.call('HDEL', KEYS[4], ARGV[1])
return 1
`)

var reapScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[3], '-inf', ARGV[1])
for _, id in ipairs(ids) do
	redis.call('ZREM', KEYS[3], id)
	redis.call('ZADD', KEYS[2], ARGV[1], id)
	redis.call('HINCRBY', KEYS[4], id, 1)
end
return #ids
`)

// RedisQueue keeps task bodies in a hash and task ids in two sorted sets:
// ready (scored by eligible time) and inflight (scored by lease deadline).
// Lease expiries are counted per task in a separate hash until the next
// requeue or ack folds them into the body.
type RedisQueue struct {
	rdb  redis.UniversalClient
	keys []string
}

func NewRedisQueue(rdb redis.UniversalClient, prefix string) *RedisQueue {
	return &RedisQueue{
		rdb: rdb,
		keys: []string{
			prefix + ":tasks",
			prefix + ":ready",
			prefix + ":inflight",
			prefix + ":reaped",
		},
	}
}

// NewRedisClient builds a client from a redis:// URL.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis %w", err)
	}
	return client, nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, task *Task) (bool, error) {
	body, err := json.Marshal(task)
	if err != nil {
		return false, fmt.Errorf("%w", err)
	}
	added, err := enqueueScript.Run(ctx, q.rdb, q.keys, task.ID, body, task.EligibleAt.UnixMilli()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to enqueue %s: %w", task.ID, err)
	}
	return added == 1, nil
}

func (q *RedisQueue) Claim(ctx context.Context, now time.Time, lease time.Duration) (*Task, error) {
	res, err := claimScript.Run(ctx, q.rdb, q.keys, now.UnixMilli(), now.Add(lease).UnixMilli()).Slice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("failed to claim task %w", err)
	}
	if len(res) != 2 {
		return nil, fmt.Errorf("unexpected claim reply %v", res)
	}
	body, _ := res[0].(string)
	var task Task
	if err := json.Unmarshal([]byte(body), &task); err != nil {
		return nil, fmt.Errorf("corrupted task body %w", err)
	}
	if reaped, _ := res[1].(int64); reaped > 0 {
		task.Attempt += int(reaped)
		task.LastError = leaseExpired
	}
	return &task, nil
}

func (q *RedisQueue) Requeue(ctx context.Context, task *Task) error {
	body, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("%w", err)
	}
	if err := requeueScript.Run(ctx, q.rdb, q.keys, task.ID, body, task.EligibleAt.UnixMilli()).Err(); err != nil {
		return fmt.Errorf("failed to requeue %s: %w", task.ID, err)
	}
	return nil
}

func (q *RedisQueue) Ack(ctx context.Context, id string) error {
	if err := ackScript.Run(ctx, q.rdb, q.keys, id).Err(); err != nil {
		return fmt.Errorf("failed to ack %s: %w", id, err)
	}
	return nil
}

func (q *RedisQueue) Reap(ctx context.Context, now time.Time) (int, error) {
	n, err := reapScript.Run(ctx, q.rdb, q.keys, now.UnixMilli()).Int()
	if err != nil {
		return 0, fmt.Errorf("failed to reap leases %w", err)
	}
	return n, nil
}

func (q *RedisQueue) Get(ctx context.Context, id string) (*Task, error) {
	body, err := q.rdb.HGet(ctx, q.keys[0], id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("%w", err)
	}
	var task Task
	if err := json.Unmarshal(body, &task); err != nil {
		return nil, fmt.Errorf("corrupted task body %w", err)
	}
	return &task, nil
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.rdb.Ping(ctx).Err()
}
