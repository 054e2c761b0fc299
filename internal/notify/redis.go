package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	appLog "delfin/internal/log"
)

const redisPollTimeout = 2 * time.Second

// RedisQueue keeps jobs as JSON on a Redis list (LPUSH / BRPOP), so queued
// notifications survive a restart and can be shared by several processes.
type RedisQueue struct {
	client  *redis.Client
	key     string
	workers int

	closing   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Key      string
	Workers  int
}

// NewRedisQueue connects and pings Redis.
func NewRedisQueue(ctx context.Context, opts RedisOptions) (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	appLog.Info("redis queue connected", "addr", opts.Addr, "key", opts.Key)
	return &RedisQueue{
		client:  client,
		key:     opts.Key,
		workers: opts.Workers,
		closing: make(chan struct{}),
	}, nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, job Job) error {
	select {
	case <-q.closing:
		return ErrQueueClosed
	default:
	}
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, data).Err()
}

func (q *RedisQueue) Consume(ctx context.Context, h Handler) {
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i, h)
	}
	q.wg.Wait()
}

func (q *RedisQueue) worker(ctx context.Context, id int, h Handler) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closing:
			return
		default:
		}

		res, err := q.client.BRPop(ctx, redisPollTimeout, q.key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			appLog.Error("redis queue pop failed", err, "worker", id)
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
			case <-q.closing:
			}
			continue
		}
		// res is [key, value]
		if len(res) != 2 {
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			appLog.Error("redis queue: dropping malformed job", err, "worker", id)
			continue
		}
		runJob(ctx, id, h, job)
	}
}

// Close stops the workers after their current poll and closes the client.
func (q *RedisQueue) Close() error {
	q.closeOnce.Do(func() { close(q.closing) })
	q.wg.Wait()
	return q.client.Close()
}
