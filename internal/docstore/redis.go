package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/redis/go-redis/v9"
)

const maxTxAttempts = 5

type RedisStore struct {
	client *redis.Client
}

// NewRedisStore keeps each document in a hash {data, version} and publishes
// the path on a per-document channel after every write.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func documentKey(path string) string {
	return "doc:" + path
}

func changeChannel(path string) string {
	return "doc-changes:" + path
}

func (s *RedisStore) Get(ctx context.Context, path string) (*Document, error) {
	vals, err := s.client.HGetAll(ctx, documentKey(path)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s from redis: %w", path, err)
	}

	return decodeHash(path, vals)
}

func decodeHash(path string, vals map[string]string) (*Document, error) {
	if len(vals) == 0 {
		return nil, ErrNotFound
	}

	version, err := strconv.ParseInt(vals["version"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt version for document %s: %w", path, err)
	}

	return &Document{Path: path, Data: json.RawMessage(vals["data"]), Version: version}, nil
}

func (s *RedisStore) Set(ctx context.Context, path string, data any, opts SetOptions) error {
	encoded, err := encode(data)
	if err != nil {
		return err
	}

	key := documentKey(path)

	txf := func(tx *redis.Tx) error {
		vals, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}

		next := encoded
		var version int64

		if current, err := decodeHash(path, vals); err == nil {
			version = current.Version
			if opts.Merge {
				if next, err = mergeObjects(current.Data, encoded); err != nil {
					return err
				}
			}
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}

		return s.commit(ctx, tx, path, next, version+1)
	}

	for range maxTxAttempts {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return fmt.Errorf("failed to write document %s to redis: %w", path, err)
		}
	}

	return fmt.Errorf("failed to write document %s to redis: %w", path, ErrConflict)
}

func (s *RedisStore) CompareAndSet(ctx context.Context, path string, expectedVersion int64, data any) error {
	encoded, err := encode(data)
	if err != nil {
		return err
	}

	key := documentKey(path)

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		vals, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}

		var version int64
		if current, err := decodeHash(path, vals); err == nil {
			version = current.Version
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}

		if version != expectedVersion {
			return ErrConflict
		}

		return s.commit(ctx, tx, path, encoded, version+1)
	}, key)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrConflict), errors.Is(err, redis.TxFailedErr):
		return ErrConflict
	default:
		return fmt.Errorf("failed to write document %s to redis: %w", path, err)
	}
}

func (s *RedisStore) commit(ctx context.Context, tx *redis.Tx, path string, data []byte, version int64) error {
	_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, documentKey(path), "data", string(data), "version", version)
		pipe.Publish(ctx, changeChannel(path), version)
		return nil
	})

	return err
}

func (s *RedisStore) Subscribe(ctx context.Context, path string, fn ChangeFunc) (Unsubscribe, error) {
	pubsub := s.client.Subscribe(ctx, changeChannel(path))

	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to document %s: %w", path, err)
	}

	doc, err := s.Get(ctx, path)
	if err != nil && !errors.Is(err, ErrNotFound) {
		pubsub.Close()
		return nil, err
	}

	fn(doc)

	done := make(chan struct{})

	go func() {
		ch := pubsub.Channel()
		for {
			select {
			case <-done:
				return
			case _, ok := <-ch:
				if !ok {
					return
				}

				doc, err := s.Get(context.Background(), path)
				if err != nil && !errors.Is(err, ErrNotFound) {
					slog.Warn("Failed to refresh document after change",
						slog.String("path", path),
						slog.String("error", err.Error()),
					)
					continue
				}

				fn(doc)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(done)
			pubsub.Close()
		})
	}, nil
}

// Close is a no-op: the client is shared with the cache layer.
func (s *RedisStore) Close() error {
	return nil
}
