package dedup

import (
	"context"
	"crypto/sha256"
	"dm-relay/domain"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisWindow shares the window between several server instances.
// Entries expire through the key TTL; first_seen_at is still checked
// so that the window semantics do not depend on Redis eviction timing.
// A send is claimed with a pending entry before it is written, which makes
// one instance the writer when the same send reaches several of them.
type RedisWindow struct {
	client *redis.Client
	prefix string
	length time.Duration
	poll   time.Duration
}

type redisEntry struct {
	Message     domain.Message `json:"message"`
	FirstSeenAt int64          `json:"first_seen_at"`
	Pending     bool           `json:"pending,omitempty"`
}

// DefaultClaimPoll is how often a losing instance checks for the winner's message.
const DefaultClaimPoll = 25 * time.Millisecond

// NewRedisWindow connects to redisURL (redis://...) and checks the connection.
func NewRedisWindow(ctx context.Context, redisURL string, length time.Duration) (*RedisWindow, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return NewRedisWindowFromClient(client, "dedup", length), nil
}

func NewRedisWindowFromClient(client *redis.Client, prefix string, length time.Duration) *RedisWindow {
	if length <= 0 {
		length = DefaultWindow
	}
	return &RedisWindow{client: client, prefix: prefix, length: length, poll: DefaultClaimPoll}
}

func (w *RedisWindow) Close() error {
	return w.client.Close()
}

// key hashes the content so that arbitrary text never ends up in a key name.
func (w *RedisWindow) key(k domain.DedupKey) string {
	sum := sha256.Sum256([]byte(k.Content))
	return fmt.Sprintf("%s:%d:%d:%s", w.prefix, k.SenderID, k.ReceiverID, hex.EncodeToString(sum[:]))
}

func (w *RedisWindow) Record(ctx context.Context, key domain.DedupKey, msg domain.Message, now time.Time) error {
	data, err := json.Marshal(redisEntry{Message: msg, FirstSeenAt: now.UnixNano()})
	if err != nil {
		return err
	}
	return w.client.Set(ctx, w.key(key), data, w.length).Err()
}

func (w *RedisWindow) Lookup(ctx context.Context, key domain.DedupKey, now time.Time) (domain.Message, bool, error) {
	e, found, err := w.get(ctx, w.client, w.key(key))
	if err != nil || !found || e.Pending || w.expired(e, now) {
		return domain.Message{}, false, err
	}
	return e.Message, true, nil
}

// Claim reserves key for this instance unless a fresh entry exists.
// A fresh pending entry belongs to a writer on another instance: Claim polls until
// its message is recorded and returns it with claimed false.
// A pending entry that never completes expires with its TTL and is then taken over.
func (w *RedisWindow) Claim(ctx context.Context, key domain.DedupKey, now time.Time) (domain.Message, bool, error) {
	k := w.key(key)
	pending, err := json.Marshal(redisEntry{Pending: true, FirstSeenAt: now.UnixNano()})
	if err != nil {
		return domain.Message{}, false, err
	}

	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()
	for {
		var holder *redisEntry
		err := w.client.Watch(ctx, func(tx *redis.Tx) error {
			e, found, err := w.get(ctx, tx, k)
			if err != nil {
				return err
			}
			if found && !w.expired(e, now) {
				holder = &e
				return nil
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, k, pending, w.length)
				return nil
			})
			return err
		}, k)

		switch {
		case stderrors.Is(err, redis.TxFailedErr):
			continue
		case err != nil:
			return domain.Message{}, false, err
		case holder == nil:
			return domain.Message{}, true, nil
		case !holder.Pending:
			return holder.Message, false, nil
		}

		select {
		case <-ctx.Done():
			return domain.Message{}, false, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Release removes a pending claim. A recorded entry is left in place.
func (w *RedisWindow) Release(ctx context.Context, key domain.DedupKey) error {
	k := w.key(key)
	err := w.client.Watch(ctx, func(tx *redis.Tx) error {
		e, found, err := w.get(ctx, tx, k)
		if err != nil || !found || !e.Pending {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, k)
			return nil
		})
		return err
	}, k)
	if stderrors.Is(err, redis.TxFailedErr) {
		return nil
	}
	return err
}

func (w *RedisWindow) get(ctx context.Context, c redis.Cmdable, k string) (redisEntry, bool, error) {
	data, err := c.Get(ctx, k).Bytes()
	if stderrors.Is(err, redis.Nil) {
		return redisEntry{}, false, nil
	}
	if err != nil {
		return redisEntry{}, false, err
	}
	var e redisEntry
	if err := json.Unmarshal(data, &e); err != nil {
		return redisEntry{}, false, err
	}
	return e, true, nil
}

func (w *RedisWindow) expired(e redisEntry, now time.Time) bool {
	return now.Sub(time.Unix(0, e.FirstSeenAt)) >= w.length
}
