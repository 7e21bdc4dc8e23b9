package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"matching_service/config"
	"matching_service/models"
)

// maxTxAttempts bounds optimistic WATCH retries for one logical operation.
const maxTxAttempts = 5

// RedisService is the queue store. Every multi-key mutation runs as one MULTI/EXEC
// guarded by WATCH on the keys it reads.
type RedisService struct {
	Client *redis.Client
	TTL    time.Duration
	DB     int
	Now    func() time.Time
}

// InitializeRedisClient builds a client from config
func InitializeRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// NewRedisService wraps client with the sentinel lifetime ttl
func NewRedisService(client *redis.Client, ttl time.Duration, db int) *RedisService {
	return &RedisService{Client: client, TTL: ttl, DB: db, Now: time.Now}
}

func UserKey(userID string) string     { return models.UserKeyPrefix + userID }
func SentinelKey(userID string) string { return models.SentinelKeyPrefix + userID }

// Ping checks store connectivity
func (s *RedisService) Ping(ctx context.Context) error {
	if err := s.Client.Ping(ctx).Err(); err != nil {
		return models.StoreError(err, "Ping", "ping")
	}
	return nil
}

// EnableExpiryNotifications turns on expired-key events (E = keyevent channel, x = expired)
func (s *RedisService) EnableExpiryNotifications(ctx context.Context) error {
	if err := s.Client.ConfigSet(ctx, "notify-keyspace-events", "Ex").Err(); err != nil {
		return models.StoreError(err, "EnableExpiryNotifications", "config set")
	}
	return nil
}

// watch runs fn inside WATCH keys, retrying when a watched key changed before EXEC.
func (s *RedisService) watch(ctx context.Context, method string, fn func(*redis.Tx) error, keys ...string) error {
	var err error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err = s.Client.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
		log.Printf("🔄 %s: watched keys changed, retrying (attempt %d)", method, attempt+1)
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, redis.TxFailedErr):
		return fmt.Errorf("%s: %w after %d attempts", method, models.ErrContention, maxTxAttempts)
	case errors.Is(err, models.ErrLostRace), errors.Is(err, models.ErrNotQueued):
		return err
	default:
		return models.StoreError(err, method, "transaction")
	}
}

func decodeRequest(raw string) (models.MatchRequest, error) {
	var req models.MatchRequest
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		return req, fmt.Errorf("failed to decode stored request: %w", err)
	}
	return req, nil
}

// Enqueue stores the sentinel, the record and the queue membership together. A previous
// request from the same user is replaced: its membership moves and its sentinel restarts.
func (s *RedisService) Enqueue(ctx context.Context, req *models.MatchRequest) error {
	if req.EnqueuedAt == 0 {
		req.EnqueuedAt = s.Now().UnixMilli()
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	userKey := UserKey(req.UserID)
	queueKey := req.Criteria().String()

	return s.watch(ctx, "Enqueue", func(tx *redis.Tx) error {
		var previousKey string
		raw, err := tx.Get(ctx, userKey).Result()
		switch {
		case err == nil:
			if prev, decodeErr := decodeRequest(raw); decodeErr == nil {
				previousKey = prev.Criteria().String()
			}
		case !errors.Is(err, redis.Nil):
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if previousKey != "" && previousKey != queueKey {
				pipe.ZRem(ctx, previousKey, req.UserID)
			}
			pipe.Set(ctx, SentinelKey(req.UserID), 1, s.TTL)
			pipe.Set(ctx, userKey, payload, 0)
			pipe.ZAdd(ctx, queueKey, redis.Z{Score: float64(req.EnqueuedAt), Member: req.UserID})
			return nil
		})
		return err
	}, userKey)
}

// Members returns a queue's userIds ascending by enqueue time
func (s *RedisService) Members(ctx context.Context, queueKey string) ([]string, error) {
	ids, err := s.Client.ZRange(ctx, queueKey, 0, -1).Result()
	if err != nil {
		return nil, models.StoreError(err, "Members", "zrange "+queueKey)
	}
	return ids, nil
}

// MembersWithScores returns a queue's entries with their enqueue scores
func (s *RedisService) MembersWithScores(ctx context.Context, queueKey string) ([]models.QueueEntry, error) {
	zs, err := s.Client.ZRangeWithScores(ctx, queueKey, 0, -1).Result()
	if err != nil {
		return nil, models.StoreError(err, "MembersWithScores", "zrange "+queueKey)
	}
	entries := make([]models.QueueEntry, 0, len(zs))
	for _, z := range zs {
		id, ok := z.Member.(string)
		if !ok {
			continue
		}
		entries = append(entries, models.QueueEntry{UserID: id, Score: z.Score})
	}
	return entries, nil
}

// ConfirmPair verifies both records and sentinels exist and removes all six keys' worth of state
// in one transaction. It returns models.ErrLostRace when either side is already gone.
func (s *RedisService) ConfirmPair(ctx context.Context, firstID, secondID string) (models.MatchRequest, models.MatchRequest, error) {
	var first, second models.MatchRequest
	if firstID == secondID {
		return first, second, fmt.Errorf("%w: cannot pair %s with itself", models.ErrLostRace, firstID)
	}
	keys := []string{UserKey(firstID), UserKey(secondID), SentinelKey(firstID), SentinelKey(secondID)}

	err := s.watch(ctx, "ConfirmPair", func(tx *redis.Tx) error {
		values, err := tx.MGet(ctx, keys...).Result()
		if err != nil {
			return err
		}
		for _, v := range values {
			if v == nil {
				return models.ErrLostRace
			}
		}
		rawFirst, _ := values[0].(string)
		rawSecond, _ := values[1].(string)
		if first, err = decodeRequest(rawFirst); err != nil {
			return err
		}
		if second, err = decodeRequest(rawSecond); err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.ZRem(ctx, first.Criteria().String(), firstID)
			pipe.ZRem(ctx, second.Criteria().String(), secondID)
			pipe.Del(ctx, keys...)
			return nil
		})
		return err
	}, keys...)
	if errors.Is(err, models.ErrContention) {
		// the pair keeps changing under the lock, another walk is consuming it
		err = fmt.Errorf("%w: %w", models.ErrLostRace, err)
	}
	return first, second, err
}

// Lookup returns the stored request for userID or models.ErrNotQueued
func (s *RedisService) Lookup(ctx context.Context, userID string) (*models.MatchRequest, error) {
	raw, err := s.Client.Get(ctx, UserKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, models.ErrNotQueued
	}
	if err != nil {
		return nil, models.StoreError(err, "Lookup", "get")
	}
	req, err := decodeRequest(raw)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// Status reports the user's outstanding request and its remaining lifetime
func (s *RedisService) Status(ctx context.Context, userID string) (models.QueueStatus, error) {
	var (
		get  *redis.StringCmd
		pttl *redis.DurationCmd
	)
	_, err := s.Client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		get = pipe.Get(ctx, UserKey(userID))
		pttl = pipe.PTTL(ctx, SentinelKey(userID))
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return models.QueueStatus{}, models.StoreError(err, "Status", "pipeline")
	}
	raw, err := get.Result()
	if errors.Is(err, redis.Nil) {
		return models.QueueStatus{Queued: false}, nil
	}
	req, err := decodeRequest(raw)
	if err != nil {
		return models.QueueStatus{}, err
	}
	status := models.QueueStatus{
		QueueKey:   req.Criteria().String(),
		EnqueuedAt: req.EnqueuedAt,
	}
	// a record without a live sentinel is awaiting purge and can no longer be matched
	if remaining := pttl.Val(); remaining > 0 {
		status.Queued = true
		status.ExpiresInMs = remaining.Milliseconds()
	} else {
		status.Expired = true
	}
	return status, nil
}

// Remove withdraws userID's request: membership, record and sentinel
func (s *RedisService) Remove(ctx context.Context, userID string) (*models.MatchRequest, error) {
	userKey := UserKey(userID)
	var removed models.MatchRequest

	err := s.watch(ctx, "Remove", func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, userKey).Result()
		if errors.Is(err, redis.Nil) {
			return models.ErrNotQueued
		}
		if err != nil {
			return err
		}
		if removed, err = decodeRequest(raw); err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.ZRem(ctx, removed.Criteria().String(), userID)
			pipe.Del(ctx, userKey, SentinelKey(userID))
			return nil
		})
		return err
	}, userKey, SentinelKey(userID))
	if err != nil {
		return nil, err
	}
	return &removed, nil
}

// PurgeExpired removes userID from queueKey with its record and sentinel, but only while the
// sentinel is absent. It reports whether anything was purged.
func (s *RedisService) PurgeExpired(ctx context.Context, queueKey, userID string) (bool, error) {
	userKey, sentinelKey := UserKey(userID), SentinelKey(userID)
	purged := false

	err := s.watch(ctx, "PurgeExpired", func(tx *redis.Tx) error {
		purged = false
		alive, err := tx.Exists(ctx, sentinelKey).Result()
		if err != nil {
			return err
		}
		if alive > 0 {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.ZRem(ctx, queueKey, userID)
			pipe.Del(ctx, userKey, sentinelKey)
			return nil
		})
		if err == nil {
			purged = true
		}
		return err
	}, sentinelKey, userKey)
	return purged, err
}

// QueueKeys lists every queue currently present in the store
func (s *RedisService) QueueKeys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.Client.Scan(ctx, 0, models.QueueKeyPrefix+":*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, models.StoreError(err, "QueueKeys", "scan")
	}
	return keys, nil
}

// SubscribeExpired converts the store's expired-key events into typed sentinel events.
// The channel closes when ctx is done or the subscription drops.
func (s *RedisService) SubscribeExpired(ctx context.Context) (<-chan models.SentinelExpired, error) {
	channel := fmt.Sprintf("__keyevent@%d__:expired", s.DB)
	pubsub := s.Client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, models.StoreError(err, "SubscribeExpired", "subscribe "+channel)
	}
	log.Printf("⏰ Listening for expired sentinels on %s", channel)

	out := make(chan models.SentinelExpired, 64)
	go func() {
		defer close(out)
		defer pubsub.Close()
		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				userID, isSentinel := strings.CutPrefix(msg.Payload, models.SentinelKeyPrefix)
				if !isSentinel || userID == "" {
					continue
				}
				select {
				case out <- models.SentinelExpired{UserID: userID}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
