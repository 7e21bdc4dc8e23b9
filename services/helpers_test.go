package services

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"matching_service/metrics"
	"matching_service/models"
)

const testTTL = 60 * time.Second

func newTestStore(t *testing.T) (*RedisService, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := NewRedisService(client, testTTL, 0)
	var clock atomic.Int64
	clock.Store(1_700_000_000_000)
	store.Now = func() time.Time { return time.UnixMilli(clock.Add(1)) }
	return store, mr
}

type recordingNotifier struct {
	mu      sync.Mutex
	matches []models.ConfirmedPair
	closed  map[string]string
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{closed: make(map[string]string)}
}

func (n *recordingNotifier) NotifyMatch(pair models.ConfirmedPair) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.matches = append(n.matches, pair)
}

func (n *recordingNotifier) NotifyClosed(userID, reason string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.closed[userID] = reason
}

func (n *recordingNotifier) Matches() []models.ConfirmedPair {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]models.ConfirmedPair(nil), n.matches...)
}

func (n *recordingNotifier) ClosedReason(userID string) (string, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	reason, ok := n.closed[userID]
	return reason, ok
}

func newTestMatchService(store *RedisService, notifier Notifier) *MatchService {
	return &MatchService{
		Store:          store,
		Resolver:       Resolver{Taxonomy: models.DefaultTaxonomy()},
		Notifier:       notifier,
		Metrics:        metrics.New(prometheus.NewRegistry()),
		FanoutLimit:    8,
		PairingTimeout: 5 * time.Second,
	}
}

func request(userID, difficulty, topic, language string) *models.MatchRequest {
	return &models.MatchRequest{
		UserID:      userID,
		DisplayName: "User " + userID,
		Difficulty:  difficulty,
		Topic:       topic,
		Language:    language,
	}
}
