package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"matching_service/metrics"
	"matching_service/models"
	"matching_service/utils"
)

// QueueStore is what the matching engine needs from the backing store
type QueueStore interface {
	Enqueue(ctx context.Context, req *models.MatchRequest) error
	Members(ctx context.Context, queueKey string) ([]string, error)
	MembersWithScores(ctx context.Context, queueKey string) ([]models.QueueEntry, error)
	ConfirmPair(ctx context.Context, firstID, secondID string) (models.MatchRequest, models.MatchRequest, error)
	Remove(ctx context.Context, userID string) (*models.MatchRequest, error)
	Status(ctx context.Context, userID string) (models.QueueStatus, error)
}

// Notifier delivers matchmaking outcomes to connected users
type Notifier interface {
	NotifyMatch(pair models.ConfirmedPair)
	NotifyClosed(userID, reason string)
}

// MatchService struct
type MatchService struct {
	Store          QueueStore
	Resolver       Resolver
	Notifier       Notifier
	Metrics        *metrics.Collectors
	FanoutLimit    int
	PairingTimeout time.Duration

	wg sync.WaitGroup
}

// StartMatchingInput is the /match/start payload
type StartMatchingInput struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email,omitempty"`
	Picture     string `json:"picture,omitempty"`
	Difficulty  string `json:"difficulty"`
	Topic       string `json:"topic"`
	Language    string `json:"language"`
}

// BuildRequest validates and normalises the payload
func (s *MatchService) BuildRequest(in StartMatchingInput) (*models.MatchRequest, error) {
	required := []struct{ field, value string }{
		{"userId", in.UserID},
		{"displayName", in.DisplayName},
		{"difficulty", in.Difficulty},
		{"topic", in.Topic},
		{"language", in.Language},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return nil, &models.ValidationError{Field: r.field, Reason: "is required"}
		}
	}
	key := utils.NormaliseKey(in.Difficulty, in.Topic, in.Language)
	if field, ok := s.Resolver.Taxonomy.Knows(key); !ok {
		return nil, &models.ValidationError{Field: field, Reason: "unknown value"}
	}
	return &models.MatchRequest{
		UserID:      strings.TrimSpace(in.UserID),
		DisplayName: in.DisplayName,
		Email:       in.Email,
		Picture:     in.Picture,
		Difficulty:  key.Difficulty,
		Topic:       key.Topic,
		Language:    key.Language,
	}, nil
}

// StartMatching enqueues the request and launches pairing in the background. It returns
// once the request is stored; outcomes arrive only through the Notifier.
func (s *MatchService) StartMatching(ctx context.Context, in StartMatchingInput) (*models.MatchRequest, error) {
	req, err := s.BuildRequest(in)
	if err != nil {
		s.Metrics.Enqueued.WithLabelValues("invalid").Inc()
		return nil, err
	}
	if err := s.Store.Enqueue(ctx, req); err != nil {
		s.Metrics.Enqueued.WithLabelValues("error").Inc()
		log.Printf("❌ Failed to enqueue user %s: %v", req.UserID, err)
		return nil, err
	}
	s.Metrics.Enqueued.WithLabelValues("ok").Inc()
	log.Printf("✅ Enqueued user %s into %s at %s", req.UserID, req.Criteria(), req.EnqueuedTime().Format(time.RFC3339))

	s.launchPairing(req.Criteria())
	return req, nil
}

// launchPairing runs one pairing walk on its own goroutine with a recover boundary.
// Failures are logged; affected requests stay queued until paired or expired.
func (s *MatchService) launchPairing(key models.QueueKey) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.Metrics.PairingFailures.Inc()
				log.Printf("❌ Pairing for %s panicked: %v\n%s", key, r, debug.Stack())
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), s.PairingTimeout)
		defer cancel()

		pairs, err := s.Pair(ctx, key)
		if err != nil {
			s.Metrics.PairingFailures.Inc()
			log.Printf("❌ Pairing for %s failed: %v", key, err)
		}
		for _, pair := range pairs {
			s.Notifier.NotifyMatch(pair)
		}
	}()
}

// Wait blocks until every launched pairing walk has finished
func (s *MatchService) Wait() {
	s.wg.Wait()
}

// candidates reads every compatible queue concurrently and merges them: duplicate ids keep
// their lowest score, and the result is ascending by score.
func (s *MatchService) candidates(ctx context.Context, key models.QueueKey) ([]models.QueueEntry, error) {
	keys := s.Resolver.CompatibleKeys(key)
	results := make([][]models.QueueEntry, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.FanoutLimit)
	for i, k := range keys {
		i, queueKey := i, k.String()
		g.Go(func() error {
			entries, err := s.Store.MembersWithScores(gctx, queueKey)
			if err != nil {
				return err
			}
			results[i] = entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	best := make(map[string]float64)
	for _, entries := range results {
		for _, e := range entries {
			if score, seen := best[e.UserID]; !seen || e.Score < score {
				best[e.UserID] = e.Score
			}
		}
	}
	merged := make([]models.QueueEntry, 0, len(best))
	for id, score := range best {
		merged = append(merged, models.QueueEntry{UserID: id, Score: score})
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].Score != merged[j].Score {
			return merged[i].Score < merged[j].Score
		}
		return merged[i].UserID < merged[j].UserID
	})
	return merged, nil
}

// Pair walks the exact queue for key against its compatible candidates and confirms as many
// pairs as it can. Exact-queue users are paired index-wise with candidates first; once the
// candidates run out, remaining exact-queue users are paired with each other.
func (s *MatchService) Pair(ctx context.Context, key models.QueueKey) ([]models.ConfirmedPair, error) {
	start := time.Now()
	defer func() { s.Metrics.PairingDuration.Observe(time.Since(start).Seconds()) }()

	exact, err := s.Store.Members(ctx, key.String())
	if err != nil {
		return nil, err
	}
	if len(exact) == 0 {
		return nil, nil
	}
	candidates, err := s.candidates(ctx, key)
	if err != nil {
		return nil, err
	}

	var pairs []models.ConfirmedPair
	for i := 0; i < len(exact); {
		var firstID, secondID string
		switch {
		case i < len(candidates):
			firstID, secondID = exact[i], candidates[i].UserID
			i++
		case i+1 < len(exact):
			firstID, secondID = exact[i], exact[i+1]
			i += 2
		default:
			i = len(exact)
			continue
		}

		pair, err := s.confirm(ctx, firstID, secondID)
		if errors.Is(err, models.ErrLostRace) {
			s.Metrics.LostRaces.Inc()
			log.Printf("⚠️ Skipping pair (%s, %s): %v", firstID, secondID, err)
			continue
		}
		if err != nil {
			return pairs, err
		}
		pairs = append(pairs, pair)
	}
	return pairs, nil
}

func (s *MatchService) confirm(ctx context.Context, firstID, secondID string) (models.ConfirmedPair, error) {
	first, second, err := s.Store.ConfirmPair(ctx, firstID, secondID)
	if err != nil {
		return models.ConfirmedPair{}, err
	}
	// The pair is already out of the store, so a seed failure must not lose it.
	seed, err := utils.QuestionSeed()
	if err != nil {
		log.Printf("⚠️ Falling back to uuid question seed: %v", err)
		seed = strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	}
	pair := models.ConfirmedPair{
		MatchID:      uuid.NewString(),
		First:        first,
		Second:       second,
		Criteria:     ResolveCriteria(first, second),
		QuestionSeed: seed,
	}
	s.Metrics.PairsConfirmed.Inc()
	log.Printf("✅ Matched %s with %s on %s (match %s)", firstID, secondID, pair.Criteria, pair.MatchID)
	return pair, nil
}

// Cancel withdraws the user's request and closes their connection
func (s *MatchService) Cancel(ctx context.Context, userID string) error {
	if _, err := s.Store.Remove(ctx, userID); err != nil {
		return err
	}
	s.Metrics.Cancelled.Inc()
	log.Printf("🛑 Cancelled matching for user %s", userID)
	s.Notifier.NotifyClosed(userID, models.ReasonCancelled)
	return nil
}

// Withdraw removes the user's request without notifying; used when their connection drops.
func (s *MatchService) Withdraw(ctx context.Context, userID string) error {
	_, err := s.Store.Remove(ctx, userID)
	if errors.Is(err, models.ErrNotQueued) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to withdraw %s: %w", userID, err)
	}
	s.Metrics.Cancelled.Inc()
	log.Printf("🔌 Withdrew user %s after disconnect", userID)
	return nil
}

// Status reports the user's queue state
func (s *MatchService) Status(ctx context.Context, userID string) (models.QueueStatus, error) {
	return s.Store.Status(ctx, userID)
}
