package services

import (
	"context"
	"errors"
	"log"
	"time"

	"matching_service/metrics"
	"matching_service/models"
)

// ExpirySource delivers sentinel expiry events
type ExpirySource interface {
	SubscribeExpired(ctx context.Context) (<-chan models.SentinelExpired, error)
}

// ExpiryStore is the slice of the queue store the watcher needs
type ExpiryStore interface {
	Lookup(ctx context.Context, userID string) (*models.MatchRequest, error)
	Members(ctx context.Context, queueKey string) ([]string, error)
	PurgeExpired(ctx context.Context, queueKey, userID string) (bool, error)
	QueueKeys(ctx context.Context) ([]string, error)
}

// ExpiryWatcher garbage-collects queue entries whose sentinel has expired.
type ExpiryWatcher struct {
	Store         ExpiryStore
	Source        ExpirySource
	Notifier      Notifier
	Metrics       *metrics.Collectors
	SweepInterval time.Duration
}

// Run consumes expiry events until ctx is done. When SweepInterval is set it also
// sweeps every queue periodically, which recovers events missed while disconnected.
func (w *ExpiryWatcher) Run(ctx context.Context) error {
	events, err := w.Source.SubscribeExpired(ctx)
	if err != nil {
		return err
	}

	var sweep <-chan time.Time
	if w.SweepInterval > 0 {
		ticker := time.NewTicker(w.SweepInterval)
		defer ticker.Stop()
		sweep = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return errors.New("expiry subscription closed")
			}
			if _, err := w.HandleExpired(ctx, ev); err != nil {
				log.Printf("❌ Failed to clean up after %s expired: %v", ev.UserID, err)
			}
		case <-sweep:
			if _, err := w.Sweep(ctx); err != nil {
				log.Printf("❌ Queue sweep failed: %v", err)
			}
		}
	}
}

// HandleExpired purges the expired user's queue up to and including that user, taking every
// entry whose sentinel is also gone along the way. It returns the purged ids.
func (w *ExpiryWatcher) HandleExpired(ctx context.Context, ev models.SentinelExpired) ([]string, error) {
	req, err := w.Store.Lookup(ctx, ev.UserID)
	if errors.Is(err, models.ErrNotQueued) {
		// already paired, cancelled or purged
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	queueKey := req.Criteria().String()
	purged, err := w.purgeQueue(ctx, queueKey, ev.UserID)
	if len(purged) > 0 {
		log.Printf("⏰ Sentinel for %s expired, purged %d entries from %s", ev.UserID, len(purged), queueKey)
	}
	return purged, err
}

// Sweep runs the purge over every queue in the store
func (w *ExpiryWatcher) Sweep(ctx context.Context) ([]string, error) {
	keys, err := w.Store.QueueKeys(ctx)
	if err != nil {
		return nil, err
	}
	var purged []string
	for _, key := range keys {
		ids, err := w.purgeQueue(ctx, key, "")
		purged = append(purged, ids...)
		if err != nil {
			return purged, err
		}
	}
	if len(purged) > 0 {
		log.Printf("🧹 Sweep purged %d stale entries", len(purged))
	}
	return purged, nil
}

// purgeQueue walks queueKey in enqueue order purging sentinel-less entries, stopping after
// stopAt (empty means walk the whole queue). Each purged user is told the request timed out.
func (w *ExpiryWatcher) purgeQueue(ctx context.Context, queueKey, stopAt string) ([]string, error) {
	members, err := w.Store.Members(ctx, queueKey)
	if err != nil {
		return nil, err
	}
	var purged []string
	for _, userID := range members {
		ok, err := w.Store.PurgeExpired(ctx, queueKey, userID)
		if err != nil {
			return purged, err
		}
		if ok {
			purged = append(purged, userID)
			w.Metrics.Expired.Inc()
			w.Notifier.NotifyClosed(userID, models.ReasonTimedOut)
		}
		if userID == stopAt {
			break
		}
	}
	return purged, nil
}
