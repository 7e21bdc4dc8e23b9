package socket

import (
	"log"
	"time"

	"matching_service/metrics"
	"matching_service/models"
)

// DefaultCloseGrace is how long a connection stays open after its disconnect_reason is queued.
const DefaultCloseGrace = time.Second

// Notifier pushes matchmaking outcomes to live connections and then closes them.
type Notifier struct {
	Registry   *Registry
	Metrics    *metrics.Collectors
	// CloseGrace lets the transport flush disconnect_reason before the close.
	// Zero means DefaultCloseGrace.
	CloseGrace time.Duration
}

// NotifyMatch sends each side the other's profile, the resolved criteria and the shared seed,
// then closes both connections. A side with no live connection is skipped.
func (n *Notifier) NotifyMatch(pair models.ConfirmedPair) {
	deliveries := []struct {
		userID string
		info   models.MatchedUserInfo
	}{
		{pair.First.UserID, pair.PeerInfo(pair.Second)},
		{pair.Second.UserID, pair.PeerInfo(pair.First)},
	}
	for _, d := range deliveries {
		if c, ok := n.Registry.Get(d.userID); ok {
			c.Emit(models.EventMatchFound, d.info)
			log.Printf("📨 Sent match_found to %s (peer %s)", d.userID, d.info.UserID)
		} else {
			log.Printf("⚠️ No live connection for matched user %s", d.userID)
		}
	}
	n.NotifyClosed(pair.First.UserID, models.ReasonMatchFound)
	n.NotifyClosed(pair.Second.UserID, models.ReasonMatchFound)
}

// NotifyClosed sends disconnect_reason and closes userID's connection, if any.
func (n *Notifier) NotifyClosed(userID, reason string) {
	c, ok := n.Registry.Take(userID)
	if !ok {
		return
	}
	n.closeWithReason(c, reason)
	n.Metrics.ActiveConnections.Set(float64(n.Registry.Len()))
	log.Printf("❌ Closed connection for %s: %s", userID, reason)
}

// closeWithReason queues disconnect_reason on c and closes c once the grace period has passed.
// The close is armed before the emit so a connection whose write loop never drains still closes.
func (n *Notifier) closeWithReason(c Client, reason string) {
	grace := n.CloseGrace
	if grace <= 0 {
		grace = DefaultCloseGrace
	}
	time.AfterFunc(grace, func() {
		if err := c.Close(); err != nil {
			log.Printf("⚠️ Error closing connection %s: %v", c.ID(), err)
		}
	})
	c.Emit(models.EventDisconnectReason, models.DisconnectReason{Reason: reason})
}
