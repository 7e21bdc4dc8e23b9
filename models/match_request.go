package models

import "time"

// MatchRequest is a queued request to be paired. It is never mutated once stored.
type MatchRequest struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email,omitempty"`
	Picture     string `json:"picture,omitempty"`
	Difficulty  string `json:"difficulty"`
	Topic       string `json:"topic"`
	Language    string `json:"language"`
	EnqueuedAt  int64  `json:"enqueuedAt"` // unix milliseconds, also the queue score
}

// Criteria returns the request's three axes as a QueueKey.
func (r MatchRequest) Criteria() QueueKey {
	return QueueKey{Difficulty: r.Difficulty, Topic: r.Topic, Language: r.Language}
}

// EnqueuedTime converts EnqueuedAt to a time.Time.
func (r MatchRequest) EnqueuedTime() time.Time {
	return time.UnixMilli(r.EnqueuedAt)
}

// QueueKey is the canonical (difficulty, topic, language) tuple. Values are normalised.
type QueueKey struct {
	Difficulty string `json:"difficulty"`
	Topic      string `json:"topic"`
	Language   string `json:"language"`
}

// String renders the store key, e.g. queue:EASY:ARRAY:PYTHON
func (k QueueKey) String() string {
	return QueueKeyPrefix + ":" + k.Difficulty + ":" + k.Topic + ":" + k.Language
}

// QueueEntry is one member of a queue's ordered set.
type QueueEntry struct {
	UserID string
	Score  float64
}

// ConfirmedPair is two requests removed from the store together as a match.
type ConfirmedPair struct {
	MatchID      string
	First        MatchRequest
	Second       MatchRequest
	Criteria     QueueKey
	QuestionSeed string
}

// MatchedUserInfo is the match_found payload: the peer's public profile plus the resolved criteria.
type MatchedUserInfo struct {
	MatchID      string `json:"matchId"`
	UserID       string `json:"userId"`
	DisplayName  string `json:"displayName"`
	Email        string `json:"email,omitempty"`
	Picture      string `json:"picture,omitempty"`
	Difficulty   string `json:"difficulty"`
	Topic        string `json:"topic"`
	Language     string `json:"language"`
	QuestionSeed string `json:"questionSeed"`
}

// PeerInfo builds the payload delivered to the other side of the pair.
func (p ConfirmedPair) PeerInfo(peer MatchRequest) MatchedUserInfo {
	return MatchedUserInfo{
		MatchID:      p.MatchID,
		UserID:       peer.UserID,
		DisplayName:  peer.DisplayName,
		Email:        peer.Email,
		Picture:      peer.Picture,
		Difficulty:   p.Criteria.Difficulty,
		Topic:        p.Criteria.Topic,
		Language:     p.Criteria.Language,
		QuestionSeed: p.QuestionSeed,
	}
}

// SentinelExpired is delivered when a user's liveness sentinel expires in the store.
type SentinelExpired struct {
	UserID string
}

// DisconnectReason is the payload of disconnect_reason.
type DisconnectReason struct {
	Reason string `json:"reason"`
}

// QueueStatus describes a user's outstanding request.
type QueueStatus struct {
	Queued      bool   `json:"queued"`
	Expired     bool   `json:"expired,omitempty"`
	QueueKey    string `json:"queueKey,omitempty"`
	EnqueuedAt  int64  `json:"enqueuedAt,omitempty"`
	ExpiresInMs int64  `json:"expiresInMs,omitempty"`
}
