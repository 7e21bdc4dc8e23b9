package models

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQueueKeyString(t *testing.T) {
	k := QueueKey{Difficulty: "EASY", Topic: Any, Language: "C++"}
	assert.Equal(t, "queue:EASY:ANY:C++", k.String())
}

func TestTaxonomyKnows(t *testing.T) {
	tax := DefaultTaxonomy()

	_, ok := tax.Knows(QueueKey{Difficulty: "EASY", Topic: "ARRAY", Language: "GO"})
	assert.True(t, ok)
	_, ok = tax.Knows(QueueKey{Difficulty: Any, Topic: Any, Language: Any})
	assert.True(t, ok)

	field, ok := tax.Knows(QueueKey{Difficulty: "EASY", Topic: "POETRY", Language: "GO"})
	assert.False(t, ok)
	assert.Equal(t, "topic", field)
}

func TestPeerInfo(t *testing.T) {
	a := MatchRequest{UserID: "a", DisplayName: "Ada", Difficulty: "EASY", Topic: Any, Language: "GO"}
	b := MatchRequest{UserID: "b", DisplayName: "Bob", Difficulty: Any, Topic: "TREE", Language: "GO"}
	pair := ConfirmedPair{
		MatchID:      "m1",
		First:        a,
		Second:       b,
		Criteria:     QueueKey{Difficulty: "EASY", Topic: "TREE", Language: "GO"},
		QuestionSeed: "00ff",
	}

	info := pair.PeerInfo(pair.Second)
	assert.Equal(t, "b", info.UserID)
	assert.Equal(t, "Bob", info.DisplayName)
	assert.Equal(t, "EASY", info.Difficulty)
	assert.Equal(t, "TREE", info.Topic)
	assert.Equal(t, "m1", info.MatchID)
	assert.Equal(t, "00ff", info.QuestionSeed)
}

func TestErrorWrapping(t *testing.T) {
	var err error = &ValidationError{Field: "topic", Reason: "unknown value"}
	assert.ErrorIs(t, err, ErrValidation)
	assert.EqualError(t, err, "invalid topic: unknown value")

	cause := errors.New("dial tcp: refused")
	wrapped := StoreError(cause, "Enqueue", "transaction")
	assert.ErrorIs(t, wrapped, ErrStoreUnavailable)
	assert.ErrorIs(t, wrapped, cause)
	assert.Contains(t, wrapped.Error(), "RedisService.Enqueue: transaction failed")

	assert.NoError(t, Wrap(nil, "c", "m", "a"))
	assert.Equal(t, "c.m: a failed: x", Wrap(fmt.Errorf("x"), "c", "m", "a").Error())
}

func TestEnqueuedTime(t *testing.T) {
	r := MatchRequest{EnqueuedAt: 1_700_000_000_123}
	assert.Equal(t, int64(1_700_000_000_123), r.EnqueuedTime().UnixMilli())
	assert.Equal(t, 123_000_000, r.EnqueuedTime().Nanosecond())
}
