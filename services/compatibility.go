package services

import (
	"matching_service/models"
	"matching_service/utils"
)

// Resolver expands a request's axes into the other queue keys that can satisfy it.
type Resolver struct {
	Taxonomy models.Taxonomy
}

// QueueKey returns the canonical queue key string for raw axis values
func QueueKey(difficulty, topic, language string) string {
	return utils.NormaliseKey(difficulty, topic, language).String()
}

func axisCandidates(value string, known []string) []string {
	if value == models.Any {
		out := make([]string, 0, len(known)+1)
		out = append(out, known...)
		return append(out, models.Any)
	}
	return []string{value, models.Any}
}

// CompatibleKeys returns the cross product of per-axis candidates, minus k itself.
// For an exact axis the candidates are {value, ANY}; for ANY they are every known value plus ANY.
func (r Resolver) CompatibleKeys(k models.QueueKey) []models.QueueKey {
	difficulties := axisCandidates(k.Difficulty, r.Taxonomy.Difficulties)
	topics := axisCandidates(k.Topic, r.Taxonomy.Topics)
	languages := axisCandidates(k.Language, r.Taxonomy.Languages)

	keys := make([]models.QueueKey, 0, len(difficulties)*len(topics)*len(languages))
	for _, d := range difficulties {
		for _, t := range topics {
			for _, l := range languages {
				candidate := models.QueueKey{Difficulty: d, Topic: t, Language: l}
				if candidate == k {
					continue
				}
				keys = append(keys, candidate)
			}
		}
	}
	return keys
}

// resolveAxis picks the exact value over ANY. When both sides are exact and differ,
// the earlier-enqueued side (first) wins.
func resolveAxis(first, second string) string {
	if first == models.Any {
		return second
	}
	return first
}

// ResolveCriteria computes a pair's criteria axis by axis. The result does not depend
// on the order of the arguments unless the two sides disagree on an exact value.
func ResolveCriteria(a, b models.MatchRequest) models.QueueKey {
	first, second := a, b
	if b.EnqueuedAt < a.EnqueuedAt {
		first, second = b, a
	}
	return models.QueueKey{
		Difficulty: resolveAxis(first.Difficulty, second.Difficulty),
		Topic:      resolveAxis(first.Topic, second.Topic),
		Language:   resolveAxis(first.Language, second.Language),
	}
}
