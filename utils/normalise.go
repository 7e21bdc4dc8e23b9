package utils

import (
	"strings"

	"matching_service/models"
)

// Normalise trims, upper-cases and replaces spaces with underscores.
func Normalise(s string) string {
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), " ", "_")
}

// NormaliseKey normalises every axis of a queue key.
func NormaliseKey(difficulty, topic, language string) models.QueueKey {
	return models.QueueKey{
		Difficulty: Normalise(difficulty),
		Topic:      Normalise(topic),
		Language:   Normalise(language),
	}
}
