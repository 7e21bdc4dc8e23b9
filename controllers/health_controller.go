package controllers

import (
	"context"
	"net/http"
	"time"

	"matching_service/utils"
)

// Pinger checks a dependency is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthCheckHandler reports healthy only while the queue store answers
func HealthCheckHandler(store Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			utils.WriteJSONResponse(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
			return
		}
		utils.WriteJSONResponse(w, http.StatusOK, map[string]string{"status": "healthy"})
	}
}
