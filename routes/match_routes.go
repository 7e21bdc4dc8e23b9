package routes

import (
	"net/http"

	"github.com/gorilla/mux"

	"matching_service/controllers"
	"matching_service/services"
	"matching_service/utils"
)

// RegisterMatchRoutes sets up matchmaking routes under /match and the gateway-facing /api/match.
// With a verifier every route requires a bearer token.
func RegisterMatchRoutes(r *mux.Router, matchService *services.MatchService, verifier *utils.TokenVerifier) {
	controller := controllers.NewMatchController(matchService)

	for _, prefix := range []string{"/match", "/api/match"} {
		matchRouter := r.PathPrefix(prefix).Subrouter()
		if verifier != nil {
			matchRouter.Use(controllers.RequireBearer(verifier))
		}
		matchRouter.HandleFunc("/start", controller.StartMatching).Methods("POST")
		matchRouter.HandleFunc("/cancel", controller.CancelMatching).Methods("POST")
		matchRouter.HandleFunc("/status/{userId}", controller.GetStatus).Methods("GET")
	}
}

// RegisterSystemRoutes sets up health, metrics and the realtime endpoint
func RegisterSystemRoutes(r *mux.Router, store controllers.Pinger, metricsHandler http.Handler, socketPath string, socketHandler http.Handler) {
	r.HandleFunc("/health", controllers.HealthCheckHandler(store)).Methods("GET")
	r.Handle("/metrics", metricsHandler).Methods("GET")
	r.PathPrefix(socketPath).Handler(socketHandler)
}
