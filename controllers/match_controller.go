package controllers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"matching_service/models"
	"matching_service/services"
	"matching_service/utils"
)

// MatchController handles HTTP requests for matchmaking
type MatchController struct {
	MatchService *services.MatchService
}

// NewMatchController creates a new MatchController instance
func NewMatchController(matchService *services.MatchService) *MatchController {
	return &MatchController{MatchService: matchService}
}

func writeServiceError(w http.ResponseWriter, err error, fallback string) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		utils.WriteError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, models.ErrForbidden):
		utils.WriteError(w, http.StatusForbidden, "Forbidden")
	case errors.Is(err, models.ErrNotQueued):
		utils.WriteError(w, http.StatusNotFound, "User is not queued")
	case errors.Is(err, models.ErrContention):
		utils.WriteError(w, http.StatusConflict, "Request is being updated concurrently, retry")
	default:
		utils.WriteError(w, http.StatusInternalServerError, fallback)
	}
}

// StartMatching enqueues the caller. The outcome arrives over the realtime channel.
func (c *MatchController) StartMatching(w http.ResponseWriter, r *http.Request) {
	var payload services.StartMatchingInput
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		log.Printf("❌ Error decoding request body: %v", err)
		utils.WriteError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if claims, ok := ClaimsFrom(r.Context()); ok && payload.UserID == "" {
		payload.UserID = claims.UserID
	}
	if err := authorizeUser(r.Context(), payload.UserID); err != nil {
		writeServiceError(w, err, "")
		return
	}

	log.Printf("🔍 Start matching for user: %s", payload.UserID)
	if _, err := c.MatchService.StartMatching(r.Context(), payload); err != nil {
		writeServiceError(w, err, "Failed to start matching")
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, map[string]string{"message": "Matching started"})
}

// CancelMatching withdraws the caller's queued request
func (c *MatchController) CancelMatching(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		UserID string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if claims, ok := ClaimsFrom(r.Context()); ok && payload.UserID == "" {
		payload.UserID = claims.UserID
	}
	if payload.UserID == "" {
		utils.WriteError(w, http.StatusBadRequest, "userId is required")
		return
	}
	if err := authorizeUser(r.Context(), payload.UserID); err != nil {
		writeServiceError(w, err, "")
		return
	}

	if err := c.MatchService.Cancel(r.Context(), payload.UserID); err != nil {
		writeServiceError(w, err, "Failed to cancel matching")
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, map[string]string{"message": "Matching cancelled"})
}

// GetStatus reports whether a user is queued and for how long
func (c *MatchController) GetStatus(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userId"]
	if err := authorizeUser(r.Context(), userID); err != nil {
		writeServiceError(w, err, "")
		return
	}
	status, err := c.MatchService.Status(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err, "Failed to fetch status")
		return
	}
	utils.WriteJSONResponse(w, http.StatusOK, status)
}
