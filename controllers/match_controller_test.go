package controllers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"matching_service/metrics"
	"matching_service/models"
	"matching_service/services"
	"matching_service/socket"
	"matching_service/utils"
)

var testSecret = []byte("controller-secret")

type harness struct {
	router *mux.Router
	mr     *miniredis.Miniredis
	svc    *services.MatchService
}

func newHarness(t *testing.T, protect bool) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })

	m := metrics.New(prometheus.NewRegistry())
	store := services.NewRedisService(client, time.Minute, 0)
	svc := &services.MatchService{
		Store:          store,
		Resolver:       services.Resolver{Taxonomy: models.DefaultTaxonomy()},
		Notifier:       &socket.Notifier{Registry: socket.NewRegistry(), Metrics: m},
		Metrics:        m,
		FanoutLimit:    4,
		PairingTimeout: 5 * time.Second,
	}
	t.Cleanup(svc.Wait)

	var verifier *utils.TokenVerifier
	if protect {
		verifier = &utils.TokenVerifier{Secret: testSecret, AllowedRoles: []string{models.RoleUser, models.RoleAdmin}}
	}

	r := mux.NewRouter()
	controller := NewMatchController(svc)
	sub := r.PathPrefix("/api/match").Subrouter()
	if verifier != nil {
		sub.Use(RequireBearer(verifier))
	}
	sub.HandleFunc("/start", controller.StartMatching).Methods("POST")
	sub.HandleFunc("/cancel", controller.CancelMatching).Methods("POST")
	sub.HandleFunc("/status/{userId}", controller.GetStatus).Methods("GET")
	r.HandleFunc("/health", HealthCheckHandler(store)).Methods("GET")

	return &harness{router: r, mr: mr, svc: svc}
}

func (h *harness) do(t *testing.T, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func tokenFor(t *testing.T, userID, role string) string {
	t.Helper()
	token, err := utils.IssueToken(testSecret, userID, role, time.Minute)
	require.NoError(t, err)
	return token
}

func startBody(userID string) map[string]string {
	return map[string]string{
		"userId":      userID,
		"displayName": "Name " + userID,
		"difficulty":  "Easy",
		"topic":       "Hash Table",
		"language":    "Python",
	}
}

func TestStartMatching(t *testing.T) {
	h := newHarness(t, true)

	rec := h.do(t, http.MethodPost, "/api/match/start", startBody("u1"), tokenFor(t, "u1", models.RoleUser))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Matching started"}`, rec.Body.String())
	assert.True(t, h.mr.Exists("user:u1"))
	assert.True(t, h.mr.Exists("ttl:u1"))

	members, err := h.mr.ZMembers("queue:EASY:HASH_TABLE:PYTHON")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, members)
}

func TestStartMatching_UserIDFromToken(t *testing.T) {
	h := newHarness(t, true)
	body := startBody("")
	delete(body, "userId")

	rec := h.do(t, http.MethodPost, "/api/match/start", body, tokenFor(t, "u9", models.RoleUser))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, h.mr.Exists("user:u9"))
}

func TestStartMatching_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   interface{}
		token  func(t *testing.T) string
		status int
	}{
		{"no token", startBody("u1"), func(t *testing.T) string { return "" }, http.StatusUnauthorized},
		{"bad role", startBody("u1"), func(t *testing.T) string { return tokenFor(t, "u1", "GUEST") }, http.StatusForbidden},
		{"other user", startBody("u2"), func(t *testing.T) string { return tokenFor(t, "u1", models.RoleUser) }, http.StatusForbidden},
		{"unknown topic", map[string]string{"userId": "u1", "displayName": "x", "difficulty": "EASY", "topic": "Poetry", "language": "GO"},
			func(t *testing.T) string { return tokenFor(t, "u1", models.RoleUser) }, http.StatusBadRequest},
		{"malformed", "not an object", func(t *testing.T) string { return tokenFor(t, "u1", models.RoleUser) }, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, true)
			rec := h.do(t, http.MethodPost, "/api/match/start", tt.body, tt.token(t))
			assert.Equal(t, tt.status, rec.Code)
			assert.False(t, h.mr.Exists("user:u1"))
		})
	}
}

func TestStartMatching_AdminMayActForOthers(t *testing.T) {
	h := newHarness(t, true)
	for _, role := range []string{models.RoleAdmin, "admin"} {
		rec := h.do(t, http.MethodPost, "/api/match/start", startBody("u2"), tokenFor(t, "root", role))
		assert.Equal(t, http.StatusOK, rec.Code, role)
	}
}

func TestStartMatching_StoreDown(t *testing.T) {
	h := newHarness(t, false)
	h.mr.Close()

	rec := h.do(t, http.MethodPost, "/api/match/start", startBody("u1"), "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = h.do(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCancelAndStatus(t *testing.T) {
	h := newHarness(t, false)

	rec := h.do(t, http.MethodPost, "/api/match/cancel", map[string]string{"userId": "u1"}, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodPost, "/api/match/start", startBody("u1"), "")
	require.Equal(t, http.StatusOK, rec.Code)
	h.svc.Wait()

	rec = h.do(t, http.MethodGet, "/api/match/status/u1", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status models.QueueStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.True(t, status.Queued)
	assert.Equal(t, "queue:EASY:HASH_TABLE:PYTHON", status.QueueKey)

	rec = h.do(t, http.MethodPost, "/api/match/cancel", map[string]string{"userId": "u1"}, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, h.mr.Exists("user:u1"))

	rec = h.do(t, http.MethodPost, "/api/match/cancel", map[string]string{}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealth(t *testing.T) {
	h := newHarness(t, false)
	rec := h.do(t, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}
