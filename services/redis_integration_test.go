//go:build integration
// +build integration

package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"matching_service/metrics"
	"matching_service/models"
)

// startRedisContainer starts Redis with expired-key events enabled and returns its address
func startRedisContainer(t *testing.T, ctx context.Context) (testcontainers.Container, string) {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		Cmd:          []string{"redis-server", "--notify-keyspace-events", "Ex"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)
	return container, fmt.Sprintf("%s:%s", host, port.Port())
}

func TestIntegration_SentinelExpiryPurgesAndNotifies(t *testing.T) {
	ctx := context.Background()
	container, addr := startRedisContainer(t, ctx)
	defer container.Terminate(ctx)

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	store := NewRedisService(client, time.Second, 0)
	notifier := newRecordingNotifier()
	watcher := &ExpiryWatcher{
		Store:    store,
		Source:   store,
		Notifier: notifier,
		Metrics:  metrics.New(prometheus.NewRegistry()),
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go watcher.Run(runCtx)
	time.Sleep(200 * time.Millisecond)

	require.NoError(t, store.Enqueue(ctx, request("A", "EASY", "ANY", "PYTHON")))

	require.Eventually(t, func() bool {
		reason, ok := notifier.ClosedReason("A")
		return ok && reason == models.ReasonTimedOut
	}, 10*time.Second, 50*time.Millisecond)

	_, err := store.Lookup(ctx, "A")
	assert.ErrorIs(t, err, models.ErrNotQueued)
}

func TestIntegration_PairingAgainstRealRedis(t *testing.T) {
	ctx := context.Background()
	container, addr := startRedisContainer(t, ctx)
	defer container.Terminate(ctx)

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	store := NewRedisService(client, time.Minute, 0)
	notifier := newRecordingNotifier()
	svc := newTestMatchService(store, notifier)

	_, err := svc.StartMatching(ctx, input("A", "ANY", "ANY", "ANY"))
	require.NoError(t, err)
	_, err = svc.StartMatching(ctx, input("B", "HARD", "GRAPH", "GO"))
	require.NoError(t, err)
	svc.Wait()

	matches := notifier.Matches()
	require.Len(t, matches, 1)
	assert.Equal(t, models.QueueKey{Difficulty: "HARD", Topic: "GRAPH", Language: "GO"}, matches[0].Criteria)
}
