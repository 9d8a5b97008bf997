//go:build integration

package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Sternrassler/top-posts-client/internal/testutil"
	"github.com/Sternrassler/top-posts-client/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedisContainer creates a Redis container for integration testing.
func setupRedisContainer(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := redisContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := redisContainer.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func TestIntegration_FullListingFlow(t *testing.T) {
	redisClient, cleanup := setupRedisContainer(t)
	defer cleanup()

	mock := testutil.NewMockReddit("/top", testutil.GeneratePosts(60))
	defer mock.Close()

	cfg := testConfig(mock.URL())
	cfg.Redis = redisClient

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	client.SetHTTPClient(mock.Client())

	ctx := context.Background()

	// Walk the whole listing
	var ids []string
	cursor := ""
	for page := 0; page < 10; page++ {
		batch, err := client.FetchPage(ctx, cursor)
		if err != nil {
			t.Fatalf("FetchPage(%q) error = %v", cursor, err)
		}
		for _, item := range batch.Items {
			ids = append(ids, item.ID)
		}
		if batch.NextCursor == "" {
			break
		}
		cursor = batch.NextCursor
	}

	if len(ids) != 60 {
		t.Errorf("collected %d items, want 60", len(ids))
	}
	if got := mock.GetRequestCount(); got != 3 {
		t.Errorf("requests = %d, want 3", got)
	}

	// The budget is visible in Redis
	remaining, err := redisClient.Get(ctx, ratelimit.RedisKeyRemaining).Float64()
	if err != nil {
		t.Fatalf("Failed to read remaining from Redis: %v", err)
	}
	if remaining != 96 {
		t.Errorf("remaining = %v, want 96", remaining)
	}
}

func TestIntegration_RateLimitIntegration(t *testing.T) {
	redisClient, cleanup := setupRedisContainer(t)
	defer cleanup()

	ctx := context.Background()

	// Pre-seed Redis with critical rate limit state
	redisClient.Set(ctx, ratelimit.RedisKeyRemaining, 1, time.Minute)
	redisClient.Set(ctx, ratelimit.RedisKeyResetTimestamp, time.Now().Add(60*time.Second).Unix(), time.Minute)

	mock := testutil.NewMockReddit("/top", testutil.GeneratePosts(5))
	defer mock.Close()

	cfg := testConfig(mock.URL())
	cfg.Redis = redisClient

	client, err := New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	client.SetHTTPClient(mock.Client())

	// This request should be blocked
	_, err = client.FetchPage(ctx, "")
	if !errors.Is(err, ErrRateLimited) {
		t.Errorf("Expected ErrRateLimited, got %v", err)
	}
	if got := mock.GetRequestCount(); got != 0 {
		t.Errorf("requests = %d, want 0", got)
	}

	state, err := client.RateLimitState(ctx)
	if err != nil {
		t.Fatalf("Failed to get rate limit state: %v", err)
	}
	if state.Remaining != 1 {
		t.Errorf("Remaining = %v, want 1", state.Remaining)
	}
	if !state.NeedsCriticalBlock() {
		t.Error("Expected state to need critical block")
	}
}

func TestIntegration_ErrorClassification(t *testing.T) {
	redisClient, cleanup := setupRedisContainer(t)
	defer cleanup()

	tests := []struct {
		name      string
		failures  []testutil.MockResponse
		wantClass ErrorClass
		wantTries int
	}{
		{
			name:      "client error",
			failures:  []testutil.MockResponse{testutil.NewNotFoundResponse()},
			wantClass: ErrorClassClient,
			wantTries: 1,
		},
		{
			name: "server error exhausted",
			failures: []testutil.MockResponse{
				testutil.NewServerErrorResponse(), testutil.NewServerErrorResponse(),
				testutil.NewServerErrorResponse(), testutil.NewServerErrorResponse(),
			},
			wantClass: ErrorClassServer,
			wantTries: 4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			redisClient.FlushDB(context.Background())

			mock := testutil.NewMockReddit("/top", testutil.GeneratePosts(5))
			defer mock.Close()
			mock.FailNext(tt.failures...)

			cfg := testConfig(mock.URL())
			cfg.Redis = redisClient
			client, err := New(cfg)
			if err != nil {
				t.Fatalf("Failed to create client: %v", err)
			}
			client.SetHTTPClient(mock.Client())

			_, err = client.FetchPage(context.Background(), "")

			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("Expected *APIError, got %v", err)
			}
			if apiErr.ErrorClass != tt.wantClass {
				t.Errorf("ErrorClass = %q, want %q", apiErr.ErrorClass, tt.wantClass)
			}
			if got := mock.GetRequestCount(); got != tt.wantTries {
				t.Errorf("requests = %d, want %d", got, tt.wantTries)
			}
		})
	}
}
