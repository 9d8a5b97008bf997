//go:build integration

package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Sternrassler/top-posts-client/internal/testutil"
	"github.com/Sternrassler/top-posts-client/pkg/cache"
	"github.com/Sternrassler/top-posts-client/pkg/client"
	"github.com/Sternrassler/top-posts-client/pkg/imageload"
	"github.com/Sternrassler/top-posts-client/pkg/pagination"
	"github.com/Sternrassler/top-posts-client/pkg/ratelimit"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

// TestEndToEnd_ScrollThroughFeed drives the controller over the JSON client
// with shared rate limit state: page 1 → threshold → page 2 → ... → end.
func TestEndToEnd_ScrollThroughFeed(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockReddit("/top", testutil.GeneratePosts(25))
	defer mock.Close()

	cfg := client.DefaultConfig(redisClient, "test:top-posts-client:1.0 (by /u/tester)")
	cfg.BaseURL = mock.URL()
	cfg.Limit = 10
	cfg.RequestsPerSecond = 1000
	c, err := client.New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	c.SetHTTPClient(mock.Client())

	ctrl, err := pagination.New(c, pagination.DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to create controller: %v", err)
	}
	defer ctrl.Close()

	var out bytes.Buffer
	if err := runHeadless(context.Background(), ctrl, 10, &out); err != nil {
		t.Fatalf("runHeadless() error = %v", err)
	}

	state := ctrl.State()
	if len(state.Items) != 25 || !state.Exhausted {
		t.Errorf("items = %d exhausted = %v, want 25 and exhausted", len(state.Items), state.Exhausted)
	}
	if !strings.Contains(out.String(), "# end of feed") {
		t.Errorf("output should end the feed:\n%s", out.String())
	}

	cursors := mock.GetCursors()
	want := []string{"", "t3_p10", "t3_p20"}
	if strings.Join(cursors, ",") != strings.Join(want, ",") {
		t.Errorf("cursors = %v, want %v", cursors, want)
	}

	// Budget from the last response is shared through Redis
	remaining, err := redisClient.Get(context.Background(), ratelimit.RedisKeyRemaining).Float64()
	if err != nil {
		t.Fatalf("rate limit state not stored: %v", err)
	}
	if remaining != 96 {
		t.Errorf("remaining = %v, want 96", remaining)
	}
}

// TestEndToEnd_ThumbnailCache loads thumbnails once and serves the outcome
// from Redis afterwards.
func TestEndToEnd_ThumbnailCache(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	mock := testutil.NewMockReddit("/top", testutil.GeneratePosts(3))
	defer mock.Close()

	transport := imageload.NewHTTPTransport(imageload.HTTPConfig{
		Client: mock.Client(),
		Cache:  cache.NewManager(redisClient),
	})
	loader, err := imageload.NewLoader(transport, imageload.DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to create loader: %v", err)
	}
	defer loader.Close()

	thumb := mock.URL() + "/thumb/p1.png"
	missing := mock.URL() + "/missing.png"

	loader.Request("p1", thumb)
	loader.Request("p2", missing)
	waitSettled(t, loader, "p1", imageload.Loaded)
	waitSettled(t, loader, "p2", imageload.Failed)

	requests := mock.GetRequestCount()

	// A fresh loader sees the cached outcomes without touching the server
	second, err := imageload.NewLoader(transport, imageload.DefaultConfig())
	if err != nil {
		t.Fatalf("Failed to create loader: %v", err)
	}
	defer second.Close()

	second.Request("p1", thumb)
	second.Request("p2", missing)
	waitSettled(t, second, "p1", imageload.Loaded)
	waitSettled(t, second, "p2", imageload.Failed)

	if got := mock.GetRequestCount(); got != requests {
		t.Errorf("server requests = %d, want %d (served from cache)", got, requests)
	}

	key, err := cache.KeyForURL(thumb)
	if err != nil {
		t.Fatalf("KeyForURL() error = %v", err)
	}
	entry, err := cache.NewManager(redisClient).Get(context.Background(), key)
	if err != nil {
		t.Fatalf("cache entry missing: %v", err)
	}
	if !entry.Loaded || entry.Format != "png" {
		t.Errorf("entry = %+v, want loaded png", entry)
	}
}

func waitSettled(t *testing.T, l *imageload.Loader, key string, want imageload.State) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if state, ok := l.State(key); ok && state.Terminal() {
			if state != want {
				t.Fatalf("%s settled as %v, want %v", key, state, want)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("%s did not settle", key)
}
