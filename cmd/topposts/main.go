package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/top-posts-client/internal/config"
	"github.com/Sternrassler/top-posts-client/internal/tui"
	"github.com/Sternrassler/top-posts-client/pkg/cache"
	"github.com/Sternrassler/top-posts-client/pkg/client"
	"github.com/Sternrassler/top-posts-client/pkg/feed"
	"github.com/Sternrassler/top-posts-client/pkg/imageload"
	"github.com/Sternrassler/top-posts-client/pkg/logging"
	"github.com/Sternrassler/top-posts-client/pkg/metrics"
	"github.com/Sternrassler/top-posts-client/pkg/opener"
	"github.com/Sternrassler/top-posts-client/pkg/pagination"
	"github.com/Sternrassler/top-posts-client/pkg/rss"
	"github.com/Sternrassler/top-posts-client/pkg/scroll"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "topposts: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	headless bool
	pages    int
	envFile  string
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var opts options

	fs := flag.NewFlagSet("topposts", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.BoolVar(&opts.headless, "headless", false, "print pages to stdout instead of starting the terminal UI")
	fs.IntVar(&opts.pages, "pages", 3, "number of pages to load in headless mode")
	fs.StringVar(&opts.envFile, "env", ".env", "env file to load (ignored if missing)")

	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.pages < 1 {
		return opts, fmt.Errorf("-pages must be >= 1 (got %d)", opts.pages)
	}
	return opts, nil
}

func run(args []string, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	cfg, err := config.LoadFile(opts.envFile)
	if err != nil {
		return err
	}

	// The terminal UI owns the screen: logs go to LOG_FILE or nowhere
	logOut, closeLog, err := logging.OpenOutput(cfg.LogFile)
	if err != nil {
		return err
	}
	defer closeLog()
	if opts.headless && cfg.LogFile == "" {
		logOut = stderr
	}
	logging.Setup(logging.Config{
		Level:  logging.ParseLevel(cfg.LogLevel),
		Output: logOut,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logOut)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.MetricsAddr != "" {
		srv, err := metrics.Listen(cfg.MetricsAddr)
		if err != nil {
			return err
		}
		go func() {
			if err := srv.Serve(ctx); err != nil {
				log.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	log.Info().
		Str("source", cfg.Source).
		Str("listing", cfg.Listing).
		Str("controller_id", a.controller.ID()).
		Bool("redis", a.redis != nil).
		Msg("Starting")

	if opts.headless {
		return runHeadless(ctx, a.controller, opts.pages, stdout)
	}

	model := tui.New(tui.Config{
		Controller: a.controller,
		Images:     a.loader,
		Launcher:   a.launcher,
		Title:      "Top posts · " + cfg.Listing,
	})
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("terminal ui: %w", err)
	}
	return nil
}

// app holds the wired components.
type app struct {
	controller *pagination.Controller
	loader     *imageload.Loader
	launcher   *opener.Launcher
	redis      *redis.Client
}

func newApp(ctx context.Context, cfg *config.Config, logOut io.Writer) (*app, error) {
	a := &app{}

	if cfg.RedisURL != "" {
		a.redis = connectRedis(ctx, cfg.RedisURL)
	}

	source, err := newSource(cfg, a.redis)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.controller, err = pagination.New(source, pagination.Config{Buffer: cfg.Buffer})
	if err != nil {
		a.Close()
		return nil, err
	}

	var thumbCache *cache.Manager
	if a.redis != nil {
		thumbCache = cache.NewManager(a.redis)
	}
	transport := imageload.NewHTTPTransport(imageload.HTTPConfig{
		Cache:     thumbCache,
		UserAgent: cfg.UserAgent,
		Timeout:   cfg.HTTPTimeout,
	})
	a.loader, err = imageload.NewLoader(transport, imageload.Config{
		MaxConcurrency: int64(cfg.ImageConcurrency),
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.launcher = opener.NewLauncher(opener.NewBrowserOpener(logOut), cfg.BaseURL)
	return a, nil
}

// connectRedis returns nil when Redis is unreachable; every component has
// an in-process fallback.
func connectRedis(ctx context.Context, rawURL string) *redis.Client {
	opt, err := redis.ParseURL(rawURL)
	if err != nil {
		log.Warn().Err(err).Msg("Invalid REDIS_URL, continuing without Redis")
		return nil
	}

	rdb := redis.NewClient(opt)
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Warn().Err(err).Str("addr", opt.Addr).Msg("Redis unavailable, continuing without Redis")
		rdb.Close()
		return nil
	}

	log.Info().Str("addr", opt.Addr).Msg("Connected to Redis")
	return rdb
}

func newSource(cfg *config.Config, rdb *redis.Client) (pagination.PageFetcher, error) {
	switch cfg.Source {
	case config.SourceRSS:
		return rss.NewFetcher(rss.Config{
			BaseURL:    cfg.BaseURL,
			Listing:    cfg.Listing,
			TimeWindow: cfg.TimeWindow,
			UserAgent:  cfg.UserAgent,
			Timeout:    cfg.HTTPTimeout,
		})
	default:
		clientCfg := client.DefaultConfig(rdb, cfg.UserAgent)
		clientCfg.BaseURL = cfg.BaseURL
		clientCfg.Listing = cfg.Listing
		clientCfg.TimeWindow = cfg.TimeWindow
		clientCfg.Limit = cfg.PageSize
		clientCfg.RequestsPerSecond = cfg.RequestsPerSecond
		clientCfg.MaxRetries = cfg.MaxRetries
		clientCfg.Timeout = cfg.HTTPTimeout
		return client.New(clientCfg)
	}
}

// Close releases the components in reverse order.
func (a *app) Close() {
	if a.loader != nil {
		a.loader.Close()
	}
	if a.controller != nil {
		a.controller.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
}

// runHeadless scrolls a virtual viewport to the load threshold after each
// merged page and prints the new posts.
func runHeadless(ctx context.Context, ctrl *pagination.Controller, pages int, out io.Writer) error {
	if !ctrl.LoadMore() {
		return errors.New("first page fetch did not start")
	}

	printed := 0
	for page := 1; ; page++ {
		if err := waitIdle(ctx, ctrl); err != nil {
			return err
		}

		state := ctrl.State()
		if state.Err != nil {
			return state.Err
		}

		fmt.Fprintf(out, "# page %d (%d new posts)\n", page, len(state.Items)-printed)
		for i := printed; i < len(state.Items); i++ {
			printItem(out, i+1, state.Items[i])
		}
		printed = len(state.Items)

		if state.Exhausted {
			fmt.Fprintln(out, "# end of feed")
			return nil
		}
		if page >= pages {
			return nil
		}

		if !scrollToThreshold(ctrl, len(state.Items)) && !ctrl.LoadMore() {
			return errors.New("next page fetch did not start")
		}
	}
}

// scrollToThreshold reports a viewport whose last row is the threshold row.
func scrollToThreshold(ctrl *pagination.Controller, total int) bool {
	last := total - ctrl.Buffer()
	if last <= 0 {
		return false
	}
	rows := ctrl.Buffer()
	return ctrl.OnScrollMetricsChanged(scroll.VisibleRange(last-rows+1, rows, total), total)
}

func waitIdle(ctx context.Context, ctrl *pagination.Controller) error {
	select {
	case <-ctrl.Idle():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func printItem(out io.Writer, n int, item feed.Item) {
	link, err := item.PermalinkURL()
	if err != nil {
		link = item.Permalink
	}
	thumb := "-"
	if item.HasThumbnail() {
		thumb = "img"
	}
	fmt.Fprintf(out, "%3d. [%s] %s\n     u/%s · %dh ago · %d comments · %d points · %s\n",
		n, thumb, item.Title, item.Author, item.HoursAgo(time.Now()), item.CommentCount, item.Score, link)
}
