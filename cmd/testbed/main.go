package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/shehryarbajwa/testbed/internal/apiclient"
	"github.com/shehryarbajwa/testbed/internal/browser"
	"github.com/shehryarbajwa/testbed/internal/config"
	"github.com/shehryarbajwa/testbed/internal/metrics"
	"github.com/shehryarbajwa/testbed/internal/page"
	"github.com/shehryarbajwa/testbed/internal/ratelimit"
	"github.com/shehryarbajwa/testbed/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	log := config.NewLogger(os.Stderr, cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("smoke run failed", "error", err)
		os.Exit(1)
	}
	log.Info("smoke run passed", "workers", cfg.Workers)
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	rec := metrics.New(prometheus.NewRegistry())

	launcher, err := newLauncher(ctx, cfg, log)
	if err != nil {
		return err
	}
	mgr := session.NewManager(launcher, browser.LaunchOptions{
		Kind:     cfg.Browser,
		Headless: cfg.Headless,
		Flags:    browser.DefaultFlags(cfg.Browser),
		Timeout:  cfg.Timeout,
	}, session.WithLogger(log.With("component", "session")), session.WithMetrics(rec))
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		mgr.Close(closeCtx)
	}()

	opts := []apiclient.Option{
		apiclient.WithWorkers(cfg.AsyncWorkers),
		apiclient.WithLogger(log.With("component", "apiclient")),
		apiclient.WithMetrics(rec),
		apiclient.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
	}
	if cfg.RateLimit > 0 {
		opts = append(opts, apiclient.WithRateLimit(ratelimit.NewLimiter(cfg.RateLimit, 1)))
	}
	client, err := apiclient.New(cfg.APIBaseURL, opts...)
	if err != nil {
		return err
	}
	defer client.Shutdown()

	g, gctx := errgroup.WithContext(ctx)
	for i := range cfg.Workers {
		worker := session.WorkerID(fmt.Sprintf("worker-%d", i+1))
		g.Go(func() error {
			return runWorker(gctx, cfg, mgr, client, worker, log.With("worker", worker))
		})
	}
	return g.Wait()
}

func checkPage(ctx context.Context, p *page.Actions, sess *session.Session, log *slog.Logger) error {
	if err := p.Open(ctx, "/"); err != nil {
		return err
	}
	if _, err := p.WaitVisible(ctx, "body"); err != nil {
		return err
	}
	title, err := p.Title(ctx)
	if err != nil {
		return err
	}
	log.Info("page ready", "session", sess.ID, "title", title)
	return nil
}

func newLauncher(ctx context.Context, cfg config.Config, log *slog.Logger) (browser.Launcher, error) {
	pw := browser.NewPlaywrightLauncher(
		browser.WithInstall(cfg.Driver == config.DriverLocal),
		browser.WithPlaywrightLogger(log.With("component", "playwright")),
	)
	if cfg.Driver != config.DriverDocker {
		return pw, nil
	}

	dl, err := browser.NewDockerLauncher(cfg.DockerImage, pw)
	if err != nil {
		return nil, err
	}
	pullCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()
	if err := dl.EnsureImage(pullCtx); err != nil {
		_ = dl.Close()
		return nil, err
	}
	return dl, nil
}

// runWorker is one smoke test: a UI check on its own session and a batch
// of parallel API reads.
func runWorker(ctx context.Context, cfg config.Config, mgr *session.Manager, client *apiclient.Client, worker session.WorkerID, log *slog.Logger) error {
	sess, err := mgr.Acquire(ctx, worker)
	if err != nil {
		return err
	}
	defer mgr.Release(worker)

	p := page.New(sess, cfg.BaseURL, page.WithTimeout(cfg.Timeout), page.WithLogger(log))
	if err := checkPage(ctx, p, sess, log); err != nil {
		if path, shotErr := p.SaveScreenshot(context.WithoutCancel(ctx), cfg.ArtifactDir, string(worker)); shotErr == nil {
			log.Error("page check failed", "screenshot", path)
		} else {
			log.Warn("screenshot failed", "error", shotErr)
		}
		return fmt.Errorf("%s: %w", worker, err)
	}

	var calls []*apiclient.PendingCall
	for _, path := range []string{"/users/1", "/users/2", "/users/1/posts"} {
		call, err := client.GetAsync(ctx, path)
		if err != nil {
			return fmt.Errorf("%s: %w", worker, err)
		}
		calls = append(calls, call)
	}
	apiclient.AwaitAll(calls...)
	if err := apiclient.Failures(calls...); err != nil {
		return fmt.Errorf("%s: %w", worker, err)
	}
	for _, call := range calls {
		resp, _ := call.Wait()
		if !resp.IsSuccess() {
			return fmt.Errorf("%s: api call returned %d", worker, resp.StatusCode)
		}
	}
	log.Info("api calls passed", "count", len(calls))
	return nil
}
