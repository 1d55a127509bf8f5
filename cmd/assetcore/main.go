// Command assetcore serves the asset tracking HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"assetcore/internal/adapters/httpapi"
	"assetcore/internal/blob"
	"assetcore/internal/config"
	"assetcore/internal/core"
	"assetcore/internal/infra/idempotency"
	idemmemory "assetcore/internal/infra/idempotency/memory"
	idemredis "assetcore/internal/infra/idempotency/redis"
	"assetcore/internal/infra/queue"
	"assetcore/internal/logging"
	"assetcore/internal/metrics"
	"assetcore/internal/tracing"
)

var exitFunc = os.Exit

func main() {
	code := cli(os.Args[1:], os.Stdout, os.Stderr)
	exitFunc(code)
}

func cli(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("assetcore", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		configPath string
		checkOnly  bool
	)
	fs.StringVar(&configPath, "config", os.Getenv("ASSETCORE_CONFIG"), "path to a YAML config file")
	fs.BoolVar(&checkOnly, "check", false, "validate the configuration and exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "assetcore: %v\n", err)
		return 1
	}
	if checkOnly {
		_, _ = fmt.Fprintf(stdout, "configuration ok (storage=%s blob=%s queue=%s)\n",
			orDefault(cfg.Storage.Driver, "sqlite"), orDefault(cfg.Blob.Driver, "fs"), orDefault(string(cfg.Queue.Driver), "memory"))
		return 0
	}
	logger := logging.New(cfg.LogLevel, stdout)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := serve(ctx, cfg, logger); err != nil {
		logging.LogError(logger, "main", "serve", err, nil)
		return 1
	}
	return 0
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// app holds the wired components and what must be closed on shutdown.
type app struct {
	svc     *core.Service
	handler http.Handler
	closers []io.Closer
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	return errors.Join(errs...)
}

func build(ctx context.Context, cfg config.Config, logger *logrus.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	store, err := core.OpenStore(cfg.StorageConfig(), nil)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if c, ok := store.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	blobs, err := blob.Open(ctx, cfg.BlobConfig())
	if err != nil {
		return nil, fmt.Errorf("open blob store: %w", err)
	}
	if c, ok := blobs.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	jobs, err := queue.Open(ctx, cfg.Queue, logger)
	if err != nil {
		return nil, fmt.Errorf("open analysis queue: %w", err)
	}
	a.closers = append(a.closers, jobs)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder := metrics.NewRecorder(reg)

	opts := []core.Option{
		core.WithLogger(logger),
		core.WithMetricsRecorder(recorder),
		core.WithBlobStore(blobs),
		core.WithAnalysisQueue(jobs),
		core.WithCodePrefix(cfg.Codes.Prefix),
		core.WithBaseURL(cfg.Codes.BaseURL),
	}
	switch cfg.Tracing.Exporter {
	case "json":
		opts = append(opts, core.WithTracer(core.NewJSONTracer(os.Stderr)))
	case "otel":
		opts = append(opts, core.WithTracer(tracing.New(nil)))
	}
	a.svc = core.NewService(store, opts...)

	serverOpts := []httpapi.Option{
		httpapi.WithLogger(logger),
		httpapi.WithMaxBodyBytes(cfg.HTTP.MaxBodyBytes),
		httpapi.WithMetricsHandler(recorder.Handler()),
	}
	idem, err := openIdempotency(ctx, cfg.Idempotency)
	if err != nil {
		return nil, err
	}
	if idem.store != nil {
		serverOpts = append(serverOpts, httpapi.WithIdempotencyStore(idem.store))
	}
	if idem.closer != nil {
		a.closers = append(a.closers, idem.closer)
	}
	a.handler = httpapi.New(a.svc, serverOpts...).Handler()
	return a, nil
}

type idempotencyBackend struct {
	store  idempotency.Store
	closer io.Closer
}

func openIdempotency(ctx context.Context, cfg config.IdempotencyConfig) (idempotencyBackend, error) {
	switch cfg.Driver {
	case "none":
		return idempotencyBackend{}, nil
	case "redis":
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return idempotencyBackend{}, fmt.Errorf("idempotency redis ping %s: %w", cfg.RedisAddr, err)
		}
		return idempotencyBackend{store: idemredis.New(client, cfg.TTL), closer: client}, nil
	default:
		return idempotencyBackend{store: idemmemory.New(cfg.TTL)}, nil
	}
}

func serve(ctx context.Context, cfg config.Config, logger *logrus.Logger) error {
	a, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			logging.LogError(logger, "main", "close", cerr, nil)
		}
	}()

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", cfg.HTTP.Addr).Info("assetcore listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
