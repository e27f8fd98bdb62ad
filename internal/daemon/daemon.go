package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/redis/go-redis/v9"

	"inkwell/internal/config"
	"inkwell/internal/conversion"
	"inkwell/internal/docdir"
	"inkwell/internal/ingest"
	"inkwell/internal/logging"
	"inkwell/internal/metadata"
	"inkwell/internal/services/docling"
	"inkwell/internal/services/lightrag"
	"inkwell/internal/taskqueue"
	"inkwell/internal/tasks"
)

// Daemon coordinates the worker runtime, the API server, and periodic
// maintenance, and enforces single-instance execution.
type Daemon struct {
	cfg    *config.Config
	logger *slog.Logger

	rdb    redis.UniversalClient
	client *taskqueue.Client
	server *taskqueue.Server
	store  *metadata.Store
	dirs   *docdir.Manager
	api    *apiServer

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs a daemon and wires every collaborator from the config.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires a config")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	store, err := metadata.Open(cfg)
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("open metadata store: %w", err)
	}
	dirs, err := docdir.NewManager(cfg.Paths.UploadDir, cfg.Paths.OutputDir)
	if err != nil {
		_ = store.Close()
		_ = rdb.Close()
		return nil, err
	}

	client := taskqueue.NewClient(rdb, taskqueue.ClientOptions{
		DefaultRetentionSeconds: int64(cfg.Workers.ResultRetention),
		ConnectRetries:          cfg.Redis.ConnectRetries,
		Logger:                  logger,
	})

	engineClient := docling.NewClient(cfg.Conversion.EngineURL,
		docling.WithTimeout(time.Duration(cfg.Conversion.TimeoutSeconds)*time.Second))
	engine := conversion.NewDoclingEngine(engineClient, conversion.Options{
		EnableOCR:      cfg.Conversion.EnableOCR,
		UseGPU:         cfg.Conversion.UseGPU,
		ThreadCount:    cfg.Conversion.ThreadCount,
		JSONOutput:     cfg.Conversion.JSONOutput,
		MarkdownOutput: cfg.Conversion.MarkdownOutput,
		DoctagsOutput:  cfg.Conversion.DoctagsOutput,
	}, logger)
	indexClient := lightrag.NewClient(cfg.Ingest.IndexURL, cfg.Ingest.APIKey,
		lightrag.WithTimeout(time.Duration(cfg.Ingest.TimeoutSeconds)*time.Second))
	provider := ingest.NewServerProvider(indexClient)

	handlers := tasks.NewHandlers(cfg, engine, provider, store, dirs, client, logger)
	mux := taskqueue.NewMux()
	handlers.Register(mux)

	server, err := taskqueue.NewServer(rdb, mux, taskqueue.ServerOptions{
		Queues:            tasks.Queues(cfg),
		VisibilityTimeout: time.Duration(cfg.Workers.VisibilityTimeout) * time.Second,
		MaxTasksPerWorker: cfg.Workers.MaxTasksPerWorker,
		Logger:            logger,
	})
	if err != nil {
		_ = store.Close()
		_ = rdb.Close()
		return nil, err
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "inkwelld.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logger.With(logging.String(logging.FieldComponent, "daemon")),
		rdb:      rdb,
		client:   client,
		server:   server,
		store:    store,
		dirs:     dirs,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the instance lock and launches workers, API, and the
// maintenance ticker.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another inkwell daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	d.server.Start(runCtx)
	if d.api != nil {
		if err := d.api.start(runCtx); err != nil {
			d.server.Stop()
			cancel()
			_ = d.lock.Unlock()
			return err
		}
	}
	if d.cfg.Cleanup.IntervalHours > 0 {
		d.wg.Add(1)
		go d.maintenanceTicker(runCtx)
	}

	d.running.Store(true)
	d.logger.Info("inkwell daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop shuts down workers and the API, releases the lock, and closes the
// underlying stores.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
	}
	d.server.Stop()
	d.wg.Wait()
	if d.api != nil {
		d.api.stop()
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("release lock failed", logging.Error(err))
	}
	if err := d.store.Close(); err != nil {
		d.logger.Warn("close metadata store failed", logging.Error(err))
	}
	if err := d.rdb.Close(); err != nil {
		d.logger.Warn("close broker connection failed", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("inkwell daemon stopped")
}

// Running reports whether the daemon is active.
func (d *Daemon) Running() bool { return d.running.Load() }

// APIAddr returns the bound API address, empty when the API is disabled.
func (d *Daemon) APIAddr() string {
	if d.api == nil {
		return ""
	}
	return d.api.addr()
}

// maintenanceTicker periodically submits the aged-directory cleanup task.
func (d *Daemon) maintenanceTicker(ctx context.Context) {
	defer d.wg.Done()
	interval := time.Duration(d.cfg.Cleanup.IntervalHours) * time.Hour
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			id, err := d.client.Submit(ctx, tasks.QueueMaintenance,
				string(tasks.KindCleanupOld), tasks.CleanupOldPayload{},
				tasks.PolicyFor(tasks.KindCleanupOld, d.cfg))
			if err != nil {
				d.logger.Warn("periodic cleanup submission failed", logging.Error(err))
				continue
			}
			d.logger.Info("periodic cleanup submitted", logging.String(logging.FieldTaskID, id))
		}
	}
}
