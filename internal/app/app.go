// Package app initializes and runs the casevault daemon. It opens the
// store, builds the encrypted record layer, starts the backup scheduler and
// the metrics endpoint, and handles graceful shutdown.
package app

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/avelichko/casevault/internal/audit"
	"github.com/avelichko/casevault/internal/backup"
	"github.com/avelichko/casevault/internal/cache"
	"github.com/avelichko/casevault/internal/config"
	"github.com/avelichko/casevault/internal/cryptox"
	"github.com/avelichko/casevault/internal/logging"
	"github.com/avelichko/casevault/internal/metrics"
	"github.com/avelichko/casevault/internal/records"
	"github.com/avelichko/casevault/internal/storage"
)

type App struct {
	config    *config.Config
	logger    logging.Logger
	records   *records.Repository
	audit     *audit.Logger
	scheduler *backup.Scheduler
	closeDB   func() error
}

// encryptionKey resolves the AES key from configuration: an explicit hex key
// when present, otherwise argon2id derivation from the passphrase.
func encryptionKey(c *config.Config) ([]byte, error) {
	if c.EncryptionKeyHex != "" {
		key, err := hex.DecodeString(c.EncryptionKeyHex)
		if err != nil {
			return nil, fmt.Errorf("decoding encryption key: %w", err)
		}
		return key, nil
	}
	if c.KeyPassphrase == "" {
		return nil, errors.New("no encryption key or passphrase configured")
	}
	return cryptox.DeriveKey([]byte(c.KeyPassphrase), []byte(c.KeySalt)), nil
}

func NewApp(c *config.Config) (*App, error) {

	slogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(slogger)

	ctx := context.Background()

	db, err := storage.Open(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	key, err := encryptionKey(c)
	if err != nil {
		db.Close()
		return nil, err
	}
	crypto, err := cryptox.NewService(key)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("crypto init error: %w", err)
	}

	auditLog := audit.NewLogger(audit.NewSQLiteRepository(db), logger)
	repo := records.NewRepository(db, crypto, cache.New(c.CacheBudgetBytes), auditLog, logger)

	var up *backup.S3Uploader
	if c.S3Enabled {
		up = backup.NewS3Uploader(c.S3RootUser, c.S3RootPassword, c.S3Bucket, c.S3Region, c.S3BaseEndpoint)
	}
	scheduler := backup.NewScheduler(
		backup.NewSQLiteSettingsRepository(db),
		backup.NewSnapshotter(db, c.BackupDir, c.BackupPrefix),
		backup.NewRetentionPolicy(c.BackupDir, c.BackupPrefix, logger),
		uploaderOrNil(up),
		auditLog,
		logger,
		c.BackupCheckInterval,
	)

	return &App{
		config:    c,
		logger:    logger,
		records:   repo,
		audit:     auditLog,
		scheduler: scheduler,
		closeDB:   db.Close,
	}, nil
}

// uploaderOrNil keeps a typed nil *S3Uploader from becoming a non-nil
// interface value inside the scheduler.
func uploaderOrNil(up *backup.S3Uploader) backup.Uploader {
	if up == nil {
		return nil
	}
	return up
}

// Records exposes the encrypted record layer to embedding hosts.
func (app *App) Records() *records.Repository {
	return app.records
}

// Audit exposes the audit log for chain verification tooling.
func (app *App) Audit() *audit.Logger {
	return app.audit
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startMetricsServer(ctx context.Context, cancelFunc context.CancelFunc) {

	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	server := &http.Server{Addr: app.config.MetricsAddr, Handler: mux}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	app.scheduler.Start(ctx)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startMetricsServer(ctx, cancelFunc)
	}()

	wg.Wait()

	app.scheduler.Stop()
	if err := app.closeDB(); err != nil {
		app.logger.Error(ctx, err.Error())
	}
	app.logger.Info(ctx, "App stopped")
}
