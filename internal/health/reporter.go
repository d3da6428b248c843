// Package health reports whether the knowledge base is ready to serve.
package health

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperjump/kbserve/internal/models"
	"github.com/hyperjump/kbserve/internal/storage"
	"go.uber.org/zap"
)

// DefaultTimeout bounds a check when no timeout option is given.
const DefaultTimeout = 5 * time.Second

// StatsSource is a store connection that can produce chunk counts.
type StatsSource interface {
	Stats(ctx context.Context) (*storage.Stats, error)
	Close() error
}

// Opener acquires a fresh StatsSource for a single check.
type Opener func(ctx context.Context) (StatsSource, error)

// SQLiteOpener returns an Opener that opens dbPath read-only on every call.
func SQLiteOpener(dbPath string) Opener {
	return func(ctx context.Context) (StatsSource, error) {
		s, err := storage.OpenReadOnly(ctx, dbPath)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// Reporter runs readiness checks against the chunk store.
type Reporter struct {
	open      Opener
	apiKeySet bool
	timeout   time.Duration
	logger    *zap.Logger
}

// ReporterOption configures a Reporter.
type ReporterOption func(*Reporter)

// WithTimeout bounds each check. A non-positive value disables the bound.
func WithTimeout(d time.Duration) ReporterOption {
	return func(r *Reporter) {
		r.timeout = d
	}
}

// WithLogger sets the logger used for failed checks.
func WithLogger(logger *zap.Logger) ReporterOption {
	return func(r *Reporter) {
		r.logger = logger
	}
}

// NewReporter creates a Reporter. apiKeySet is reported verbatim in every report.
func NewReporter(open Opener, apiKeySet bool, opts ...ReporterOption) *Reporter {
	r := &Reporter{
		open:      open,
		apiKeySet: apiKeySet,
		timeout:   DefaultTimeout,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Check opens the store, reads the chunk counts and closes the store again.
// It never returns an error: any failure yields an unhealthy report carrying the error text.
func (r *Reporter) Check(ctx context.Context) *models.HealthReport {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	stats, err := r.collect(ctx)
	if err != nil {
		r.logger.Warn("health check failed", zap.Error(err))
		return &models.HealthReport{
			Status:    models.StatusUnhealthy,
			APIKeySet: r.apiKeySet,
			Error:     err.Error(),
		}
	}
	return &models.HealthReport{
		Status:      models.StatusHealthy,
		Database:    models.DatabaseConnected,
		APIKeySet:   r.apiKeySet,
		ChunkCounts: stats,
	}
}

func (r *Reporter) collect(ctx context.Context) (stats *storage.Stats, err error) {
	defer func() {
		if p := recover(); p != nil {
			stats, err = nil, fmt.Errorf("panic during health check: %v", p)
		}
	}()

	src, err := r.open(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			r.logger.Debug("closing store after health check", zap.Error(cerr))
		}
	}()

	stats, err = src.Stats(ctx)
	if err != nil {
		return nil, err
	}
	return stats, nil
}
