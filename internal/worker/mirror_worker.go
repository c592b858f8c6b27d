// Package worker mirrors documents from the local SQLite store into the
// remote document store (Google Sheets in production).
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"worktracker/internal/amqp"
	"worktracker/internal/documents"
	applog "worktracker/internal/log"
	"worktracker/internal/storage"
)

// DocumentSource is the slice of storage.SQLiteRepository the worker needs.
type DocumentSource interface {
	GetDocument(ctx context.Context, key string) (*storage.StoredDocument, error)
	GetPendingDocuments(ctx context.Context, limit int) ([]storage.PendingDocument, error)
	MarkSynced(ctx context.Context, key string, version int64) (bool, error)
	MarkSyncError(ctx context.Context, key string, version int64, cause error) error
}

type Config struct {
	// BatchSize is the max number of pending documents mirrored per scan (default: 10)
	BatchSize int

	// ScanInterval is how often pending documents are rescanned (default: 30s)
	ScanInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		BatchSize:    10,
		ScanInterval: 30 * time.Second,
	}
}

// MirrorWorker copies the latest version of a user's document to the mirror.
// Triggers are AMQP sync messages and a periodic scan of documents still
// marked pending, which catches messages lost while the broker was down.
type MirrorWorker struct {
	source  DocumentSource
	mirror  documents.Writer
	config  Config
	logger  *slog.Logger
	mirrors *prometheus.CounterVec

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewMirrorWorker registers its counter on registerer; nil skips registration.
func NewMirrorWorker(source DocumentSource, mirror documents.Writer, config Config, registerer prometheus.Registerer, logger *slog.Logger) *MirrorWorker {
	def := DefaultConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = def.BatchSize
	}
	if config.ScanInterval <= 0 {
		config.ScanInterval = def.ScanInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	mirrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "worktracker_mirror_total",
		Help: "Documents mirrored to the remote store by result.",
	}, []string{"result"})
	if registerer != nil {
		registerer.MustRegister(mirrors)
	}
	return &MirrorWorker{
		source:  source,
		mirror:  mirror,
		config:  config,
		logger:  logger.With(applog.FieldComponent, applog.ComponentWorker),
		mirrors: mirrors,
	}
}

// HandleSyncMessage mirrors the document named by msg. Messages for versions
// that are already mirrored are acknowledged without a remote write.
func (w *MirrorWorker) HandleSyncMessage(ctx context.Context, msg *amqp.DocumentSyncMessage) error {
	w.logger.DebugContext(ctx, "Processing sync message", applog.FieldUserID, msg.UserID, applog.FieldVersion, msg.Version)

	doc, err := w.source.GetDocument(ctx, msg.UserID)
	if errors.Is(err, documents.ErrNotFound) {
		w.logger.WarnContext(ctx, "Sync message for unknown document, dropping", applog.FieldUserID, msg.UserID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get document from storage: %w", err)
	}
	if doc.SyncStatus == storage.SyncSynced && doc.Version >= msg.Version {
		w.mirrors.WithLabelValues("skipped").Inc()
		return nil
	}
	return w.mirrorDocument(ctx, doc)
}

// ProcessPending mirrors up to limit documents still waiting for a mirror and
// returns how many succeeded.
func (w *MirrorWorker) ProcessPending(ctx context.Context, limit int) (int, error) {
	pending, err := w.source.GetPendingDocuments(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("get pending documents: %w", err)
	}
	if len(pending) == 0 {
		return 0, nil
	}
	w.logger.InfoContext(ctx, "Processing pending documents", "count", len(pending))

	synced := 0
	for _, p := range pending {
		if ctx.Err() != nil {
			return synced, ctx.Err()
		}
		doc, err := w.source.GetDocument(ctx, p.UserID)
		if err != nil {
			w.logger.ErrorContext(ctx, "Failed to get document", applog.FieldUserID, p.UserID, "error", err)
			continue
		}
		if err := w.mirrorDocument(ctx, doc); err != nil {
			continue
		}
		synced++
	}
	return synced, nil
}

// StartupSyncCheck drains a larger batch once, to recover from worker
// downtime before the periodic scan kicks in.
func (w *MirrorWorker) StartupSyncCheck(ctx context.Context) error {
	n, err := w.ProcessPending(ctx, w.config.BatchSize*5)
	if err != nil {
		return fmt.Errorf("startup sync check: %w", err)
	}
	w.logger.InfoContext(ctx, "Startup sync completed", "synced", n)
	return nil
}

func (w *MirrorWorker) mirrorDocument(ctx context.Context, doc *storage.StoredDocument) error {
	if err := w.mirror.Set(ctx, doc.UserID, doc.Body); err != nil {
		w.mirrors.WithLabelValues("error").Inc()
		if markErr := w.source.MarkSyncError(ctx, doc.UserID, doc.Version, err); markErr != nil {
			w.logger.ErrorContext(ctx, "Failed to mark sync error", applog.FieldUserID, doc.UserID, "error", markErr)
		}
		w.logger.ErrorContext(ctx, "Failed to mirror document", applog.FieldUserID, doc.UserID, applog.FieldVersion, doc.Version, "error", err)
		return fmt.Errorf("mirror document: %w", err)
	}
	w.mirrors.WithLabelValues("success").Inc()

	current, err := w.source.MarkSynced(ctx, doc.UserID, doc.Version)
	if err != nil {
		// the mirror write itself succeeded; the next scan retries the bookkeeping
		w.logger.ErrorContext(ctx, "Failed to mark as synced", applog.FieldUserID, doc.UserID, "error", err)
		return nil
	}
	if !current {
		w.logger.DebugContext(ctx, "Document changed during mirror, newer version stays pending", applog.FieldUserID, doc.UserID)
	}
	w.logger.InfoContext(ctx, "Mirrored document", applog.FieldUserID, doc.UserID, applog.FieldVersion, doc.Version, "bytes", len(doc.Body))
	return nil
}

// Start begins the periodic pending scan. Returns an error if already running.
func (w *MirrorWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("mirror worker is already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	go w.runLoop(ctx)

	w.logger.InfoContext(ctx, "Mirror worker started",
		"scan_interval", w.config.ScanInterval,
		"batch_size", w.config.BatchSize)
	return nil
}

// Stop signals the scan loop and waits for it to finish.
func (w *MirrorWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		w.logger.InfoContext(ctx, "Mirror worker stopped gracefully")
	case <-ctx.Done():
		w.logger.WarnContext(ctx, "Mirror worker stop timed out")
		return ctx.Err()
	}

	w.mu.Lock()
	w.running = false
	w.mu.Unlock()
	return nil
}

func (w *MirrorWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *MirrorWorker) runLoop(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.ProcessPending(ctx, w.config.BatchSize); err != nil && ctx.Err() == nil {
				w.logger.ErrorContext(ctx, "Pending scan failed", "error", err)
			}
		}
	}
}
