package writer

import (
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"

	appconfig "optionflow/config"
	"optionflow/logger"
	"optionflow/models"
)

// archiveTarget persists one parquet file for a partition under key.
type archiveTarget interface {
	Name() string
	Write(ctx context.Context, key string, rows []ParquetRecord) (int64, error)
}

type partition struct {
	symbol string
	expiry string
	date   string
}

// ArchiveWriter buffers window rows per symbol, expiry and day and writes
// them as parquet on an interval or once MaxRows rows are pending.
type ArchiveWriter struct {
	config  *appconfig.Config
	results <-chan *models.Result
	target  archiveTarget
	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log
	buffer  map[partition][]ParquetRecord
	pending int
}

// NewArchiveWriter builds the writer for the configured target.
func NewArchiveWriter(cfg *appconfig.Config, results <-chan *models.Result) (*ArchiveWriter, error) {
	var (
		target archiveTarget
		err    error
	)
	switch cfg.Writer.Archive.Target {
	case "local":
		target, err = newLocalTarget(cfg.Writer.Archive.LocalDir, cfg.Writer.Archive.Compression)
	case "s3", "":
		target, err = newS3Target(cfg)
	default:
		err = fmt.Errorf("unknown archive target %q", cfg.Writer.Archive.Target)
	}
	if err != nil {
		return nil, err
	}
	return newArchiveWriter(cfg, results, target), nil
}

func newArchiveWriter(cfg *appconfig.Config, results <-chan *models.Result, target archiveTarget) *ArchiveWriter {
	return &ArchiveWriter{
		config:  cfg,
		results: results,
		target:  target,
		ctx:     context.Background(),
		wg:      &sync.WaitGroup{},
		log:     logger.GetLogger(),
		buffer:  make(map[partition][]ParquetRecord),
	}
}

func (w *ArchiveWriter) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("archive writer already running")
	}
	w.running = true
	w.ctx = ctx
	w.mu.Unlock()

	w.wg.Add(1)
	go w.run()

	w.log.WithComponent("archive_writer").WithFields(logger.Fields{
		"target":         w.target.Name(),
		"flush_interval": w.config.Writer.Archive.FlushInterval.String(),
		"max_rows":       w.config.Writer.Archive.MaxRows,
	}).Info("archive writer started")
	return nil
}

func (w *ArchiveWriter) Stop() {
	w.mu.Lock()
	w.running = false
	w.mu.Unlock()

	w.log.WithComponent("archive_writer").Info("stopping archive writer")
	w.wg.Wait()
	w.log.WithComponent("archive_writer").Info("archive writer stopped")
}

func (w *ArchiveWriter) run() {
	defer w.wg.Done()

	log := w.log.WithComponent("archive_writer").WithFields(logger.Fields{"worker": "archive"})
	ticker := time.NewTicker(w.config.Writer.Archive.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			w.drain()
			w.flushBuffers("shutdown")
			log.Info("worker stopped due to context cancellation")
			return
		case <-ticker.C:
			w.flushBuffers("interval")
		case r, ok := <-w.results:
			if !ok {
				w.flushBuffers("channel_closed")
				log.Info("result channel closed, worker stopping")
				return
			}
			if w.add(r) >= w.config.Writer.Archive.MaxRows {
				w.flushBuffers("max_rows")
			}
		}
	}
}

// drain picks up results already queued when shutdown starts.
func (w *ArchiveWriter) drain() {
	for {
		select {
		case r, ok := <-w.results:
			if !ok {
				return
			}
			w.add(r)
		default:
			return
		}
	}
}

// add buffers the rows of r and returns the number of rows now pending.
func (w *ArchiveWriter) add(r *models.Result) int {
	rows := Flatten(r)
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(rows) == 0 {
		return w.pending
	}
	key := partition{symbol: r.Symbol, expiry: r.Expiry, date: r.GeneratedAt.UTC().Format("2006-01-02")}
	w.buffer[key] = append(w.buffer[key], rows...)
	w.pending += len(rows)
	return w.pending
}

func (w *ArchiveWriter) flushBuffers(reason string) {
	w.mu.Lock()
	buffers := w.buffer
	w.buffer = make(map[partition][]ParquetRecord)
	w.pending = 0
	w.mu.Unlock()

	if len(buffers) == 0 {
		return
	}

	w.log.WithComponent("archive_writer").WithFields(logger.Fields{
		"flushed_buffers": len(buffers),
		"reason":          reason,
	}).Info("flushing buffers")

	for key, rows := range buffers {
		w.writePartition(key, rows)
	}
}

func (w *ArchiveWriter) writePartition(key partition, rows []ParquetRecord) {
	objectKey := w.objectKey(key, uuid.New())
	log := w.log.WithComponent("archive_writer").WithFields(logger.Fields{
		"target":       w.target.Name(),
		"symbol":       key.symbol,
		"expiry":       key.expiry,
		"record_count": len(rows),
		"key":          objectKey,
	})

	start := time.Now()
	size, err := w.target.Write(context.WithoutCancel(w.ctx), objectKey, rows)
	if err != nil {
		log.WithError(err).Error("failed to write archive file")
		return
	}
	logger.LogPerformanceEntry(log, "archive_writer", "write_parquet", time.Since(start), logger.Fields{"file_size": size})
	logger.IncrementArchiveWrite(size)
	logger.LogDataFlowEntry(log, "archive_channel", w.target.Name(), len(rows), "parquet_rows")
}

// objectKey lays files out as prefix/symbol=X/expiry=Y/date=Z/<id>.parquet.
func (w *ArchiveWriter) objectKey(key partition, id uuid.UUID) string {
	return path.Join(
		w.config.Writer.Archive.Prefix,
		"symbol="+key.symbol,
		"expiry="+key.expiry,
		"date="+key.date,
		id.String()+".parquet",
	)
}
