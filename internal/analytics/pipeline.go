// Package analytics persists enriched request records asynchronously from
// the response path. Delivery is at-most-once and best-effort: a full
// buffer or a failed write drops the record with a warning, never touching
// the client-visible response.
package analytics

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sdko-org/edge-proxy/internal/metrics"
	"github.com/sdko-org/edge-proxy/internal/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const writeTimeout = 2 * time.Second

// Store is the append-only sink for access-log records.
type Store interface {
	Insert(ctx context.Context, rec *models.AccessLog) error
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Insert(ctx context.Context, rec *models.AccessLog) error {
	return s.db.WithContext(ctx).Create(rec).Error
}

type Pipeline struct {
	ch    chan *models.AccessLog
	store Store
	log   *logrus.Entry
	wg    sync.WaitGroup

	closeOnce sync.Once
}

func NewPipeline(logger *logrus.Logger, store Store, bufferSize int) *Pipeline {
	p := &Pipeline{
		ch:    make(chan *models.AccessLog, bufferSize),
		store: store,
		log:   logger.WithField("component", "ingest_pipeline"),
	}

	p.wg.Add(1)
	go p.consume()

	return p
}

// Validate enforces the fixed record schema before anything is queued.
func Validate(rec *models.AccessLog) error {
	switch {
	case rec == nil:
		return fmt.Errorf("nil record")
	case rec.Domain == "":
		return fmt.Errorf("missing domain")
	case rec.Path == "":
		return fmt.Errorf("missing path")
	case rec.Method == "":
		return fmt.Errorf("missing method")
	case rec.ClientIP == "":
		return fmt.Errorf("missing client IP")
	case rec.Status < 0:
		return fmt.Errorf("negative status code")
	case rec.BytesSent < 0:
		return fmt.Errorf("negative bytes transferred")
	}
	return nil
}

// Ingest validates and enqueues a record. It never blocks: with a full
// buffer the record is dropped and counted.
func (p *Pipeline) Ingest(rec *models.AccessLog) error {
	if err := Validate(rec); err != nil {
		metrics.IngestRecords.WithLabelValues("invalid").Inc()
		return err
	}

	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}

	select {
	case p.ch <- rec:
	default:
		metrics.IngestRecords.WithLabelValues("dropped").Inc()
		p.log.Warn("Ingest buffer full, dropping record")
	}
	return nil
}

func (p *Pipeline) consume() {
	defer p.wg.Done()

	for rec := range p.ch {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := p.store.Insert(ctx, rec); err != nil {
			metrics.IngestRecords.WithLabelValues("dropped").Inc()
			p.log.WithError(err).Warn("Failed to write analytics record")
		} else {
			metrics.IngestRecords.WithLabelValues("written").Inc()
		}
		cancel()
	}
}

// Close stops intake and drains whatever is already queued.
func (p *Pipeline) Close() {
	p.closeOnce.Do(func() {
		close(p.ch)
	})
	p.wg.Wait()
}
