// Package audit persists traffic and log rows off the request path. Writes
// are queued on a bounded channel and flushed by a single consumer; when the
// queue is full new entries are dropped rather than blocking a handler.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"planhub/api/internal/metrics"
	"planhub/api/internal/store"
)

const (
	KindError = "Error"
	KindInfo  = "Info"
)

const writeTimeout = 5 * time.Second

type Recorder struct {
	store    store.Store
	log      *zap.Logger
	healthID uuid.UUID
	nodeIP   string

	queue chan func(ctx context.Context) error
	once  sync.Once
	wg    sync.WaitGroup
}

func NewRecorder(st store.Store, log *zap.Logger, healthID uuid.UUID, nodeIP string, queueSize int) *Recorder {
	if queueSize <= 0 {
		queueSize = 1024
	}
	r := &Recorder{
		store:    st,
		log:      log,
		healthID: healthID,
		nodeIP:   nodeIP,
		queue:    make(chan func(ctx context.Context) error, queueSize),
	}
	r.wg.Add(1)
	go r.consume()
	return r
}

func (r *Recorder) consume() {
	defer r.wg.Done()
	for job := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		if err := job(ctx); err != nil {
			r.log.Warn("audit write failed", zap.Error(err))
		}
		cancel()
	}
}

// Close drains the queue and stops the consumer. Entries enqueued after
// Close are dropped.
func (r *Recorder) Close() {
	r.once.Do(func() { close(r.queue) })
	r.wg.Wait()
}

func (r *Recorder) enqueue(job func(ctx context.Context) error) {
	defer func() {
		// Enqueue after Close panics on the closed channel; swallow it, the
		// entry is dropped like any other overflow.
		_ = recover()
	}()
	select {
	case r.queue <- job:
	default:
		metrics.AuditDropped()
		r.log.Warn("audit queue full, entry dropped")
	}
}

func (r *Recorder) Traffic(t store.Traffic) {
	t.HealthID = r.healthID
	r.enqueue(func(ctx context.Context) error {
		return r.store.InsertTraffic(ctx, t)
	})
}

func (r *Recorder) Error(trafficID *uuid.UUID, message string) {
	r.record(trafficID, KindError, message)
}

func (r *Recorder) Info(trafficID *uuid.UUID, message string) {
	r.record(trafficID, KindInfo, message)
}

func (r *Recorder) record(trafficID *uuid.UUID, kind, message string) {
	entry := store.LogEntry{
		TrafficID: trafficID,
		Kind:      kind,
		Message:   message,
		NodeIP:    r.nodeIP,
	}
	r.enqueue(func(ctx context.Context) error {
		return r.store.InsertLog(ctx, entry)
	})
}
