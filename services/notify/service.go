// Package notify delivers best-effort "chime" cues after remarks are stored.
// Cues are fire-and-forget: callers never block on them and never see their
// failures.
package notify

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/upb/freelance-marketplace/backend/models"
)

// EventRemarkCreated is the cue type emitted after a remark is stored
const EventRemarkCreated = "remark.created"

// Event is the payload handed to publishers
type Event struct {
	Type       string    `json:"type"`
	RemarkID   string    `json:"remarkId"`
	EntityType string    `json:"entityType"`
	EntityID   string    `json:"entityId"`
	DeletedBy  string    `json:"deletedBy"`
	At         time.Time `json:"at"`
}

// Publisher sends an event somewhere listeners can hear it
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Config holds configuration for the Service
type Config struct {
	BufferSize     int           // Size of the event buffer channel
	WorkerCount    int           // Number of concurrent workers
	PublishTimeout time.Duration // Upper bound for a single publish
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		BufferSize:     256,
		WorkerCount:    2,
		PublishTimeout: 2 * time.Second,
	}
}

// Service fans events out to a publisher from a bounded worker pool
type Service struct {
	publisher      Publisher
	logger         *zap.Logger
	eventChan      chan Event
	workerCount    int
	bufferSize     int
	publishTimeout time.Duration
	wg             sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool

	published atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

// NewService creates a Service. A nil publisher turns every cue into a no-op.
func NewService(publisher Publisher, logger *zap.Logger, config Config) *Service {
	def := DefaultConfig()
	if config.BufferSize <= 0 {
		config.BufferSize = def.BufferSize
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = def.WorkerCount
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = def.PublishTimeout
	}

	return &Service{
		publisher:      publisher,
		logger:         logger,
		eventChan:      make(chan Event, config.BufferSize),
		workerCount:    config.WorkerCount,
		bufferSize:     config.BufferSize,
		publishTimeout: config.PublishTimeout,
	}
}

// Start starts the background workers
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return fmt.Errorf("notify service already started")
	}
	if s.stopped {
		return fmt.Errorf("notify service already stopped")
	}

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.worker(i)
	}

	s.started = true
	s.logger.Info("started notify service",
		zap.Int("worker_count", s.workerCount),
		zap.Int("buffer_size", s.bufferSize),
		zap.Bool("publisher_configured", s.publisher != nil))

	return nil
}

// Stop stops accepting cues and waits for queued ones to be published
func (s *Service) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return fmt.Errorf("notify service not started")
	}
	s.started = false
	s.stopped = true
	pending := len(s.eventChan)
	close(s.eventChan)
	s.mu.Unlock()

	s.logger.Info("stopping notify service", zap.Int("pending_events", pending))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("notify service stopped gracefully")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("notify service stop timeout after %v", timeout)
	}
}

// Notify queues an event without blocking. When there is no publisher, the
// service is not running, or the buffer is full, the event is dropped.
func (s *Service) Notify(event Event) {
	if s.publisher == nil {
		s.logger.Debug("no notification publisher configured, skipping cue", zap.String("type", event.Type))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		s.dropped.Add(1)
		s.logger.Debug("notify service not running, dropping cue", zap.String("type", event.Type))
		return
	}

	select {
	case s.eventChan <- event:
	default:
		s.dropped.Add(1)
		s.logger.Warn("notify buffer full, dropping cue",
			zap.String("type", event.Type),
			zap.String("remark_id", event.RemarkID))
	}
}

// RemarkCreated emits the cue for a freshly stored remark
func (s *Service) RemarkCreated(remark *models.DeletionRemark) {
	s.Notify(Event{
		Type:       EventRemarkCreated,
		RemarkID:   remark.ID.String(),
		EntityType: string(remark.EntityType),
		EntityID:   remark.EntityID,
		DeletedBy:  remark.DeletedBy,
		At:         remark.CreatedAt,
	})
}

func (s *Service) worker(id int) {
	defer s.wg.Done()

	s.logger.Debug("notify worker started", zap.Int("worker_id", id))

	for event := range s.eventChan {
		s.publish(id, event)
	}

	s.logger.Debug("notify worker stopped", zap.Int("worker_id", id))
}

// publish makes exactly one attempt; failed cues are not retried
func (s *Service) publish(workerID int, event Event) {
	ctx, cancel := context.WithTimeout(context.Background(), s.publishTimeout)
	defer cancel()

	if err := s.publisher.Publish(ctx, event); err != nil {
		s.failed.Add(1)
		s.logger.Warn("failed to publish cue",
			zap.Int("worker_id", workerID),
			zap.String("type", event.Type),
			zap.String("remark_id", event.RemarkID),
			zap.Error(err))
		return
	}
	s.published.Add(1)
}

// GetStats returns statistics about the service
func (s *Service) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		BufferSize:    s.bufferSize,
		PendingEvents: len(s.eventChan),
		WorkerCount:   s.workerCount,
		Started:       s.started,
		Published:     s.published.Load(),
		Dropped:       s.dropped.Load(),
		Failed:        s.failed.Load(),
	}
}

// Stats represents notify service statistics
type Stats struct {
	BufferSize    int
	PendingEvents int
	WorkerCount   int
	Started       bool
	Published     uint64
	Dropped       uint64
	Failed        uint64
}
