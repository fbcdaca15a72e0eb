package observer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"go-plant-identifier/pkg/models"
)

// IdentificationEvent represents a step of a session's identification flow
type IdentificationEvent struct {
	EventType      EventType              `json:"event_type"`
	Timestamp      time.Time              `json:"timestamp"`
	SessionID      string                 `json:"session_id"`
	ImageName      string                 `json:"image_name,omitempty"`
	Attempt        int                    `json:"attempt,omitempty"`
	ProcessingTime time.Duration          `json:"processing_time"`
	Success        bool                   `json:"success"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
	ScientificName string                 `json:"scientific_name,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`

	// Image is only set on success and is never serialized
	Image *models.ImageBlob `json:"-"`
}

// EventType represents the type of identification event
type EventType string

const (
	// ImageSelected when an image becomes the session's current input
	ImageSelected EventType = "image_selected"
	// IdentificationStarted when a submission begins
	IdentificationStarted EventType = "identification_started"
	// RetryScheduled when a failed attempt is about to be re-issued
	RetryScheduled EventType = "retry_scheduled"
	// IdentificationSucceeded when the service returned plant details
	IdentificationSucceeded EventType = "identification_succeeded"
	// IdentificationFailed when the retry budget is exhausted
	IdentificationFailed EventType = "identification_failed"
	// PlantSaved when a result was appended to the saved list
	PlantSaved EventType = "plant_saved"
)

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event IdentificationEvent)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event IdentificationEvent)
}

// LoggingObserver logs identification events
type LoggingObserver struct {
	logger *logrus.Logger
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(logger *logrus.Logger) Observer {
	return &LoggingObserver{
		logger: logger,
	}
}

// OnEvent handles identification events by logging them
func (o *LoggingObserver) OnEvent(ctx context.Context, event IdentificationEvent) {
	fields := logrus.Fields{
		"event_type": event.EventType,
		"session_id": event.SessionID,
		"success":    event.Success,
	}
	if event.ImageName != "" {
		fields["image_name"] = event.ImageName
	}
	if event.Attempt > 0 {
		fields["attempt"] = event.Attempt
	}
	if event.ProcessingTime > 0 {
		fields["processing_time"] = event.ProcessingTime
	}
	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
	}
	if event.ScientificName != "" {
		fields["scientific_name"] = event.ScientificName
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}

	entry := o.logger.WithFields(fields)
	switch event.EventType {
	case ImageSelected:
		entry.Debug("Image selected")
	case IdentificationStarted:
		entry.Info("Plant identification started")
	case RetryScheduled:
		entry.Warn("Plant identification attempt failed, retrying")
	case IdentificationSucceeded:
		entry.Info("Plant identification succeeded")
	case IdentificationFailed:
		entry.Error("Plant identification failed")
	case PlantSaved:
		entry.Info("Plant saved")
	default:
		entry.Info("Identification event occurred")
	}
}

// GetObserverName returns the observer name
func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

// MetricsObserver collects counters from identification events
type MetricsObserver struct {
	mu                   sync.RWMutex
	totalIdentifications int64
	successful           int64
	failed               int64
	retries              int64
	saved                int64
	totalProcessingTime  time.Duration
}

// NewMetricsObserver creates a new metrics observer
func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{}
}

// OnEvent handles identification events by collecting metrics
func (o *MetricsObserver) OnEvent(ctx context.Context, event IdentificationEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch event.EventType {
	case IdentificationStarted:
		o.totalIdentifications++
	case RetryScheduled:
		o.retries++
	case IdentificationSucceeded:
		o.successful++
		o.totalProcessingTime += event.ProcessingTime
	case IdentificationFailed:
		o.failed++
	case PlantSaved:
		o.saved++
	}
}

// GetObserverName returns the observer name
func (o *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}

// GetMetrics returns current metrics
func (o *MetricsObserver) GetMetrics() map[string]interface{} {
	o.mu.RLock()
	defer o.mu.RUnlock()

	avgProcessingTime := time.Duration(0)
	if o.successful > 0 {
		avgProcessingTime = o.totalProcessingTime / time.Duration(o.successful)
	}

	return map[string]interface{}{
		"total_identifications":      o.totalIdentifications,
		"successful_identifications": o.successful,
		"failed_identifications":     o.failed,
		"retries":                    o.retries,
		"saved_plants":               o.saved,
		"total_processing_time":      o.totalProcessingTime.String(),
		"avg_processing_time":        avgProcessingTime.String(),
	}
}

// EventPublisher implements the Subject interface on top of a worker pool
type EventPublisher struct {
	mu        sync.RWMutex
	observers []Observer
	pool      *WorkerPool
	logger    *logrus.Logger
}

// NewEventPublisher creates a publisher whose observers run on workers
// goroutines. Close must be called to drain pending notifications.
func NewEventPublisher(workers int, logger *logrus.Logger) *EventPublisher {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	pool := NewWorkerPool(workers, 0)
	pool.Start()
	return &EventPublisher{
		observers: make([]Observer, 0),
		pool:      pool,
		logger:    logger,
	}
}

// Subscribe adds an observer
func (p *EventPublisher) Subscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

// Unsubscribe removes an observer
func (p *EventPublisher) Unsubscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, obs := range p.observers {
		if obs.GetObserverName() == observer.GetObserverName() {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			break
		}
	}
}

// NotifyObservers queues the event for every observer and never blocks.
// Events are dropped when the queue is full or the publisher is closed.
func (p *EventPublisher) NotifyObservers(ctx context.Context, event IdentificationEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	// observers outlive the request that produced the event
	ctx = context.WithoutCancel(ctx)

	for _, observer := range observers {
		obs := observer
		err := p.pool.Submit(func() {
			defer func() {
				if r := recover(); r != nil {
					p.logger.WithField("observer", obs.GetObserverName()).
						WithField("panic", r).
						Error("Observer panicked while handling event")
				}
			}()
			obs.OnEvent(ctx, event)
		})
		if err != nil {
			p.logger.WithError(err).WithFields(logrus.Fields{
				"observer":   obs.GetObserverName(),
				"event_type": event.EventType,
			}).Warn("Event dropped")
		}
	}
}

// Close waits for queued notifications to finish
func (p *EventPublisher) Close() {
	p.pool.Close()
}
