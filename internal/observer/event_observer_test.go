package observer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"go-plant-identifier/pkg/models"
)

func TestWorkerPool_RunsAllJobsBeforeClose(t *testing.T) {
	pool := NewWorkerPool(3, 0)
	pool.Start()

	var counter int
	var mu sync.Mutex
	for i := 0; i < 20; i++ {
		if err := pool.Submit(func() {
			mu.Lock()
			counter++
			mu.Unlock()
		}); err != nil {
			t.Fatalf("Expected Submit to accept job: %v", err)
		}
	}
	pool.Close()

	if counter != 20 {
		t.Errorf("Expected counter to be 20, got %d", counter)
	}
	if err := pool.Submit(func() {}); !errors.Is(err, ErrPoolClosed) {
		t.Errorf("Expected ErrPoolClosed after Close, got %v", err)
	}
	pool.Close()
}

func TestWorkerPool_FullQueueDoesNotBlock(t *testing.T) {
	pool := NewWorkerPool(1, 1)
	pool.Start()
	release := make(chan struct{})
	started := make(chan struct{})

	if err := pool.Submit(func() {
		close(started)
		<-release
	}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-started
	if err := pool.Submit(func() {}); err != nil {
		t.Fatalf("Expected queued slot to accept job: %v", err)
	}

	begin := time.Now()
	err := pool.Submit(func() {})
	if !errors.Is(err, ErrQueueFull) {
		t.Errorf("Expected ErrQueueFull, got %v", err)
	}
	if elapsed := time.Since(begin); elapsed > 50*time.Millisecond {
		t.Errorf("Expected Submit to return immediately, took %s", elapsed)
	}

	close(release)
	pool.Close()
}

func TestWorkerPool_ZeroWorkers(t *testing.T) {
	pool := NewWorkerPool(0, 0)
	if pool.workers <= 0 {
		t.Errorf("Expected default worker count, got %d", pool.workers)
	}
	pool.Close()
}

type recordingObserver struct {
	name   string
	mu     sync.Mutex
	events []IdentificationEvent
	panics bool
}

func (r *recordingObserver) OnEvent(_ context.Context, event IdentificationEvent) {
	if r.panics {
		panic("boom")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingObserver) GetObserverName() string { return r.name }

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(&bytes.Buffer{})
	return logger
}

func TestEventPublisher_DeliversToSubscribers(t *testing.T) {
	publisher := NewEventPublisher(2, quietLogger())
	first := &recordingObserver{name: "first"}
	second := &recordingObserver{name: "second"}
	panicky := &recordingObserver{name: "panicky", panics: true}
	publisher.Subscribe(first)
	publisher.Subscribe(second)
	publisher.Subscribe(panicky)
	publisher.Unsubscribe(second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	publisher.NotifyObservers(ctx, IdentificationEvent{EventType: IdentificationStarted, SessionID: "s1"})
	publisher.Close()

	if len(first.events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(first.events))
	}
	if first.events[0].Timestamp.IsZero() {
		t.Error("Expected timestamp to be filled in")
	}
	if len(second.events) != 0 {
		t.Errorf("Expected unsubscribed observer to receive nothing, got %d", len(second.events))
	}

	// dropped after close, must not block or panic
	publisher.NotifyObservers(context.Background(), IdentificationEvent{EventType: IdentificationFailed})
}

func TestMetricsObserver(t *testing.T) {
	metrics := NewMetricsObserver()
	ctx := context.Background()
	events := []IdentificationEvent{
		{EventType: IdentificationStarted},
		{EventType: RetryScheduled},
		{EventType: RetryScheduled},
		{EventType: IdentificationFailed},
		{EventType: IdentificationStarted},
		{EventType: IdentificationSucceeded, ProcessingTime: 2 * time.Second},
		{EventType: PlantSaved},
	}
	for _, event := range events {
		metrics.OnEvent(ctx, event)
	}

	got := metrics.GetMetrics()
	want := map[string]interface{}{
		"total_identifications":      int64(2),
		"successful_identifications": int64(1),
		"failed_identifications":     int64(1),
		"retries":                    int64(2),
		"saved_plants":               int64(1),
		"avg_processing_time":        "2s",
	}
	for key, value := range want {
		if got[key] != value {
			t.Errorf("Expected %s=%v, got %v", key, value, got[key])
		}
	}
}

func TestLoggingObserver(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	NewLoggingObserver(logger).OnEvent(context.Background(), IdentificationEvent{
		EventType:    IdentificationFailed,
		SessionID:    "abc",
		Attempt:      3,
		ErrorMessage: "status code 500",
	})

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["level"] != "error" || entry["session_id"] != "abc" || entry["error"] != "status code 500" {
		t.Errorf("Unexpected log entry: %v", entry)
	}
}

type fakeWriter struct {
	messages []kafka.Message
	err      error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.messages = append(f.messages, msgs...)
	return f.err
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaObserver(t *testing.T) {
	writer := &fakeWriter{}
	observer := newKafkaObserver(writer, quietLogger())
	ctx := context.Background()

	observer.OnEvent(ctx, IdentificationEvent{EventType: IdentificationStarted, SessionID: "s1"})
	observer.OnEvent(ctx, IdentificationEvent{EventType: RetryScheduled, SessionID: "s1"})
	observer.OnEvent(ctx, IdentificationEvent{
		EventType:      IdentificationSucceeded,
		SessionID:      "s1",
		ScientificName: "Ficus lyrata",
		Image:          &models.ImageBlob{Data: []byte{1}},
	})

	if len(writer.messages) != 1 {
		t.Fatalf("Expected only the terminal event to be published, got %d", len(writer.messages))
	}
	msg := writer.messages[0]
	if string(msg.Key) != "s1" {
		t.Errorf("Expected key s1, got %s", msg.Key)
	}
	if !strings.Contains(string(msg.Value), `"scientific_name":"Ficus lyrata"`) {
		t.Errorf("Unexpected payload %s", msg.Value)
	}
	if strings.Contains(string(msg.Value), "Image") {
		t.Errorf("Expected image bytes to be left out, got %s", msg.Value)
	}

	writer.err = errors.New("broker down")
	observer.OnEvent(ctx, IdentificationEvent{EventType: PlantSaved, SessionID: "s1"})
	if len(writer.messages) != 2 {
		t.Errorf("Expected write attempt for plant_saved, got %d messages", len(writer.messages))
	}
}

type fakeArchive struct {
	keys []string
	err  error
}

func (f *fakeArchive) Archive(_ context.Context, key string, _ *models.ImageBlob) (string, error) {
	f.keys = append(f.keys, key)
	return "mem://" + key, f.err
}

func (f *fakeArchive) Name() string { return "fake" }

func TestArchiveObserver(t *testing.T) {
	archive := &fakeArchive{}
	observer := NewArchiveObserver(archive, quietLogger())
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)
	image := &models.ImageBlob{Filename: "leaf.jpg", Data: []byte{1, 2}}

	observer.OnEvent(ctx, IdentificationEvent{EventType: IdentificationFailed, SessionID: "s1", Image: image})
	observer.OnEvent(ctx, IdentificationEvent{EventType: IdentificationSucceeded, SessionID: "s1"})
	observer.OnEvent(ctx, IdentificationEvent{EventType: IdentificationSucceeded, SessionID: "s1", Timestamp: at, Image: image})

	if len(archive.keys) != 1 {
		t.Fatalf("Expected one upload, got %d", len(archive.keys))
	}
	if archive.keys[0] != "plants/s1/20240501_123000_leaf.jpg" {
		t.Errorf("Unexpected key %s", archive.keys[0])
	}
	if observer.GetObserverName() != "archive_observer_fake" {
		t.Errorf("Unexpected observer name %s", observer.GetObserverName())
	}
}
