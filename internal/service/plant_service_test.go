package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	apperrors "go-plant-identifier/internal/errors"
	"go-plant-identifier/internal/observer"
	"go-plant-identifier/internal/plantid"
	"go-plant-identifier/internal/repository"
	"go-plant-identifier/pkg/models"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func leafImage(t *testing.T) *models.ImageBlob {
	return &models.ImageBlob{Filename: "leaf.png", ContentType: "image/png", Data: pngBytes(t)}
}

func details(t *testing.T, doc string) *models.PlantDetails {
	t.Helper()
	var d models.PlantDetails
	if err := json.Unmarshal([]byte(doc), &d); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return &d
}

// scriptedIdentifier fails the first `failures` calls and then succeeds
type scriptedIdentifier struct {
	failures int
	result   *models.PlantDetails
	calls    atomic.Int32
	onCall   func(call int)
}

func (s *scriptedIdentifier) Identify(ctx context.Context, req plantid.Request) (*models.PlantDetails, error) {
	call := int(s.calls.Add(1)) - 1
	if s.onCall != nil {
		s.onCall(call)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Image.Empty() {
		return nil, errors.New("no image in request")
	}
	if call < s.failures {
		return nil, apperrors.NewRequestError("identification request failed", errors.New("status code 500"))
	}
	return s.result, nil
}

type recordingSubject struct {
	mu     sync.Mutex
	events []observer.IdentificationEvent
}

func (r *recordingSubject) Subscribe(observer.Observer)   {}
func (r *recordingSubject) Unsubscribe(observer.Observer) {}
func (r *recordingSubject) NotifyObservers(_ context.Context, event observer.IdentificationEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingSubject) types() []observer.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]observer.EventType, 0, len(r.events))
	for _, e := range r.events {
		types = append(types, e.EventType)
	}
	return types
}

func newTestService(identifier plantid.Identifier, events observer.Subject) PlantService {
	return NewPlantService(Dependencies{
		Identifier:  identifier,
		SavedPlants: repository.NewSavedPlantRepository(repository.NewMemoryStore()),
		Events:      events,
	})
}

func sessionWithImage(t *testing.T, svc PlantService) string {
	t.Helper()
	id := svc.CreateSession().ID
	if _, err := svc.SelectImage(context.Background(), id, leafImage(t)); err != nil {
		t.Fatalf("SelectImage: %v", err)
	}
	return id
}

func TestIdentify_SucceedsAfterFailures(t *testing.T) {
	for failures := 0; failures <= 2; failures++ {
		identifier := &scriptedIdentifier{
			failures: failures,
			result:   details(t, `{"scientific_name":"Ficus lyrata"}`),
		}
		svc := newTestService(identifier, nil)
		id := sessionWithImage(t, svc)

		state, err := svc.Identify(context.Background(), id)
		if err != nil {
			t.Fatalf("failures=%d: Identify: %v", failures, err)
		}
		if got := int(identifier.calls.Load()); got != failures+1 {
			t.Errorf("failures=%d: expected %d calls, got %d", failures, failures+1, got)
		}
		if state.Phase != PhaseSucceeded || state.Loading || state.RetryCount != 0 || state.Error != "" {
			t.Errorf("failures=%d: unexpected final state %+v", failures, state)
		}
		if state.Result.Scientific() != "Ficus lyrata" {
			t.Errorf("failures=%d: expected Ficus lyrata result, got %v", failures, state.Result)
		}
	}
}

func TestIdentify_RetryCounterDuringFlow(t *testing.T) {
	var svc PlantService
	var id string
	var seen []int
	identifier := &scriptedIdentifier{failures: 2, result: details(t, `{}`)}
	identifier.onCall = func(int) {
		state, _ := svc.GetSession(id)
		if !state.Loading {
			t.Error("Expected loading while a call is in flight")
		}
		seen = append(seen, state.RetryCount)
	}
	svc = newTestService(identifier, nil)
	id = sessionWithImage(t, svc)

	if _, err := svc.Identify(context.Background(), id); err != nil {
		t.Fatalf("Identify: %v", err)
	}
	want := []int{0, 1, 2}
	if len(seen) != len(want) {
		t.Fatalf("Expected %d calls, got %v", len(want), seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("Expected retry count %d on call %d, got %d", want[i], i, seen[i])
		}
	}
}

func TestIdentify_FailsAfterThreeAttempts(t *testing.T) {
	identifier := &scriptedIdentifier{failures: 1, result: details(t, `{"scientific_name":"Aloe vera"}`)}
	events := &recordingSubject{}
	svc := newTestService(identifier, events)
	id := sessionWithImage(t, svc)

	if _, err := svc.Identify(context.Background(), id); err != nil {
		t.Fatalf("first Identify: %v", err)
	}

	identifier.failures = 100
	identifier.calls.Store(0)
	state, err := svc.Identify(context.Background(), id)
	if !apperrors.IsType(err, apperrors.ErrorTypeRequest) {
		t.Fatalf("Expected request error, got %v", err)
	}
	if got := identifier.calls.Load(); got != 3 {
		t.Errorf("Expected 3 calls, got %d", got)
	}
	if state.Error != MsgIdentifyFailed {
		t.Errorf("Expected %q, got %q", MsgIdentifyFailed, state.Error)
	}
	if state.Result != nil {
		t.Error("Expected previous result to be cleared")
	}
	if state.Loading || state.RetryCount != 0 || state.Phase != PhaseFailed {
		t.Errorf("Unexpected final state %+v", state)
	}

	types := events.types()
	last := types[len(types)-1]
	if last != observer.IdentificationFailed {
		t.Errorf("Expected last event identification_failed, got %s", last)
	}
	retries := 0
	for _, eventType := range types {
		if eventType == observer.RetryScheduled {
			retries++
		}
	}
	if retries != 3 {
		t.Errorf("Expected 3 retry events across both submissions, got %d", retries)
	}
}

func TestIdentify_MissingImage(t *testing.T) {
	identifier := &scriptedIdentifier{}
	svc := newTestService(identifier, nil)
	id := svc.CreateSession().ID

	state, err := svc.Identify(context.Background(), id)
	if !apperrors.IsType(err, apperrors.ErrorTypeMissingInput) {
		t.Fatalf("Expected missing input error, got %v", err)
	}
	if state.Error != MsgSelectFile {
		t.Errorf("Expected %q, got %q", MsgSelectFile, state.Error)
	}
	if state.Loading {
		t.Error("Expected loading to stay false")
	}
	if identifier.calls.Load() != 0 {
		t.Error("Expected no identification call")
	}

	state, err = svc.SelectImage(context.Background(), id, leafImage(t))
	if err != nil {
		t.Fatalf("SelectImage: %v", err)
	}
	if state.Error != "" || !state.HasImage || state.ImageName != "leaf.png" {
		t.Errorf("Expected selection to clear the error, got %+v", state)
	}
}

type blockingIdentifier struct {
	entered chan struct{}
	release chan struct{}
	calls   atomic.Int32
}

func (b *blockingIdentifier) Identify(ctx context.Context, _ plantid.Request) (*models.PlantDetails, error) {
	b.calls.Add(1)
	close(b.entered)
	<-b.release
	return &models.PlantDetails{}, nil
}

func TestIdentify_BusyWhileInFlight(t *testing.T) {
	identifier := &blockingIdentifier{entered: make(chan struct{}), release: make(chan struct{})}
	svc := newTestService(identifier, nil)
	id := sessionWithImage(t, svc)

	done := make(chan error, 1)
	go func() {
		_, err := svc.Identify(context.Background(), id)
		done <- err
	}()
	<-identifier.entered

	state, err := svc.Identify(context.Background(), id)
	if !apperrors.IsType(err, apperrors.ErrorTypeBusy) {
		t.Fatalf("Expected busy error, got %v", err)
	}
	if !state.Loading || state.Phase != PhaseSubmitting {
		t.Errorf("Expected in-flight state to be untouched, got %+v", state)
	}

	close(identifier.release)
	if err := <-done; err != nil {
		t.Fatalf("first Identify: %v", err)
	}
	if identifier.calls.Load() != 1 {
		t.Errorf("Expected exactly one call, got %d", identifier.calls.Load())
	}
}

func TestIdentify_CancelledContextFails(t *testing.T) {
	identifier := &scriptedIdentifier{result: &models.PlantDetails{}}
	svc := newTestService(identifier, nil)
	id := sessionWithImage(t, svc)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	state, err := svc.Identify(ctx, id)
	if !apperrors.IsType(err, apperrors.ErrorTypeRequest) {
		t.Fatalf("Expected request error, got %v", err)
	}
	if identifier.calls.Load() != 1 {
		t.Errorf("Expected no retries after cancellation, got %d calls", identifier.calls.Load())
	}
	if state.Loading || state.Error != MsgIdentifyFailed {
		t.Errorf("Unexpected state %+v", state)
	}
}

func TestIdentify_AgainstHTTPService(t *testing.T) {
	tests := []struct {
		name      string
		responses []int
		wantCalls int32
		wantErr   bool
	}{
		{"three server errors", []int{500, 500, 500}, 3, true},
		{"recovers on third call", []int{503, 500, 200}, 3, false},
		{"client error retried", []int{401, 200}, 2, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := calls.Add(1)
				status := tt.responses[n-1]
				w.WriteHeader(status)
				if status == http.StatusOK {
					w.Write([]byte(`{"suggestions":[{"plant_details":{"scientific_name":"Ficus lyrata","common_names":["Fiddle-leaf fig"]}}]}`))
				}
			}))
			defer server.Close()

			client, err := plantid.New(server.URL, "key", "leaf", time.Second)
			if err != nil {
				t.Fatalf("plantid.New: %v", err)
			}
			svc := newTestService(client, nil)
			id := sessionWithImage(t, svc)

			state, err := svc.Identify(context.Background(), id)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Identify error = %v, wantErr %v", err, tt.wantErr)
			}
			if calls.Load() != tt.wantCalls {
				t.Errorf("Expected %d calls, got %d", tt.wantCalls, calls.Load())
			}
			if tt.wantErr {
				if state.Result != nil || state.Error != MsgIdentifyFailed {
					t.Errorf("Unexpected failed state %+v", state)
				}
				return
			}
			if state.Result.CommonNamesText() != "Fiddle-leaf fig" || state.Result.Scientific() != "Ficus lyrata" {
				t.Errorf("Unexpected result %+v", state.Result)
			}
		})
	}
}

func TestCapture(t *testing.T) {
	svc := newTestService(&scriptedIdentifier{}, nil)
	id := svc.CreateSession().ID
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes(t))

	if _, err := svc.Capture(context.Background(), id, dataURL); !apperrors.IsType(err, apperrors.ErrorTypeValidation) {
		t.Fatalf("Expected capture outside camera mode to fail, got %v", err)
	}

	state, err := svc.ToggleCamera(id)
	if err != nil || !state.UsingCamera {
		t.Fatalf("Expected camera mode, got %+v (%v)", state, err)
	}

	if _, err := svc.Capture(context.Background(), id, "data:image/png;base64,!!!"); !apperrors.IsType(err, apperrors.ErrorTypeValidation) {
		t.Errorf("Expected undecodable capture to fail, got %v", err)
	}

	state, err = svc.Capture(context.Background(), id, dataURL)
	if err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if state.UsingCamera {
		t.Error("Expected capture to leave camera mode")
	}
	if !state.HasImage || state.ImageName != models.CapturedImageName {
		t.Errorf("Expected %s to be selected, got %+v", models.CapturedImageName, state)
	}
}

func TestCapture_CameraClosedBeforeSelect(t *testing.T) {
	svc := newTestService(&scriptedIdentifier{}, nil).(*plantService)
	id := svc.CreateSession().ID
	if _, err := svc.ToggleCamera(id); err != nil {
		t.Fatalf("ToggleCamera: %v", err)
	}
	session, err := svc.sessions.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	image, err := DecodeDataURL("data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes(t)))
	if err != nil {
		t.Fatalf("DecodeDataURL: %v", err)
	}

	// camera closed after Capture checked the mode
	if _, err := svc.ToggleCamera(id); err != nil {
		t.Fatalf("ToggleCamera: %v", err)
	}

	state, err := svc.selectImage(context.Background(), session, image, true)
	if !apperrors.IsType(err, apperrors.ErrorTypeValidation) {
		t.Fatalf("Expected validation error, got %v", err)
	}
	if state.HasImage || state.UsingCamera {
		t.Errorf("Expected capture to be discarded, got %+v", state)
	}
}

func TestIdentify_SlowObserverDoesNotDelayRetries(t *testing.T) {
	release := make(chan struct{})
	publisher := observer.NewEventPublisher(1, nil)
	publisher.Subscribe(&blockingObserver{release: release})
	defer publisher.Close()
	defer close(release)

	identifier := &scriptedIdentifier{
		failures: 2,
		result:   details(t, `{"scientific_name":"Ficus lyrata"}`),
	}
	svc := newTestService(identifier, publisher)
	id := sessionWithImage(t, svc)

	start := time.Now()
	state, err := svc.Identify(context.Background(), id)
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("Identify: %v", err)
	}
	if state.Phase != PhaseSucceeded || identifier.calls.Load() != 3 {
		t.Errorf("Expected success on third call, got phase %s after %d calls", state.Phase, identifier.calls.Load())
	}
	if elapsed > 100*time.Millisecond {
		t.Errorf("Expected observers not to delay Identify, took %s", elapsed)
	}
}

// blockingObserver holds its worker until release is closed
type blockingObserver struct {
	release chan struct{}
}

func (b *blockingObserver) OnEvent(context.Context, observer.IdentificationEvent) {
	<-b.release
}

func (b *blockingObserver) GetObserverName() string { return "blocking" }

func TestSave_AppendsWithoutDeduplication(t *testing.T) {
	identifier := &scriptedIdentifier{result: details(t, `{"scientific_name":"Ficus lyrata","common_names":["Fiddle-leaf fig"]}`)}
	events := &recordingSubject{}
	svc := newTestService(identifier, events)
	ctx := context.Background()
	id := sessionWithImage(t, svc)

	if _, _, err := svc.Save(ctx, id); !apperrors.IsType(err, apperrors.ErrorTypeValidation) {
		t.Fatalf("Expected save without result to fail, got %v", err)
	}

	if _, err := svc.Identify(ctx, id); err != nil {
		t.Fatalf("Identify: %v", err)
	}
	for want := 1; want <= 2; want++ {
		_, count, err := svc.Save(ctx, id)
		if err != nil {
			t.Fatalf("Save: %v", err)
		}
		if count != want {
			t.Errorf("Expected %d saved plants, got %d", want, count)
		}
	}

	plants, err := svc.ListSaved(ctx)
	if err != nil {
		t.Fatalf("ListSaved: %v", err)
	}
	if len(plants) != 2 || plants[1].Index != 1 {
		t.Fatalf("Expected two indexed entries, got %+v", plants)
	}
	if plants[0].Details.Scientific() != "Ficus lyrata" {
		t.Errorf("Unexpected saved record %+v", plants[0].Details)
	}

	matches, err := svc.SearchSaved(ctx, "fidle-leaf")
	if err != nil {
		t.Fatalf("SearchSaved: %v", err)
	}
	if len(matches) != 2 {
		t.Errorf("Expected both copies to match, got %d", len(matches))
	}
}

func TestToggleExpanded(t *testing.T) {
	svc := newTestService(&scriptedIdentifier{}, nil)
	id := svc.CreateSession().ID

	state, _ := svc.ToggleExpanded(id)
	if !state.Expanded {
		t.Error("Expected expanded after first toggle")
	}
	state, _ = svc.ToggleExpanded(id)
	if state.Expanded {
		t.Error("Expected collapsed after second toggle")
	}
}

func TestUnknownSession(t *testing.T) {
	svc := newTestService(&scriptedIdentifier{}, nil)
	if _, err := svc.Identify(context.Background(), "missing"); !apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
		t.Errorf("Expected not found error, got %v", err)
	}
	if _, err := svc.GetSession("missing"); !apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
		t.Errorf("Expected not found error, got %v", err)
	}
}
