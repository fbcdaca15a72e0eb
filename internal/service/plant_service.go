package service

import (
	"context"
	"time"

	"github.com/samber/lo"
	"github.com/sirupsen/logrus"

	apperrors "go-plant-identifier/internal/errors"
	"go-plant-identifier/internal/logger"
	"go-plant-identifier/internal/observer"
	"go-plant-identifier/internal/plantid"
	"go-plant-identifier/internal/repository"
	"go-plant-identifier/internal/strategy"
	"go-plant-identifier/pkg/models"
	"go-plant-identifier/pkg/validation"
)

const (
	// MsgSelectFile is shown when identification is requested without an image
	MsgSelectFile = "Please select a file to upload."
	// MsgIdentifyFailed is shown once every attempt has failed
	MsgIdentifyFailed = "Failed to identify the plant. Please try again."
)

// PlantService drives identification sessions and the saved plants list
type PlantService interface {
	// Session lifecycle
	CreateSession() SessionState
	GetSession(id string) (SessionState, error)

	// Input acquisition
	SelectImage(ctx context.Context, id string, image *models.ImageBlob) (SessionState, error)
	SelectImageURL(ctx context.Context, id string, imageURL string) (SessionState, error)
	ToggleCamera(id string) (SessionState, error)
	Capture(ctx context.Context, id string, dataURL string) (SessionState, error)

	// Identification and presentation
	Identify(ctx context.Context, id string) (SessionState, error)
	ToggleExpanded(id string) (SessionState, error)

	// Saved plants
	Save(ctx context.Context, id string) (SessionState, int, error)
	ListSaved(ctx context.Context) ([]models.SavedPlant, error)
	SearchSaved(ctx context.Context, query string) ([]models.SearchMatch, error)
}

// Dependencies wires a PlantService
type Dependencies struct {
	Identifier  plantid.Identifier
	Retry       strategy.RetryStrategy
	Images      repository.ImageRepository
	Validator   *validation.ImageValidator
	SavedPlants repository.SavedPlantRepository
	Events      observer.Subject
	Sessions    *SessionManager
	Search      SearchOptions
}

// plantService implements PlantService
type plantService struct {
	identifier plantid.Identifier
	retry      strategy.RetryStrategy
	images     repository.ImageRepository
	validator  *validation.ImageValidator
	saved      repository.SavedPlantRepository
	events     observer.Subject
	sessions   *SessionManager
	search     SearchOptions
}

// NewPlantService creates a new plant service. Retry defaults to two
// immediate retries.
func NewPlantService(deps Dependencies) PlantService {
	if deps.Retry == nil {
		deps.Retry = strategy.NewImmediateRetry(2)
	}
	if deps.Validator == nil {
		deps.Validator = validation.NewImageValidator()
	}
	if deps.Sessions == nil {
		deps.Sessions = NewSessionManager()
	}
	if deps.Search.Threshold <= 0 {
		deps.Search = DefaultSearchOptions()
	}
	return &plantService{
		identifier: deps.Identifier,
		retry:      deps.Retry,
		images:     deps.Images,
		validator:  deps.Validator,
		saved:      deps.SavedPlants,
		events:     deps.Events,
		sessions:   deps.Sessions,
		search:     deps.Search,
	}
}

// CreateSession starts a new idle session
func (s *plantService) CreateSession() SessionState {
	return s.sessions.Create().Snapshot()
}

// GetSession returns the current state of a session
func (s *plantService) GetSession(id string) (SessionState, error) {
	session, err := s.sessions.Get(id)
	if err != nil {
		return SessionState{}, err
	}
	return session.Snapshot(), nil
}

// SelectImage validates and selects an uploaded image and clears any error
func (s *plantService) SelectImage(ctx context.Context, id string, image *models.ImageBlob) (SessionState, error) {
	session, err := s.sessions.Get(id)
	if err != nil {
		return SessionState{}, err
	}
	if _, err := s.validator.Validate(image); err != nil {
		return session.Snapshot(), err
	}
	return s.selectImage(ctx, session, image, false)
}

// SelectImageURL downloads an image and selects it
func (s *plantService) SelectImageURL(ctx context.Context, id string, imageURL string) (SessionState, error) {
	session, err := s.sessions.Get(id)
	if err != nil {
		return SessionState{}, err
	}
	if s.images == nil {
		return session.Snapshot(), apperrors.NewInternalError("image downloads are not configured", nil)
	}

	image, err := s.images.FetchImage(ctx, imageURL)
	if err != nil {
		logger.WithError(err).WithFields(logrus.Fields{
			"session_id": id,
			"image_url":  imageURL,
		}).Warn("Failed to fetch image by URL")
		return session.Snapshot(), err
	}
	return s.selectImage(ctx, session, image, false)
}

// ToggleCamera flips camera mode
func (s *plantService) ToggleCamera(id string) (SessionState, error) {
	session, err := s.sessions.Get(id)
	if err != nil {
		return SessionState{}, err
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	session.usingCamera = !session.usingCamera
	return session.snapshotLocked(), nil
}

// Capture selects a camera screenshot and leaves camera mode
func (s *plantService) Capture(ctx context.Context, id string, dataURL string) (SessionState, error) {
	session, err := s.sessions.Get(id)
	if err != nil {
		return SessionState{}, err
	}

	session.mu.Lock()
	usingCamera := session.usingCamera
	session.mu.Unlock()
	if !usingCamera {
		return session.Snapshot(), errCameraInactive()
	}

	image, err := DecodeDataURL(dataURL)
	if err != nil {
		return session.Snapshot(), apperrors.NewValidationError("could not decode captured image", err)
	}
	if _, err := s.validator.Validate(image); err != nil {
		return session.Snapshot(), err
	}
	return s.selectImage(ctx, session, image, true)
}

// selectImage replaces the session image. A capture is only applied while
// the session is still in camera mode.
func (s *plantService) selectImage(ctx context.Context, session *Session, image *models.ImageBlob, captured bool) (SessionState, error) {
	session.mu.Lock()
	if captured && !session.usingCamera {
		state := session.snapshotLocked()
		session.mu.Unlock()
		return state, errCameraInactive()
	}
	session.image = image
	session.errMsg = ""
	if captured {
		session.usingCamera = false
	}
	state := session.snapshotLocked()
	session.mu.Unlock()

	s.publish(ctx, observer.IdentificationEvent{
		EventType: observer.ImageSelected,
		SessionID: state.ID,
		ImageName: image.Filename,
		Success:   true,
		Metadata: map[string]interface{}{
			"content_type": image.ContentType,
			"bytes":        image.Size(),
			"captured":     captured,
		},
	})
	return state, nil
}

func errCameraInactive() error {
	return apperrors.NewValidationError("camera is not active", nil)
}

// Identify runs the whole identification flow for the selected image. The
// returned state is always consistent; the error tells the caller how the
// flow ended.
func (s *plantService) Identify(ctx context.Context, id string) (SessionState, error) {
	session, err := s.sessions.Get(id)
	if err != nil {
		return SessionState{}, err
	}

	session.mu.Lock()
	if session.inFlight {
		state := session.snapshotLocked()
		session.mu.Unlock()
		return state, apperrors.NewBusyError("an identification is already in progress")
	}
	if session.image.Empty() {
		session.errMsg = MsgSelectFile
		state := session.snapshotLocked()
		session.mu.Unlock()
		return state, apperrors.NewMissingInputError(MsgSelectFile)
	}
	image := session.image
	session.inFlight = true
	session.loading = true
	session.errMsg = ""
	session.retryCount = 0
	session.phase = PhaseSubmitting
	session.mu.Unlock()

	s.publish(ctx, observer.IdentificationEvent{
		EventType: observer.IdentificationStarted,
		SessionID: id,
		ImageName: image.Filename,
	})

	start := time.Now()
	details, attempts, callErr := s.attempt(ctx, session, image)
	elapsed := time.Since(start)

	session.mu.Lock()
	if callErr == nil {
		session.result = details
		session.errMsg = ""
		session.phase = PhaseSucceeded
	} else {
		session.result = nil
		session.errMsg = MsgIdentifyFailed
		session.phase = PhaseFailed
	}
	session.retryCount = 0
	session.loading = false
	session.inFlight = false
	state := session.snapshotLocked()
	session.mu.Unlock()

	if callErr != nil {
		logger.WithError(callErr).WithFields(logrus.Fields{
			"session_id": id,
			"attempts":   attempts,
			"strategy":   s.retry.GetStrategyName(),
		}).Error("Failed to identify the plant")
		s.publish(ctx, observer.IdentificationEvent{
			EventType:      observer.IdentificationFailed,
			SessionID:      id,
			ImageName:      image.Filename,
			Attempt:        attempts,
			ProcessingTime: elapsed,
			ErrorMessage:   callErr.Error(),
		})
		return state, apperrors.NewRequestError(MsgIdentifyFailed, callErr)
	}

	s.publish(ctx, observer.IdentificationEvent{
		EventType:      observer.IdentificationSucceeded,
		SessionID:      id,
		ImageName:      image.Filename,
		Attempt:        attempts,
		ProcessingTime: elapsed,
		Success:        true,
		ScientificName: details.Scientific(),
		Image:          image,
	})
	return state, nil
}

// attempt issues identification calls until one succeeds or the retry
// strategy gives up. It returns the number of calls made.
func (s *plantService) attempt(ctx context.Context, session *Session, image *models.ImageBlob) (*models.PlantDetails, int, error) {
	for attempt := 0; ; attempt++ {
		details, err := s.identifier.Identify(ctx, plantid.Request{Image: image})
		if err == nil {
			return details, attempt + 1, nil
		}
		if ctx.Err() != nil {
			return nil, attempt + 1, err
		}
		if !s.retry.ShouldRetry(attempt, err) {
			return nil, attempt + 1, err
		}

		session.mu.Lock()
		session.retryCount++
		session.phase = PhaseRetrying
		session.mu.Unlock()

		s.publish(ctx, observer.IdentificationEvent{
			EventType:    observer.RetryScheduled,
			SessionID:    session.id,
			ImageName:    image.Filename,
			Attempt:      attempt + 1,
			ErrorMessage: err.Error(),
		})

		if delay := s.retry.Delay(attempt); delay > 0 {
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, attempt + 1, ctx.Err()
			case <-timer.C:
			}
		}

		session.mu.Lock()
		session.phase = PhaseSubmitting
		session.mu.Unlock()
	}
}

// ToggleExpanded flips the expanded details flag
func (s *plantService) ToggleExpanded(id string) (SessionState, error) {
	session, err := s.sessions.Get(id)
	if err != nil {
		return SessionState{}, err
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	session.expanded = !session.expanded
	return session.snapshotLocked(), nil
}

// Save appends the current result to the saved plants list. It returns the
// new list length.
func (s *plantService) Save(ctx context.Context, id string) (SessionState, int, error) {
	session, err := s.sessions.Get(id)
	if err != nil {
		return SessionState{}, 0, err
	}
	state := session.Snapshot()
	if state.Result == nil {
		return state, 0, apperrors.NewValidationError("there is no identification result to save", nil)
	}

	count, err := s.saved.Append(ctx, state.Result)
	if err != nil {
		logger.WithError(err).WithField("session_id", id).Error("Failed to save plant")
		return state, 0, apperrors.NewStorageError("failed to save plant", err)
	}

	s.publish(ctx, observer.IdentificationEvent{
		EventType:      observer.PlantSaved,
		SessionID:      id,
		Success:        true,
		ScientificName: state.Result.Scientific(),
		Metadata:       map[string]interface{}{"saved_count": count},
	})
	return state, count, nil
}

// ListSaved returns every saved plant in save order
func (s *plantService) ListSaved(ctx context.Context) ([]models.SavedPlant, error) {
	plants, err := s.saved.List(ctx)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to read saved plants", err)
	}
	return lo.Map(plants, func(details *models.PlantDetails, i int) models.SavedPlant {
		return models.SavedPlant{Index: i, Details: details}
	}), nil
}

// SearchSaved ranks saved plants by how well one of their names matches
// the query
func (s *plantService) SearchSaved(ctx context.Context, query string) ([]models.SearchMatch, error) {
	plants, err := s.ListSaved(ctx)
	if err != nil {
		return nil, err
	}
	return Search(plants, query, s.search)
}

func (s *plantService) publish(ctx context.Context, event observer.IdentificationEvent) {
	if s.events == nil {
		return
	}
	s.events.NotifyObservers(ctx, event)
}
