package service

import (
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "go-plant-identifier/internal/errors"
	"go-plant-identifier/pkg/models"
)

// Phase is where a session is in the identification flow
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseSubmitting Phase = "submitting"
	PhaseRetrying   Phase = "retrying"
	PhaseSucceeded  Phase = "succeeded"
	PhaseFailed     Phase = "failed"
)

// SessionState is a point-in-time copy of a session
type SessionState struct {
	ID          string               `json:"id"`
	Phase       Phase                `json:"phase"`
	Loading     bool                 `json:"loading"`
	Error       string               `json:"error,omitempty"`
	RetryCount  int                  `json:"retry_count"`
	Result      *models.PlantDetails `json:"result,omitempty"`
	Expanded    bool                 `json:"expanded"`
	UsingCamera bool                 `json:"using_camera"`
	HasImage    bool                 `json:"has_image"`
	ImageName   string               `json:"image_name,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
}

// Session holds the state one user interacts with. All fields are guarded
// by mu; the identification call itself runs without holding it.
type Session struct {
	mu          sync.Mutex
	id          string
	createdAt   time.Time
	image       *models.ImageBlob
	phase       Phase
	loading     bool
	errMsg      string
	retryCount  int
	result      *models.PlantDetails
	expanded    bool
	usingCamera bool
	inFlight    bool
}

func newSession() *Session {
	return &Session{
		id:        uuid.NewString(),
		createdAt: time.Now().UTC(),
		phase:     PhaseIdle,
	}
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// Snapshot returns a copy of the session state
func (s *Session) Snapshot() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() SessionState {
	state := SessionState{
		ID:          s.id,
		Phase:       s.phase,
		Loading:     s.loading,
		Error:       s.errMsg,
		RetryCount:  s.retryCount,
		Result:      s.result,
		Expanded:    s.expanded,
		UsingCamera: s.usingCamera,
		HasImage:    !s.image.Empty(),
		CreatedAt:   s.createdAt,
	}
	if s.image != nil {
		state.ImageName = s.image.Filename
	}
	return state
}

// SessionManager keeps sessions by id
type SessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionManager creates an empty session manager
func NewSessionManager() *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*Session),
	}
}

// Create registers a new idle session
func (m *SessionManager) Create() *Session {
	session := newSession()
	m.mu.Lock()
	m.sessions[session.id] = session
	m.mu.Unlock()
	return session
}

// Get returns the session or a not found error
func (m *SessionManager) Get(id string) (*Session, error) {
	m.mu.RLock()
	session, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, apperrors.NewNotFoundError("session not found", nil)
	}
	return session, nil
}

// Delete forgets a session
func (m *SessionManager) Delete(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Len returns the number of live sessions
func (m *SessionManager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
