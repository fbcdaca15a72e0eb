package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go-plant-identifier/internal/config"
	apperrors "go-plant-identifier/internal/errors"
	"go-plant-identifier/internal/logger"
	"go-plant-identifier/internal/observer"
	"go-plant-identifier/internal/presenter"
	"go-plant-identifier/internal/service"
	"go-plant-identifier/pkg/models"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// SessionResponse carries a session snapshot and the view derived from it
type SessionResponse struct {
	Session    service.SessionState `json:"session"`
	View       presenter.View       `json:"view"`
	SavedCount int                  `json:"saved_count,omitempty"`
}

// SessionErrorResponse is returned when an operation on a session fails.
// The session reflects the state after the failure.
type SessionErrorResponse struct {
	models.ErrorResponse
	Session *SessionResponse `json:"session,omitempty"`
}

type handler struct {
	service service.PlantService
	metrics *observer.MetricsObserver
	cfg     *config.Config
}

func NewHandler(svc service.PlantService, metrics *observer.MetricsObserver, cfg *config.Config) http.Handler {
	r := gin.Default()

	// Add middleware
	r.Use(
		requestSizeLimiter(cfg.MaxRequestBodySize),
		errorHandler(),
	)

	h := &handler{service: svc, metrics: metrics, cfg: cfg}

	// Configure routes
	r.GET("/health", healthCheck)
	r.GET("/metrics", h.getMetrics)

	sessions := r.Group("/sessions")
	sessions.POST("", h.createSession)
	sessions.GET("/:id", h.getSession)
	sessions.PUT("/:id/image", h.uploadImage)
	sessions.POST("/:id/image-url", h.selectImageURL)
	sessions.POST("/:id/camera", h.toggleCamera)
	sessions.POST("/:id/capture", h.capture)
	sessions.POST("/:id/identify", h.identify)
	sessions.POST("/:id/expanded", h.toggleExpanded)
	sessions.POST("/:id/save", h.save)

	r.GET("/plants", h.listPlants)
	r.GET("/plants/search", h.searchPlants)

	return r
}

func (h *handler) createSession(c *gin.Context) {
	state := h.service.CreateSession()
	logger.WithFields(logrus.Fields{
		"session_id": state.ID,
		"ip":         c.ClientIP(),
	}).Debug("Session created")
	c.JSON(http.StatusCreated, sessionResponse(state))
}

func (h *handler) getSession(c *gin.Context) {
	state, err := h.service.GetSession(c.Param("id"))
	if err != nil {
		respondError(c, apperrors.GetStatusCode(err), "failed to load session", err)
		return
	}
	c.JSON(http.StatusOK, sessionResponse(state))
}

func (h *handler) uploadImage(c *gin.Context) {
	fileHeader, err := c.FormFile("image")
	if err != nil {
		respondError(c, http.StatusBadRequest, "multipart field \"image\" is required",
			apperrors.NewValidationError("missing image upload", err))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respondError(c, http.StatusBadRequest, "could not read upload", err)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.cfg.MaxRequestBodySize+1))
	if err != nil {
		respondError(c, http.StatusBadRequest, "could not read upload", err)
		return
	}

	blob := &models.ImageBlob{
		Filename:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		Data:        data,
	}
	state, err := h.service.SelectImage(c.Request.Context(), c.Param("id"), blob)
	h.respondSession(c, state, err, "invalid image")
}

func (h *handler) selectImageURL(c *gin.Context) {
	var req models.ImageURLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.WithError(err).WithFields(logrus.Fields{
			"ip": c.ClientIP(),
		}).Error("Invalid request format")
		respondError(c, http.StatusBadRequest, "invalid request format", err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.cfg.RequestTimeout)
	defer cancel()

	state, err := h.service.SelectImageURL(ctx, c.Param("id"), req.URL)
	h.respondSession(c, state, err, "failed to fetch image")
}

func (h *handler) toggleCamera(c *gin.Context) {
	state, err := h.service.ToggleCamera(c.Param("id"))
	h.respondSession(c, state, err, "failed to toggle camera")
}

func (h *handler) capture(c *gin.Context) {
	var req models.CaptureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request format", err)
		return
	}
	state, err := h.service.Capture(c.Request.Context(), c.Param("id"), req.DataURL)
	h.respondSession(c, state, err, "failed to capture image")
}

func (h *handler) identify(c *gin.Context) {
	startTime := time.Now()
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.cfg.IdentifyDeadline())
	defer cancel()

	// Log request start
	logger.WithFields(logrus.Fields{
		"method":     c.Request.Method,
		"path":       c.Request.URL.Path,
		"user_agent": c.Request.UserAgent(),
		"ip":         c.ClientIP(),
	}).Info("Processing plant identification request")

	state, err := h.service.Identify(ctx, c.Param("id"))
	if err == nil {
		logger.WithFields(logrus.Fields{
			"session_id":         state.ID,
			"processing_time_ms": time.Since(startTime).Milliseconds(),
			"scientific_name":    state.Result.Scientific(),
		}).Info("Plant identification completed successfully")
	}
	h.respondSession(c, state, err, "identification failed")
}

func (h *handler) toggleExpanded(c *gin.Context) {
	state, err := h.service.ToggleExpanded(c.Param("id"))
	h.respondSession(c, state, err, "failed to toggle details")
}

func (h *handler) save(c *gin.Context) {
	state, count, err := h.service.Save(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondSession(c, state, err, "failed to save plant")
		return
	}
	resp := sessionResponse(state)
	resp.SavedCount = count
	c.JSON(http.StatusOK, resp)
}

func (h *handler) listPlants(c *gin.Context) {
	plants, err := h.service.ListSaved(c.Request.Context())
	if err != nil {
		respondError(c, apperrors.GetStatusCode(err), "failed to list saved plants", err)
		return
	}
	c.JSON(http.StatusOK, models.SavedPlantsResponse{Count: len(plants), Plants: plants})
}

func (h *handler) searchPlants(c *gin.Context) {
	query := c.Query("q")
	matches, err := h.service.SearchSaved(c.Request.Context(), query)
	if err != nil {
		respondError(c, apperrors.GetStatusCode(err), "failed to search saved plants", err)
		return
	}
	c.JSON(http.StatusOK, models.SearchResponse{Query: query, Count: len(matches), Matches: matches})
}

func (h *handler) getMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.metrics.GetMetrics())
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "available",
		"version": "1.0.0",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func sessionResponse(state service.SessionState) SessionResponse {
	return SessionResponse{Session: state, View: presenter.Build(state)}
}

// respondSession writes the session on success. On failure the session is
// attached to the error body unless the session does not exist.
func (h *handler) respondSession(c *gin.Context, state service.SessionState, err error, message string) {
	if err == nil {
		c.JSON(http.StatusOK, sessionResponse(state))
		return
	}
	code := determineStatusCode(err)
	body := errorBody(code, message, err)
	if state.ID != "" {
		resp := sessionResponse(state)
		body.Session = &resp
	}
	logRequestError(c, code, message, err)
	c.AbortWithStatusJSON(code, body)
}

// Middleware and helper functions
func requestSizeLimiter(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

func errorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 && !c.Writer.Written() {
			err := c.Errors.Last()
			respondError(c, determineStatusCode(err.Err), "request processing failed", err.Err)
		}
	}
}

func determineStatusCode(err error) int {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, code int, message string, err error) {
	logRequestError(c, code, message, err)
	c.AbortWithStatusJSON(code, errorBody(code, message, err))
}

// errorBody exposes AppError messages as they are written for users; other
// errors are appended to the generic message.
func errorBody(code int, message string, err error) SessionErrorResponse {
	body := SessionErrorResponse{
		ErrorResponse: models.ErrorResponse{
			Error: http.StatusText(code),
		},
	}
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		body.Type = string(appErr.Type)
		body.Message = appErr.Message
		return body
	}
	if err != nil {
		body.Message = fmt.Sprintf("%s: %v", message, err)
	} else {
		body.Message = message
	}
	return body
}

func logRequestError(c *gin.Context, code int, message string, err error) {
	entry := logger.WithFields(logrus.Fields{
		"status_code": code,
		"message":     message,
		"path":        c.Request.URL.Path,
		"method":      c.Request.Method,
		"ip":          c.ClientIP(),
	})
	if err != nil {
		entry = entry.WithError(err)
	}
	if code >= http.StatusInternalServerError {
		entry.Error("Request failed")
		return
	}
	entry.Warn("Request rejected")
}
