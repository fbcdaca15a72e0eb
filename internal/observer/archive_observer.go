package observer

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"go-plant-identifier/internal/storage"
)

// ArchiveObserver uploads every successfully identified image
type ArchiveObserver struct {
	archive storage.ImageArchive
	timeout time.Duration
	logger  *logrus.Logger
}

// NewArchiveObserver creates an observer backed by archive
func NewArchiveObserver(archive storage.ImageArchive, logger *logrus.Logger) *ArchiveObserver {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ArchiveObserver{
		archive: archive,
		timeout: 30 * time.Second,
		logger:  logger,
	}
}

// OnEvent archives the image of a succeeded identification
func (o *ArchiveObserver) OnEvent(ctx context.Context, event IdentificationEvent) {
	if event.EventType != IdentificationSucceeded || event.Image.Empty() {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	key := storage.ArchiveKey(event.SessionID, event.Timestamp, event.Image.Filename)
	location, err := o.archive.Archive(ctx, key, event.Image)
	fields := logrus.Fields{
		"archive":    o.archive.Name(),
		"session_id": event.SessionID,
		"key":        key,
	}
	if err != nil {
		o.logger.WithError(err).WithFields(fields).Error("Failed to archive plant image")
		return
	}
	o.logger.WithFields(fields).WithField("location", location).Debug("Plant image archived")
}

// GetObserverName returns the observer name
func (o *ArchiveObserver) GetObserverName() string {
	return "archive_observer_" + o.archive.Name()
}
