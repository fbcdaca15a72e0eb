package storage

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"go-plant-identifier/pkg/models"
)

// ImageArchive keeps a copy of images that were identified successfully
type ImageArchive interface {
	Archive(ctx context.Context, key string, blob *models.ImageBlob) (string, error)
	Name() string
}

// ArchiveKey builds the object key for an identified image
func ArchiveKey(sessionID string, at time.Time, filename string) string {
	name := strings.TrimSpace(path.Base(filename))
	if name == "" || name == "." || name == "/" {
		name = "image"
	}
	return fmt.Sprintf("plants/%s/%s_%s", sessionID, at.UTC().Format("20060102_150405"), name)
}

func contentTypeOrDefault(blob *models.ImageBlob) string {
	if blob.ContentType != "" {
		return blob.ContentType
	}
	return "application/octet-stream"
}
