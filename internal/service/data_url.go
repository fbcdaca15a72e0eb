package service

import (
	"encoding/base64"
	"errors"
	"strings"

	"go-plant-identifier/pkg/models"
)

var errInvalidDataURL = errors.New("invalid data URL")

// DecodeDataURL turns a base64 data URL such as a camera screenshot into the
// image blob that is submitted for identification.
func DecodeDataURL(dataURL string) (*models.ImageBlob, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(dataURL), "data:")
	if !ok {
		return nil, errInvalidDataURL
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, errInvalidDataURL
	}

	params := strings.Split(meta, ";")
	mimeType := strings.ToLower(strings.TrimSpace(params[0]))
	isBase64 := false
	for _, param := range params[1:] {
		if strings.EqualFold(strings.TrimSpace(param), "base64") {
			isBase64 = true
		}
	}
	if !isBase64 {
		return nil, errors.New("data URL must be base64 encoded")
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		// some encoders drop the padding
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return nil, errInvalidDataURL
		}
	}
	if len(data) == 0 {
		return nil, errors.New("data URL carries no data")
	}

	return &models.ImageBlob{
		Filename:    models.CapturedImageName,
		ContentType: mimeType,
		Data:        data,
	}, nil
}
