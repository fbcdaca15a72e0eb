package models

// CapturedImageName is the filename given to camera captures
const CapturedImageName = "captured_image.jpg"

// ImageBlob is a selected image ready to be submitted
type ImageBlob struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Empty reports whether the blob carries no image bytes
func (b *ImageBlob) Empty() bool {
	return b == nil || len(b.Data) == 0
}

// Size returns the number of image bytes
func (b *ImageBlob) Size() int {
	if b == nil {
		return 0
	}
	return len(b.Data)
}
