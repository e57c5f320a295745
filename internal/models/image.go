package models

import (
	"encoding/base64"
	"fmt"
	"regexp"
)

var dataURIPattern = regexp.MustCompile(`^data:(image/[a-z0-9.+-]+);base64,(.+)$`)

// ImageAttachment is the decoded form of a data-URI image payload. Provider clients use it to build
// whatever wire shape their completion service expects for image content.
type ImageAttachment struct {
	MediaType string
	Base64    string
}

// ParseImageDataURI splits a base64 image data URI (e.g. "data:image/png;base64,...") into its media
// type and payload. The file picker, clipboard paste, and camera capture paths all resolve to this
// representation before a message reaches the transcript.
func ParseImageDataURI(uri string) (ImageAttachment, error) {
	m := dataURIPattern.FindStringSubmatch(uri)
	if m == nil {
		return ImageAttachment{}, fmt.Errorf("not a base64 image data URI")
	}
	return ImageAttachment{MediaType: m[1], Base64: m[2]}, nil
}

// Bytes returns the decoded image payload.
func (a ImageAttachment) Bytes() ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(a.Base64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image payload: %w", err)
	}
	return raw, nil
}
