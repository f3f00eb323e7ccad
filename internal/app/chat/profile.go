package chat

import (
	"encoding/base64"
	"errors"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// MaxImageDataLength caps the length, in characters, of an encoded profile picture.
const MaxImageDataLength = 4_000_000

// errBadImage is returned by ValidateImage for any rejected picture.
var errBadImage = errors.New("invalid image")

// allowedImageTypes maps the subtype of a data URL to the MIME type its bytes must sniff as.
var allowedImageTypes = map[string]string{
	"png":  "image/png",
	"jpeg": "image/jpeg",
	"jpg":  "image/jpeg",
	"gif":  "image/gif",
	"webp": "image/webp",
}

// ValidateImage accepts a base64 data URL ("data:image/png;base64,...") of an
// allowed image type, at most MaxImageDataLength characters long, whose decoded
// bytes really are of the declared type.
func ValidateImage(data string) error {
	if data == "" || len(data) > MaxImageDataLength {
		return errBadImage
	}

	rest, ok := strings.CutPrefix(data, "data:image/")
	if !ok {
		return errBadImage
	}

	subtype, encoded, ok := strings.Cut(rest, ";base64,")
	if !ok {
		return errBadImage
	}

	expected, ok := allowedImageTypes[subtype]
	if !ok || encoded == "" {
		return errBadImage
	}

	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return errBadImage
	}

	if !mimetype.Detect(raw).Is(expected) {
		return errBadImage
	}

	return nil
}

// ProfileStore keeps the latest profile picture per identity. Last write wins;
// no history is kept. The Coordinator guards it.
type ProfileStore struct {
	images map[string]string
}

// NewProfileStore returns an empty store.
func NewProfileStore() *ProfileStore {
	return &ProfileStore{images: make(map[string]string)}
}

// Get returns identity's current picture.
func (s *ProfileStore) Get(identity string) (string, bool) {
	img, ok := s.images[identity]
	return img, ok
}

// Set replaces identity's picture.
func (s *ProfileStore) Set(identity, imageData string) {
	s.images[identity] = imageData
}
