// Package blob stores uploaded binary objects and hands back the URL they are
// served from.
package blob

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"friendline/utils"
)

var (
	ErrInvalidDataURI  = errors.New("blob: invalid data URI")
	ErrUnsupportedType = errors.New("blob: unsupported content type")
	ErrTooLarge        = errors.New("blob: object too large")
	ErrInvalidName     = errors.New("blob: invalid name")
)

// ImageExtensions maps accepted image content types to file extensions.
var ImageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
}

// LocalStore keeps blobs as files in one directory served under URLPrefix.
type LocalStore struct {
	dir       string
	urlPrefix string
	maxBytes  int64
}

func NewLocalStore(dir, urlPrefix string, maxBytes int64) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create upload directory: %w", err)
	}
	return &LocalStore{
		dir:       dir,
		urlPrefix: strings.TrimRight(urlPrefix, "/"),
		maxBytes:  maxBytes,
	}, nil
}

// Put writes r under a fresh name with the given extension and returns its URL.
func (s *LocalStore) Put(_ context.Context, r io.Reader, ext string) (string, error) {
	filename := uuid.New().String() + strings.ToLower(ext)
	path := filepath.Join(s.dir, filename)

	out, err := os.Create(path)
	if err != nil {
		return "", err
	}

	n, err := io.Copy(out, io.LimitReader(r, s.maxBytes+1))
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && n > s.maxBytes {
		err = ErrTooLarge
	}
	if err != nil {
		os.Remove(path)
		return "", err
	}

	logrus.WithFields(logrus.Fields{
		"function": "Put",
		"file":     filename,
		"bytes":    n,
	}).Debug("blob stored")

	return s.urlPrefix + "/" + filename, nil
}

// PutImageDataURI decodes a base64 image data URI and stores it. Payloads
// that cannot fit in the size limit are rejected before decoding.
func (s *LocalStore) PutImageDataURI(ctx context.Context, uri string) (string, error) {
	contentType, payload, err := splitDataURI(uri)
	if err != nil {
		return "", err
	}
	ext, ok := ImageExtensions[contentType]
	if !ok {
		return "", ErrUnsupportedType
	}
	// DecodedLen overestimates by at most the two padding bytes.
	if int64(base64.StdEncoding.DecodedLen(len(payload))) > s.maxBytes+2 {
		return "", ErrTooLarge
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", ErrInvalidDataURI
	}
	return s.Put(ctx, bytes.NewReader(data), ext)
}

// Path resolves a served file name to its location inside the store,
// rejecting anything that would escape the directory.
func (s *LocalStore) Path(name string) (string, error) {
	clean := filepath.Clean(name)
	if clean != filepath.Base(clean) || clean == "." || clean == ".." || clean == string(filepath.Separator) {
		return "", ErrInvalidName
	}

	absDir, err := filepath.Abs(s.dir)
	if err != nil {
		return "", err
	}
	absPath, err := filepath.Abs(filepath.Join(s.dir, clean))
	if err != nil {
		return "", ErrInvalidName
	}
	if !strings.HasPrefix(absPath, absDir+string(filepath.Separator)) {
		return "", ErrInvalidName
	}
	return absPath, nil
}

// DecodeDataURI parses "data:<type>;base64,<payload>".
func DecodeDataURI(uri string) (string, []byte, error) {
	contentType, payload, err := splitDataURI(uri)
	if err != nil {
		return "", nil, err
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, ErrInvalidDataURI
	}
	return contentType, data, nil
}

// splitDataURI returns the lower-cased content type and the still encoded
// payload.
func splitDataURI(uri string) (string, string, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", "", ErrInvalidDataURI
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", "", ErrInvalidDataURI
	}
	contentType, ok := strings.CutSuffix(meta, ";base64")
	if !ok || contentType == "" {
		return "", "", ErrInvalidDataURI
	}
	return strings.ToLower(contentType), payload, nil
}

// AsClientError classifies a store failure for the HTTP layer.
func AsClientError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidDataURI):
		return utils.Validation("Image must be a base64 data URI.")
	case errors.Is(err, ErrUnsupportedType):
		return utils.Validation("Image must be jpeg, png, gif or webp.")
	case errors.Is(err, ErrTooLarge):
		return utils.Validation("File is too large.")
	case errors.Is(err, ErrInvalidName):
		return utils.Validation("Invalid file name.")
	default:
		return utils.Internal("failed to store file", err)
	}
}
