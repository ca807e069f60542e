package blob

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"friendline/utils"
)

func TestDecodeDataURI(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte("png-bytes"))

	ct, data, err := DecodeDataURI("data:image/PNG;base64," + payload)
	require.NoError(t, err)
	assert.Equal(t, "image/png", ct)
	assert.Equal(t, []byte("png-bytes"), data)

	for _, bad := range []string{
		"image/png;base64," + payload,
		"data:image/png," + payload,
		"data:;base64," + payload,
		"data:image/png;base64",
		"data:image/png;base64,***",
	} {
		_, _, err := DecodeDataURI(bad)
		assert.ErrorIs(t, err, ErrInvalidDataURI, bad)
	}
}

func TestPutImageDataURI(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(dir, "/files/", 1024)
	require.NoError(t, err)

	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("img"))
	url, err := s.PutImageDataURI(context.Background(), uri)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "/files/"))
	assert.True(t, strings.HasSuffix(url, ".png"))

	data, err := os.ReadFile(filepath.Join(dir, strings.TrimPrefix(url, "/files/")))
	require.NoError(t, err)
	assert.Equal(t, []byte("img"), data)

	_, err = s.PutImageDataURI(context.Background(), "data:text/plain;base64,aGk=")
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestPutRejectsOversizedObjects(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(dir, "/files", 4)
	require.NoError(t, err)

	_, err = s.Put(context.Background(), strings.NewReader("too long"), ".bin")
	assert.ErrorIs(t, err, ErrTooLarge)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "partial file is removed")
}

func TestPutImageDataURIChecksSizeBeforeDecoding(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(dir, "/files", 16)
	require.NoError(t, err)

	// Not valid base64, so only a size check ahead of decoding reports ErrTooLarge.
	_, err = s.PutImageDataURI(context.Background(), "data:image/png;base64,"+strings.Repeat("*", 4096))
	assert.ErrorIs(t, err, ErrTooLarge)

	exact := "data:image/png;base64," + base64.StdEncoding.EncodeToString(make([]byte, 16))
	_, err = s.PutImageDataURI(context.Background(), exact)
	assert.NoError(t, err)

	over := "data:image/png;base64," + base64.StdEncoding.EncodeToString(make([]byte, 17))
	_, err = s.PutImageDataURI(context.Background(), over)
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestPathRejectsTraversal(t *testing.T) {
	s, err := NewLocalStore(t.TempDir(), "/files", 1024)
	require.NoError(t, err)

	_, err = s.Path("ok.png")
	assert.NoError(t, err)

	for _, name := range []string{"../etc/passwd", "..", ".", "a/b.png", "/"} {
		_, err := s.Path(name)
		assert.ErrorIs(t, err, ErrInvalidName, name)
	}
}

func TestAsClientError(t *testing.T) {
	for _, err := range []error{ErrInvalidDataURI, ErrUnsupportedType, ErrTooLarge, ErrInvalidName} {
		assert.True(t, utils.IsKind(AsClientError(err), utils.KindValidation), err.Error())
	}
	assert.True(t, utils.IsKind(AsClientError(errors.New("disk full")), utils.KindInternal))
}
