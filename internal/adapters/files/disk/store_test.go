package disk

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"petsched/internal/domain/uploads"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

// fileHeader arma un *multipart.FileHeader real pasando por ParseMultipartForm.
func fileHeader(t *testing.T, filename, contentType string, content []byte) *multipart.FileHeader {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="photo"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(1<<20))
	return req.MultipartForm.File["photo"][0]
}

func newStore(t *testing.T, maxBytes int64) *Store {
	t.Helper()
	s, err := New(t.TempDir(), "/api/uploads", maxBytes)
	require.NoError(t, err)
	return s
}

func TestSaveInfoDelete(t *testing.T) {
	s := newStore(t, 1<<20)
	ctx := context.Background()

	f, err := s.Save(ctx, fileHeader(t, "Rex.PNG", "image/png", pngHeader))
	require.NoError(t, err)
	assert.Equal(t, "image/png", f.MimeType)
	assert.Equal(t, "Rex.PNG", f.OriginalName)
	assert.Equal(t, int64(len(pngHeader)), f.Size)
	assert.True(t, strings.HasSuffix(f.Filename, ".png"))
	assert.Equal(t, "/api/uploads/"+f.Filename, f.URL)

	onDisk, err := os.ReadFile(filepath.Join(s.dir, f.Filename))
	require.NoError(t, err)
	assert.Equal(t, pngHeader, onDisk)

	info, err := s.Info(ctx, f.Filename)
	require.NoError(t, err)
	assert.Equal(t, f.Size, info.Size)

	name, ok := s.FilenameFromURL(f.URL)
	assert.True(t, ok)
	assert.Equal(t, f.Filename, name)

	require.NoError(t, s.Delete(ctx, f.Filename))
	assert.ErrorIs(t, s.Delete(ctx, f.Filename), uploads.ErrNotFound)
	_, err = s.Info(ctx, f.Filename)
	assert.ErrorIs(t, err, uploads.ErrNotFound)
}

func TestSaveRejectsNonImages(t *testing.T) {
	s := newStore(t, 1<<20)

	_, err := s.Save(context.Background(), fileHeader(t, "notes.txt", "text/plain", []byte("hello")))
	assert.ErrorIs(t, err, uploads.ErrNotImage)

	// Declarado como imagen pero el contenido no lo es.
	_, err = s.Save(context.Background(), fileHeader(t, "fake.png", "image/png", []byte("<html></html>")))
	assert.ErrorIs(t, err, uploads.ErrNotImage)
}

func TestSaveRejectsLargeFiles(t *testing.T) {
	s := newStore(t, 8)
	_, err := s.Save(context.Background(), fileHeader(t, "big.png", "image/png", pngHeader))
	assert.ErrorIs(t, err, uploads.ErrTooLarge)
}

func TestPathRejectsTraversal(t *testing.T) {
	s := newStore(t, 1<<20)
	for _, name := range []string{"../etc/passwd", "a/b.png", `a\b.png`, "..", ""} {
		_, err := s.Path(name)
		assert.ErrorIs(t, err, uploads.ErrInvalidName, name)
	}

	_, ok := s.FilenameFromURL("https://elsewhere.test/x.png")
	assert.False(t, ok)
}

func TestValidateFileType(t *testing.T) {
	assert.True(t, ValidateFileType("image/webp"))
	assert.True(t, ValidateFileType("IMAGE/JPEG"))
	assert.True(t, ValidateFileType("image/bmp"))
	assert.True(t, ValidateFileType("image/x-icon"))
	assert.False(t, ValidateFileType("text/xml; charset=utf-8"))
	assert.False(t, ValidateFileType("application/pdf"))
}

func TestSaveAcceptsAnySniffedImage(t *testing.T) {
	s := newStore(t, 1<<20)
	ctx := context.Background()

	bmp := append([]byte("BM"), make([]byte, 30)...)
	f, err := s.Save(ctx, fileHeader(t, "rex.bmp", "image/bmp", bmp))
	require.NoError(t, err)
	assert.Equal(t, "image/bmp", f.MimeType)

	ico := append([]byte("\x00\x00\x01\x00"), make([]byte, 20)...)
	f, err = s.Save(ctx, fileHeader(t, "rex.ico", "image/x-icon", ico))
	require.NoError(t, err)
	assert.Equal(t, "image/x-icon", f.MimeType)

	// SVG es texto para el sniffer.
	svg := []byte(`<?xml version="1.0"?><svg xmlns="http://www.w3.org/2000/svg"></svg>`)
	_, err = s.Save(ctx, fileHeader(t, "rex.svg", "image/svg+xml", svg))
	assert.ErrorIs(t, err, uploads.ErrNotImage)
}
