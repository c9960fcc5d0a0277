// Package disk guarda las fotos subidas en un directorio local.
package disk

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"petsched/internal/domain/uploads"
)

type Store struct {
	dir       string
	urlPrefix string
	maxBytes  int64
	now       func() time.Time
}

var _ uploads.Store = (*Store)(nil)

// New crea el directorio si no existe.
func New(dir, urlPrefix string, maxBytes int64) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("upload dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{
		dir:       dir,
		urlPrefix: "/" + strings.Trim(urlPrefix, "/"),
		maxBytes:  maxBytes,
		now:       time.Now,
	}, nil
}

func (s *Store) Save(_ context.Context, fh *multipart.FileHeader) (uploads.File, error) {
	if fh == nil {
		return uploads.File{}, uploads.ErrNoFile
	}
	if !strings.HasPrefix(fh.Header.Get("Content-Type"), "image/") {
		return uploads.File{}, uploads.ErrNotImage
	}
	if s.maxBytes > 0 && fh.Size > s.maxBytes {
		return uploads.File{}, uploads.ErrTooLarge
	}

	src, err := fh.Open()
	if err != nil {
		return uploads.File{}, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(src, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return uploads.File{}, fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]
	mimeType := http.DetectContentType(head)
	if !ValidateFileType(mimeType) {
		return uploads.File{}, uploads.ErrNotImage
	}

	name := fmt.Sprintf("%s-%d%s", uuid.NewString(), s.now().UnixMilli(), strings.ToLower(filepath.Ext(fh.Filename)))
	dst, err := os.OpenFile(filepath.Join(s.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return uploads.File{}, fmt.Errorf("create file: %w", err)
	}

	written, err := io.Copy(dst, io.MultiReader(bytes.NewReader(head), src))
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(filepath.Join(s.dir, name))
		return uploads.File{}, fmt.Errorf("write file: %w", err)
	}

	return uploads.File{
		Filename:     name,
		OriginalName: fh.Filename,
		MimeType:     mimeType,
		Size:         written,
		URL:          s.URL(name),
		Created:      s.now().UTC(),
	}, nil
}

func (s *Store) Delete(_ context.Context, filename string) error {
	path, err := s.Path(filename)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return uploads.ErrNotFound
		}
		return err
	}
	return nil
}

func (s *Store) Info(_ context.Context, filename string) (uploads.File, error) {
	path, err := s.Path(filename)
	if err != nil {
		return uploads.File{}, err
	}
	st, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return uploads.File{}, uploads.ErrNotFound
	}
	if err != nil {
		return uploads.File{}, err
	}
	return uploads.File{
		Filename: filename,
		Size:     st.Size(),
		URL:      s.URL(filename),
		Created:  st.ModTime().UTC(),
	}, nil
}

// Path rechaza nombres con separadores o "..": solo se sirven archivos del directorio.
func (s *Store) Path(filename string) (string, error) {
	if !validName(filename) {
		return "", uploads.ErrInvalidName
	}
	path := filepath.Join(s.dir, filename)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return "", uploads.ErrNotFound
	}
	return path, nil
}

func (s *Store) URL(filename string) string {
	return s.urlPrefix + "/" + filename
}

func (s *Store) FilenameFromURL(url string) (string, bool) {
	name, ok := strings.CutPrefix(url, s.urlPrefix+"/")
	if !ok || !validName(name) {
		return "", false
	}
	return name, true
}

// ValidateFileType acepta cualquier image/* que reconozca http.DetectContentType.
// SVG no pasa: el sniffer lo reporta como text/xml.
func ValidateFileType(mimeType string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(mimeType)), "image/")
}

func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\`) && !strings.Contains(name, "..") && filepath.Base(name) == name
}
