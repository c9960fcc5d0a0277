package uploads

import (
	"context"
	"errors"
	"mime/multipart"
	"time"
)

var (
	ErrNoFile       = errors.New("no file uploaded")
	ErrTooManyFiles = errors.New("too many files")
	ErrNotImage     = errors.New("only image files are allowed")
	ErrTooLarge     = errors.New("file too large")
	ErrInvalidName  = errors.New("invalid file name")
	ErrNotFound     = errors.New("file not found")
)

// File describe un archivo guardado.
type File struct {
	Filename     string    `json:"filename"`
	OriginalName string    `json:"originalName,omitempty"`
	MimeType     string    `json:"mimetype,omitempty"`
	Size         int64     `json:"size"`
	URL          string    `json:"url"`
	Created      time.Time `json:"created"`
}

// Store es el File Upload Service. La implementación real vive en adapters/files/disk.
type Store interface {
	// Save valida tipo y tamaño y guarda con un nombre único.
	Save(ctx context.Context, fh *multipart.FileHeader) (File, error)
	Delete(ctx context.Context, filename string) error
	Info(ctx context.Context, filename string) (File, error)
	// Path devuelve la ruta en disco para servir el archivo.
	Path(filename string) (string, error)
	URL(filename string) string
	// FilenameFromURL hace el camino inverso de URL; false si la URL no es de este store.
	FilenameFromURL(url string) (string, bool)
}
