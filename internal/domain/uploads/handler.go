package uploads

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"petsched/internal/platform/httpjson"
	"petsched/internal/platform/metrics"
)

type Options struct {
	// URLPrefix es donde se sirven los archivos, p.ej. /api/uploads.
	URLPrefix string
	MaxFiles  int
	MaxBytes  int64
}

func RegisterRoutes(r chi.Router, store Store, opts Options) {
	r.Get(opts.URLPrefix+"/{filename}", serveFileHandler(store))

	r.Route("/api/upload", func(ur chi.Router) {
		ur.Post("/pet-photo", uploadSingleHandler(store, opts))
		ur.Post("/pet-photos", uploadMultipleHandler(store, opts))
		ur.Delete("/{filename}", deleteFileHandler(store))
		ur.Get("/{filename}/info", fileInfoHandler(store))
	})
}

func serveFileHandler(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path, err := store.Path(chi.URLParam(r, "filename"))
		if err != nil {
			WriteError(w, r, err)
			return
		}
		w.Header().Set("X-Content-Type-Options", "nosniff")
		http.ServeFile(w, r, path)
	}
}

// uploadSingleHandler godoc
// @Summary Subir una foto de mascota
// @Tags uploads
// @Accept multipart/form-data
// @Produce json
// @Param photo formData file true "Imagen (max 5MB)"
// @Success 200 {object} httpjson.Envelope
// @Failure 400 {object} httpjson.ErrorBody
// @Router /upload/pet-photo [post]
func uploadSingleHandler(store Store, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		files, err := FormFiles(w, r, "photo", 1, opts.MaxBytes)
		if err != nil {
			WriteError(w, r, err)
			return
		}

		f, err := store.Save(r.Context(), files[0])
		metrics.UploadsTotal.WithLabelValues(metrics.Result(err)).Inc()
		if err != nil {
			WriteError(w, r, err)
			return
		}

		httpjson.OKMessage(w, http.StatusOK, f, "File uploaded successfully")
	}
}

func uploadMultipleHandler(store Store, opts Options) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		files, err := FormFiles(w, r, "photos", opts.MaxFiles, opts.MaxBytes)
		if err != nil {
			WriteError(w, r, err)
			return
		}

		saved := make([]File, 0, len(files))
		for _, fh := range files {
			f, err := store.Save(r.Context(), fh)
			metrics.UploadsTotal.WithLabelValues(metrics.Result(err)).Inc()
			if err != nil {
				// no dejamos archivos huérfanos de un lote a medias
				for _, s := range saved {
					_ = store.Delete(r.Context(), s.Filename)
				}
				WriteError(w, r, err)
				return
			}
			saved = append(saved, f)
		}

		httpjson.OKMessage(w, http.StatusOK, saved, "Files uploaded successfully")
	}
}

func deleteFileHandler(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "filename")
		if err := store.Delete(r.Context(), name); err != nil {
			WriteError(w, r, err)
			return
		}
		httpjson.OKMessage(w, http.StatusOK, map[string]string{"filename": name}, "File deleted successfully")
	}
}

func fileInfoHandler(store Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := store.Info(r.Context(), chi.URLParam(r, "filename"))
		if err != nil {
			WriteError(w, r, err)
			return
		}
		httpjson.OK(w, http.StatusOK, f)
	}
}

// WriteError traduce los errores de upload al sobre JSON. Lo reusa pets para la foto.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrNoFile):
		httpjson.BadRequest(w, "No file uploaded", "Please select a file to upload")
	case errors.Is(err, ErrTooManyFiles):
		httpjson.BadRequest(w, "Too many files", err.Error())
	case errors.Is(err, ErrNotImage):
		httpjson.BadRequest(w, "Invalid file type", "Only image files are allowed!")
	case errors.Is(err, ErrTooLarge):
		httpjson.BadRequest(w, "File too large", err.Error())
	case errors.Is(err, ErrInvalidName):
		httpjson.BadRequest(w, "Invalid file name", err.Error())
	case errors.Is(err, ErrNotFound):
		httpjson.NotFound(w, "File not found", err.Error())
	default:
		httpjson.Internal(w, r, "Upload failed", err)
	}
}
