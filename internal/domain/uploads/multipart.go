package uploads

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strings"
)

const multipartMemory = 8 << 20

// FormFiles parsea el multipart y devuelve hasta max archivos del campo field.
// El body completo se acota a max*maxBytes (+1MiB para los headers del form).
func FormFiles(w http.ResponseWriter, r *http.Request, field string, max int, maxBytes int64) ([]*multipart.FileHeader, error) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(max)*maxBytes+(1<<20))

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) || strings.Contains(err.Error(), "request body too large") {
			return nil, ErrTooLarge
		}
		if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingBoundary) {
			return nil, ErrNoFile
		}
		return nil, err
	}

	files := r.MultipartForm.File[field]
	if len(files) == 0 {
		return nil, ErrNoFile
	}
	if len(files) > max {
		return nil, ErrTooManyFiles
	}
	return files, nil
}
