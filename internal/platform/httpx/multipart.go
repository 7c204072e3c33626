package httpx

import (
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/bizgate/bizgate/internal/shared"
)

// FormFiles parses a multipart body capped at maxBytes and returns the files sent under field.
func FormFiles(w http.ResponseWriter, r *http.Request, field string, maxBytes int64) ([]*multipart.FileHeader, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		return nil, fmt.Errorf("%w: multipart body: %v", shared.ErrValidation, err)
	}
	files := r.MultipartForm.File[field]
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no files in %q", shared.ErrValidation, field)
	}
	return files, nil
}
