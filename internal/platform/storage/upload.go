package storage

import (
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Upload is one file received from a client.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// ObjectKey builds "<prefix>/<ownerID>/<uuid><ext>" keeping only the original extension.
func ObjectKey(prefix string, ownerID int64, filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if len(ext) > 10 || strings.ContainsAny(ext, `/\ `) {
		ext = ""
	}
	return path.Join(prefix, fmt.Sprint(ownerID), uuid.NewString()+ext)
}

// OpenUploads opens multipart file headers. The returned close func releases every opened file.
func OpenUploads(headers []*multipart.FileHeader) ([]Upload, func(), error) {
	var files []multipart.File
	closeAll := func() {
		for _, f := range files {
			_ = f.Close()
		}
	}
	uploads := make([]Upload, 0, len(headers))
	for _, h := range headers {
		f, err := h.Open()
		if err != nil {
			closeAll()
			return nil, func() {}, fmt.Errorf("storage: open %s: %w", h.Filename, err)
		}
		files = append(files, f)
		contentType := h.Header.Get("Content-Type")
		if contentType == "" || contentType == "application/octet-stream" {
			contentType = mime.TypeByExtension(strings.ToLower(filepath.Ext(h.Filename)))
		}
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		uploads = append(uploads, Upload{Filename: h.Filename, ContentType: contentType, Size: h.Size, Body: f})
	}
	return uploads, closeAll, nil
}
