package httpserver

import (
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"rentline/internal/config"
	"rentline/internal/domain"
	"rentline/internal/storage"
)

// maxUploadBytes caps attachment payload size (20MB).
const maxUploadBytes = 20 << 20

// UploadRoutes returns a sub-router mounted at /api/uploads. Clients stage
// an attachment here first and reference the returned fields when sending
// the message.
//   - POST /           -> multipart upload, returns the attachment reference
//   - GET /{filename}  -> serves staged blobs (local store only)
func UploadRoutes(cfg *config.Config, blobs storage.BlobStore) chi.Router {
	r := chi.NewRouter()

	r.Post("/", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			http.Error(w, "failed to parse multipart form", http.StatusBadRequest)
			return
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		defer file.Close()

		ext := strings.ToLower(filepath.Ext(header.Filename))
		if ext == "" {
			http.Error(w, "file must have an extension", http.StatusBadRequest)
			return
		}
		contentType := header.Header.Get("Content-Type")

		key := uuid.NewString() + ext
		url, err := blobs.Put(r.Context(), key, contentType, io.LimitReader(file, maxUploadBytes))
		if err != nil {
			http.Error(w, "could not store file", http.StatusInternalServerError)
			return
		}

		attType := domain.AttachmentDocument
		if strings.HasPrefix(contentType, "image/") {
			attType = domain.AttachmentImage
		}
		writeJSON(w, http.StatusOK, domain.Attachment{
			URL:  url,
			Type: attType,
			Name: header.Filename,
			Size: header.Size,
		})
	})

	r.Get("/{filename}", func(w http.ResponseWriter, r *http.Request) {
		filename := chi.URLParam(r, "filename")
		if filename == "" {
			http.Error(w, "missing filename", http.StatusBadRequest)
			return
		}
		// Prevent path traversal by rejecting any separator in the name.
		if filepath.Base(filename) != filename {
			http.Error(w, "invalid filename", http.StatusBadRequest)
			return
		}
		http.ServeFile(w, r, filepath.Join(cfg.UploadDir, filename))
	})

	return r
}
