package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rangeops/excon/internal/library"
)

// uploads arrive as multipart form data under the "file" field.
func readUpload(r *http.Request, limit int64) (string, []byte, error) {
	if err := r.ParseMultipartForm(limit); err != nil {
		return "", nil, fmt.Errorf("%w: %v", library.ErrRejected, err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return "", nil, fmt.Errorf("%w: missing file field", library.ErrRejected)
	}
	defer func() { _ = file.Close() }()

	content, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return "", nil, fmt.Errorf("read upload: %w", err)
	}
	return header.Filename, content, nil
}

func deletePath(r *http.Request) (string, error) {
	var req struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		return "", fmt.Errorf("%w: missing path", library.ErrInvalidPath)
	}
	return req.Path, nil
}

func (s *Server) handleListMedia(w http.ResponseWriter, _ *http.Request) {
	files, err := s.media.List()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

func (s *Server) handleUploadMedia(w http.ResponseWriter, r *http.Request) {
	name, content, err := readUpload(r, 10<<20)
	if err != nil {
		writeError(w, err)
		return
	}
	entry, err := s.media.Save(name, content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleDeleteMedia(w http.ResponseWriter, r *http.Request) {
	path, err := deletePath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.media.Delete(path); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "path": path})
}

func (s *Server) handleListIQ(w http.ResponseWriter, _ *http.Request) {
	files, err := s.iqlib.List()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": files})
}

func (s *Server) handleUploadIQ(w http.ResponseWriter, r *http.Request) {
	name, content, err := readUpload(r, 500<<20)
	if err != nil {
		writeError(w, err)
		return
	}
	entry, err := s.iqlib.Save(name, content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleDeleteIQ(w http.ResponseWriter, r *http.Request) {
	path, err := deletePath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.iqlib.Delete(path); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "path": path})
}
