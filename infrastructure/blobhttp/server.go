// Package blobhttp exposes a contract.BlobStore over HTTP.
// Uploads are resumable: each chunk names the offset it starts at.
package blobhttp

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"

	"pixel-chat/contract"
	"pixel-chat/errors"
)

const (
	maxChunkSize   = 8 << 20
	offsetHeader   = "Upload-Offset"
	partialDirName = ".uploads"
)

type beginRequest struct {
	Path        string `json:"path"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

type beginResponse struct {
	UploadID string `json:"uploadId"`
}

type commitResponse struct {
	Locator string `json:"locator"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// offsetReporter is implemented by stores able to tell where an upload stands.
type offsetReporter interface {
	Offset(uploadID string) (int64, error)
}

type Server struct {
	store contract.BlobStore
	blobs http.Handler
	log   *slog.Logger
	mux   *http.ServeMux
}

// NewServer serves uploads into store and committed blobs read from root.
func NewServer(store contract.BlobStore, root string, log *slog.Logger) *Server {
	s := &Server{
		store: store,
		blobs: http.StripPrefix("/blobs/", http.FileServerFS(os.DirFS(root))),
		log:   log,
		mux:   http.NewServeMux(),
	}
	s.mux.HandleFunc("POST /uploads", s.begin)
	s.mux.HandleFunc("HEAD /uploads/{id}", s.offset)
	s.mux.HandleFunc("PUT /uploads/{id}", s.chunk)
	s.mux.HandleFunc("POST /uploads/{id}/commit", s.commit)
	s.mux.HandleFunc("DELETE /uploads/{id}", s.abort)
	s.mux.HandleFunc("GET /blobs/{path...}", s.serveBlob)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) begin(w http.ResponseWriter, r *http.Request) {
	var body beginRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&body); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid upload request: %w", err))
		return
	}
	id, err := s.store.BeginUpload(r.Context(), body.Path, body.ContentType, body.Size)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, beginResponse{UploadID: id})
}

func (s *Server) offset(w http.ResponseWriter, r *http.Request) {
	reporter, ok := s.store.(offsetReporter)
	if !ok {
		w.WriteHeader(http.StatusNotImplemented)
		return
	}
	offset, err := reporter.Offset(r.PathValue("id"))
	if err != nil {
		w.WriteHeader(statusFor(err))
		return
	}
	w.Header().Set(offsetHeader, strconv.FormatInt(offset, 10))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) chunk(w http.ResponseWriter, r *http.Request) {
	offset, err := strconv.ParseInt(r.URL.Query().Get("offset"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid offset: %w", err))
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxChunkSize))
	if err != nil {
		s.writeError(w, http.StatusRequestEntityTooLarge, err)
		return
	}
	if err = s.store.UploadChunk(r.Context(), r.PathValue("id"), offset, data); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) commit(w http.ResponseWriter, r *http.Request) {
	locator, err := s.store.CommitUpload(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, commitResponse{Locator: locator})
}

func (s *Server) abort(w http.ResponseWriter, r *http.Request) {
	if err := s.store.AbortUpload(r.Context(), r.PathValue("id")); err != nil {
		s.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) serveBlob(w http.ResponseWriter, r *http.Request) {
	name := path.Clean("/" + r.PathValue("path"))
	if name == "/" || strings.HasPrefix(name, "/"+partialDirName) {
		http.NotFound(w, r)
		return
	}
	s.blobs.ServeHTTP(w, r)
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		s.log.Error("Blob store failure", "error", err)
	}
	s.writeError(w, code, err)
}

func (s *Server) writeError(w http.ResponseWriter, code int, err error) {
	s.writeJSON(w, code, errorResponse{Error: err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Debug("Response not written", "error", err)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errors.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, errors.ErrOffsetMismatch):
		return http.StatusConflict
	case errors.Is(err, errors.ErrIncompleteUpload):
		return http.StatusPreconditionFailed
	case errors.Is(err, errors.ErrInvalidUpload):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
