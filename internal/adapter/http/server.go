package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"mime"
	"net/http"
	"time"

	"github.com/cwygoda/mediagrab/internal/domain"
)

// maxBodyBytes caps submission bodies.
const maxBodyBytes = 64 << 10

// Server is the HTTP adapter for the extraction service.
type Server struct {
	svc    *domain.JobService
	mux    *http.ServeMux
	server *http.Server
}

// NewServer creates a new HTTP server.
func NewServer(svc *domain.JobService, addr string) *Server {
	s := &Server{
		svc: svc,
		mux: http.NewServeMux(),
	}
	s.routes()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /api/extract", s.handleExtract)
	s.mux.HandleFunc("GET /api/status/{id}", s.handleStatus)
	s.mux.HandleFunc("GET /api/downloads", s.handleDownloads)
	s.mux.HandleFunc("GET /download/{filename}", s.handleDownload)
	s.mux.HandleFunc("GET /health", s.handleHealth)
}

// extractRequest is the request body for POST /api/extract.
type extractRequest struct {
	URL    string `json:"url"`
	Format string `json:"format"`
}

type extractResponse struct {
	JobID string `json:"job_id"`
}

// statusResponse always carries result and error, null when unset.
type statusResponse struct {
	JobID  string  `json:"job_id"`
	State  string  `json:"state"`
	Result *string `json:"result"`
	Error  *string `json:"error"`
}

type artifactResponse struct {
	Filename   string `json:"filename"`
	SizeBytes  int64  `json:"size_bytes"`
	ModifiedAt string `json:"modified_at"`
	Kind       string `json:"kind"`
}

// errorResponse is the JSON error response.
type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if req.URL == "" {
		s.writeError(w, http.StatusBadRequest, "url is required")
		return
	}
	if req.Format == "" {
		req.Format = string(domain.FormatAudio)
	}

	job, err := s.svc.Submit(r.Context(), req.URL, req.Format)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidFormat):
			s.writeError(w, http.StatusBadRequest, "invalid format: use audio or video")
		case errors.Is(err, domain.ErrInvalidURL):
			s.writeError(w, http.StatusBadRequest, "invalid URL")
		default:
			log.Printf("submit error: %v", err)
			s.writeError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	s.writeJSON(w, http.StatusAccepted, extractResponse{JobID: job.ID})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.svc.Poll(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			s.writeError(w, http.StatusNotFound, "job not found")
			return
		}
		log.Printf("get job error: %v", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.writeJSON(w, http.StatusOK, jobToResponse(job))
}

func (s *Server) handleDownloads(w http.ResponseWriter, r *http.Request) {
	artifacts, err := s.svc.ListArtifacts(r.Context())
	if err != nil {
		log.Printf("list artifacts error: %v", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := make([]artifactResponse, 0, len(artifacts))
	for _, a := range artifacts {
		resp = append(resp, artifactResponse{
			Filename:   a.Filename,
			SizeBytes:  a.SizeBytes,
			ModifiedAt: a.ModifiedAt.UTC().Format(time.RFC3339),
			Kind:       string(a.Kind),
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("filename")
	f, a, err := s.svc.OpenArtifact(r.Context(), name)
	if err != nil {
		if errors.Is(err, domain.ErrArtifactNotFound) {
			s.writeError(w, http.StatusNotFound, "file not found")
			return
		}
		log.Printf("open artifact %q error: %v", name, err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", a.ContentType())
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": a.Filename}))
	http.ServeContent(w, r, a.Filename, a.ModifiedAt, f)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

func jobToResponse(job *domain.Job) statusResponse {
	resp := statusResponse{
		JobID: job.ID,
		State: string(job.State),
	}
	if job.Artifact != "" {
		resp.Result = &job.Artifact
	}
	if job.Error != "" {
		resp.Error = &job.Error
	}
	return resp
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// ServeHTTP implements http.Handler for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Addr returns the server address.
func (s *Server) Addr() string {
	return s.server.Addr
}
