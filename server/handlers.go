package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/c360studio/ucc/clause"
	"github.com/c360studio/ucc/jobstore"
	"github.com/c360studio/ucc/layout"
	"github.com/c360studio/ucc/pipeline"
)

var pdfMagic = []byte("%PDF-")

// errInvalidInput marks request errors surfaced as 400s.
type errInvalidInput struct {
	msg string
}

func (e *errInvalidInput) Error() string {
	return e.msg
}

func invalidInput(format string, args ...any) error {
	return &errInvalidInput{msg: fmt.Sprintf(format, args...)}
}

// handlePreprocess parses a single PDF and returns its blocks.
func (s *Server) handlePreprocess(w http.ResponseWriter, r *http.Request) {
	doc, _, err := s.readSingleUpload(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	blocks, err := s.stages.ParseLayout(r.Context(), doc.DocID, doc.Bytes)
	if err != nil {
		if layout.IsParseError(err) {
			s.writeError(w, invalidInput("document has no extractable text layer"))
			return
		}
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"doc_id":    doc.DocID,
		"file_name": doc.FileName,
		"blocks":    blocks,
		"pages":     lastPage(blocks),
	})
}

// handleCompare runs the synchronous comparison, bounded by the job hard
// timeout.
func (s *Server) handleCompare(w http.ResponseWriter, r *http.Request) {
	docA, docB, opts, err := s.readPairUpload(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.hardTO)
	defer cancel()

	comparer := pipeline.NewComparer(s.stages, opts)
	result, err := comparer.Compare(ctx, docA, docB)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			http.Error(w, "comparison timed out", http.StatusGatewayTimeout)
			return
		}
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleSubmitJob queues an async comparison.
func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	docA, docB, opts, err := s.readPairUpload(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	job, err := s.orch.Submit(r.Context(), docA, docB, opts)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id": job.JobID,
		"status": job.Status,
	})
}

// handleGetJob returns the current job record.
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Get(r.Context(), r.PathValue("job_id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleGetResult returns the assembled result once the job completed, the
// job record with 202 while it is still running, and 410 once purged.
func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("job_id")
	job, err := s.jobs.Get(r.Context(), jobID)
	if errors.Is(err, jobstore.ErrNotFound) {
		http.Error(w, "job purged or unknown", http.StatusGone)
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	switch {
	case job.Status == jobstore.StatusCompleted:
		result, err := s.jobs.GetResult(r.Context(), jobID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	case job.Status.Terminal():
		writeJSON(w, http.StatusOK, job)
	default:
		writeJSON(w, http.StatusAccepted, job)
	}
}

// handleCancelJob requests cooperative cancellation.
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	cancelled, message := s.orch.Cancel(r.Context(), r.PathValue("job_id"))
	writeJSON(w, http.StatusOK, map[string]any{
		"cancelled": cancelled,
		"message":   message,
	})
}

// handleListJobs lists jobs newest-first with status/limit/offset filters.
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	filter := jobstore.Filter{Limit: 50}
	if v := r.URL.Query().Get("status"); v != "" {
		filter.Status = jobstore.JobStatus(v)
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeError(w, invalidInput("limit must be a positive integer"))
			return
		}
		filter.Limit = n
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, invalidInput("offset must not be negative"))
			return
		}
		filter.Offset = n
	}
	jobs, err := s.jobs.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if jobs == nil {
		jobs = []*jobstore.Job{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// readSingleUpload parses the `file` field of a multipart request.
func (s *Server) readSingleUpload(r *http.Request) (clause.Document, clause.Options, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return clause.Document{}, clause.Options{}, invalidInput("malformed multipart request: %v", err)
	}
	doc, err := s.formDocument(r, "file")
	if err != nil {
		return clause.Document{}, clause.Options{}, err
	}
	opts, err := s.formOptions(r)
	if err != nil {
		return clause.Document{}, clause.Options{}, err
	}
	return doc, opts, nil
}

// readPairUpload parses `file_a`, `file_b` and `options`.
func (s *Server) readPairUpload(r *http.Request) (clause.Document, clause.Document, clause.Options, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return clause.Document{}, clause.Document{}, clause.Options{}, invalidInput("malformed multipart request: %v", err)
	}
	docA, err := s.formDocument(r, "file_a")
	if err != nil {
		return clause.Document{}, clause.Document{}, clause.Options{}, err
	}
	docB, err := s.formDocument(r, "file_b")
	if err != nil {
		return clause.Document{}, clause.Document{}, clause.Options{}, err
	}
	opts, err := s.formOptions(r)
	if err != nil {
		return clause.Document{}, clause.Document{}, clause.Options{}, err
	}
	return docA, docB, opts, nil
}

func (s *Server) formDocument(r *http.Request, field string) (clause.Document, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return clause.Document{}, invalidInput("missing file field %q", field)
	}
	defer file.Close()
	data, err := readLimited(file)
	if err != nil {
		return clause.Document{}, err
	}
	if len(data) == 0 {
		return clause.Document{}, invalidInput("file field %q is empty", field)
	}
	if s.pdfOnly && !bytes.HasPrefix(data, pdfMagic) {
		return clause.Document{}, invalidInput("file %q is not a PDF", header.Filename)
	}
	return clause.NewDocument(header.Filename, data), nil
}

func readLimited(file multipart.File) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) > maxUploadBytes {
		return nil, invalidInput("file exceeds the %d byte limit", maxUploadBytes)
	}
	return data, nil
}

// formOptions decodes the optional `options` JSON field over the server
// defaults. Unknown keys are rejected.
func (s *Server) formOptions(r *http.Request) (clause.Options, error) {
	opts := s.defaults
	raw := r.FormValue("options")
	if raw == "" {
		return opts, nil
	}
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&opts); err != nil {
		return opts, invalidInput("malformed options: %v", err)
	}
	if err := opts.Validate(); err != nil {
		return opts, invalidInput("invalid options: %v", err)
	}
	return opts, nil
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var invalid *errInvalidInput
	switch {
	case errors.As(err, &invalid):
		http.Error(w, invalid.msg, http.StatusBadRequest)
	case errors.Is(err, jobstore.ErrNotFound):
		http.Error(w, "job not found", http.StatusNotFound)
	case errors.Is(err, jobstore.ErrNoResult):
		http.Error(w, "result not available", http.StatusNotFound)
	default:
		s.logger.Error("request failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func lastPage(blocks []clause.Block) int {
	page := 0
	for _, b := range blocks {
		if b.PageEnd > page {
			page = b.PageEnd
		}
	}
	return page
}
