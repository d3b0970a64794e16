package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/ruiji/internal/llm"
	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/internal/storage"
	"github.com/hyperjump/ruiji/internal/vectorsearch"
)

// searchable resolves the {type} URL parameter, answering 404 when the type
// was never declared.
func (s *Server) searchable(w http.ResponseWriter, r *http.Request) (*vectorsearch.Searchable, bool) {
	sr, err := s.registry.Get(chi.URLParam(r, "type"))
	if err != nil {
		s.respondError(w, http.StatusNotFound, err.Error())
		return nil, false
	}
	return sr, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type typeStatus struct {
	Records  int64  `json:"records"`
	Provider string `json:"provider"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	types := make(map[string]typeStatus)
	for _, name := range s.registry.Types() {
		sr, err := s.registry.Get(name)
		if err != nil {
			continue
		}
		n, err := s.storage.CountRecords(ctx, name)
		if err != nil {
			s.logger.Error("status: count records failed", zap.String("record_type", name), zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		types[name] = typeStatus{Records: n, Provider: sr.Provider().Name()}
	}
	resp := map[string]interface{}{"types": types}

	if s.config != nil {
		resp["config"] = map[string]interface{}{
			"provider":             s.config.Provider.Type,
			"embedding_provider":   s.config.Embedding.Provider,
			"embedding_dimensions": s.config.Embedding.Dimensions,
			"llm_provider":         s.config.LLM.Provider,
			"database_path":        s.config.Storage.DatabasePath,
		}
		diskBytes, err := storage.DiskUsageBytes(
			s.config.Storage.DatabasePath,
			s.config.Storage.VectorIndexPath,
			s.config.Storage.KeywordIndexPath,
		)
		if err == nil {
			resp["disk_usage_bytes"] = diskBytes
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSaveRecord(w http.ResponseWriter, r *http.Request) {
	sr, ok := s.searchable(w, r)
	if !ok {
		return
	}
	var input models.RecordInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("save record request", zap.String("record_type", sr.RecordType()), zap.String("id", input.ID))

	rec, err := sr.Save(r.Context(), input)
	if err != nil {
		s.logger.Error("save failed", zap.String("record_type", sr.RecordType()), zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	sr, ok := s.searchable(w, r)
	if !ok {
		return
	}
	rec, err := s.storage.GetRecord(r.Context(), sr.RecordType(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, rec)
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	sr, ok := s.searchable(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete record request", zap.String("record_type", sr.RecordType()), zap.String("id", id))
	if err := sr.Delete(r.Context(), id); err != nil {
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	sr, ok := s.searchable(w, r)
	if !ok {
		return
	}
	var req models.SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(s.config.Search.DefaultLimit, s.config.Search.MaxLimit); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("search request", zap.String("record_type", sr.RecordType()), zap.String("query", req.Query), zap.Int("limit", req.Limit))

	start := time.Now()
	opts := []vectorsearch.SearchOption{vectorsearch.Limit(req.Limit), vectorsearch.Filters(req.Filters)}
	var q *storage.Query
	var distances map[string]float64
	var err error
	if req.WithDistance {
		maxDistance := s.config.Search.DefaultMaxDistance
		if req.MaxDistance != nil {
			maxDistance = *req.MaxDistance
		}
		opts = append(opts, vectorsearch.MaxDistance(maxDistance))
		q, distances, err = sr.SimilaritySearchWithDistance(r.Context(), req.Query, opts...)
	} else {
		q, err = sr.SimilaritySearch(r.Context(), req.Query, opts...)
	}
	if err != nil {
		s.logger.Error("search failed", zap.String("record_type", sr.RecordType()), zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	recs, err := q.All(r.Context())
	if err != nil {
		s.logger.Error("search: resolve records failed", zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	if distances != nil {
		// keep only distances of records that survived the filters
		kept := make(map[string]float64, len(recs))
		for _, rec := range recs {
			kept[rec.ID] = distances[rec.ID]
		}
		distances = kept
	}
	s.respondJSON(w, http.StatusOK, &models.SearchResponse{
		Records:   recs,
		Distances: distances,
		Total:     len(recs),
		QueryTime: time.Since(start).Milliseconds(),
		Query:     req.Query,
	})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	sr, ok := s.searchable(w, r)
	if !ok {
		return
	}
	var req models.AskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := req.Validate(s.config.Search.DefaultAskK); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("ask request", zap.String("record_type", sr.RecordType()), zap.Int("k", req.K), zap.Bool("stream", req.Stream))

	if req.Stream {
		s.streamAnswer(w, r, sr, &req)
		return
	}

	start := time.Now()
	c, err := sr.Completion(r.Context(), req.Question, vectorsearch.ContextSize(req.K))
	if err != nil {
		s.logger.Error("ask failed", zap.String("record_type", sr.RecordType()), zap.Error(err))
		s.respondError(w, statusFor(err), err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, &models.AskResponse{
		Answer:    c.Text,
		Sources:   c.Sources,
		Model:     c.Model,
		QueryTime: time.Since(start).Milliseconds(),
	})
}

// streamAnswer writes completion chunks as plain text as they arrive. Errors
// before the first chunk get a JSON error response; later ones end the stream.
func (s *Server) streamAnswer(w http.ResponseWriter, r *http.Request, sr *vectorsearch.Searchable, req *models.AskRequest) {
	flusher, _ := w.(http.Flusher)
	wrote := false
	onChunk := func(chunk string) {
		if !wrote {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.WriteHeader(http.StatusOK)
			wrote = true
		}
		_, _ = w.Write([]byte(chunk))
		if flusher != nil {
			flusher.Flush()
		}
	}

	_, err := sr.Ask(r.Context(), req.Question, vectorsearch.ContextSize(req.K), vectorsearch.OnChunk(onChunk))
	if err != nil {
		s.logger.Error("ask stream failed", zap.String("record_type", sr.RecordType()), zap.Error(err))
		if !wrote {
			s.respondError(w, statusFor(err), err.Error())
		}
		return
	}
	if !wrote {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
	}
}

func (s *Server) handleReembed(w http.ResponseWriter, r *http.Request) {
	sr, ok := s.searchable(w, r)
	if !ok {
		return
	}
	s.logger.Info("reembed request", zap.String("record_type", sr.RecordType()))
	report, err := sr.ReembedAll(r.Context())
	resp := map[string]interface{}{
		"processed": report.Processed,
		"failed":    report.Failed,
	}
	if err != nil {
		resp["error"] = err.Error()
	}
	s.respondJSON(w, http.StatusOK, resp)
}

type importRequest struct {
	Path      string `json:"path"`
	Recursive *bool  `json:"recursive,omitempty"`
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if s.importer == nil {
		s.respondError(w, http.StatusNotImplemented, "import not enabled")
		return
	}
	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	recursive := true
	if req.Recursive != nil {
		recursive = *req.Recursive
	}
	s.logger.Info("import request", zap.String("path", req.Path), zap.Bool("recursive", recursive))
	res, err := s.importer.ImportDir(r.Context(), req.Path, recursive)
	resp := map[string]interface{}{
		"files":   res.Files,
		"saved":   res.Saved,
		"failed":  res.Failed,
		"skipped": res.Skipped,
	}
	if err != nil {
		resp["error"] = err.Error()
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var indexing *vectorsearch.IndexingError
	switch {
	case errors.Is(err, vectorsearch.ErrNotSearchable), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, llm.ErrNoGenerator):
		return http.StatusNotImplemented
	case errors.As(err, &indexing), errors.Is(err, vectorsearch.ErrMissingID):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
