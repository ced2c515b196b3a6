package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/keying-qc/internal/aggregate"
	"github.com/sells-group/keying-qc/internal/model"
	"github.com/sells-group/keying-qc/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// internalError logs err and answers with a generic body.
func (s *Server) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	s.log.Error("request failed",
		zap.String("op", op),
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if s.opts.Health != nil {
		if err := s.opts.Health.Ping(r.Context()); err != nil {
			s.log.Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) qualityStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	fromStr, toStr := q.Get("date_from"), q.Get("date_to")
	if fromStr == "" || toStr == "" {
		writeError(w, http.StatusBadRequest, "date_from and date_to are required")
		return
	}
	from, err := aggregate.ParseDate(fromStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date_from")
		return
	}
	to, err := aggregate.ParseDate(toStr)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date_to")
		return
	}
	if to.Before(from) {
		writeError(w, http.StatusBadRequest, "date_to is before date_from")
		return
	}
	level, err := model.ParseReportLevel(q.Get("report_level"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid report_level")
		return
	}

	rows, err := s.opts.Stats.GetQualityStats(r.Context(), projectFrom(r), from, to, level)
	if err != nil {
		s.internalError(w, r, "quality stats", err)
		return
	}
	if rows == nil {
		rows = []model.StatRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) fieldHistory(w http.ResponseWriter, r *http.Request) {
	hist, err := s.opts.Configs.FieldHistory(r.Context(), projectFrom(r))
	if err != nil {
		s.internalError(w, r, "field history", err)
		return
	}
	if hist == nil {
		hist = []model.FieldConfiguration{}
	}
	writeJSON(w, http.StatusOK, hist)
}

func (s *Server) thresholdHistory(w http.ResponseWriter, r *http.Request) {
	hist, err := s.opts.Configs.ThresholdHistory(r.Context(), projectFrom(r))
	if err != nil {
		s.internalError(w, r, "threshold history", err)
		return
	}
	if hist == nil {
		hist = []model.ProjectThreshold{}
	}
	writeJSON(w, http.StatusOK, hist)
}

type statusRequest struct {
	Revision  *int    `json:"revision"`
	Status    string  `json:"status"`
	ErrorType *string `json:"error_type"`
}

func (s *Server) setMistakeStatus(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		writeError(w, http.StatusBadRequest, "invalid mistake index")
		return
	}

	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Revision == nil {
		writeError(w, http.StatusBadRequest, "revision is required")
		return
	}
	status := model.MistakeStatus(req.Status)
	if !status.Valid() {
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}

	rev, err := s.opts.Mistakes.SetMistakeStatus(r.Context(), projectFrom(r), chi.URLParam(r, "docID"),
		*req.Revision, index, status, req.ErrorType)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "mistake not found")
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, "revision conflict")
	case err != nil:
		s.internalError(w, r, "set mistake status", err)
	default:
		writeJSON(w, http.StatusOK, map[string]int{"revision": rev})
	}
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	runs, err := s.opts.Runs.ListRecent(r.Context(), limit)
	if err != nil {
		s.internalError(w, r, "list runs", err)
		return
	}
	if runs == nil {
		runs = []store.RunEntry{}
	}
	writeJSON(w, http.StatusOK, runs)
}
