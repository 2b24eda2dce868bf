package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/sjawhar/interview-coach/internal/storage"
)

const defaultListLimit = 50

var interviewIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

func (s *Server) registerAPIRoutes(api *mux.Router) {
	api.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	api.HandleFunc("/sessions", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.registry.List())
	}).Methods(http.MethodGet)

	api.HandleFunc("/interviews", func(w http.ResponseWriter, r *http.Request) {
		if s.archive == nil {
			writeJSONError(w, http.StatusNotFound, "archive not configured")
			return
		}

		limit := defaultListLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				writeJSONError(w, http.StatusBadRequest, "invalid limit")
				return
			}
			limit = n
		}

		interviews, err := s.archive.ListInterviews(r.Context(), limit)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list interviews: %v", err))
			return
		}
		if interviews == nil {
			interviews = []storage.Summary{}
		}
		writeJSON(w, http.StatusOK, interviews)
	}).Methods(http.MethodGet)

	api.HandleFunc("/interviews/{id}", func(w http.ResponseWriter, r *http.Request) {
		rec, ok := s.lookupInterview(w, r)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, rec)
	}).Methods(http.MethodGet)

	api.HandleFunc("/interviews/{id}/report", func(w http.ResponseWriter, r *http.Request) {
		rec, ok := s.lookupInterview(w, r)
		if !ok {
			return
		}
		if rec.ReportPath == "" {
			writeJSONError(w, http.StatusNotFound, "report not available")
			return
		}

		cleanPath := filepath.Clean(rec.ReportPath)
		if cleanPath == "." || strings.Contains(cleanPath, "..") {
			writeJSONError(w, http.StatusForbidden, "invalid report path")
			return
		}

		f, err := os.Open(cleanPath)
		if err != nil {
			writeJSONError(w, http.StatusNotFound, "report file not found")
			return
		}
		defer func() { _ = f.Close() }()

		info, err := f.Stat()
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("stat report: %v", err))
			return
		}

		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		http.ServeContent(w, r, filepath.Base(cleanPath), info.ModTime(), f)
	}).Methods(http.MethodGet)
}

// lookupInterview writes the error response itself when it returns false.
func (s *Server) lookupInterview(w http.ResponseWriter, r *http.Request) (storage.Interview, bool) {
	if s.archive == nil {
		writeJSONError(w, http.StatusNotFound, "archive not configured")
		return storage.Interview{}, false
	}

	id := mux.Vars(r)["id"]
	if !validInterviewID(id) {
		writeJSONError(w, http.StatusForbidden, "invalid interview id")
		return storage.Interview{}, false
	}

	rec, err := s.archive.GetInterview(r.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, storage.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeJSONError(w, status, fmt.Sprintf("get interview: %v", err))
		return storage.Interview{}, false
	}
	return rec, true
}

func validInterviewID(id string) bool {
	return interviewIDPattern.MatchString(id)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
