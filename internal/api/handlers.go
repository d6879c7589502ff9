package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ftmeeet/CAS/internal/job"
	"github.com/ftmeeet/CAS/internal/results"
	"github.com/ftmeeet/CAS/internal/screening"
	"github.com/ftmeeet/CAS/internal/tle"
)

// Practical ceiling for an uploaded target TLE file.
const maxTargetUploadBytes = 10 << 20

func (s *Server) handleStartAnalysis(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Controller.Start(); err != nil {
		if errors.Is(err, job.ErrAlreadyRunning) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (s *Server) handleStopAnalysis(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Controller.Stop(); err != nil {
		if errors.Is(err, job.ErrNotRunning) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "stopping"})
}

func (s *Server) handleAnalysisStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Controller.Status())
}

// resultsPayload wraps the latest persisted run. RunID is empty and the
// report zeroed when no run has completed yet.
type resultsPayload struct {
	RunID  string            `json:"run_id"`
	Report *screening.Report `json:"report"`
}

func (s *Server) handleAnalysisResults(w http.ResponseWriter, r *http.Request) {
	report, runID, err := s.deps.Results.LatestRun(r.Context())
	if err != nil {
		s.logger.Error("loading latest run", "error", err)
		writeError(w, http.StatusInternalServerError, "loading results failed")
		return
	}
	if report == nil {
		report = &screening.Report{
			Events: []screening.Event{},
			Stats:  screening.Stats{Filtered: map[string]int{}},
		}
	}

	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="predictions.csv"`)
		if err := results.WriteCSV(w, report.Events); err != nil {
			s.logger.Error("writing results csv", "error", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, resultsPayload{RunID: runID, Report: report})
}

func (s *Server) handleUploadTargets(w http.ResponseWriter, r *http.Request) {
	body := io.LimitReader(r.Body, maxTargetUploadBytes)
	entries, err := tle.Parse(body, s.logger)
	if err != nil {
		writeError(w, http.StatusBadRequest, "parsing target TLEs: "+err.Error())
		return
	}
	if len(entries) == 0 {
		writeError(w, http.StatusBadRequest, "no valid TLE entries in upload")
		return
	}

	s.deps.Catalog.SetTargets(entries)
	s.logger.Info("target set replaced", "targets", len(entries))
	writeJSON(w, http.StatusOK, map[string]int{"targets": len(entries)})
}

// satelliteSummary is the catalog listing row.
type satelliteSummary struct {
	NORADID int       `json:"norad_id"`
	Name    string    `json:"name"`
	Epoch   time.Time `json:"epoch"`
}

func (s *Server) handleListSatellites(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	ds := s.deps.Catalog.Get()
	if ds == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"count":      0,
			"satellites": []satelliteSummary{},
		})
		return
	}

	// Cap against the catalog so an absurd limit cannot drive the
	// allocation.
	sats := make([]satelliteSummary, 0, min(limit, len(ds.Satellites)))
	for _, e := range ds.Satellites {
		if len(sats) == limit {
			break
		}
		sats = append(sats, satelliteSummary{NORADID: e.NORADID, Name: e.Name, Epoch: e.Epoch})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":      len(ds.Satellites),
		"source":     ds.Source,
		"fetched_at": ds.FetchedAt.UTC(),
		"satellites": sats,
	})
}

func (s *Server) handleGetSatellite(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "noradID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "norad_id must be an integer")
		return
	}

	ds := s.deps.Catalog.Get()
	if ds != nil {
		for _, e := range ds.Satellites {
			if e.NORADID == id {
				writeJSON(w, http.StatusOK, e)
				return
			}
		}
	}
	writeError(w, http.StatusNotFound, "satellite not found")
}
