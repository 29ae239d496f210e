package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/qrtrail/qrtrail/internal/analytics"
	"github.com/qrtrail/qrtrail/internal/lineage"
	"github.com/qrtrail/qrtrail/internal/middleware"
	"github.com/qrtrail/qrtrail/internal/scan"
	"github.com/qrtrail/qrtrail/internal/store"
)

type ScanHandler struct {
	recorder   *scan.Recorder
	tracker    *lineage.Tracker
	aggregator *analytics.Aggregator
	codes      *store.CodeStore
	logger     *slog.Logger
}

func NewScanHandler(recorder *scan.Recorder, tracker *lineage.Tracker, aggregator *analytics.Aggregator, codes *store.CodeStore, logger *slog.Logger) *ScanHandler {
	return &ScanHandler{
		recorder:   recorder,
		tracker:    tracker,
		aggregator: aggregator,
		codes:      codes,
		logger:     logger,
	}
}

type recordScanRequest struct {
	CodeID         string  `json:"code_id"`
	CarriedContent string  `json:"carried_content"`
	ReferrerScanID *string `json:"referrer_scan_id"`
}

// Record runs one scan through the pipeline and returns the stored event.
func (h *ScanHandler) Record(w http.ResponseWriter, r *http.Request) {
	var req recordScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.CodeID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "code_id is required"})
		return
	}

	ev, err := h.recorder.Record(r.Context(), scan.Request{
		CodeID:         req.CodeID,
		CarriedContent: req.CarriedContent,
		ReferrerScanID: req.ReferrerScanID,
		RemoteIP:       middleware.RealIP(r),
		UserAgent:      r.UserAgent(),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ev)
}

// Lineage returns the referral forest for a code.
func (h *ScanHandler) Lineage(w http.ResponseWriter, r *http.Request) {
	codeID := r.PathValue("id")
	if ok := h.requireCode(w, codeID); !ok {
		return
	}

	forest, err := h.tracker.BuildForest(codeID)
	if err != nil {
		h.logger.Error("build lineage", "code_id", codeID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to build lineage"})
		return
	}
	writeJSON(w, http.StatusOK, forest)
}

// Stats returns the aggregate rollup for a code.
func (h *ScanHandler) Stats(w http.ResponseWriter, r *http.Request) {
	codeID := r.PathValue("id")
	if ok := h.requireCode(w, codeID); !ok {
		return
	}

	rollup, err := h.aggregator.Aggregate(codeID)
	if err != nil {
		h.logger.Error("aggregate stats", "code_id", codeID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to aggregate stats"})
		return
	}
	writeJSON(w, http.StatusOK, rollup)
}

func (h *ScanHandler) requireCode(w http.ResponseWriter, codeID string) bool {
	code, err := h.codes.GetByID(codeID)
	if err != nil {
		h.logger.Error("get code", "code_id", codeID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get code"})
		return false
	}
	if code == nil {
		writeError(w, store.ErrUnknownCode)
		return false
	}
	return true
}
