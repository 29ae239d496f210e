package handler

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/qrtrail/qrtrail/internal/chunker"
)

type ChunkHandler struct {
	assembler *chunker.Assembler
	logger    *slog.Logger
}

func NewChunkHandler(assembler *chunker.Assembler, logger *slog.Logger) *ChunkHandler {
	return &ChunkHandler{assembler: assembler, logger: logger}
}

type acceptPartRequest struct {
	Part string `json:"part"`
}

// AcceptPart records one scanned part string and reports the group's
// completeness.
func (h *ChunkHandler) AcceptPart(w http.ResponseWriter, r *http.Request) {
	var req acceptPartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	part, err := chunker.DecodePart(req.Part)
	if err != nil {
		writeError(w, err)
		return
	}

	state, err := h.assembler.Accept(part)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"group_id": part.GroupID,
		"state":    string(state),
	})
}

func (h *ChunkHandler) GroupState(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("id")
	state, err := h.assembler.State(groupID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"group_id": groupID,
		"state":    string(state),
	})
}

// Reassemble returns the original payload for a complete group.
func (h *ChunkHandler) Reassemble(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("id")
	content, err := h.assembler.Reassemble(groupID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"group_id": groupID,
		"content":  base64.StdEncoding.EncodeToString(content),
	})
}

// Reset clears a conflicted group so its parts can be resubmitted.
func (h *ChunkHandler) Reset(w http.ResponseWriter, r *http.Request) {
	groupID := r.PathValue("id")
	if err := h.assembler.Reset(groupID); err != nil {
		h.logger.Error("reset group", "group_id", groupID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to reset group"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
