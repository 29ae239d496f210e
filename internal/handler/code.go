package handler

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/qrtrail/qrtrail/internal/chunker"
	"github.com/qrtrail/qrtrail/internal/model"
	"github.com/qrtrail/qrtrail/internal/store"
	"github.com/qrtrail/qrtrail/internal/token"
)

type CodeHandler struct {
	codes  *store.CodeStore
	parts  *store.PartStore
	codec  *token.Codec
	logger *slog.Logger
}

func NewCodeHandler(codes *store.CodeStore, parts *store.PartStore, codec *token.Codec, logger *slog.Logger) *CodeHandler {
	return &CodeHandler{codes: codes, parts: parts, codec: codec, logger: logger}
}

type createCodeRequest struct {
	Kind      string     `json:"kind"`
	Tier      string     `json:"tier"`
	MaxScans  *int64     `json:"max_scans"`
	ExpiresAt *time.Time `json:"expires_at"`
}

func (h *CodeHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createCodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}

	kind := model.CodeKind(req.Kind)
	switch kind {
	case model.KindSingle, model.KindChunked, model.KindToken:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "kind must be single, chunked, or token"})
		return
	}
	if req.MaxScans != nil && *req.MaxScans < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "max_scans must be positive"})
		return
	}
	if req.Tier == "" {
		req.Tier = "free"
	}

	code, err := h.codes.Create(kind, req.Tier, req.MaxScans, req.ExpiresAt)
	if err != nil {
		h.logger.Error("create code", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create code"})
		return
	}
	writeJSON(w, http.StatusCreated, code)
}

func (h *CodeHandler) Get(w http.ResponseWriter, r *http.Request) {
	code, err := h.codes.GetByID(r.PathValue("id"))
	if err != nil {
		h.logger.Error("get code", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get code"})
		return
	}
	if code == nil {
		writeError(w, store.ErrUnknownCode)
		return
	}
	writeJSON(w, http.StatusOK, code)
}

type issueTokenRequest struct {
	Tag        string          `json:"tag"`
	Payload    json.RawMessage `json:"payload"`
	TTLSeconds int64           `json:"ttl_seconds"`
	SingleUse  bool            `json:"single_use"`
}

// IssueToken mints a signed token as the carried content of a code.
func (h *CodeHandler) IssueToken(w http.ResponseWriter, r *http.Request) {
	codeID := r.PathValue("id")
	code, err := h.codes.GetByID(codeID)
	if err != nil {
		h.logger.Error("get code for token", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get code"})
		return
	}
	if code == nil {
		writeError(w, store.ErrUnknownCode)
		return
	}

	var req issueTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	if req.TTLSeconds <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "ttl_seconds must be positive"})
		return
	}

	payload, err := token.ParsePayload(req.Tag, req.Payload)
	if err != nil {
		writeError(w, err)
		return
	}

	tokenString, err := h.codec.Encode(payload, time.Duration(req.TTLSeconds)*time.Second, req.SingleUse, &codeID)
	if err != nil {
		h.logger.Error("issue token", "code_id", codeID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to issue token"})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"token": tokenString})
}

type splitRequest struct {
	Content      string `json:"content"` // base64
	MaxChunkSize int    `json:"max_chunk_size"`
}

type splitResponse struct {
	GroupID    string   `json:"group_id"`
	TotalParts int      `json:"total_parts"`
	Parts      []string `json:"parts"`
}

// Split partitions a payload into encoded parts for a chunked code and
// registers the group so scanned parts have somewhere to land.
func (h *CodeHandler) Split(w http.ResponseWriter, r *http.Request) {
	codeID := r.PathValue("id")
	code, err := h.codes.GetByID(codeID)
	if err != nil {
		h.logger.Error("get code for split", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to get code"})
		return
	}
	if code == nil {
		writeError(w, store.ErrUnknownCode)
		return
	}

	var req splitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON"})
		return
	}
	content, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "content must be base64"})
		return
	}
	if len(content) == 0 || req.MaxChunkSize < 1 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "content and max_chunk_size are required"})
		return
	}

	groupID, parts, err := chunker.Split(content, req.MaxChunkSize)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := h.parts.CreateGroup(groupID, len(parts), parts[0].PayloadChecksum); err != nil {
		h.logger.Error("register part group", "group_id", groupID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to register group"})
		return
	}

	encoded := make([]string, 0, len(parts))
	for i := range parts {
		encoded = append(encoded, chunker.EncodePart(&parts[i]))
	}
	writeJSON(w, http.StatusCreated, splitResponse{
		GroupID:    groupID,
		TotalParts: len(parts),
		Parts:      encoded,
	})
}
