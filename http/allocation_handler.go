package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"facility-allocator/domain"
	"facility-allocator/service"
)

const maxBatchBytes = 32 << 20

type AllocationHandler struct {
	service  *service.AllocationService
	maxBytes int64
	log      zerolog.Logger
}

func NewAllocationHandler(service *service.AllocationService, log zerolog.Logger) *AllocationHandler {
	return &AllocationHandler{
		service:  service,
		maxBytes: maxBatchBytes,
		log:      log.With().Str("handler", "allocation").Logger(),
	}
}

// CreateAllocation runs one allocation pass over the posted batch and
// returns the report.
func (h *AllocationHandler) CreateAllocation(w http.ResponseWriter, r *http.Request) {
	contentType := r.Header.Get("Content-Type")
	if !strings.Contains(contentType, "application/json") {
		h.writeError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return
	}

	var batch domain.Batch
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBytes)).Decode(&batch); err != nil {
		h.log.Debug().Err(err).Msg("Failed to decode batch")
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	report, err := h.service.Allocate(r.Context(), batch)
	if err != nil {
		if errors.Is(err, service.ErrInvalidBatch) {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error().Err(err).Msg("Allocation failed")
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, report)
}

func (h *AllocationHandler) Health(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON encodes into a buffer first so a failed encode never leaves a
// half-written 200 behind.
func (h *AllocationHandler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		h.log.Error().Err(err).Msg("Failed to write response")
	}
}

func (h *AllocationHandler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
