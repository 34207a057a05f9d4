package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"smileslot/core/export"
	"smileslot/core/extractor"
	"smileslot/core/pipeline"
	"smileslot/core/slotkey"
	"smileslot/db"
	"smileslot/logger"
	"smileslot/model"
	"smileslot/storage"

	"github.com/gorilla/mux"
)

type apiHandler struct {
	deps Deps
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("failed to encode response", logger.ErrorField(err))
	}
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var (
		unavailable *db.StoreUnavailableError
		invalidKey  *db.InvalidKeyError
		badDate     *slotkey.InvalidDateError
		badBlock    *slotkey.InvalidTimeBlockError
	)
	switch {
	case errors.Is(err, extractor.ErrUnsupportedFeatureSet),
		errors.Is(err, pipeline.ErrNoFiles),
		errors.Is(err, pipeline.ErrInvalidDevice),
		errors.As(err, &badDate),
		errors.As(err, &badBlock),
		errors.As(err, &invalidKey):
		return http.StatusBadRequest
	case errors.As(err, &unavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, storage.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.ErrorField(err))
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func (h *apiHandler) health(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Slots.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *apiHandler) features(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"feature_set": model.FeatureSetEGeMAPSv02,
		"features":    model.FeatureNames,
	})
}

// processBatch POST /process/batch
func (h *apiHandler) processBatch(w http.ResponseWriter, r *http.Request) {
	var req model.BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	result, err := h.deps.Orchestrator.Process(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// processVaultData POST /process/vault-data
func (h *apiHandler) processVaultData(w http.ResponseWriter, r *http.Request) {
	var req model.VaultDataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	result, err := h.deps.Orchestrator.ProcessDay(r.Context(), h.deps.Lister, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *apiHandler) getBatch(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["batch_id"]
	if h.deps.Batches == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "batch cache disabled"})
		return
	}
	result, err := h.deps.Batches.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if result == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: fmt.Sprintf("batch %s not found", id)})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// dayVars validates {device_id} and {date}.
func dayVars(r *http.Request) (string, string, error) {
	vars := mux.Vars(r)
	deviceID, date := vars["device_id"], vars["date"]
	if _, err := slotkey.ParseDate(date); err != nil {
		return "", "", &slotkey.InvalidDateError{Path: r.URL.Path, Value: date}
	}
	return deviceID, date, nil
}

type dayResponse struct {
	DeviceID      string                  `json:"device_id"`
	Date          string                  `json:"date"`
	Records       []*model.TimelineRecord `json:"records"`
	MissingBlocks []string                `json:"missing_blocks"` // half-hour blocks with no record
}

func missingBlocks(recs []*model.TimelineRecord) []string {
	seen := make(map[string]bool, len(recs))
	for _, rec := range recs {
		seen[rec.TimeBlock] = true
	}
	missing := []string{}
	for _, block := range slotkey.DayBlocks() {
		if !seen[block] {
			missing = append(missing, block)
		}
	}
	return missing
}

func (h *apiHandler) listDay(w http.ResponseWriter, r *http.Request) {
	deviceID, date, err := dayVars(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	recs, err := h.deps.Slots.ListByDate(r.Context(), deviceID, date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if recs == nil {
		recs = []*model.TimelineRecord{}
	}
	writeJSON(w, http.StatusOK, dayResponse{
		DeviceID:      deviceID,
		Date:          date,
		Records:       recs,
		MissingBlocks: missingBlocks(recs),
	})
}

func (h *apiHandler) getSlot(w http.ResponseWriter, r *http.Request) {
	deviceID, date, err := dayVars(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	block := mux.Vars(r)["time_block"]
	if err := slotkey.ValidateTimeBlock(block); err != nil {
		writeError(w, r, &slotkey.InvalidTimeBlockError{Path: r.URL.Path, Value: block})
		return
	}
	rec, err := h.deps.Slots.Get(r.Context(), deviceID, date, block)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "slot not found"})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *apiHandler) exportDay(w http.ResponseWriter, r *http.Request) {
	deviceID, date, err := dayVars(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	recs, err := h.deps.Slots.ListByDate(r.Context(), deviceID, date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if len(recs) == 0 {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no slots recorded for this day"})
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(deviceID, date)))
	if err := export.WriteDay(w, recs); err != nil {
		// headers are already sent
		logger.Error("export failed",
			logger.String("deviceId", deviceID),
			logger.String("date", date),
			logger.ErrorField(err))
	}
}
