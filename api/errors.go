package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/TheoDgb/URLCustomDiscsAPI/pipeline"
)

type errorBody struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

var statusByOutcome = map[string]int{
	pipeline.OutcomeInvalidToken:  http.StatusUnauthorized,
	pipeline.OutcomeRateLimited:   http.StatusTooManyRequests,
	pipeline.OutcomeBusy:          http.StatusServiceUnavailable,
	pipeline.OutcomeValidation:    http.StatusBadRequest,
	pipeline.OutcomeAuthorization: http.StatusUnprocessableEntity,
	pipeline.OutcomeToolFailure:   http.StatusBadGateway,
	pipeline.OutcomeNotFound:      http.StatusNotFound,
	pipeline.OutcomeArchive:       http.StatusInternalServerError,
	pipeline.OutcomeQuotaExceeded: http.StatusInsufficientStorage,
	pipeline.OutcomeUpload:        http.StatusBadGateway,
}

// mapError returns the status, code and client message for err.
// Local archive faults carry only the category message; the detail is
// logged. Tool and upload failures keep their diagnostic.
func mapError(err error) (int, string, string) {
	code := pipeline.OutcomeOf(err)
	status, ok := statusByOutcome[code]
	if !ok {
		return http.StatusInternalServerError, pipeline.OutcomeInternal, "internal error"
	}
	msg := err.Error()
	if code == pipeline.OutcomeArchive {
		var se *pipeline.StageError
		if errors.As(err, &se) {
			msg = se.Kind.Error()
		}
	}
	return status, code, msg
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: msg, Code: code})
}
