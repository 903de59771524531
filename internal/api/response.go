package api

import (
	"encoding/json"
	"net/http"

	"bookaway/internal/models"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind string) int {
	switch kind {
	case models.KindInvalidRange, models.KindInvalidArgument:
		return http.StatusBadRequest
	case models.KindNotFound:
		return http.StatusNotFound
	case models.KindSeasonNotOpen, models.KindAlreadyFinalized, models.KindInvalidTransition:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeServiceError reports a service error with the status of its kind.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	kind := models.ErrorKind(err)
	status := statusFor(kind)

	ev := s.log.Debug()
	if status == http.StatusInternalServerError {
		ev = s.log.Error()
	}
	ev.Err(err).
		Str("request_id", requestIDFrom(r.Context())).
		Str("user_id", identityFrom(r.Context()).UserID).
		Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("kind", kind).
		Msg("request failed")

	writeJSON(w, status, ErrorResponse{Error: err.Error(), Kind: kind})
}
