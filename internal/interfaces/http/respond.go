package http

import (
	"encoding/json"
	"net/http"

	"cloud.google.com/go/civil"

	"bankledger/internal/shared/logger"
)

// maxBodyBytes caps request bodies; provider batches can be large.
const maxBodyBytes = 16 << 20

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeInternalError logs err with the request logger and hides it from the
// client.
func writeInternalError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	log := logger.FromContext(r.Context())
	log.Error().Err(err).Str("path", r.URL.Path).Msg(msg)
	writeError(w, http.StatusInternalServerError, msg)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(v)
}

// parseDateParam reads a YYYY-MM-DD query parameter.
func parseDateParam(r *http.Request, name string) (civil.Date, bool) {
	d, err := civil.ParseDate(r.URL.Query().Get(name))
	if err != nil {
		return civil.Date{}, false
	}
	return d, true
}

// HandleHealth reports liveness.
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
