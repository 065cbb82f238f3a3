package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/aidecisionlog/server/internal/decisionlog/types"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, types.ErrorResponse{
		Status:  "error",
		Error:   code,
		Message: msg,
	})
}
