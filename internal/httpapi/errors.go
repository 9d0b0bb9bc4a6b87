package httpapi

import (
	"encoding/json"
	"net/http"

	"inferd/pkg/types"
)

// writeJSONError writes the consistent JSON error envelope.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Detail: msg})
}
