// backend/src/utils/http_utils.go
package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/username/trackfolio/backend/src/logger"
)

// GenerateETag creates a SHA256 hash of the JSON representation of the data.
func GenerateETag(data interface{}) (string, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("failed to marshal data for ETag generation: %w", err)
	}
	hash := sha256.Sum256(jsonData)
	return hex.EncodeToString(hash[:]), nil
}

// SendJSON writes data as a JSON response with the given status.
func SendJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.L.Error("Failed to encode JSON response", "error", err)
	}
}

// SendJSONWithETag answers 304 when the client already holds the same representation.
func SendJSONWithETag(w http.ResponseWriter, r *http.Request, data interface{}) {
	etag, err := GenerateETag(data)
	if err != nil {
		logger.L.Error("Failed to generate ETag", "error", err)
		SendJSON(w, data, http.StatusOK)
		return
	}
	quoted := fmt.Sprintf(`"%s"`, etag)
	w.Header().Set("ETag", quoted)
	if r.Header.Get("If-None-Match") == quoted {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	SendJSON(w, data, http.StatusOK)
}

// SendJSONError sends a JSON formatted error response.
func SendJSONError(w http.ResponseWriter, message string, statusCode int) {
	logger.L.Warn("Sending JSON error to client", "message", message, "statusCode", statusCode)
	SendJSON(w, map[string]string{"error": message}, statusCode)
}
