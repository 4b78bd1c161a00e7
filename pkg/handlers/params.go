package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-adsync/pkg/models"
)

// ParseID extracts and validates the {id} path parameter.
// Returns the parsed UUID and true on success, or uuid.Nil and false on error
// (after writing an error response).
func ParseID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "id", "invalid_id", "Invalid ID format", logger)
}

// parseUUID is the internal helper that does the actual parsing work.
func parseUUID(w http.ResponseWriter, r *http.Request, pathParam, errorCode, errorMessage string, logger *zap.Logger) (uuid.UUID, bool) {
	idStr := r.PathValue(pathParam)
	id, err := uuid.Parse(idStr)
	if err != nil {
		writeError(w, logger, http.StatusBadRequest, errorCode, errorMessage)
		return uuid.Nil, false
	}
	return id, true
}

// ParseDateRange reads the since/until query parameters (YYYY-MM-DD).
// Both absent yields nil. One without the other, or a malformed day, writes
// a 400 and returns false.
func ParseDateRange(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (*models.DateRange, bool) {
	since := r.URL.Query().Get("since")
	until := r.URL.Query().Get("until")
	if since == "" && until == "" {
		return nil, true
	}
	if since == "" || until == "" {
		writeError(w, logger, http.StatusBadRequest, "invalid_date_range", "Both since and until are required")
		return nil, false
	}
	dr, err := models.ParseDateRange(since, until)
	if err != nil {
		writeError(w, logger, http.StatusBadRequest, "invalid_date_range", err.Error())
		return nil, false
	}
	return &dr, true
}

// queryInt returns the integer query parameter key, or def when it is
// missing or not a positive number.
func queryInt(r *http.Request, key string, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n <= 0 {
		return def
	}
	return n
}
