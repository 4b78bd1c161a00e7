package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseID(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name      string
		pathValue string
		wantOK    bool
	}{
		{name: "valid UUID", pathValue: "550e8400-e29b-41d4-a716-446655440000", wantOK: true},
		{name: "invalid UUID", pathValue: "not-a-uuid"},
		{name: "empty UUID", pathValue: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.SetPathValue("id", tt.pathValue)
			rec := httptest.NewRecorder()

			id, ok := ParseID(rec, req, logger)

			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.pathValue, id.String())
				return
			}
			assert.Equal(t, uuid.Nil, id)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp map[string]string
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			assert.Equal(t, "invalid_id", resp["error"])
		})
	}
}

func TestParseDateRange(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name    string
		query   string
		wantOK  bool
		wantNil bool
	}{
		{name: "absent", query: "", wantOK: true, wantNil: true},
		{name: "both", query: "?since=2026-10-01&until=2026-10-07", wantOK: true},
		{name: "since only", query: "?since=2026-10-01"},
		{name: "until only", query: "?until=2026-10-07"},
		{name: "malformed", query: "?since=01/10/2026&until=2026-10-07"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test"+tt.query, nil)
			rec := httptest.NewRecorder()

			dr, ok := ParseDateRange(rec, req, logger)

			assert.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				assert.Equal(t, http.StatusBadRequest, rec.Code)
				return
			}
			if tt.wantNil {
				assert.Nil(t, dr)
				return
			}
			require.NotNil(t, dr)
			assert.Equal(t, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), dr.Since)
			assert.Equal(t, time.Date(2026, 10, 7, 0, 0, 0, 0, time.UTC), dr.Until)
		})
	}
}

func TestQueryInt(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test?page=3&limit=abc&neg=-2", nil)

	assert.Equal(t, 3, queryInt(req, "page", 1))
	assert.Equal(t, 50, queryInt(req, "limit", 50))
	assert.Equal(t, 7, queryInt(req, "neg", 7))
	assert.Equal(t, 1, queryInt(req, "missing", 1))
}
