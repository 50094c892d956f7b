package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSetGetUserID(t *testing.T) {
	ctx := context.Background()
	if GetUserID(ctx) != "" {
		t.Error("expected empty user ID on fresh context")
	}

	ctx = SetUserID(ctx, "user-1")
	if got := GetUserID(ctx); got != "user-1" {
		t.Errorf("expected user-1, got %s", got)
	}
}

func TestSetGetErrorCode(t *testing.T) {
	ctx := SetErrorCode(context.Background(), "item_not_found")
	if got := GetErrorCode(ctx); got != "item_not_found" {
		t.Errorf("expected item_not_found, got %s", got)
	}
}

type logLine struct {
	Level     string `json:"level"`
	Msg       string `json:"msg"`
	Method    string `json:"method"`
	Path      string `json:"path"`
	Status    int    `json:"status"`
	ErrorCode string `json:"error_code"`
	UserID    string `json:"user_id"`
}

func captureLog(t *testing.T, handler http.HandlerFunc, req *http.Request) logLine {
	t.Helper()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	rec := httptest.NewRecorder()
	Logging(logger)(handler).ServeHTTP(rec, req)

	var line logLine
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("failed to decode log line %q: %v", buf.String(), err)
	}
	return line
}

func TestLogging_Success(t *testing.T) {
	line := captureLog(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}, httptest.NewRequest(http.MethodGet, "/health", nil))

	if line.Level != "INFO" {
		t.Errorf("expected INFO level, got %s", line.Level)
	}
	if line.Status != http.StatusOK {
		t.Errorf("expected status 200, got %d", line.Status)
	}
	if line.Path != "/health" {
		t.Errorf("expected path /health, got %s", line.Path)
	}
}

// TestLogging_ErrorCode verifies the late-bound context set by a
// handler reaches the access log entry.
func TestLogging_ErrorCode(t *testing.T) {
	line := captureLog(t, func(w http.ResponseWriter, r *http.Request) {
		ctx := SetErrorCode(r.Context(), "item_not_found")
		ctx = SetUserID(ctx, "user-1")
		UpdateResponseContext(w, ctx)
		w.WriteHeader(http.StatusNotFound)
	}, httptest.NewRequest(http.MethodPost, "/checkout", nil))

	if line.Level != "WARN" {
		t.Errorf("expected WARN level for 4xx, got %s", line.Level)
	}
	if line.ErrorCode != "item_not_found" {
		t.Errorf("expected error_code item_not_found, got %q", line.ErrorCode)
	}
	if line.UserID != "user-1" {
		t.Errorf("expected user_id user-1, got %q", line.UserID)
	}
}

func TestLogging_ServerError(t *testing.T) {
	line := captureLog(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}, httptest.NewRequest(http.MethodGet, "/checkout", nil))

	if line.Level != "ERROR" {
		t.Errorf("expected ERROR level for 5xx, got %s", line.Level)
	}
}

func TestResponseWriter_FirstStatusWins(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newResponseWriter(rec)

	rw.WriteHeader(http.StatusNotFound)
	rw.WriteHeader(http.StatusOK)

	if rw.statusCode != http.StatusNotFound {
		t.Errorf("expected first status to stick, got %d", rw.statusCode)
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/", "/"},
		{"/checkout", "/checkout"},
		{"/internal/stripe", "/internal/stripe"},
		{"/metrics", "/metrics"},
		{"/audit/intents/int-123", "/audit/intents/{id}"},
		{"/audit/users/user-9", "/audit/users/{id}"},
		{"/audit/intents", "/audit/intents"},
		{"/unknown/deep/path", "/other"},
	}

	for _, tt := range tests {
		if got := normalizePath(tt.path); got != tt.want {
			t.Errorf("normalizePath(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}
