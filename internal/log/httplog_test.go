package log

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestHTTPMiddleware(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core).Sugar()

	var seen HTTPLogEntry
	handler := HTTPMiddleware(logger, func(_ *http.Request, e HTTPLogEntry) { seen = e })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/fail" {
				http.Error(w, "boom", http.StatusInternalServerError)
				return
			}
			w.Write([]byte("hello"))
		}))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ok", nil))
	if seen.Status != http.StatusOK || seen.Size != 5 || seen.Path != "/ok" {
		t.Errorf("entry = %+v", seen)
	}

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/fail", nil))
	if seen.Status != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", seen.Status)
	}

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("logged %d entries, want 2", len(entries))
	}
	if entries[0].Level != zap.InfoLevel || entries[1].Level != zap.ErrorLevel {
		t.Errorf("levels = %v, %v; want info, error", entries[0].Level, entries[1].Level)
	}
}
