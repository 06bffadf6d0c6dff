package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/arefkin/peercall/internal/config"
)

func TestHealthEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	srv := NewServer(config.Config{Port: "0", LogLevel: "error", VaultWorkers: 1})
	t.Cleanup(srv.Stop)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	srv.Router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if body := rec.Body.String(); body != `{"status":"OK"}` {
		t.Errorf("body = %s, want {\"status\":\"OK\"}", body)
	}
}
