package logging

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_InvalidLevelFallsBack(t *testing.T) {
	l, err := New("chatty")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !l.Core().Enabled(zap.InfoLevel) || l.Core().Enabled(zap.DebugLevel) {
		t.Fatalf("expected info level fallback")
	}
}

func TestFromContext_DefaultsToNop(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatal("expected a logger")
	}
}

func TestMiddleware_LogsStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zap.InfoLevel)
	r := gin.New()
	r.Use(Middleware(zap.New(core)))
	r.GET("/ping", func(c *gin.Context) {
		FromContext(c.Request.Context()).Info("inside")
		c.Status(http.StatusTeapot)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	if logs.FilterMessage("inside").Len() != 1 {
		t.Fatalf("expected request-scoped logger to be injected")
	}
	entries := logs.FilterMessage("request completed").All()
	if len(entries) != 1 {
		t.Fatalf("expected one completion log, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["status"]; got != int64(http.StatusTeapot) {
		t.Fatalf("expected status 418 logged, got %v", got)
	}
}
