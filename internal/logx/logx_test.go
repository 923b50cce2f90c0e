package logx

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
)

func TestRequestLoggerTagsRequestID(t *testing.T) {
	var buf bytes.Buffer
	base := newWith(&buf, true)

	var inner bool
	h := middleware.RequestID(RequestLogger(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		FromContext(r.Context()).Info("inside")
		inner = true
		w.WriteHeader(http.StatusTeapot)
	})))

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(middleware.RequestIDHeader, "rid-123")
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.True(t, inner)
	out := buf.String()
	assert.Contains(t, out, `"request_id":"rid-123"`)
	assert.Contains(t, out, `"msg":"inside"`)
	assert.Contains(t, out, `"status":418`)
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	assert.NotNil(t, FromContext(context.Background()))
}
