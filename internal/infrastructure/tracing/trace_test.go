package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestStartSpanContinuesTrace(t *testing.T) {
	tracer := New("test", nil)
	defer tracer.Close()

	root, ctx := tracer.StartSpan(context.Background(), "root")
	child, ctx := tracer.StartSpan(ctx, "child")

	assert.Equal(t, root.TraceID, child.TraceID)
	assert.Equal(t, root.SpanID, child.ParentID)
	assert.Equal(t, child.SpanID, SpanIDFrom(ctx))
	assert.Empty(t, root.ParentID)
}

func TestFinishLogsSpan(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	tracer := New("test", zap.New(core))
	defer tracer.Close()

	span, _ := tracer.StartSpan(context.Background(), "standby_bucket_changed")
	span.SetTag("uid", "10123")
	span.SetError(errors.New("boom"))
	tracer.Finish(span)

	require.Eventually(t, func() bool {
		return logs.FilterMessage("span completed with error").Len() == 1
	}, time.Second, 5*time.Millisecond)

	entry := logs.FilterMessage("span completed with error").All()[0]
	assert.Equal(t, "standby_bucket_changed", entry.ContextMap()["operation"])
	assert.Equal(t, "10123", entry.ContextMap()["uid"])
}

func TestFinishAfterClose(t *testing.T) {
	tracer := New("test", nil)
	tracer.Close()
	tracer.Close()

	span, _ := tracer.StartSpan(context.Background(), "late")
	assert.NotPanics(t, func() { tracer.Finish(span) })
}

func TestHTTPMiddlewarePropagatesHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tracer := New("test", nil)
	defer tracer.Close()

	router := gin.New()
	router.Use(HTTPMiddleware(tracer))
	var seen string
	router.GET("/levels", func(c *gin.Context) {
		seen = TraceIDFrom(c.Request.Context()).String()
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/levels", nil)
	req.Header.Set(HeaderTraceID, "trc_upstream")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, "trc_upstream", seen)
	assert.Equal(t, "trc_upstream", w.Header().Get(HeaderTraceID))
	assert.NotEmpty(t, w.Header().Get(HeaderSpanID))
}
