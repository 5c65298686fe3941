package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_RouteLabelsAndUnmatched(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Metrics())
	r.GET("/sessions/:id", func(c *gin.Context) { c.String(http.StatusOK, "hello") })
	r.PUT("/sessions/:id/email", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	baseRoute := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/sessions/:id", "200"))
	baseNoBody := testutil.ToFloat64(httpReqs.WithLabelValues("PUT", "/sessions/:id/email", "204"))
	baseMiss := testutil.ToFloat64(httpReqs.WithLabelValues("GET", unmatchedPath, "404"))

	for _, tc := range []struct {
		method, path string
		code         int
	}{
		{http.MethodGet, "/sessions/abc", http.StatusOK},
		{http.MethodGet, "/sessions/def", http.StatusOK},
		{http.MethodPut, "/sessions/abc/email", http.StatusNoContent},
		{http.MethodGet, "/nope/123", http.StatusNotFound},
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
		if w.Code != tc.code {
			t.Fatalf("%s %s -> %d; want %d", tc.method, tc.path, w.Code, tc.code)
		}
	}

	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/sessions/:id", "200")); got != baseRoute+2 {
		t.Fatalf("route counter = %v; want %v", got, baseRoute+2)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("PUT", "/sessions/:id/email", "204")); got != baseNoBody+1 {
		t.Fatalf("no-body counter = %v; want %v", got, baseNoBody+1)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", unmatchedPath, "404")); got != baseMiss+1 {
		t.Fatalf("unmatched counter = %v; want %v", got, baseMiss+1)
	}
	if n := testutil.ToFloat64(httpInflight); n != 0 {
		t.Fatalf("inflight = %v; want 0", n)
	}
}
