package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_CountersAndPathFallback(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Metrics())

	// Writes a body, so the size histogram path with size >= 0 runs.
	r.GET("/records", func(c *gin.Context) {
		c.String(http.StatusOK, "[]")
	})
	// 204 with no body leaves Writer.Size() at -1, which must be skipped.
	r.GET("/empty", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	// Collectors are package globals, so read baselines first in case other
	// tests in the package already bumped them.
	baseOK := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/records", "200"))
	base404 := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/nope", "404"))

	for _, tc := range []struct {
		path string
		want int
	}{
		{"/records", http.StatusOK},
		{"/nope", http.StatusNotFound},
		{"/empty", http.StatusNoContent},
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tc.path, nil))
		if w.Code != tc.want {
			t.Fatalf("GET %s -> %d; want %d", tc.path, w.Code, tc.want)
		}
	}

	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/records", "200")); got != baseOK+1 {
		t.Fatalf("counter /records 200 = %v; want %v", got, baseOK+1)
	}
	// Unmatched routes are labelled with the raw URL path.
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/nope", "404")); got != base404+1 {
		t.Fatalf("counter 404 fallback = %v; want %v", got, base404+1)
	}
	// Gauge must drop back to zero once all requests complete.
	if inFlight := testutil.ToFloat64(httpInflight); inFlight != 0 {
		t.Fatalf("httpInflight = %v; want 0", inFlight)
	}
}
