package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_CountersUseRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Metrics())
	r.GET("/books/:id", func(c *gin.Context) { c.String(http.StatusOK, "hello") })
	r.GET("/statusonly", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	baseOK := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/books/:id", "200"))
	base404 := testutil.ToFloat64(httpReqs.WithLabelValues("GET", unmatchedRoute, "404"))

	for _, path := range []string{"/books/b1", "/books/b2", "/does-not-exist", "/statusonly"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/books/:id", "200")); got != baseOK+2 {
		t.Fatalf("counter /books/:id 200 = %v; want %v", got, baseOK+2)
	}
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", unmatchedRoute, "404")); got != base404+1 {
		t.Fatalf("counter unmatched 404 = %v; want %v", got, base404+1)
	}
	if got := testutil.ToFloat64(httpInflight); got != 0 {
		t.Fatalf("httpInflight = %v; want 0", got)
	}
}

func TestReject_LabelsByRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/admin/stats", func(c *gin.Context) {
		reject(c, rejectForbidden)
		c.AbortWithStatus(http.StatusForbidden)
	})
	r.NoRoute(func(c *gin.Context) {
		reject(c, rejectUnauthorized)
		c.AbortWithStatus(http.StatusUnauthorized)
	})

	baseForbidden := testutil.ToFloat64(httpRejected.WithLabelValues(rejectForbidden, "/admin/stats"))
	baseUnmatched := testutil.ToFloat64(httpRejected.WithLabelValues(rejectUnauthorized, unmatchedRoute))

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/admin/stats", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/users/64b7f0c2a1b2c3d4e5f60718", nil))

	if got := testutil.ToFloat64(httpRejected.WithLabelValues(rejectForbidden, "/admin/stats")); got != baseForbidden+1 {
		t.Fatalf("forbidden /admin/stats = %v; want %v", got, baseForbidden+1)
	}
	if got := testutil.ToFloat64(httpRejected.WithLabelValues(rejectUnauthorized, unmatchedRoute)); got != baseUnmatched+1 {
		t.Fatalf("unauthorized unmatched = %v; want %v", got, baseUnmatched+1)
	}
}
