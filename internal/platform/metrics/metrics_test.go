package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestHTTPMiddleware_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(HTTPMiddleware)
	r.Get("/{postId}/likes", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	before := testutil.ToFloat64(httpRequests.WithLabelValues(http.MethodGet, "/{postId}/likes", "200"))
	req := httptest.NewRequest(http.MethodGet, "/5e8f1c2a/likes", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	after := testutil.ToFloat64(httpRequests.WithLabelValues(http.MethodGet, "/{postId}/likes", "200"))
	if after-before != 1 {
		t.Fatalf("expected counter to grow by 1, got %v", after-before)
	}
}

func TestCommentsDeletedOutcomes(t *testing.T) {
	before := testutil.ToFloat64(CommentsDeleted.WithLabelValues(OutcomeCascade))
	CommentsDeleted.WithLabelValues(OutcomeCascade).Inc()
	if got := testutil.ToFloat64(CommentsDeleted.WithLabelValues(OutcomeCascade)); got != before+1 {
		t.Fatalf("expected %v, got %v", before+1, got)
	}
}
