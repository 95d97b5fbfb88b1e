package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveCountsOutcomes(t *testing.T) {
	m := New(false)
	ctx := context.Background()
	m.Observe(ctx, "create_form", true, 3*time.Millisecond)
	m.Observe(ctx, "create_form", false, time.Millisecond)
	m.Observe(ctx, "create_form", true, time.Millisecond)
	m.Observe(ctx, "", true, time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.operations.WithLabelValues("create_form", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("create_form", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.operationDuration))
}

func TestMiddlewareLabelsByRouteTemplate(t *testing.T) {
	m := New(false)
	r := mux.NewRouter()
	r.Use(m.Middleware)
	r.HandleFunc("/form/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Handle("/metrics", m.Handler())

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/form/"+id, nil))
		require.Equal(t, http.StatusTeapot, rec.Code)
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/form/{id}", "418")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.httpInFlight))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `formcore_http_requests_total{method="GET",route="/form/{id}",status="418"} 2`))
	assert.Equal(t, 1, testutil.CollectAndCount(m.httpRequests))
}

func TestNewWithRuntimeCollectors(t *testing.T) {
	m := New(true)
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "go_goroutines")
}
