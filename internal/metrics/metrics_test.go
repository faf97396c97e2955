package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveStackOperation(t *testing.T) {
	before := testutil.ToFloat64(stackOperationsTotal.WithLabelValues("registry", "deploy", "created"))
	ObserveStackOperation("registry", "deploy", "created", time.Now().Add(-time.Second))
	after := testutil.ToFloat64(stackOperationsTotal.WithLabelValues("registry", "deploy", "created"))
	assert.Equal(t, before+1, after)
	assert.Greater(t, testutil.ToFloat64(stackLastSuccess.WithLabelValues("registry", "deploy")), 0.0)
}

func TestWriteTextfile(t *testing.T) {
	ObserveStackOperation("compute", "deploy", "error", time.Now())

	path := filepath.Join(t.TempDir(), "frontstack.prom")
	require.NoError(t, WriteTextfile(path))

	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(body), `frontstack_stack_operations_total{operation="deploy",result="error",unit="compute"}`)
}

func TestServer_Endpoints(t *testing.T) {
	ready := errors.New("web root missing")
	srv := NewServer(":0", func() error { return ready })

	tests := []struct {
		path string
		want int
	}{
		{"/healthz", http.StatusOK},
		{"/readyz", http.StatusServiceUnavailable},
		{"/metrics", http.StatusOK},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		assert.Equal(t, tt.want, rec.Code, tt.path)
	}

	ready = nil
	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
