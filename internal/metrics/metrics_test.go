package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRegistersCollectorsIndependently(t *testing.T) {
	a, b := New(), New()

	a.MessagesAppended.WithLabelValues("user").Inc()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.MessagesAppended.WithLabelValues("user")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.MessagesAppended.WithLabelValues("user")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.RepliesPending.Set(2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "chatbot_replies_pending 2")
}
