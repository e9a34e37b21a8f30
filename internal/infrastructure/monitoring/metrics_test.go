package monitoring

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordHandleCreated("make")
		m.RecordHandleDeleted()
		m.RecordAllocFailed()
		m.RecordDispatcherCreated("channel")
		m.RecordDispatcherDestroyed("channel")
		m.RecordSyscall("handle_close", "FX_OK", true, time.Millisecond)
		m.RecordPolicyViolation("new_channel", "deny")
		m.RecordChannelMessage()
		m.RecordPortPacket("signal_one")
		m.RecordHTTPRequest("GET", "/health", "200", time.Millisecond)
		NewTimer(m, "noop").Stop("FX_OK", true)
	})
}

func TestHandleAccounting(t *testing.T) {
	m := NewMetrics()

	m.RecordHandleCreated("make")
	m.RecordHandleCreated("dup")
	m.RecordHandleDeleted()
	m.RecordAllocFailed()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.HandlesLive))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.HandlesCreated.WithLabelValues("dup")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.HandleAllocsFailed))

	snap := m.GetSnapshot()
	assert.Equal(t, int64(1), snap.HandlesLive)
	assert.Equal(t, int64(2), snap.HandlesCreated)
	assert.Equal(t, int64(1), snap.AllocsFailed)
}

func TestSyscallSnapshot(t *testing.T) {
	m := NewMetrics()

	NewTimer(m, "channel_write").Stop("FX_OK", true)
	NewTimer(m, "channel_read").Stop("FX_ERR_SHOULD_WAIT", false)

	snap := m.GetSnapshot()
	assert.Equal(t, int64(2), snap.Syscalls)
	assert.Equal(t, int64(1), snap.SyscallErrors)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SyscallsTotal.WithLabelValues("channel_read", "FX_ERR_SHOULD_WAIT")))
}

func TestSeparateRegistries(t *testing.T) {
	a := NewMetrics()
	b := NewMetrics()

	a.RecordChannelMessage()

	assert.Equal(t, float64(1), testutil.ToFloat64(a.ChannelMessages))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.ChannelMessages))
}

func TestMiddlewareRecordsRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewMetrics()

	router := gin.New()
	router.Use(Middleware(m))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, path := range []string{"/health", "/missing"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, float64(1), testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "/health", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "unmatched", "404")))
}
