package http

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshx-org/fiber/internal/fx"
	"github.com/meshx-org/fiber/internal/infrastructure/config"
	"github.com/meshx-org/fiber/internal/infrastructure/monitoring"
	"github.com/meshx-org/fiber/internal/infrastructure/tracing"
	"github.com/meshx-org/fiber/internal/kernel"
	"github.com/meshx-org/fiber/internal/kernel/object"
	"github.com/meshx-org/fiber/internal/kernel/userboot"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	k      *kernel.Kernel
	h      *Handlers
	router *gin.Engine
}

func newFixture(t *testing.T, opts kernel.Options) *fixture {
	t.Helper()
	opts.Config = config.KernelConfig{MaxHandles: 64}
	k := kernel.New(opts)
	t.Cleanup(k.Shutdown)

	h := NewHandlers(k)
	router := gin.New()
	h.Register(router)
	return &fixture{k: k, h: h, router: router}
}

func (f *fixture) get(t *testing.T, path string) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func (f *fixture) process(t *testing.T, name string) *object.ProcessDispatcher {
	t.Helper()
	p, status := f.k.NewProcess(f.k.RootJob(), name)
	require.Equal(t, fx.OK, status)
	return p
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, sonic.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func koidPath(collection string, koid fx.Koid) string {
	return "/" + collection + "/" + strconv.FormatUint(uint64(koid), 10)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, kernel.Options{})

	w := f.get(t, "/health")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	resp := decode[HealthResponse](t, w)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, f.k.BootID().String(), resp.BootID)
	assert.Equal(t, "ready", resp.RootJob)
	assert.Equal(t, uint32(64), resp.HandlesMax)
	assert.GreaterOrEqual(t, resp.UptimeSeconds, float64(0))

	f.k.Shutdown()
	w = f.get(t, "/health")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "unhealthy", decode[HealthResponse](t, w).Status)
}

func TestJobs(t *testing.T) {
	f := newFixture(t, kernel.Options{})
	f.process(t, "shell")

	w := f.get(t, "/jobs")
	require.Equal(t, http.StatusOK, w.Code)
	tree := decode[kernel.JobInfo](t, w)
	assert.Equal(t, "root", tree.Name)
	require.Len(t, tree.Processes, 1)
	assert.Equal(t, "shell", tree.Processes[0].Name)
	assert.Equal(t, "initial", tree.Processes[0].State)
}

func TestObject(t *testing.T) {
	f := newFixture(t, kernel.Options{})
	p := f.process(t, "shell")

	tests := []struct {
		name string
		path string
		code int
	}{
		{"process", koidPath("objects", p.Koid()), http.StatusOK},
		{"root job", koidPath("objects", f.k.RootJob().Koid()), http.StatusOK},
		{"unknown koid", "/objects/999999", http.StatusNotFound},
		{"invalid koid", "/objects/0", http.StatusBadRequest},
		{"not a number", "/objects/abc", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.get(t, tt.path)
			assert.Equal(t, tt.code, w.Code, w.Body.String())
		})
	}

	info := decode[kernel.ObjectInfo](t, f.get(t, koidPath("objects", p.Koid())))
	assert.Equal(t, p.Koid(), info.Koid)
	assert.Equal(t, "process", info.Type)
	assert.Equal(t, "shell", info.Name)
}

func TestObjectHeldByHandle(t *testing.T) {
	f := newFixture(t, kernel.Options{})
	sys := f.k.System(f.process(t, "shell"))
	ev, status := sys.EventCreate(0)
	require.Equal(t, fx.OK, status)
	basic, status := sys.ObjectGetInfo(ev, fx.TopicHandleBasic)
	require.Equal(t, fx.OK, status)

	w := f.get(t, koidPath("objects", basic.Koid))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "event", decode[kernel.ObjectInfo](t, w).Type)

	require.Equal(t, fx.OK, sys.HandleClose(ev))
	assert.Equal(t, http.StatusNotFound, f.get(t, koidPath("objects", basic.Koid)).Code)
}

func TestProcessHandles(t *testing.T) {
	f := newFixture(t, kernel.Options{})
	p := f.process(t, "shell")
	sys := f.k.System(p)
	_, status := sys.EventCreate(0)
	require.Equal(t, fx.OK, status)
	_, _, status = sys.ChannelCreate(0)
	require.Equal(t, fx.OK, status)

	w := f.get(t, koidPath("processes", p.Koid())+"/handles")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[struct {
		Koid    fx.Koid             `json:"koid"`
		Count   int                 `json:"count"`
		Handles []kernel.HandleInfo `json:"handles"`
	}](t, w)
	assert.Equal(t, p.Koid(), resp.Koid)
	assert.Equal(t, 3, resp.Count)
	require.Len(t, resp.Handles, 3)
	for _, h := range resp.Handles {
		assert.NotEmpty(t, h.Value)
		assert.NotEmpty(t, h.Rights)
	}

	assert.Equal(t, http.StatusNotFound, f.get(t, "/processes/999999/handles").Code)
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/processes/-1/handles").Code)
}

func TestPrograms(t *testing.T) {
	f := newFixture(t, kernel.Options{})
	require.NoError(t, f.k.Programs().Register(kernel.ProgramFunc{
		Info: kernel.ProgramInfo{Name: "idle", Description: "does nothing"},
	}))

	w := f.get(t, "/programs")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[struct {
		Programs []kernel.ProgramInfo `json:"programs"`
	}](t, w)
	assert.Equal(t, []kernel.ProgramInfo{{Name: "idle", Description: "does nothing"}}, resp.Programs)
}

func TestBoot(t *testing.T) {
	f := newFixture(t, kernel.Options{})
	assert.Equal(t, http.StatusNotFound, f.get(t, "/boot").Code)

	f.h.SetBootReport(userboot.Report{Processes: []userboot.Started{
		{Name: "echo", Program: "echo", Job: "root", Koid: 2048},
	}})
	w := f.get(t, "/boot")
	require.Equal(t, http.StatusOK, w.Code)
	report := decode[userboot.Report](t, w)
	require.Len(t, report.Processes, 1)
	assert.Equal(t, "echo", report.Processes[0].Name)
	assert.Equal(t, fx.Koid(2048), report.Processes[0].Koid)
}

func TestTrace(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		f := newFixture(t, kernel.Options{})
		assert.Equal(t, http.StatusNotFound, f.get(t, "/trace").Code)
	})

	t.Run("recent spans", func(t *testing.T) {
		tracer := tracing.New("fiber-test", nil, 16)
		f := newFixture(t, kernel.Options{Tracer: tracer})
		sys := f.k.System(f.process(t, "shell"))
		for range 3 {
			_, status := sys.EventCreate(0)
			require.Equal(t, fx.OK, status)
		}
		// Close drains the collector
		tracer.Close()

		w := f.get(t, "/trace?limit=2")
		require.Equal(t, http.StatusOK, w.Code)
		resp := decode[struct {
			Count int            `json:"count"`
			Spans []tracing.Span `json:"spans"`
		}](t, w)
		assert.Equal(t, 2, resp.Count)
		require.Len(t, resp.Spans, 2)
		assert.Equal(t, "event_create", resp.Spans[0].Name)

		for _, limit := range []string{"0", "-3", "lots"} {
			assert.Equal(t, http.StatusBadRequest, f.get(t, "/trace?limit="+limit).Code, limit)
		}
	})
}

func TestMetrics(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		f := newFixture(t, kernel.Options{})
		assert.Equal(t, http.StatusNotFound, f.get(t, "/metrics").Code)
		assert.Equal(t, http.StatusNotFound, f.get(t, "/metrics/json").Code)
	})

	t.Run("enabled", func(t *testing.T) {
		f := newFixture(t, kernel.Options{Metrics: monitoring.NewMetrics()})
		sys := f.k.System(f.process(t, "shell"))
		ev, status := sys.EventCreate(0)
		require.Equal(t, fx.OK, status)
		_, status = sys.ChannelRead(ev, 0, 0, 0)
		require.Equal(t, fx.ErrWrongType, status)

		w := f.get(t, "/metrics")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "fiber_handles_live")

		w = f.get(t, "/metrics/json")
		require.Equal(t, http.StatusOK, w.Code)
		snap := decode[MetricsSnapshot](t, w)
		assert.Equal(t, int64(1), snap.Kernel.HandlesLive)
		assert.Equal(t, int64(2), snap.Kernel.Syscalls)
		assert.Equal(t, int64(1), snap.Kernel.SyscallErrors)
		assert.InDelta(t, 0.5, snap.Summary.SyscallErrorRate, 1e-9)
		assert.InDelta(t, 1.0/64, snap.Summary.HandleUsage, 1e-9)
	})
}
