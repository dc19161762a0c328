package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aretw0/cadloop"
	"github.com/aretw0/cadloop/internal/metrics"
	"github.com/aretw0/cadloop/internal/testutils"
	"github.com/aretw0/cadloop/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHandler(t *testing.T, opts ...Option) http.Handler {
	t.Helper()
	eng, err := cadloop.New(cadloop.WithKernel(testutils.NewKernel()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	h, err := NewHandler(eng, opts...)
	require.NoError(t, err)
	return h
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		req = httptest.NewRequest(method, path, bytes.NewReader(data))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), out), w.Body.String())
}

func TestLoadSpec(t *testing.T) {
	doc, err := LoadSpec(context.Background())
	require.NoError(t, err)
	for _, path := range []string{"/model/create", "/model/{name}", "/render/blueprint", "/export", "/analyze/printability"} {
		assert.NotNil(t, doc.Paths.Find(path), path)
	}
}

func TestServer_Health(t *testing.T) {
	h := newHandler(t)

	w := do(t, h, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	decodeJSON(t, w, &resp)
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, "test-boxes", resp["kernel"])
	assert.Equal(t, strings.TrimSpace(cadloop.Version), resp["version"])
}

func TestServer_CreateModel(t *testing.T) {
	h := newHandler(t)

	w := do(t, h, http.MethodPost, "/model/create", map[string]any{"name": "bracket", "code": "result = Box(60, 40, 30)"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Model   string `json:"model"`
		Success bool   `json:"success"`
		Preview struct {
			URL       string `json:"url"`
			MediaType string `json:"media_type"`
		} `json:"preview"`
	}
	decodeJSON(t, w, &resp)
	assert.True(t, resp.Success)
	assert.Equal(t, "bracket", resp.Model)
	assert.Equal(t, "image/png", resp.Preview.MediaType)
	require.True(t, strings.HasPrefix(resp.Preview.URL, "/renders/bracket/"), resp.Preview.URL)

	img := do(t, h, http.MethodGet, resp.Preview.URL, nil)
	require.Equal(t, http.StatusOK, img.Code)
	assert.Equal(t, "image/png", img.Header().Get("Content-Type"))
	assert.Equal(t, "\x89PNG", img.Body.String()[:4])

	w = do(t, h, http.MethodPost, "/model/create", map[string]any{"name": "bracket", "code": "result = Box(1, 1, 1)"})
	assert.Equal(t, http.StatusConflict, w.Code)
	var e errorResponse
	decodeJSON(t, w, &e)
	assert.Equal(t, domain.KindNameConflict, e.Kind)
}

func TestServer_ExecutionFailure(t *testing.T) {
	h := newHandler(t)

	w := do(t, h, http.MethodPost, "/model/create", map[string]any{"code": "result = Box(1, 1"})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var report domain.ExecutionReport
	decodeJSON(t, w, &report)
	assert.False(t, report.Success)
	assert.Equal(t, DefaultModel, report.Model)
	assert.Equal(t, domain.KindSyntaxError, report.ErrorKind)

	w = do(t, h, http.MethodGet, "/model/list", nil)
	var list []domain.ModelSummary
	decodeJSON(t, w, &list)
	assert.Empty(t, list)
}

func TestServer_SchemaValidation(t *testing.T) {
	h := newHandler(t)

	w := do(t, h, http.MethodPost, "/model/create", map[string]any{"name": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var e errorResponse
	decodeJSON(t, w, &e)
	assert.Equal(t, domain.KindInvalidArgument, e.Kind)

	w = do(t, h, http.MethodPost, "/render/3d", map[string]any{"width": 99999})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Without validation the engine sees the request and reports on it.
	h = newHandler(t, WithValidation(false))
	w = do(t, h, http.MethodPost, "/model/create", map[string]any{"name": "x"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestServer_ModifyAndMeasure(t *testing.T) {
	h := newHandler(t)

	do(t, h, http.MethodPost, "/model/create", map[string]any{"name": "part", "code": "result = Box(20, 10, 5)"})
	w := do(t, h, http.MethodPost, "/model/modify", map[string]any{"name": "part", "code": "result = result.Add(Box(20, 10, 5).Move(0, 0, 20))"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(t, h, http.MethodGet, "/model/part/measure", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var m domain.Measurement
	decodeJSON(t, w, &m)
	assert.InDelta(t, 25, m.Height, 1e-9)
	assert.Equal(t, 2, m.Revisions)

	w = do(t, h, http.MethodPost, "/model/modify", map[string]any{"name": "ghost", "code": "result = Box(1, 1, 1)"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, h, http.MethodGet, "/model/ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_Render(t *testing.T) {
	h := newHandler(t)
	do(t, h, http.MethodPost, "/model/create", map[string]any{"name": "part", "code": "result = Box(20, 10, 5)"})

	w := do(t, h, http.MethodPost, "/render/2d", map[string]any{
		"name":            "part",
		"view":            "top",
		"format":          "svg",
		"show_dimensions": true,
		"width":           400,
		"height":          300,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var art renderResponse
	decodeJSON(t, w, &art)
	assert.Equal(t, "image/svg+xml", art.MediaType)
	assert.Equal(t, 400, art.Width)
	assert.NotEmpty(t, art.URL)
	assert.Empty(t, art.Data)

	svg := do(t, h, http.MethodGet, art.URL, nil)
	assert.Contains(t, svg.Body.String(), "20.0 mm")

	req := httptest.NewRequest(http.MethodPost, "/render/3d", strings.NewReader(`{"name":"part","view":"front"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "image/png")
	raw := httptest.NewRecorder()
	h.ServeHTTP(raw, req)
	require.Equal(t, http.StatusOK, raw.Code)
	assert.Equal(t, "image/png", raw.Header().Get("Content-Type"))
	assert.NotEmpty(t, raw.Header().Get("Content-Location"))

	w = do(t, h, http.MethodPost, "/render/blueprint", map[string]any{"name": "part", "views": []string{"front", "top"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	decodeJSON(t, w, &art)
	assert.Len(t, art.Panels, 2)

	w = do(t, h, http.MethodPost, "/render/all", map[string]any{"name": "part"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var all []renderResponse
	decodeJSON(t, w, &all)
	assert.Len(t, all, 6)

	w = do(t, h, http.MethodPost, "/render/3d", map[string]any{"name": "part", "view": "diagonal"})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var e errorResponse
	decodeJSON(t, w, &e)
	assert.Equal(t, domain.KindRasterizationFailed, e.Kind)
}

func TestServer_ExportAndAnalyze(t *testing.T) {
	h := newHandler(t)
	do(t, h, http.MethodPost, "/model/create", map[string]any{"code": "result = Box(10, 10, 10)"})

	w := do(t, h, http.MethodPost, "/export", map[string]any{"format": "3MF"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var exp exportResponse
	decodeJSON(t, w, &exp)
	assert.Equal(t, domain.Format3MF, exp.Format)
	require.NotEmpty(t, exp.URL)

	file := do(t, h, http.MethodGet, exp.URL, nil)
	require.Equal(t, http.StatusOK, file.Code)
	assert.Equal(t, "model/3mf", file.Header().Get("Content-Type"))
	assert.Equal(t, "PK", file.Body.String()[:2])

	w = do(t, h, http.MethodPost, "/export", map[string]any{"format": "step"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, h, http.MethodPost, "/analyze/printability", map[string]any{"min_wall_thickness": 0.8})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var r domain.PrintabilityReport
	decodeJSON(t, w, &r)
	assert.True(t, r.Printable)

	w = do(t, h, http.MethodGet, "/renders/default/missing.png", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_Remove(t *testing.T) {
	h := newHandler(t)
	do(t, h, http.MethodPost, "/model/create", map[string]any{"name": "a", "code": "result = Box(1, 1, 1)"})

	w := do(t, h, http.MethodDelete, "/model/a", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, h, http.MethodDelete, "/model/a", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	eng, err := cadloop.New(
		cadloop.WithKernel(testutils.NewKernel()),
		cadloop.WithMetrics(metrics.New(reg)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	h, err := NewHandler(eng, WithGatherer(reg))
	require.NoError(t, err)

	do(t, h, http.MethodPost, "/model/create", map[string]any{"code": "result = Box(1, 1, 1)"})

	w := do(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `cadloop_executions_total{op="create",outcome="ok"} 1`)
	assert.Contains(t, w.Body.String(), "cadloop_renders_total")
}

func TestStatusOf(t *testing.T) {
	cases := map[domain.ErrorKind]int{
		domain.KindNotFound:           http.StatusNotFound,
		domain.KindNameConflict:       http.StatusConflict,
		domain.KindBusy:               http.StatusServiceUnavailable,
		domain.KindUnsupportedFormat:  http.StatusBadRequest,
		domain.KindEmptyGeometry:      http.StatusUnprocessableEntity,
		domain.KindTimeout:            http.StatusGatewayTimeout,
		domain.KindExportFailed:       http.StatusInternalServerError,
		domain.ErrorKind("something"): http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, StatusOf(kind), kind)
	}
}
