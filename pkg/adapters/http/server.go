package http

import (
	"context"
	_ "embed"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/cadloop"
	"github.com/aretw0/cadloop/internal/logging"
	"github.com/aretw0/cadloop/pkg/domain"
	"github.com/aretw0/cadloop/pkg/ports"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mitchellh/mapstructure"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

//go:embed openapi.yaml
var rawSpec []byte

// DefaultModel is used when a request omits the model name.
const DefaultModel = "default"

// Engine is the request surface the HTTP server drives.
type Engine interface {
	KernelName() string
	CreateModel(ctx context.Context, name, code string) (*cadloop.CreateResult, error)
	ModifyModel(ctx context.Context, name, code string) (domain.ExecutionResult, error)
	RemoveModel(ctx context.Context, name string) error
	ListModels() []domain.ModelSummary
	GetModel(name string) (domain.Model, error)
	Measure(name string) (domain.Measurement, error)
	Render(ctx context.Context, name string, spec domain.ViewSpec) (*domain.RenderArtifact, error)
	RenderAll(ctx context.Context, name string) ([]*domain.RenderArtifact, error)
	AnalyzePrintability(ctx context.Context, name string, minWallThickness float64) (*domain.PrintabilityReport, error)
	Export(ctx context.Context, name string, format domain.ExportFormat) (*domain.ExportArtifact, error)
	Artifact(ctx context.Context, key string) (ports.Artifact, error)
}

// Server holds the handlers of the REST API.
type Server struct {
	engine   Engine
	doc      *openapi3.T
	validate bool
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger configures a logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithValidation toggles request validation against the OpenAPI document.
func WithValidation(enabled bool) Option {
	return func(s *Server) {
		s.validate = enabled
	}
}

// WithGatherer serves the collectors of g at /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// LoadSpec parses and validates the embedded OpenAPI document.
func LoadSpec(ctx context.Context) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx
	doc, err := loader.LoadFromData(rawSpec)
	if err != nil {
		return nil, fmt.Errorf("failed to load openapi spec: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("invalid openapi spec: %w", err)
	}
	return doc, nil
}

// NewHandler creates the HTTP handler for engine.
func NewHandler(engine Engine, opts ...Option) (http.Handler, error) {
	s := &Server{
		engine:   engine,
		validate: true,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	doc, err := LoadSpec(context.Background())
	if err != nil {
		return nil, err
	}
	s.doc = doc

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(rawSpec)
	})
	r.Get("/swagger", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(swaggerHTML))
	})
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Get("/health", s.validated(s.GetHealth))
	r.Post("/model/create", s.validated(s.CreateModel))
	r.Post("/model/modify", s.validated(s.ModifyModel))
	r.Get("/model/list", s.validated(s.ListModels))
	r.Get("/model/{name}", s.validated(s.GetModel))
	r.Delete("/model/{name}", s.validated(s.RemoveModel))
	r.Get("/model/{name}/measure", s.validated(s.MeasureModel))
	r.Post("/render/all", s.validated(s.RenderAll))
	for _, kind := range []domain.ViewKind{domain.View3D, domain.View2D, domain.ViewMultiview, domain.ViewBlueprint} {
		r.Post("/render/"+string(kind), s.validated(s.render(kind)))
	}
	r.Post("/export", s.validated(s.ExportModel))
	r.Post("/analyze/printability", s.validated(s.AnalyzePrintability))
	r.Get("/renders/*", s.GetArtifact)

	return enableCORS(r), nil
}

// Serve runs handler on addr until ctx is done.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	if logger == nil {
		logger = logging.NewNop()
	}
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("HTTP Server listening", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		logger.Info("Shutdown signal received, shutting down HTTP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

const swaggerHTML = `
<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>cadloop API Documentation</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui.css" />
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://unpkg.com/swagger-ui-dist@5.11.0/swagger-ui-bundle.js" crossorigin></script>
<script>
    window.onload = () => {
    window.ui = SwaggerUIBundle({
        url: '/openapi.yaml',
        dom_id: '#swagger-ui',
    });
    };
</script>
</body>
</html>
`

// validated checks the request against the operation chi matched. It
// runs inside the route so the pattern is known.
func (s *Server) validated(h http.HandlerFunc) http.HandlerFunc {
	if !s.validate {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		rctx := chi.RouteContext(r.Context())
		pattern := rctx.RoutePattern()
		item := s.doc.Paths.Find(pattern)
		if item == nil {
			h(w, r)
			return
		}
		op := item.GetOperation(r.Method)
		if op == nil {
			h(w, r)
			return
		}
		params := make(map[string]string, len(rctx.URLParams.Keys))
		for i, k := range rctx.URLParams.Keys {
			params[k] = rctx.URLParams.Values[i]
		}
		input := &openapi3filter.RequestValidationInput{
			Request:    r,
			PathParams: params,
			Route: &routers.Route{
				Spec:      s.doc,
				Path:      pattern,
				PathItem:  item,
				Method:    r.Method,
				Operation: op,
			},
		}
		if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
			s.fail(w, r, domain.Wrap(domain.KindInvalidArgument, err, "request does not match the API schema"))
			return
		}
		h(w, r)
	}
}

// -- Request bodies --

type modelBody struct {
	Name string `mapstructure:"name"`
}

type codeBody struct {
	Name string `mapstructure:"name"`
	Code string `mapstructure:"code"`
}

type renderBody struct {
	Name            string `mapstructure:"name"`
	domain.ViewSpec `mapstructure:",squash"`
}

type printabilityBody struct {
	Name             string  `mapstructure:"name"`
	MinWallThickness float64 `mapstructure:"min_wall_thickness"`
}

type exportBody struct {
	Name   string `mapstructure:"name"`
	Format string `mapstructure:"format"`
}

// decodeBody reads a JSON object and binds it to out. An empty body
// binds nothing.
func decodeBody(r *http.Request, out any) error {
	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil && !errors.Is(err, io.EOF) {
		return domain.Wrap(domain.KindInvalidArgument, err, "invalid request body")
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return domain.Wrap(domain.KindInvalidArgument, err, "invalid request body")
	}
	return nil
}

func orDefault(name string) string {
	if name == "" {
		return DefaultModel
	}
	return name
}

// -- Responses --

type errorResponse struct {
	Error string           `json:"error"`
	Kind  domain.ErrorKind `json:"kind"`
}

type renderResponse struct {
	*domain.RenderArtifact
	URL  string `json:"url,omitempty"`
	Data string `json:"data,omitempty"`
}

type exportResponse struct {
	*domain.ExportArtifact
	URL string `json:"url,omitempty"`
}

type createResponse struct {
	domain.ExecutionReport
	Preview      *renderResponse `json:"preview,omitempty"`
	PreviewError string          `json:"preview_error,omitempty"`
}

func artifactURL(key string) string {
	if key == "" {
		return ""
	}
	return "/renders/" + key
}

// newRenderResponse links stored artifacts and inlines the ones the sink
// could not keep.
func newRenderResponse(art *domain.RenderArtifact) *renderResponse {
	resp := &renderResponse{RenderArtifact: art, URL: artifactURL(art.Key)}
	if art.Key == "" {
		resp.Data = base64.StdEncoding.EncodeToString(art.Data)
	}
	return resp
}

// StatusOf maps an error kind to its HTTP status code.
func StatusOf(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindNameConflict:
		return http.StatusConflict
	case domain.KindBusy, domain.KindDisplayUnavailable:
		return http.StatusServiceUnavailable
	case domain.KindInvalidArgument, domain.KindUnsupportedFormat, domain.KindInvalidOperand:
		return http.StatusBadRequest
	case domain.KindEmptyGeometry, domain.KindAnalysisUnsupported,
		domain.KindSyntaxError, domain.KindRuntimeError, domain.KindResultMissing:
		return http.StatusUnprocessableEntity
	case domain.KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Response encode failed", "err", err)
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	kind := domain.KindOf(err)
	status := StatusOf(kind)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "kind", kind, "err", err)
	} else {
		s.logger.Warn("Request rejected", "method", r.Method, "path", r.URL.Path, "kind", kind, "err", err)
	}
	if kind == "" {
		kind = "InternalError"
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind})
}

// accepts reports whether the client asked for mediaType over JSON.
func accepts(r *http.Request, mediaType string) bool {
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mt, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err == nil && mt == mediaType {
			return true
		}
	}
	return false
}

// -- Handlers --

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": strings.TrimSpace(cadloop.Version),
		"kernel":  s.engine.KernelName(),
		"models":  len(s.engine.ListModels()),
	})
}

// CreateModel handles POST /model/create.
func (s *Server) CreateModel(w http.ResponseWriter, r *http.Request) {
	var body codeBody
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	name := orDefault(body.Name)
	res, err := s.engine.CreateModel(r.Context(), name, body.Code)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := createResponse{ExecutionReport: res.Report(name), PreviewError: res.PreviewError}
	if res.Preview != nil {
		resp.Preview = newRenderResponse(res.Preview)
	}
	status := http.StatusCreated
	if !res.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, resp)
}

// ModifyModel handles POST /model/modify.
func (s *Server) ModifyModel(w http.ResponseWriter, r *http.Request) {
	var body codeBody
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	name := orDefault(body.Name)
	res, err := s.engine.ModifyModel(r.Context(), name, body.Code)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if !res.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, res.Report(name))
}

// ListModels handles GET /model/list.
func (s *Server) ListModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.ListModels())
}

// GetModel handles GET /model/{name}.
func (s *Server) GetModel(w http.ResponseWriter, r *http.Request) {
	m, err := s.engine.GetModel(chi.URLParam(r, "name"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// RemoveModel handles DELETE /model/{name}.
func (s *Server) RemoveModel(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.RemoveModel(r.Context(), chi.URLParam(r, "name")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MeasureModel handles GET /model/{name}/measure.
func (s *Server) MeasureModel(w http.ResponseWriter, r *http.Request) {
	m, err := s.engine.Measure(chi.URLParam(r, "name"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// render handles POST /render/{kind}. A client that accepts the image
// media type gets the bytes; others get JSON.
func (s *Server) render(kind domain.ViewKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body renderBody
		if err := decodeBody(r, &body); err != nil {
			s.fail(w, r, err)
			return
		}
		body.Kind = kind
		art, err := s.engine.Render(r.Context(), orDefault(body.Name), body.ViewSpec)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		if accepts(r, art.MediaType) {
			w.Header().Set("Content-Type", art.MediaType)
			if art.Key != "" {
				w.Header().Set("Content-Location", artifactURL(art.Key))
			}
			w.Write(art.Data)
			return
		}
		writeJSON(w, http.StatusOK, newRenderResponse(art))
	}
}

// RenderAll handles POST /render/all.
func (s *Server) RenderAll(w http.ResponseWriter, r *http.Request) {
	var body modelBody
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	arts, err := s.engine.RenderAll(r.Context(), orDefault(body.Name))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	resp := make([]*renderResponse, len(arts))
	for i, art := range arts {
		resp[i] = newRenderResponse(art)
	}
	writeJSON(w, http.StatusOK, resp)
}

// ExportModel handles POST /export.
func (s *Server) ExportModel(w http.ResponseWriter, r *http.Request) {
	var body exportBody
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if body.Format == "" {
		body.Format = string(domain.FormatSTL)
	}
	art, err := s.engine.Export(r.Context(), orDefault(body.Name), domain.ExportFormat(strings.ToLower(body.Format)))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exportResponse{ExportArtifact: art, URL: artifactURL(art.Key)})
}

// AnalyzePrintability handles POST /analyze/printability.
func (s *Server) AnalyzePrintability(w http.ResponseWriter, r *http.Request) {
	var body printabilityBody
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	report, err := s.engine.AnalyzePrintability(r.Context(), orDefault(body.Name), body.MinWallThickness)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// GetArtifact handles GET /renders/{key}. Keys contain slashes.
func (s *Server) GetArtifact(w http.ResponseWriter, r *http.Request) {
	a, err := s.engine.Artifact(r.Context(), chi.URLParam(r, "*"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", a.MediaType)
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.Write(a.Data)
}
