package mcp

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/cadloop"
	"github.com/aretw0/cadloop/internal/logging"
	"github.com/aretw0/cadloop/pkg/domain"
	"github.com/aretw0/cadloop/pkg/ports"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/mitchellh/mapstructure"
)

// DefaultModel is used when a tool call omits the model name.
const DefaultModel = "default"

const (
	modelsURI       = "cadloop://models"
	artifactsPrefix = "cadloop://artifacts/"
)

// Engine is the request surface the MCP server drives.
type Engine interface {
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

// Server exposes an Engine as an MCP server.
type Server struct {
	engine    Engine
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger configures a logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(engine Engine, opts ...Option) *Server {
	s := &Server{
		engine:    engine,
		mcpServer: server.NewMCPServer("cadloop-mcp", strings.TrimSpace(cadloop.Version)),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves the MCP SSE transport on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr, baseURL string) error {
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
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

		s.logger.Info("Shutdown signal received, shutting down MCP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Tool arguments. Names follow the JSON schema advertised for each tool.

type modelArgs struct {
	Name string `mapstructure:"name"`
}

type codeArgs struct {
	Name string `mapstructure:"name"`
	Code string `mapstructure:"code"`
}

type renderArgs struct {
	Name            string `mapstructure:"name"`
	domain.ViewSpec `mapstructure:",squash"`
}

type printabilityArgs struct {
	Name             string  `mapstructure:"name"`
	MinWallThickness float64 `mapstructure:"min_wall_thickness"`
}

type exportArgs struct {
	Name   string `mapstructure:"name"`
	Format string `mapstructure:"format"`
}

type artifactArgs struct {
	Key string `mapstructure:"key"`
}

// decode binds the call arguments to out, accepting numbers sent as
// strings and the like.
func decode(request mcp.CallToolRequest, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(request.GetArguments()); err != nil {
		return domain.Wrap(domain.KindInvalidArgument, err, "invalid arguments")
	}
	return nil
}

func orDefault(name string) string {
	if name == "" {
		return DefaultModel
	}
	return name
}

var viewNames = []string{"front", "back", "left", "right", "top", "bottom", "iso", "iso_back", "custom"}

func (s *Server) registerTools() {
	name := mcp.WithString("name", mcp.Description("Model name (default: \"default\")"))

	s.mcpServer.AddTool(mcp.NewTool("create_model",
		mcp.WithDescription("Create a named 3D model by running Go modeling code. "+
			"Primitives: Box(x, y, z), Cylinder(r, h), Sphere(r), Cone(r1, r2, h), Union(shapes...). "+
			"Methods: Add, Sub, And, Move, RotateX/Y/Z, Fillet(r), Chamfer(l), Size, Volume, IsEmpty. "+
			"Assign the final shape to result. Returns an iso preview."),
		mcp.WithString("code", mcp.Required(), mcp.Description("Go statements, e.g. result = Box(60, 40, 30)")),
		name,
	), s.handleCreate)

	s.mcpServer.AddTool(mcp.NewTool("modify_model",
		mcp.WithDescription("Run code against an existing model. The current shape is bound to result; "+
			"the model changes only if the code succeeds."),
		mcp.WithString("code", mcp.Required(), mcp.Description("Go statements that reassign result")),
		name,
	), s.handleModify)

	s.mcpServer.AddTool(mcp.NewTool("remove_model",
		mcp.WithDescription("Delete a model and its stored renders."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Model name")),
	), s.handleRemove)

	s.mcpServer.AddTool(mcp.NewTool("list_models",
		mcp.WithDescription("List every model in creation order with its geometry summary."),
	), s.handleList)

	s.mcpServer.AddTool(mcp.NewTool("get_model",
		mcp.WithDescription("Get a model with its revision history."),
		name,
	), s.handleGet)

	s.mcpServer.AddTool(mcp.NewTool("measure_model",
		mcp.WithDescription("Measure a model: bounding box, volume, surface area, center of mass, mesh counts."),
		name,
	), s.handleMeasure)

	s.mcpServer.AddTool(mcp.NewTool("render_3d",
		mcp.WithDescription("Render a shaded 3D view of the model as PNG."),
		name,
		mcp.WithString("view", mcp.Enum(viewNames...), mcp.Description("Camera preset (default: iso)")),
		mcp.WithNumber("azimuth", mcp.Description("Degrees around Z for view=custom")),
		mcp.WithNumber("elevation", mcp.Description("Degrees above the XY plane for view=custom")),
		mcp.WithNumber("width", mcp.Description("Image width in pixels")),
		mcp.WithNumber("height", mcp.Description("Image height in pixels")),
	), s.renderHandler(domain.View3D))

	s.mcpServer.AddTool(mcp.NewTool("render_2d",
		mcp.WithDescription("Render an orthographic line drawing with hidden lines and optional dimensions."),
		name,
		mcp.WithString("view", mcp.Enum(viewNames...), mcp.Description("Orthographic view (default: front)")),
		mcp.WithBoolean("show_hidden", mcp.Description("Draw hidden edges dashed (default: true)")),
		mcp.WithBoolean("show_dimensions", mcp.Description("Overlay bounding-box dimensions")),
		mcp.WithString("format", mcp.Enum(domain.FormatPNG, domain.FormatSVG), mcp.Description("png or svg")),
		mcp.WithNumber("width", mcp.Description("Image width in pixels")),
		mcp.WithNumber("height", mcp.Description("Image height in pixels")),
	), s.renderHandler(domain.View2D))

	s.mcpServer.AddTool(mcp.NewTool("render_multiview",
		mcp.WithDescription("Render front, right, top and iso views in a 2x2 grid at one shared scale."),
		name,
		mcp.WithNumber("width", mcp.Description("Image width in pixels")),
		mcp.WithNumber("height", mcp.Description("Image height in pixels")),
	), s.renderHandler(domain.ViewMultiview))

	s.mcpServer.AddTool(mcp.NewTool("render_blueprint",
		mcp.WithDescription("Render an engineering drawing sheet with dimensioned views and a title block."),
		name,
		mcp.WithArray("views", mcp.Description("Orthographic views in order (default: front, top, right)"),
			mcp.Items(map[string]any{"type": "string"})),
		mcp.WithString("title", mcp.Description("Drawing title (default: model name)")),
		mcp.WithString("part_number", mcp.Description("Part number")),
		mcp.WithString("drawn_by", mcp.Description("Author")),
		mcp.WithString("date", mcp.Description("Drawing date")),
		mcp.WithString("revision", mcp.Description("Revision label")),
		mcp.WithString("tolerance", mcp.Description("General tolerance (default: ±0.5)")),
		mcp.WithArray("notes", mcp.Description("Notes printed under the title block"),
			mcp.Items(map[string]any{"type": "string"})),
		mcp.WithObject("dimensions", mcp.Description("Overrides for width, depth and height in mm")),
	), s.renderHandler(domain.ViewBlueprint))

	s.mcpServer.AddTool(mcp.NewTool("render_all",
		mcp.WithDescription("Render 3D iso, 3D iso_back, 2D front/right/top and the multiview composite."),
		name,
	), s.handleRenderAll)

	s.mcpServer.AddTool(mcp.NewTool("analyze_printability",
		mcp.WithDescription("Check a model for 3D printing: watertightness, manifold edges, wall thickness, overhangs."),
		name,
		mcp.WithNumber("min_wall_thickness", mcp.Description("Minimum wall thickness in mm (default: 0.4)")),
	), s.handleAnalyze)

	s.mcpServer.AddTool(mcp.NewTool("export_model",
		mcp.WithDescription("Export a model for slicers or CAD tools. Returns the artifact key."),
		name,
		mcp.WithString("format", mcp.Enum("stl", "3mf", "step"), mcp.Description("Export format (default: stl)")),
	), s.handleExport)

	s.mcpServer.AddTool(mcp.NewTool("get_render",
		mcp.WithDescription("Fetch a stored render by the key returned from a render tool."),
		mcp.WithString("key", mcp.Required(), mcp.Description("Artifact key")),
	), s.handleGetRender)
}

// failure turns an engine error into a tool error the agent can read.
func (s *Server) failure(tool string, err error) (*mcp.CallToolResult, error) {
	s.logger.Warn("Tool failed", "tool", tool, "kind", domain.KindOf(err), "err", err)
	return mcp.NewToolResultError(err.Error()), nil
}

func jsonText(v any) mcp.TextContent {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewTextContent(fmt.Sprintf(`{"error": %q}`, err.Error()))
	}
	return mcp.NewTextContent(string(data))
}

// renderContent returns an image block for PNG output and a text block
// for SVG.
func renderContent(art *domain.RenderArtifact) mcp.Content {
	if art.Format == domain.FormatSVG {
		return mcp.NewTextContent(string(art.Data))
	}
	return mcp.NewImageContent(base64.StdEncoding.EncodeToString(art.Data), art.MediaType)
}

func (s *Server) handleCreate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args codeArgs
	if err := decode(request, &args); err != nil {
		return s.failure("create_model", err)
	}
	res, err := s.engine.CreateModel(ctx, orDefault(args.Name), args.Code)
	if err != nil {
		return s.failure("create_model", err)
	}

	report := struct {
		domain.ExecutionReport
		PreviewKey   string `json:"preview_key,omitempty"`
		PreviewError string `json:"preview_error,omitempty"`
	}{ExecutionReport: res.Report(orDefault(args.Name)), PreviewError: res.PreviewError}
	out := &mcp.CallToolResult{IsError: !res.Success}
	if res.Preview != nil {
		report.PreviewKey = res.Preview.Key
		out.Content = []mcp.Content{jsonText(report), renderContent(res.Preview)}
	} else {
		out.Content = []mcp.Content{jsonText(report)}
	}
	return out, nil
}

func (s *Server) handleModify(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args codeArgs
	if err := decode(request, &args); err != nil {
		return s.failure("modify_model", err)
	}
	res, err := s.engine.ModifyModel(ctx, orDefault(args.Name), args.Code)
	if err != nil {
		return s.failure("modify_model", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{jsonText(res.Report(orDefault(args.Name)))},
		IsError: !res.Success,
	}, nil
}

func (s *Server) handleRemove(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args modelArgs
	if err := decode(request, &args); err != nil {
		return s.failure("remove_model", err)
	}
	if err := s.engine.RemoveModel(ctx, args.Name); err != nil {
		return s.failure("remove_model", err)
	}
	return mcp.NewToolResultText(fmt.Sprintf("removed %q", args.Name)), nil
}

func (s *Server) handleList(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return &mcp.CallToolResult{Content: []mcp.Content{jsonText(s.engine.ListModels())}}, nil
}

func (s *Server) handleGet(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args modelArgs
	if err := decode(request, &args); err != nil {
		return s.failure("get_model", err)
	}
	m, err := s.engine.GetModel(orDefault(args.Name))
	if err != nil {
		return s.failure("get_model", err)
	}
	return &mcp.CallToolResult{Content: []mcp.Content{jsonText(m)}}, nil
}

func (s *Server) handleMeasure(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args modelArgs
	if err := decode(request, &args); err != nil {
		return s.failure("measure_model", err)
	}
	m, err := s.engine.Measure(orDefault(args.Name))
	if err != nil {
		return s.failure("measure_model", err)
	}
	return &mcp.CallToolResult{Content: []mcp.Content{jsonText(m)}}, nil
}

func (s *Server) renderHandler(kind domain.ViewKind) server.ToolHandlerFunc {
	tool := "render_" + string(kind)
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args renderArgs
		if err := decode(request, &args); err != nil {
			return s.failure(tool, err)
		}
		args.Kind = kind
		art, err := s.engine.Render(ctx, orDefault(args.Name), args.ViewSpec)
		if err != nil {
			return s.failure(tool, err)
		}
		return &mcp.CallToolResult{Content: []mcp.Content{jsonText(art), renderContent(art)}}, nil
	}
}

func (s *Server) handleRenderAll(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args modelArgs
	if err := decode(request, &args); err != nil {
		return s.failure("render_all", err)
	}
	arts, err := s.engine.RenderAll(ctx, orDefault(args.Name))
	if err != nil {
		return s.failure("render_all", err)
	}
	content := []mcp.Content{jsonText(arts)}
	for _, art := range arts {
		content = append(content, renderContent(art))
	}
	return &mcp.CallToolResult{Content: content}, nil
}

func (s *Server) handleAnalyze(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args printabilityArgs
	if err := decode(request, &args); err != nil {
		return s.failure("analyze_printability", err)
	}
	r, err := s.engine.AnalyzePrintability(ctx, orDefault(args.Name), args.MinWallThickness)
	if err != nil {
		return s.failure("analyze_printability", err)
	}
	return &mcp.CallToolResult{Content: []mcp.Content{jsonText(r)}}, nil
}

func (s *Server) handleExport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args exportArgs
	if err := decode(request, &args); err != nil {
		return s.failure("export_model", err)
	}
	if args.Format == "" {
		args.Format = string(domain.FormatSTL)
	}
	art, err := s.engine.Export(ctx, orDefault(args.Name), domain.ExportFormat(strings.ToLower(args.Format)))
	if err != nil {
		return s.failure("export_model", err)
	}
	return &mcp.CallToolResult{Content: []mcp.Content{jsonText(art)}}, nil
}

func (s *Server) handleGetRender(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args artifactArgs
	if err := decode(request, &args); err != nil {
		return s.failure("get_render", err)
	}
	a, err := s.engine.Artifact(ctx, args.Key)
	if err != nil {
		return s.failure("get_render", err)
	}
	if !strings.HasPrefix(a.MediaType, "image/png") {
		return mcp.NewToolResultText(string(a.Data)), nil
	}
	return &mcp.CallToolResult{Content: []mcp.Content{
		mcp.NewImageContent(base64.StdEncoding.EncodeToString(a.Data), a.MediaType),
	}}, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(modelsURI, "Models",
		mcp.WithResourceDescription("Every model in the session with its geometry summary"),
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		data, err := json.Marshal(s.engine.ListModels())
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      modelsURI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})

	s.mcpServer.AddResourceTemplate(mcp.NewResourceTemplate(artifactsPrefix+"{+key}", "Artifacts",
		mcp.WithTemplateDescription("Stored renders and exports by key"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		key := strings.TrimPrefix(request.Params.URI, artifactsPrefix)
		a, err := s.engine.Artifact(ctx, key)
		if err != nil {
			return nil, err
		}
		return []mcp.ResourceContents{
			mcp.BlobResourceContents{
				URI:      request.Params.URI,
				MIMEType: a.MediaType,
				Blob:     base64.StdEncoding.EncodeToString(a.Data),
			},
		}, nil
	})
}
