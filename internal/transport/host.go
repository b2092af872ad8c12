package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"toolpilot/internal/domain"
	"toolpilot/internal/tool"
)

// MCPPath is where the HTTP host mounts the MCP endpoint.
const MCPPath = "/mcp"

// Host exposes an invoker's capabilities as an MCP server.
type Host struct {
	server  *mcpsdk.Server
	invoker *tool.Invoker
	logger  *slog.Logger
	metrics http.Handler
}

// NewHost registers every capability in the invoker's registry with a new MCP server.
func NewHost(invoker *tool.Invoker, version string, logger *slog.Logger) *Host {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Host{
		server:  mcpsdk.NewServer(&mcpsdk.Implementation{Name: ClientName, Version: version}, nil),
		invoker: invoker,
		logger:  logger,
	}
	for _, desc := range invoker.Registry().Catalogue() {
		h.server.AddTool(&mcpsdk.Tool{
			Name:        desc.Name,
			Description: desc.Description,
			InputSchema: desc.InputSchema.JSONSchema(),
		}, h.handler(desc.Name))
	}
	return h
}

// handler never returns a protocol error: every failure is an isError result.
func (h *Host) handler(name string) mcpsdk.ToolHandler {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		args := map[string]any{}
		if len(req.Params.Arguments) > 0 {
			if err := json.Unmarshal(req.Params.Arguments, &args); err != nil {
				return toResult(domain.ErrorEnvelope(fmt.Sprintf("arguments must be a JSON object: %v", err))), nil
			}
		}
		return toResult(h.invoker.Invoke(ctx, name, args)), nil
	}
}

func toResult(env domain.Envelope) *mcpsdk.CallToolResult {
	content := make([]mcpsdk.Content, 0, len(env.Content))
	for _, c := range env.Content {
		content = append(content, &mcpsdk.TextContent{Text: c.Text})
	}
	return &mcpsdk.CallToolResult{Content: content, IsError: env.IsError}
}

// MountMetrics makes Router serve handler at GET /metrics.
func (h *Host) MountMetrics(handler http.Handler) { h.metrics = handler }

// Server exposes the underlying MCP server.
func (h *Host) Server() *mcpsdk.Server { return h.server }

// ServeStdio serves newline-delimited JSON-RPC on stdin/stdout until ctx ends or the
// peer disconnects.
func (h *Host) ServeStdio(ctx context.Context) error {
	h.logger.Info("capability host serving on stdio")
	return h.server.Run(ctx, &mcpsdk.StdioTransport{})
}

// Router mounts the streamable HTTP MCP endpoint and a health check.
func (h *Host) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(requestLogger(h.logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status":       "ok",
			"capabilities": len(h.invoker.Registry().Names()),
		})
	})

	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics)
	}

	mcpHandler := mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server {
		return h.server
	}, nil)
	r.Handle(MCPPath, mcpHandler)
	r.Handle(MCPPath+"/*", mcpHandler)
	return r
}

// ServeHTTP listens on addr until ctx is cancelled, then shuts down gracefully.
func (h *Host) ServeHTTP(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		h.logger.Info("capability host listening", "addr", addr, "path", MCPPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// requestLogger logs one line per request. chi's wrapper keeps http.Flusher intact,
// which streamable HTTP responses rely on.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelDebug
			if status >= 500 {
				level = slog.LevelError
			} else if status >= 400 {
				level = slog.LevelWarn
			}
			logger.Log(r.Context(), level, "request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", chimw.GetReqID(r.Context()),
			)
		})
	}
}
