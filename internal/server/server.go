// Package server exposes the dispatcher as MCP tools.
//
// The advertised tool set depends on the server mode. Offline mode serves
// local engines (plus gtts); online mode serves cloud services. Each mode's
// tool names are bound to handlers through a [Bindings] table that is checked
// against the mode's list before anything is registered, so a missing or
// stray handler stops startup instead of surfacing as a failed call.
//
// Every handler returns a JSON envelope as text content. Failures set
// IsError on the result; handlers never return a Go error.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/voxdispatch/internal/batch"
	"github.com/MrWong99/voxdispatch/internal/dispatch"
	"github.com/MrWong99/voxdispatch/internal/observe"
	"github.com/MrWong99/voxdispatch/internal/selector"
)

// Name is the implementation name reported to MCP clients.
const Name = "voxdispatch"

// ToolNames lists the tools advertised in each mode, in registration order.
var ToolNames = map[selector.Mode][]string{
	selector.ModeOffline: {
		"get_available_engines",
		"synthesize_speech",
		"list_voices",
		"play_audio",
		"batch_synthesize",
	},
	selector.ModeOnline: {
		"get_available_services",
		"synthesize_speech_online",
		"list_online_voices",
		"get_service_limits",
	},
}

// Binding registers one tool on an MCP server.
type Binding struct {
	Description string
	Register    func(s *mcp.Server, t *mcp.Tool)
}

// Bindings maps tool names to their handlers.
type Bindings map[string]Binding

// Validate reports every tool of mode that has no binding and every binding
// that mode does not advertise.
func (b Bindings) Validate(mode selector.Mode) error {
	want, ok := ToolNames[mode]
	if !ok {
		return fmt.Errorf("server: no tool list for mode %q", mode)
	}
	var errs []error
	for _, name := range want {
		if _, ok := b[name]; !ok {
			errs = append(errs, fmt.Errorf("server: tool %q has no binding", name))
		}
	}
	extra := make([]string, 0)
	for name := range b {
		if !slices.Contains(want, name) {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		errs = append(errs, fmt.Errorf("server: binding %q is not a %s tool", name, mode))
	}
	return errors.Join(errs...)
}

// Server is the MCP tool surface over one dispatcher.
type Server struct {
	d       *dispatch.Dispatcher
	batch   *batch.Coordinator
	metrics *observe.Metrics
	mode    selector.Mode
	version string
	mcp     *mcp.Server
}

// Option configures a [Server].
type Option func(*Server)

// WithVersion sets the version reported to clients. Default: "dev".
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// WithBatch sets the batch coordinator behind batch_synthesize. Default: a
// sequential coordinator over the dispatcher.
func WithBatch(c *batch.Coordinator) Option {
	return func(s *Server) { s.batch = c }
}

// New builds the server for the dispatcher's mode and registers its tools.
// The mode must already be resolved to offline or online.
func New(d *dispatch.Dispatcher, opts ...Option) (*Server, error) {
	s := &Server{
		d:       d,
		metrics: d.Metrics(),
		mode:    d.Selector().Mode(),
		version: "dev",
	}
	for _, o := range opts {
		o(s)
	}
	if s.batch == nil {
		s.batch = batch.New(d)
	}
	if s.mode == selector.ModeAuto {
		return nil, errors.New("server: mode must be resolved before serving")
	}

	b := s.bindings()
	if err := b.Validate(s.mode); err != nil {
		return nil, err
	}

	s.mcp = mcp.NewServer(&mcp.Implementation{Name: Name, Title: "Text-to-speech dispatch", Version: s.version}, nil)
	for _, name := range ToolNames[s.mode] {
		bind := b[name]
		bind.Register(s.mcp, &mcp.Tool{Name: name, Description: bind.Description})
	}
	slog.Info("mcp tools registered", "mode", s.mode, "tools", len(b))
	return s, nil
}

// bindings returns the binding table for the server's mode.
func (s *Server) bindings() Bindings {
	if s.mode == selector.ModeOnline {
		return s.onlineBindings()
	}
	return s.offlineBindings()
}

// MCP returns the underlying MCP server.
func (s *Server) MCP() *mcp.Server { return s.mcp }

// Mode returns the mode the server was built for.
func (s *Server) Mode() selector.Mode { return s.mode }

// Run serves MCP on t until ctx is cancelled or the client disconnects.
func (s *Server) Run(ctx context.Context, t mcp.Transport) error {
	return s.mcp.Run(ctx, t)
}

// handle adapts a typed handler to go-sdk's tool handler. The handler result
// becomes the JSON text content; isError marks the call as failed.
func handle[In any](s *Server, fn func(ctx context.Context, in In) (result any, isError bool)) func(*mcp.Server, *mcp.Tool) {
	return func(srv *mcp.Server, t *mcp.Tool) {
		name := t.Name
		mcp.AddTool(srv, t, func(ctx context.Context, _ *mcp.CallToolRequest, in In) (*mcp.CallToolResult, any, error) {
			start := time.Now()
			res, isError := fn(ctx, in)

			status := "ok"
			if isError {
				status = "error"
			}
			s.metrics.RecordToolCall(ctx, name, status, time.Since(start).Seconds())
			observe.Logger(ctx).Debug("tool call", "tool", name, "status", status, "duration", time.Since(start))
			return textResult(res, isError), nil, nil
		})
	}
}

func textResult(v any, isError bool) *mcp.CallToolResult {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		b, _ = json.Marshal(map[string]string{"status": dispatch.StatusError, "message": err.Error()})
		isError = true
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(b)}},
		IsError: isError,
	}
}
