package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	// Packages
	kong "github.com/alecthomas/kong"
	jsonschema "github.com/google/jsonschema-go/jsonschema"
	otel "go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	handler "github.com/mutablelogic/go-mcp/pkg/mcp/handler"
	session "github.com/mutablelogic/go-mcp/pkg/mcp/session"
	httpserver "github.com/mutablelogic/go-mcp/pkg/mcp/transport/httpserver"
	tool "github.com/mutablelogic/go-mcp/pkg/tool"
	version "github.com/mutablelogic/go-mcp/pkg/version"
)

////////////////////////////////////////////////////////////////////////////
// TYPES

type Globals struct {
	Addr         string           `name:"addr" env:"ADDR" default:":8080" help:"Listen address"`
	Stateless    bool             `name:"stateless" help:"Run without session persistence (Mcp-Session-Id is not used)"`
	JSONResponse bool             `name:"json-response" help:"In stateless mode, respond with a single JSON body instead of SSE"`
	KeepAlive    time.Duration    `name:"keep-alive" default:"15s" help:"Interval between SSE keep-alive comments"`
	SessionTTL   time.Duration    `name:"session-ttl" default:"5m" help:"Idle session expiry"`
	Debug        bool             `name:"debug" help:"Enable debug output"`
	Version      kong.VersionFlag `name:"version" help:"Print version and exit"`

	ctx context.Context
}

type CLI struct {
	Globals
}

////////////////////////////////////////////////////////////////////////////
// MAIN

func main() {
	cli := CLI{}
	kong.Parse(&cli,
		kong.Name(execName()),
		kong.Description("MCP streamable-HTTP server"),
		kong.Vars{"version": string(version.JSON(execName()))},
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)

	// PORT (spec.md §6 "server side: PORT selects the listen port") replaces
	// --addr entirely when set: the server listens on ":$PORT", on all
	// interfaces, and any host given in --addr is dropped.
	if port := os.Getenv("PORT"); port != "" {
		cli.Globals.Addr = ":" + port
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	cli.Globals.ctx = ctx

	if err := run(ctx, &cli.Globals); err != nil {
		fmt.Fprintln(os.Stderr, "Error: ", err)
		os.Exit(-1)
	}
}

func run(ctx context.Context, g *Globals) error {
	// Register an SDK tracer provider so pkg/credential and pkg/mcp/session
	// span-per-operation calls (otelspan.Start) produce real spans instead
	// of otel's default no-op tracer; exporting them is an external
	// collaborator's job (spec.md §1 "tracing/logging sinks" is out of
	// scope), so no exporter is attached here.
	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
	otel.SetTracerProvider(tp)
	defer tp.Shutdown(context.Background())

	toolkit, err := tool.NewToolkit(Weather{})
	if err != nil {
		return err
	}

	sessions := session.NewManager(session.WithIdleTTL(g.SessionTTL))
	srv := httpserver.New(handler.NewToolkitAdapter(toolkit),
		httpserver.WithStateful(!g.Stateless),
		httpserver.WithJSONResponse(g.JSONResponse),
		httpserver.WithKeepAlive(g.KeepAlive),
		httpserver.WithSessionManager(sessions),
	)

	go sweepSessions(ctx, sessions, g.SessionTTL)

	httpSrv := &http.Server{Addr: g.Addr, Handler: srv}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		httpSrv.Shutdown(shutdownCtx)
	}()

	if g.Debug {
		fmt.Fprintf(os.Stderr, "listening on %s (stateful=%v)\n", g.Addr, !g.Stateless)
	}

	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// sweepSessions periodically evicts idle sessions; the session manager
// itself performs no background work, so the owning binary drives it.
func sweepSessions(ctx context.Context, sessions *session.Manager, ttl time.Duration) {
	interval := ttl / 2
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sessions.Sweep(ctx)
		}
	}
}

////////////////////////////////////////////////////////////////////////////
// PRIVATE METHODS

func execName() string {
	name, err := os.Executable()
	if err != nil {
		panic(err)
	}
	return filepath.Base(name)
}

////////////////////////////////////////////////////////////////////////////
// DEMO TOOL

// Weather is a minimal example tool registered with every server instance,
// demonstrating the tool.Tool interface.
type Weather struct{}

func (Weather) Name() string { return "weather" }

func (Weather) Description() string { return "Return current weather information for a city" }

func (Weather) Schema() (*jsonschema.Schema, error) {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"city": {Type: "string", Description: "City name"},
		},
		Required: []string{"city"},
	}, nil
}

func (Weather) Run(_ context.Context, input json.RawMessage) (any, error) {
	var args struct {
		City string `json:"city"`
	}
	if err := json.Unmarshal(input, &args); err != nil {
		return nil, err
	}
	return fmt.Sprintf("The weather in %s is sunny", args.City), nil
}
