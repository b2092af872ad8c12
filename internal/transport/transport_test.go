package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"toolpilot/internal/domain"
	"toolpilot/internal/tool"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testInvoker() *tool.Invoker {
	reg := tool.NewRegistry(testLogger())
	reg.Register(domain.CapabilityDescriptor{
		Name:        "echo",
		Description: "Echo input",
		InputSchema: tool.Schema(map[string]tool.Param{"text": {Type: "string", Description: "text to echo"}}, "text"),
	}, func(ctx context.Context, args map[string]any) (any, error) {
		return "echo:" + tool.ArgsString(args, "text"), nil
	})
	reg.Register(domain.CapabilityDescriptor{Name: "fail"}, func(ctx context.Context, args map[string]any) (any, error) {
		return nil, errors.New("backend down")
	})
	return tool.NewInvoker(tool.InvokerConfig{Registry: reg, Logger: testLogger()})
}

// connectInMemory runs a Host on one end of an in-memory pipe and a Client on the other.
func connectInMemory(t *testing.T) *Client {
	t.Helper()
	host := NewHost(testInvoker(), "test", testLogger())
	serverT, clientT := mcpsdk.NewInMemoryTransports()

	ctx, cancel := context.WithCancel(context.Background())
	serverSession, err := host.Server().Connect(ctx, serverT, nil)
	if err != nil {
		cancel()
		t.Fatalf("server connect: %v", err)
	}

	client, err := Connect(ctx, clientT, "test", testLogger())
	if err != nil {
		cancel()
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() {
		client.Close()
		serverSession.Close()
		cancel()
	})
	return client
}

func TestLocal(t *testing.T) {
	l := NewLocal(testInvoker())
	ctx := context.Background()

	cat, err := l.Discover(ctx)
	if err != nil || len(cat) != 2 || cat[0].Name != "echo" {
		t.Fatalf("unexpected catalogue %v (err %v)", cat, err)
	}

	env, err := l.Invoke(ctx, "echo", map[string]any{"text": "hi"})
	if err != nil || env.IsError || env.Text() != "echo:hi" {
		t.Fatalf("unexpected envelope %+v (err %v)", env, err)
	}

	env, err = l.Invoke(ctx, "nope", nil)
	if err != nil || !env.IsError {
		t.Fatalf("unknown capability should be an isError envelope, got %+v (err %v)", env, err)
	}
}

func TestClientHost_RoundTrip(t *testing.T) {
	client := connectInMemory(t)
	ctx := context.Background()

	cat, err := client.Discover(ctx)
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(cat) != 2 {
		t.Fatalf("expected 2 capabilities, got %d", len(cat))
	}
	var echo domain.CapabilityDescriptor
	for _, d := range cat {
		if d.Name == "echo" {
			echo = d
		}
	}
	if echo.InputSchema.Properties["text"].Type != "string" || len(echo.InputSchema.Required) != 1 {
		t.Fatalf("schema lost in transit: %+v", echo.InputSchema)
	}

	env, err := client.Invoke(ctx, "echo", map[string]any{"text": "hi"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if env.IsError || env.Text() != "echo:hi" {
		t.Fatalf("unexpected envelope %+v", env)
	}
}

func TestClientHost_ErrorsStayEnvelopes(t *testing.T) {
	client := connectInMemory(t)
	ctx := context.Background()

	env, err := client.Invoke(ctx, "fail", nil)
	if err != nil {
		t.Fatalf("capability failure must not be a protocol error: %v", err)
	}
	if !env.IsError || env.Text() != "backend down" {
		t.Fatalf("unexpected envelope %+v", env)
	}

	env, err = client.Invoke(ctx, "echo", map[string]any{"text": 5})
	if err != nil || !env.IsError || !strings.Contains(env.Text(), "text") {
		t.Fatalf("validation failure should come back as isError, got %+v (err %v)", env, err)
	}

	env, err = client.Invoke(ctx, "delete_everything", nil)
	if err != nil {
		t.Fatalf("unknown capability must not be a protocol error: %v", err)
	}
	if !env.IsError || !strings.Contains(env.Text(), "delete_everything") {
		t.Fatalf("unexpected envelope %+v", env)
	}
}

func TestClient_ClosedSessionIsProtocolError(t *testing.T) {
	client := connectInMemory(t)
	ctx := context.Background()
	if _, err := client.Discover(ctx); err != nil {
		t.Fatal(err)
	}
	client.Close()

	if _, err := client.Invoke(ctx, "echo", map[string]any{"text": "x"}); err == nil {
		t.Fatal("expected a protocol error after the session closed")
	}
}

func TestHost_HealthRoute(t *testing.T) {
	host := NewHost(testInvoker(), "test", testLogger())
	srv := httptest.NewServer(host.Router())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["capabilities"] != float64(2) {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestHost_MetricsRoute(t *testing.T) {
	host := NewHost(testInvoker(), "test", testLogger())
	srv := httptest.NewServer(host.Router())
	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	srv.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("metrics should not be served until mounted, got %d", resp.StatusCode)
	}

	host.MountMetrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("toolpilot_uptime_seconds 1\n"))
	}))
	srv = httptest.NewServer(host.Router())
	defer srv.Close()
	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var sb strings.Builder
	if _, err := io.Copy(&sb, resp.Body); err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK || !strings.Contains(sb.String(), "toolpilot_uptime_seconds") {
		t.Fatalf("status %d body %q", resp.StatusCode, sb.String())
	}
}

func TestClientHost_StreamableHTTP(t *testing.T) {
	host := NewHost(testInvoker(), "test", testLogger())
	srv := httptest.NewServer(host.Router())
	defer srv.Close()

	tr, err := HTTPTransport(srv.URL + MCPPath)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	client, err := Connect(ctx, tr, "test", testLogger())
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer client.Close()

	env, err := client.Invoke(ctx, "echo", map[string]any{"text": "over http"})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if env.Text() != "echo:over http" {
		t.Fatalf("unexpected envelope %+v", env)
	}
}

func TestTransportBuilders(t *testing.T) {
	if _, err := CommandTransport(context.Background(), "   "); err == nil {
		t.Fatal("expected error for empty command")
	}
	if _, err := HTTPTransport("ftp://host"); err == nil {
		t.Fatal("expected error for non-http endpoint")
	}
	if _, err := CommandTransport(context.Background(), "toolpilot serve"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
