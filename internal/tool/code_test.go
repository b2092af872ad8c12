package tool

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func requireSh(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no leftover scratch files, found %d entries", len(entries))
	}
}

func TestCodeTool_Descriptor(t *testing.T) {
	d := NewCodeTool(CodeConfig{}).Descriptor()
	if d.Name != "execute_code" {
		t.Fatalf("Name: got %q", d.Name)
	}
	if !strings.Contains(d.Description, "python") || !strings.Contains(d.Description, "sh") {
		t.Fatalf("description should list languages: %q", d.Description)
	}
	if len(d.InputSchema.Required) != 1 || d.InputSchema.Required[0] != "code" {
		t.Fatalf("unexpected required fields %v", d.InputSchema.Required)
	}
}

func TestCodeTool_Success(t *testing.T) {
	requireSh(t)
	tmp := t.TempDir()
	tool := NewCodeTool(CodeConfig{Timeout: 5 * time.Second, TempDir: tmp})

	out, err := tool.Execute(context.Background(), map[string]any{"language": "sh", "code": "echo hello"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.Contains(out.(string), "hello") {
		t.Fatalf("output should contain 'hello', got %q", out)
	}
	assertEmptyDir(t, tmp)
}

func TestCodeTool_NonZeroExit(t *testing.T) {
	requireSh(t)
	tmp := t.TempDir()
	tool := NewCodeTool(CodeConfig{Timeout: 5 * time.Second, TempDir: tmp})

	_, err := tool.Execute(context.Background(), map[string]any{"language": "sh", "code": "echo oops >&2; exit 3"})
	if err == nil {
		t.Fatal("expected error for exit 3")
	}
	if !strings.Contains(err.Error(), "exit status 3") || !strings.Contains(err.Error(), "oops") {
		t.Fatalf("error should carry status and output, got %v", err)
	}
	assertEmptyDir(t, tmp)
}

func TestCodeTool_InfiniteLoopTimesOut(t *testing.T) {
	requireSh(t)
	tmp := t.TempDir()
	timeout := 200 * time.Millisecond
	tool := NewCodeTool(CodeConfig{Timeout: timeout, TempDir: tmp})

	start := time.Now()
	_, err := tool.Execute(context.Background(), map[string]any{"language": "sh", "code": "while true; do :; done"})
	elapsed := time.Since(start)

	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if elapsed > timeout+killGracePeriod+2*time.Second {
		t.Fatalf("timeout took too long: %s", elapsed)
	}
	assertEmptyDir(t, tmp)
}

func TestCodeTool_OutputTruncated(t *testing.T) {
	requireSh(t)
	tool := NewCodeTool(CodeConfig{Timeout: 5 * time.Second, MaxOutputBytes: 10, TempDir: t.TempDir()})

	out, err := tool.Execute(context.Background(), map[string]any{"language": "sh", "code": "echo 0123456789abcdef"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !strings.HasPrefix(out.(string), "0123456789\n") || !strings.Contains(out.(string), "truncated") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestCodeTool_BadInput(t *testing.T) {
	tool := NewCodeTool(CodeConfig{TempDir: t.TempDir()})
	ctx := context.Background()

	if _, err := tool.Execute(ctx, map[string]any{"code": "   "}); err == nil {
		t.Fatal("expected error for blank code")
	}
	if _, err := tool.Execute(ctx, map[string]any{"code": "x", "language": "cobol"}); err == nil || !strings.Contains(err.Error(), "unsupported language") {
		t.Fatalf("expected unsupported language error, got %v", err)
	}
}
