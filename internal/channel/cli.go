package channel

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"toolpilot/internal/domain"
)

const prompt = "You> "

// CLI implements domain.Channel for interactive terminal chat. Each line is an
// independent query; nothing carries over between them.
type CLI struct {
	logger  *slog.Logger
	in      io.Reader
	out     io.Writer
	spinner bool

	thinking  bool
	thinkMu   sync.Mutex
	thinkStop chan struct{}
	thinkDone chan struct{}
}

type CLIConfig struct {
	Logger *slog.Logger
	In     io.Reader
	Out    io.Writer
	// Spinner animates a "Thinking..." line while a query runs.
	Spinner bool
}

func NewCLI(cfg CLIConfig) *CLI {
	if cfg.In == nil {
		cfg.In = os.Stdin
	}
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &CLI{
		logger:  cfg.Logger,
		in:      cfg.In,
		out:     cfg.Out,
		spinner: cfg.Spinner,
	}
}

func (c *CLI) Name() string { return "cli" }

// Run reads queries until EOF, /quit, or ctx is cancelled. A failed query is
// reported and the session continues.
func (c *CLI) Run(ctx context.Context, p domain.QueryProcessor) error {
	_, _ = fmt.Fprintln(c.out, "toolpilot. Type your question and press Enter. Type /help for commands, /quit to exit.")
	_, _ = fmt.Fprint(c.out, prompt)

	scanner := bufio.NewScanner(c.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		if ctx.Err() != nil {
			return nil
		}
		if !scanner.Scan() {
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
			_, _ = fmt.Fprint(c.out, prompt)
			continue
		case "/quit", "/exit", "/q":
			c.logger.Info("user requested quit")
			return nil
		case "/help":
			_, _ = fmt.Fprintln(c.out, "Ask anything; the assistant calls tools as needed.\n/quit, /exit, /q  leave the session")
			_, _ = fmt.Fprint(c.out, prompt)
			continue
		}

		c.startThinking()
		answer, err := p.ProcessQuery(ctx, line)
		c.stopThinking()

		switch {
		case err != nil && ctx.Err() != nil:
			return nil
		case err != nil:
			c.logger.Error("query failed", "error", err)
			_, _ = fmt.Fprintf(c.out, "Error: %v\n", err)
		default:
			_, _ = fmt.Fprintln(c.out, "--- toolpilot ---")
			_, _ = fmt.Fprintln(c.out, answer)
			_, _ = fmt.Fprintln(c.out, "-----------------")
		}
		_, _ = fmt.Fprint(c.out, prompt)
	}
}

func (c *CLI) startThinking() {
	if !c.spinner {
		return
	}
	c.thinkMu.Lock()
	defer c.thinkMu.Unlock()
	if c.thinking {
		return
	}
	c.thinking = true
	c.thinkStop = make(chan struct{})
	c.thinkDone = make(chan struct{})
	go func(stop, done chan struct{}) {
		defer close(done)
		frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
		i := 0
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				fmt.Fprintf(c.out, "\r%s Thinking...", frames[i%len(frames)])
				i++
			}
		}
	}(c.thinkStop, c.thinkDone)
}

func (c *CLI) stopThinking() {
	c.thinkMu.Lock()
	defer c.thinkMu.Unlock()
	if !c.thinking {
		return
	}
	c.thinking = false
	close(c.thinkStop)
	<-c.thinkDone
	_, _ = fmt.Fprint(c.out, "\r\033[K")
}

// Ask runs a single query and writes the answer to out.
func Ask(ctx context.Context, p domain.QueryProcessor, query string, out io.Writer) error {
	query = strings.TrimSpace(query)
	if query == "" {
		return errors.New("query is empty")
	}
	answer, err := p.ProcessQuery(ctx, query)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, answer)
	return err
}

var _ domain.Channel = (*CLI)(nil)
