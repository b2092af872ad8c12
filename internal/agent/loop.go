package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"toolpilot/internal/domain"
)

const (
	// DefaultMaxIterations bounds oracle round trips per query.
	DefaultMaxIterations = 10
	defaultToolTimeout   = 60 * time.Second
	defaultLLMMaxTokens  = 4096

	// PlaceholderResponse is returned when the oracle finishes without any text.
	PlaceholderResponse = "I've completed processing but have no additional response."
	// IterationLimitResponse is returned when the oracle keeps requesting tools past the ceiling.
	IterationLimitResponse = "Reached the maximum number of tool-calling iterations without a final answer."
)

// ErrProtocol is matched by failures that abort a query: the transport could not
// exchange a message, or the oracle could not be reached.
var ErrProtocol = errors.New("protocol error")

// ProtocolError records which exchange failed. It matches ErrProtocol and unwraps to the cause.
type ProtocolError struct {
	Op  string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrProtocol, e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

func (e *ProtocolError) Is(target error) bool { return target == ErrProtocol }

// Loop drives one user query to a final answer: call the oracle, run the tools it
// requests one after another, feed the results back, repeat.
type Loop struct {
	provider      domain.Provider
	transport     domain.Transport
	prompt        *PromptBuilder
	logger        *slog.Logger
	maxIterations int
	toolTimeout   time.Duration
	maxTokens     int
	model         string
	newID         func() string
}

// LoopConfig holds all dependencies and tuning parameters for the agent loop.
type LoopConfig struct {
	Provider      domain.Provider
	Transport     domain.Transport
	Prompt        *PromptBuilder
	Logger        *slog.Logger
	MaxIterations int
	// ToolTimeout bounds each single capability call.
	ToolTimeout time.Duration
	MaxTokens   int
	Model       string
	// NewQueryID overrides the uuid generator for query ids.
	NewQueryID func() string
}

// NewLoop creates a new agent loop with the given configuration.
func NewLoop(cfg LoopConfig) *Loop {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = defaultToolTimeout
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultLLMMaxTokens
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Prompt == nil {
		cfg.Prompt = NewPromptBuilder(PromptConfig{})
	}
	if cfg.NewQueryID == nil {
		cfg.NewQueryID = uuid.NewString
	}
	return &Loop{
		provider:      cfg.Provider,
		transport:     cfg.Transport,
		prompt:        cfg.Prompt,
		logger:        cfg.Logger,
		maxIterations: cfg.MaxIterations,
		toolTimeout:   cfg.ToolTimeout,
		maxTokens:     cfg.MaxTokens,
		model:         cfg.Model,
		newID:         cfg.NewQueryID,
	}
}

// Transcript is the full record of one query.
type Transcript struct {
	QueryID  string           `json:"query_id"`
	Messages []domain.Message `json:"messages"`
	Final    string           `json:"final"`
	// OracleCalls counts completed oracle round trips.
	OracleCalls int `json:"oracle_calls"`
	// LimitReached is set when the iteration ceiling ended the query.
	LimitReached bool `json:"limit_reached"`
}

// ProcessQuery answers userText. Capability failures never surface here; only
// protocol failures and cancellation do.
func (l *Loop) ProcessQuery(ctx context.Context, userText string) (string, error) {
	tr, err := l.ProcessQueryTranscript(ctx, userText)
	if err != nil {
		return "", err
	}
	return tr.Final, nil
}

// ProcessQueryTranscript is ProcessQuery that also returns the conversation. On error
// the transcript holds everything exchanged before the failure.
func (l *Loop) ProcessQueryTranscript(ctx context.Context, userText string) (*Transcript, error) {
	tr := &Transcript{QueryID: l.newID()}
	ctx = domain.WithQueryID(ctx, tr.QueryID)
	logger := l.logger.With("query_id", tr.QueryID)

	catalogue, err := l.transport.Discover(ctx)
	if err != nil {
		return tr, &ProtocolError{Op: "discover capabilities", Err: err}
	}
	system := l.prompt.BuildSystemPrompt(catalogue)
	logger.Info("processing query", "content_len", len(userText), "capabilities", len(catalogue))

	tr.Messages = []domain.Message{domain.UserMessage(userText)}

	for iteration := 0; iteration < l.maxIterations; iteration++ {
		logger.Debug("agent iteration", "iteration", iteration+1, "messages", len(tr.Messages))

		startTime := time.Now()
		resp, err := l.provider.Chat(ctx, domain.ChatRequest{
			System:    system,
			Messages:  tr.Messages,
			Tools:     catalogue,
			Model:     l.model,
			MaxTokens: l.maxTokens,
		})
		if err != nil {
			if ctx.Err() != nil {
				return tr, ctx.Err()
			}
			return tr, &ProtocolError{Op: "oracle call", Err: err}
		}
		resp.LatencyMs = time.Since(startTime).Milliseconds()
		tr.OracleCalls++

		assistant := domain.AssistantMessage(resp.Blocks)
		calls := assistant.ToolCalls()

		// Anything but a tool request that actually carries tool calls ends the query.
		if resp.StopReason != domain.StopToolUse || len(calls) == 0 {
			tr.Messages = append(tr.Messages, assistant)
			tr.Final = assistant.Text()
			if tr.Final == "" {
				tr.Final = PlaceholderResponse
			}
			logger.Info("query answered",
				"stop_reason", resp.StopReason,
				"oracle_calls", tr.OracleCalls,
				"latency_ms", resp.LatencyMs,
			)
			return tr, nil
		}

		tr.Messages = append(tr.Messages, assistant)
		results, err := l.dispatch(ctx, logger, calls)
		if err != nil {
			return tr, err
		}
		tr.Messages = append(tr.Messages, domain.ToolResultsMessage(results))
	}

	logger.Warn("iteration limit reached", "max_iterations", l.maxIterations)
	tr.Final = IterationLimitResponse
	tr.LimitReached = true
	return tr, nil
}

// dispatch runs calls strictly in order, one result per call.
func (l *Loop) dispatch(ctx context.Context, logger *slog.Logger, calls []domain.ToolCall) ([]domain.ToolResult, error) {
	results := make([]domain.ToolResult, 0, len(calls))
	for _, tc := range calls {
		env, err := l.invoke(ctx, logger, tc)
		if err != nil {
			return nil, err
		}
		results = append(results, domain.ToolResult{
			CallID:  tc.ID,
			Name:    tc.Name,
			Content: env.Content,
			IsError: env.IsError,
		})
	}
	return results, nil
}

type invokeOutcome struct {
	env domain.Envelope
	err error
}

// invoke is the synchronous call boundary for one tool call. The turn waits for the
// call or its timeout, whichever comes first; a timeout is a failed call, not an abort.
// Calls run one after another only for handlers that honour ctx: a handler that
// ignores cancellation keeps running after its timeout and may overlap the next call.
func (l *Loop) invoke(ctx context.Context, logger *slog.Logger, tc domain.ToolCall) (domain.Envelope, error) {
	if logger.Enabled(ctx, slog.LevelDebug) {
		if argsJSON, err := json.Marshal(tc.Arguments); err == nil {
			logger.Debug("tool arguments", "tool", tc.Name, "args", string(argsJSON))
		}
	}
	logger.Info("executing tool", "tool", tc.Name, "call_id", tc.ID)

	callCtx, cancel := context.WithTimeout(domain.WithCallID(ctx, tc.ID), l.toolTimeout)
	defer cancel()

	done := make(chan invokeOutcome, 1)
	start := time.Now()
	go func() {
		env, err := l.transport.Invoke(callCtx, tc.Name, tc.Arguments)
		done <- invokeOutcome{env: env, err: err}
	}()

	var out invokeOutcome
	select {
	case out = <-done:
	case <-callCtx.Done():
		out.err = callCtx.Err()
	}

	if out.err != nil {
		if ctx.Err() != nil {
			return domain.Envelope{}, ctx.Err()
		}
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			logger.Warn("tool timed out", "tool", tc.Name, "timeout", l.toolTimeout)
			return domain.ErrorEnvelope(fmt.Sprintf("%s timed out after %s", tc.Name, l.toolTimeout)), nil
		}
		return domain.Envelope{}, &ProtocolError{Op: "invoke " + tc.Name, Err: out.err}
	}

	logger.Debug("tool completed",
		"tool", tc.Name,
		"is_error", out.env.IsError,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return out.env, nil
}

var _ domain.QueryProcessor = (*Loop)(nil)
