// Package llm defines the transport interface the core consumes to
// drive a model and stream its output (spec.md's "external collaborator
// (a)"), plus one concrete raw net/http implementation. The request/retry
// shape is grounded on hector's pkg/httpclient.Client (exponential
// backoff keyed off a RetryStrategy derived from the HTTP status code)
// and the streaming-via-iterator surface on hector's
// pkg/model/anthropic.Client, which returns iter.Seq2[*Response, error]
// rather than a channel — adopted here since Go 1.23 range-over-func
// gives callers for-range syntax over a streamed sequence without a
// separate consumer goroutine, the same ergonomic win
// ternarybob-iter's Seq helpers chase in a general-purpose package.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/kadirpekel/forge/pkg/logger"
)

// Role is a chat message's speaker.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn of the conversation handed to the model.
type Message struct {
	Role       Role
	Content    string
	ToolCallID string // set on RoleTool messages reporting a tool result
}

// ToolCall is a model-requested invocation surfaced mid-stream.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

// Chunk is one piece of a streamed response: either a text delta or a
// completed tool call request, never both.
type Chunk struct {
	TextDelta string
	ToolCall  *ToolCall
	Done      bool
	Usage     Usage
}

// Usage is token accounting surfaced at stream completion.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// Client is the interface forge's core consumes: given a conversation and
// the tool catalogue (as JSON-Schema function descriptors from
// tool.Registry.Describe), stream the model's reply.
type Client interface {
	Chat(ctx context.Context, messages []Message, tools []map[string]any) iter.Seq2[Chunk, error]
}

// RetryStrategy mirrors hector's httpclient taxonomy: how aggressively to
// retry a failed HTTP attempt.
type RetryStrategy int

const (
	NoRetry RetryStrategy = iota
	ConservativeRetry
	SmartRetry
)

// DefaultStrategy classifies a status code the same way hector's
// httpclient.DefaultStrategy does.
func DefaultStrategy(statusCode int) RetryStrategy {
	switch statusCode {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return SmartRetry
	case http.StatusRequestTimeout, http.StatusInternalServerError,
		http.StatusBadGateway, http.StatusGatewayTimeout:
		return ConservativeRetry
	default:
		return NoRetry
	}
}

// HTTPClient is a raw net/http-based Client implementation: no vendor
// SDK, matching hector's own anthropic.Client approach. It retries
// transient failures with jittered exponential backoff before falling
// back to a final error, honoring Retry-After when the server sends one.
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	log        *slog.Logger
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

func WithHTTPClient(c *http.Client) Option { return func(h *HTTPClient) { h.httpClient = c } }
func WithMaxRetries(n int) Option          { return func(h *HTTPClient) { h.maxRetries = n } }
func WithBaseDelay(d time.Duration) Option { return func(h *HTTPClient) { h.baseDelay = d } }
func WithMaxDelay(d time.Duration) Option  { return func(h *HTTPClient) { h.maxDelay = d } }

// NewHTTPClient builds a streaming chat client against an
// Anthropic-Messages-API-shaped endpoint.
func NewHTTPClient(baseURL, apiKey, model string, opts ...Option) *HTTPClient {
	h := &HTTPClient{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		maxRetries: 5,
		baseDelay:  2 * time.Second,
		maxDelay:   60 * time.Second,
		log:        logger.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type wireRequest struct {
	Model    string         `json:"model"`
	Messages []wireMessage  `json:"messages"`
	Tools    []map[string]any `json:"tools,omitempty"`
	Stream   bool           `json:"stream"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Chat streams a chat completion. Each iteration step yields either a
// text delta Chunk or a completed ToolCall Chunk; the final yield has
// Done set with accumulated Usage.
func (h *HTTPClient) Chat(ctx context.Context, messages []Message, tools []map[string]any) iter.Seq2[Chunk, error] {
	return func(yield func(Chunk, error) bool) {
		wireMsgs := make([]wireMessage, 0, len(messages))
		for _, m := range messages {
			wireMsgs = append(wireMsgs, wireMessage{Role: string(m.Role), Content: m.Content})
		}
		body, err := json.Marshal(wireRequest{Model: h.model, Messages: wireMsgs, Tools: tools, Stream: true})
		if err != nil {
			yield(Chunk{}, fmt.Errorf("llm: encode request: %w", err))
			return
		}

		resp, err := h.doWithRetry(ctx, body)
		if err != nil {
			yield(Chunk{}, err)
			return
		}
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "" || payload == "[DONE]" {
				continue
			}
			chunk, perr := decodeEvent([]byte(payload))
			if perr != nil {
				if !yield(Chunk{}, fmt.Errorf("llm: decode stream event: %w", perr)) {
					return
				}
				continue
			}
			if !yield(chunk, nil) {
				return
			}
			if chunk.Done {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield(Chunk{}, fmt.Errorf("llm: read stream: %w", err))
		}
	}
}

type wireEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Text string `json:"text"`
	} `json:"delta"`
	ToolCall *struct {
		ID   string         `json:"id"`
		Name string         `json:"name"`
		Args map[string]any `json:"input"`
	} `json:"tool_call,omitempty"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func decodeEvent(data []byte) (Chunk, error) {
	var ev wireEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return Chunk{}, err
	}
	switch ev.Type {
	case "message_stop":
		return Chunk{Done: true, Usage: Usage{InputTokens: ev.Usage.InputTokens, OutputTokens: ev.Usage.OutputTokens}}, nil
	case "tool_use":
		if ev.ToolCall == nil {
			return Chunk{}, fmt.Errorf("tool_use event missing tool_call payload")
		}
		return Chunk{ToolCall: &ToolCall{ID: ev.ToolCall.ID, Name: ev.ToolCall.Name, Args: ev.ToolCall.Args}}, nil
	default:
		return Chunk{TextDelta: ev.Delta.Text}, nil
	}
}

func (h *HTTPClient) doWithRetry(ctx context.Context, body []byte) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+"/v1/messages", bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("llm: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", h.apiKey)

		resp, err := h.httpClient.Do(req)
		if err != nil {
			if attempt >= h.maxRetries {
				return nil, fmt.Errorf("llm: request failed after %d attempts: %w", attempt+1, err)
			}
			h.sleep(ctx, h.calculateDelay(ConservativeRetry, attempt, resp))
			continue
		}

		strategy := DefaultStrategy(resp.StatusCode)
		if strategy == NoRetry {
			return resp, nil
		}
		if attempt >= h.maxRetries {
			return resp, fmt.Errorf("llm: max retries (%d) exceeded, last status %d", h.maxRetries, resp.StatusCode)
		}
		delay := h.calculateDelay(strategy, attempt, resp)
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		h.log.Warn("llm: retrying request", "attempt", attempt, "delay", delay, "status", resp.StatusCode)
		h.sleep(ctx, delay)
	}
}

func (h *HTTPClient) calculateDelay(strategy RetryStrategy, attempt int, resp *http.Response) time.Duration {
	if strategy == SmartRetry && resp != nil {
		if ra := resp.Header.Get("retry-after"); ra != "" {
			if secs, err := time.ParseDuration(ra + "s"); err == nil {
				return secs
			}
		}
	}
	backoff := float64(h.baseDelay) * math.Pow(2, float64(attempt))
	jitter := 1 + 0.2*(rand.Float64()*2-1)
	delay := time.Duration(backoff * jitter)
	if delay > h.maxDelay {
		delay = h.maxDelay
	}
	return delay
}

func (h *HTTPClient) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}

// DebuggerClient turns a failure (goal, tool name, failure output) into a
// single-shot chat request over an llm.Client and expects the model to
// answer with a JSON array of strategies. recovery.LLMDebugger wraps it
// to implement recovery's Debugger interface.
type DebuggerClient struct {
	client Client
}

// NewDebuggerClient wraps an llm.Client for use by recovery.LLMDebugger.
func NewDebuggerClient(c Client) *DebuggerClient { return &DebuggerClient{client: c} }

// WireStrategy mirrors recovery.Strategy's fields so the model's
// structured answer decodes without importing pkg/recovery here
// (avoiding an import cycle: pkg/recovery imports pkg/llm, not the
// reverse). recovery.LLMDebugger converts each WireStrategy into its own
// Strategy type.
type WireStrategy struct {
	Kind                   string         `json:"kind"`
	Description            string         `json:"description"`
	Confidence             float64        `json:"confidence"`
	Risk                   string         `json:"risk"`
	EstimatedSuccessRate   float64        `json:"estimated_success_rate"`
	AdjustedArgs           map[string]any `json:"adjusted_args,omitempty"`
	Rationale              string         `json:"rationale"`
}

// Propose sends the failure as a single user message asking for a JSON
// array of WireStrategy and decodes the model's full text reply.
func (d *DebuggerClient) Propose(ctx context.Context, goal, toolName string, failureOutput string) ([]WireStrategy, error) {
	prompt := fmt.Sprintf(
		"Goal: %s\nFailed tool: %s\nFailure: %s\nRespond with a JSON array of recovery strategies, each with fields kind, description, confidence, risk, estimated_success_rate, adjusted_args, rationale.",
		goal, toolName, failureOutput,
	)
	var out strings.Builder
	for chunk, err := range d.client.Chat(ctx, []Message{{Role: RoleUser, Content: prompt}}, nil) {
		if err != nil {
			return nil, fmt.Errorf("llm: debugger consultation: %w", err)
		}
		out.WriteString(chunk.TextDelta)
		if chunk.Done {
			break
		}
	}

	var strategies []WireStrategy
	if err := json.Unmarshal([]byte(out.String()), &strategies); err != nil {
		return nil, fmt.Errorf("llm: decode strategies: %w", err)
	}
	return strategies, nil
}
