// Package classifier provides the OpenAI-backed blocker classifier client.
//
// Given one blocker type and a user's evidence window, it asks the model for a
// detection verdict and parses the JSON reply. One call covers exactly one
// blocker type; callers that need several types issue several calls.
package classifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/luhsprwhk/RubberDuckTarot-sub001/internal/models"
)

// DefaultCallTimeout bounds a single classifier call. An unresponsive model
// must not stall an entire nightly batch.
const DefaultCallTimeout = 60 * time.Second

// chatService defines the minimal interface for chat completions, allowing
// tests to stub the OpenAI client.
type chatService interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Request carries everything the classifier needs for one blocker type.
type Request struct {
	BlockerType   models.BlockerType
	Insights      []models.InsightRecord
	Conversations []models.ConversationRecord
	Config        models.AnalysisConfig
}

// Response is the classifier's verdict for one blocker type. A well-formed
// Detected=false is a valid negative, not an error.
type Response struct {
	Detected        bool                     `json:"detected"`
	Confidence      float64                  `json:"confidence"`
	Severity        models.Severity          `json:"severity"`
	Title           string                   `json:"title"`
	Description     string                   `json:"description"`
	Patterns        []models.DetectedPattern `json:"patterns"`
	Occurrences     int                      `json:"occurrences"`
	BlockTypeIDs    []string                 `json:"block_type_ids"`
	InsightIDs      []int                    `json:"insight_ids"`
	ConversationIDs []int                    `json:"conversation_ids"`
	Recommendations []string                 `json:"recommendations"`
}

// Client wraps the OpenAI chat completion service for blocker classification.
type Client struct {
	chat        chatService
	model       openai.ChatModel
	callTimeout time.Duration
}

// Opts holds configuration for creating a Client.
type Opts struct {
	APIKey      string
	Model       string
	CallTimeout time.Duration
}

// Option configures a Client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the chat model used for classification.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithCallTimeout overrides the per-call timeout.
func WithCallTimeout(d time.Duration) Option {
	return func(o *Opts) { o.CallTimeout = d }
}

// NewClient initializes a classifier client. The API key falls back to the
// OPENAI_API_KEY environment variable.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	model := openai.ChatModelGPT4oMini
	if cfg.Model != "" {
		model = openai.ChatModel(cfg.Model)
	}
	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	slog.Debug("classifier.NewClient: initialized", "model", model, "call_timeout", timeout)
	// chatService is satisfied by *openai.ChatCompletionService, not the value.
	return &Client{chat: &cli.Chat.Completions, model: model, callTimeout: timeout}, nil
}

// NewClientWithService creates a Client backed by a custom chat service.
// Used by tests and the validation harness's stub mode.
func NewClientWithService(chat chatService, model string, callTimeout time.Duration) *Client {
	if callTimeout <= 0 {
		callTimeout = DefaultCallTimeout
	}
	return &Client{chat: chat, model: openai.ChatModel(model), callTimeout: callTimeout}
}

// ModelVersion returns the chat model identifier used for classification.
func (c *Client) ModelVersion() string {
	return string(c.model)
}

// Classify asks the model whether the given blocker type is present in the
// supplied evidence. Malformed or non-parseable replies return
// models.ErrClassifier; a timeout returns models.ErrClassifierTimeout.
func (c *Client) Classify(ctx context.Context, req Request) (*Response, error) {
	if !models.IsValidBlockerType(req.BlockerType) {
		return nil, fmt.Errorf("%w: unknown blocker type %q", models.ErrClassifier, req.BlockerType)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(buildSystemPrompt(req.BlockerType, req.Config)),
			openai.UserMessage(buildUserPrompt(req)),
		},
		Temperature:         openai.Float(req.Config.ModelSettings.Temperature),
		MaxCompletionTokens: openai.Int(int64(req.Config.ModelSettings.MaxOutputTokens)),
	}

	resp, err := c.chat.New(callCtx, params)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() == context.DeadlineExceeded {
			slog.Warn("Client.Classify: call timed out", "blocker_type", req.BlockerType, "timeout", c.callTimeout)
			return nil, fmt.Errorf("%w: %s", models.ErrClassifierTimeout, req.BlockerType)
		}
		slog.Warn("Client.Classify: chat completion failed", "error", err, "blocker_type", req.BlockerType)
		return nil, fmt.Errorf("%w: %v", models.ErrClassifier, err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		slog.Warn("Client.Classify: no choices returned", "blocker_type", req.BlockerType)
		return nil, fmt.Errorf("%w: no choices returned", models.ErrClassifier)
	}

	verdict, err := parseVerdict(resp.Choices[0].Message.Content)
	if err != nil {
		slog.Warn("Client.Classify: malformed verdict", "error", err, "blocker_type", req.BlockerType)
		return nil, fmt.Errorf("%w: %v", models.ErrClassifier, err)
	}
	sanitizeVerdict(req.BlockerType, verdict)

	slog.Debug("Client.Classify: verdict received",
		"blocker_type", req.BlockerType, "detected", verdict.Detected, "confidence", verdict.Confidence)
	return verdict, nil
}

// parseVerdict decodes the model's JSON reply, tolerating markdown code fences.
func parseVerdict(content string) (*Response, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, fmt.Errorf("empty response content")
	}
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
		trimmed = strings.TrimSpace(trimmed)
	}
	var verdict Response
	if err := json.Unmarshal([]byte(trimmed), &verdict); err != nil {
		return nil, fmt.Errorf("failed to decode verdict JSON: %w", err)
	}
	return &verdict, nil
}

// sanitizeVerdict clamps out-of-range fields so a sloppy model reply cannot
// violate downstream invariants.
func sanitizeVerdict(bt models.BlockerType, v *Response) {
	if v.Confidence < 0 {
		v.Confidence = 0
	}
	if v.Confidence > 1 {
		v.Confidence = 1
	}
	if !models.IsValidSeverity(v.Severity) {
		fallback := models.BlockerDefaultSeverity(bt)
		if v.Severity != "" {
			slog.Warn("sanitizeVerdict: unknown severity coerced", "blocker_type", bt, "severity", v.Severity, "fallback", fallback)
		}
		v.Severity = fallback
	}
	if v.Detected && v.Occurrences < 1 {
		v.Occurrences = 1
	}
	for i := range v.Patterns {
		if v.Patterns[i].Strength < 0 {
			v.Patterns[i].Strength = 0
		}
		if v.Patterns[i].Strength > 1 {
			v.Patterns[i].Strength = 1
		}
	}
}
