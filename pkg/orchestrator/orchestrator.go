// Package orchestrator turns one user query into one assistant reply.
//
// A query that asks for an image goes to the image model first; any
// failure there falls through to the text path. The text path is a
// grounded, tool-aware generation with a bounded retry that downgrades
// to a faster model after the first failure.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/vango-go/antron/pkg/core"
	"github.com/vango-go/antron/pkg/core/types"
)

const (
	DefaultPrimaryModel   = "gemini-3-pro-preview"
	DefaultFallbackModel  = "gemini-3-flash-preview"
	DefaultImageModel     = "gemini-2.5-flash-image"
	DefaultMaxAttempts    = 3
	DefaultTemperature    = 0.3
	DefaultThinkingBudget = 32768
	ImageAspectRatio      = "1:1"
)

// ErrSynthesisFailed is wrapped by the error returned when every attempt
// of the text path failed.
var ErrSynthesisFailed = errors.New("synthesis failed")

// Backend is the remote inference surface the orchestrator drives.
type Backend interface {
	core.TextGenerator
	core.ImageGenerator
}

// Config selects models and the retry budget.
type Config struct {
	PrimaryModel   string
	FallbackModel  string
	ImageModel     string
	MaxAttempts    int
	Temperature    float32
	ThinkingBudget int32
	// RetryDelay is the pause between attempts. Zero retries immediately.
	RetryDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		PrimaryModel:   DefaultPrimaryModel,
		FallbackModel:  DefaultFallbackModel,
		ImageModel:     DefaultImageModel,
		MaxAttempts:    DefaultMaxAttempts,
		Temperature:    DefaultTemperature,
		ThinkingBudget: DefaultThinkingBudget,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if strings.TrimSpace(c.PrimaryModel) == "" {
		c.PrimaryModel = d.PrimaryModel
	}
	if strings.TrimSpace(c.FallbackModel) == "" {
		c.FallbackModel = d.FallbackModel
	}
	if strings.TrimSpace(c.ImageModel) == "" {
		c.ImageModel = d.ImageModel
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.Temperature <= 0 {
		c.Temperature = d.Temperature
	}
	if c.ThinkingBudget <= 0 {
		c.ThinkingBudget = d.ThinkingBudget
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	return c
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRand replaces the source of the cosmetic elapsed time. fn must
// return values in [0, 1).
func WithRand(fn func() float64) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.rand = fn
		}
	}
}

// Orchestrator produces assistant replies for user queries.
type Orchestrator struct {
	backend Backend
	cfg     Config
	logger  *slog.Logger
	rand    func() float64
}

func New(backend Backend, cfg Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		backend: backend,
		cfg:     cfg.withDefaults(),
		logger:  slog.Default(),
		rand:    rand.Float64,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("component", "orchestrator")
	return o
}

// Result is the outcome of one successful turn.
type Result struct {
	Orchestration    types.OrchestrationResult
	UsedModel        string
	NodeDistribution map[string]int
	Sources          []types.Source
	// ImageResponse is a data URI, set only on the image path.
	ImageResponse string
	// Model is the backend model that produced the reply.
	Model    string
	Attempts int
}

// AssistantMessage renders the result as an assistant message.
func (r *Result) AssistantMessage(id string, timestamp int64) types.Message {
	orch := r.Orchestration
	return types.Message{
		ID:               id,
		Role:             types.RoleAssistant,
		Content:          orch.FinalSynthesis,
		Timestamp:        timestamp,
		Orchestration:    &orch,
		UsedModel:        r.UsedModel,
		NodeDistribution: r.NodeDistribution,
		Sources:          r.Sources,
		ImageResponse:    r.ImageResponse,
	}
}

// Synthesize answers query, optionally with an attachment. On the text
// path it makes at most MaxAttempts calls; context cancellation is never
// retried. Exhaustion returns an inference error wrapping
// ErrSynthesisFailed and the last backend error.
func (o *Orchestrator) Synthesize(ctx context.Context, query string, attachment *types.Attachment) (*Result, error) {
	if o == nil || o.backend == nil {
		return nil, fmt.Errorf("backend is required")
	}

	if IsImageRequest(query) {
		res, err := o.renderImage(ctx, query)
		if err == nil {
			return res, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		o.logger.Warn("image path failed, falling back to text", "error", err)
	}

	return o.synthesizeText(ctx, query, attachment)
}

var errNoImage = errors.New("image model returned no image")

func (o *Orchestrator) renderImage(ctx context.Context, query string) (*Result, error) {
	resp, err := o.backend.GenerateImage(ctx, &core.ImageRequest{
		Model:       o.cfg.ImageModel,
		Prompt:      imagePrompt(query),
		AspectRatio: ImageAspectRatio,
	})
	if err != nil {
		return nil, err
	}
	if resp == nil || len(resp.Data) == 0 {
		return nil, errNoImage
	}
	mimeType := resp.MIMEType
	if mimeType == "" {
		mimeType = "image/png"
	}

	return &Result{
		Orchestration: types.OrchestrationResult{
			SimulatedResponses: []types.SimulatedResponse{},
			FinalSynthesis:     imageConfirmation,
			EstimatedTime:      imageEstimatedTime,
		},
		UsedModel:        imageUsedModel,
		NodeDistribution: imageNodes(),
		ImageResponse:    types.DataURI(mimeType, resp.Data),
		Model:            o.cfg.ImageModel,
		Attempts:         1,
	}, nil
}

func (o *Orchestrator) synthesizeText(ctx context.Context, query string, attachment *types.Attachment) (*Result, error) {
	var (
		attempt int
		lastErr error
		resp    *core.TextResponse
		model   string
	)

	backoff := retry.WithMaxRetries(uint64(o.cfg.MaxAttempts-1), o.backoff())
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		model = o.modelFor(attempt)
		r, err := o.backend.GenerateText(ctx, o.textRequest(model, query, attachment))
		if err == nil {
			resp = r
			return nil
		}
		lastErr = err
		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		o.logger.Warn("text synthesis attempt failed", "attempt", attempt, "model", model, "error", err)
		return retry.RetryableError(err)
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		if lastErr == nil {
			lastErr = err
		}
		return nil, core.NewInferenceError(
			fmt.Sprintf("synthesis failed after %d attempts", attempt),
			fmt.Errorf("%w: %w", ErrSynthesisFailed, lastErr),
		)
	}

	return o.textResult(resp, model, attempt), nil
}

func (o *Orchestrator) backoff() retry.Backoff {
	delay := o.cfg.RetryDelay
	return retry.BackoffFunc(func() (time.Duration, bool) {
		return delay, false
	})
}

// modelFor returns the primary model for the first attempt and the
// fallback model afterwards.
func (o *Orchestrator) modelFor(attempt int) string {
	if attempt <= 1 {
		return o.cfg.PrimaryModel
	}
	return o.cfg.FallbackModel
}

func (o *Orchestrator) textRequest(model, query string, attachment *types.Attachment) *core.TextRequest {
	temp := o.cfg.Temperature
	req := &core.TextRequest{
		Model:        model,
		System:       systemInstruction,
		Prompt:       mandatePrompt(query),
		Attachment:   attachment,
		Temperature:  &temp,
		Tools:        Tools(),
		GoogleSearch: true,
	}
	if isProModel(model) {
		budget := o.cfg.ThinkingBudget
		req.ThinkingBudget = &budget
	}
	return req
}

func (o *Orchestrator) textResult(resp *core.TextResponse, model string, attempts int) *Result {
	text := ""
	var (
		calls   []types.ToolCall
		sources []types.Source
	)
	if resp != nil {
		text = resp.Text
		calls = resp.ToolCalls
		sources = resp.Sources
	}
	if strings.TrimSpace(text) == "" {
		text = emptyReplyFallback
	}

	usedModel := speedNodeLabel
	if isProModel(model) {
		usedModel = proModelLabel
	}

	return &Result{
		Orchestration: types.OrchestrationResult{
			SimulatedResponses: []types.SimulatedResponse{{Model: "Sovereign Consensus", Summary: "Multi-node verification active."}},
			FinalSynthesis:     text,
			EstimatedTime:      fmt.Sprintf("%.2fs", o.rand()*0.1),
			ToolCalls:          calls,
		},
		UsedModel:        usedModel,
		NodeDistribution: textNodes(),
		Sources:          sources,
		Model:            model,
		Attempts:         attempts,
	}
}

func isProModel(model string) bool {
	return strings.Contains(model, "pro")
}
