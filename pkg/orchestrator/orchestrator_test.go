package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/vango-go/antron/pkg/core"
	"github.com/vango-go/antron/pkg/core/types"
)

type fakeBackend struct {
	mu sync.Mutex

	textReqs  []*core.TextRequest
	imageReqs []*core.ImageRequest

	// textResults are consumed in order; the last one repeats.
	textResults []textResult
	imageResp   *core.ImageResponse
	imageErr    error

	onText func(attempt int)
}

type textResult struct {
	resp *core.TextResponse
	err  error
}

func (f *fakeBackend) GenerateText(ctx context.Context, req *core.TextRequest) (*core.TextResponse, error) {
	f.mu.Lock()
	f.textReqs = append(f.textReqs, req)
	n := len(f.textReqs)
	idx := n - 1
	if idx >= len(f.textResults) {
		idx = len(f.textResults) - 1
	}
	res := f.textResults[idx]
	hook := f.onText
	f.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return res.resp, res.err
}

func (f *fakeBackend) GenerateImage(ctx context.Context, req *core.ImageRequest) (*core.ImageResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.imageReqs = append(f.imageReqs, req)
	return f.imageResp, f.imageErr
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestOrchestrator(b Backend) *Orchestrator {
	return New(b, DefaultConfig(), WithLogger(quietLogger()), WithRand(func() float64 { return 0.5 }))
}

func TestSynthesize_TextSuccess(t *testing.T) {
	b := &fakeBackend{textResults: []textResult{{resp: &core.TextResponse{
		Text:      "Wa alaikum salam.",
		ToolCalls: []types.ToolCall{{Name: ToolSetAlarm, Args: map[string]any{"time": "07:00"}}},
		Sources:   []types.Source{{URI: "https://example.com", Title: "Example"}},
	}}}}
	o := newTestOrchestrator(b)

	res, err := o.Synthesize(context.Background(), "salam", nil)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	if res.Orchestration.FinalSynthesis != "Wa alaikum salam." {
		t.Fatalf("final=%q", res.Orchestration.FinalSynthesis)
	}
	if res.Orchestration.EstimatedTime != "0.05s" {
		t.Fatalf("estimated=%q", res.Orchestration.EstimatedTime)
	}
	if res.UsedModel != "Sovereign Singularity" || res.Model != DefaultPrimaryModel || res.Attempts != 1 {
		t.Fatalf("used=%q model=%q attempts=%d", res.UsedModel, res.Model, res.Attempts)
	}
	if res.NodeDistribution["Neural Reasoning"] != 40 || len(res.NodeDistribution) != 4 {
		t.Fatalf("nodes=%v", res.NodeDistribution)
	}
	if len(res.Orchestration.SimulatedResponses) != 1 || res.Orchestration.SimulatedResponses[0].Model != "Sovereign Consensus" {
		t.Fatalf("simulated=%+v", res.Orchestration.SimulatedResponses)
	}
	if len(res.Orchestration.ToolCalls) != 1 || len(res.Sources) != 1 {
		t.Fatalf("tool calls=%d sources=%d", len(res.Orchestration.ToolCalls), len(res.Sources))
	}

	req := b.textReqs[0]
	if req.Prompt != `[MANDATE]: "salam"` {
		t.Fatalf("prompt=%q", req.Prompt)
	}
	if req.Temperature == nil || *req.Temperature != 0.3 {
		t.Fatalf("temperature=%v", req.Temperature)
	}
	if req.ThinkingBudget == nil || *req.ThinkingBudget != 32768 {
		t.Fatalf("thinking budget=%v", req.ThinkingBudget)
	}
	if !req.GoogleSearch || len(req.Tools) != 4 {
		t.Fatalf("search=%v tools=%d", req.GoogleSearch, len(req.Tools))
	}
	if !strings.Contains(req.System, "ANTRON") {
		t.Fatalf("system instruction missing persona")
	}
	if len(b.imageReqs) != 0 {
		t.Fatalf("image path used for plain query")
	}
}

func TestSynthesize_EmptyReplyFallback(t *testing.T) {
	b := &fakeBackend{textResults: []textResult{{resp: &core.TextResponse{Text: "  "}}}}
	res, err := newTestOrchestrator(b).Synthesize(context.Background(), "hello", nil)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if res.Orchestration.FinalSynthesis != "Consensus achieved." {
		t.Fatalf("final=%q", res.Orchestration.FinalSynthesis)
	}
}

func TestSynthesize_RetryDowngradesModel(t *testing.T) {
	b := &fakeBackend{textResults: []textResult{
		{err: core.NewAPIError("boom")},
		{resp: &core.TextResponse{Text: "second time"}},
	}}
	res, err := newTestOrchestrator(b).Synthesize(context.Background(), "hello", nil)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(b.textReqs) != 2 {
		t.Fatalf("calls=%d, want 2", len(b.textReqs))
	}
	if b.textReqs[0].Model != DefaultPrimaryModel || b.textReqs[1].Model != DefaultFallbackModel {
		t.Fatalf("models=%q,%q", b.textReqs[0].Model, b.textReqs[1].Model)
	}
	if b.textReqs[1].ThinkingBudget != nil {
		t.Fatalf("fallback model got a thinking budget")
	}
	if res.UsedModel != "Speed Node" || res.Attempts != 2 {
		t.Fatalf("used=%q attempts=%d", res.UsedModel, res.Attempts)
	}
}

func TestSynthesize_ExhaustsAfterThreeAttempts(t *testing.T) {
	last := errors.New("still down")
	b := &fakeBackend{textResults: []textResult{
		{err: errors.New("first")},
		{err: errors.New("second")},
		{err: last},
	}}
	_, err := newTestOrchestrator(b).Synthesize(context.Background(), "hello", nil)
	if !errors.Is(err, ErrSynthesisFailed) {
		t.Fatalf("err=%v, want ErrSynthesisFailed", err)
	}
	if !errors.Is(err, last) {
		t.Fatalf("last error not wrapped: %v", err)
	}
	if typ, _ := core.TypeOf(err); typ != core.ErrInference {
		t.Fatalf("type=%q", typ)
	}
	if len(b.textReqs) != 3 {
		t.Fatalf("calls=%d, want exactly 3", len(b.textReqs))
	}
}

func TestSynthesize_CancellationIsNotRetried(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := &fakeBackend{
		textResults: []textResult{{err: errors.New("unused")}},
		onText:      func(int) { cancel() },
	}
	_, err := newTestOrchestrator(b).Synthesize(ctx, "hello", nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v, want context.Canceled", err)
	}
	if errors.Is(err, ErrSynthesisFailed) {
		t.Fatalf("cancellation reported as synthesis failure")
	}
	if len(b.textReqs) != 1 {
		t.Fatalf("calls=%d, want 1", len(b.textReqs))
	}
}

func TestSynthesize_ImagePath(t *testing.T) {
	b := &fakeBackend{imageResp: &core.ImageResponse{Data: []byte{1, 2, 3}, MIMEType: "image/png"}}
	res, err := newTestOrchestrator(b).Synthesize(context.Background(), "Please draw a mosque at dusk", nil)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if len(b.textReqs) != 0 {
		t.Fatalf("text path used after image success")
	}
	if res.ImageResponse != "data:image/png;base64,AQID" {
		t.Fatalf("image=%q", res.ImageResponse)
	}
	if res.UsedModel != "Sovereign Visual Engine" || res.Orchestration.EstimatedTime != "2.1s" {
		t.Fatalf("used=%q estimated=%q", res.UsedModel, res.Orchestration.EstimatedTime)
	}
	if res.NodeDistribution["DALL-E 3"] != 20 {
		t.Fatalf("nodes=%v", res.NodeDistribution)
	}
	req := b.imageReqs[0]
	if req.Model != DefaultImageModel || req.AspectRatio != "1:1" || !strings.HasSuffix(req.Prompt, "Prompt: Please draw a mosque at dusk") {
		t.Fatalf("image request=%+v", req)
	}
}

func TestSynthesize_ImageFailureFallsThrough(t *testing.T) {
	tests := []struct {
		name string
		resp *core.ImageResponse
		err  error
	}{
		{"error", nil, errors.New("quota")},
		{"no image", &core.ImageResponse{Text: "cannot"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &fakeBackend{
				imageResp:   tt.resp,
				imageErr:    tt.err,
				textResults: []textResult{{resp: &core.TextResponse{Text: "described instead"}}},
			}
			res, err := newTestOrchestrator(b).Synthesize(context.Background(), "imagine a garden", nil)
			if err != nil {
				t.Fatalf("Synthesize: %v", err)
			}
			if res.ImageResponse != "" || res.Orchestration.FinalSynthesis != "described instead" {
				t.Fatalf("res=%+v", res)
			}
			if len(b.imageReqs) != 1 || len(b.textReqs) != 1 {
				t.Fatalf("image calls=%d text calls=%d", len(b.imageReqs), len(b.textReqs))
			}
		})
	}
}

func TestSynthesize_PassesAttachment(t *testing.T) {
	att := types.NewAttachment("a.png", "image/png", []byte{1})
	b := &fakeBackend{textResults: []textResult{{resp: &core.TextResponse{Text: "ok"}}}}
	if _, err := newTestOrchestrator(b).Synthesize(context.Background(), "what is this", &att); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if b.textReqs[0].Attachment == nil || b.textReqs[0].Attachment.Name != "a.png" {
		t.Fatalf("attachment not forwarded")
	}
}

func TestResult_AssistantMessage(t *testing.T) {
	res := &Result{
		Orchestration: types.OrchestrationResult{FinalSynthesis: "hi", EstimatedTime: "0.01s"},
		UsedModel:     "Speed Node",
		ImageResponse: "data:image/png;base64,AA==",
	}
	msg := res.AssistantMessage("m1", 42)
	if msg.Role != types.RoleAssistant || msg.Content != "hi" || msg.Timestamp != 42 || msg.ID != "m1" {
		t.Fatalf("msg=%+v", msg)
	}
	if msg.Orchestration == nil || msg.Orchestration.EstimatedTime != "0.01s" {
		t.Fatalf("orchestration=%+v", msg.Orchestration)
	}
	if msg.ImageResponse == "" || msg.UsedModel != "Speed Node" {
		t.Fatalf("msg=%+v", msg)
	}
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{MaxAttempts: -1, RetryDelay: -5}.withDefaults()
	if cfg.MaxAttempts != 3 || cfg.PrimaryModel != DefaultPrimaryModel || cfg.RetryDelay != 0 {
		t.Fatalf("cfg=%+v", cfg)
	}
}
