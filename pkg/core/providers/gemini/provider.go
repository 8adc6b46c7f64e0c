// Package gemini implements the Google Gemini provider on top of the
// google.golang.org/genai SDK. It translates core requests into genai
// content, and serves the live package as a streaming Transport.
package gemini

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"google.golang.org/genai"

	"github.com/vango-go/antron/pkg/core"
)

const providerName = "gemini"

// models is the subset of *genai.Models the provider calls.
type models interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Provider implements core.Provider and live.Transport for Gemini.
type Provider struct {
	apiKey     string
	baseURL    string
	apiVersion string
	httpClient *http.Client

	models models
	live   liveConnector
}

var _ core.Provider = (*Provider)(nil)

// New creates a Gemini provider bound to apiKey.
func New(ctx context.Context, apiKey string, opts ...Option) (*Provider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("gemini: api key is required")
	}
	p := &Provider{apiKey: apiKey}
	for _, opt := range opts {
		opt(p)
	}

	cfg := &genai.ClientConfig{
		APIKey:     p.apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: p.httpClient,
	}
	if p.baseURL != "" {
		cfg.HTTPOptions.BaseURL = p.baseURL
	}
	if p.apiVersion != "" {
		cfg.HTTPOptions.APIVersion = p.apiVersion
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, core.NewProviderError(providerName, err)
	}
	p.models = client.Models
	p.live = sdkLive{live: client.Live}
	return p, nil
}

// Name returns the provider identifier.
func (p *Provider) Name() string {
	return providerName
}

// GenerateText runs one grounded, tool-aware generation turn.
func (p *Provider) GenerateText(ctx context.Context, req *core.TextRequest) (*core.TextResponse, error) {
	if req == nil || strings.TrimSpace(req.Model) == "" {
		return nil, core.NewInvalidRequestErrorWithParam("model is required", "model")
	}
	contents, err := buildTextContents(req)
	if err != nil {
		return nil, err
	}
	resp, err := p.models.GenerateContent(ctx, stripProviderPrefix(req.Model), contents, buildTextConfig(req))
	if err != nil {
		return nil, mapError(err)
	}
	return parseTextResponse(resp), nil
}

// GenerateImage renders req.Prompt with an image model.
func (p *Provider) GenerateImage(ctx context.Context, req *core.ImageRequest) (*core.ImageResponse, error) {
	if req == nil || strings.TrimSpace(req.Model) == "" {
		return nil, core.NewInvalidRequestErrorWithParam("model is required", "model")
	}
	contents := []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}
	resp, err := p.models.GenerateContent(ctx, stripProviderPrefix(req.Model), contents, buildImageConfig(req))
	if err != nil {
		return nil, mapError(err)
	}
	return parseImageResponse(resp), nil
}

// SynthesizeSpeech voices req.Text with a prebuilt voice.
func (p *Provider) SynthesizeSpeech(ctx context.Context, req *core.SpeechRequest) (*core.SpeechResponse, error) {
	if req == nil || strings.TrimSpace(req.Model) == "" {
		return nil, core.NewInvalidRequestErrorWithParam("model is required", "model")
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, core.NewInvalidRequestErrorWithParam("text is required", "text")
	}
	contents := []*genai.Content{genai.NewContentFromText(req.Text, genai.RoleUser)}
	resp, err := p.models.GenerateContent(ctx, stripProviderPrefix(req.Model), contents, buildSpeechConfig(req))
	if err != nil {
		return nil, mapError(err)
	}
	return parseSpeechResponse(resp)
}

func stripProviderPrefix(model string) string {
	if idx := strings.Index(model, "/"); idx != -1 {
		return model[idx+1:]
	}
	return model
}
