package gemini

import (
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/vango-go/antron/pkg/core"
	"github.com/vango-go/antron/pkg/core/live"
	"github.com/vango-go/antron/pkg/core/types"
)

var errNoAudio = errors.New("response carried no audio")

// parseTextResponse collects text, function calls and grounding sources
// from the first candidate. Thought parts are skipped.
func parseTextResponse(resp *genai.GenerateContentResponse) *core.TextResponse {
	out := &core.TextResponse{}
	cand := firstCandidate(resp)
	if cand == nil {
		return out
	}

	var text strings.Builder
	if cand.Content != nil {
		for i, part := range cand.Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			if part.Text != "" {
				text.WriteString(part.Text)
			}
			if part.FunctionCall != nil {
				id := part.FunctionCall.ID
				if id == "" {
					// Gemini doesn't always provide IDs
					id = fmt.Sprintf("call_%s_%d", part.FunctionCall.Name, i)
				}
				out.ToolCalls = append(out.ToolCalls, types.ToolCall{
					ID:   id,
					Name: part.FunctionCall.Name,
					Args: part.FunctionCall.Args,
				})
			}
		}
	}
	out.Text = text.String()
	out.Sources = groundingSources(cand.GroundingMetadata)
	return out
}

// groundingSources keeps web chunks with a URI, deduplicated by URI.
func groundingSources(meta *genai.GroundingMetadata) []types.Source {
	if meta == nil {
		return nil
	}
	var sources []types.Source
	seen := make(map[string]bool)
	for _, chunk := range meta.GroundingChunks {
		if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" || seen[chunk.Web.URI] {
			continue
		}
		seen[chunk.Web.URI] = true
		sources = append(sources, types.Source{
			URI:    chunk.Web.URI,
			Title:  chunk.Web.Title,
			Domain: chunk.Web.Domain,
		})
	}
	return sources
}

// parseImageResponse returns the last inline image. Data is empty when
// the model answered with text only.
func parseImageResponse(resp *genai.GenerateContentResponse) *core.ImageResponse {
	out := &core.ImageResponse{}
	cand := firstCandidate(resp)
	if cand == nil || cand.Content == nil {
		return out
	}
	var text strings.Builder
	for _, part := range cand.Content.Parts {
		if part == nil {
			continue
		}
		if part.InlineData != nil && len(part.InlineData.Data) > 0 {
			out.Data = part.InlineData.Data
			out.MIMEType = part.InlineData.MIMEType
			continue
		}
		if part.Text != "" && !part.Thought {
			text.WriteString(part.Text)
		}
	}
	out.Text = text.String()
	return out
}

// parseSpeechResponse concatenates inline PCM parts in order.
func parseSpeechResponse(resp *genai.GenerateContentResponse) (*core.SpeechResponse, error) {
	cand := firstCandidate(resp)
	if cand == nil || cand.Content == nil {
		return nil, core.NewProviderError(providerName, errNoAudio)
	}
	out := &core.SpeechResponse{SampleRateHz: live.OutputSampleRateHz}
	for _, part := range cand.Content.Parts {
		if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
			continue
		}
		if len(out.PCM) == 0 {
			out.SampleRateHz = live.SampleRateFromMIME(part.InlineData.MIMEType, live.OutputSampleRateHz)
		}
		out.PCM = append(out.PCM, part.InlineData.Data...)
	}
	if len(out.PCM) == 0 {
		return nil, core.NewProviderError(providerName, errNoAudio)
	}
	return out, nil
}

func firstCandidate(resp *genai.GenerateContentResponse) *genai.Candidate {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil
	}
	return resp.Candidates[0]
}
