package gemini

import (
	"strings"

	"google.golang.org/genai"

	"github.com/vango-go/antron/pkg/core"
	"github.com/vango-go/antron/pkg/core/types"
)

// buildTextContents turns a single-turn request into genai content. The
// attachment, if any, follows the prompt as inline data.
func buildTextContents(req *core.TextRequest) ([]*genai.Content, error) {
	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	if req.Attachment != nil {
		data, err := req.Attachment.Bytes()
		if err != nil {
			return nil, core.NewInvalidRequestErrorWithParam(err.Error(), "attachment")
		}
		parts = append(parts, genai.NewPartFromBytes(data, req.Attachment.MIMEType))
	}
	return []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, nil
}

func buildTextConfig(req *core.TextRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature: req.Temperature,
		Tools:       translateTools(req.Tools, req.GoogleSearch),
	}
	if strings.TrimSpace(req.System) != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.ThinkingBudget != nil {
		cfg.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: req.ThinkingBudget}
	}
	return cfg
}

// translateTools groups function declarations into one tool and adds
// Google Search grounding as its own tool.
func translateTools(decls []types.FunctionDecl, googleSearch bool) []*genai.Tool {
	var result []*genai.Tool
	if googleSearch {
		result = append(result, &genai.Tool{GoogleSearch: &genai.GoogleSearch{}})
	}
	if len(decls) == 0 {
		return result
	}
	funcDecls := make([]*genai.FunctionDeclaration, 0, len(decls))
	for _, d := range decls {
		funcDecls = append(funcDecls, &genai.FunctionDeclaration{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  translateSchema(d.Parameters),
		})
	}
	return append(result, &genai.Tool{FunctionDeclarations: funcDecls})
}

func translateSchema(s *types.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Type:        schemaType(s.Type),
		Description: s.Description,
		Required:    s.Required,
		Enum:        s.Enum,
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = translateSchema(prop)
		}
	}
	return out
}

func schemaType(t string) genai.Type {
	switch strings.ToLower(t) {
	case types.SchemaObject:
		return genai.TypeObject
	case types.SchemaString:
		return genai.TypeString
	case types.SchemaBoolean:
		return genai.TypeBoolean
	case types.SchemaNumber:
		return genai.TypeNumber
	case types.SchemaInteger:
		return genai.TypeInteger
	default:
		return genai.TypeUnspecified
	}
}

func buildImageConfig(req *core.ImageRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{string(genai.ModalityImage), string(genai.ModalityText)},
	}
	if req.AspectRatio != "" {
		cfg.ImageConfig = &genai.ImageConfig{AspectRatio: req.AspectRatio}
	}
	return cfg
}

func buildSpeechConfig(req *core.SpeechRequest) *genai.GenerateContentConfig {
	voice := req.Voice
	if !voice.Valid() {
		voice = types.DefaultVoice
	}
	return &genai.GenerateContentConfig{
		ResponseModalities: []string{string(genai.ModalityAudio)},
		SpeechConfig:       speechConfig(voice),
	}
}

func speechConfig(voice types.VoiceName) *genai.SpeechConfig {
	return &genai.SpeechConfig{
		VoiceConfig: &genai.VoiceConfig{
			PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: string(voice)},
		},
	}
}
