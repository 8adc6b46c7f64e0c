package orchestrator

import (
	"github.com/vango-go/antron/pkg/core/types"
)

// Device tool names the model may call.
const (
	ToolSetAlarm          = "setAlarm"
	ToolToggleFlashlight  = "toggleFlashlight"
	ToolOpenApp           = "openApp"
	ToolSetVoiceSignature = "setVoiceSignature"
)

// Tools returns the function declarations offered on every text turn.
func Tools() []types.FunctionDecl {
	voices := make([]string, 0, len(types.Voices))
	for _, v := range types.Voices {
		voices = append(voices, string(v))
	}

	return []types.FunctionDecl{
		{
			Name: ToolSetAlarm,
			Parameters: &types.Schema{
				Type:        types.SchemaObject,
				Description: "Set an alarm on the Android device.",
				Properties: map[string]*types.Schema{
					"time":  {Type: types.SchemaString, Description: `Time (e.g., "07:30 AM").`},
					"label": {Type: types.SchemaString, Description: "Alarm label."},
				},
				Required: []string{"time"},
			},
		},
		{
			Name: ToolToggleFlashlight,
			Parameters: &types.Schema{
				Type:        types.SchemaObject,
				Description: "Toggle device flashlight.",
				Properties:  map[string]*types.Schema{"state": {Type: types.SchemaBoolean}},
				Required:    []string{"state"},
			},
		},
		{
			Name: ToolOpenApp,
			Parameters: &types.Schema{
				Type:        types.SchemaObject,
				Description: "Open a system application.",
				Properties:  map[string]*types.Schema{"appName": {Type: types.SchemaString}},
				Required:    []string{"appName"},
			},
		},
		{
			Name: ToolSetVoiceSignature,
			Parameters: &types.Schema{
				Type:        types.SchemaObject,
				Description: "Change the assistant vocal signature and identity profile.",
				Properties: map[string]*types.Schema{
					"voice": {
						Type:        types.SchemaString,
						Enum:        voices,
						Description: "Vocal identity: Kore (Female), Puck (Male), Zephyr (Neural/Robotic).",
					},
				},
				Required: []string{"voice"},
			},
		},
	}
}

// RequestedVoice returns the voice from the last valid setVoiceSignature
// call, if any.
func RequestedVoice(calls []types.ToolCall) (types.VoiceName, bool) {
	var (
		voice types.VoiceName
		found bool
	)
	for _, call := range calls {
		if call.Name != ToolSetVoiceSignature {
			continue
		}
		raw, ok := call.StringArg("voice")
		if !ok {
			continue
		}
		v, err := types.ParseVoice(raw)
		if err != nil {
			continue
		}
		voice, found = v, true
	}
	return voice, found
}
