package types

import (
	"fmt"
	"strings"
)

// VoiceName is one of the prebuilt voices offered for speech output.
type VoiceName string

const (
	VoiceKore   VoiceName = "Kore"
	VoicePuck   VoiceName = "Puck"
	VoiceCharon VoiceName = "Charon"
	VoiceFenrir VoiceName = "Fenrir"
	VoiceZephyr VoiceName = "Zephyr"
)

// DefaultVoice is used until the user picks another one.
const DefaultVoice = VoiceKore

// Voices lists the supported voices in display order.
var Voices = []VoiceName{VoiceKore, VoicePuck, VoiceCharon, VoiceFenrir, VoiceZephyr}

// Valid reports whether v is a supported voice.
func (v VoiceName) Valid() bool {
	for _, known := range Voices {
		if v == known {
			return true
		}
	}
	return false
}

// ParseVoice resolves a voice name case-insensitively.
func ParseVoice(s string) (VoiceName, error) {
	s = strings.TrimSpace(s)
	for _, known := range Voices {
		if strings.EqualFold(s, string(known)) {
			return known, nil
		}
	}
	return "", fmt.Errorf("unknown voice %q", s)
}

// Theme is the UI theme preference. Only the identifier is modeled here.
type Theme string

const (
	ThemeIslamic Theme = "ISLAMIC"
	ThemeTurkish Theme = "TURKISH"
	ThemeDark    Theme = "DARK"
)

const DefaultTheme = ThemeIslamic

func (t Theme) Valid() bool {
	switch t {
	case ThemeIslamic, ThemeTurkish, ThemeDark:
		return true
	default:
		return false
	}
}

// ParseTheme resolves a theme identifier case-insensitively.
func ParseTheme(s string) (Theme, error) {
	t := Theme(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown theme %q", s)
	}
	return t, nil
}
