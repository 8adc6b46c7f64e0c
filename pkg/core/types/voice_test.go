package types

import "testing"

func TestParseVoice(t *testing.T) {
	for _, v := range Voices {
		got, err := ParseVoice(string(v))
		if err != nil || got != v {
			t.Fatalf("ParseVoice(%q)=%q,%v", v, got, err)
		}
	}
	if got, err := ParseVoice(" puck "); err != nil || got != VoicePuck {
		t.Fatalf("ParseVoice(puck)=%q,%v", got, err)
	}
	if _, err := ParseVoice("Alloy"); err == nil {
		t.Fatalf("expected error for unknown voice")
	}
	if !DefaultVoice.Valid() {
		t.Fatalf("default voice must be valid")
	}
}

func TestParseTheme(t *testing.T) {
	tests := []struct {
		in      string
		want    Theme
		wantErr bool
	}{
		{in: "ISLAMIC", want: ThemeIslamic},
		{in: "turkish", want: ThemeTurkish},
		{in: " Dark ", want: ThemeDark},
		{in: "LIGHT", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseTheme(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("ParseTheme(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Fatalf("ParseTheme(%q)=%q,%v want %q", tt.in, got, err, tt.want)
		}
	}
}
