package renderer

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hinshun/vt10x"
)

func TestDefaultThemeValid(t *testing.T) {
	if err := DefaultTheme().Validate(); err != nil {
		t.Fatalf("DefaultTheme().Validate() = %v", err)
	}
}

func TestLoadTheme(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
		check   func(t *testing.T, th *Theme)
	}{
		{
			name: "yaml overrides and inherits",
			file: "solar.yaml",
			body: "name: solar\nforeground: \"#839496\"\npalette:\n  - \"#073642\"\n",
			check: func(t *testing.T, th *Theme) {
				t.Helper()

				if th.Name != "solar" || th.Foreground != "#839496" {
					t.Errorf("got name=%q fg=%q", th.Name, th.Foreground)
				}

				if th.Palette[0] != "#073642" {
					t.Errorf("Palette[0] = %q, want #073642", th.Palette[0])
				}

				if th.Palette[1] != DefaultTheme().Palette[1] {
					t.Errorf("Palette[1] = %q, want inherited default", th.Palette[1])
				}
			},
		},
		{
			name: "toml",
			file: "mono.toml",
			body: "name = \"mono\"\nbackground = \"#101010\"\n",
			check: func(t *testing.T, th *Theme) {
				t.Helper()

				if th.Name != "mono" || th.Background != "#101010" {
					t.Errorf("got name=%q bg=%q", th.Name, th.Background)
				}
			},
		},
		{
			name:    "invalid colour",
			file:    "bad.yaml",
			body:    "cursor: red\n",
			wantErr: "cursor",
		},
		{
			name:    "unknown extension",
			file:    "theme.json",
			body:    "{}",
			wantErr: "unsupported theme format",
		},
		{
			name:    "malformed yaml",
			file:    "broken.yml",
			body:    "palette: [\n",
			wantErr: "parse theme",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			if err := os.WriteFile(path, []byte(tt.body), 0o600); err != nil {
				t.Fatal(err)
			}

			th, err := LoadTheme(path)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("LoadTheme() error = %v, want containing %q", err, tt.wantErr)
				}

				return
			}

			if err != nil {
				t.Fatalf("LoadTheme() error = %v", err)
			}

			tt.check(t, th)
		})
	}
}

func TestLoadThemeMissingFile(t *testing.T) {
	if _, err := LoadTheme(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("LoadTheme() expected error for missing file")
	}
}

func TestThemeColor(t *testing.T) {
	th := DefaultTheme()

	tests := []struct {
		name string
		in   vt10x.Color
		want string
	}{
		{"default fg", vt10x.DefaultFG, th.Foreground},
		{"default bg", vt10x.DefaultBG, th.Background},
		{"default cursor", vt10x.DefaultCursor, th.Cursor},
		{"palette red", vt10x.Red, th.Palette[1]},
		{"cube origin", 16, "#000000"},
		{"cube max", 231, "#ffffff"},
		{"cube mixed", 16 + 36*1 + 6*2 + 3, "#5f87af"},
		{"gray ramp start", 232, "#080808"},
		{"gray ramp end", 255, "#eeeeee"},
		{"truecolor", vt10x.Color(0x12<<16 | 0x34<<8 | 0x56), "#123456"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := th.Color(tt.in); got != tt.want {
				t.Errorf("Color(%d) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
