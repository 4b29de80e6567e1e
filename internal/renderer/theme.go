package renderer

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/hinshun/vt10x"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

const paletteSize = 16

// Theme is the colour table a display renders with. Colours are "#rrggbb".
type Theme struct {
	Name       string   `yaml:"name" toml:"name"`
	Foreground string   `yaml:"foreground" toml:"foreground"`
	Background string   `yaml:"background" toml:"background"`
	Cursor     string   `yaml:"cursor" toml:"cursor"`
	Palette    []string `yaml:"palette" toml:"palette"`
}

// DefaultTheme returns the built-in dark theme.
func DefaultTheme() *Theme {
	return &Theme{
		Name:       "default",
		Foreground: "#d0d0d0",
		Background: "#000000",
		Cursor:     "#ffffff",
		Palette: []string{
			"#000000", "#cd0000", "#00cd00", "#cdcd00",
			"#0000ee", "#cd00cd", "#00cdcd", "#e5e5e5",
			"#7f7f7f", "#ff0000", "#00ff00", "#ffff00",
			"#5c5cff", "#ff00ff", "#00ffff", "#ffffff",
		},
	}
}

// LoadTheme reads a theme file. The format follows the extension: .yaml,
// .yml or .toml. Missing fields inherit from DefaultTheme.
func LoadTheme(path string) (*Theme, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from user config
	if err != nil {
		return nil, fmt.Errorf("read theme: %w", err)
	}

	var loaded Theme

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &loaded)
	case ".toml":
		err = toml.Unmarshal(data, &loaded)
	default:
		return nil, fmt.Errorf("unsupported theme format %q (use .yaml or .toml)", ext)
	}

	if err != nil {
		return nil, fmt.Errorf("parse theme %s: %w", path, err)
	}

	theme := DefaultTheme().merge(&loaded)
	if err := theme.Validate(); err != nil {
		return nil, fmt.Errorf("theme %s: %w", path, err)
	}

	return theme, nil
}

func (t *Theme) merge(o *Theme) *Theme {
	pick := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}

	pick(&t.Name, o.Name)
	pick(&t.Foreground, o.Foreground)
	pick(&t.Background, o.Background)
	pick(&t.Cursor, o.Cursor)

	for i, c := range o.Palette {
		if i < len(t.Palette) {
			pick(&t.Palette[i], c)
		}
	}

	return t
}

// Validate checks every colour parses as #rrggbb.
func (t *Theme) Validate() error {
	check := func(field, v string) error {
		if _, _, _, ok := parseHex(v); !ok {
			return fmt.Errorf("%s: invalid colour %q", field, v)
		}

		return nil
	}

	if err := check("foreground", t.Foreground); err != nil {
		return err
	}

	if err := check("background", t.Background); err != nil {
		return err
	}

	if err := check("cursor", t.Cursor); err != nil {
		return err
	}

	if len(t.Palette) != paletteSize {
		return fmt.Errorf("palette: want %d colours, got %d", paletteSize, len(t.Palette))
	}

	for i, c := range t.Palette {
		if err := check(fmt.Sprintf("palette[%d]", i), c); err != nil {
			return err
		}
	}

	return nil
}

// Color resolves an emulator colour to "#rrggbb".
func (t *Theme) Color(c vt10x.Color) string {
	switch {
	case c == vt10x.DefaultFG:
		return t.Foreground
	case c == vt10x.DefaultBG:
		return t.Background
	case c == vt10x.DefaultCursor:
		return t.Cursor
	case c < 16:
		return t.Palette[c]
	case c < 232:
		// 6x6x6 cube
		n := int(c) - 16
		return hex(cubeLevel(n/36), cubeLevel((n/6)%6), cubeLevel(n%6))
	case c < 256:
		g := 8 + (int(c)-232)*10
		return hex(g, g, g)
	default:
		return hex(int(c>>16)&0xff, int(c>>8)&0xff, int(c)&0xff)
	}
}

func cubeLevel(i int) int {
	if i == 0 {
		return 0
	}

	return 55 + i*40
}

func hex(r, g, b int) string {
	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}

func parseHex(s string) (r, g, b int, ok bool) {
	if len(s) != 7 || s[0] != '#' {
		return 0, 0, 0, false
	}

	v, err := strconv.ParseUint(s[1:], 16, 32)
	if err != nil {
		return 0, 0, 0, false
	}

	return int(v>>16) & 0xff, int(v>>8) & 0xff, int(v) & 0xff, true
}
