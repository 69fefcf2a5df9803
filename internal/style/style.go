// Package style holds the caption style settings and merges user overrides
// onto the built-in defaults.
package style

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Caption modes.
const (
	ModeHighlight = "highlight"
	ModeSimple    = "simple"
)

// Config is the caption style in the renderer's native representation.
// Colors are ASS packed strings ("&HBBGGRR&").
type Config struct {
	BaseColor        string
	HighlightColor   string
	OutlineColor     string
	ShadowColor      string
	BaseSize         int
	HighlightSize    int
	Mode             string
	FontFamily       string
	Alignment        int
	VerticalPosition int
	WordsPerBlock    int
	GapLimit         float64
	Bold             int
	Italic           int
	Underline        int
	StrikeOut        int
	BorderStyle      int
	OutlineWidth     float64
	ShadowSize       float64
	Uppercase        bool
}

// Defaults returns the built-in caption style.
func Defaults() Config {
	return Config{
		BaseColor:        "&HFFFFFF&",
		HighlightColor:   "&H00FFFF&",
		OutlineColor:     "&H000000&",
		ShadowColor:      "&H000000&",
		BaseSize:         12,
		HighlightSize:    14,
		Mode:             ModeHighlight,
		FontFamily:       "Arial",
		Alignment:        2,
		VerticalPosition: 60,
		WordsPerBlock:    3,
		GapLimit:         0.2,
		Bold:             1,
		Italic:           0,
		Underline:        0,
		StrikeOut:        0,
		BorderStyle:      1,
		OutlineWidth:     1,
		ShadowSize:       0,
		Uppercase:        false,
	}
}

// Merge applies overrides onto Defaults. Unknown keys are ignored and a
// malformed value leaves its field at the default.
func Merge(overrides map[string]any) Config {
	c := Defaults()
	if len(overrides) == 0 {
		return c
	}

	setColor := func(key string, dst *string) {
		if s, ok := overrides[key].(string); ok {
			if ass, ok := HexToASS(s); ok {
				*dst = ass
			}
		}
	}
	setInt := func(key string, dst *int) {
		if v, ok := overrides[key]; ok {
			if n, ok := toInt(v); ok {
				*dst = n
			}
		}
	}
	setFloat := func(key string, dst *float64) {
		if v, ok := overrides[key]; ok {
			if f, ok := toFloat(v); ok {
				*dst = f
			}
		}
	}
	setFlag := func(key string, dst *int) {
		if v, ok := overrides[key]; ok {
			if truthy(v) {
				*dst = 1
			} else {
				*dst = 0
			}
		}
	}

	setColor("textColor", &c.BaseColor)
	setColor("highlightColor", &c.HighlightColor)
	setColor("outlineColor", &c.OutlineColor)
	setColor("shadowColor", &c.ShadowColor)

	if v, ok := overrides["fontSize"]; ok {
		if n, ok := toInt(v); ok {
			c.BaseSize = n
			c.HighlightSize = n + 2
		}
	}
	if s, ok := overrides["fontFamily"].(string); ok && s != "" {
		c.FontFamily = s
	}

	setInt("yPosition", &c.VerticalPosition)
	setInt("wordsPerLine", &c.WordsPerBlock)
	setFloat("gapLimit", &c.GapLimit)
	setInt("alignment", &c.Alignment)

	if s, ok := overrides["mode"].(string); ok && (s == ModeHighlight || s == ModeSimple) {
		c.Mode = s
	}

	setFlag("isBold", &c.Bold)
	setFlag("isItalic", &c.Italic)
	setFlag("isUnderScore", &c.Underline)
	setFlag("isStrikeOut", &c.StrikeOut)

	setInt("borderStyle", &c.BorderStyle)
	setFloat("outlineWidth", &c.OutlineWidth)
	setFloat("shadowSize", &c.ShadowSize)

	if v, ok := overrides["uppercase"]; ok {
		c.Uppercase = truthy(v)
	}
	if b, ok := overrides["highlightCurrentWord"].(bool); ok && !b {
		c.Mode = ModeSimple
	}

	if c.WordsPerBlock < 1 {
		c.WordsPerBlock = 1
	}
	return c
}

// HexToASS converts "#RRGGBB" (leading '#' optional) to the ASS "&HBBGGRR&"
// packed form. It reports false for anything that is not six hex digits.
func HexToASS(hex string) (string, bool) {
	clean := strings.TrimLeft(hex, "#")
	if len(clean) != 6 {
		return "", false
	}
	if _, err := strconv.ParseUint(clean, 16, 32); err != nil {
		return "", false
	}
	clean = strings.ToUpper(clean)
	return "&H" + clean[4:6] + clean[2:4] + clean[0:2] + "&", true
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float32:
		return toInt(float64(n))
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return int(n), true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
		return 0, false
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return toFloat(float64(n))
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0, false
		}
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// truthy follows JSON-ish truthiness: zero numbers, empty strings and null
// are false.
func truthy(v any) bool {
	switch b := v.(type) {
	case nil:
		return false
	case bool:
		return b
	case string:
		return b != ""
	case int, int32, int64, float32, float64, json.Number:
		f, ok := toFloat(b)
		return !ok || f != 0
	default:
		return true
	}
}
