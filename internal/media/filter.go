package media

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/maauso/shortsgen-api/internal/pipeline"
)

// ErrInvalidAspectRatio is returned for ratios not in "W:H" form.
var ErrInvalidAspectRatio = errors.New("invalid aspect ratio: expected W:H")

// Overlay text layout.
const (
	headerFontSize    = 100
	titleFontSize     = 70
	watermarkFontSize = 32
	watermarkColor    = "0xAAAAAA"
	watermarkOffset   = 150
	shadowOffset      = 2
	maxBlurRadius     = 150
)

// frameSize returns output dimensions for ratio "W:H", with the shorter
// side equal to base and both sides even.
func frameSize(ratio string, base int) (int, int, error) {
	ws, hs, ok := strings.Cut(ratio, ":")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidAspectRatio, ratio)
	}
	arW, errW := strconv.Atoi(strings.TrimSpace(ws))
	arH, errH := strconv.Atoi(strings.TrimSpace(hs))
	if errW != nil || errH != nil || arW <= 0 || arH <= 0 {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidAspectRatio, ratio)
	}

	var w, h int
	if arW > arH {
		h = base
		w = base * arW / arH
	} else {
		w = base
		h = base * arH / arW
	}
	if w%2 != 0 {
		w++
	}
	if h%2 != 0 {
		h++
	}
	return w, h, nil
}

// buildRenderFilter returns the -filter_complex graph for req, ending in [out].
func buildRenderFilter(req pipeline.RenderRequest, base int, fontFile string) (string, error) {
	var graph strings.Builder

	if req.AspectRatio != "" {
		w, h, err := frameSize(req.AspectRatio, base)
		if err != nil {
			return "", err
		}
		radius := min(w, h) / 5
		if radius > maxBlurRadius {
			radius = maxBlurRadius
		}
		// Blurred fill behind the letterboxed original.
		fmt.Fprintf(&graph,
			"[0:v]scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,boxblur=luma_radius=%d:luma_power=3[bg];"+
				"[0:v]scale=%d:%d:force_original_aspect_ratio=decrease[fg];"+
				"[bg][fg]overlay=(W-w)/2:(H-h)/2",
			w, h, w, h, radius, w, h)
	} else {
		graph.WriteString("[0:v]null")
	}

	if t := sanitizeText(req.Title); t != "" {
		graph.WriteString("," + drawtext(t, fontFile, titleFontSize, "white", fmt.Sprintf("(h-text_h)/5+%d", headerFontSize)))
	}
	if t := sanitizeText(req.Header); t != "" {
		graph.WriteString("," + drawtext(t, fontFile, headerFontSize, "white", "(h-text_h)/6"))
	}
	if t := sanitizeText(req.Watermark); t != "" {
		graph.WriteString("," + drawtext(t, fontFile, watermarkFontSize, watermarkColor, fmt.Sprintf("(h-text_h)/5+%d", watermarkOffset)))
	}
	if req.Subtitles != "" {
		graph.WriteString(",subtitles='" + filterPath(req.Subtitles) + "'")
	}

	graph.WriteString("[out]")
	return graph.String(), nil
}

func drawtext(text, fontFile string, size int, color, y string) string {
	var b strings.Builder
	b.WriteString("drawtext=text='" + text + "'")
	if fontFile != "" {
		b.WriteString(":fontfile='" + filterPath(fontFile) + "'")
	}
	fmt.Fprintf(&b, ":fontsize=%d:fontcolor=%s:x=(w-text_w)/2:y=%s:shadowcolor=black:shadowx=%d:shadowy=%d",
		size, color, y, shadowOffset, shadowOffset)
	return b.String()
}

// sanitizeText drops characters that terminate or expand a drawtext value.
func sanitizeText(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '\'', ':', '%', '\\', '\n', '\r':
			return -1
		default:
			return r
		}
	}, s)
	return strings.TrimSpace(s)
}

func filterPath(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	return strings.ReplaceAll(p, "'", "")
}

// encoderArgs returns the rate-control flags for codec.
func encoderArgs(codec string) []string {
	if codec == "h264_nvenc" {
		return []string{"-c:v", codec, "-preset", "p5", "-b:v", "5M"}
	}
	return []string{"-c:v", codec, "-preset", "fast", "-crf", "23"}
}
