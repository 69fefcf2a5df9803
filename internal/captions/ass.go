// Package captions turns word-level transcripts into styled Advanced
// SubStation Alpha (ASS) subtitle files.
package captions

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/maauso/shortsgen-api/internal/pipeline"
	"github.com/maauso/shortsgen-api/internal/style"
)

// ErrNoWords is returned when a transcript has nothing to caption.
var ErrNoWords = errors.New("captions: transcript has no words")

// compile-time interface check
var _ pipeline.Captioner = (*Writer)(nil)

// Writer renders transcripts to ASS files.
type Writer struct {
	playResX int
	playResY int
	lang     language.Tag
}

// Option configures a Writer.
type Option func(*Writer)

// WithPlayRes sets the script resolution that font sizes and margins refer to.
func WithPlayRes(x, y int) Option {
	return func(w *Writer) {
		if x > 0 && y > 0 {
			w.playResX, w.playResY = x, y
		}
	}
}

// WithLanguage sets the language used for uppercasing.
func WithLanguage(tag language.Tag) Option {
	return func(w *Writer) {
		w.lang = tag
	}
}

// NewWriter creates a Writer with a 360x640 script resolution.
func NewWriter(opts ...Option) *Writer {
	w := &Writer{
		playResX: 360,
		playResY: 640,
		lang:     language.Und,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Caption implements pipeline.Captioner.
func (w *Writer) Caption(ctx context.Context, t pipeline.Transcript, cfg style.Config, dst string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	doc, err := w.Render(t, cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dst, []byte(doc), 0600); err != nil {
		return fmt.Errorf("write subtitles: %w", err)
	}
	return nil
}

// Render returns the ASS document for t.
func (w *Writer) Render(t pipeline.Transcript, cfg style.Config) (string, error) {
	words := w.prepare(t.Words, cfg.Uppercase)
	if len(words) == 0 {
		return "", ErrNoWords
	}

	var b strings.Builder
	w.writeHeader(&b, cfg)

	for _, block := range groupBlocks(words, cfg.WordsPerBlock, cfg.GapLimit) {
		if cfg.Mode == style.ModeSimple {
			writeDialogue(&b, block[0].Start, block[len(block)-1].End, joinWords(block, -1, cfg))
			continue
		}
		for i, word := range block {
			end := word.End
			if i+1 < len(block) {
				end = block[i+1].Start
			}
			writeDialogue(&b, word.Start, end, joinWords(block, i, cfg))
		}
	}

	return b.String(), nil
}

func (w *Writer) writeHeader(b *strings.Builder, cfg style.Config) {
	b.WriteString("[Script Info]\n")
	b.WriteString("ScriptType: v4.00+\n")
	fmt.Fprintf(b, "PlayResX: %d\n", w.playResX)
	fmt.Fprintf(b, "PlayResY: %d\n", w.playResY)
	b.WriteString("WrapStyle: 2\n")
	b.WriteString("ScaledBorderAndShadow: yes\n\n")

	b.WriteString("[V4+ Styles]\n")
	b.WriteString("Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, " +
		"Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, " +
		"Alignment, MarginL, MarginR, MarginV, Encoding\n")
	fmt.Fprintf(b, "Style: Default,%s,%d,%s,%s,%s,%s,%d,%d,%d,%d,100,100,0,0,%d,%s,%s,%d,10,10,%d,1\n\n",
		cleanText(cfg.FontFamily),
		cfg.BaseSize,
		styleColour(cfg.BaseColor),
		styleColour(cfg.HighlightColor),
		styleColour(cfg.OutlineColor),
		styleColour(cfg.ShadowColor),
		assBool(cfg.Bold),
		assBool(cfg.Italic),
		assBool(cfg.Underline),
		assBool(cfg.StrikeOut),
		cfg.BorderStyle,
		formatNumber(cfg.OutlineWidth),
		formatNumber(cfg.ShadowSize),
		cfg.Alignment,
		cfg.VerticalPosition,
	)

	b.WriteString("[Events]\n")
	b.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")
}

// prepare drops empty words, repairs inverted timings and applies casing.
func (w *Writer) prepare(in []pipeline.Word, uppercase bool) []pipeline.Word {
	// A Caser is stateful, so each call gets its own.
	upper := cases.Upper(w.lang)
	out := make([]pipeline.Word, 0, len(in))
	for _, word := range in {
		text := cleanText(word.Text)
		if text == "" {
			continue
		}
		if uppercase {
			text = upper.String(text)
		}
		if word.End < word.Start {
			word.End = word.Start
		}
		word.Text = text
		out = append(out, word)
	}
	return out
}

// groupBlocks splits words into caption blocks of at most size words,
// starting a new block whenever the pause before a word exceeds gap seconds.
func groupBlocks(words []pipeline.Word, size int, gap float64) [][]pipeline.Word {
	if size < 1 {
		size = 1
	}
	var (
		blocks  [][]pipeline.Word
		current []pipeline.Word
	)
	for _, word := range words {
		if len(current) > 0 {
			prev := current[len(current)-1]
			if len(current) >= size || word.Start-prev.End > gap {
				blocks = append(blocks, current)
				current = nil
			}
		}
		current = append(current, word)
	}
	if len(current) > 0 {
		blocks = append(blocks, current)
	}
	return blocks
}

// joinWords renders a block, recolouring and enlarging the word at active.
// active < 0 renders the block plain.
func joinWords(block []pipeline.Word, active int, cfg style.Config) string {
	parts := make([]string, len(block))
	for i, word := range block {
		if i == active {
			parts[i] = fmt.Sprintf(`{\c%s\fs%d}%s{\r}`, cfg.HighlightColor, cfg.HighlightSize, word.Text)
			continue
		}
		parts[i] = word.Text
	}
	return strings.Join(parts, " ")
}

func writeDialogue(b *strings.Builder, start, end float64, text string) {
	fmt.Fprintf(b, "Dialogue: 0,%s,%s,Default,,0,0,0,,%s\n", timestamp(start), timestamp(end), text)
}

// timestamp formats seconds as H:MM:SS.cc.
func timestamp(sec float64) string {
	if sec < 0 {
		sec = 0
	}
	cs := int64(sec*100 + 0.5)
	h := cs / 360000
	m := (cs / 6000) % 60
	s := (cs / 100) % 60
	return fmt.Sprintf("%d:%02d:%02d.%02d", h, m, s, cs%100)
}

// styleColour turns "&HBBGGRR&" into the opaque "&H00BBGGRR" style form.
func styleColour(c string) string {
	hex := strings.TrimSuffix(strings.TrimPrefix(c, "&H"), "&")
	if len(hex) != 6 {
		hex = "FFFFFF"
	}
	return "&H00" + strings.ToUpper(hex)
}

func assBool(v int) int {
	if v != 0 {
		return -1
	}
	return 0
}

func formatNumber(f float64) string {
	s := fmt.Sprintf("%.2f", f)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}

// cleanText removes override braces, backslashes and line breaks.
func cleanText(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '{', '}', '\\':
			return -1
		case '\n', '\r', '\t':
			return ' '
		default:
			return r
		}
	}, s)
	return strings.TrimSpace(s)
}
