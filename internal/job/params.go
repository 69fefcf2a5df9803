package job

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Generation defaults applied when a request omits the field.
const (
	DefaultMinDuration   = 15
	DefaultMaxDuration   = 60
	DefaultNumberOfClips = 3
)

// Validation messages, in the order they are reported.
const (
	msgInputs   = "inputVideo must be a non-empty dictionary map"
	msgNoURLs   = "No valid video URLs found in inputVideo map"
	msgIntegers = "Duration and clip counts must be integers"
	msgMin      = "minDuration must be at least 5 seconds"
	msgMax      = "maxDuration cannot exceed 300 seconds"
	msgMinMax   = "minDuration must be less than maxDuration"
	msgClips    = "numberOfClips must be between 1 and 10"
	msgBody     = "genRequest must be a JSON object"
)

var validate = validator.New()

// InputRef is one source video of a job.
type InputRef struct {
	URL   string `json:"url" bson:"url"`
	Title string `json:"title,omitempty" bson:"title,omitempty"`
}

// Params are the generation parameters stored with a job.
type Params struct {
	Inputs        map[string]InputRef `json:"inputVideo" bson:"input_video" validate:"required,min=1"`
	MinDuration   int                 `json:"minDuration" bson:"min_duration" validate:"gte=5"`
	MaxDuration   int                 `json:"maxDuration" bson:"max_duration" validate:"lte=300,gtfield=MinDuration"`
	NumberOfClips int                 `json:"numberOfClips" bson:"number_of_clips" validate:"gte=1,lte=10"`
	// AspectRatio is one of 9:16, 16:9, 1:1, 4:5; empty keeps the source framing.
	AspectRatio   string              `json:"aspectRatio,omitempty" bson:"aspect_ratio,omitempty" validate:"omitempty,oneof=9:16 16:9 1:1 4:5"`
	Instructions  string              `json:"customPrompt,omitempty" bson:"custom_prompt,omitempty"`
	Watermark     string              `json:"watermarkText,omitempty" bson:"watermark_text,omitempty"`
	Header        string              `json:"optional_header,omitempty" bson:"optional_header,omitempty"`
	Style         map[string]any      `json:"subtitlesStyles,omitempty" bson:"subtitles_styles,omitempty"`
}

func (p Params) clone() Params {
	c := p
	c.Inputs = maps.Clone(p.Inputs)
	c.Style = maps.Clone(p.Style)
	return c
}

// Item is one input in processing order.
type Item struct {
	Key     string
	Locator string
	Title   string
}

// Items returns the inputs with a locator, sorted by key.
func (p Params) Items() []Item {
	keys := make([]string, 0, len(p.Inputs))
	for k, in := range p.Inputs {
		if strings.TrimSpace(in.URL) != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	items := make([]Item, len(keys))
	for i, k := range keys {
		in := p.Inputs[k]
		items[i] = Item{Key: k, Locator: strings.TrimSpace(in.URL), Title: in.Title}
	}
	return items
}

// ValidationError lists every violated rule; Error reports the first.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	if len(e.Messages) == 0 {
		return "validation failed"
	}
	return e.Messages[0]
}

// Validate checks the parameters for a job of kind. Subtitles jobs only
// need inputs and an optional aspect ratio.
func (p Params) Validate(kind Kind) error {
	var err error
	if kind == KindSubtitles {
		err = validate.StructPartial(p, "Inputs", "AspectRatio")
	} else {
		err = validate.Struct(p)
	}

	failed := make(map[string]string)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			failed[fe.StructField()] = fe.Tag()
		}
	} else if err != nil {
		return fmt.Errorf("validate params: %w", err)
	}

	var msgs []string
	if _, bad := failed["Inputs"]; bad {
		msgs = append(msgs, msgInputs)
	} else if len(p.Items()) == 0 {
		msgs = append(msgs, msgNoURLs)
	}
	if _, bad := failed["MinDuration"]; bad {
		msgs = append(msgs, msgMin)
	}
	switch failed["MaxDuration"] {
	case "lte":
		msgs = append(msgs, msgMax)
	case "gtfield":
		msgs = append(msgs, msgMinMax)
	}
	if _, bad := failed["NumberOfClips"]; bad {
		msgs = append(msgs, msgClips)
	}
	if _, bad := failed["AspectRatio"]; bad {
		msgs = append(msgs, "Unsupported aspect ratio: "+p.AspectRatio)
	}

	if len(msgs) > 0 {
		return &ValidationError{Messages: msgs}
	}
	return nil
}

type rawParams struct {
	Inputs           json.RawMessage `json:"inputVideo"`
	MinDuration      any             `json:"minDuration"`
	MaxDuration      any             `json:"maxDuration"`
	NumberOfClips    any             `json:"numberOfClips"`
	AspectRatio      string          `json:"aspectRatio"`
	Instructions     string          `json:"customPrompt"`
	Watermark        string          `json:"watermarkText"`
	Header           string          `json:"optional_header"`
	SubtitlesStyles  map[string]any  `json:"subtitlesStyles"`
	SubtitleSettings map[string]any  `json:"subtitleSettings"`
}

// ParseParams decodes a request body into Params, applying defaults for
// omitted numeric fields. Structural problems are reported as a
// *ValidationError; range checks are left to Validate.
func ParseParams(data []byte) (Params, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw rawParams
	if err := dec.Decode(&raw); err != nil {
		return Params{}, &ValidationError{Messages: []string{msgBody}}
	}

	inputs, ok := parseInputs(raw.Inputs)
	if !ok {
		return Params{}, &ValidationError{Messages: []string{msgInputs}}
	}

	minD, ok1 := intOrDefault(raw.MinDuration, DefaultMinDuration)
	maxD, ok2 := intOrDefault(raw.MaxDuration, DefaultMaxDuration)
	clips, ok3 := intOrDefault(raw.NumberOfClips, DefaultNumberOfClips)
	if !ok1 || !ok2 || !ok3 {
		return Params{}, &ValidationError{Messages: []string{msgIntegers}}
	}

	ratio := strings.TrimSpace(raw.AspectRatio)
	if strings.EqualFold(ratio, "unspecified") {
		ratio = ""
	}

	style := raw.SubtitlesStyles
	if style == nil {
		style = raw.SubtitleSettings
	}

	return Params{
		Inputs:        inputs,
		MinDuration:   minD,
		MaxDuration:   maxD,
		NumberOfClips: clips,
		AspectRatio:   ratio,
		Instructions:  raw.Instructions,
		Watermark:     raw.Watermark,
		Header:        raw.Header,
		Style:         style,
	}, nil
}

// parseInputs accepts a non-empty JSON object. Entries that are not objects
// are kept with an empty URL so that Validate reports them uniformly.
func parseInputs(data json.RawMessage) (map[string]InputRef, bool) {
	var entries map[string]json.RawMessage
	if len(data) == 0 || json.Unmarshal(data, &entries) != nil || len(entries) == 0 {
		return nil, false
	}
	inputs := make(map[string]InputRef, len(entries))
	for k, v := range entries {
		var ref InputRef
		_ = json.Unmarshal(v, &ref)
		inputs[k] = ref
	}
	return inputs, true
}

// intOrDefault accepts integral JSON numbers and numeric strings.
func intOrDefault(v any, def int) (int, bool) {
	switch n := v.(type) {
	case nil:
		return def, true
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i), true
		}
		f, err := n.Float64()
		if err != nil || f != math.Trunc(f) {
			return 0, false
		}
		return int(f), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	default:
		return 0, false
	}
}
