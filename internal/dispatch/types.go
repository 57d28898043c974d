package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/MrWong99/voxdispatch/internal/selector"
	"github.com/MrWong99/voxdispatch/pkg/provider/tts"
)

// Outcome statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Request is one synthesis request as received from a tool call.
type Request struct {
	// Text is required and must contain a non-space character.
	Text string

	// Provider pins a provider ID or alias. Empty or "auto" selects one.
	Provider string

	// Language defaults to "en".
	Language string

	// Voice is matched against the provider catalogue. Optional.
	Voice string

	// Speed is the numeric rate in words per minute used by local engines.
	// Zero means 150.
	Speed int

	// Rate and Pitch are the symbolic prosody used by cloud services. Empty
	// means medium.
	Rate  tts.SpeedLevel
	Pitch tts.PitchLevel

	// OutputFile is the destination path. Empty generates a name in the
	// scratch directory.
	OutputFile string
}

func (r Request) withDefaults() Request {
	if strings.TrimSpace(r.Provider) == "" {
		r.Provider = selector.Auto
	}
	if strings.TrimSpace(r.Language) == "" {
		r.Language = DefaultLanguage
	}
	if r.Speed == 0 {
		r.Speed = tts.DefaultWordsPerMinute
	}
	return r
}

// Validate checks r without contacting any provider. All problems are
// reported together.
func (r Request) Validate() error {
	var errs []error
	if strings.TrimSpace(r.Text) == "" {
		errs = append(errs, errors.New("text must not be empty"))
	}
	if r.Speed < 0 {
		errs = append(errs, fmt.Errorf("speed must be positive, got %d", r.Speed))
	}
	if r.Rate != "" && !r.Rate.IsValid() {
		errs = append(errs, fmt.Errorf("unknown speed %q: want one of %v", r.Rate, tts.SpeedLevels))
	}
	if r.Pitch != "" && !r.Pitch.IsValid() {
		errs = append(errs, fmt.Errorf("unknown pitch %q: want one of %v", r.Pitch, tts.PitchLevels))
	}
	return errors.Join(errs...)
}

// Outcome is the uniform result of one synthesis request.
type Outcome struct {
	Status string

	// Mode picks the JSON key for Provider: "engine" or "service".
	Mode     selector.Mode
	Provider string
	Text     string

	// Success fields.
	OutputFile    string
	FileSizeBytes int64
	Language      string
	Voice         string
	ResolvedVoice string
	Speed         int
	Rate          tts.SpeedLevel
	Pitch         tts.PitchLevel
	Duration      time.Duration

	// Failure fields.
	Kind Kind
	Err  error
}

// OK reports whether the outcome is a success.
func (o Outcome) OK() bool { return o.Status == StatusSuccess }

func (o Outcome) fail(err *Error) Outcome {
	o.Status = StatusError
	o.Kind = err.Kind
	o.Err = err
	return o
}

// MarshalJSON renders the envelope returned to tool callers.
func (o Outcome) MarshalJSON() ([]byte, error) {
	key := o.Mode.ProviderKey()
	if !o.OK() {
		msg := ""
		if o.Err != nil {
			msg = o.Err.Error()
		}
		return json.Marshal(map[string]any{
			"status":     StatusError,
			"error_kind": o.Kind,
			"message":    msg,
			key:          o.Provider,
			"text":       o.Text,
		})
	}

	m := map[string]any{
		"status":          StatusSuccess,
		"text":            o.Text,
		key:               o.Provider,
		"output_file":     o.OutputFile,
		"file_size_bytes": o.FileSizeBytes,
		"file_size":       humanize.Bytes(uint64(max(o.FileSizeBytes, 0))),
		"language":        o.Language,
		"voice":           orDefault(o.Voice),
		"resolved_voice":  orDefault(o.ResolvedVoice),
		"duration_ms":     o.Duration.Milliseconds(),
	}
	if o.Mode == selector.ModeOnline {
		m["speed"] = string(orMedium(string(o.Rate)))
		m["pitch"] = string(orMedium(string(o.Pitch)))
	} else {
		m["speed"] = o.Speed
	}
	return json.Marshal(m)
}

func orDefault(s string) string {
	if s == "" {
		return "default"
	}
	return s
}

func orMedium(s string) string {
	if s == "" {
		return string(tts.SpeedMedium)
	}
	return s
}
