package tts

import (
	"fmt"
	"slices"
	"strings"
)

// Kind separates locally executed engines from network services.
type Kind string

const (
	// KindLocalEngine runs on the host and works without internet access.
	KindLocalEngine Kind = "local_engine"

	// KindCloudService calls a remote vendor API.
	KindCloudService Kind = "cloud_service"
)

// Quality is an ordinal hint shown to humans. It never drives selection.
type Quality string

const (
	QualityBasic     Quality = "Basic"
	QualityGood      Quality = "Good"
	QualityExcellent Quality = "Excellent"
)

// Capability is a feature a provider supports.
type Capability string

const (
	CapSynthesize  Capability = "synthesize"
	CapListVoices  Capability = "list_voices"
	CapAdjustSpeed Capability = "adjust_speed"
	CapAdjustPitch Capability = "adjust_pitch"
)

// Descriptor is the static metadata of one provider. It is built once at
// process start and never mutated.
type Descriptor struct {
	// ID is the stable key used by callers to pin this provider.
	ID string

	// Aliases are alternative IDs that resolve to this provider.
	Aliases []string

	Kind        Kind
	Quality     Quality
	Description string

	// Credentials lists the environment variables the provider needs. An empty
	// requirement means the provider needs no credentials.
	Credentials CredentialRequirement

	Capabilities []Capability

	// Free reports whether the provider can be used without a paid account.
	Free bool

	// NeuralVoices reports whether the provider offers neural voices.
	NeuralVoices bool

	// Languages is a short human-readable list of supported language codes.
	Languages []string

	// OutputExt is the extension (with dot) of files written by Synthesize.
	OutputExt string

	// Limits describes vendor quotas. Nil for local engines.
	Limits *ServiceLimits
}

// Offline reports whether the provider works without network access.
func (d Descriptor) Offline() bool { return d.Kind == KindLocalEngine }

// RequiresCredentials reports whether availability depends on environment
// variables.
func (d Descriptor) RequiresCredentials() bool { return len(d.Credentials.EnvVars) > 0 }

// Has reports whether the provider declares capability c.
func (d Descriptor) Has(c Capability) bool { return slices.Contains(d.Capabilities, c) }

// Matches reports whether id names this provider, either directly or through
// one of its aliases. Comparison is case-insensitive.
func (d Descriptor) Matches(id string) bool {
	if strings.EqualFold(d.ID, id) {
		return true
	}
	for _, a := range d.Aliases {
		if strings.EqualFold(a, id) {
			return true
		}
	}
	return false
}

// CredentialRequirement names the environment variables a provider needs.
type CredentialRequirement struct {
	EnvVars []string
}

// Missing returns the variables in r that lookup reports as unset or empty,
// in declaration order.
func (r CredentialRequirement) Missing(lookup func(string) (string, bool)) []string {
	var missing []string
	for _, name := range r.EnvVars {
		if v, ok := lookup(name); !ok || strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

// ServiceLimits is the quota and pricing summary of a cloud service.
type ServiceLimits struct {
	FreeTier             string `json:"free_tier"`
	Pricing              string `json:"pricing"`
	CharactersPerRequest string `json:"characters_per_request"`
	RateLimit            string `json:"rate_limit"`
	Notes                string `json:"notes,omitempty"`

	// RequestsPerSecond bounds outgoing requests. Zero means unlimited.
	RequestsPerSecond float64 `json:"-"`
}

// Availability is the result of a one-time startup probe.
type Availability struct {
	Available bool
	Reason    string
	Detail    map[string]any
}

// Available returns an Availability marking the provider usable.
func Available(detail map[string]any) Availability {
	return Availability{Available: true, Detail: detail}
}

// Unavailable returns an Availability with a formatted reason.
func Unavailable(format string, args ...any) Availability {
	return Availability{Reason: fmt.Sprintf(format, args...)}
}

// Voice is one entry of a provider's voice catalogue.
type Voice struct {
	// ID is the provider-native identifier passed back on synthesis.
	ID string `json:"id"`

	// Name is the human-readable voice name.
	Name string `json:"name"`

	// Languages lists language tags the voice speaks, most specific first.
	Languages []string `json:"languages"`

	// Gender is "female", "male" or "neutral" when the provider reports it.
	Gender string `json:"gender,omitempty"`
}

// SpeedLevel is a symbolic speaking rate used by cloud services.
type SpeedLevel string

const (
	SpeedXSlow  SpeedLevel = "x-slow"
	SpeedSlow   SpeedLevel = "slow"
	SpeedMedium SpeedLevel = "medium"
	SpeedFast   SpeedLevel = "fast"
	SpeedXFast  SpeedLevel = "x-fast"
)

// SpeedLevels lists valid speed levels from slowest to fastest.
var SpeedLevels = []SpeedLevel{SpeedXSlow, SpeedSlow, SpeedMedium, SpeedFast, SpeedXFast}

// IsValid reports whether s is a recognised speed level.
func (s SpeedLevel) IsValid() bool { return slices.Contains(SpeedLevels, s) }

// Factor returns the rate multiplier for s. Unknown levels map to 1.0.
func (s SpeedLevel) Factor() float64 {
	switch s {
	case SpeedXSlow:
		return 0.5
	case SpeedSlow:
		return 0.75
	case SpeedFast:
		return 1.25
	case SpeedXFast:
		return 1.5
	}
	return 1.0
}

// PitchLevel is a symbolic pitch used by cloud services.
type PitchLevel string

const (
	PitchXLow   PitchLevel = "x-low"
	PitchLow    PitchLevel = "low"
	PitchMedium PitchLevel = "medium"
	PitchHigh   PitchLevel = "high"
	PitchXHigh  PitchLevel = "x-high"
)

// PitchLevels lists valid pitch levels from lowest to highest.
var PitchLevels = []PitchLevel{PitchXLow, PitchLow, PitchMedium, PitchHigh, PitchXHigh}

// IsValid reports whether p is a recognised pitch level.
func (p PitchLevel) IsValid() bool { return slices.Contains(PitchLevels, p) }

// DefaultWordsPerMinute is the speaking rate used when a caller gives none.
const DefaultWordsPerMinute = 150

// SynthesisOptions carries the normalized, provider-native arguments of one
// synthesis call.
type SynthesisOptions struct {
	// OutputPath is the file the provider must write.
	OutputPath string

	// Language is the provider-native language code.
	Language string

	// Voice is the provider-native voice ID. Empty selects the provider default.
	Voice string

	// WordsPerMinute is the numeric rate for local engines. Zero means default.
	WordsPerMinute int

	// Speed and Pitch are symbolic prosody for cloud services. Empty means medium.
	Speed SpeedLevel
	Pitch PitchLevel
}

// RateFactor returns the effective speaking-rate multiplier, preferring the
// symbolic Speed when set and otherwise deriving it from WordsPerMinute.
func (o SynthesisOptions) RateFactor() float64 {
	if o.Speed != "" {
		return o.Speed.Factor()
	}
	if o.WordsPerMinute > 0 {
		return float64(o.WordsPerMinute) / DefaultWordsPerMinute
	}
	return 1.0
}

// WPM returns the effective words-per-minute rate, deriving it from the
// symbolic Speed when no numeric rate was given.
func (o SynthesisOptions) WPM() int {
	if o.WordsPerMinute > 0 {
		return o.WordsPerMinute
	}
	return int(DefaultWordsPerMinute * o.RateFactor())
}

// VoiceTable maps lower-case language tags to provider-native voice IDs.
type VoiceTable map[string]string

// Lookup returns the voice for lang, trying the full tag, then its primary
// subtag ("de" for "de-AT"), then fallback. Underscores count as separators.
func (t VoiceTable) Lookup(lang, fallback string) string {
	lang = strings.ToLower(strings.ReplaceAll(lang, "_", "-"))
	if v, ok := t[lang]; ok {
		return v
	}
	if i := strings.IndexByte(lang, '-'); i > 0 {
		if v, ok := t[lang[:i]]; ok {
			return v
		}
	}
	return fallback
}
