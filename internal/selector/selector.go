// Package selector picks the provider that handles a synthesis request.
//
// Selection is deterministic: a pinned provider is honoured if the registry
// reports it available, and "auto" walks the mode's fixed preference list and
// takes the first available entry. There is no scoring and no randomness, so
// identical registry state and input always produce the same provider.
package selector

import (
	"errors"
	"fmt"
	"strings"

	"github.com/MrWong99/voxdispatch/internal/registry"
)

// Auto is the provider ID that requests automatic selection.
const Auto = "auto"

var (
	// ErrProviderUnavailable is returned when a pinned provider is unknown or
	// failed its startup probe.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrNoProviderAvailable is returned when auto-selection finds nothing.
	ErrNoProviderAvailable = errors.New("no provider available")
)

// Mode chooses the provider family the server runs with.
type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
	ModeAuto    Mode = "auto"
)

// IsValid reports whether m is a recognised mode.
func (m Mode) IsValid() bool {
	switch m {
	case ModeOffline, ModeOnline, ModeAuto:
		return true
	}
	return false
}

// ProviderKey is the JSON key naming the provider in envelopes: "engine" in
// offline mode, "service" in online mode.
func (m Mode) ProviderKey() string {
	if m == ModeOnline {
		return "service"
	}
	return "engine"
}

// Preference lists, most preferred first.
var (
	OfflinePreference = []string{"system", "coqui", "espeak", "festival", "gtts"}
	OnlinePreference  = []string{"gtts", "azure", "polly", "watson", "openai", "elevenlabs"}
)

// recommendation orders and labels. They differ from the preference lists:
// espeak is recommended over coqui because it needs no running server.
var (
	offlineRecommendation = []recommendation{
		{"system", "system (best offline option)"},
		{"espeak", "espeak (Linux offline)"},
		{"coqui", "coqui (AI-based offline)"},
		{"festival", "festival (classic offline)"},
		{"gtts", "gtts (requires internet, excellent quality)"},
	}
	onlineRecommendation = []recommendation{
		{"gtts", "gtts (free, good quality)"},
		{"azure", "azure (excellent quality, neural voices)"},
		{"polly", "polly (excellent quality, many voices)"},
		{"watson", "watson (excellent quality)"},
		{"openai", "openai (excellent quality, multilingual voices)"},
		{"elevenlabs", "elevenlabs (expressive neural voices)"},
	}
)

type recommendation struct {
	id    string
	label string
}

// Selector resolves provider requests for one mode.
type Selector struct {
	mode       Mode
	preference []string
}

// New returns a Selector for mode. ModeAuto must be resolved to offline or
// online before a Selector is built; it is treated as offline here.
func New(mode Mode) *Selector {
	s := &Selector{mode: mode, preference: OfflinePreference}
	if mode == ModeOnline {
		s.preference = OnlinePreference
	}
	return s
}

// Mode returns the mode the selector was built for.
func (s *Selector) Mode() Mode { return s.mode }

// Preference returns a copy of the auto-selection order.
func (s *Selector) Preference() []string {
	return append([]string(nil), s.preference...)
}

// Select returns the canonical ID of the provider that should handle a
// request naming providerID. An empty ID or "auto" triggers automatic
// selection.
func (s *Selector) Select(st *registry.State, providerID string) (string, error) {
	providerID = strings.TrimSpace(providerID)
	if providerID == "" || strings.EqualFold(providerID, Auto) {
		for _, id := range s.preference {
			if st.IsAvailable(id) {
				return id, nil
			}
		}
		return "", ErrNoProviderAvailable
	}

	id, ok := st.Resolve(providerID)
	if !ok {
		return "", fmt.Errorf("%w: %s: unknown provider", ErrProviderUnavailable, providerID)
	}
	if !st.IsAvailable(id) {
		return "", fmt.Errorf("%w: %s: %s", ErrProviderUnavailable, id, st.Availability(id).Reason)
	}
	return id, nil
}

// Recommendation returns a one-line human recommendation for the mode.
func (s *Selector) Recommendation(st *registry.State) string {
	order := offlineRecommendation
	if s.mode == ModeOnline {
		order = onlineRecommendation
	}
	for _, r := range order {
		if st.IsAvailable(r.id) {
			return r.label
		}
	}
	if s.mode == ModeOnline {
		return "No services available"
	}
	return "No engines available"
}
