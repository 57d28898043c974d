package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrWong99/voxdispatch/internal/observe"
	"github.com/MrWong99/voxdispatch/pkg/provider/tts"
)

// Catalogue is the voice list of one provider.
type Catalogue struct {
	Provider string      `json:"provider"`
	Language string      `json:"language,omitempty"`
	Voices   []tts.Voice `json:"voices"`
	Total    int         `json:"total"`
}

// ListVoices returns the catalogue of providerID, optionally filtered to
// voices whose language tags start with language (case-insensitive, "_" and
// "-" equivalent). The provider must be available. Successful loads are
// cached and shared with synthesis.
func (d *Dispatcher) ListVoices(ctx context.Context, providerID, language string) (Catalogue, error) {
	id, ok := d.state.Resolve(providerID)
	if !ok {
		return Catalogue{}, newError(KindProviderUnavailable, providerID,
			fmt.Errorf("%w: %s: unknown provider", ErrProviderUnavailable, providerID))
	}
	if !d.state.IsAvailable(id) {
		return Catalogue{}, newError(KindProviderUnavailable, id,
			fmt.Errorf("%w: %s: %s", ErrProviderUnavailable, id, d.state.Availability(id).Reason))
	}
	p, _ := d.state.Provider(id)

	ctx, span := observe.StartProviderSpan(ctx, id, "list_voices")
	voices, err := d.loadCatalogue(ctx, id, p)
	observe.EndSpan(span, err)
	if err != nil {
		d.metrics.RecordProviderRequest(ctx, id, "list_voices", "error")
		d.metrics.RecordProviderError(ctx, id, "list_voices")
		return Catalogue{}, newError(KindSynthesisFailure, id, fmt.Errorf("list voices: %w", err))
	}
	d.metrics.RecordProviderRequest(ctx, id, "list_voices", "ok")

	voices = FilterByLanguage(voices, language)
	return Catalogue{Provider: id, Language: language, Voices: voices, Total: len(voices)}, nil
}

// FilterByLanguage returns the voices with a language tag that has prefix
// language. An empty filter returns a copy of voices.
func FilterByLanguage(voices []tts.Voice, language string) []tts.Voice {
	want := langKey(language)
	out := make([]tts.Voice, 0, len(voices))
	for _, v := range voices {
		if want == "" {
			out = append(out, v)
			continue
		}
		for _, l := range v.Languages {
			if strings.HasPrefix(langKey(l), want) {
				out = append(out, v)
				break
			}
		}
	}
	return out
}

func langKey(s string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", "-"))
}
