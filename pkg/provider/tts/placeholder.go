package tts

import "context"

// Placeholder stands in for a provider that could not be constructed, most
// often because its credentials are missing. It keeps the descriptor visible
// to the registry and reports Err from every operation.
type Placeholder struct {
	Desc Descriptor
	Err  error
}

var _ Provider = (*Placeholder)(nil)

// Descriptor implements Provider.
func (p *Placeholder) Descriptor() Descriptor { return p.Desc }

// Probe implements Provider.
func (p *Placeholder) Probe(context.Context) Availability {
	return Unavailable("%v", p.Err)
}

// Synthesize implements Provider.
func (p *Placeholder) Synthesize(context.Context, string, SynthesisOptions) error { return p.Err }

// ListVoices implements Provider.
func (p *Placeholder) ListVoices(context.Context) ([]Voice, error) { return nil, p.Err }
