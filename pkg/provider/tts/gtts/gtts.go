// Package gtts provides a TTS provider backed by the Google Translate speech
// endpoint, the same service the gTTS project uses.
//
// The endpoint accepts at most 100 characters per request, so text is split
// into chunks at sentence and word boundaries and the MP3 responses are
// concatenated into one file. MP3 frames are self-delimiting, so the joined
// file plays as a single stream.
package gtts

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/MrWong99/voxdispatch/pkg/provider/tts"
)

// ID is the registry key of this provider.
const ID = "gtts"

// MaxChunk is the largest number of characters sent in one request.
const MaxChunk = 100

const (
	defaultTLD     = "com"
	defaultTimeout = 30 * time.Second
	ttsPath        = "/translate_tts"
	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
	slowSpeed      = "0.24"
)

// Voices is the static catalogue. gTTS has one voice per language.
var Voices = []tts.Voice{
	{ID: "en", Name: "English", Languages: []string{"en"}, Gender: "neutral"},
	{ID: "es", Name: "Spanish", Languages: []string{"es"}, Gender: "neutral"},
	{ID: "fr", Name: "French", Languages: []string{"fr"}, Gender: "neutral"},
	{ID: "de", Name: "German", Languages: []string{"de"}, Gender: "neutral"},
	{ID: "it", Name: "Italian", Languages: []string{"it"}, Gender: "neutral"},
	{ID: "pt", Name: "Portuguese", Languages: []string{"pt"}, Gender: "neutral"},
	{ID: "ru", Name: "Russian", Languages: []string{"ru"}, Gender: "neutral"},
	{ID: "ja", Name: "Japanese", Languages: []string{"ja"}, Gender: "neutral"},
	{ID: "ko", Name: "Korean", Languages: []string{"ko"}, Gender: "neutral"},
	{ID: "zh", Name: "Chinese", Languages: []string{"zh"}, Gender: "neutral"},
}

// Option is a functional option for Provider.
type Option func(*Provider)

// WithTLD selects the Google domain, e.g. "co.uk" for a British accent.
// WithBaseURL takes precedence.
func WithTLD(tld string) Option {
	return func(p *Provider) {
		if tld != "" {
			p.tld = tld
		}
	}
}

// WithBaseURL overrides the service origin.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		if u != "" {
			p.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		if c != nil {
			p.httpClient = c
		}
	}
}

// WithDescription replaces the human-readable description. Offline mode
// lists gTTS next to local engines and says it needs internet access.
func WithDescription(d string) Option {
	return func(p *Provider) {
		if d != "" {
			p.description = d
		}
	}
}

// Provider implements tts.Provider for Google Translate TTS.
type Provider struct {
	baseURL     string
	tld         string
	description string
	httpClient  *http.Client
}

var _ tts.Provider = (*Provider)(nil)

// New creates a gTTS provider.
func New(opts ...Option) *Provider {
	p := &Provider{
		tld:         defaultTLD,
		description: "Google Text-to-Speech",
		httpClient:  &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	if p.baseURL == "" {
		p.baseURL = "https://translate.google." + p.tld
	}
	return p
}

// Descriptor implements tts.Provider.
func (p *Provider) Descriptor() tts.Descriptor {
	langs := make([]string, len(Voices))
	for i, v := range Voices {
		langs[i] = v.ID
	}
	return tts.Descriptor{
		ID:          ID,
		Kind:        tts.KindCloudService,
		Quality:     tts.QualityExcellent,
		Description: p.description,
		Capabilities: []tts.Capability{
			tts.CapSynthesize, tts.CapListVoices, tts.CapAdjustSpeed,
		},
		Free:      true,
		Languages: langs,
		OutputExt: ".mp3",
		Limits: &tts.ServiceLimits{
			FreeTier:             "Unlimited (rate limited)",
			Pricing:              "Free",
			CharactersPerRequest: "100 characters per request",
			RateLimit:            "Reasonable use policy",
			Notes:                "Google's free service with reasonable use limits",
			RequestsPerSecond:    5,
		},
	}
}

// Probe implements tts.Provider. The service is available when its origin
// answers a HEAD request with any non-server-error status.
func (p *Provider) Probe(ctx context.Context) tts.Availability {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, p.baseURL, nil)
	if err != nil {
		return tts.Unavailable("gtts: %v", err)
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return tts.Unavailable("%s unreachable: %v", p.baseURL, err)
	}
	resp.Body.Close()
	if resp.StatusCode >= http.StatusInternalServerError {
		return tts.Unavailable("%s returned status %d", p.baseURL, resp.StatusCode)
	}
	return tts.Available(map[string]any{"base_url": p.baseURL, "voices": len(Voices)})
}

// Synthesize implements tts.Provider. A rate factor below 1 selects the slow
// reading speed; gTTS has no other speed control.
func (p *Provider) Synthesize(ctx context.Context, text string, opts tts.SynthesisOptions) error {
	lang := opts.Language
	if lang == "" {
		lang = "en"
	}
	slow := opts.RateFactor() < 1.0

	chunks := Chunk(text, MaxChunk)
	if len(chunks) == 0 {
		return fmt.Errorf("gtts: no speakable text")
	}

	f, err := os.Create(opts.OutputPath)
	if err != nil {
		return fmt.Errorf("gtts: create %s: %w", opts.OutputPath, err)
	}
	for i, c := range chunks {
		if err := p.fetchChunk(ctx, f, c, lang, slow, i, len(chunks)); err != nil {
			f.Close()
			os.Remove(opts.OutputPath)
			return err
		}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("gtts: close %s: %w", opts.OutputPath, err)
	}
	return nil
}

func (p *Provider) fetchChunk(ctx context.Context, w io.Writer, chunk, lang string, slow bool, idx, total int) error {
	q := url.Values{}
	q.Set("ie", "UTF-8")
	q.Set("client", "tw-ob")
	q.Set("tl", lang)
	q.Set("q", chunk)
	q.Set("total", strconv.Itoa(total))
	q.Set("idx", strconv.Itoa(idx))
	q.Set("textlen", strconv.Itoa(utf8.RuneCountInString(chunk)))
	if slow {
		q.Set("ttsspeed", slowSpeed)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+ttsPath+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("gtts: create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", p.baseURL+"/")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("gtts: chunk %d/%d: %w", idx+1, total, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gtts: chunk %d/%d: status %d (language %q may be unsupported)", idx+1, total, resp.StatusCode, lang)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("gtts: chunk %d/%d: %w", idx+1, total, err)
	}
	return nil
}

// ListVoices implements tts.Provider. The catalogue is static.
func (p *Provider) ListVoices(context.Context) ([]tts.Voice, error) {
	out := make([]tts.Voice, len(Voices))
	copy(out, Voices)
	return out, nil
}

// Chunk splits text into pieces of at most limit characters. Splits prefer
// sentence punctuation, then whitespace; a single word longer than limit is
// cut at the limit. Pieces consisting only of whitespace or punctuation are
// dropped.
func Chunk(text string, limit int) []string {
	var out []string
	for _, seg := range splitAfterPunct(text) {
		seg = strings.TrimSpace(seg)
		if !speakable(seg) {
			continue
		}
		for _, piece := range splitWords(seg, limit) {
			if n := len(out); n > 0 && utf8.RuneCountInString(out[n-1])+1+utf8.RuneCountInString(piece) <= limit {
				out[n-1] += " " + piece
				continue
			}
			out = append(out, piece)
		}
	}
	return out
}

func splitAfterPunct(text string) []string {
	var (
		segs  []string
		start int
	)
	for i, r := range text {
		switch r {
		case '.', '!', '?', ';', ':', ',', '\n', '。', '！', '？', '，', '、':
			end := i + utf8.RuneLen(r)
			segs = append(segs, text[start:end])
			start = end
		}
	}
	if start < len(text) {
		segs = append(segs, text[start:])
	}
	return segs
}

func splitWords(seg string, limit int) []string {
	if utf8.RuneCountInString(seg) <= limit {
		return []string{seg}
	}
	var (
		out []string
		cur strings.Builder
	)
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	for _, w := range strings.Fields(seg) {
		for utf8.RuneCountInString(w) > limit {
			flush()
			r := []rune(w)
			out = append(out, string(r[:limit]))
			w = string(r[limit:])
		}
		if cur.Len() > 0 && utf8.RuneCountInString(cur.String())+1+utf8.RuneCountInString(w) > limit {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(w)
	}
	flush()
	return out
}

func speakable(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
