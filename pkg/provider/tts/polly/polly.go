// Package polly provides a TTS provider for Amazon Polly built on
// aws-sdk-go-v2.
package polly

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"

	"github.com/MrWong99/voxdispatch/pkg/provider/tts"
)

// ID is the registry key of this provider.
const ID = "polly"

// Environment variables holding the credentials. AWS_REGION is optional.
const (
	EnvAccessKeyID     = "AWS_ACCESS_KEY_ID"
	EnvSecretAccessKey = "AWS_SECRET_ACCESS_KEY"
	EnvRegion          = "AWS_REGION"
)

const (
	defaultRegion = "us-east-1"
	fallbackVoice = "Joanna"
)

// DefaultVoices maps a language tag to the voice used when the caller names
// none.
var DefaultVoices = tts.VoiceTable{
	"en":    "Joanna",
	"en-gb": "Amy",
	"es":    "Conchita",
	"fr":    "Celine",
	"de":    "Marlene",
	"it":    "Carla",
	"pt":    "Camila",
	"ja":    "Mizuki",
	"ko":    "Seoyeon",
	"zh":    "Zhiyu",
	"zh-cn": "Zhiyu",
	"zh-hk": "Hiujin",
	"yue":   "Hiujin",
}

// DefaultVoice returns the voice for lang, falling back to US English.
func DefaultVoice(lang string) string {
	return DefaultVoices.Lookup(lang, fallbackVoice)
}

// api is the subset of *polly.Client the provider uses.
type api interface {
	SynthesizeSpeech(ctx context.Context, in *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
	DescribeVoices(ctx context.Context, in *polly.DescribeVoicesInput, optFns ...func(*polly.Options)) (*polly.DescribeVoicesOutput, error)
}

// Credentials are static AWS credentials.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
}

// Option is a functional option for Provider.
type Option func(*settings)

type settings struct {
	region   string
	engine   types.Engine
	endpoint string
}

// WithRegion sets the AWS region. Empty keeps us-east-1.
func WithRegion(r string) Option {
	return func(s *settings) {
		if r != "" {
			s.region = r
		}
	}
}

// WithEngine selects "standard" or "neural" voices.
func WithEngine(e string) Option {
	return func(s *settings) {
		if e != "" {
			s.engine = types.Engine(e)
		}
	}
}

// WithEndpoint overrides the service endpoint.
func WithEndpoint(u string) Option {
	return func(s *settings) { s.endpoint = u }
}

// Provider implements tts.Provider for Amazon Polly.
type Provider struct {
	client api
	region string
	engine types.Engine
}

var _ tts.Provider = (*Provider)(nil)

// New creates a Polly provider with static credentials.
func New(ctx context.Context, creds Credentials, opts ...Option) (*Provider, error) {
	if creds.AccessKeyID == "" || creds.SecretAccessKey == "" {
		return nil, errors.New("polly: access key id and secret access key must not be empty")
	}
	s := settings{region: defaultRegion, engine: types.EngineStandard}
	for _, o := range opts {
		o(&s)
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(s.region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken,
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("polly: load aws config: %w", err)
	}
	client := polly.NewFromConfig(cfg, func(o *polly.Options) {
		if s.endpoint != "" {
			o.BaseEndpoint = aws.String(s.endpoint)
		}
	})
	return &Provider{client: client, region: s.region, engine: s.engine}, nil
}

// Descriptor implements tts.Provider.
func (p *Provider) Descriptor() tts.Descriptor { return Descriptor() }

// Descriptor returns the static Polly descriptor.
func Descriptor() tts.Descriptor {
	return tts.Descriptor{
		ID:          ID,
		Kind:        tts.KindCloudService,
		Quality:     tts.QualityExcellent,
		Description: "Amazon Polly",
		Credentials: tts.CredentialRequirement{EnvVars: []string{EnvAccessKeyID, EnvSecretAccessKey}},
		Capabilities: []tts.Capability{
			tts.CapSynthesize, tts.CapListVoices, tts.CapAdjustSpeed,
		},
		NeuralVoices: true,
		OutputExt:    ".mp3",
		Limits: &tts.ServiceLimits{
			FreeTier:             "5 million characters per month (first 12 months)",
			Pricing:              "$4.00 (Standard), $16.00 (Neural) per million characters",
			CharactersPerRequest: "3000 characters per request",
			RateLimit:            "100 transactions per second",
			Notes:                "AWS account required",
			RequestsPerSecond:    100,
		},
	}
}

// Probe implements tts.Provider. Credentials are the only requirement.
func (p *Provider) Probe(context.Context) tts.Availability {
	return tts.Available(map[string]any{"region": p.region, "engine": string(p.engine)})
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string, opts tts.SynthesisOptions) error {
	voice := opts.Voice
	if voice == "" {
		voice = DefaultVoice(opts.Language)
	}
	out, err := p.client.SynthesizeSpeech(ctx, &polly.SynthesizeSpeechInput{
		Engine:       p.engine,
		OutputFormat: types.OutputFormatMp3,
		Text:         aws.String(BuildSSML(text, opts.RateFactor())),
		TextType:     types.TextTypeSsml,
		VoiceId:      types.VoiceId(voice),
	})
	if err != nil {
		return fmt.Errorf("polly: synthesize: %w", err)
	}
	defer out.AudioStream.Close()

	f, err := os.Create(opts.OutputPath)
	if err != nil {
		return fmt.Errorf("polly: create %s: %w", opts.OutputPath, err)
	}
	if _, err := io.Copy(f, out.AudioStream); err != nil {
		f.Close()
		os.Remove(opts.OutputPath)
		return fmt.Errorf("polly: read audio: %w", err)
	}
	return f.Close()
}

// BuildSSML wraps text in a prosody element. Polly takes the rate as a
// percentage of the default.
func BuildSSML(text string, factor float64) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(text))
	return fmt.Sprintf(`<speak><prosody rate="%d%%">%s</prosody></speak>`, int(factor*100+0.5), b.String())
}

// ListVoices implements tts.Provider. Pages are followed until exhausted.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.Voice, error) {
	var (
		voices []tts.Voice
		token  *string
	)
	for {
		out, err := p.client.DescribeVoices(ctx, &polly.DescribeVoicesInput{Engine: p.engine, NextToken: token})
		if err != nil {
			return nil, fmt.Errorf("polly: describe voices: %w", err)
		}
		for _, v := range out.Voices {
			langs := []string{string(v.LanguageCode)}
			for _, l := range v.AdditionalLanguageCodes {
				langs = append(langs, string(l))
			}
			name := aws.ToString(v.Name)
			if name == "" {
				name = string(v.Id)
			}
			voices = append(voices, tts.Voice{
				ID:        string(v.Id),
				Name:      name,
				Languages: langs,
				Gender:    strings.ToLower(string(v.Gender)),
			})
		}
		if aws.ToString(out.NextToken) == "" {
			return voices, nil
		}
		token = out.NextToken
	}
}
