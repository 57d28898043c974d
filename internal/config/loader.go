package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"slices"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/MrWong99/voxdispatch/internal/selector"
)

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "https://github.com/MrWong99/voxdispatch/config.schema.json"

// ProviderIDs lists every built-in provider in construction order.
var ProviderIDs = []string{
	"system", "espeak", "festival", "coqui", "gtts",
	"azure", "polly", "watson", "openai", "elevenlabs",
}

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("config: load schema: %w", err)
			return
		}
		schema, schemaErr = c.Compile(schemaURL)
	})
	return schema, schemaErr
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. An empty path returns [Default].
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	return parse(data)
}

// parse validates data against the embedded schema, decodes it with unknown
// fields rejected, applies defaults, and runs [Validate].
func parse(data []byte) (*Config, error) {
	if err := validateSchema(data); err != nil {
		return nil, err
	}

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validateSchema checks the document shape. YAML is converted to its JSON
// form first, so numbers arrive as json.Number.
func validateSchema(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("config: decode yaml: %w", err)
	}
	if doc == nil {
		return nil
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("config: convert to json: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("config: convert to json: %w", err)
	}

	sch, err := compiledSchema()
	if err != nil {
		return err
	}
	if err := sch.Validate(v); err != nil {
		return fmt.Errorf("config: schema: %w", err)
	}
	return nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("server.mode %q is invalid; valid values: offline, online, auto", cfg.Server.Mode))
	}
	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json, tint", cfg.Server.LogFormat))
	}

	if cfg.Probe.Timeout < 0 {
		errs = append(errs, fmt.Errorf("probe.timeout %s must be positive", cfg.Probe.Timeout))
	}
	if cfg.Synthesis.Timeout < 0 {
		errs = append(errs, fmt.Errorf("synthesis.timeout %s must be positive", cfg.Synthesis.Timeout))
	}
	if cfg.Synthesis.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("synthesis.concurrency %d must be at least 1", cfg.Synthesis.Concurrency))
	}
	if cfg.Playback.MaxDuration < 0 {
		errs = append(errs, fmt.Errorf("playback.max_duration %s must be positive", cfg.Playback.MaxDuration))
	}
	if cfg.Playback.PollInterval < 0 || (cfg.Playback.MaxDuration > 0 && cfg.Playback.PollInterval > cfg.Playback.MaxDuration) {
		errs = append(errs, fmt.Errorf("playback.poll_interval %s must be positive and at most playback.max_duration", cfg.Playback.PollInterval))
	}
	if cfg.Playback.SampleRate < 8000 || cfg.Playback.SampleRate > 192000 {
		errs = append(errs, fmt.Errorf("playback.sample_rate %d is out of range [8000, 192000]", cfg.Playback.SampleRate))
	}

	p := cfg.Providers
	for name, u := range map[string]string{
		"providers.coqui.url":           p.Coqui.URL,
		"providers.gtts.base_url":       p.GTTS.BaseURL,
		"providers.azure.endpoint":      p.Azure.Endpoint,
		"providers.openai.base_url":     p.OpenAI.BaseURL,
		"providers.elevenlabs.base_url": p.ElevenLabs.BaseURL,
	} {
		if err := validateURL(u); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if p.Coqui.APIMode != "standard" && p.Coqui.APIMode != "xtts" {
		errs = append(errs, fmt.Errorf("providers.coqui.api_mode %q is invalid; valid values: standard, xtts", p.Coqui.APIMode))
	}
	if p.Polly.Engine != "standard" && p.Polly.Engine != "neural" {
		errs = append(errs, fmt.Errorf("providers.polly.engine %q is invalid; valid values: standard, neural", p.Polly.Engine))
	}
	for i, id := range p.Disabled {
		if !slices.Contains(ProviderIDs, strings.ToLower(id)) {
			errs = append(errs, fmt.Errorf("providers.disabled[%d] %q is not a known provider", i, id))
		}
	}
	if cfg.Server.Mode == selector.ModeOffline && allDisabled(p.Disabled, selector.OfflinePreference) {
		errs = append(errs, errors.New("providers.disabled disables every offline provider"))
	}
	if cfg.Server.Mode == selector.ModeOnline && allDisabled(p.Disabled, selector.OnlinePreference) {
		errs = append(errs, errors.New("providers.disabled disables every online provider"))
	}

	return errors.Join(errs...)
}

func validateURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("%q is not an http(s) URL", raw)
	}
	return nil
}

func allDisabled(disabled, ids []string) bool {
	for _, id := range ids {
		if !slices.ContainsFunc(disabled, func(d string) bool { return strings.EqualFold(d, id) }) {
			return false
		}
	}
	return true
}

// IsDisabled reports whether id is listed in providers.disabled.
func (c *Config) IsDisabled(id string) bool {
	return slices.ContainsFunc(c.Providers.Disabled, func(d string) bool { return strings.EqualFold(d, id) })
}
