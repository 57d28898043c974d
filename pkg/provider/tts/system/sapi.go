package system

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/MrWong99/voxdispatch/pkg/provider/tts"
	"github.com/MrWong99/voxdispatch/pkg/provider/tts/subprocess"
)

// sapiDriver drives System.Speech through PowerShell. Text is read from
// stdin so it never needs quoting.
type sapiDriver struct {
	binary string
	runner *subprocess.Runner
}

func (d *sapiDriver) name() string { return "sapi" }

func (d *sapiDriver) synthesize(ctx context.Context, text string, opts tts.SynthesisOptions) error {
	var sb strings.Builder
	sb.WriteString("Add-Type -AssemblyName System.Speech;")
	sb.WriteString("$s = New-Object System.Speech.Synthesis.SpeechSynthesizer;")
	fmt.Fprintf(&sb, "$s.Rate = %d;", sapiRate(opts.WPM()))
	if opts.Voice != "" {
		fmt.Fprintf(&sb, "$s.SelectVoice(%s);", psQuote(opts.Voice))
	}
	fmt.Fprintf(&sb, "$s.SetOutputToWaveFile(%s);", psQuote(opts.OutputPath))
	sb.WriteString("$s.Speak([Console]::In.ReadToEnd());")
	sb.WriteString("$s.Dispose()")

	if _, err := d.runner.Run(ctx, text, d.binary, "-NoProfile", "-NonInteractive", "-Command", sb.String()); err != nil {
		return fmt.Errorf("system: sapi: %w", err)
	}
	return nil
}

const sapiListScript = "Add-Type -AssemblyName System.Speech;" +
	"$s = New-Object System.Speech.Synthesis.SpeechSynthesizer;" +
	"$s.GetInstalledVoices() | ForEach-Object { $v = $_.VoiceInfo; " +
	"$v.Name + '|' + $v.Culture.Name + '|' + $v.Gender };" +
	"$s.Dispose()"

func (d *sapiDriver) listVoices(ctx context.Context) ([]tts.Voice, error) {
	out, err := d.runner.Run(ctx, "", d.binary, "-NoProfile", "-NonInteractive", "-Command", sapiListScript)
	if err != nil {
		return nil, fmt.Errorf("system: sapi list voices: %w", err)
	}
	return parseSAPIVoices(out), nil
}

// parseSAPIVoices parses "Name|Culture|Gender" lines.
func parseSAPIVoices(out []byte) []tts.Voice {
	var voices []tts.Voice
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		parts := strings.Split(strings.TrimSpace(sc.Text()), "|")
		if len(parts) != 3 || parts[0] == "" {
			continue
		}
		voices = append(voices, tts.Voice{
			ID:        parts[0],
			Name:      parts[0],
			Languages: []string{parts[1]},
			Gender:    strings.ToLower(parts[2]),
		})
	}
	return voices
}

// sapiRate maps words per minute onto the SAPI -10..10 rate scale, where 0 is
// roughly 150 wpm.
func sapiRate(wpm int) int {
	r := (wpm - 150) / 15
	return max(-10, min(10, r))
}

func psQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
