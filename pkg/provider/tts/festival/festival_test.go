package festival

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/MrWong99/voxdispatch/pkg/provider/tts"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func fakeFestival(t *testing.T) *Provider {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	dir := t.TempDir()
	fest := writeScript(t, dir, "festival", `
if [ "$1" = "--version" ]; then echo "festival: Festival Speech Synthesis System: 2.5.0"; exit 0; fi
echo "(kal_diphone cmu_us_slt_arctic_hts el_diphone)"
`)
	t2w := writeScript(t, dir, "text2wave", `
args="$*"
out=""
while [ $# -gt 0 ]; do
  if [ "$1" = "-o" ]; then shift; out="$1"; fi
  shift
done
{ echo "$args"; cat; } > "$out"
`)
	return New(WithFestivalBinary(fest), WithText2WaveBinary(t2w))
}

func TestParseVoiceList(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"typical", "(kal_diphone rab_diphone)\n", []string{"kal_diphone", "rab_diphone"}},
		{"empty list", "nil", nil},
		{"blank", "", nil},
		{"junk filtered", "(kal_diphone \"quoted\")", []string{"kal_diphone"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := ParseVoiceList(tt.in)
			if len(got) != len(tt.want) {
				t.Fatalf("ParseVoiceList(%q) = %v, want %v", tt.in, got, tt.want)
			}
			for i, v := range got {
				if v.ID != tt.want[i] {
					t.Errorf("voice[%d] = %q, want %q", i, v.ID, tt.want[i])
				}
			}
		})
	}
}

func TestProbe(t *testing.T) {
	t.Parallel()

	av := fakeFestival(t).Probe(context.Background())
	if !av.Available {
		t.Fatalf("Probe() unavailable: %s", av.Reason)
	}
}

func TestProbe_MissingText2Wave(t *testing.T) {
	t.Parallel()

	p := fakeFestival(t)
	p.text2wave = "/nonexistent/text2wave"
	av := p.Probe(context.Background())
	if av.Available {
		t.Fatal("Probe() available without text2wave")
	}
	if !strings.Contains(av.Reason, "text2wave") {
		t.Errorf("reason = %q, want mention of text2wave", av.Reason)
	}
}

func TestSynthesize(t *testing.T) {
	t.Parallel()

	p := fakeFestival(t)
	out := filepath.Join(t.TempDir(), "out.wav")
	err := p.Synthesize(context.Background(), "good evening", tts.SynthesisOptions{
		OutputPath: out,
		Voice:      "kal_diphone",
		Speed:      tts.SpeedXSlow,
	})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	got := string(data)
	for _, want := range []string{"(voice_kal_diphone)", "Duration_Stretch 2.000", "good evening"} {
		if !strings.Contains(got, want) {
			t.Errorf("invocation %q missing %q", got, want)
		}
	}
}

func TestSynthesize_RejectsInjectedVoice(t *testing.T) {
	t.Parallel()

	p := fakeFestival(t)
	err := p.Synthesize(context.Background(), "x", tts.SynthesisOptions{
		OutputPath: filepath.Join(t.TempDir(), "out.wav"),
		Voice:      "kal) (system \"rm\"",
	})
	if err == nil {
		t.Fatal("expected error for invalid voice name")
	}
}

func TestListVoices(t *testing.T) {
	t.Parallel()

	voices, err := fakeFestival(t).ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 3 {
		t.Fatalf("len(voices) = %d, want 3", len(voices))
	}
	if voices[2].Languages[0] != "es" {
		t.Errorf("el_diphone language = %q, want es", voices[2].Languages[0])
	}
}
