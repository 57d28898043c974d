package espeak

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/MrWong99/voxdispatch/pkg/provider/tts"
)

const sampleVoices = `Pty Language       Age/Gender VoiceName          File                 Other Languages
 5  af              --/M      Afrikaans          gmw/af
 5  cmn             --/M      Chinese_(Mandarin) sit/cmn              (zh-cmn 5)(zh 5)
 5  en-us           --/F      English_(America)  gmw/en-US            (en 3)
 5  yue             --/M      Chinese_(Cantonese) sit/yue              (zh-yue 5)(zh 8)
`

// fakeEspeak writes a shell script that mimics the eSpeak CLI: --version and
// --voices print canned output, and a synthesis run copies stdin into the -w
// target so tests can inspect what was sent.
func fakeEspeak(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	dir := t.TempDir()
	voices := filepath.Join(dir, "voices.txt")
	if err := os.WriteFile(voices, []byte(sampleVoices), 0o644); err != nil {
		t.Fatal(err)
	}
	script := `#!/bin/sh
case "$1" in
  --version) echo "eSpeak NG text-to-speech: 1.51  Data at: /usr/share"; exit 0 ;;
  --voices) cat "` + voices + `"; exit 0 ;;
esac
out=""
args="$*"
while [ $# -gt 0 ]; do
  case "$1" in
    -w) shift; out="$1" ;;
  esac
  shift
done
{ echo "$args"; cat; } > "$out"
`
	bin := filepath.Join(dir, "espeak")
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return bin
}

func TestParseVoices(t *testing.T) {
	t.Parallel()

	voices := ParseVoices([]byte(sampleVoices))
	if len(voices) != 4 {
		t.Fatalf("len(voices) = %d, want 4", len(voices))
	}
	tests := []struct {
		idx    int
		id     string
		name   string
		lang   string
		gender string
	}{
		{0, "gmw/af", "Afrikaans", "af", "male"},
		{2, "gmw/en-US", "English_(America)", "en-us", "female"},
		{3, "sit/yue", "Chinese_(Cantonese)", "yue", "male"},
	}
	for _, tt := range tests {
		v := voices[tt.idx]
		if v.ID != tt.id || v.Name != tt.name || v.Languages[0] != tt.lang || v.Gender != tt.gender {
			t.Errorf("voices[%d] = %+v, want id=%s name=%s lang=%s gender=%s", tt.idx, v, tt.id, tt.name, tt.lang, tt.gender)
		}
	}
}

func TestParseVoices_Empty(t *testing.T) {
	t.Parallel()
	if got := ParseVoices(nil); len(got) != 0 {
		t.Fatalf("ParseVoices(nil) = %v, want empty", got)
	}
}

func TestProbe(t *testing.T) {
	t.Parallel()

	p := New(WithBinary(fakeEspeak(t)))
	av := p.Probe(context.Background())
	if !av.Available {
		t.Fatalf("Probe() unavailable: %s", av.Reason)
	}
	if v, _ := av.Detail["version"].(string); !strings.HasPrefix(v, "eSpeak NG") {
		t.Errorf("version detail = %q", v)
	}
}

func TestProbe_Missing(t *testing.T) {
	t.Parallel()

	p := New(WithBinary("/nonexistent/espeak-xyz"))
	// Only meaningful when espeak-ng is not installed on the test host.
	if _, err := p.resolve(); err == nil {
		t.Skip("espeak-ng present on PATH")
	}
	if av := p.Probe(context.Background()); av.Available {
		t.Fatal("Probe() available for missing binary")
	}
}

func TestSynthesize(t *testing.T) {
	t.Parallel()

	p := New(WithBinary(fakeEspeak(t)))
	out := filepath.Join(t.TempDir(), "out.wav")
	err := p.Synthesize(context.Background(), "hello world", tts.SynthesisOptions{
		OutputPath:     out,
		Voice:          "sit/yue",
		WordsPerMinute: 200,
	})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	got := string(data)
	for _, want := range []string{"-s 200", "-v sit/yue", "--stdin", "hello world"} {
		if !strings.Contains(got, want) {
			t.Errorf("invocation %q missing %q", got, want)
		}
	}
}

func TestSynthesize_LanguageAsVoice(t *testing.T) {
	t.Parallel()

	p := New(WithBinary(fakeEspeak(t)))
	out := filepath.Join(t.TempDir(), "out.wav")
	if err := p.Synthesize(context.Background(), "hola", tts.SynthesisOptions{OutputPath: out, Language: "es"}); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	data, _ := os.ReadFile(out)
	if !strings.Contains(string(data), "-v es") || !strings.Contains(string(data), "-s 150") {
		t.Errorf("invocation = %q, want -v es and default rate", data)
	}
}

func TestListVoices(t *testing.T) {
	t.Parallel()

	voices, err := New(WithBinary(fakeEspeak(t))).ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 4 {
		t.Fatalf("len(voices) = %d, want 4", len(voices))
	}
}
