package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/MrWong99/voxdispatch/pkg/provider/tts"
)

// speechServer records the JSON body of each /audio/speech request.
type speechServer struct {
	mu     sync.Mutex
	bodies []map[string]any
	status int
}

func (s *speechServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/audio/speech" {
		http.NotFound(w, r)
		return
	}
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	s.mu.Lock()
	s.bodies = append(s.bodies, body)
	s.mu.Unlock()
	if s.status != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(s.status)
		_, _ = w.Write([]byte(`{"error":{"message":"invalid voice","type":"invalid_request_error"}}`))
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	_, _ = w.Write([]byte("ID3openai"))
}

func newTestProvider(t *testing.T, s *speechServer) *Provider {
	t.Helper()
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	p, err := New("sk-test", "", WithBaseURL(srv.URL+"/v1"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestSynthesize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		opts      tts.SynthesisOptions
		wantVoice string
		wantSpeed any
	}{
		{"defaults", tts.SynthesisOptions{}, DefaultVoice, nil},
		{"voice and speed", tts.SynthesisOptions{Voice: "nova", Speed: tts.SpeedFast}, "nova", 1.25},
		{"wpm derived speed", tts.SynthesisOptions{WordsPerMinute: 75}, DefaultVoice, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := &speechServer{}
			p := newTestProvider(t, s)

			tt.opts.OutputPath = filepath.Join(t.TempDir(), "speech.mp3")
			if err := p.Synthesize(context.Background(), "Hello", tt.opts); err != nil {
				t.Fatalf("Synthesize: %v", err)
			}
			if got, _ := os.ReadFile(tt.opts.OutputPath); string(got) != "ID3openai" {
				t.Errorf("output = %q", got)
			}

			s.mu.Lock()
			defer s.mu.Unlock()
			if len(s.bodies) != 1 {
				t.Fatalf("requests = %d, want 1", len(s.bodies))
			}
			b := s.bodies[0]
			if b["model"] != DefaultModel || b["voice"] != tt.wantVoice || b["input"] != "Hello" || b["response_format"] != "mp3" {
				t.Errorf("body = %v", b)
			}
			if b["speed"] != tt.wantSpeed {
				t.Errorf("speed = %v, want %v", b["speed"], tt.wantSpeed)
			}
		})
	}
}

func TestSynthesize_APIError(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, &speechServer{status: http.StatusBadRequest})
	out := filepath.Join(t.TempDir(), "speech.mp3")
	if err := p.Synthesize(context.Background(), "Hello", tts.SynthesisOptions{OutputPath: out, Voice: "bogus"}); err == nil {
		t.Fatal("expected error on 400, got nil")
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("output written on API error")
	}
}

func TestNew(t *testing.T) {
	t.Parallel()

	if _, err := New("", ""); err == nil {
		t.Error("expected error for empty API key")
	}
	p, err := New("sk", "tts-1-hd")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != "tts-1-hd" {
		t.Errorf("model = %q, want tts-1-hd", p.model)
	}
	if av := p.Probe(context.Background()); !av.Available || av.Detail["model"] != "tts-1-hd" {
		t.Errorf("Probe() = %+v", av)
	}
}

func TestListVoices(t *testing.T) {
	t.Parallel()

	voices, err := (&Provider{}).ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != len(Voices) || voices[0].ID != "alloy" {
		t.Errorf("voices = %+v", voices)
	}
}
