package coqui

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/voxdispatch/pkg/audio"
	"github.com/MrWong99/voxdispatch/pkg/provider/tts"
)

// ---- test helpers ----

// buildTestWAV constructs a minimal but valid mono 16-bit RIFF/WAVE byte slice
// containing the supplied raw PCM samples at the given sample rate.
func buildTestWAV(pcm []byte, rate int) []byte {
	return audio.EncodeWAV(audio.Clip{PCM: pcm, SampleRate: rate, Channels: 1})
}

// mustNew is a test helper that calls New and fails the test on error.
func mustNew(t *testing.T, serverURL string, opts ...Option) *Provider {
	t.Helper()
	p, err := New(serverURL, opts...)
	if err != nil {
		t.Fatalf("New(%q): unexpected error: %v", serverURL, err)
	}
	return p
}

func outPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "out.wav")
}

// ---- Provider creation ----

func TestNew(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		p := mustNew(t, "http://localhost:5002")
		if p.serverURL != "http://localhost:5002" {
			t.Errorf("serverURL = %q, want %q", p.serverURL, "http://localhost:5002")
		}
		if p.language != defaultLanguage {
			t.Errorf("language = %q, want %q", p.language, defaultLanguage)
		}
		if p.httpClient.Timeout != defaultTimeout {
			t.Errorf("timeout = %v, want %v", p.httpClient.Timeout, defaultTimeout)
		}
		if p.apiMode != APIModeStandard {
			t.Errorf("apiMode = %q, want %q", p.apiMode, APIModeStandard)
		}
	})

	t.Run("trims trailing slash", func(t *testing.T) {
		p := mustNew(t, "http://localhost:5002/")
		if p.serverURL != "http://localhost:5002" {
			t.Errorf("serverURL = %q, want trailing slash stripped", p.serverURL)
		}
	})

	t.Run("empty URL returns error", func(t *testing.T) {
		if _, err := New(""); err == nil {
			t.Fatal("expected error for empty URL, got nil")
		}
	})

	t.Run("unknown API mode returns error", func(t *testing.T) {
		if _, err := New("http://localhost:5002", WithAPIMode("grpc")); err == nil {
			t.Fatal("expected error for unknown API mode, got nil")
		}
	})

	t.Run("with options", func(t *testing.T) {
		p := mustNew(t, "http://localhost:5002",
			WithLanguage("de"),
			WithTimeout(5*time.Second),
			WithAPIMode(APIModeXTTS),
		)
		if p.language != "de" {
			t.Errorf("language = %q, want %q", p.language, "de")
		}
		if p.httpClient.Timeout != 5*time.Second {
			t.Errorf("timeout = %v, want %v", p.httpClient.Timeout, 5*time.Second)
		}
		if p.apiMode != APIModeXTTS {
			t.Errorf("apiMode = %q, want %q", p.apiMode, APIModeXTTS)
		}
	})
}

// ---- Probe ----

func TestProbe_Standard(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != detailsEndpoint {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(detailsResponse{ModelName: "tts_models/en/ljspeech/tacotron2-DDC", Language: "en"})
	}))
	defer srv.Close()

	av := mustNew(t, srv.URL).Probe(context.Background())
	if !av.Available {
		t.Fatalf("Probe() unavailable: %s", av.Reason)
	}
	if av.Detail["model_name"] != "tts_models/en/ljspeech/tacotron2-DDC" {
		t.Errorf("model_name detail = %v", av.Detail["model_name"])
	}
}

func TestProbe_ServerDown(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	av := mustNew(t, srv.URL).Probe(context.Background())
	if av.Available {
		t.Fatal("Probe() available for closed server")
	}
	if !strings.Contains(av.Reason, srv.URL) {
		t.Errorf("reason %q does not name the server", av.Reason)
	}
}

// ---- Synthesize ----

func TestSynthesize_EmptyVoice_XTTS(t *testing.T) {
	t.Parallel()

	p := mustNew(t, "http://localhost:8002", WithAPIMode(APIModeXTTS))
	err := p.Synthesize(context.Background(), "Hello.", tts.SynthesisOptions{OutputPath: outPath(t)})
	if err == nil {
		t.Fatal("expected error for empty voice in XTTS mode, got nil")
	}
	if !strings.Contains(err.Error(), "coqui:") {
		t.Errorf("error %q does not have 'coqui:' prefix", err.Error())
	}
}

func TestSynthesize_XTTS(t *testing.T) {
	t.Parallel()

	pcm := make([]byte, 100)
	for i := range pcm {
		pcm[i] = 0x42
	}
	wavData := buildTestWAV(pcm, 24000)

	var (
		reqMu        sync.Mutex
		receivedReqs []ttsRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != ttsEndpoint || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		var req ttsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		reqMu.Lock()
		receivedReqs = append(receivedReqs, req)
		reqMu.Unlock()
		w.Header().Set("Content-Type", "audio/wav")
		_, _ = w.Write(wavData)
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL, WithAPIMode(APIModeXTTS))
	out := outPath(t)
	err := p.Synthesize(context.Background(), "Hello world. Goodbye now!", tts.SynthesisOptions{
		OutputPath: out,
		Voice:      "test_speaker",
		Language:   "fr",
	})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(got) != string(wavData) {
		t.Errorf("output file differs from server response (%d vs %d bytes)", len(got), len(wavData))
	}

	if len(receivedReqs) != 1 {
		t.Fatalf("server received %d requests, want 1", len(receivedReqs))
	}
	req := receivedReqs[0]
	if req.SpeakerWav != "test_speaker" || req.Language != "fr" || req.Text != "Hello world. Goodbye now!" {
		t.Errorf("request = %+v", req)
	}
}

func TestSynthesize_Standard(t *testing.T) {
	t.Parallel()

	wavData := buildTestWAV(make([]byte, 80), 22050)

	var (
		reqMu sync.Mutex
		query url.Values
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != apiTTSEndpoint || r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		reqMu.Lock()
		query = r.URL.Query()
		reqMu.Unlock()
		_, _ = w.Write(wavData)
	}))
	defer srv.Close()

	p := mustNew(t, srv.URL, WithLanguage("en"))
	err := p.Synthesize(context.Background(), "Hello world.", tts.SynthesisOptions{
		OutputPath: outPath(t),
		Voice:      "p225",
	})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if got := query.Get("text"); got != "Hello world." {
		t.Errorf("query param text = %q, want %q", got, "Hello world.")
	}
	if got := query.Get("speaker_id"); got != "p225" {
		t.Errorf("query param speaker_id = %q, want %q", got, "p225")
	}
	if got := query.Get("language_id"); got != "en" {
		t.Errorf("query param language_id = %q, want %q", got, "en")
	}
}

func TestSynthesize_Resample(t *testing.T) {
	t.Parallel()

	// 0.1 s at 22050 Hz mono.
	wavData := buildTestWAV(make([]byte, 2205*2), 22050)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(wavData)
	}))
	defer srv.Close()

	out := outPath(t)
	p := mustNew(t, srv.URL, WithOutputSampleRate(44100))
	if err := p.Synthesize(context.Background(), "x", tts.SynthesisOptions{OutputPath: out}); err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	clip, err := audio.DecodeFile(out)
	if err != nil {
		t.Fatalf("DecodeFile: %v", err)
	}
	if clip.SampleRate != 44100 || len(clip.PCM) != 4410*2 {
		t.Errorf("resampled clip = %dHz %d bytes, want 44100Hz %d bytes", clip.SampleRate, len(clip.PCM), 4410*2)
	}
}

func TestSynthesize_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model exploded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	out := outPath(t)
	err := mustNew(t, srv.URL).Synthesize(context.Background(), "A sentence.", tts.SynthesisOptions{OutputPath: out})
	if err == nil {
		t.Fatal("expected error on server failure, got nil")
	}
	if !strings.Contains(err.Error(), "500") || !strings.Contains(err.Error(), "model exploded") {
		t.Errorf("error %q should carry status and body", err)
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Error("output file written despite server error")
	}
}

func TestSynthesize_NotWAV(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>oops</html>"))
	}))
	defer srv.Close()

	err := mustNew(t, srv.URL).Synthesize(context.Background(), "x", tts.SynthesisOptions{OutputPath: outPath(t)})
	if err == nil {
		t.Fatal("expected error for non-WAV response, got nil")
	}
}

// ---- ListVoices ----

func TestListVoices_XTTS(t *testing.T) {
	t.Parallel()

	rawResp := map[string]any{
		"speaker_bob":   map[string]any{"type": "studio"},
		"speaker_alice": map[string]any{"type": "studio"},
	}
	data, _ := json.Marshal(rawResp)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != studioSpeakersEndpoint {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	voices, err := mustNew(t, srv.URL, WithAPIMode(APIModeXTTS)).ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 2 {
		t.Fatalf("got %d voices, want 2", len(voices))
	}
	// Sorted order: alice before bob.
	if voices[0].ID != "speaker_alice" || voices[1].ID != "speaker_bob" {
		t.Errorf("voices = %+v, want alice then bob", voices)
	}
}

func TestListVoices_Standard(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		details detailsResponse
		wantIDs []string
	}{
		{
			name:    "multi-speaker model",
			details: detailsResponse{ModelName: "tts_models/en/vctk/vits", Language: "en", Speakers: []string{"p227", "p225", "p226"}},
			wantIDs: []string{"p225", "p226", "p227"},
		},
		{
			name:    "single-speaker model",
			details: detailsResponse{ModelName: "tts_models/en/ljspeech/tacotron2-DDC", Language: "en"},
			wantIDs: []string{"tts_models/en/ljspeech/tacotron2-DDC"},
		},
		{
			name:    "unnamed model",
			details: detailsResponse{},
			wantIDs: []string{"default"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			data, _ := json.Marshal(tt.details)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write(data)
			}))
			defer srv.Close()

			voices, err := mustNew(t, srv.URL).ListVoices(context.Background())
			if err != nil {
				t.Fatalf("ListVoices: %v", err)
			}
			if len(voices) != len(tt.wantIDs) {
				t.Fatalf("got %d voices, want %d", len(voices), len(tt.wantIDs))
			}
			for i, want := range tt.wantIDs {
				if voices[i].ID != want {
					t.Errorf("voices[%d].ID = %q, want %q", i, voices[i].ID, want)
				}
				if voices[i].Languages[0] != "en" {
					t.Errorf("voices[%d] language = %v, want en", i, voices[i].Languages)
				}
			}
		})
	}
}

func TestListVoices_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := mustNew(t, srv.URL).ListVoices(context.Background())
	if err == nil {
		t.Fatal("expected error on server failure, got nil")
	}
	if !strings.Contains(err.Error(), "coqui:") {
		t.Errorf("error %q missing 'coqui:' prefix", err.Error())
	}
}

func TestListVoices_ContextCancelled(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := mustNew(t, srv.URL).ListVoices(ctx); err == nil {
		t.Fatal("expected error on context timeout, got nil")
	}
}
