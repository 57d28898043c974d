package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/coder/websocket"

	"github.com/MrWong99/voxdispatch/pkg/provider/tts"
)

// ---- fake server ----

// fakeServer accepts one stream-input session, records the text messages it
// receives and answers with the configured frames.
type fakeServer struct {
	frames []audioResponse

	mu       sync.Mutex
	received []json.RawMessage
	apiKey   string
	path     string
	query    string
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.apiKey = r.Header.Get("xi-api-key")
	f.mu.Unlock()
	if r.URL.Path == voicesPath {
		_, _ = w.Write([]byte(`{"voices":[{"voice_id":"abc123","name":"Rachel","labels":{"gender":"female"}}]}`))
		return
	}
	f.mu.Lock()
	f.path = r.URL.Path
	f.query = r.URL.RawQuery
	f.mu.Unlock()

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()
	// BOI, text, flush.
	for range 3 {
		_, msg, err := conn.Read(ctx)
		if err != nil {
			return
		}
		f.mu.Lock()
		f.received = append(f.received, msg)
		f.mu.Unlock()
	}
	for _, fr := range f.frames {
		data, _ := json.Marshal(fr)
		if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
			return
		}
	}
	conn.Close(websocket.StatusNormalClosure, "")
}

func frame(b string, final bool) audioResponse {
	return audioResponse{Audio: base64.StdEncoding.EncodeToString([]byte(b)), IsFinal: final}
}

func newTestProvider(t *testing.T, f *fakeServer) *Provider {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	p, err := New("test-key", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

// ---- Synthesize ----

func TestSynthesize_WritesAllFrames(t *testing.T) {
	t.Parallel()

	f := &fakeServer{frames: []audioResponse{frame("ID3abc", false), frame("def", false), {IsFinal: true}}}
	p := newTestProvider(t, f)

	out := filepath.Join(t.TempDir(), "speech.mp3")
	err := p.Synthesize(context.Background(), "Hello there", tts.SynthesisOptions{OutputPath: out, Speed: tts.SpeedXFast})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(got) != "ID3abcdef" {
		t.Errorf("output = %q, want %q", got, "ID3abcdef")
	}
	if f.path != "/v1/text-to-speech/"+DefaultVoice+"/stream-input" {
		t.Errorf("path = %q, want default voice", f.path)
	}
	if !strings.Contains(f.query, "model_id="+defaultModel) || !strings.Contains(f.query, "output_format="+defaultOutputFmt) {
		t.Errorf("query = %q, want model and output format", f.query)
	}
	if f.apiKey != "test-key" {
		t.Errorf("xi-api-key header = %q, want %q", f.apiKey, "test-key")
	}
	if len(f.received) != 3 {
		t.Fatalf("received %d messages, want 3", len(f.received))
	}

	var boi boiMessage
	if err := json.Unmarshal(f.received[0], &boi); err != nil {
		t.Fatalf("unmarshal BOI: %v", err)
	}
	if boi.VoiceSettings == nil || boi.VoiceSettings.Speed != maxSpeed {
		t.Errorf("BOI voice settings = %+v, want speed clamped to %v", boi.VoiceSettings, maxSpeed)
	}
	var msg textMessage
	if err := json.Unmarshal(f.received[1], &msg); err != nil {
		t.Fatalf("unmarshal text: %v", err)
	}
	if strings.TrimSpace(msg.Text) != "Hello there" || msg.VoiceSettings != nil {
		t.Errorf("text message = %+v", msg)
	}
	if string(f.received[2]) != `{"text":""}` {
		t.Errorf("flush message = %s, want {\"text\":\"\"}", f.received[2])
	}
}

func TestSynthesize_ServerError(t *testing.T) {
	t.Parallel()

	f := &fakeServer{frames: []audioResponse{{Error: "quota_exceeded", Message: "out of credits"}}}
	p := newTestProvider(t, f)

	out := filepath.Join(t.TempDir(), "speech.mp3")
	err := p.Synthesize(context.Background(), "Hi", tts.SynthesisOptions{OutputPath: out, Voice: "v1"})
	if err == nil || !strings.Contains(err.Error(), "quota_exceeded") {
		t.Fatalf("Synthesize error = %v, want server error", err)
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Error("output written despite server error")
	}
}

func TestSynthesize_NoAudio(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t, &fakeServer{frames: []audioResponse{{IsFinal: true}}})
	err := p.Synthesize(context.Background(), "Hi", tts.SynthesisOptions{OutputPath: filepath.Join(t.TempDir(), "x.mp3")})
	if err == nil {
		t.Fatal("expected error for empty stream, got nil")
	}
}

func TestSettingsFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		speed tts.SpeedLevel
		want  float64
	}{
		{tts.SpeedMedium, 0},
		{"", 0},
		{tts.SpeedXSlow, minSpeed},
		{tts.SpeedSlow, 0.75},
		{tts.SpeedFast, maxSpeed},
	}
	for _, tt := range tests {
		if got := settingsFor(tts.SynthesisOptions{Speed: tt.speed}).Speed; got != tt.want {
			t.Errorf("settingsFor(%q).Speed = %v, want %v", tt.speed, got, tt.want)
		}
	}
}

// ---- WebSocket message construction ----

func TestTextMessage_FlushCommand(t *testing.T) {
	t.Parallel()

	// ElevenLabs flush = {"text":""} with no other fields.
	data, err := json.Marshal(textMessage{Text: ""})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal flush: %v", err)
	}
	if string(raw["text"]) != `""` {
		t.Errorf("expected empty string for text, got %s", raw["text"])
	}
	if _, exists := raw["voice_settings"]; exists {
		t.Error("flush message should not contain voice_settings")
	}
}

// ---- URL construction ----

func TestBuildURLForVoice(t *testing.T) {
	t.Parallel()

	tests := []struct {
		base   string
		prefix string
	}{
		{defaultBaseURL, "wss://api.elevenlabs.io/v1/text-to-speech/voice-abc123/stream-input?"},
		{"http://127.0.0.1:8080", "ws://127.0.0.1:8080/v1/text-to-speech/voice-abc123/stream-input?"},
	}
	for _, tt := range tests {
		p, _ := New("key", WithBaseURL(tt.base))
		url := p.buildURLForVoice("voice-abc123")
		if !strings.HasPrefix(url, tt.prefix) {
			t.Errorf("buildURLForVoice() = %q, want prefix %q", url, tt.prefix)
		}
		if !strings.Contains(url, "model_id=eleven_flash_v2_5") {
			t.Errorf("URL should contain model ID, got: %s", url)
		}
	}
}

// ---- Voice list ----

func TestListVoices(t *testing.T) {
	t.Parallel()

	f := &fakeServer{}
	voices, err := newTestProvider(t, f).ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices: %v", err)
	}
	if len(voices) != 1 || voices[0].ID != "abc123" || voices[0].Gender != "female" {
		t.Errorf("voices = %+v", voices)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.apiKey != "test-key" {
		t.Errorf("xi-api-key header = %q, want %q", f.apiKey, "test-key")
	}
}

func TestParseVoicesResponse_Success(t *testing.T) {
	t.Parallel()

	raw := []byte(`{
		"voices": [
			{
				"voice_id": "abc123",
				"name": "Rachel",
				"category": "premade",
				"labels": {"gender": "female", "accent": "american"}
			},
			{
				"voice_id": "def456",
				"name": "Ana",
				"category": "premade",
				"labels": {"gender": "female", "language": "es"}
			}
		]
	}`)

	voices, err := parseVoicesResponse(raw)
	if err != nil {
		t.Fatalf("parseVoicesResponse: %v", err)
	}
	if len(voices) != 2 {
		t.Fatalf("expected 2 voices, got %d", len(voices))
	}

	rachel := voices[0]
	if rachel.ID != "abc123" || rachel.Name != "Rachel" {
		t.Errorf("voices[0] = %+v", rachel)
	}
	if rachel.Gender != "female" {
		t.Errorf("expected gender 'female', got %q", rachel.Gender)
	}
	if rachel.Languages[0] != "en" {
		t.Errorf("unlabelled voice language = %v, want [en]", rachel.Languages)
	}
	if voices[1].Languages[0] != "es" {
		t.Errorf("voices[1] language = %v, want [es]", voices[1].Languages)
	}
}

func TestParseVoicesResponse_InvalidJSON(t *testing.T) {
	t.Parallel()

	if _, err := parseVoicesResponse([]byte(`{invalid`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestParseVoicesResponse_NoLabels(t *testing.T) {
	t.Parallel()

	raw := []byte(`{"voices": [{"voice_id": "x1", "name": "Ghost", "category": "", "labels": null}]}`)
	voices, err := parseVoicesResponse(raw)
	if err != nil {
		t.Fatalf("parseVoicesResponse: %v", err)
	}
	if len(voices) != 1 || voices[0].Gender != "" {
		t.Errorf("voices = %+v, want one voice without gender", voices)
	}
}

// ---- Constructor tests ----

func TestNew_EmptyAPIKey(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != defaultModel {
		t.Errorf("expected model %q, got %q", defaultModel, p.model)
	}
	if p.outputFormat != defaultOutputFmt {
		t.Errorf("expected outputFormat %q, got %q", defaultOutputFmt, p.outputFormat)
	}
	if d := p.Descriptor(); d.OutputExt != ".mp3" || !d.RequiresCredentials() {
		t.Errorf("descriptor = %+v", d)
	}
}

func TestNew_WithOptions(t *testing.T) {
	t.Parallel()

	p, err := New("key", WithModel("eleven_multilingual_v2"), WithOutputFormat("mp3_22050_32"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != "eleven_multilingual_v2" {
		t.Errorf("expected model 'eleven_multilingual_v2', got %q", p.model)
	}
	if p.outputFormat != "mp3_22050_32" {
		t.Errorf("expected outputFormat 'mp3_22050_32', got %q", p.outputFormat)
	}
}
