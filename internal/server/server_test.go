package server

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/voxdispatch/internal/dispatch"
	"github.com/MrWong99/voxdispatch/internal/registry"
	"github.com/MrWong99/voxdispatch/internal/selector"
	"github.com/MrWong99/voxdispatch/pkg/audio"
	audiomock "github.com/MrWong99/voxdispatch/pkg/audio/mock"
	"github.com/MrWong99/voxdispatch/pkg/provider/tts"
	"github.com/MrWong99/voxdispatch/pkg/provider/tts/mock"
)

func offlineProviders() []tts.Provider {
	return []tts.Provider{
		&mock.Provider{
			Desc: tts.Descriptor{
				ID: "system", Aliases: []string{"pyttsx3"}, Kind: tts.KindLocalEngine,
				Quality: tts.QualityGood, Description: "Platform speech engine", OutputExt: ".wav",
			},
			ProbeResult:     tts.Available(map[string]any{"voices": 2}),
			SynthesizeAudio: []byte("RIFF0000WAVE"),
			ListVoicesResult: []tts.Voice{
				{ID: "Samantha", Name: "Samantha", Languages: []string{"en_US"}},
				{ID: "Sinji", Name: "Sin-ji"},
			},
		},
		&mock.Provider{
			Desc:        tts.Descriptor{ID: "espeak", Kind: tts.KindLocalEngine, OutputExt: ".wav"},
			ProbeResult: tts.Unavailable("espeak binary not found"),
		},
		&mock.Provider{
			Desc: tts.Descriptor{
				ID: "gtts", Kind: tts.KindCloudService, Quality: tts.QualityGood, Free: true, OutputExt: ".mp3",
				Limits: &tts.ServiceLimits{FreeTier: "Unlimited (rate limited)", Pricing: "Free"},
			},
			ProbeResult:     tts.Available(nil),
			SynthesizeAudio: []byte("ID3"),
		},
	}
}

func onlineProviders() []tts.Provider {
	return []tts.Provider{
		&mock.Provider{
			Desc: tts.Descriptor{
				ID: "gtts", Kind: tts.KindCloudService, Quality: tts.QualityGood, Free: true, OutputExt: ".mp3",
				Languages: []string{"en", "zh"},
				Limits:    &tts.ServiceLimits{FreeTier: "Unlimited (rate limited)", Pricing: "Free"},
			},
			ProbeResult:     tts.Available(nil),
			SynthesizeAudio: []byte("ID3"),
			ListVoicesResult: []tts.Voice{
				{ID: "en", Name: "English", Languages: []string{"en"}},
				{ID: "yue", Name: "Cantonese", Languages: []string{"yue", "zh-HK"}},
			},
		},
		&mock.Provider{
			Desc: tts.Descriptor{
				ID: "azure", Kind: tts.KindCloudService, Quality: tts.QualityExcellent, NeuralVoices: true, OutputExt: ".mp3",
				Limits: &tts.ServiceLimits{FreeTier: "5 million characters per month", RateLimit: "20 transactions per second"},
			},
			ProbeResult: tts.Unavailable("missing credentials: AZURE_SPEECH_KEY, AZURE_SPEECH_REGION"),
		},
	}
}

// connect starts a server over in-memory transports and returns a client
// session.
func connect(t *testing.T, mode selector.Mode, providers []tts.Provider, opts ...dispatch.Option) (*mcp.ClientSession, *Server) {
	t.Helper()
	ctx := context.Background()

	st := registry.Initialize(ctx, providers)
	opts = append([]dispatch.Option{dispatch.WithScratchDir(t.TempDir())}, opts...)
	d := dispatch.New(st, selector.New(mode), opts...)
	srv, err := New(d, WithVersion("test"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	st1, st2 := mcp.NewInMemoryTransports()
	ss, err := srv.MCP().Connect(ctx, st1, nil)
	if err != nil {
		t.Fatalf("server Connect: %v", err)
	}
	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "1.0.0"}, nil)
	cs, err := client.Connect(ctx, st2, nil)
	if err != nil {
		t.Fatalf("client Connect: %v", err)
	}
	t.Cleanup(func() {
		_ = cs.Close()
		_ = ss.Wait()
	})
	return cs, srv
}

func call(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) (map[string]any, bool) {
	t.Helper()
	if args == nil {
		args = map[string]any{}
	}
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	if len(res.Content) != 1 {
		t.Fatalf("CallTool(%s): %d content items, want 1", name, len(res.Content))
	}
	tc, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): content is %T, want *mcp.TextContent", name, res.Content[0])
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(tc.Text), &m); err != nil {
		t.Fatalf("CallTool(%s): invalid JSON %q: %v", name, tc.Text, err)
	}
	return m, res.IsError
}

func TestListTools(t *testing.T) {
	t.Parallel()

	for mode, providers := range map[selector.Mode][]tts.Provider{
		selector.ModeOffline: offlineProviders(),
		selector.ModeOnline:  onlineProviders(),
	} {
		cs, _ := connect(t, mode, providers)
		res, err := cs.ListTools(context.Background(), &mcp.ListToolsParams{})
		if err != nil {
			t.Fatalf("%s: ListTools: %v", mode, err)
		}
		got := make(map[string]bool)
		for _, tool := range res.Tools {
			got[tool.Name] = true
		}
		if len(got) != len(ToolNames[mode]) {
			t.Errorf("%s: %d tools, want %d", mode, len(got), len(ToolNames[mode]))
		}
		for _, name := range ToolNames[mode] {
			if !got[name] {
				t.Errorf("%s: tool %q not advertised", mode, name)
			}
		}
	}
}

func TestBindings_Validate(t *testing.T) {
	t.Parallel()

	st := registry.Initialize(context.Background(), nil)
	s := &Server{d: dispatch.New(st, selector.New(selector.ModeOffline)), mode: selector.ModeOffline}

	if err := s.offlineBindings().Validate(selector.ModeOffline); err != nil {
		t.Fatalf("offline bindings: %v", err)
	}
	if err := s.onlineBindings().Validate(selector.ModeOnline); err != nil {
		t.Fatalf("online bindings: %v", err)
	}

	missing := s.offlineBindings()
	delete(missing, "play_audio")
	if err := missing.Validate(selector.ModeOffline); err == nil || !strings.Contains(err.Error(), `"play_audio" has no binding`) {
		t.Errorf("missing binding: err = %v", err)
	}

	extra := s.offlineBindings()
	extra["get_service_limits"] = Binding{}
	if err := extra.Validate(selector.ModeOffline); err == nil || !strings.Contains(err.Error(), `"get_service_limits" is not a offline tool`) {
		t.Errorf("extra binding: err = %v", err)
	}

	if err := s.offlineBindings().Validate(selector.ModeOnline); err == nil {
		t.Error("offline bindings validated for online mode")
	}
	if err := (Bindings{}).Validate(selector.ModeAuto); err == nil {
		t.Error("auto mode has a tool list")
	}
}

func TestNew_RejectsAutoMode(t *testing.T) {
	t.Parallel()

	st := registry.Initialize(context.Background(), offlineProviders())
	if _, err := New(dispatch.New(st, selector.New(selector.ModeAuto))); err == nil {
		t.Fatal("New accepted unresolved auto mode")
	}
}

func TestGetAvailableEngines_Idempotent(t *testing.T) {
	t.Parallel()

	cs, _ := connect(t, selector.ModeOffline, offlineProviders())

	first, isErr := call(t, cs, "get_available_engines", nil)
	if isErr {
		t.Fatalf("IsError set: %v", first)
	}
	second, _ := call(t, cs, "get_available_engines", nil)

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Errorf("responses differ:\n%s\n%s", a, b)
	}

	if first["total_engines"] != float64(2) || first["offline_engines"] != float64(1) || first["online_engines"] != float64(1) {
		t.Errorf("counts = %v", first)
	}
	engines := first["available_engines"].([]any)
	sys := engines[0].(map[string]any)
	if sys["name"] != "system" || sys["voices"] != float64(2) || sys["offline"] != true {
		t.Errorf("system entry = %v", sys)
	}
	if gtts := engines[1].(map[string]any); gtts["voices"] != "Unknown" {
		t.Errorf("gtts voices = %v, want Unknown", gtts["voices"])
	}
	if rec, _ := first["recommendation"].(string); rec == "" {
		t.Error("empty recommendation")
	}
}

func TestSynthesizeSpeech(t *testing.T) {
	t.Parallel()

	cs, _ := connect(t, selector.ModeOffline, offlineProviders())

	ok, isErr := call(t, cs, "synthesize_speech", map[string]any{"text": "Hello", "engine": "pyttsx3"})
	if isErr || ok["status"] != "success" || ok["engine"] != "system" {
		t.Fatalf("success envelope = %v (IsError %v)", ok, isErr)
	}
	if _, err := os.Stat(ok["output_file"].(string)); err != nil {
		t.Errorf("output missing: %v", err)
	}

	tests := []struct {
		args map[string]any
		kind string
	}{
		{map[string]any{"text": ""}, "validation_error"},
		{map[string]any{"text": "Hi", "engine": "espeak"}, "provider_unavailable"},
		{map[string]any{"text": "Hi", "engine": "nonesuch"}, "provider_unavailable"},
	}
	for _, tt := range tests {
		env, isErr := call(t, cs, "synthesize_speech", tt.args)
		if !isErr || env["status"] != "error" || env["error_kind"] != tt.kind {
			t.Errorf("args %v: envelope = %v (IsError %v), want kind %s", tt.args, env, isErr, tt.kind)
		}
	}
}

func TestListVoices(t *testing.T) {
	t.Parallel()

	cs, _ := connect(t, selector.ModeOffline, offlineProviders())

	env, isErr := call(t, cs, "list_voices", nil)
	if isErr || env["engine"] != "system" || env["total_voices"] != float64(2) {
		t.Fatalf("envelope = %v", env)
	}
	voices := env["voices"].([]any)
	if langs := voices[1].(map[string]any)["languages"].([]any); len(langs) != 1 || langs[0] != "unknown" {
		t.Errorf("languages = %v, want [unknown]", langs)
	}

	env, isErr = call(t, cs, "list_voices", map[string]any{"engine": "espeak"})
	if !isErr || env["error"] != "Engine 'espeak' not available" {
		t.Errorf("unavailable envelope = %v", env)
	}
	if avail := env["available_engines"].([]any); len(avail) != 2 {
		t.Errorf("available_engines = %v", avail)
	}
}

func TestPlayAudio(t *testing.T) {
	t.Parallel()

	player := &audiomock.Player{}
	cs, _ := connect(t, selector.ModeOffline, offlineProviders(), dispatch.WithPlayer(player))

	path := filepath.Join(t.TempDir(), "clip.wav")
	wav := audio.EncodeWAV(audio.Clip{PCM: make([]byte, 480), SampleRate: 24000, Channels: 1})
	if err := os.WriteFile(path, wav, 0o644); err != nil {
		t.Fatal(err)
	}

	env, isErr := call(t, cs, "play_audio", map[string]any{"file_path": path})
	if isErr || env["status"] != "success" || env["message"] != "Audio played successfully" {
		t.Fatalf("envelope = %v", env)
	}

	env, isErr = call(t, cs, "play_audio", map[string]any{"file_path": path + ".missing"})
	if !isErr || env["error"] != "File not found" {
		t.Errorf("missing file envelope = %v", env)
	}
	if n := len(player.Calls()); n != 1 {
		t.Errorf("player calls = %d, want 1", n)
	}
}

func TestBatchSynthesize(t *testing.T) {
	t.Parallel()

	cs, _ := connect(t, selector.ModeOffline, offlineProviders())
	dir := filepath.Join(t.TempDir(), "batch")

	env, isErr := call(t, cs, "batch_synthesize", map[string]any{
		"texts":      []string{"one", "two", "three"},
		"output_dir": dir,
	})
	if isErr || env["status"] != "completed" || env["total_files"] != float64(3) || env["output_directory"] != dir {
		t.Fatalf("envelope = %v", env)
	}
	if env["engine"] != "system" {
		t.Errorf("engine = %v, want the selected provider", env["engine"])
	}
	for i, r := range env["results"].([]any) {
		out := r.(map[string]any)
		name := filepath.Base(out["output_file"].(string))
		if want := []string{"batch_tts_001_", "batch_tts_002_", "batch_tts_003_"}[i]; !strings.HasPrefix(name, want) {
			t.Errorf("results[%d] = %q, want prefix %s", i, name, want)
		}
	}

	env, isErr = call(t, cs, "batch_synthesize", map[string]any{"texts": []string{}})
	if !isErr || env["error_kind"] != "validation_error" {
		t.Errorf("empty batch envelope = %v", env)
	}
}

func TestOnlineTools(t *testing.T) {
	t.Parallel()

	cs, _ := connect(t, selector.ModeOnline, onlineProviders())

	services, _ := call(t, cs, "get_available_services", nil)
	if services["total_services"] != float64(1) || services["free_services"] != float64(1) || services["paid_services"] != float64(0) {
		t.Errorf("services = %v", services)
	}

	out, isErr := call(t, cs, "synthesize_speech_online", map[string]any{"text": "Hello", "speed": "fast"})
	if isErr || out["service"] != "gtts" || out["speed"] != "fast" || out["pitch"] != "medium" {
		t.Errorf("synthesis = %v", out)
	}
	if ext := filepath.Ext(out["output_file"].(string)); ext != ".mp3" {
		t.Errorf("ext = %q", ext)
	}

	bad, isErr := call(t, cs, "synthesize_speech_online", map[string]any{"text": "Hello", "pitch": "shrill"})
	if !isErr || bad["error_kind"] != "validation_error" {
		t.Errorf("bad pitch = %v", bad)
	}

	voices, _ := call(t, cs, "list_online_voices", map[string]any{"language": "zh"})
	if voices["service"] != "gtts" || voices["total_voices"] != float64(1) {
		t.Errorf("voices = %v", voices)
	}
	v := voices["voices"].([]any)[0].(map[string]any)
	if v["id"] != "yue" || v["gender"] != "neutral" || v["language"] != "yue" {
		t.Errorf("voice = %v", v)
	}

	one, _ := call(t, cs, "get_service_limits", map[string]any{"service": "azure"})
	if one["service"] != "azure" || one["limits"].(map[string]any)["rate_limit"] != "20 transactions per second" {
		t.Errorf("azure limits = %v", one)
	}
	all, _ := call(t, cs, "get_service_limits", nil)
	if len(all["all_services"].(map[string]any)) != 2 {
		t.Errorf("all limits = %v", all)
	}
}

func TestUnknownToolIsProtocolError(t *testing.T) {
	t.Parallel()

	cs, _ := connect(t, selector.ModeOnline, onlineProviders())
	if _, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: "synthesize_speech", Arguments: map[string]any{"text": "x"}}); err == nil {
		t.Fatal("offline tool callable in online mode")
	}
}
