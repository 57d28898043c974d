package server

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrWong99/voxdispatch/internal/dispatch"
	"github.com/MrWong99/voxdispatch/pkg/provider/tts"
)

// Offline tool arguments.

type synthesizeArgs struct {
	Text       string `json:"text" jsonschema:"text to convert to speech"`
	Engine     string `json:"engine,omitempty" jsonschema:"engine id or alias, or auto (default)"`
	Voice      string `json:"voice,omitempty" jsonschema:"voice id or name, engine-specific"`
	Speed      int    `json:"speed,omitempty" jsonschema:"speech rate in words per minute (default 150)"`
	OutputFile string `json:"output_file,omitempty" jsonschema:"output file path, generated when empty"`
	Language   string `json:"language,omitempty" jsonschema:"language code such as en, es or zh-hk (default en)"`
}

type listVoicesArgs struct {
	Engine string `json:"engine,omitempty" jsonschema:"engine to query (default system)"`
}

type playArgs struct {
	FilePath string `json:"file_path" jsonschema:"path to the audio file to play"`
}

type batchArgs struct {
	Texts     []string `json:"texts" jsonschema:"texts to convert, one output file each"`
	Engine    string   `json:"engine,omitempty" jsonschema:"engine id or alias, or auto (default)"`
	OutputDir string   `json:"output_dir,omitempty" jsonschema:"directory for the output files"`
}

// Online tool arguments.

type synthesizeOnlineArgs struct {
	Text       string `json:"text" jsonschema:"text to convert to speech"`
	Service    string `json:"service,omitempty" jsonschema:"service id, or auto (default)"`
	Voice      string `json:"voice,omitempty" jsonschema:"voice id, service-specific"`
	Language   string `json:"language,omitempty" jsonschema:"language code (default en)"`
	OutputFile string `json:"output_file,omitempty" jsonschema:"output file path, generated when empty"`
	Speed      string `json:"speed,omitempty" jsonschema:"x-slow, slow, medium (default), fast or x-fast"`
	Pitch      string `json:"pitch,omitempty" jsonschema:"x-low, low, medium (default), high or x-high"`
}

type listOnlineVoicesArgs struct {
	Service  string `json:"service,omitempty" jsonschema:"service to query (default gtts)"`
	Language string `json:"language,omitempty" jsonschema:"language prefix to filter voices by"`
}

type serviceLimitsArgs struct {
	Service string `json:"service,omitempty" jsonschema:"service to report, all services when empty"`
}

type noArgs struct{}

func (s *Server) offlineBindings() Bindings {
	return Bindings{
		"get_available_engines": {
			Description: "Get the available TTS engines and their capabilities",
			Register:    handle(s, s.availableEngines),
		},
		"synthesize_speech": {
			Description: "Convert text to speech using the given or best available engine",
			Register:    handle(s, s.synthesize),
		},
		"list_voices": {
			Description: "List the voices of an engine",
			Register:    handle(s, s.listVoices),
		},
		"play_audio": {
			Description: "Play a generated audio file",
			Register:    handle(s, s.play),
		},
		"batch_synthesize": {
			Description: "Convert several texts to speech files",
			Register:    handle(s, s.batchSynthesize),
		},
	}
}

func (s *Server) onlineBindings() Bindings {
	return Bindings{
		"get_available_services": {
			Description: "Get the available online TTS services",
			Register:    handle(s, s.availableServices),
		},
		"synthesize_speech_online": {
			Description: "Convert text to speech using an online service",
			Register:    handle(s, s.synthesizeOnline),
		},
		"list_online_voices": {
			Description: "List the voices of an online service",
			Register:    handle(s, s.listOnlineVoices),
		},
		"get_service_limits": {
			Description: "Get usage limits and pricing of online services",
			Register:    handle(s, s.serviceLimits),
		},
	}
}

type engineInfo struct {
	Name        string      `json:"name"`
	Offline     bool        `json:"offline"`
	Quality     tts.Quality `json:"quality"`
	Description string      `json:"description"`
	Voices      any         `json:"voices"`
}

func (s *Server) availableEngines(_ context.Context, _ noArgs) (any, bool) {
	st := s.d.State()
	engines := make([]engineInfo, 0)
	offline := 0
	for _, e := range st.Entries() {
		if !e.Availability.Available {
			continue
		}
		var voices any = "Unknown"
		if n, ok := e.Availability.Detail["voices"]; ok {
			voices = n
		}
		engines = append(engines, engineInfo{
			Name:        e.Descriptor.ID,
			Offline:     e.Descriptor.Offline(),
			Quality:     e.Descriptor.Quality,
			Description: e.Descriptor.Description,
			Voices:      voices,
		})
		if e.Descriptor.Offline() {
			offline++
		}
	}
	return map[string]any{
		"available_engines": engines,
		"total_engines":     len(engines),
		"offline_engines":   offline,
		"online_engines":    len(engines) - offline,
		"recommendation":    s.d.Selector().Recommendation(st),
	}, false
}

func (s *Server) synthesize(ctx context.Context, in synthesizeArgs) (any, bool) {
	out := s.d.Synthesize(ctx, dispatch.Request{
		Text:       in.Text,
		Provider:   in.Engine,
		Language:   in.Language,
		Voice:      in.Voice,
		Speed:      in.Speed,
		OutputFile: in.OutputFile,
	})
	return out, !out.OK()
}

type voiceInfo struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Languages []string `json:"languages"`
}

func (s *Server) listVoices(ctx context.Context, in listVoicesArgs) (any, bool) {
	engine := strings.TrimSpace(in.Engine)
	if engine == "" {
		engine = "system"
	}
	cat, err := s.d.ListVoices(ctx, engine, "")
	if err != nil {
		if dispatch.KindOf(err) == dispatch.KindProviderUnavailable {
			return map[string]any{
				"error":             fmt.Sprintf("Engine '%s' not available", engine),
				"available_engines": s.d.State().ListAvailable(),
			}, true
		}
		return map[string]any{
			"engine":       engine,
			"voices":       []voiceInfo{},
			"total_voices": 0,
			"error":        err.Error(),
		}, true
	}

	voices := make([]voiceInfo, 0, len(cat.Voices))
	for _, v := range cat.Voices {
		langs := v.Languages
		if len(langs) == 0 {
			langs = []string{"unknown"}
		}
		voices = append(voices, voiceInfo{ID: v.ID, Name: v.Name, Languages: langs})
	}
	return map[string]any{
		"engine":       cat.Provider,
		"voices":       voices,
		"total_voices": len(voices),
	}, false
}

func (s *Server) play(ctx context.Context, in playArgs) (any, bool) {
	res := s.d.Play(ctx, in.FilePath)
	return res, !res.OK()
}

func (s *Server) batchSynthesize(ctx context.Context, in batchArgs) (any, bool) {
	res, err := s.batch.Run(ctx, in.Texts, dispatch.Request{Provider: in.Engine}, in.OutputDir)
	if err != nil {
		return map[string]any{
			"status":     dispatch.StatusError,
			"error_kind": dispatch.KindOf(err),
			"message":    err.Error(),
		}, true
	}
	return res, false
}

type serviceInfo struct {
	Name         string      `json:"name"`
	Quality      tts.Quality `json:"quality"`
	Description  string      `json:"description"`
	Free         bool        `json:"free"`
	NeuralVoices bool        `json:"neural_voices"`
	Languages    any         `json:"languages"`
}

func (s *Server) availableServices(_ context.Context, _ noArgs) (any, bool) {
	st := s.d.State()
	services := make([]serviceInfo, 0)
	free := 0
	for _, e := range st.Entries() {
		if !e.Availability.Available {
			continue
		}
		d := e.Descriptor
		var langs any = "Multiple"
		if len(d.Languages) > 0 {
			langs = d.Languages
		}
		services = append(services, serviceInfo{
			Name:         d.ID,
			Quality:      d.Quality,
			Description:  d.Description,
			Free:         d.Free,
			NeuralVoices: d.NeuralVoices,
			Languages:    langs,
		})
		if d.Free {
			free++
		}
	}
	return map[string]any{
		"available_services": services,
		"total_services":     len(services),
		"free_services":      free,
		"paid_services":      len(services) - free,
		"recommendation":     s.d.Selector().Recommendation(st),
	}, false
}

func (s *Server) synthesizeOnline(ctx context.Context, in synthesizeOnlineArgs) (any, bool) {
	out := s.d.Synthesize(ctx, dispatch.Request{
		Text:       in.Text,
		Provider:   in.Service,
		Language:   in.Language,
		Voice:      in.Voice,
		Rate:       tts.SpeedLevel(strings.ToLower(strings.TrimSpace(in.Speed))),
		Pitch:      tts.PitchLevel(strings.ToLower(strings.TrimSpace(in.Pitch))),
		OutputFile: in.OutputFile,
	})
	return out, !out.OK()
}

type onlineVoiceInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Gender   string `json:"gender"`
	Language string `json:"language,omitempty"`
}

func (s *Server) listOnlineVoices(ctx context.Context, in listOnlineVoicesArgs) (any, bool) {
	service := strings.TrimSpace(in.Service)
	if service == "" {
		service = "gtts"
	}
	cat, err := s.d.ListVoices(ctx, service, in.Language)
	if err != nil {
		if dispatch.KindOf(err) == dispatch.KindProviderUnavailable {
			return map[string]any{
				"error":              fmt.Sprintf("Service '%s' not available", service),
				"available_services": s.d.State().ListAvailable(),
			}, true
		}
		return map[string]any{
			"service":      service,
			"language":     in.Language,
			"voices":       []onlineVoiceInfo{},
			"total_voices": 0,
			"error":        err.Error(),
		}, true
	}

	voices := make([]onlineVoiceInfo, 0, len(cat.Voices))
	for _, v := range cat.Voices {
		info := onlineVoiceInfo{ID: v.ID, Name: v.Name, Gender: v.Gender}
		if info.Gender == "" {
			info.Gender = "neutral"
		}
		if len(v.Languages) > 0 {
			info.Language = v.Languages[0]
		}
		voices = append(voices, info)
	}
	return map[string]any{
		"service":      cat.Provider,
		"language":     in.Language,
		"voices":       voices,
		"total_voices": len(voices),
	}, false
}

func (s *Server) serviceLimits(_ context.Context, in serviceLimitsArgs) (any, bool) {
	all := make(map[string]*tts.ServiceLimits)
	for _, e := range s.d.State().Entries() {
		if e.Descriptor.Limits != nil {
			all[e.Descriptor.ID] = e.Descriptor.Limits
		}
	}
	if id, ok := s.d.State().Resolve(strings.TrimSpace(in.Service)); ok {
		if limits, ok := all[id]; ok {
			return map[string]any{"service": id, "limits": limits}, false
		}
	}
	return map[string]any{"all_services": all}, false
}
