package config

import "reflect"

// ConfigDiff describes what changed between two configs.
// Only log_level and playback are applied at runtime; every other changed
// section is listed in Ignored so the caller can warn that a restart is
// needed.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	PlaybackChanged bool
	NewPlayback     PlaybackConfig

	// Ignored names changed sections that require a restart.
	Ignored []string
}

// Changed reports whether any hot-reloadable field changed.
func (d ConfigDiff) Changed() bool {
	return d.LogLevelChanged || d.PlaybackChanged
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Playback != new.Playback {
		d.PlaybackChanged = true
		d.NewPlayback = new.Playback
	}

	oldServer, newServer := old.Server, new.Server
	oldServer.LogLevel, newServer.LogLevel = "", ""
	if oldServer != newServer {
		d.Ignored = append(d.Ignored, "server")
	}
	if old.Probe != new.Probe {
		d.Ignored = append(d.Ignored, "probe")
	}
	if old.Synthesis != new.Synthesis {
		d.Ignored = append(d.Ignored, "synthesis")
	}
	if !reflect.DeepEqual(old.Providers, new.Providers) {
		d.Ignored = append(d.Ignored, "providers")
	}

	return d
}
