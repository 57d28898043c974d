package system

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/MrWong99/voxdispatch/pkg/provider/tts"
	"github.com/MrWong99/voxdispatch/pkg/provider/tts/subprocess"
)

// sayDriver drives the macOS say command.
type sayDriver struct {
	binary string
	runner *subprocess.Runner
}

func (d *sayDriver) name() string { return "say" }

func (d *sayDriver) synthesize(ctx context.Context, text string, opts tts.SynthesisOptions) error {
	args := []string{
		"-r", strconv.Itoa(opts.WPM()),
		"-o", opts.OutputPath,
		"--data-format=LEI16@22050",
		"-f", "-",
	}
	if opts.Voice != "" {
		args = append(args, "-v", opts.Voice)
	}
	if _, err := d.runner.Run(ctx, text, d.binary, args...); err != nil {
		return fmt.Errorf("system: say: %w", err)
	}
	return nil
}

func (d *sayDriver) listVoices(ctx context.Context) ([]tts.Voice, error) {
	out, err := d.runner.Run(ctx, "", d.binary, "-v", "?")
	if err != nil {
		return nil, fmt.Errorf("system: say -v ?: %w", err)
	}
	return parseSayVoices(out), nil
}

// sayLine matches one line of "say -v ?":
//
//	Sin-ji              zh_HK    # 您好！我叫善怡。
//	Eddy (English (US)) en_US    # Hello! My name is Eddy.
var sayLine = regexp.MustCompile(`^(.+?)\s+([a-z]{2,3}[_-][A-Za-z0-9]+)\s+#`)

func parseSayVoices(out []byte) []tts.Voice {
	var voices []tts.Voice
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		m := sayLine.FindStringSubmatch(sc.Text())
		if m == nil {
			continue
		}
		name := strings.TrimSpace(m[1])
		voices = append(voices, tts.Voice{
			ID:        name,
			Name:      name,
			Languages: []string{m[2]},
		})
	}
	return voices
}
