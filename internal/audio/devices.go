package audio

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"talkback/internal/domain"
)

// ListDevices asks the recorder for the sources of format. PulseAudio lists
// are prefixed with the system loopback entry so it can be picked by name.
func (c *FFMPEGCapture) ListDevices(ctx context.Context, format string) ([]domain.AudioDevice, error) {
	if format == "" {
		format = "pulse"
	}

	cmd := exec.CommandContext(ctx, c.command, "-hide_banner", "-sources", format)
	output, err := cmd.CombinedOutput()
	devices := ParseSources(string(output))
	if err != nil && len(devices) == 0 {
		return nil, fmt.Errorf("list %s sources: %w: %s", format, err, trimOutput(string(output)))
	}

	if format == "pulse" {
		system := domain.AudioDevice{ID: SystemDevice, Name: "System audio (default output monitor)", Monitor: true}
		devices = append([]domain.AudioDevice{system}, devices...)
	}
	return devices, nil
}

// ParseSources reads the listing printed by `ffmpeg -sources`:
//
//	Auto-detected sources for pulse:
//	* alsa_input.pci.analog-stereo [Built-in Audio Analog Stereo]
//	  alsa_output.pci.analog-stereo.monitor [Monitor of Built-in Audio]
func ParseSources(output string) []domain.AudioDevice {
	var devices []domain.AudioDevice
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "*") && !strings.HasPrefix(line, " ") {
			continue
		}

		isDefault := strings.HasPrefix(line, "*")
		line = strings.TrimSpace(strings.TrimPrefix(line, "*"))
		if line == "" {
			continue
		}

		id, name := line, line
		if open := strings.Index(line, " ["); open > 0 && strings.HasSuffix(line, "]") {
			id = line[:open]
			name = line[open+2 : len(line)-1]
		}
		devices = append(devices, domain.AudioDevice{
			ID:      id,
			Name:    name,
			Default: isDefault,
			Monitor: strings.HasSuffix(id, ".monitor"),
		})
	}
	return devices
}
