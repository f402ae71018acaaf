package audio

import (
	"context"
	"os/exec"
	"sync"
)

// PermissionProbe decides whether capture can start. The host may record an
// explicit grant or denial (for example from an OS permission dialog);
// otherwise the recorder binary must be resolvable on PATH.
type PermissionProbe struct {
	command  string
	lookPath func(string) (string, error)

	mu       sync.Mutex
	override *bool
}

func NewPermissionProbe(command string) *PermissionProbe {
	if command == "" {
		command = "ffmpeg"
	}
	return &PermissionProbe{command: command, lookPath: exec.LookPath}
}

// Set records the host's permission decision.
func (p *PermissionProbe) Set(granted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.override = &granted
}

func (p *PermissionProbe) Check(_ context.Context) (bool, error) {
	p.mu.Lock()
	override := p.override
	p.mu.Unlock()
	if override != nil {
		return *override, nil
	}
	if _, err := p.lookPath(p.command); err != nil {
		return false, nil
	}
	return true, nil
}
