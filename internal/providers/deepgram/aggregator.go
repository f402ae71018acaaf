package deepgram

import (
	"strings"
	"sync"
)

// aggregator joins final results. If no final arrives the last interim text
// is used instead.
type aggregator struct {
	mu         sync.Mutex
	finals     []string
	lastSpoken string
}

func (a *aggregator) Add(text string, final bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	a.lastSpoken = text
	if final {
		a.finals = append(a.finals, text)
	}
}

func (a *aggregator) Text() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	joined := strings.TrimSpace(strings.Join(a.finals, " "))
	if joined == "" {
		return a.lastSpoken
	}
	if a.lastSpoken == "" || strings.HasSuffix(joined, a.lastSpoken) {
		return joined
	}
	if len(a.lastSpoken) > len(joined) {
		return strings.TrimSpace(joined + " " + a.lastSpoken)
	}
	return joined
}
