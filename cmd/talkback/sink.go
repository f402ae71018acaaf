package main

import (
	"fmt"
	"io"
	"sync"

	"talkback/internal/domain"
)

// lineSink prints controller notifications as one line each.
type lineSink struct {
	mu sync.Mutex
	w  io.Writer
}

func newLineSink(w io.Writer) *lineSink {
	return &lineSink{w: w}
}

func (s *lineSink) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintf(s.w, format+"\n", args...)
}

func (s *lineSink) StateChanged(status domain.Status, reason domain.StateReason) {
	if status.Error != "" {
		s.printf("state %s (%s): %s", status.State, reason, status.Error)
		return
	}
	s.printf("state %s (%s)", status.State, reason)
}

func (s *lineSink) Progress(_ string, elapsedSecs int) {
	s.printf("recording %ds", elapsedSecs)
}

func (s *lineSink) TurnAppended(conversationID string, turn domain.ConversationTurn) {
	s.printf("turn %s appended to %s", turn.ID, conversationID)
}

func (s *lineSink) ConversationStarted(conversationID string) {
	s.printf("conversation %s started", conversationID)
}

func (s *lineSink) ConversationSelected(conversationID string) {
	s.printf("conversation %s selected", conversationID)
}

func (s *lineSink) Error(code domain.ErrorCode, detail string) {
	s.printf("error [%s] %s", code, detail)
}
