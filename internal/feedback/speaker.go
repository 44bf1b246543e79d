package feedback

import (
	"context"
	"os/exec"
	"strings"
	"sync"

	"earshot/internal/logging"
)

const speechQueueSize = 32

// Speaker forwards announcements to another Announcer and also speaks them
// through an external text-to-speech command, one utterance at a time.
type Speaker struct {
	next    Announcer
	command []string
	run     func(ctx context.Context, name string, args ...string) error

	mu     sync.Mutex
	closed bool
	queue  chan string
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSpeaker starts a speaker. command is split on whitespace and the text
// is appended as the final argument.
func NewSpeaker(next Announcer, command string) *Speaker {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Speaker{
		next:    next,
		command: strings.Fields(command),
		run:     runCommand,
		queue:   make(chan string, speechQueueSize),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go s.loop()
	return s
}

func runCommand(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

func (s *Speaker) Info(msg string) {
	s.next.Info(msg)
	s.say(msg)
}

func (s *Speaker) Warn(msg string) {
	s.next.Warn(msg)
	s.say("Warning: " + msg)
}

func (s *Speaker) Error(msg string) {
	s.next.Error(msg)
	s.say("Error: " + msg)
}

func (s *Speaker) say(text string) {
	if len(s.command) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.queue <- text:
	default:
		logging.FeedbackDebug("speech queue full, dropping %q", text)
	}
}

func (s *Speaker) loop() {
	defer close(s.done)
	for text := range s.queue {
		args := append(append([]string{}, s.command[1:]...), text)
		if err := s.run(s.ctx, s.command[0], args...); err != nil && s.ctx.Err() == nil {
			logging.Get(logging.CategoryFeedback).Warn("speech command failed: %v", err)
		}
	}
}

// Close stops speaking. Queued text is discarded once the current utterance
// is interrupted.
func (s *Speaker) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()

	s.cancel()
	<-s.done
}
