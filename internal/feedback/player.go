package feedback

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"earshot/internal/logging"
)

// ErrNotWAV is returned by FileLoader for files without a WAV header.
var ErrNotWAV = errors.New("not a WAV file")

// Loader loads a sound resource into a playable buffer.
type Loader interface {
	Load(ctx context.Context, path string) ([]byte, error)
}

// Player plays a buffer without waiting for playback to finish.
type Player interface {
	Play(buf []byte)
}

// FileLoader reads WAV files from disk.
type FileLoader struct{}

func (FileLoader) Load(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !IsWAV(data) {
		return nil, fmt.Errorf("%s: %w", path, ErrNotWAV)
	}
	return data, nil
}

// CommandPlayer pipes buffers into an external player such as "aplay -q -".
type CommandPlayer struct {
	command []string

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewCommandPlayer creates a player for command, split on whitespace.
func NewCommandPlayer(command string) *CommandPlayer {
	ctx, cancel := context.WithCancel(context.Background())
	return &CommandPlayer{command: strings.Fields(command), ctx: ctx, cancel: cancel}
}

func (p *CommandPlayer) Play(buf []byte) {
	if len(p.command) == 0 || len(buf) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		cmd := exec.CommandContext(p.ctx, p.command[0], p.command[1:]...)
		cmd.Stdin = bytes.NewReader(buf)
		if err := cmd.Run(); err != nil && p.ctx.Err() == nil {
			logging.Get(logging.CategoryFeedback).Warn("player command failed: %v", err)
		}
	}()
}

// Close stops in-flight playback; later Play calls do nothing.
func (p *CommandPlayer) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cancel()
	p.wg.Wait()
}
