package feedback

import (
	"context"
	"errors"
	"sync"
)

type recordingAnnouncer struct {
	mu     sync.Mutex
	infos  []string
	warns  []string
	errors []string
}

func (r *recordingAnnouncer) Info(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.infos = append(r.infos, msg)
}

func (r *recordingAnnouncer) Warn(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.warns = append(r.warns, msg)
}

func (r *recordingAnnouncer) Error(msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, msg)
}

func (r *recordingAnnouncer) errorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errors)
}

type mapLoader struct {
	mu    sync.Mutex
	files map[string][]byte
	loads int
}

func (m *mapLoader) Load(_ context.Context, path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	data, ok := m.files[path]
	if !ok {
		return nil, errors.New("no such file")
	}
	return data, nil
}

type recordingPlayer struct {
	mu     sync.Mutex
	played [][]byte
}

func (p *recordingPlayer) Play(buf []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.played = append(p.played, buf)
}

func (p *recordingPlayer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.played)
}

func (p *recordingPlayer) last() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.played) == 0 {
		return nil
	}
	return p.played[len(p.played)-1]
}
