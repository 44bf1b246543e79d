package feedback

import (
	"bytes"
	"errors"
	"io"
	"math"
	"time"

	"earshot/internal/logging"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	sampleRate = 22050
	bitDepth   = 16
	amplitude  = 0.4 * math.MaxInt16

	// fadeSamples is 10ms of linear fade at each end.
	fadeSamples = sampleRate / 100
)

// GenerateTone renders a mono 16-bit PCM WAV sine tone with short fades so
// it does not click.
func GenerateTone(freq float64, dur time.Duration) []byte {
	n := int(dur.Seconds() * sampleRate)

	data := make([]int, n)
	for i := range data {
		env := 1.0
		if i < fadeSamples {
			env = float64(i) / fadeSamples
		} else if n-i < fadeSamples {
			env = float64(n-i) / fadeSamples
		}
		data[i] = int(amplitude * env * math.Sin(2*math.Pi*freq*float64(i)/sampleRate))
	}

	out := &memFile{}
	enc := wav.NewEncoder(out, sampleRate, bitDepth, 1, 1)
	err := enc.Write(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: bitDepth,
	})
	if err == nil {
		err = enc.Close()
	}
	if err != nil {
		logging.Get(logging.CategoryFeedback).Error("tone encoding failed: %v", err)
		return nil
	}
	return out.buf
}

// IsWAV reports whether data is a readable WAV file.
func IsWAV(data []byte) bool {
	return wav.NewDecoder(bytes.NewReader(data)).IsValidFile()
}

// memFile is an in-memory io.WriteSeeker. The WAV encoder seeks back to
// patch chunk sizes once the samples are written.
type memFile struct {
	buf []byte
	pos int
}

func (m *memFile) Write(p []byte) (int, error) {
	end := m.pos + len(p)
	if end > len(m.buf) {
		m.buf = append(m.buf, make([]byte, end-len(m.buf))...)
	}
	copy(m.buf[m.pos:], p)
	m.pos = end
	return len(p), nil
}

func (m *memFile) Seek(offset int64, whence int) (int64, error) {
	var base int
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = m.pos
	case io.SeekEnd:
		base = len(m.buf)
	default:
		return 0, errors.New("memfile: invalid whence")
	}
	pos := base + int(offset)
	if pos < 0 {
		return 0, errors.New("memfile: negative position")
	}
	m.pos = pos
	return int64(pos), nil
}
