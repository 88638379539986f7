package audio

import (
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// frameDivisor yields 100 ms of audio per capture buffer.
const frameDivisor = 10

// Mic captures mono float32 audio from the default input device and hands
// each frame to a callback. The callback runs on the PortAudio thread and
// must not block; downstream consumers queue or drop.
type Mic struct {
	stream  *portaudio.Stream
	onFrame func([]float32)
}

// Initialize must be called once per process before opening a Mic.
func Initialize() error {
	return portaudio.Initialize()
}

// Terminate releases the PortAudio runtime.
func Terminate() error {
	return portaudio.Terminate()
}

// NewMic opens a capture stream at the given sample rate with 100 ms
// buffers. The stream does not run until Start.
func NewMic(sampleRate int, onFrame func([]float32)) (*Mic, error) {
	if onFrame == nil {
		return nil, fmt.Errorf("audio: frame callback is required")
	}

	m := &Mic{onFrame: onFrame}
	framesPerBuffer := sampleRate / frameDivisor
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), framesPerBuffer, m.capture)
	if err != nil {
		return nil, fmt.Errorf("open capture stream: %w", err)
	}
	m.stream = stream
	return m, nil
}

func (m *Mic) Start() error {
	if err := m.stream.Start(); err != nil {
		return fmt.Errorf("start capture stream: %w", err)
	}
	return nil
}

// Stop halts capture and releases the stream.
func (m *Mic) Stop() error {
	if err := m.stream.Stop(); err != nil {
		_ = m.stream.Close()
		return fmt.Errorf("stop capture stream: %w", err)
	}
	return m.stream.Close()
}

// capture copies the PortAudio-owned buffer before handing it off, since
// the library reuses it between invocations.
func (m *Mic) capture(in []float32) {
	frame := make([]float32, len(in))
	copy(frame, in)
	m.onFrame(frame)
}
