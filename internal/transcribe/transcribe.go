// Package transcribe streams microphone audio to a speech-to-text service
// and emits completed utterances. Two providers are supported: the OpenAI
// Realtime transcription endpoint (default) and Deepgram live streaming.
package transcribe

import "context"

// Result is one item from the transcription stream: either a completed
// utterance or a session error. A session error ends the stream; the
// owner is expected to call Stop.
type Result struct {
	Text string
	Err  error
}

// Transcriber is a live speech-to-text session.
//
// SendAudio is called from the audio capture callback with one frame of
// mono float32 samples. It must never block: implementations quantize and
// enqueue, and drop frames when the transport cannot keep up.
//
// Stop is idempotent and safe to call from any of its triggers (user
// action, error handling, shutdown). After Stop returns the Results
// channel is closed.
type Transcriber interface {
	Start(ctx context.Context) error
	SendAudio(frame []float32)
	Results() <-chan Result
	Stop()
}
