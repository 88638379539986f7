package transcribe

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listen "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

// DeepgramConfig selects the model and audio format for a Deepgram live
// transcription session.
type DeepgramConfig struct {
	APIKey     string
	Model      string
	Language   string
	SampleRate int
}

// deepgramStream is the slice of the SDK's live client this adapter uses.
type deepgramStream interface {
	Connect() bool
	Stop()
	Write(p []byte) (int, error)
}

// DeepgramClient adapts the Deepgram live-streaming SDK to the Transcriber
// interface. Used when the deployment prefers Deepgram over the OpenAI
// realtime endpoint.
type DeepgramClient struct {
	cfg  DeepgramConfig
	dial func(ctx context.Context, cb api.LiveMessageCallback) (deepgramStream, error)

	mu      sync.Mutex
	client  deepgramStream
	started bool
	closed  bool

	results chan Result
	stopped sync.Once
}

func NewDeepgramClient(cfg DeepgramConfig) *DeepgramClient {
	if cfg.Model == "" {
		cfg.Model = "nova-2"
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 24000
	}

	d := &DeepgramClient{cfg: cfg, results: make(chan Result, 16)}
	d.dial = func(ctx context.Context, cb api.LiveMessageCallback) (deepgramStream, error) {
		cOptions := &interfaces.ClientOptions{APIKey: cfg.APIKey, EnableKeepAlive: true}
		tOptions := &interfaces.LiveTranscriptionOptions{
			Model:       cfg.Model,
			Language:    cfg.Language,
			Punctuate:   true,
			SmartFormat: true,
			Encoding:    "linear16",
			SampleRate:  cfg.SampleRate,
			Channels:    1,
		}
		return listen.NewWSUsingCallback(ctx, "", cOptions, tOptions, cb)
	}
	return d
}

func (d *DeepgramClient) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return fmt.Errorf("deepgram: client already started")
	}

	client, err := d.dial(ctx, deepgramCallback{owner: d})
	if err != nil {
		return fmt.Errorf("create deepgram client: %w", err)
	}
	if ok := client.Connect(); !ok {
		return fmt.Errorf("deepgram: connect failed")
	}

	d.client = client
	d.started = true
	return nil
}

// SendAudio quantizes the frame and forwards it to the live stream. The
// SDK buffers writes internally; errors are dropped along with the frame
// rather than blocking the capture callback.
func (d *DeepgramClient) SendAudio(frame []float32) {
	d.mu.Lock()
	client := d.client
	d.mu.Unlock()
	if client == nil || len(frame) == 0 {
		return
	}

	if _, err := client.Write(EncodePCM16(frame)); err != nil {
		log.Printf("deepgram: audio write dropped: %v", err)
	}
}

func (d *DeepgramClient) Results() <-chan Result {
	return d.results
}

func (d *DeepgramClient) Stop() {
	d.stopped.Do(func() {
		d.mu.Lock()
		client := d.client
		d.client = nil
		d.mu.Unlock()

		if client != nil {
			client.Stop()
		}

		// Mark closed under the lock so no callback emit can race the
		// channel close.
		d.mu.Lock()
		d.closed = true
		close(d.results)
		d.mu.Unlock()
	})
}

// emit delivers a result unless the session is already closed. Drops on a
// full channel rather than blocking the SDK's read loop.
func (d *DeepgramClient) emit(r Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	select {
	case d.results <- r:
	default:
	}
}

// deepgramCallback forwards completed transcripts into the results
// channel. Only final results with text are surfaced.
type deepgramCallback struct {
	owner *DeepgramClient
}

func (cb deepgramCallback) Message(mr *api.MessageResponse) error {
	if !mr.IsFinal || len(mr.Channel.Alternatives) == 0 {
		return nil
	}
	text := strings.TrimSpace(mr.Channel.Alternatives[0].Transcript)
	if text == "" {
		return nil
	}
	cb.owner.emit(Result{Text: text})
	return nil
}

func (cb deepgramCallback) Error(er *api.ErrorResponse) error {
	cb.owner.emit(Result{Err: fmt.Errorf("deepgram error %s: %s", er.ErrCode, er.Description)})
	return nil
}

func (cb deepgramCallback) Open(*api.OpenResponse) error {
	log.Println("deepgram: connected")
	return nil
}

func (cb deepgramCallback) Close(*api.CloseResponse) error {
	log.Println("deepgram: disconnected")
	return nil
}

func (cb deepgramCallback) Metadata(*api.MetadataResponse) error           { return nil }
func (cb deepgramCallback) SpeechStarted(*api.SpeechStartedResponse) error { return nil }
func (cb deepgramCallback) UtteranceEnd(*api.UtteranceEndResponse) error   { return nil }
func (cb deepgramCallback) UnhandledEvent([]byte) error                    { return nil }
