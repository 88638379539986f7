package transcribe

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
)

type fakeDeepgramStream struct {
	mu        sync.Mutex
	stopped   int
	written   [][]byte
	connectOK bool
}

func (f *fakeDeepgramStream) Connect() bool {
	return f.connectOK
}

func (f *fakeDeepgramStream) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
}

func (f *fakeDeepgramStream) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	buf := make([]byte, len(p))
	copy(buf, p)
	f.written = append(f.written, buf)
	return len(p), nil
}

func newDialedDeepgram(t *testing.T, stream *fakeDeepgramStream) (*DeepgramClient, api.LiveMessageCallback) {
	t.Helper()
	d := NewDeepgramClient(DeepgramConfig{APIKey: "dg-test"})
	var captured api.LiveMessageCallback
	d.dial = func(_ context.Context, cb api.LiveMessageCallback) (deepgramStream, error) {
		captured = cb
		return stream, nil
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	return d, captured
}

func transcriptMessage(t *testing.T, transcript string, isFinal bool) *api.MessageResponse {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"is_final": isFinal,
		"channel": map[string]any{
			"alternatives": []map[string]any{{"transcript": transcript}},
		},
	})
	if err != nil {
		t.Fatalf("marshal message: %v", err)
	}
	var mr api.MessageResponse
	if err := json.Unmarshal(raw, &mr); err != nil {
		t.Fatalf("unmarshal deepgram message failed: %v", err)
	}
	return &mr
}

func TestDeepgramDefaults(t *testing.T) {
	d := NewDeepgramClient(DeepgramConfig{})
	if d.cfg.Model != "nova-2" {
		t.Errorf("default model = %q", d.cfg.Model)
	}
	if d.cfg.SampleRate != 24000 {
		t.Errorf("default sample rate = %d", d.cfg.SampleRate)
	}
}

func TestDeepgramFinalTranscriptForwarded(t *testing.T) {
	stream := &fakeDeepgramStream{connectOK: true}
	d, cb := newDialedDeepgram(t, stream)

	if err := cb.Message(transcriptMessage(t, "  shorten the intro  ", true)); err != nil {
		t.Fatalf("Message callback failed: %v", err)
	}

	result := <-d.Results()
	if result.Err != nil || result.Text != "shorten the intro" {
		t.Fatalf("result = %+v", result)
	}
}

func TestDeepgramInterimAndEmptyIgnored(t *testing.T) {
	stream := &fakeDeepgramStream{connectOK: true}
	d, cb := newDialedDeepgram(t, stream)

	_ = cb.Message(transcriptMessage(t, "partial", false))
	_ = cb.Message(transcriptMessage(t, "   ", true))

	select {
	case result := <-d.Results():
		t.Fatalf("unexpected result %+v", result)
	default:
	}
}

func TestDeepgramErrorSurfaced(t *testing.T) {
	stream := &fakeDeepgramStream{connectOK: true}
	d, cb := newDialedDeepgram(t, stream)

	_ = cb.Error(&api.ErrorResponse{ErrCode: "NET-0001", Description: "upstream gone"})

	result := <-d.Results()
	if result.Err == nil {
		t.Fatalf("expected error result, got %+v", result)
	}
}

func TestDeepgramSendAudioWritesPCM(t *testing.T) {
	stream := &fakeDeepgramStream{connectOK: true}
	d, _ := newDialedDeepgram(t, stream)

	d.SendAudio([]float32{1.0, -1.0})

	stream.mu.Lock()
	defer stream.mu.Unlock()
	if len(stream.written) != 1 {
		t.Fatalf("writes = %d, want 1", len(stream.written))
	}
	want := EncodePCM16([]float32{1.0, -1.0})
	if string(stream.written[0]) != string(want) {
		t.Fatalf("written %v, want %v", stream.written[0], want)
	}
}

func TestDeepgramStopIdempotentAndSilencesCallbacks(t *testing.T) {
	stream := &fakeDeepgramStream{connectOK: true}
	d, cb := newDialedDeepgram(t, stream)

	d.Stop()
	d.Stop()

	if stream.stopped != 1 {
		t.Fatalf("stream stops = %d, want 1", stream.stopped)
	}

	// A late callback after Stop must not panic on the closed channel.
	if err := cb.Message(transcriptMessage(t, "too late", true)); err != nil {
		t.Fatalf("late Message callback failed: %v", err)
	}

	if _, open := <-d.Results(); open {
		t.Fatal("results channel should be closed after Stop")
	}
}

func TestDeepgramConnectFailure(t *testing.T) {
	d := NewDeepgramClient(DeepgramConfig{APIKey: "dg-test"})
	d.dial = func(context.Context, api.LiveMessageCallback) (deepgramStream, error) {
		return &fakeDeepgramStream{connectOK: false}, nil
	}
	if err := d.Start(context.Background()); err == nil {
		t.Fatal("expected Start to fail when connect fails")
	}
}

func TestDeepgramDoubleStartRejected(t *testing.T) {
	stream := &fakeDeepgramStream{connectOK: true}
	d, _ := newDialedDeepgram(t, stream)
	if err := d.Start(context.Background()); err == nil {
		t.Fatal("expected second Start to fail")
	}
}
