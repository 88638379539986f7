package transcribe

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const defaultRealtimeURL = "wss://api.openai.com/v1/realtime?intent=transcription"

// clearGrace is how long Stop waits after sending the buffer-clear event
// before closing the transport, so the server can process it.
const clearGrace = 100 * time.Millisecond

// sendQueueSize bounds the outgoing audio queue. At 100 ms per frame this
// is several seconds of backlog; beyond that frames are dropped rather
// than blocking the audio callback.
const sendQueueSize = 64

type state int

const (
	stateIdle state = iota
	stateConnecting
	stateOpen
	stateClosed
)

// RealtimeConfig is the one-time session configuration sent after the
// handshake.
type RealtimeConfig struct {
	Model    string
	Language string
}

// RealtimeClient streams PCM16 audio to the OpenAI Realtime transcription
// endpoint over a websocket and emits completed utterances.
//
// Lifecycle: Idle -> Connecting -> Open -> Closed. Closed is terminal; a
// new recording needs a new client.
type RealtimeClient struct {
	issuer TokenIssuer
	url    string
	cfg    RealtimeConfig
	dialer *websocket.Dialer
	grace  time.Duration

	mu    sync.Mutex
	state state
	conn  *websocket.Conn

	sendCh  chan []byte
	results chan Result
	done    chan struct{}
	writeWG sync.WaitGroup
	readWG  sync.WaitGroup
	stopped sync.Once
}

func NewRealtimeClient(issuer TokenIssuer, cfg RealtimeConfig) *RealtimeClient {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-transcribe"
	}
	return &RealtimeClient{
		issuer:  issuer,
		url:     defaultRealtimeURL,
		cfg:     cfg,
		dialer:  websocket.DefaultDialer,
		grace:   clearGrace,
		sendCh:  make(chan []byte, sendQueueSize),
		results: make(chan Result, 16),
		done:    make(chan struct{}),
	}
}

// NewRealtimeClientWithURL overrides the endpoint. Tests use this with a
// local websocket server.
func NewRealtimeClientWithURL(issuer TokenIssuer, cfg RealtimeConfig, url string) *RealtimeClient {
	c := NewRealtimeClient(issuer, cfg)
	c.url = url
	return c
}

// Outgoing message shapes, per the realtime transcription protocol.
type sessionUpdateEvent struct {
	Type    string        `json:"type"`
	Session sessionConfig `json:"session"`
}

type sessionConfig struct {
	InputAudioTranscription transcriptionConfig `json:"input_audio_transcription"`
	InputAudioNoiseReduction noiseReduction     `json:"input_audio_noise_reduction"`
	TurnDetection           turnDetection       `json:"turn_detection"`
}

type transcriptionConfig struct {
	Model    string `json:"model"`
	Language string `json:"language,omitempty"`
}

type noiseReduction struct {
	Type string `json:"type"`
}

type turnDetection struct {
	Type string `json:"type"`
}

type audioAppendEvent struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

type bufferClearEvent struct {
	Type string `json:"type"`
}

// serverEvent covers the inbound fields we dispatch on; everything else
// in the payload is ignored.
type serverEvent struct {
	Type       string `json:"type"`
	Transcript string `json:"transcript,omitempty"`
	Error      *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Start obtains an ephemeral token, opens the websocket, and sends the
// session configuration. It fails if the client has ever been started.
func (c *RealtimeClient) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != stateIdle {
		c.mu.Unlock()
		return fmt.Errorf("realtime: client already started")
	}
	c.state = stateConnecting
	c.mu.Unlock()

	token, err := c.issuer.IssueToken(ctx)
	if err != nil {
		c.setState(stateClosed)
		close(c.results)
		return fmt.Errorf("issue transcription token: %w", err)
	}

	dialer := *c.dialer
	dialer.Subprotocols = []string{
		"realtime",
		"openai-insecure-api-key." + token,
		"openai-beta.realtime-v1",
	}

	conn, resp, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		if resp != nil {
			log.Printf("realtime: dial failed with status %d", resp.StatusCode)
		}
		c.setState(stateClosed)
		close(c.results)
		return fmt.Errorf("dial transcription endpoint: %w", err)
	}

	update := sessionUpdateEvent{
		Type: "transcription_session.update",
		Session: sessionConfig{
			InputAudioTranscription: transcriptionConfig{
				Model:    c.cfg.Model,
				Language: c.cfg.Language,
			},
			InputAudioNoiseReduction: noiseReduction{Type: "near_field"},
			TurnDetection:            turnDetection{Type: "server_vad"},
		},
	}
	if err := conn.WriteJSON(update); err != nil {
		_ = conn.Close()
		c.setState(stateClosed)
		close(c.results)
		return fmt.Errorf("send session configuration: %w", err)
	}

	c.mu.Lock()
	if c.state == stateClosed {
		// Stop raced the handshake; honor it.
		c.mu.Unlock()
		_ = conn.Close()
		close(c.results)
		return fmt.Errorf("realtime: stopped during connect")
	}
	c.conn = conn
	c.state = stateOpen
	c.mu.Unlock()

	c.writeWG.Add(1)
	go c.writeLoop(conn)
	c.readWG.Add(1)
	go c.readLoop(conn)

	log.Printf("realtime: connected, model=%s language=%s", c.cfg.Model, c.cfg.Language)
	return nil
}

// SendAudio quantizes one frame of mono float32 samples and queues it for
// transmission. Called from the audio capture callback: it never blocks,
// and drops the frame when the queue is full or the session is not open.
func (c *RealtimeClient) SendAudio(frame []float32) {
	if len(frame) == 0 || c.currentState() != stateOpen {
		return
	}

	payload, err := json.Marshal(audioAppendEvent{
		Type:  "input_audio_buffer.append",
		Audio: base64.StdEncoding.EncodeToString(EncodePCM16(frame)),
	})
	if err != nil {
		return
	}

	select {
	case c.sendCh <- payload:
	default:
		// Queue full: the transport is behind. Dropping audio is better
		// than stalling the capture callback.
	}
}

func (c *RealtimeClient) Results() <-chan Result {
	return c.results
}

// Stop ends the session: it sends a buffer-clear event, waits a short
// grace period, then closes the transport. Safe to call any number of
// times from any goroutine.
func (c *RealtimeClient) Stop() {
	c.stopped.Do(func() {
		prev := c.currentState()
		c.setState(stateClosed)

		if prev != stateOpen {
			// Never connected; nothing to flush or close.
			if prev == stateIdle {
				close(c.results)
			}
			return
		}

		if payload, err := json.Marshal(bufferClearEvent{Type: "input_audio_buffer.clear"}); err == nil {
			select {
			case c.sendCh <- payload:
			default:
			}
		}

		close(c.done)
		// writeLoop drains the queue (including the clear) before exiting;
		// only then is it safe to close the transport.
		c.writeWG.Wait()
		time.Sleep(c.grace)

		c.mu.Lock()
		conn := c.conn
		c.conn = nil
		c.mu.Unlock()

		if conn != nil {
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = conn.Close()
		}

		c.readWG.Wait()
		close(c.results)
		log.Printf("realtime: closed")
	})
}

// writeLoop is the sole writer to the websocket after Start returns.
func (c *RealtimeClient) writeLoop(conn *websocket.Conn) {
	defer c.writeWG.Done()
	for {
		select {
		case <-c.done:
			// Drain whatever is already queued (including the final
			// buffer-clear) before giving up the connection.
			for {
				select {
				case payload := <-c.sendCh:
					if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
						return
					}
				default:
					return
				}
			}
		case payload := <-c.sendCh:
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				// The read loop surfaces the transport error; writes just
				// stop here.
				return
			}
		}
	}
}

func (c *RealtimeClient) readLoop(conn *websocket.Conn) {
	defer c.readWG.Done()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.currentState() != stateClosed {
				c.emit(Result{Err: fmt.Errorf("transcription stream closed: %w", err)})
			}
			return
		}

		var event serverEvent
		if err := json.Unmarshal(message, &event); err != nil {
			log.Printf("realtime: unparseable event: %v", err)
			continue
		}

		switch event.Type {
		case "conversation.item.input_audio_transcription.completed":
			if event.Transcript != "" {
				c.emit(Result{Text: event.Transcript})
			}
		case "error":
			msg := "unknown error"
			if event.Error != nil {
				msg = event.Error.Message
			}
			c.emit(Result{Err: fmt.Errorf("transcription service error: %s", msg)})
		default:
			// session.created, deltas, VAD notifications: not our concern.
		}
	}
}

// emit delivers a result unless the session is shutting down. The channel
// is buffered; if a slow consumer fills it we drop rather than deadlock
// against Stop.
func (c *RealtimeClient) emit(r Result) {
	select {
	case c.results <- r:
	case <-c.done:
	default:
	}
}

func (c *RealtimeClient) currentState() state {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *RealtimeClient) setState(s state) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}
