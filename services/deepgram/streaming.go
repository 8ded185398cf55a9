package deepgram

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"conversekit/core"
	"conversekit/speech"
	"conversekit/utils/audio"
)

// Config holds the streaming transcription settings. The API key is
// never serialized; inject it from the environment.
type Config struct {
	APIKey      string `json:"-"`
	BaseURL     string `json:"base_url"`
	Model       string `json:"model"`
	SmartFormat bool   `json:"smart_format"`
}

func DefaultConfig() Config {
	return Config{
		BaseURL: "https://api.deepgram.com/v1",
		Model:   "nova-2",
	}
}

// Engine implements speech.RecognitionEngine over a hosted streaming
// transcription websocket. PCM frames relayed by the gateway are
// forwarded as binary messages; interim and final transcripts come back
// as JSON and are mapped onto the engine event callbacks.
type Engine struct {
	config Config
	logger *core.Logger

	mu      sync.Mutex
	session *listenSession
}

func NewEngine(config Config, logger *core.Logger) *Engine {
	defaults := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	if config.Model == "" {
		config.Model = defaults.Model
	}
	return &Engine{config: config, logger: logger}
}

// Configured reports whether the engine has credentials to dial with.
func (e *Engine) Configured() bool {
	return strings.TrimSpace(e.config.APIKey) != ""
}

func (e *Engine) Start(language string, events speech.EngineEvents) error {
	if !e.Configured() {
		return errors.New("deepgram: api key not configured")
	}
	wsURL, err := listenURL(e.config, language)
	if err != nil {
		return err
	}

	header := http.Header{}
	header.Set("Authorization", "Token "+e.config.APIKey)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		return fmt.Errorf("deepgram: connect: %w", err)
	}

	s := &listenSession{
		conn:   conn,
		events: events,
		logger: e.logger,
		audio:  make(chan []byte, 32),
		done:   make(chan struct{}),
	}
	e.mu.Lock()
	prev := e.session
	e.session = s
	e.mu.Unlock()
	if prev != nil {
		prev.close()
	}

	go s.writeLoop()
	go s.readLoop()
	e.logger.Info("recognition stream opened", "model", e.config.Model, "language", language)
	return nil
}

func (e *Engine) Stop() {
	e.mu.Lock()
	s := e.session
	e.session = nil
	e.mu.Unlock()
	if s != nil {
		s.close()
	}
}

func (e *Engine) WriteAudio(pcm []byte) error {
	e.mu.Lock()
	s := e.session
	e.mu.Unlock()
	if s == nil {
		return errors.New("deepgram: recognition not started")
	}
	return s.sendAudio(pcm)
}

// listenSession is one open transcription stream. Closing is idempotent;
// a session closed from our side never fires further engine events.
type listenSession struct {
	conn   *websocket.Conn
	events speech.EngineEvents
	logger *core.Logger
	audio  chan []byte
	done   chan struct{}

	closeOnce sync.Once
}

func (s *listenSession) sendAudio(pcm []byte) error {
	if len(pcm) == 0 {
		return nil
	}
	frame := make([]byte, len(pcm))
	copy(frame, pcm)
	select {
	case s.audio <- frame:
		return nil
	case <-s.done:
		return errors.New("deepgram: stream closed")
	}
}

func (s *listenSession) close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

func (s *listenSession) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *listenSession) writeLoop() {
	defer s.conn.Close()
	for {
		select {
		case frame := <-s.audio:
			if err := s.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				s.close()
				return
			}
		case <-s.done:
			_ = s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`))
			return
		}
	}
}

func (s *listenSession) readLoop() {
	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			if s.closed() {
				return
			}
			if !isExpectedClose(err) {
				s.logger.Warn("recognition stream read failed", "error", err)
			}
			s.close()
			if s.events.OnEnd != nil {
				s.events.OnEnd()
			}
			return
		}
		if s.closed() {
			return
		}

		var resp listenResponse
		if err := sonic.Unmarshal(payload, &resp); err != nil {
			s.logger.Debug("recognition message skipped", "error", err)
			continue
		}
		if strings.EqualFold(resp.Type, "Error") {
			s.logger.Warn("recognition stream error", "message", resp.Message)
			s.close()
			if s.events.OnError != nil {
				s.events.OnError(speech.ErrCodeAborted)
			}
			return
		}
		text := resp.transcript()
		if text == "" {
			continue
		}
		if s.events.OnResult != nil {
			s.events.OnResult(speech.RecognitionResult{
				Text:  text,
				Final: resp.IsFinal || resp.SpeechFinal,
			})
		}
	}
}

type listenResponse struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`
	Channel     struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func (r listenResponse) transcript() string {
	for _, alt := range r.Channel.Alternatives {
		if t := strings.TrimSpace(alt.Transcript); t != "" {
			return t
		}
	}
	return ""
}

func isExpectedClose(err error) bool {
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	)
}

// listenURL builds the websocket endpoint. The transcription stream
// always receives what the gateway produces: 16-bit linear PCM at the
// mic capture rate.
func listenURL(config Config, language string) (string, error) {
	base := strings.TrimSpace(config.BaseURL)
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	u, err := url.Parse(strings.TrimRight(base, "/") + "/listen")
	if err != nil {
		return "", fmt.Errorf("deepgram: base url: %w", err)
	}

	q := u.Query()
	q.Set("model", config.Model)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(audio.MicSampleRate))
	q.Set("channels", strconv.Itoa(audio.MicChannels))
	q.Set("interim_results", "true")
	if config.SmartFormat {
		q.Set("smart_format", "true")
	}
	if language != "" {
		q.Set("language", language)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
