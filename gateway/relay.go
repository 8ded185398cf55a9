package gateway

import (
	"context"
	"sync"
	"time"

	"conversekit/core"
	"conversekit/protocol"
	"conversekit/speech"
)

// sendFunc writes one enveloped message to the browser.
type sendFunc func(t protocol.MessageType, payload interface{}) error

// relayEngine implements speech.RecognitionEngine over the websocket:
// start/stop commands go out, results and lifecycle come back in via the
// handle* methods called from the read loop. The browser consumes the
// mic stream locally, so the relay declines forwarded audio.
type relayEngine struct {
	send sendFunc

	mu     sync.Mutex
	events speech.EngineEvents
	active bool
}

func newRelayEngine(send sendFunc) *relayEngine {
	return &relayEngine{send: send}
}

func (e *relayEngine) Start(language string, events speech.EngineEvents) error {
	e.mu.Lock()
	e.events = events
	e.active = true
	e.mu.Unlock()
	return e.send(protocol.MsgRecognizeStart, protocol.RecognizeStartPayload{Language: language})
}

func (e *relayEngine) Stop() {
	e.mu.Lock()
	e.active = false
	e.mu.Unlock()
	_ = e.send(protocol.MsgRecognizeStop, nil)
}

func (e *relayEngine) WriteAudio(pcm []byte) error {
	return core.ErrUnsupported
}

func (e *relayEngine) handleResult(text string, final bool) {
	e.mu.Lock()
	events, active := e.events, e.active
	e.mu.Unlock()
	if !active || events.OnResult == nil {
		return
	}
	events.OnResult(speech.RecognitionResult{Text: text, Final: final})
}

func (e *relayEngine) handleError(code string) {
	e.mu.Lock()
	events, active := e.events, e.active
	e.mu.Unlock()
	if !active || events.OnError == nil {
		return
	}
	events.OnError(code)
}

func (e *relayEngine) handleEnd() {
	e.mu.Lock()
	events, active := e.events, e.active
	e.mu.Unlock()
	if !active || events.OnEnd == nil {
		return
	}
	events.OnEnd()
}

// relaySynthesizer implements speech.Synthesizer over the websocket.
// Utterances are keyed by id so late lifecycle reports for a superseded
// utterance cannot complete the wrong one.
type relaySynthesizer struct {
	send sendFunc

	mu      sync.Mutex
	voices  []speech.Voice
	pending map[string]speech.UtteranceEvents
}

func newRelaySynthesizer(send sendFunc) *relaySynthesizer {
	return &relaySynthesizer{
		send:    send,
		pending: make(map[string]speech.UtteranceEvents),
	}
}

func (s *relaySynthesizer) setVoices(infos []protocol.VoiceInfo) {
	voices := make([]speech.Voice, len(infos))
	for i, v := range infos {
		voices[i] = speech.Voice{Name: v.Name, Language: v.Language}
	}
	s.mu.Lock()
	s.voices = voices
	s.mu.Unlock()
}

func (s *relaySynthesizer) Voices() []speech.Voice {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]speech.Voice, len(s.voices))
	copy(out, s.voices)
	return out
}

func (s *relaySynthesizer) Speak(u speech.Utterance, events speech.UtteranceEvents) error {
	id := core.NewID()
	s.mu.Lock()
	s.pending[id] = events
	s.mu.Unlock()

	err := s.send(protocol.MsgSpeak, protocol.SpeakPayload{
		UtteranceID: id,
		Text:        u.Text,
		Language:    u.Language,
		Voice:       u.Voice.Name,
		Rate:        u.Rate,
		Pitch:       u.Pitch,
	})
	if err != nil {
		s.mu.Lock()
		delete(s.pending, id)
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *relaySynthesizer) Cancel() {
	s.mu.Lock()
	pending := s.pending
	s.pending = make(map[string]speech.UtteranceEvents)
	s.mu.Unlock()

	_ = s.send(protocol.MsgSpeakCancel, nil)
	for _, events := range pending {
		if events.OnError != nil {
			events.OnError("interrupted")
		}
	}
}

func (s *relaySynthesizer) handleStarted(id string) {
	s.mu.Lock()
	events, ok := s.pending[id]
	s.mu.Unlock()
	if ok && events.OnStart != nil {
		events.OnStart()
	}
}

func (s *relaySynthesizer) handleEnded(id string) {
	if events, ok := s.pop(id); ok && events.OnEnd != nil {
		events.OnEnd()
	}
}

func (s *relaySynthesizer) handleError(id, reason string) {
	if events, ok := s.pop(id); ok && events.OnError != nil {
		events.OnError(reason)
	}
}

func (s *relaySynthesizer) pop(id string) (speech.UtteranceEvents, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	events, ok := s.pending[id]
	if ok {
		delete(s.pending, id)
	}
	return events, ok
}

const permissionProbeTimeout = 2 * time.Second

// relayPermissions probes the browser's microphone permission. The
// browser reports state proactively and in response to probes; probe
// timeouts fall back to the last known report.
type relayPermissions struct {
	send sendFunc

	mu      sync.Mutex
	granted bool
	known   bool
	waiters []chan bool
}

func newRelayPermissions(send sendFunc) *relayPermissions {
	return &relayPermissions{send: send}
}

func (p *relayPermissions) MicrophoneGranted(ctx context.Context) (bool, error) {
	ch := make(chan bool, 1)
	p.mu.Lock()
	p.waiters = append(p.waiters, ch)
	p.mu.Unlock()

	if err := p.send(protocol.MsgPermissionProbe, nil); err != nil {
		return p.lastKnown(), nil
	}

	select {
	case granted := <-ch:
		return granted, nil
	case <-ctx.Done():
		return false, ctx.Err()
	case <-time.After(permissionProbeTimeout):
		return p.lastKnown(), nil
	}
}

func (p *relayPermissions) handleReport(granted bool) {
	p.mu.Lock()
	p.granted = granted
	p.known = true
	waiters := p.waiters
	p.waiters = nil
	p.mu.Unlock()

	for _, ch := range waiters {
		select {
		case ch <- granted:
		default:
		}
	}
}

// lastKnown assumes granted until the browser has ever reported
// otherwise, so a silent UI does not lock the mic out.
func (p *relayPermissions) lastKnown() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.known {
		return true
	}
	return p.granted
}
