package speech

import (
	"context"
	"strings"
	"sync"
	"time"

	"conversekit/compose"
	"conversekit/core"
	"conversekit/events/stt"
	"conversekit/events/tts"
)

const (
	NoticeInactivity       = "Microphone turned off due to inactivity."
	NoticePermissionDenied = "Microphone access denied. Please enable it in browser settings."
	NoticeRecognitionError = "Speech recognition error. Please try again."
)

type Config struct {
	// InactivityTimeout turns the mic off after this long without any
	// recognition result. Every result, interim or final, renews it.
	InactivityTimeout time.Duration `json:"inactivity_timeout"`
	// EchoGuard discards recognition results arriving this soon after
	// synthesis output, so the assistant does not transcribe itself.
	EchoGuard time.Duration `json:"echo_guard"`
	// RestartDelay is the pause before restarting recognition after a
	// transient engine error or an engine-initiated end.
	RestartDelay time.Duration `json:"restart_delay"`
	// ResumeDelay is the pause between an utterance finishing and the
	// mic resuming, covering audio-output tail that would echo back.
	ResumeDelay time.Duration `json:"resume_delay"`
	// InterruptKeywords are final transcripts treated as a cancel
	// command while a turn is active, matched case-insensitively.
	InterruptKeywords []string `json:"interrupt_keywords,omitempty"`
	DefaultLanguage   string   `json:"default_language"`
	Rate              float64  `json:"rate"`
	Pitch             float64  `json:"pitch"`
}

func DefaultConfig() Config {
	return Config{
		InactivityTimeout: 60 * time.Second,
		EchoGuard:         500 * time.Millisecond,
		RestartDelay:      1 * time.Second,
		ResumeDelay:       500 * time.Millisecond,
		InterruptKeywords: []string{"stop", "ruko", "cancel", "band karo", "halt", "ruk jao"},
		DefaultLanguage:   "en-IN",
		Rate:              1.0,
		Pitch:             1.0,
	}
}

// Controller owns the half-duplex coordination between recognition and
// synthesis: the mic state machine, echo suppression, the inactivity
// timer and the interrupt-keyword path into the turn orchestrator.
type Controller struct {
	engine RecognitionEngine
	synth  Synthesizer
	perms  PermissionChecker
	turns  TurnControl
	sink   core.EventSink
	notify func(text string)
	logger *core.Logger
	config Config

	mu           sync.Mutex
	state        MicState
	enabled      bool
	speaking     bool
	lastSpeechAt time.Time
	language     string
	inactivity   *time.Timer
	restart      *time.Timer
	resume       *time.Timer
	// utteranceGen invalidates callbacks of superseded utterances;
	// sessionGen invalidates restarts scheduled before a toggle-off.
	utteranceGen uint64
	sessionGen   uint64
}

// NewController wires the speech subsystem. engine and synth may be nil
// when the runtime lacks the capability; the matching operations then
// fail with ErrUnsupported instead of panicking.
func NewController(engine RecognitionEngine, synth Synthesizer, perms PermissionChecker, turns TurnControl, sink core.EventSink, notify func(string), config Config, logger *core.Logger) *Controller {
	if sink == nil {
		sink = core.NopSink{}
	}
	if notify == nil {
		notify = func(string) {}
	}
	if config.DefaultLanguage == "" {
		config.DefaultLanguage = DefaultConfig().DefaultLanguage
	}
	if config.Rate == 0 {
		config.Rate = 1.0
	}
	if config.Pitch == 0 {
		config.Pitch = 1.0
	}
	return &Controller{
		engine:   engine,
		synth:    synth,
		perms:    perms,
		turns:    turns,
		sink:     sink,
		notify:   notify,
		logger:   logger,
		config:   config,
		state:    MicOff,
		language: config.DefaultLanguage,
	}
}

func (c *Controller) RecognitionSupported() bool { return c.engine != nil }
func (c *Controller) SynthesisSupported() bool   { return c.synth != nil }

// WriteAudio forwards a captured PCM frame to the recognition engine.
// Engines that capture their own audio return core.ErrUnsupported; the
// caller can stop forwarding after the first such error.
func (c *Controller) WriteAudio(pcm []byte) error {
	if c.engine == nil {
		return core.ErrUnsupported
	}
	return c.engine.WriteAudio(pcm)
}

func (c *Controller) State() MicState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

// Toggle flips the mic between off and listening. Returns the state the
// mic ends in.
func (c *Controller) Toggle() (MicState, error) {
	if c.engine == nil {
		return MicOff, core.ErrUnsupported
	}
	c.mu.Lock()
	if c.enabled {
		c.enabled = false
		c.sessionGen++
		c.stopTimersLocked()
		c.setStateLocked(MicOff)
		c.mu.Unlock()
		c.engine.Stop()
		c.logger.Info("microphone disabled")
		return MicOff, nil
	}
	c.enabled = true
	lang := c.language
	c.mu.Unlock()

	if err := c.engine.Start(lang, c.engineEvents()); err != nil {
		c.mu.Lock()
		c.enabled = false
		c.setStateLocked(MicErrored)
		c.mu.Unlock()
		return MicErrored, err
	}
	c.mu.Lock()
	c.setStateLocked(MicListening)
	c.armInactivityLocked()
	c.mu.Unlock()
	c.logger.Info("microphone enabled", "language", lang)
	return MicListening, nil
}

func (c *Controller) engineEvents() EngineEvents {
	return EngineEvents{
		OnResult: c.onResult,
		OnError:  c.onError,
		OnEnd:    c.onEnd,
	}
}

func (c *Controller) onResult(res RecognitionResult) {
	c.mu.Lock()
	if c.speaking || time.Since(c.lastSpeechAt) < c.config.EchoGuard {
		c.mu.Unlock()
		c.sink.Publish(core.NewEventPacket(&stt.RecognitionDiscardedEvent{Text: res.Text}, "speech"))
		c.logger.Debug("discarded echo-window transcript", "text", res.Text)
		return
	}
	c.armInactivityLocked()
	c.mu.Unlock()

	if !res.Final {
		c.sink.Publish(core.NewEventPacket(&stt.RecognitionInterimEvent{Text: res.Text}, "speech"))
		return
	}

	text := strings.TrimSpace(res.Text)
	if text == "" {
		return
	}
	language := compose.DetectLanguage(text)
	c.mu.Lock()
	c.language = language
	c.mu.Unlock()
	c.sink.Publish(core.NewEventPacket(&stt.RecognitionFinalEvent{Text: text, Language: language}, "speech"))

	if c.isInterrupt(text) && c.turns.Active() {
		c.logger.Info("interrupt keyword recognized", "text", text)
		if err := c.turns.Cancel(); err != nil && !core.IsCancelled(err) {
			c.logger.Warn("interrupt cancel failed", "error", err)
		}
		return
	}
	c.turns.SubmitVoice(text, language)
}

func (c *Controller) isInterrupt(text string) bool {
	lowered := strings.ToLower(strings.TrimSpace(text))
	for _, kw := range c.config.InterruptKeywords {
		if lowered == kw {
			return true
		}
	}
	return false
}

func (c *Controller) onError(code string) {
	if code == ErrCodeNoSpeech || code == ErrCodeAborted {
		c.logger.Debug("transient recognition error", "code", code)
		c.scheduleRestart(false)
		return
	}
	c.logger.Warn("recognition error", "code", code)
	c.forceOff(MicErrored, NoticeRecognitionError)
}

// onEnd fires when the engine stops on its own. Permission is re-probed
// before restarting: a revoked mic must not retry-loop.
func (c *Controller) onEnd() {
	c.scheduleRestart(true)
}

func (c *Controller) scheduleRestart(checkPermission bool) {
	c.mu.Lock()
	if !c.enabled || c.speaking {
		c.mu.Unlock()
		return
	}
	gen := c.sessionGen
	if c.restart != nil {
		c.restart.Stop()
	}
	c.restart = time.AfterFunc(c.config.RestartDelay, func() {
		c.restartRecognition(gen, checkPermission)
	})
	c.mu.Unlock()
}

func (c *Controller) restartRecognition(gen uint64, checkPermission bool) {
	c.mu.Lock()
	if gen != c.sessionGen || !c.enabled || c.speaking {
		c.mu.Unlock()
		return
	}
	lang := c.language
	c.mu.Unlock()

	if checkPermission && c.perms != nil {
		granted, err := c.perms.MicrophoneGranted(context.Background())
		if err != nil {
			c.logger.Warn("microphone permission probe failed", "error", err)
		} else if !granted {
			c.forceOff(MicOff, NoticePermissionDenied)
			return
		}
	}
	if err := c.engine.Start(lang, c.engineEvents()); err != nil {
		c.logger.Warn("recognition restart failed", "error", err)
		c.forceOff(MicErrored, NoticeRecognitionError)
		return
	}
	c.mu.Lock()
	c.setStateLocked(MicListening)
	c.armInactivityLocked()
	c.mu.Unlock()
}

// Speak synthesizes text and blocks until playback finishes, errors or
// ctx is cancelled. Recognition is suspended for the duration and any
// in-flight utterance is superseded first.
func (c *Controller) Speak(ctx context.Context, text, language string) error {
	if c.synth == nil {
		return core.ErrUnsupported
	}
	if language == "" {
		language = c.config.DefaultLanguage
	}
	voice, _ := SelectVoice(c.synth.Voices(), language)

	c.mu.Lock()
	c.utteranceGen++
	gen := c.utteranceGen
	c.speaking = true
	c.lastSpeechAt = time.Now()
	c.stopResumeLocked()
	wasListening := c.enabled && c.state == MicListening
	if wasListening {
		c.setStateLocked(MicSuspended)
	}
	c.mu.Unlock()

	c.synth.Cancel()
	if wasListening {
		c.engine.Stop()
	}

	done := make(chan struct{})
	var once sync.Once
	finish := func(errReason string) {
		c.mu.Lock()
		if gen != c.utteranceGen {
			c.mu.Unlock()
			return
		}
		c.speaking = false
		c.lastSpeechAt = time.Now()
		c.mu.Unlock()
		if errReason != "" {
			c.sink.Publish(core.NewEventPacket(&tts.SpeakingErrorEvent{Error: errReason}, "speech"))
		} else {
			c.sink.Publish(core.NewEventPacket(&tts.SpeakingEndedEvent{}, "speech"))
		}
		c.scheduleResume()
		once.Do(func() { close(done) })
	}

	err := c.synth.Speak(Utterance{
		Text:     text,
		Language: language,
		Voice:    voice,
		Rate:     c.config.Rate,
		Pitch:    c.config.Pitch,
	}, UtteranceEvents{
		OnStart: func() {
			c.mu.Lock()
			stale := gen != c.utteranceGen
			if !stale {
				c.lastSpeechAt = time.Now()
			}
			c.mu.Unlock()
			if stale {
				return
			}
			c.sink.Publish(core.NewEventPacket(&tts.SpeakingStartedEvent{
				Text:     text,
				Language: language,
				Voice:    voice.Name,
			}, "speech"))
		},
		OnEnd:   func() { finish("") },
		OnError: func(reason string) { finish(reason) },
	})
	if err != nil {
		finish(err.Error())
		return err
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		c.synth.Cancel()
		// Cancel surfaces through OnEnd/OnError, which unwinds the
		// speaking flag and schedules resume.
		select {
		case <-done:
		case <-time.After(time.Second):
			finish("cancelled")
		}
		return core.ErrCancelled
	}
}

// StopSpeaking cancels the active utterance, if any.
func (c *Controller) StopSpeaking() {
	if c.synth != nil {
		c.synth.Cancel()
	}
}

// scheduleResume brings recognition back after synthesis, delayed so the
// playback tail does not get transcribed.
func (c *Controller) scheduleResume() {
	c.mu.Lock()
	if !c.enabled {
		c.mu.Unlock()
		return
	}
	gen := c.sessionGen
	c.stopResumeLocked()
	c.resume = time.AfterFunc(c.config.ResumeDelay, func() {
		c.mu.Lock()
		if gen != c.sessionGen || !c.enabled || c.speaking {
			c.mu.Unlock()
			return
		}
		lang := c.language
		c.mu.Unlock()
		if err := c.engine.Start(lang, c.engineEvents()); err != nil {
			c.logger.Warn("recognition resume failed", "error", err)
			c.forceOff(MicErrored, NoticeRecognitionError)
			return
		}
		c.mu.Lock()
		c.setStateLocked(MicListening)
		c.armInactivityLocked()
		c.mu.Unlock()
	})
	c.mu.Unlock()
}

func (c *Controller) forceOff(state MicState, notice string) {
	c.mu.Lock()
	wasEnabled := c.enabled
	c.enabled = false
	c.sessionGen++
	c.stopTimersLocked()
	c.setStateLocked(state)
	c.mu.Unlock()
	if c.engine != nil {
		c.engine.Stop()
	}
	if wasEnabled && notice != "" {
		c.notify(notice)
	}
}

func (c *Controller) armInactivityLocked() {
	if c.inactivity != nil {
		c.inactivity.Stop()
	}
	if c.config.InactivityTimeout <= 0 {
		return
	}
	c.inactivity = time.AfterFunc(c.config.InactivityTimeout, func() {
		c.logger.Info("microphone inactivity timeout")
		c.forceOff(MicOff, NoticeInactivity)
	})
}

func (c *Controller) stopResumeLocked() {
	if c.resume != nil {
		c.resume.Stop()
		c.resume = nil
	}
}

func (c *Controller) stopTimersLocked() {
	if c.inactivity != nil {
		c.inactivity.Stop()
		c.inactivity = nil
	}
	if c.restart != nil {
		c.restart.Stop()
		c.restart = nil
	}
	c.stopResumeLocked()
}

func (c *Controller) setStateLocked(s MicState) {
	if c.state == s {
		return
	}
	c.state = s
	c.sink.Publish(core.NewEventPacket(&stt.MicStateChangedEvent{State: string(s)}, "speech"))
}

// Reset disables the mic and cancels synthesis, for a new-conversation
// wipe.
func (c *Controller) Reset() error {
	c.StopSpeaking()
	c.forceOff(MicOff, "")
	c.mu.Lock()
	c.language = c.config.DefaultLanguage
	c.speaking = false
	c.mu.Unlock()
	return nil
}
