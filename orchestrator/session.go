package orchestrator

import (
	"conversekit/attach"
	"conversekit/core"
	"conversekit/speech"
	"conversekit/store"
)

// Session is one browser-lifetime conversation: the transcript, the
// rolling history, the speech controller and the turn orchestrator,
// wired together. Nothing in it survives a Reset.
type Session struct {
	Store   *store.MessageStore
	History *core.History
	Speech  *speech.Controller
	Turns   *Orchestrator

	logger *core.Logger
}

type SessionDeps struct {
	Generator   core.Generator
	Images      core.ImageSynthesizer
	Processor   *attach.Processor
	Engine      speech.RecognitionEngine
	Synthesizer speech.Synthesizer
	Permissions speech.PermissionChecker
	Sink        core.EventSink

	StoreConfig  store.Config
	TurnConfig   Config
	SpeechConfig speech.Config
}

// NewSession wires a session. The orchestrator and the speech controller
// reference each other, so the speaker side is attached after both
// exist.
func NewSession(deps SessionDeps, logger *core.Logger) *Session {
	history := &core.History{}
	st := store.NewMessageStore(deps.StoreConfig, deps.Sink, logger)
	turns := NewOrchestrator(st, history, deps.Processor, deps.Generator, deps.Images, deps.Sink, deps.TurnConfig, logger)
	ctrl := speech.NewController(
		deps.Engine, deps.Synthesizer, deps.Permissions, turns, deps.Sink,
		func(text string) { st.AppendNotice(text) },
		deps.SpeechConfig, logger,
	)
	turns.SetSpeaker(ctrl)
	return &Session{
		Store:   st,
		History: history,
		Speech:  ctrl,
		Turns:   turns,
		logger:  logger,
	}
}

// Reset is the "new conversation" wipe: the in-flight turn is cancelled
// (its stopped notice vanishes with the rest of the transcript), speech
// stops and the mic goes off, and both the transcript and the history
// are emptied.
func (s *Session) Reset() {
	if err := s.Turns.Cancel(); err != nil && err != core.ErrNoActiveTurn {
		s.logger.Warn("reset cancel failed", "error", err)
	}
	if err := s.Speech.Reset(); err != nil {
		s.logger.Warn("reset speech failed", "error", err)
	}
	s.Store.Reset()
	s.History.Reset()
	s.logger.Info("session reset")
}
