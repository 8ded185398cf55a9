package speech

import "context"

// MicState is the process-wide microphone state. The Controller is its
// sole mutator.
type MicState string

const (
	MicOff       MicState = "off"
	MicListening MicState = "listening"
	MicSuspended MicState = "suspended"
	MicErrored   MicState = "errored"
)

// Engine error codes considered transient: recognition restarts after a
// fixed delay instead of surfacing an error.
const (
	ErrCodeNoSpeech = "no-speech"
	ErrCodeAborted  = "aborted"
)

type RecognitionResult struct {
	Text  string
	Final bool
}

// EngineEvents are the callbacks a recognition engine invokes as results
// and lifecycle changes arrive. All callbacks may be invoked from the
// engine's own goroutine.
type EngineEvents struct {
	OnResult func(RecognitionResult)
	OnError  func(code string)
	OnEnd    func()
}

// RecognitionEngine is a continuous, interim-enabled speech-to-text
// session. The gateway provides a browser-relay implementation; tests
// provide fakes.
type RecognitionEngine interface {
	Start(language string, events EngineEvents) error
	Stop()
	// WriteAudio feeds raw PCM16LE frames to engines that consume audio
	// directly (streaming providers). Engines that capture their own
	// audio decline it with core.ErrUnsupported.
	WriteAudio(pcm []byte) error
}

type Voice struct {
	Name     string
	Language string
}

type Utterance struct {
	Text     string
	Language string
	Voice    Voice
	Rate     float64
	Pitch    float64
}

// UtteranceEvents report utterance playback lifecycle. Exactly one of
// OnEnd/OnError fires per utterance, including when it is cancelled.
type UtteranceEvents struct {
	OnStart func()
	OnEnd   func()
	OnError func(reason string)
}

// Synthesizer plays at most one utterance at a time. Speak on a busy
// synthesizer implicitly supersedes the active utterance.
type Synthesizer interface {
	Voices() []Voice
	Speak(u Utterance, events UtteranceEvents) error
	Cancel()
}

// PermissionChecker probes microphone permission before a recognition
// restart. Revocation must force the mic off rather than retry-loop.
type PermissionChecker interface {
	MicrophoneGranted(ctx context.Context) (bool, error)
}

// TurnControl is the controller's narrow view of the turn orchestrator:
// enough to route a final transcript as either a cancellation or a new
// voice turn.
type TurnControl interface {
	Active() bool
	Cancel() error
	SubmitVoice(text, language string)
}
