package orchestrator

import (
	"context"
	"strings"
	"sync"
	"time"

	"conversekit/attach"
	"conversekit/compose"
	"conversekit/core"
	"conversekit/events/turn"
	"conversekit/store"
)

// Transcript notices appended by the turn lifecycle. Wording is part of
// the observable behavior.
const (
	NoticeStopped     = "Response stopped by user."
	NoticeTextFailed  = "Sorry, there was an error generating the response."
	NoticeImageFailed = "Sorry, there was an error generating the image."
	NoticeFilesFailed = "Sorry, there was an error processing the files."
)

const imageCommandPrefix = "/image "

// Speaker plays a reply out loud and blocks until playback finishes or
// ctx is cancelled. The speech controller implements it.
type Speaker interface {
	Speak(ctx context.Context, text, language string) error
}

type Config struct {
	// RevealInterval paces the typing animation: one rune per tick.
	RevealInterval time.Duration `json:"reveal_interval"`
}

func DefaultConfig() Config {
	return Config{RevealInterval: 20 * time.Millisecond}
}

// Orchestrator runs conversation turns. It enforces the central
// invariant that at most one turn is non-terminal at any time, and owns
// the per-turn context that broadcasts cancellation to the network call,
// the reveal loop and speech playback.
type Orchestrator struct {
	store     *store.MessageStore
	history   *core.History
	processor *attach.Processor
	generator core.Generator
	images    core.ImageSynthesizer
	sink      core.EventSink
	logger    *core.Logger
	config    Config

	mu      sync.Mutex
	speaker Speaker
	current *activeTurn
}

type activeTurn struct {
	turn   *core.Turn
	cancel context.CancelFunc
}

func NewOrchestrator(st *store.MessageStore, history *core.History, processor *attach.Processor, generator core.Generator, images core.ImageSynthesizer, sink core.EventSink, config Config, logger *core.Logger) *Orchestrator {
	if sink == nil {
		sink = core.NopSink{}
	}
	if config.RevealInterval <= 0 {
		config.RevealInterval = DefaultConfig().RevealInterval
	}
	return &Orchestrator{
		store:     st,
		history:   history,
		processor: processor,
		generator: generator,
		images:    images,
		sink:      sink,
		config:    config,
		logger:    logger,
	}
}

// SetSpeaker wires speech output after construction. The speech
// controller and the orchestrator reference each other, so one side has
// to be attached late.
func (o *Orchestrator) SetSpeaker(s Speaker) {
	o.mu.Lock()
	o.speaker = s
	o.mu.Unlock()
}

// Active reports whether a turn is currently in a non-terminal state.
func (o *Orchestrator) Active() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.current != nil && !o.current.turn.Status().Terminal()
}

// Send admits a new turn. If a turn is still in flight it is cancelled
// first; input is never queued behind it. Empty input (no text, no
// attachments) is ignored. Returns the admitted turn's id.
func (o *Orchestrator) Send(text string, attachments []core.Attachment, origin core.TurnOrigin, language string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" && len(attachments) == 0 {
		return "", nil
	}

	o.mu.Lock()
	// Re-check after every relock: a concurrent Send may have admitted a
	// new turn while the lock was dropped for cancellation.
	for o.current != nil && !o.current.turn.Status().Terminal() {
		prior := o.current
		o.mu.Unlock()
		o.cancelTurn(prior)
		o.mu.Lock()
	}

	t := core.NewTurn(text, attachments, origin, language)
	ctx, cancel := context.WithCancel(context.Background())
	o.current = &activeTurn{turn: t, cancel: cancel}
	o.mu.Unlock()

	o.sink.Publish(core.NewEventPacket(&turn.TurnStartedEvent{TurnID: t.ID, Origin: origin}, "orchestrator"))
	o.logger.Info("turn admitted", "turn_id", t.ID, "origin", string(origin))

	go func() {
		defer cancel()
		o.runTurn(ctx, t)
	}()
	return t.ID, nil
}

// SubmitVoice implements the speech controller's turn port.
func (o *Orchestrator) SubmitVoice(text, language string) {
	if _, err := o.Send(text, nil, core.TurnOriginVoice, language); err != nil {
		o.logger.Warn("voice submission rejected", "error", err)
	}
}

// Cancel aborts the in-flight turn: the shared ctx unwinds the network
// call, the reveal loop and speech, partial content stays in the
// transcript and the stopped notice is appended exactly once. Calling it
// with no active turn returns ErrNoActiveTurn.
func (o *Orchestrator) Cancel() error {
	o.mu.Lock()
	at := o.current
	o.mu.Unlock()
	if at == nil || at.turn.Status().Terminal() {
		return core.ErrNoActiveTurn
	}
	o.cancelTurn(at)
	return nil
}

// cancelTurn wins or loses the race to terminalize the turn via
// SetStatus; only the winner appends the notice and emits events, which
// keeps cancellation idempotent.
func (o *Orchestrator) cancelTurn(at *activeTurn) {
	if !at.turn.SetStatus(core.TurnCancelled) {
		return
	}
	at.cancel()
	o.store.AppendNotice(NoticeStopped)
	o.logger.Info("turn cancelled", "turn_id", at.turn.ID)
	o.finish(at.turn)
}

func (o *Orchestrator) runTurn(ctx context.Context, t *core.Turn) {
	if !o.transition(t, core.TurnActive) {
		return
	}

	if desc, ok := strings.CutPrefix(t.Text, imageCommandPrefix); ok {
		o.runImageTurn(ctx, t, strings.TrimSpace(desc))
		return
	}

	var captions, extracts []string
	if o.processor != nil && len(t.Attachments) > 0 {
		captions, extracts = o.processor.Process(ctx, t.Attachments)
	}
	if ctx.Err() != nil {
		return
	}

	content := compose.UserContent(t.Text, captions, extracts)
	o.store.AppendSent(content)
	for _, att := range t.Attachments {
		o.store.AppendSentAttachment(att)
	}

	// Attachments with real recognized text reframe the request: the
	// classified extract replaces the raw content as the prompt body and
	// the transcript carries it explicitly.
	promptBody := content
	if attach.HasUsableText(extracts) {
		joined := strings.Join(extracts, "\n")
		o.store.AppendSent("Extracted Content: " + joined)
		promptBody = compose.ClassifyExtract(joined)
	}
	prompt := compose.Compose(promptBody, o.history.Entries())

	reply, err := o.generator.Generate(ctx, prompt, t.Text)
	if err != nil {
		if core.IsCancelled(err) || ctx.Err() != nil {
			return
		}
		o.logger.Error("generation failed", "turn_id", t.ID, "error", err)
		o.fail(t, NoticeTextFailed)
		return
	}

	switch r := reply.(type) {
	case core.TextReply:
		o.deliverText(ctx, t, content, r.Text)
	case core.ImageReply:
		o.deliverImage(ctx, t, content, r)
	default:
		o.fail(t, NoticeTextFailed)
	}
}

// runImageTurn handles the /image command: the remainder of the text is
// the synthesis description and text generation is bypassed entirely.
func (o *Orchestrator) runImageTurn(ctx context.Context, t *core.Turn, desc string) {
	o.store.AppendSent(t.Text)
	if desc == "" {
		o.fail(t, NoticeImageFailed)
		return
	}

	reply, err := o.images.Synthesize(ctx, desc)
	if err != nil {
		if core.IsCancelled(err) || ctx.Err() != nil {
			return
		}
		o.logger.Error("image synthesis failed", "turn_id", t.ID, "error", err)
		o.fail(t, NoticeImageFailed)
		return
	}
	reply.Caption = "Here's the image I created based on your request: " + desc
	o.deliverImage(ctx, t, t.Text, reply)
}

// deliverText reveals the reply, speaks it for voice turns, then records
// the exchange. History is only written here and in deliverImage, so
// cancelled and failed turns never pollute the prompt context.
func (o *Orchestrator) deliverText(ctx context.Context, t *core.Turn, userContent, text string) {
	msgID := o.store.AppendReceived()
	switch o.reveal(ctx, t, msgID, text) {
	case revealHalted:
		return
	case revealOrphaned:
		// The reply was deleted mid-stream. Nothing is left to speak or
		// record, but the turn still has to reach a terminal state.
		o.complete(t)
		return
	}

	if t.Origin == core.TurnOriginVoice {
		o.mu.Lock()
		speaker := o.speaker
		o.mu.Unlock()
		if speaker != nil {
			if !o.transition(t, core.TurnSpeaking) {
				return
			}
			if err := speaker.Speak(ctx, text, t.Language); err != nil && !core.IsCancelled(err) {
				o.logger.Warn("speech playback failed", "turn_id", t.ID, "error", err)
			}
			if ctx.Err() != nil {
				return
			}
		}
	}

	o.history.AppendExchange(userContent, text)
	o.complete(t)
}

func (o *Orchestrator) deliverImage(ctx context.Context, t *core.Turn, userContent string, reply core.ImageReply) {
	msgID := o.store.AppendReceived()
	switch o.reveal(ctx, t, msgID, reply.Caption) {
	case revealHalted:
		return
	case revealOrphaned:
		o.complete(t)
		return
	}
	o.store.AppendReceivedImage(reply.URL)
	o.history.AppendExchange(userContent, reply.Caption)
	o.complete(t)
}

type revealOutcome int

const (
	revealDone revealOutcome = iota
	// revealHalted: the turn's ctx was cancelled; partial content stays
	// and the animation is finalized.
	revealHalted
	// revealOrphaned: the streaming message was deleted out from under
	// the reveal. The turn itself is still alive.
	revealOrphaned
)

// reveal animates text into the store one rune per tick, checking ctx
// between runes. On cancellation the partial content stays and the
// animation jumps straight to complete.
func (o *Orchestrator) reveal(ctx context.Context, t *core.Turn, msgID, text string) revealOutcome {
	if !o.transition(t, core.TurnStreaming) {
		o.store.CompleteAnimation(msgID)
		return revealHalted
	}
	ticker := time.NewTicker(o.config.RevealInterval)
	defer ticker.Stop()
	for _, r := range text {
		select {
		case <-ctx.Done():
			o.store.CompleteAnimation(msgID)
			return revealHalted
		case <-ticker.C:
		}
		// A tick and a cancellation can be ready at the same instant;
		// cancellation wins, no extra rune.
		if ctx.Err() != nil {
			o.store.CompleteAnimation(msgID)
			return revealHalted
		}
		if !o.store.Reveal(msgID, string(r)) {
			return revealOrphaned
		}
	}
	o.store.CompleteAnimation(msgID)
	if ctx.Err() != nil {
		return revealHalted
	}
	return revealDone
}

func (o *Orchestrator) transition(t *core.Turn, s core.TurnStatus) bool {
	if !t.SetStatus(s) {
		return false
	}
	o.sink.Publish(core.NewEventPacket(&turn.TurnStatusChangedEvent{TurnID: t.ID, Status: s}, "orchestrator"))
	return true
}

func (o *Orchestrator) complete(t *core.Turn) {
	if !t.SetStatus(core.TurnDone) {
		return
	}
	o.logger.Info("turn completed", "turn_id", t.ID)
	o.finish(t)
}

func (o *Orchestrator) fail(t *core.Turn, apology string) {
	if !t.SetStatus(core.TurnFailed) {
		return
	}
	o.store.AppendNotice(apology)
	o.finish(t)
}

func (o *Orchestrator) finish(t *core.Turn) {
	o.mu.Lock()
	if o.current != nil && o.current.turn == t {
		o.current = nil
	}
	o.mu.Unlock()
	o.sink.Publish(core.NewEventPacket(&turn.TurnFinishedEvent{TurnID: t.ID, Status: t.Status()}, "orchestrator"))
}
