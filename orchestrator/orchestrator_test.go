package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conversekit/attach"
	"conversekit/core"
	"conversekit/store"
)

type fakeGenerator struct {
	mu    sync.Mutex
	reply core.Reply
	err   error
	block chan struct{} // when set, Generate waits for ctx or the channel

	calls       int
	active      int
	lastPrompt  string
	lastMessage string
}

func (g *fakeGenerator) Generate(ctx context.Context, prompt, userMessage string) (core.Reply, error) {
	g.mu.Lock()
	g.calls++
	g.active++
	g.lastPrompt = prompt
	g.lastMessage = userMessage
	block, reply, err := g.block, g.reply, g.err
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		g.active--
		g.mu.Unlock()
	}()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, core.ErrCancelled
		}
	}
	return reply, err
}

func (g *fakeGenerator) inflight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}

type fakeImageSynth struct {
	mu    sync.Mutex
	reply core.ImageReply
	err   error

	lastDescribe string
}

func (f *fakeImageSynth) Synthesize(_ context.Context, description string) (core.ImageReply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastDescribe = description
	return f.reply, f.err
}

type fakeSpeaker struct {
	mu       sync.Mutex
	err      error
	spoken   []string
	language string
}

func (f *fakeSpeaker) Speak(_ context.Context, text, language string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spoken = append(f.spoken, text)
	f.language = language
	return f.err
}

type fixture struct {
	store     *store.MessageStore
	history   *core.History
	generator *fakeGenerator
	images    *fakeImageSynth
	orch      *Orchestrator
}

func newFixture() *fixture {
	f := &fixture{
		history:   &core.History{},
		generator: &fakeGenerator{},
		images:    &fakeImageSynth{},
	}
	f.store = store.NewMessageStore(store.DefaultConfig(), nil, core.GetLogger())
	f.orch = NewOrchestrator(f.store, f.history, nil, f.generator, f.images,
		nil, Config{RevealInterval: time.Millisecond}, core.GetLogger())
	return f
}

func newProcessorFixture(p *attach.Processor) *fixture {
	f := &fixture{
		history:   &core.History{},
		generator: &fakeGenerator{},
		images:    &fakeImageSynth{},
	}
	f.store = store.NewMessageStore(store.DefaultConfig(), nil, core.GetLogger())
	f.orch = NewOrchestrator(f.store, f.history, p, f.generator, f.images,
		nil, Config{RevealInterval: time.Millisecond}, core.GetLogger())
	return f
}

// awaitStreaming polls until a received message has started animating and
// returns its id.
func (f *fixture) awaitStreaming(t *testing.T) string {
	t.Helper()
	var msgID string
	require.Eventually(t, func() bool {
		for _, msg := range f.store.Messages() {
			if msg.Direction == core.DirectionReceived && msg.Animation == core.AnimationAnimating && msg.Text != "" {
				msgID = msg.ID
				return true
			}
		}
		return false
	}, time.Second, 2*time.Millisecond)
	return msgID
}

func (f *fixture) waitIdle(t *testing.T) {
	t.Helper()
	require.Eventually(t, func() bool { return !f.orch.Active() }, 2*time.Second, 2*time.Millisecond)
}

func (f *fixture) noticeCount(text string) int {
	n := 0
	for _, msg := range f.store.Messages() {
		if msg.Text == text {
			n++
		}
	}
	return n
}

func TestSendEmptyInputIgnored(t *testing.T) {
	f := newFixture()
	id, err := f.orch.Send("   ", nil, core.TurnOriginTyped, "")
	require.NoError(t, err)
	assert.Empty(t, id)
	assert.False(t, f.orch.Active())
	assert.Empty(t, f.store.Messages())
}

func TestTextTurnCompletes(t *testing.T) {
	f := newFixture()
	f.generator.reply = core.TextReply{Text: "hi!"}

	id, err := f.orch.Send("hello", nil, core.TurnOriginTyped, "")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	f.waitIdle(t)

	msgs := f.store.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "hello", msgs[0].Text)
	assert.Equal(t, core.DirectionSent, msgs[0].Direction)
	assert.Equal(t, "hi!", msgs[1].Text)
	assert.Equal(t, core.AnimationComplete, msgs[1].Animation)

	entries := f.history.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "hello", entries[0].Content)
	assert.Equal(t, "hi!", entries[1].Content)
}

func TestCancelStopsTurn(t *testing.T) {
	f := newFixture()
	f.generator.block = make(chan struct{})

	_, err := f.orch.Send("hello", nil, core.TurnOriginTyped, "")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		f.generator.mu.Lock()
		defer f.generator.mu.Unlock()
		return f.generator.calls == 1
	}, time.Second, 2*time.Millisecond)

	require.NoError(t, f.orch.Cancel())
	f.waitIdle(t)

	assert.Equal(t, 1, f.noticeCount(NoticeStopped))
	// Cancelled turns never reach the history.
	assert.Empty(t, f.history.Entries())
}

func TestCancelWithoutActiveTurn(t *testing.T) {
	f := newFixture()
	assert.ErrorIs(t, f.orch.Cancel(), core.ErrNoActiveTurn)
}

func TestCancelIsIdempotent(t *testing.T) {
	f := newFixture()
	f.generator.block = make(chan struct{})

	_, err := f.orch.Send("hello", nil, core.TurnOriginTyped, "")
	require.NoError(t, err)

	require.NoError(t, f.orch.Cancel())
	assert.ErrorIs(t, f.orch.Cancel(), core.ErrNoActiveTurn)
	f.waitIdle(t)
	assert.Equal(t, 1, f.noticeCount(NoticeStopped))
}

func TestSecondSendCancelsFirst(t *testing.T) {
	f := newFixture()
	f.generator.block = make(chan struct{})

	first, err := f.orch.Send("first", nil, core.TurnOriginTyped, "")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		f.generator.mu.Lock()
		defer f.generator.mu.Unlock()
		return f.generator.calls == 1
	}, time.Second, 2*time.Millisecond)

	// The second turn generates normally; the first stays blocked until
	// its context is cancelled by the admission of the second.
	f.generator.mu.Lock()
	f.generator.block = nil
	f.generator.reply = core.TextReply{Text: "second reply"}
	f.generator.mu.Unlock()

	second, err := f.orch.Send("second", nil, core.TurnOriginTyped, "")
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	f.waitIdle(t)

	assert.Equal(t, 1, f.noticeCount(NoticeStopped))
	require.Len(t, f.history.Entries(), 2)
	assert.Equal(t, "second", f.history.Entries()[0].Content)
}

func TestCancelMidRevealKeepsPartialContent(t *testing.T) {
	f := newFixture()
	full := strings.Repeat("x", 2000)
	f.generator.reply = core.TextReply{Text: full}

	_, err := f.orch.Send("hello", nil, core.TurnOriginTyped, "")
	require.NoError(t, err)
	msgID := f.awaitStreaming(t)

	require.NoError(t, f.orch.Cancel())
	f.waitIdle(t)
	require.Eventually(t, func() bool {
		msg, ok := f.store.Get(msgID)
		return ok && msg.Animation == core.AnimationComplete
	}, time.Second, 2*time.Millisecond)

	msg, ok := f.store.Get(msgID)
	require.True(t, ok)
	assert.NotEmpty(t, msg.Text)
	assert.Less(t, len(msg.Text), len(full))

	// The partial content is frozen: no further runes arrive.
	frozen := msg.Text
	time.Sleep(20 * time.Millisecond)
	after, ok := f.store.Get(msgID)
	require.True(t, ok)
	assert.Equal(t, frozen, after.Text)

	assert.Equal(t, 1, f.noticeCount(NoticeStopped))
	assert.Empty(t, f.history.Entries())
}

func TestDeletingStreamingMessageFinalizesTurn(t *testing.T) {
	f := newFixture()
	f.generator.reply = core.TextReply{Text: strings.Repeat("a", 400)}

	_, err := f.orch.Send("hello", nil, core.TurnOriginTyped, "")
	require.NoError(t, err)
	msgID := f.awaitStreaming(t)

	f.store.Delete([]string{msgID}, false)
	f.waitIdle(t)

	// Deleting the reply ends the turn without the stopped notice and
	// without a history record.
	assert.Zero(t, f.noticeCount(NoticeStopped))
	assert.Empty(t, f.history.Entries())

	// The next send starts from idle: no leftover turn to cancel.
	f.generator.mu.Lock()
	f.generator.reply = core.TextReply{Text: "ok"}
	f.generator.mu.Unlock()
	_, err = f.orch.Send("again", nil, core.TurnOriginTyped, "")
	require.NoError(t, err)
	f.waitIdle(t)
	assert.Zero(t, f.noticeCount(NoticeStopped))
}

func TestConcurrentSendsLeaveOneCancellableTurn(t *testing.T) {
	f := newFixture()
	f.generator.block = make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.orch.Send("racing input", nil, core.TurnOriginTyped, "")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Whichever send won admission last is still registered and
	// cancellable; every loser unwinds through its cancelled context.
	if err := f.orch.Cancel(); err != nil {
		assert.ErrorIs(t, err, core.ErrNoActiveTurn)
	}
	f.waitIdle(t)
	require.Eventually(t, func() bool { return f.generator.inflight() == 0 },
		2*time.Second, 2*time.Millisecond)
}

func TestGenerationFailureAppendsApology(t *testing.T) {
	f := newFixture()
	f.generator.err = errors.New("upstream down")

	_, err := f.orch.Send("hello", nil, core.TurnOriginTyped, "")
	require.NoError(t, err)
	f.waitIdle(t)

	assert.Equal(t, 1, f.noticeCount(NoticeTextFailed))
	assert.Empty(t, f.history.Entries())
}

func TestImageCommandBypassesGeneration(t *testing.T) {
	f := newFixture()
	f.images.reply = core.ImageReply{URL: "https://img.example/cat"}

	_, err := f.orch.Send("/image a cat in space", nil, core.TurnOriginTyped, "")
	require.NoError(t, err)
	f.waitIdle(t)

	f.generator.mu.Lock()
	assert.Zero(t, f.generator.calls)
	f.generator.mu.Unlock()
	assert.Equal(t, "a cat in space", f.images.lastDescribe)

	msgs := f.store.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "/image a cat in space", msgs[0].Text)
	assert.Equal(t, "Here's the image I created based on your request: a cat in space", msgs[1].Text)
	assert.Equal(t, "https://img.example/cat", msgs[2].ImageURL)
	require.Len(t, f.history.Entries(), 2)
}

func TestImageCommandFailure(t *testing.T) {
	f := newFixture()
	f.images.err = errors.New("synthesis down")

	_, err := f.orch.Send("/image a cat", nil, core.TurnOriginTyped, "")
	require.NoError(t, err)
	f.waitIdle(t)

	assert.Equal(t, 1, f.noticeCount(NoticeImageFailed))
	assert.Empty(t, f.history.Entries())
}

func TestImageTagReplyDelivered(t *testing.T) {
	f := newFixture()
	f.generator.reply = core.ImageReply{URL: "https://img.example/fox", Caption: "Here's the image I created for you: draw a fox"}

	_, err := f.orch.Send("draw a fox", nil, core.TurnOriginTyped, "")
	require.NoError(t, err)
	f.waitIdle(t)

	msgs := f.store.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, "Here's the image I created for you: draw a fox", msgs[1].Text)
	assert.Equal(t, "https://img.example/fox", msgs[2].ImageURL)
}

type stubOCR struct{ text string }

func (s *stubOCR) Recognize(context.Context, core.Attachment) (string, error) {
	return s.text, nil
}

type stubCaptioner struct{ caption string }

func (s *stubCaptioner) Caption(context.Context, []byte) (string, error) {
	return s.caption, nil
}

func TestAttachmentExtractReframesPrompt(t *testing.T) {
	p := attach.NewProcessor(&stubOCR{text: "a printed recipe"}, &stubCaptioner{caption: "a recipe card"}, core.GetLogger())
	f := newProcessorFixture(p)
	f.generator.reply = core.TextReply{Text: "sounds tasty"}

	att := core.Attachment{Name: "recipe.png", Kind: core.AttachmentImage, Data: []byte{0x1}}
	_, err := f.orch.Send("what is this", []core.Attachment{att}, core.TurnOriginTyped, "")
	require.NoError(t, err)
	f.waitIdle(t)

	msgs := f.store.Messages()
	require.Len(t, msgs, 4)
	assert.Contains(t, msgs[0].Text, "what is this")
	assert.Contains(t, msgs[0].Text, "Image descriptions: a recipe card")
	assert.Contains(t, msgs[0].Text, "Extracted texts: Image (recipe.png): a printed recipe")
	require.NotNil(t, msgs[1].Attachment)
	assert.Equal(t, "recipe.png", msgs[1].Attachment.Name)
	assert.Equal(t, "Extracted Content: Image (recipe.png): a printed recipe", msgs[2].Text)
	assert.Equal(t, "sounds tasty", msgs[3].Text)

	f.generator.mu.Lock()
	prompt := f.generator.lastPrompt
	f.generator.mu.Unlock()
	assert.Contains(t, prompt, "Provide information or answer based on the following text:")
	assert.Contains(t, prompt, "a printed recipe")

	require.Len(t, f.history.Entries(), 2)
}

func TestAttachmentSentinelsSkipExtractMessage(t *testing.T) {
	// Empty backend results degrade to sentinels, which never qualify as
	// usable text: no secondary message, no reframed prompt.
	p := attach.NewProcessor(&stubOCR{}, &stubCaptioner{}, core.GetLogger())
	f := newProcessorFixture(p)
	f.generator.reply = core.TextReply{Text: "reply"}

	att := core.Attachment{Name: "photo.png", Kind: core.AttachmentImage, Data: []byte{0x1}}
	_, err := f.orch.Send("look at this", []core.Attachment{att}, core.TurnOriginTyped, "")
	require.NoError(t, err)
	f.waitIdle(t)

	for _, msg := range f.store.Messages() {
		assert.False(t, strings.HasPrefix(msg.Text, "Extracted Content:"), "unexpected extract message: %q", msg.Text)
	}
	f.generator.mu.Lock()
	prompt := f.generator.lastPrompt
	f.generator.mu.Unlock()
	assert.NotContains(t, prompt, "Provide information or answer based on the following text:")
	assert.Contains(t, prompt, "look at this")
}

func TestVoiceTurnSpeaksReply(t *testing.T) {
	f := newFixture()
	speaker := &fakeSpeaker{}
	f.orch.SetSpeaker(speaker)
	f.generator.reply = core.TextReply{Text: "spoken reply"}

	_, err := f.orch.Send("hello", nil, core.TurnOriginVoice, "hi-IN")
	require.NoError(t, err)
	f.waitIdle(t)

	speaker.mu.Lock()
	defer speaker.mu.Unlock()
	assert.Equal(t, []string{"spoken reply"}, speaker.spoken)
	assert.Equal(t, "hi-IN", speaker.language)
}

func TestTypedTurnDoesNotSpeak(t *testing.T) {
	f := newFixture()
	speaker := &fakeSpeaker{}
	f.orch.SetSpeaker(speaker)
	f.generator.reply = core.TextReply{Text: "silent reply"}

	_, err := f.orch.Send("hello", nil, core.TurnOriginTyped, "")
	require.NoError(t, err)
	f.waitIdle(t)

	speaker.mu.Lock()
	defer speaker.mu.Unlock()
	assert.Empty(t, speaker.spoken)
}

func TestSpeakFailureStillCompletesTurn(t *testing.T) {
	f := newFixture()
	speaker := &fakeSpeaker{err: errors.New("tts down")}
	f.orch.SetSpeaker(speaker)
	f.generator.reply = core.TextReply{Text: "reply"}

	_, err := f.orch.Send("hello", nil, core.TurnOriginVoice, "")
	require.NoError(t, err)
	f.waitIdle(t)

	require.Len(t, f.history.Entries(), 2)
	assert.Zero(t, f.noticeCount(NoticeTextFailed))
}

func TestSubmitVoice(t *testing.T) {
	f := newFixture()
	f.generator.reply = core.TextReply{Text: "reply"}

	f.orch.SubmitVoice("spoken input", "en-IN")
	f.waitIdle(t)
	require.Len(t, f.history.Entries(), 2)
	assert.Equal(t, "spoken input", f.history.Entries()[0].Content)
}
