package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conversekit/core"
	"conversekit/protocol"
	"conversekit/speech"
)

type sentMessage struct {
	msgType protocol.MessageType
	payload interface{}
}

type sendRecorder struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (r *sendRecorder) send(t protocol.MessageType, payload interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, sentMessage{msgType: t, payload: payload})
	return nil
}

func (r *sendRecorder) types() []protocol.MessageType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]protocol.MessageType, len(r.sent))
	for i, m := range r.sent {
		out[i] = m.msgType
	}
	return out
}

func (r *sendRecorder) last() sentMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent[len(r.sent)-1]
}

func TestRelayEngineLifecycle(t *testing.T) {
	rec := &sendRecorder{}
	engine := newRelayEngine(rec.send)

	var results []speech.RecognitionResult
	var mu sync.Mutex
	events := speech.EngineEvents{
		OnResult: func(res speech.RecognitionResult) {
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
		},
	}

	require.NoError(t, engine.Start("hi-IN", events))
	require.Equal(t, []protocol.MessageType{protocol.MsgRecognizeStart}, rec.types())
	payload, ok := rec.last().payload.(protocol.RecognizeStartPayload)
	require.True(t, ok)
	assert.Equal(t, "hi-IN", payload.Language)

	engine.handleResult("hello", true)
	mu.Lock()
	require.Len(t, results, 1)
	assert.Equal(t, speech.RecognitionResult{Text: "hello", Final: true}, results[0])
	mu.Unlock()

	// Results after Stop are dropped.
	engine.Stop()
	engine.handleResult("late", true)
	mu.Lock()
	assert.Len(t, results, 1)
	mu.Unlock()
	assert.Equal(t, []protocol.MessageType{protocol.MsgRecognizeStart, protocol.MsgRecognizeStop}, rec.types())
}

func TestRelayEngineDeclinesAudio(t *testing.T) {
	// The browser captures its own mic stream; the relay tells the
	// gateway to stop forwarding decoded frames.
	engine := newRelayEngine((&sendRecorder{}).send)
	assert.ErrorIs(t, engine.WriteAudio([]byte{1, 2, 3, 4}), core.ErrUnsupported)
}

func TestRelaySynthesizerLifecycle(t *testing.T) {
	rec := &sendRecorder{}
	synth := newRelaySynthesizer(rec.send)

	synth.setVoices([]protocol.VoiceInfo{{Name: "Google US English", Language: "en-US"}})
	voices := synth.Voices()
	require.Len(t, voices, 1)
	assert.Equal(t, "Google US English", voices[0].Name)

	var ended, errored int
	events := speech.UtteranceEvents{
		OnEnd:   func() { ended++ },
		OnError: func(string) { errored++ },
	}
	require.NoError(t, synth.Speak(speech.Utterance{Text: "hi", Language: "en-IN"}, events))

	payload, ok := rec.last().payload.(protocol.SpeakPayload)
	require.True(t, ok)
	require.NotEmpty(t, payload.UtteranceID)
	assert.Equal(t, "hi", payload.Text)

	// Lifecycle reports for unknown ids are ignored.
	synth.handleEnded("unknown")
	assert.Zero(t, ended)

	synth.handleEnded(payload.UtteranceID)
	assert.Equal(t, 1, ended)

	// The utterance is popped on its first terminal report.
	synth.handleEnded(payload.UtteranceID)
	synth.handleError(payload.UtteranceID, "boom")
	assert.Equal(t, 1, ended)
	assert.Zero(t, errored)
}

func TestRelaySynthesizerCancelInterruptsPending(t *testing.T) {
	rec := &sendRecorder{}
	synth := newRelaySynthesizer(rec.send)

	var reasons []string
	require.NoError(t, synth.Speak(speech.Utterance{Text: "hi"}, speech.UtteranceEvents{
		OnError: func(reason string) { reasons = append(reasons, reason) },
	}))

	synth.Cancel()
	assert.Equal(t, []string{"interrupted"}, reasons)
	assert.Contains(t, rec.types(), protocol.MsgSpeakCancel)

	// A terminal report for the cancelled utterance no longer fires.
	payload := rec.sent[0].payload.(protocol.SpeakPayload)
	synth.handleError(payload.UtteranceID, "late")
	assert.Equal(t, []string{"interrupted"}, reasons)
}

func TestRelaySynthesizerSpeakSendFailure(t *testing.T) {
	rec := &sendRecorder{err: errors.New("socket closed")}
	synth := newRelaySynthesizer(rec.send)

	var fired bool
	err := synth.Speak(speech.Utterance{Text: "hi"}, speech.UtteranceEvents{
		OnError: func(string) { fired = true },
	})
	require.Error(t, err)

	// The failed utterance was deregistered: Cancel has nothing to fire.
	rec.mu.Lock()
	rec.err = nil
	rec.mu.Unlock()
	synth.Cancel()
	assert.False(t, fired)
}

func TestRelayPermissionsProbe(t *testing.T) {
	rec := &sendRecorder{}
	perms := newRelayPermissions(rec.send)

	done := make(chan bool, 1)
	go func() {
		granted, _ := perms.MicrophoneGranted(context.Background())
		done <- granted
	}()

	require.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.sent) == 1
	}, time.Second, 2*time.Millisecond)

	perms.handleReport(false)
	assert.False(t, <-done)
	assert.False(t, perms.lastKnown())
}

func TestRelayPermissionsAssumesGrantedUntilReported(t *testing.T) {
	perms := newRelayPermissions((&sendRecorder{}).send)
	assert.True(t, perms.lastKnown())

	perms.handleReport(true)
	assert.True(t, perms.lastKnown())
	perms.handleReport(false)
	assert.False(t, perms.lastKnown())
}

func TestRelayPermissionsContextCancelled(t *testing.T) {
	perms := newRelayPermissions((&sendRecorder{}).send)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := perms.MicrophoneGranted(ctx)
	assert.Error(t, err)
}
