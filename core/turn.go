package core

import (
	"strings"
	"sync"
)

// TurnOrigin records how the user produced the input for a turn.
type TurnOrigin string

const (
	TurnOriginTyped TurnOrigin = "typed"
	TurnOriginVoice TurnOrigin = "voice"
)

// TurnStatus is the lifecycle state of a turn. At most one turn in a
// session may be in a non-terminal state at any time.
type TurnStatus string

const (
	TurnPending   TurnStatus = "pending"
	TurnActive    TurnStatus = "active"
	TurnStreaming TurnStatus = "streaming"
	TurnSpeaking  TurnStatus = "speaking"
	TurnDone      TurnStatus = "done"
	TurnCancelled TurnStatus = "cancelled"
	TurnFailed    TurnStatus = "failed"
)

// Terminal reports whether the status ends the turn's lifecycle.
func (s TurnStatus) Terminal() bool {
	return s == TurnDone || s == TurnCancelled || s == TurnFailed
}

// AttachmentKind classifies an attachment by its declared media type.
type AttachmentKind string

const (
	AttachmentImage AttachmentKind = "image"
	AttachmentVideo AttachmentKind = "video"
	AttachmentPDF   AttachmentKind = "pdf"
)

// AttachmentKindFromMIME maps a declared MIME type to a kind. Returns
// false for types the assistant does not accept.
func AttachmentKindFromMIME(mime string) (AttachmentKind, bool) {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return AttachmentImage, true
	case strings.HasPrefix(mime, "video/"):
		return AttachmentVideo, true
	case mime == "application/pdf":
		return AttachmentPDF, true
	}
	return "", false
}

type Attachment struct {
	Name string
	Kind AttachmentKind
	Data []byte
}

// Turn is one user-initiated exchange: input assembly, dispatch,
// streamed reply and optional speech playback.
type Turn struct {
	ID          string
	Text        string
	Attachments []Attachment
	Origin      TurnOrigin
	Language    string // BCP-47 tag detected from voice input, biases the reply voice

	mu     sync.Mutex
	status TurnStatus
}

func NewTurn(text string, attachments []Attachment, origin TurnOrigin, language string) *Turn {
	return &Turn{
		ID:          NewID(),
		Text:        text,
		Attachments: attachments,
		Origin:      origin,
		Language:    language,
		status:      TurnPending,
	}
}

func (t *Turn) Status() TurnStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// SetStatus moves the turn forward. Once a terminal status is reached the
// turn never changes again; SetStatus reports whether the transition took
// effect. This is what makes cancellation idempotent.
func (t *Turn) SetStatus(s TurnStatus) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status.Terminal() {
		return false
	}
	t.status = s
	return true
}
