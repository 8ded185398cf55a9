package core

import (
	"context"
	"regexp"
	"strings"
)

// Reply is the typed result of a generation call. The variant is decided
// once at the client boundary instead of re-parsing tags downstream.
type Reply interface {
	isReply()
}

// TextReply is a plain assistant reply to be revealed and optionally
// spoken.
type TextReply struct {
	Text string
}

// ImageReply references a synthesized image plus its human-readable
// caption. Image replies are never spoken.
type ImageReply struct {
	URL         string
	Description string // the prompt the image was synthesized from
	Caption     string
}

func (TextReply) isReply()  {}
func (ImageReply) isReply() {}

// Generator produces a reply for a composed prompt. userMessage is the
// raw user input, needed to resolve the show-me-the-prompt policy branch.
type Generator interface {
	Generate(ctx context.Context, prompt, userMessage string) (Reply, error)
}

// ImageSynthesizer turns a description into a displayable image
// reference.
type ImageSynthesizer interface {
	Synthesize(ctx context.Context, description string) (ImageReply, error)
}

var imageTagRe = regexp.MustCompile(`\[IMAGE:\s*(.*?)\]`)

// ParseImageIntent extracts the generated-image description carried in a
// reply's [IMAGE: ...] tag, if present.
func ParseImageIntent(text string) (string, bool) {
	m := imageTagRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	desc := strings.TrimSpace(m[1])
	return desc, desc != ""
}
