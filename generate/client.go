package generate

import (
	"context"
	"fmt"

	"conversekit/compose"
	"conversekit/core"
)

// TextBackend completes a composed prompt into raw reply text. Both the
// pollinations and the OpenAI services implement it.
type TextBackend interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Client is the generation boundary: it runs the text backend, decides
// the reply variant once (text, prompt reveal, or image synthesis) and
// returns a typed core.Reply so no downstream consumer re-parses tags.
type Client struct {
	text   TextBackend
	images core.ImageSynthesizer
	logger *core.Logger
}

func NewClient(text TextBackend, images core.ImageSynthesizer, logger *core.Logger) *Client {
	return &Client{text: text, images: images, logger: logger}
}

// Generate implements core.Generator. userMessage is the raw user input:
// when the reply carries an image tag but the user asked to see the
// prompt, the description is returned as text instead of triggering
// image creation. That asymmetry is policy, not an accident — "show me
// the prompt" must not also create the image.
func (c *Client) Generate(ctx context.Context, prompt, userMessage string) (core.Reply, error) {
	raw, err := c.text.Complete(ctx, prompt)
	if err != nil {
		if core.IsCancelled(err) {
			return nil, core.ErrCancelled
		}
		return nil, fmt.Errorf("generate: %w", err)
	}

	desc, ok := core.ParseImageIntent(raw)
	if !ok {
		return core.TextReply{Text: raw}, nil
	}

	if compose.IsPromptRequest(userMessage) {
		return core.TextReply{Text: "Here's the prompt I would use: " + desc}, nil
	}

	reply, err := c.Synthesize(ctx, desc)
	if err != nil {
		return nil, err
	}
	reply.Caption = "Here's the image I created for you: " + userMessage
	return reply, nil
}

// Synthesize requests image creation directly, bypassing text
// generation. Used by the /image command path.
func (c *Client) Synthesize(ctx context.Context, description string) (core.ImageReply, error) {
	reply, err := c.images.Synthesize(ctx, description)
	if err != nil {
		if core.IsCancelled(err) {
			return core.ImageReply{}, core.ErrCancelled
		}
		return core.ImageReply{}, fmt.Errorf("generate: synthesize image: %w", err)
	}
	return reply, nil
}
