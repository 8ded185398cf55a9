package attach

import (
	"context"
	"fmt"
	"strings"

	"conversekit/core"
)

// Sentinels returned in place of extraction output. The processor never
// fails a turn: absence of text and hard extraction failures both degrade
// to fixed strings the composer can carry verbatim.
const (
	SentinelNoText    = "No text detected"
	SentinelFailed    = "Text recognition failed"
	SentinelNoCaption = "Image description unavailable."
)

// OCRBackend extracts plain text from an image or a rendered PDF page.
type OCRBackend interface {
	Recognize(ctx context.Context, att core.Attachment) (string, error)
}

// CaptionBackend produces a short natural-language description for an
// image payload.
type CaptionBackend interface {
	Caption(ctx context.Context, imageData []byte) (string, error)
}

// Processor turns attachments into textual content for the composer.
// Pure input→output: no shared state beyond the backend calls.
type Processor struct {
	ocr      OCRBackend
	captions CaptionBackend
	logger   *core.Logger
}

func NewProcessor(ocr OCRBackend, captions CaptionBackend, logger *core.Logger) *Processor {
	return &Processor{ocr: ocr, captions: captions, logger: logger}
}

// Process extracts captions (images only) and texts (images and PDFs)
// from the given attachments. If ctx is already cancelled it returns
// immediately without starting any backend call. Individual failures
// degrade to sentinels so one bad attachment never blocks the message.
func (p *Processor) Process(ctx context.Context, atts []core.Attachment) (captions, extracts []string) {
	for _, att := range atts {
		if ctx.Err() != nil {
			return captions, extracts
		}
		switch att.Kind {
		case core.AttachmentImage:
			captions = append(captions, p.captionOf(ctx, att))
			extracts = append(extracts, fmt.Sprintf("Image (%s): %s", att.Name, p.textOf(ctx, att)))
		case core.AttachmentPDF:
			extracts = append(extracts, fmt.Sprintf("PDF (%s): %s", att.Name, p.textOf(ctx, att)))
		default:
			// video carries no extractable text
		}
	}
	return captions, extracts
}

func (p *Processor) captionOf(ctx context.Context, att core.Attachment) string {
	if p.captions == nil {
		return SentinelNoCaption
	}
	caption, err := p.captions.Caption(ctx, att.Data)
	if err != nil {
		if !core.IsCancelled(err) {
			p.logger.With(map[string]any{"file": att.Name, "error": err}).Warn("image captioning failed")
		}
		return SentinelNoCaption
	}
	if strings.TrimSpace(caption) == "" {
		return SentinelNoCaption
	}
	return caption
}

func (p *Processor) textOf(ctx context.Context, att core.Attachment) string {
	if p.ocr == nil {
		return SentinelNoText
	}
	text, err := p.ocr.Recognize(ctx, att)
	if err != nil {
		if core.IsCancelled(err) {
			return SentinelNoText
		}
		p.logger.With(map[string]any{"file": att.Name, "error": err}).Warn("text recognition failed")
		return SentinelFailed
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return SentinelNoText
	}
	return text
}

// HasUsableText reports whether any extract carries real recognized text
// (not just sentinels). The orchestrator skips the "Extracted Content"
// message when this is false.
func HasUsableText(extracts []string) bool {
	for _, e := range extracts {
		body := e
		if idx := strings.Index(e, "): "); idx >= 0 {
			body = e[idx+3:]
		}
		switch strings.TrimSpace(body) {
		case "", SentinelNoText, SentinelFailed:
		default:
			return true
		}
	}
	return false
}
