package attach

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conversekit/core"
)

type fakeOCR struct {
	text string
	err  error
}

func (f *fakeOCR) Recognize(context.Context, core.Attachment) (string, error) {
	return f.text, f.err
}

type fakeCaptioner struct {
	caption string
	err     error
}

func (f *fakeCaptioner) Caption(context.Context, []byte) (string, error) {
	return f.caption, f.err
}

func imageAtt(name string) core.Attachment {
	return core.Attachment{Name: name, Kind: core.AttachmentImage, Data: []byte{1}}
}

func pdfAtt(name string) core.Attachment {
	return core.Attachment{Name: name, Kind: core.AttachmentPDF, Data: []byte{1}}
}

func TestProcessWithBackends(t *testing.T) {
	p := NewProcessor(&fakeOCR{text: "printed words"}, &fakeCaptioner{caption: "a dog"}, core.GetLogger())

	captions, extracts := p.Process(context.Background(), []core.Attachment{
		imageAtt("photo.png"),
		pdfAtt("doc.pdf"),
	})
	require.Equal(t, []string{"a dog"}, captions)
	require.Len(t, extracts, 2)
	assert.Equal(t, "Image (photo.png): printed words", extracts[0])
	assert.Equal(t, "PDF (doc.pdf): printed words", extracts[1])
}

func TestProcessNilBackendsDegradeToSentinels(t *testing.T) {
	p := NewProcessor(nil, nil, core.GetLogger())

	captions, extracts := p.Process(context.Background(), []core.Attachment{imageAtt("x.png")})
	assert.Equal(t, []string{SentinelNoCaption}, captions)
	assert.Equal(t, []string{"Image (x.png): " + SentinelNoText}, extracts)
}

func TestProcessBackendFailuresDegradeToSentinels(t *testing.T) {
	p := NewProcessor(&fakeOCR{err: errors.New("boom")}, &fakeCaptioner{err: errors.New("boom")}, core.GetLogger())

	captions, extracts := p.Process(context.Background(), []core.Attachment{imageAtt("x.png")})
	assert.Equal(t, []string{SentinelNoCaption}, captions)
	assert.Equal(t, []string{"Image (x.png): " + SentinelFailed}, extracts)
}

func TestProcessEmptyResultsAreSentinels(t *testing.T) {
	p := NewProcessor(&fakeOCR{text: "   "}, &fakeCaptioner{caption: ""}, core.GetLogger())

	captions, extracts := p.Process(context.Background(), []core.Attachment{imageAtt("x.png")})
	assert.Equal(t, []string{SentinelNoCaption}, captions)
	assert.Equal(t, []string{"Image (x.png): " + SentinelNoText}, extracts)
}

func TestProcessVideoSkipped(t *testing.T) {
	p := NewProcessor(&fakeOCR{text: "words"}, &fakeCaptioner{caption: "a dog"}, core.GetLogger())

	captions, extracts := p.Process(context.Background(), []core.Attachment{
		{Name: "clip.mp4", Kind: core.AttachmentVideo},
	})
	assert.Empty(t, captions)
	assert.Empty(t, extracts)
}

func TestProcessCancelledContext(t *testing.T) {
	p := NewProcessor(&fakeOCR{text: "words"}, &fakeCaptioner{caption: "a dog"}, core.GetLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	captions, extracts := p.Process(ctx, []core.Attachment{imageAtt("x.png")})
	assert.Empty(t, captions)
	assert.Empty(t, extracts)
}

func TestHasUsableText(t *testing.T) {
	assert.False(t, HasUsableText(nil))
	assert.False(t, HasUsableText([]string{"Image (x.png): " + SentinelNoText}))
	assert.False(t, HasUsableText([]string{"PDF (d.pdf): " + SentinelFailed}))
	assert.False(t, HasUsableText([]string{"Image (x.png): "}))
	assert.True(t, HasUsableText([]string{"Image (x.png): real words"}))
	assert.True(t, HasUsableText([]string{
		"Image (x.png): " + SentinelNoText,
		"PDF (d.pdf): actual content",
	}))
}
