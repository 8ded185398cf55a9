package pollinations

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"conversekit/core"
)

// ImageService synthesizes an image for a description. The image is
// addressable by URL; the GET verifies the backend actually produced it
// before the reference is handed to the transcript.
type ImageService struct {
	config Config
	client *http.Client
	logger *core.Logger
}

func NewImageService(cfg Config, logger *core.Logger) *ImageService {
	cfg = withDefaults(cfg)
	return &ImageService{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Synthesize implements core.ImageSynthesizer. The caption is filled in
// by the caller, which knows which policy branch requested the image.
func (s *ImageService) Synthesize(ctx context.Context, description string) (core.ImageReply, error) {
	imageURL := fmt.Sprintf("%s/prompt/%s?width=%d&height=%d&nologo=true&seed=%d",
		s.config.ImageEndpoint,
		url.PathEscape(description),
		s.config.ImageWidth,
		s.config.ImageHeight,
		s.config.ImageSeed,
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return core.ImageReply{}, fmt.Errorf("pollinations: build image request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return core.ImageReply{}, core.ErrCancelled
		}
		return core.ImageReply{}, fmt.Errorf("pollinations: image request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return core.ImageReply{}, fmt.Errorf("pollinations: image synthesis returned status %d", resp.StatusCode)
	}
	return core.ImageReply{URL: imageURL, Description: description}, nil
}
