package pollinations

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"conversekit/core"
)

// Config holds the configuration for the pollinations backends.
type Config struct {
	TextEndpoint  string `json:"text_endpoint"`
	ImageEndpoint string `json:"image_endpoint"`
	// ImageWidth/ImageHeight/ImageSeed are the fixed synthesis
	// parameters appended to every image request.
	ImageWidth  int `json:"image_width"`
	ImageHeight int `json:"image_height"`
	ImageSeed   int `json:"image_seed"`
	Timeout     time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		TextEndpoint:  "https://text.pollinations.ai",
		ImageEndpoint: "https://image.pollinations.ai",
		ImageWidth:    512,
		ImageHeight:   512,
		ImageSeed:     -1,
		Timeout:       60 * time.Second,
	}
}

// TextService is the plain-text generation backend: one cancellable GET
// with the URL-encoded prompt as the path, the reply body as the answer.
type TextService struct {
	config Config
	client *http.Client
	logger *core.Logger
}

func NewTextService(cfg Config, logger *core.Logger) *TextService {
	cfg = withDefaults(cfg)
	return &TextService{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

// Complete implements generate.TextBackend.
func (s *TextService) Complete(ctx context.Context, prompt string) (string, error) {
	endpoint := s.config.TextEndpoint + "/" + url.PathEscape(prompt)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("pollinations: build text request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", core.ErrCancelled
		}
		return "", fmt.Errorf("pollinations: text request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return "", core.ErrCancelled
		}
		return "", fmt.Errorf("pollinations: read text response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("pollinations: text generation returned status %d", resp.StatusCode)
	}
	return string(body), nil
}

func withDefaults(cfg Config) Config {
	def := DefaultConfig()
	if cfg.TextEndpoint == "" {
		cfg.TextEndpoint = def.TextEndpoint
	}
	if cfg.ImageEndpoint == "" {
		cfg.ImageEndpoint = def.ImageEndpoint
	}
	if cfg.ImageWidth == 0 {
		cfg.ImageWidth = def.ImageWidth
	}
	if cfg.ImageHeight == 0 {
		cfg.ImageHeight = def.ImageHeight
	}
	if cfg.ImageSeed == 0 {
		cfg.ImageSeed = def.ImageSeed
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	return cfg
}
