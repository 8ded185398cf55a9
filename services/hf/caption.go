package hf

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"

	"conversekit/core"
)

// Config holds the configuration for the captioning service.
type Config struct {
	// Endpoint is the hosted BLIP-style captioning model URL.
	Endpoint string `json:"endpoint"`
	APIKey   string `json:"-"`
	Timeout  time.Duration
}

// DefaultConfig returns a Config pointing at the public BLIP large
// captioning model.
func DefaultConfig() Config {
	return Config{
		Endpoint: "https://api-inference.huggingface.co/models/Salesforce/blip-image-captioning-large",
		Timeout:  30 * time.Second,
	}
}

// CaptionService asks a hosted captioning model to describe an image.
// The payload is the base64 image, the reply a short natural-language
// description.
type CaptionService struct {
	config Config
	client *http.Client
	logger *core.Logger
}

func NewCaptionService(cfg Config, logger *core.Logger) *CaptionService {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultConfig().Endpoint
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &CaptionService{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

type captionRequest struct {
	Inputs string `json:"inputs"`
}

type captionResult struct {
	GeneratedText string `json:"generated_text"`
}

// Caption implements attach.CaptionBackend.
func (s *CaptionService) Caption(ctx context.Context, imageData []byte) (string, error) {
	payload, err := sonic.Marshal(captionRequest{
		Inputs: base64.StdEncoding.EncodeToString(imageData),
	})
	if err != nil {
		return "", fmt.Errorf("hf: marshal caption request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("hf: build caption request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", core.ErrCancelled
		}
		return "", fmt.Errorf("hf: caption request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("hf: read caption response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("hf: caption request returned status %d", resp.StatusCode)
	}

	var results []captionResult
	if err := sonic.Unmarshal(body, &results); err != nil {
		return "", fmt.Errorf("hf: decode caption response: %w", err)
	}
	if len(results) == 0 || results[0].GeneratedText == "" {
		return "", fmt.Errorf("hf: caption response carried no description")
	}
	return results[0].GeneratedText, nil
}
