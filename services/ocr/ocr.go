package ocr

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

// Config holds the configuration for the OCR service.
type Config struct {
	// Endpoint is a tesseract-server style recognition endpoint.
	Endpoint string `json:"endpoint"`
	// Language is the recognition language hint passed with every call.
	Language string `json:"language"`
	Timeout  time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Language: "eng",
		Timeout:  60 * time.Second,
	}
}

// OCRService extracts plain text from images and PDFs through an HTTP
// recognition backend.
type OCRService struct {
	config Config
	client *http.Client
	logger *core.Logger
}

func NewOCRService(cfg Config, logger *core.Logger) *OCRService {
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &OCRService{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

type recognizeRequest struct {
	Document string `json:"document"` // base64 payload
	Kind     string `json:"kind"`     // image | pdf
	Language string `json:"language"`
}

type recognizeResponse struct {
	Text string `json:"text"`
}

// Recognize implements attach.OCRBackend.
func (s *OCRService) Recognize(ctx context.Context, att core.Attachment) (string, error) {
	if s.config.Endpoint == "" {
		return "", fmt.Errorf("ocr: no endpoint configured")
	}

	payload, err := sonic.Marshal(recognizeRequest{
		Document: base64.StdEncoding.EncodeToString(att.Data),
		Kind:     string(att.Kind),
		Language: s.config.Language,
	})
	if err != nil {
		return "", fmt.Errorf("ocr: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("ocr: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", core.ErrCancelled
		}
		return "", fmt.Errorf("ocr: request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("ocr: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ocr: recognition returned status %d", resp.StatusCode)
	}

	var decoded recognizeResponse
	if err := sonic.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("ocr: decode response: %w", err)
	}
	return decoded.Text, nil
}
