package factories

import (
	"errors"
	"fmt"

	"conversekit/attach"
	"conversekit/core"
	"conversekit/gateway"
	"conversekit/generate"
	"conversekit/orchestrator"
	"conversekit/services/deepgram"
	"conversekit/services/hf"
	"conversekit/services/ocr"
	openaisvc "conversekit/services/openai"
	"conversekit/services/pollinations"
	"conversekit/speech"
)

// BuildTextBackend constructs the text generation backend from the
// factory config. At most one provider config may be set.
func BuildTextBackend(config GenerationFactoryConfig, logger *core.Logger) (generate.TextBackend, error) {
	if config.PollinationsConfig != nil && config.OpenAIConfig != nil {
		return nil, errors.New("GenerationFactoryConfig: set at most one provider config")
	}
	if config.OpenAIConfig != nil {
		svc, err := openaisvc.NewLLMService(*config.OpenAIConfig, logger)
		if err != nil {
			return nil, fmt.Errorf("generation: %w", err)
		}
		return svc, nil
	}
	cfg := pollinations.Config{}
	if config.PollinationsConfig != nil {
		cfg = *config.PollinationsConfig
	}
	return pollinations.NewTextService(cfg, logger), nil
}

// NewSessionBuilder returns the gateway's per-connection session
// builder: shared backends are constructed once, while the speech relays
// and event sink are bound to each connection.
func NewSessionBuilder(settings Settings, logger *core.Logger) (gateway.SessionBuilder, error) {
	text, err := BuildTextBackend(settings.Generation, logger)
	if err != nil {
		return nil, err
	}
	images := pollinations.NewImageService(settings.Images, logger)
	client := generate.NewClient(text, images, logger)

	var captions attach.CaptionBackend
	if settings.Caption.Endpoint != "" {
		captions = hf.NewCaptionService(settings.Caption, logger)
	}
	var recognizer attach.OCRBackend
	if settings.OCR.Endpoint != "" {
		recognizer = ocr.NewOCRService(settings.OCR, logger)
	}
	processor := attach.NewProcessor(recognizer, captions, logger)

	return func(engine speech.RecognitionEngine, synth speech.Synthesizer, perms speech.PermissionChecker, sink core.EventSink) *orchestrator.Session {
		// With transcription credentials configured, the relayed mic PCM
		// is transcribed server-side instead of in the browser.
		if settings.STT.APIKey != "" {
			engine = deepgram.NewEngine(settings.STT, logger)
		}
		return orchestrator.NewSession(orchestrator.SessionDeps{
			Generator:    client,
			Images:       client,
			Processor:    processor,
			Engine:       engine,
			Synthesizer:  synth,
			Permissions:  perms,
			Sink:         sink,
			StoreConfig:  settings.Store,
			TurnConfig:   settings.Turns,
			SpeechConfig: settings.Speech,
		}, logger)
	}, nil
}
