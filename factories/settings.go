package factories

import (
	"fmt"
	"os"

	"github.com/bytedance/sonic"

	"conversekit/gateway"
	"conversekit/orchestrator"
	"conversekit/services/deepgram"
	"conversekit/services/hf"
	"conversekit/services/ocr"
	openaisvc "conversekit/services/openai"
	"conversekit/services/pollinations"
	"conversekit/speech"
	"conversekit/store"
)

// GenerationFactoryConfig selects the text generation provider. Set
// exactly one provider field; the rest should be left nil. When both are
// nil the pollinations backend with defaults is used.
type GenerationFactoryConfig struct {
	PollinationsConfig *pollinations.Config `json:"pollinations,omitempty"`
	OpenAIConfig       *openaisvc.Config    `json:"openai,omitempty"`
}

// Settings is the top-level config loaded from settings.json. API keys
// are never stored here; inject them after loading via InjectAPIKeys.
type Settings struct {
	Generation GenerationFactoryConfig `json:"generation"`
	Images     pollinations.Config     `json:"images"`
	OCR        ocr.Config              `json:"ocr"`
	Caption    hf.Config               `json:"caption"`
	STT        deepgram.Config         `json:"stt"`
	Store      store.Config            `json:"store"`
	Turns      orchestrator.Config     `json:"turns"`
	Speech     speech.Config           `json:"speech"`
	Gateway    gateway.Config          `json:"gateway"`
}

// DefaultSettings returns Settings pre-filled with every component's
// defaults.
func DefaultSettings() Settings {
	return Settings{
		Images:  pollinations.DefaultConfig(),
		OCR:     ocr.DefaultConfig(),
		Caption: hf.DefaultConfig(),
		STT:     deepgram.DefaultConfig(),
		Store:   store.DefaultConfig(),
		Turns:   orchestrator.DefaultConfig(),
		Speech:  speech.DefaultConfig(),
		Gateway: gateway.DefaultConfig(),
	}
}

// SettingsFromJSON parses a JSON blob into Settings, starting from
// DefaultSettings so that fields absent from the JSON keep their
// defaults.
func SettingsFromJSON(data []byte) (Settings, error) {
	cfg := DefaultSettings()
	if err := sonic.Unmarshal(data, &cfg); err != nil {
		return Settings{}, fmt.Errorf("settings: %w", err)
	}
	return cfg, nil
}

// SettingsFromFile reads and parses Settings from a JSON file.
func SettingsFromFile(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultSettings(), fmt.Errorf("settings: read %q: %w", path, err)
	}
	return SettingsFromJSON(data)
}

// APIKeys holds API credentials for the supported providers. Load from
// env after godotenv so secrets stay out of config files.
type APIKeys struct {
	OpenAI      string // OpenAI-compatible text generation
	HuggingFace string // hosted captioning model
	Deepgram    string // server-side streaming transcription
}

// APIKeysFromEnv reads credentials from the process environment.
func APIKeysFromEnv() APIKeys {
	hfKey := os.Getenv("HUGGINGFACE_API_KEY")
	if hfKey == "" {
		hfKey = os.Getenv("HF_API_KEY")
	}
	return APIKeys{
		OpenAI:      os.Getenv("OPENAI_API_KEY"),
		HuggingFace: hfKey,
		Deepgram:    os.Getenv("DEEPGRAM_API_KEY"),
	}
}

// InjectAPIKeys applies credentials to all configured providers. Keys
// already set in the Settings win.
func (s *Settings) InjectAPIKeys(keys APIKeys) {
	if s.Generation.OpenAIConfig != nil && s.Generation.OpenAIConfig.APIKey == "" {
		s.Generation.OpenAIConfig.APIKey = keys.OpenAI
	}
	if s.Caption.APIKey == "" {
		s.Caption.APIKey = keys.HuggingFace
	}
	if s.STT.APIKey == "" {
		s.STT.APIKey = keys.Deepgram
	}
}
