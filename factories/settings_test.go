package factories

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conversekit/core"
	openaisvc "conversekit/services/openai"
	"conversekit/services/pollinations"
)

func TestSettingsFromJSONOverlaysDefaults(t *testing.T) {
	settings, err := SettingsFromJSON([]byte(`{
		"turns": {"reveal_interval": 5000000},
		"speech": {"default_language": "hi-IN"}
	}`))
	require.NoError(t, err)

	assert.Equal(t, 5*time.Millisecond, settings.Turns.RevealInterval)
	assert.Equal(t, "hi-IN", settings.Speech.DefaultLanguage)
	// Untouched sections keep their defaults.
	assert.Equal(t, DefaultSettings().Store.DeliveryDelay, settings.Store.DeliveryDelay)
	assert.Equal(t, DefaultSettings().Speech.EchoGuard, settings.Speech.EchoGuard)
}

func TestSettingsFromJSONInvalid(t *testing.T) {
	_, err := SettingsFromJSON([]byte("not json"))
	assert.Error(t, err)
}

func TestInjectAPIKeys(t *testing.T) {
	settings := DefaultSettings()
	settings.Generation.OpenAIConfig = &openaisvc.Config{Model: "gpt-4o-mini"}

	settings.InjectAPIKeys(APIKeys{OpenAI: "sk-env", HuggingFace: "hf-env", Deepgram: "dg-env"})
	assert.Equal(t, "sk-env", settings.Generation.OpenAIConfig.APIKey)
	assert.Equal(t, "hf-env", settings.Caption.APIKey)
	assert.Equal(t, "dg-env", settings.STT.APIKey)

	// Keys already present win over injected ones.
	settings.InjectAPIKeys(APIKeys{OpenAI: "sk-other", HuggingFace: "hf-other", Deepgram: "dg-other"})
	assert.Equal(t, "sk-env", settings.Generation.OpenAIConfig.APIKey)
	assert.Equal(t, "hf-env", settings.Caption.APIKey)
	assert.Equal(t, "dg-env", settings.STT.APIKey)
}

func TestBuildTextBackendRejectsBothProviders(t *testing.T) {
	_, err := BuildTextBackend(GenerationFactoryConfig{
		PollinationsConfig: &pollinations.Config{},
		OpenAIConfig:       &openaisvc.Config{APIKey: "sk"},
	}, core.GetLogger())
	assert.Error(t, err)
}

func TestBuildTextBackendDefaultsToPollinations(t *testing.T) {
	backend, err := BuildTextBackend(GenerationFactoryConfig{}, core.GetLogger())
	require.NoError(t, err)
	assert.NotNil(t, backend)
}
