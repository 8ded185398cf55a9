package tts

type SpeakingStartedEvent struct {
	Text     string
	Language string
	Voice    string
}

func (e *SpeakingStartedEvent) GetId() string {
	return "tts.speaking_started"
}

type SpeakingEndedEvent struct{}

func (e *SpeakingEndedEvent) GetId() string {
	return "tts.speaking_ended"
}

type SpeakingErrorEvent struct {
	Error string
}

func (e *SpeakingErrorEvent) GetId() string {
	return "tts.speaking_error"
}
