package stt

type RecognitionInterimEvent struct {
	Text string
}

func (e *RecognitionInterimEvent) GetId() string {
	return "stt.recognition_interim"
}

type RecognitionFinalEvent struct {
	Text     string
	Language string // BCP-47 tag detected from the transcript
}

func (e *RecognitionFinalEvent) GetId() string {
	return "stt.recognition_final"
}

// RecognitionDiscardedEvent is emitted when a result arriving inside the
// echo-suppression guard window is dropped instead of processed.
type RecognitionDiscardedEvent struct {
	Text string
}

func (e *RecognitionDiscardedEvent) GetId() string {
	return "stt.recognition_discarded"
}

type MicStateChangedEvent struct {
	State string // off | listening | suspended | errored
}

func (e *MicStateChangedEvent) GetId() string {
	return "stt.mic_state_changed"
}
