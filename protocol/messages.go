package protocol

import "encoding/json"

// MessageType enumerates all gateway message types.
type MessageType string

const (
	// UI -> Assistant
	MsgSend            MessageType = "send"
	MsgCancel          MessageType = "cancel"
	MsgMicToggle       MessageType = "mic_toggle"
	MsgNewConversation MessageType = "new_conversation"
	MsgDelete          MessageType = "delete"
	MsgVoices          MessageType = "voices"
	MsgPermission      MessageType = "permission"
	MsgSTTResult       MessageType = "stt_result"
	MsgSTTError        MessageType = "stt_error"
	MsgSTTEnd          MessageType = "stt_end"
	MsgTTSStarted      MessageType = "tts_started"
	MsgTTSEnded        MessageType = "tts_ended"
	MsgTTSError        MessageType = "tts_error"

	// Assistant -> UI
	MsgEvent           MessageType = "event"
	MsgSpeak           MessageType = "speak"
	MsgSpeakCancel     MessageType = "speak_cancel"
	MsgRecognizeStart  MessageType = "recognize_start"
	MsgRecognizeStop   MessageType = "recognize_stop"
	MsgPermissionProbe MessageType = "permission_probe"
	MsgError           MessageType = "error"
)

// Envelope is the outer JSON wrapper for all WebSocket text messages.
// Binary frames are not enveloped: they carry raw µ-law microphone
// audio.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// --- UI -> Assistant payloads ---

// AttachmentPayload carries one attached file. Data is standard base64.
type AttachmentPayload struct {
	Name string `json:"name"`
	MIME string `json:"mime"`
	Data string `json:"data"`
}

// SendPayload submits a user message as a new turn.
type SendPayload struct {
	Text        string              `json:"text"`
	Attachments []AttachmentPayload `json:"attachments,omitempty"`
}

// DeletePayload removes transcript messages. ForEveryone is only honored
// for sent messages.
type DeletePayload struct {
	MessageIDs  []string `json:"message_ids"`
	ForEveryone bool     `json:"for_everyone"`
}

// VoicesPayload reports the synthesis voices available in the browser.
type VoicesPayload struct {
	Voices []VoiceInfo `json:"voices"`
}

type VoiceInfo struct {
	Name     string `json:"name"`
	Language string `json:"language"`
}

// PermissionPayload reports the current microphone permission state.
type PermissionPayload struct {
	Granted bool `json:"granted"`
}

// STTResultPayload relays a browser recognition result.
type STTResultPayload struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// STTErrorPayload relays a browser recognition error code, e.g.
// "no-speech" or "aborted".
type STTErrorPayload struct {
	Code string `json:"code"`
}

// TTSLifecyclePayload relays utterance playback lifecycle for the
// utterance the id names.
type TTSLifecyclePayload struct {
	UtteranceID string `json:"utterance_id"`
	Reason      string `json:"reason,omitempty"`
}

// --- Assistant -> UI payloads ---

// EventPayload relays one internal event packet to the UI.
type EventPayload struct {
	EventID string          `json:"event_id"`
	UID     string          `json:"uid"`
	Relayer string          `json:"relayer"`
	Data    json.RawMessage `json:"data"`
}

// SpeakPayload asks the browser to synthesize an utterance.
type SpeakPayload struct {
	UtteranceID string  `json:"utterance_id"`
	Text        string  `json:"text"`
	Language    string  `json:"language"`
	Voice       string  `json:"voice,omitempty"`
	Rate        float64 `json:"rate,omitempty"`
	Pitch       float64 `json:"pitch,omitempty"`
}

// RecognizeStartPayload asks the browser to start continuous recognition
// with interim results.
type RecognizeStartPayload struct {
	Language string `json:"language"`
}

// ErrorPayload reports a rejected or malformed command.
type ErrorPayload struct {
	Message string `json:"message"`
}
