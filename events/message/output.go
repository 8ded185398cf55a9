package message

import "conversekit/core"

type AppendedEvent struct {
	Message core.Message
}

func (e *AppendedEvent) GetId() string {
	return "message.appended"
}

// RevealEvent carries one increment of a received message's typing
// animation.
type RevealEvent struct {
	MessageID string
	Chunk     string
}

func (e *RevealEvent) GetId() string {
	return "message.reveal"
}

type AnimationCompleteEvent struct {
	MessageID string
}

func (e *AnimationCompleteEvent) GetId() string {
	return "message.animation_complete"
}

type DeliveredEvent struct {
	MessageID string
}

func (e *DeliveredEvent) GetId() string {
	return "message.delivered"
}

type DeletedEvent struct {
	MessageIDs  []string
	ForEveryone bool
}

func (e *DeletedEvent) GetId() string {
	return "message.deleted"
}
