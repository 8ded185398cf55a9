package core

import "time"

type MessageDirection string

const (
	DirectionSent     MessageDirection = "sent"
	DirectionReceived MessageDirection = "received"
)

// DeliveryState is the cosmetic read-receipt flag on sent messages. It
// flips to delivered on a fixed delay after submission and never gates
// generation.
type DeliveryState string

const (
	DeliverySent      DeliveryState = "sent"
	DeliveryDelivered DeliveryState = "delivered"
)

// AnimationState tracks the typing reveal on received messages. It only
// moves forward; cancellation jumps straight to complete with whatever
// partial content exists.
type AnimationState string

const (
	AnimationPending   AnimationState = "pending"
	AnimationAnimating AnimationState = "animating"
	AnimationComplete  AnimationState = "complete"
)

// Message is one rendered unit in the transcript. Owned exclusively by
// the message store; appended only, never reordered.
type Message struct {
	ID         string
	Direction  MessageDirection
	Text       string
	ImageURL   string      // set for generated-image replies
	Attachment *Attachment // set for echoed file messages
	Delivery   DeliveryState
	Animation  AnimationState
	SentAt     time.Time
}
