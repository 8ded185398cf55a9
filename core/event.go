package core

type IEvent interface {
	GetId() string // Returns the unique identifier of the event.
}

// EventSink receives event packets emitted by the session components. The
// gateway implements it to mirror state changes to the connected UI; tests
// implement it to observe ordering.
type EventSink interface {
	Publish(packet *EventPacket)
}

// NopSink discards every packet. Used when a component runs without a UI
// surface attached.
type NopSink struct{}

func (NopSink) Publish(*EventPacket) {}
