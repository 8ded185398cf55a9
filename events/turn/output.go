package turn

import "conversekit/core"

type TurnStartedEvent struct {
	TurnID string
	Origin core.TurnOrigin
}

func (e *TurnStartedEvent) GetId() string {
	return "turn.started"
}

type TurnStatusChangedEvent struct {
	TurnID string
	Status core.TurnStatus
}

func (e *TurnStatusChangedEvent) GetId() string {
	return "turn.status_changed"
}

// TurnFinishedEvent fires once per turn when it reaches a terminal
// status. The send control returns to idle on this event.
type TurnFinishedEvent struct {
	TurnID string
	Status core.TurnStatus
}

func (e *TurnFinishedEvent) GetId() string {
	return "turn.finished"
}
