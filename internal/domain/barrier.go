package domain

const (
	BarrierCommandOpen  = "open"
	BarrierCommandClose = "close"
)

// BarrierControlCommandPayload is published to the gate controller of a garage.
type BarrierControlCommandPayload struct {
	Command   string        `json:"command"`
	RequestID string        `json:"request_id"`
	GarageID  int           `json:"garage_id"`
	Direction GateDirection `json:"direction"`
	Reason    string        `json:"reason,omitempty"`
}

type ControlBarrierDTO struct {
	Direction string `json:"direction" binding:"required,oneof=entry exit"`
	Command   string `json:"command" binding:"required,oneof=open close"`
}
