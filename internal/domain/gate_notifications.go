// File: internal/domain/gate_notifications.go
package domain

import "time"

type GateDirection string

const (
	GateDirectionEntry GateDirection = "entry"
	GateDirectionExit  GateDirection = "exit"
)

type PushEventType string

const (
	PushGateEvent    PushEventType = "gate_event"
	PushNotification PushEventType = "notification"
)

// GateEventNotification is pushed to operator dashboards over WebSocket after each detection.
type GateEventNotification struct {
	Type       PushEventType    `json:"type"`
	EventID    string           `json:"event_id"`
	GarageID   int              `json:"garage_id"`
	GarageName string           `json:"garage_name,omitempty"`
	Plate      string           `json:"licence_plate"`
	Direction  GateDirection    `json:"gate_direction,omitempty"`
	Outcome    DetectionOutcome `json:"outcome"`
	Message    string           `json:"message,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

// UserNotificationEvent carries a persisted notification to the user's open sockets.
type UserNotificationEvent struct {
	Type         PushEventType `json:"type"`
	Notification Notification  `json:"notification"`
}
