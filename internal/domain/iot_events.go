package domain

import (
	"encoding/json"
	"time"
)

// DetectionMessage is what gate cameras push through the event queue. Either
// the recognised plate or the raw frame is set.
type DetectionMessage struct {
	GarageID     int       `json:"garage_id"`
	LicencePlate string    `json:"licence_plate,omitempty"`
	ImageBase64  string    `json:"image_base64,omitempty"`
	CameraID     string    `json:"camera_id,omitempty"`
	Timestamp    time.Time `json:"timestamp,omitempty"`
}

type DetectionSource string

const (
	SourceQueue DetectionSource = "sqs"
	SourceAPI   DetectionSource = "api"
)

// DetectionLog is the audit row written for every detection processed.
type DetectionLog struct {
	ID         int64           `json:"id"`
	ReceivedAt time.Time       `json:"received_at"`
	GarageID   int             `json:"garage_id"`
	Plate      string          `json:"licence_plate,omitempty"`
	Source     DetectionSource `json:"source"`
	Outcome    string          `json:"outcome"`
	Notes      string          `json:"notes,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}
