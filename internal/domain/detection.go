package domain

import "time"

type DetectionOutcome string

const (
	OutcomeRegistered DetectionOutcome = "registered"
	OutcomeSignedOut  DetectionOutcome = "signed_out"
	// OutcomeInvoiced keeps the plate inside until the invoice is paid.
	OutcomeInvoiced DetectionOutcome = "invoiced"
	OutcomeRejected DetectionOutcome = "rejected"
	OutcomeIgnored  DetectionOutcome = "ignored"
)

// EntryExitResult is what a single plate detection resolved to.
type EntryExitResult struct {
	Outcome        DetectionOutcome      `json:"outcome"`
	Reason         string                `json:"reason,omitempty"`
	GarageID       int                   `json:"garage_id"`
	Plate          string                `json:"licence_plate"`
	LicencePlateID int                   `json:"licence_plate_id,omitempty"`
	ParkingLot     *ParkingLot           `json:"parking_lot,omitempty"`
	ReservationID  *int                  `json:"reservation_id,omitempty"`
	Bill           *Bill                 `json:"bill,omitempty"`
	Credentials    *GeneratedCredentials `json:"credentials,omitempty"`
	At             time.Time             `json:"at"`
}

// Direction maps an outcome onto the barrier that has to open.
func (r *EntryExitResult) Direction() (GateDirection, bool) {
	switch r.Outcome {
	case OutcomeRegistered:
		return GateDirectionEntry, true
	case OutcomeSignedOut:
		return GateDirectionExit, true
	}
	return "", false
}

type DetectPlateDTO struct {
	Plate string `json:"licence_plate" binding:"required"`
}
