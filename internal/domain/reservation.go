package domain

import (
	"time"

	"gopkg.in/guregu/null.v4"
)

type Reservation struct {
	ID             int       `json:"id"`
	GarageID       int       `json:"garage_id"`
	UserID         int       `json:"user_id"`
	LicencePlateID int       `json:"licence_plate_id"`
	ParkingLotID   int       `json:"parking_lot_id"`
	FromDate       time.Time `json:"from_date"`
	ToDate         time.Time `json:"to_date"`
	Showed         bool      `json:"showed"`
	// ReleasedAt is set once a no-show gave its lot back.
	ReleasedAt null.Time `json:"released_at"`
	// UnavailableNotifiedAt is set once the holder was told that no other
	// lot could be found, and cleared when the reservation is moved.
	UnavailableNotifiedAt null.Time `json:"-"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// Contains reports whether t falls inside [FromDate, ToDate).
func (r Reservation) Contains(t time.Time) bool {
	return !t.Before(r.FromDate) && t.Before(r.ToDate)
}

type CreateReservationDTO struct {
	GarageID       int       `json:"garage_id" binding:"required"`
	LicencePlateID int       `json:"licence_plate_id" binding:"required"`
	ParkingLotID   *int      `json:"parking_lot_id"`
	FromDate       time.Time `json:"from_date" binding:"required"`
	ToDate         time.Time `json:"to_date" binding:"required"`
}

type AssignLotDTO struct {
	FromDate time.Time `json:"from_date" binding:"required"`
	ToDate   time.Time `json:"to_date" binding:"required"`
}

// ReassignmentOutcome describes one reservation touched by a sweep.
type ReassignmentOutcome struct {
	ReservationID int    `json:"reservation_id"`
	GarageID      int    `json:"garage_id"`
	OldLotNumber  int    `json:"old_lot_number"`
	NewLotNumber  int    `json:"new_lot_number,omitempty"`
	Error         string `json:"error,omitempty"`
}

type ReassignmentReport struct {
	Reassigned []ReassignmentOutcome `json:"reassigned"`
	Failed     []ReassignmentOutcome `json:"failed"`
}
