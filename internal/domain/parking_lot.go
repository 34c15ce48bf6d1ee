package domain

import (
	"time"

	"gopkg.in/guregu/null.v4"
)

// ParkingLot is a single physical space inside a garage.
type ParkingLot struct {
	ID              int       `json:"id"`
	GarageID        int       `json:"garage_id"`
	LotNumber       int       `json:"parking_lot_no"`
	FloorNumber     int       `json:"floor_number"`
	Occupied        bool      `json:"occupied"`
	Disabled        bool      `json:"disabled"`
	OccupantPlateID null.Int  `json:"occupant_plate_id"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Release marks the lot as physically free.
func (l *ParkingLot) Release() {
	l.Occupied = false
	l.OccupantPlateID = null.Int{}
}

// Occupy binds the lot to the plate parked in it.
func (l *ParkingLot) Occupy(plateID int) {
	l.Occupied = true
	l.OccupantPlateID = null.IntFrom(int64(plateID))
}

// LotAvailability is the resolved state of a lot for a queried window.
type LotAvailability struct {
	ParkingLot
	Available     bool       `json:"available"`
	Booked        bool       `json:"booked"`
	OccupiedUntil *time.Time `json:"occupied_until"`
}

type ParkingLotDTO struct {
	LotNumber   int  `json:"parking_lot_no" binding:"required,gt=0"`
	FloorNumber int  `json:"floor_number"`
	Disabled    bool `json:"disabled"`
}

type UpdateParkingLotDTO struct {
	FloorNumber *int  `json:"floor_number"`
	Occupied    *bool `json:"occupied"`
	Disabled    *bool `json:"disabled"`
}

type AvailabilityQuery struct {
	From time.Time `form:"from" time_format:"2006-01-02T15:04:05Z07:00"`
	To   time.Time `form:"to" time_format:"2006-01-02T15:04:05Z07:00"`
}
