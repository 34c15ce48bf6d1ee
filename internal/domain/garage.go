package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/guregu/null.v4"
)

type Garage struct {
	ID           int            `json:"id"`
	OwnerID      int            `json:"owner_id"`
	Name         string         `json:"name"`
	Entered      int            `json:"entered"` // vehicles physically inside
	Settings     GarageSettings `json:"garage_settings"`
	Location     *Location      `json:"location"`
	OpeningHours []OpeningHour  `json:"opening_hours,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Provinces lists the accepted province codes.
var Provinces = []string{"ANT", "HAI", "LIE", "LIM", "LUX", "NAM", "OVL", "WVL", "VBR", "WBR"}

// Location is the postal address of a garage.
type Location struct {
	Country      string `json:"country"`
	Province     string `json:"province"`
	Municipality string `json:"municipality"`
	PostCode     int    `json:"post_code"`
	Street       string `json:"street"`
	Number       int    `json:"number"`
}

type GarageSettings struct {
	MaxHeight          float64 `json:"max_height"`
	MaxWidth           float64 `json:"max_width"`
	MaxHandicappedLots int     `json:"max_handicapped_lots"`
	ElectricCars       int     `json:"electric_cars"`
	// Overrides the configured default stay estimate for this garage.
	DefaultStayMinutes null.Int `json:"default_stay_minutes"`
}

// OpeningHour uses 0 (Monday) to 6 (Sunday) and "HH:MM" hours.
type OpeningHour struct {
	ID       int    `json:"id"`
	GarageID int    `json:"garage_id"`
	FromDay  int    `json:"from_day"`
	ToDay    int    `json:"to_day"`
	FromHour string `json:"from_hour"`
	ToHour   string `json:"to_hour"`
}

// Price is one tier of a garage's billing ladder.
type Price struct {
	ID               int             `json:"id"`
	GarageID         int             `json:"garage_id"`
	Label            string          `json:"price_string"`
	Duration         time.Duration   `json:"duration"`
	Price            decimal.Decimal `json:"price"`
	Currency         string          `json:"valuta"`
	StripeIdentifier null.String     `json:"stripe_identifier"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// GarageStatus is a read model combining the garage counter with lot states.
type GarageStatus struct {
	GarageID        int        `json:"garage_id"`
	Name            string     `json:"name"`
	TotalLots       int        `json:"total_lots"`
	Entered         int        `json:"entered"`
	OccupiedLots    int        `json:"occupied_lots"`
	IsFull          bool       `json:"is_full"`
	IsFullyOccupied bool       `json:"is_fully_occupied"`
	NextFreeSpot    *time.Time `json:"next_free_spot"`
}

type GarageDTO struct {
	Name         string           `json:"name" binding:"required,min=1,max=192"`
	Settings     GarageSettings   `json:"garage_settings"`
	Location     *LocationDTO     `json:"location"`
	OpeningHours []OpeningHourDTO `json:"opening_hours" binding:"omitempty,dive"`
}

type LocationDTO struct {
	Country      string `json:"country" binding:"required,max=192"`
	Province     string `json:"province" binding:"required,oneof=ANT HAI LIE LIM LUX NAM OVL WVL VBR WBR"`
	Municipality string `json:"municipality" binding:"required,max=192"`
	PostCode     int    `json:"post_code" binding:"required,gt=0"`
	Street       string `json:"street" binding:"required,max=192"`
	Number       int    `json:"number" binding:"required,gt=0"`
}

type OpeningHourDTO struct {
	FromDay  int    `json:"from_day" binding:"min=0,max=6"`
	ToDay    int    `json:"to_day" binding:"min=0,max=6"`
	FromHour string `json:"from_hour" binding:"required"`
	ToHour   string `json:"to_hour" binding:"required"`
}

type PriceDTO struct {
	Label           string `json:"price_string" binding:"required"`
	DurationMinutes int    `json:"duration_minutes" binding:"required,gt=0"`
	Price           string `json:"price" binding:"required"`
	Currency        string `json:"valuta" binding:"required,len=3"`
	StripeID        string `json:"stripe_identifier,omitempty"`
}
