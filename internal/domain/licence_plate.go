package domain

import (
	"strings"
	"time"

	"gopkg.in/guregu/null.v4"
)

// IgnoredPlate is what the entry camera reports when nothing is in front of it.
const IgnoredPlate = "0AAA000"

// LicencePlate is INSIDE a garage while GarageID is set.
type LicencePlate struct {
	ID        int       `json:"id"`
	UserID    int       `json:"user_id"`
	GarageID  null.Int  `json:"garage_id"`
	Plate     string    `json:"licence_plate"`
	Enabled   bool      `json:"enabled"`
	EnteredAt null.Time `json:"entered_at"`
	PaidAt    null.Time `json:"paid_at"`
	// InvoicePendingAt is set while an automatic payment is being collected.
	InvoicePendingAt null.Time `json:"invoice_pending_at"`
	// InvoiceID is the last invoice sent for the current stay.
	InvoiceID null.String `json:"invoice_id"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

func (lp *LicencePlate) Inside() bool {
	return lp.GarageID.Valid
}

// Enter moves the plate into a garage.
func (lp *LicencePlate) Enter(garageID int, at time.Time) {
	lp.GarageID = null.IntFrom(int64(garageID))
	lp.EnteredAt = null.TimeFrom(at)
}

// SignOut moves the plate out of its garage after payment cleared.
func (lp *LicencePlate) SignOut(at time.Time) {
	lp.GarageID = null.Int{}
	lp.PaidAt = null.TimeFrom(at)
	lp.ClearInvoice()
}

// InvoicePending reports whether an automatic payment is still in flight.
func (lp *LicencePlate) InvoicePending() bool {
	return lp.InvoicePendingAt.Valid
}

// InvoiceFailed reports whether the last invoice of the stay was not paid.
func (lp *LicencePlate) InvoiceFailed() bool {
	return lp.InvoiceID.Valid && !lp.InvoicePendingAt.Valid
}

func (lp *LicencePlate) ClearInvoice() {
	lp.InvoicePendingAt = null.Time{}
	lp.InvoiceID = null.String{}
}

// NormalizePlate upper-cases a plate and drops separators.
func NormalizePlate(raw string) string {
	replacer := strings.NewReplacer(" ", "", "-", "", ".", "")
	return strings.ToUpper(replacer.Replace(strings.TrimSpace(raw)))
}

type LicencePlateDTO struct {
	Plate string `json:"licence_plate" binding:"required,min=2,max=192"`
}
