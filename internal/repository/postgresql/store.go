package postgresql

import (
	"database/sql"

	"parking_garage/internal/repository"
)

// NewStore wires every postgres repository around one connection pool.
func NewStore(db *sql.DB) *repository.Store {
	return &repository.Store{
		Tx:            NewPgTxManager(db),
		Garages:       NewPgGarageRepository(db),
		ParkingLots:   NewPgParkingLotRepository(db),
		Reservations:  NewPgReservationRepository(db),
		LicencePlates: NewPgLicencePlateRepository(db),
		Prices:        NewPgPriceRepository(db),
		Users:         NewPgUserRepository(db),
		Notifications: NewPgNotificationRepository(db),
		DetectionLogs: NewPgDetectionLogRepository(db),
	}
}
