package model

import "time"

// FuelType is the canonical fuel enumeration. Upstream vocabulary is mapped
// onto these six values by the normalizer; anything else is rejected.
type FuelType string

const (
	FuelE5          FuelType = "E5"
	FuelE10         FuelType = "E10"
	FuelDiesel      FuelType = "Diesel"
	FuelSuperDiesel FuelType = "Super Diesel"
	FuelB10         FuelType = "B10"
	FuelHVO         FuelType = "HVO"
)

// CanonicalFuelTypes lists every recognized fuel type.
var CanonicalFuelTypes = []FuelType{
	FuelE5, FuelE10, FuelDiesel, FuelSuperDiesel, FuelB10, FuelHVO,
}

// PriceObservation is one fuel price at one station at a point in time.
// Rows are append-only: re-observing an unchanged price does not mutate or
// replace the prior row.
type PriceObservation struct {
	ID         uint64   `gorm:"primaryKey;autoIncrement" json:"id"`
	StationID  uint64   `gorm:"not null;index:idx_price_station_fuel_time,priority:1" json:"stationId"`
	FuelType   FuelType `gorm:"size:16;not null;index:idx_price_station_fuel_time,priority:2" json:"fuelType"`
	PricePence int      `gorm:"not null" json:"pricePence"`
	// RecordedAt is when the reconciler ingested the observation.
	// SourceTimestamp is whatever the upstream API claimed, kept verbatim.
	RecordedAt      time.Time `gorm:"not null;index:idx_price_station_fuel_time,priority:3" json:"recordedAt"`
	SourceTimestamp string    `gorm:"size:64" json:"sourceTimestamp,omitempty"`

	Station Station `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}
