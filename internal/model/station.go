package model

import "time"

// Station represents a physical fuel retail site. ExternalID is the stable
// identifier assigned by the upstream API and is the upsert key; there is
// exactly one row per external id.
type Station struct {
	ID           uint64   `gorm:"primaryKey;autoIncrement" json:"id"`
	ExternalID   string   `gorm:"uniqueIndex;size:64;not null" json:"externalId"`
	Name         string   `gorm:"size:256;not null" json:"name"`
	Brand        string   `gorm:"size:128" json:"brand,omitempty"`
	Address      string   `gorm:"size:512" json:"address,omitempty"`
	City         string   `gorm:"size:128;index" json:"city,omitempty"`
	County       string   `gorm:"size:128" json:"county,omitempty"`
	Postcode     string   `gorm:"size:16;index" json:"postcode"`
	Latitude     float64  `json:"latitude"`
	Longitude    float64  `json:"longitude"`
	Amenities    []string `gorm:"serializer:json" json:"amenities,omitempty"`
	LastSyncedAt time.Time `json:"lastSyncedAt"`
	CreatedAt    time.Time `json:"-"`
	UpdatedAt    time.Time `json:"-"`
}
