package store

import (
	"time"

	"fuelwatch-backend/internal/model"
)

// Options carries the tunables for the batched writer and resolver. Chunk
// sizes exist because the backing store's mutation API degrades on large
// payloads; they are configuration, not architecture.
type Options struct {
	StationChunkSize int
	PriceChunkSize   int
	LookupChunkSize  int
	WriteRetries     int
	RetryBackoff     time.Duration
}

// DefaultOptions returns the writer defaults used when a field is unset.
func DefaultOptions() Options {
	return Options{
		StationChunkSize: 50,
		PriceChunkSize:   50,
		LookupChunkSize:  500,
		WriteRetries:     3,
		RetryBackoff:     time.Second,
	}
}

// WriteResult reports partial success of a batched write: how many records
// landed and how many were lost to chunks that exhausted their retries.
// Failed lists the input indices of the lost records so callers can tell
// exactly which ones did not persist.
type WriteResult struct {
	Processed int
	Errored   int
	Failed    []int
}

// StationQuery is the read-side station search filter. Fields combine with
// AND; all empty means list everything.
type StationQuery struct {
	Postcode string
	City     string
	Text     string
	Limit    int
}

// CheapestPrice pairs a current price observation with its station.
type CheapestPrice struct {
	Station model.Station          `json:"station"`
	Price   model.PriceObservation `json:"price"`
}

// PriceStats summarizes prices for one fuel type over a window.
type PriceStats struct {
	FuelType model.FuelType `json:"fuelType"`
	Count    int            `json:"count"`
	MinPence int            `json:"minPence"`
	MaxPence int            `json:"maxPence"`
	AvgPence float64        `json:"avgPence"`
	MedPence float64        `json:"medianPence"`
}
