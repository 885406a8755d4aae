package model

import "time"

// Sync run types.
const (
	SyncTypeStations = "stations"
	SyncTypePrices   = "prices"
)

// Sync run statuses.
const (
	SyncStatusStarted   = "started"
	SyncStatusCompleted = "completed"
	SyncStatusFailed    = "failed"
)

// SyncState watermark keys.
const (
	SyncStateLastStationSync = "last_station_sync"
	SyncStateLastPriceSync   = "last_price_sync"
)

// SyncRun is the append-only audit record of one orchestrator execution.
// A row is created when the run starts and patched to completed or failed
// exactly once; it is never deleted.
type SyncRun struct {
	ID          uint64     `gorm:"primaryKey;autoIncrement" json:"id"`
	SyncType    string     `gorm:"size:32;not null;index" json:"syncType"`
	Status      string     `gorm:"size:16;not null" json:"status"`
	StartedAt   time.Time  `gorm:"not null" json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Processed   int        `json:"processed"`
	Skipped     int        `json:"skipped"`
	NotFound    int        `json:"notFound"`
	Errored     int        `json:"errored"`
	Error       string     `gorm:"size:1024" json:"error,omitempty"`
}

// SyncState is the watermark table: one timestamp per key, read at the start
// of an incremental run and advanced at successful completion.
type SyncState struct {
	Key       string    `gorm:"primaryKey;size:64" json:"key"`
	Timestamp time.Time `gorm:"not null" json:"timestamp"`
	UpdatedAt time.Time `json:"-"`
}
