package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"fuelwatch-backend/internal/model"
)

// Store defines the interface for all database operations.
type Store interface {
	DB() *gorm.DB

	// Write side, used by the sync engine.
	UpsertStationsBatch(ctx context.Context, stations []model.Station) WriteResult
	ResolveStationIDs(ctx context.Context, externalIDs []string) (map[string]uint64, error)
	LatestPrice(ctx context.Context, stationID uint64, fuelType model.FuelType) (*model.PriceObservation, error)
	InsertPricesBatch(ctx context.Context, prices []model.PriceObservation) WriteResult

	// Sync bookkeeping.
	GetSyncState(ctx context.Context, key string) (*time.Time, error)
	SetSyncState(ctx context.Context, key string, ts time.Time) error
	BeginSyncRun(ctx context.Context, syncType string) (*model.SyncRun, error)
	CompleteSyncRun(ctx context.Context, run *model.SyncRun) error
	FailSyncRun(ctx context.Context, run *model.SyncRun, message string) error
	RecentSyncRuns(ctx context.Context, limit int) ([]model.SyncRun, error)

	// Read side, used by the API layer.
	SearchStations(ctx context.Context, q StationQuery) ([]model.Station, error)
	CurrentPrices(ctx context.Context, stationID uint64) ([]model.PriceObservation, error)
	PriceHistory(ctx context.Context, stationID uint64, fuelType model.FuelType, days int) ([]model.PriceObservation, error)
	CheapestCurrentPrice(ctx context.Context, fuelType model.FuelType, since time.Time) (*CheapestPrice, error)
	PriceStatistics(ctx context.Context, fuelType model.FuelType, since time.Time) (*PriceStats, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db   *gorm.DB
	opts Options
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB, opts Options) Store {
	def := DefaultOptions()
	if opts.StationChunkSize <= 0 {
		opts.StationChunkSize = def.StationChunkSize
	}
	if opts.PriceChunkSize <= 0 {
		opts.PriceChunkSize = def.PriceChunkSize
	}
	if opts.LookupChunkSize <= 0 || opts.LookupChunkSize > 500 {
		opts.LookupChunkSize = def.LookupChunkSize
	}
	if opts.WriteRetries <= 0 {
		opts.WriteRetries = def.WriteRetries
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = def.RetryBackoff
	}
	return &gormStore{db: db, opts: opts}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// UpsertStationsBatch upserts stations keyed by external_id in bounded
// chunks. A chunk that exhausts its retries adds its record count to the
// error tally and processing continues; one bad chunk never aborts a run.
func (s *gormStore) UpsertStationsBatch(ctx context.Context, stations []model.Station) WriteResult {
	var result WriteResult
	for start := 0; start < len(stations); start += s.opts.StationChunkSize {
		end := start + s.opts.StationChunkSize
		if end > len(stations) {
			end = len(stations)
		}
		chunk := stations[start:end]
		err := s.withRetry(ctx, func() error {
			return s.db.WithContext(ctx).Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "external_id"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"name", "brand", "address", "city", "county", "postcode",
					"latitude", "longitude", "amenities", "last_synced_at", "updated_at",
				}),
			}).Create(&chunk).Error
		})
		if err != nil {
			log.Printf("Error upserting station chunk of %d after retries: %v", len(chunk), err)
			result.Errored += len(chunk)
			for i := start; i < end; i++ {
				result.Failed = append(result.Failed, i)
			}
			continue
		}
		result.Processed += len(chunk)
	}
	return result
}

// ResolveStationIDs maps external station ids to internal keys in chunks of
// at most 500 per query. Unknown ids are simply absent from the returned
// map; absence is not an error.
func (s *gormStore) ResolveStationIDs(ctx context.Context, externalIDs []string) (map[string]uint64, error) {
	resolved := make(map[string]uint64, len(externalIDs))
	for start := 0; start < len(externalIDs); start += s.opts.LookupChunkSize {
		end := start + s.opts.LookupChunkSize
		if end > len(externalIDs) {
			end = len(externalIDs)
		}

		var rows []model.Station
		if err := s.db.WithContext(ctx).
			Select("id", "external_id").
			Where("external_id IN ?", externalIDs[start:end]).
			Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("failed to resolve station ids: %w", err)
		}
		for _, row := range rows {
			resolved[row.ExternalID] = row.ID
		}
	}
	return resolved, nil
}

// LatestPrice returns the most recent observation for a (station, fuel type)
// pair, or nil if none exists.
func (s *gormStore) LatestPrice(ctx context.Context, stationID uint64, fuelType model.FuelType) (*model.PriceObservation, error) {
	var obs model.PriceObservation
	err := s.db.WithContext(ctx).
		Where("station_id = ? AND fuel_type = ?", stationID, fuelType).
		Order("recorded_at DESC").
		First(&obs).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch latest price: %w", err)
	}
	return &obs, nil
}

// InsertPricesBatch appends price observations in bounded chunks with the
// same retry and partial-failure accounting as station upserts.
func (s *gormStore) InsertPricesBatch(ctx context.Context, prices []model.PriceObservation) WriteResult {
	var result WriteResult
	for start := 0; start < len(prices); start += s.opts.PriceChunkSize {
		end := start + s.opts.PriceChunkSize
		if end > len(prices) {
			end = len(prices)
		}
		chunk := prices[start:end]
		err := s.withRetry(ctx, func() error {
			return s.db.WithContext(ctx).Create(&chunk).Error
		})
		if err != nil {
			log.Printf("Error inserting price chunk of %d after retries: %v", len(chunk), err)
			result.Errored += len(chunk)
			for i := start; i < end; i++ {
				result.Failed = append(result.Failed, i)
			}
			continue
		}
		result.Processed += len(chunk)
	}
	return result
}

func (s *gormStore) GetSyncState(ctx context.Context, key string) (*time.Time, error) {
	var state model.SyncState
	err := s.db.WithContext(ctx).First(&state, "key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sync state %q: %w", key, err)
	}
	ts := state.Timestamp
	return &ts, nil
}

func (s *gormStore) SetSyncState(ctx context.Context, key string, ts time.Time) error {
	state := model.SyncState{Key: key, Timestamp: ts}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"timestamp", "updated_at"}),
	}).Create(&state).Error; err != nil {
		return fmt.Errorf("failed to write sync state %q: %w", key, err)
	}
	return nil
}

func (s *gormStore) BeginSyncRun(ctx context.Context, syncType string) (*model.SyncRun, error) {
	run := model.SyncRun{
		SyncType:  syncType,
		Status:    model.SyncStatusStarted,
		StartedAt: time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&run).Error; err != nil {
		return nil, fmt.Errorf("failed to record sync run start: %w", err)
	}
	return &run, nil
}

func (s *gormStore) CompleteSyncRun(ctx context.Context, run *model.SyncRun) error {
	now := time.Now().UTC()
	run.Status = model.SyncStatusCompleted
	run.CompletedAt = &now
	return s.saveRun(ctx, run)
}

func (s *gormStore) FailSyncRun(ctx context.Context, run *model.SyncRun, message string) error {
	now := time.Now().UTC()
	run.Status = model.SyncStatusFailed
	run.CompletedAt = &now
	run.Error = message
	return s.saveRun(ctx, run)
}

func (s *gormStore) saveRun(ctx context.Context, run *model.SyncRun) error {
	if err := s.db.WithContext(ctx).Save(run).Error; err != nil {
		return fmt.Errorf("failed to update sync run %d: %w", run.ID, err)
	}
	return nil
}

func (s *gormStore) RecentSyncRuns(ctx context.Context, limit int) ([]model.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []model.SyncRun
	if err := s.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}
	return runs, nil
}

// withRetry runs fn up to WriteRetries times with a fixed backoff between
// attempts, respecting context cancellation while waiting.
func (s *gormStore) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= s.opts.WriteRetries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == s.opts.WriteRetries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.opts.RetryBackoff):
		}
	}
	return err
}
