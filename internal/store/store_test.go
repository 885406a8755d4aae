package store

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"fuelwatch-backend/internal/db"
	"fuelwatch-backend/internal/model"
)

// newTestStore opens a per-test in-memory sqlite database and migrates it.
func newTestStore(t *testing.T, opts Options) (Store, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared",
		strings.ReplaceAll(t.Name(), "/", "_"))
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		sqlDB, _ := gormDB.DB()
		sqlDB.Close()
	})

	require.NoError(t, db.Migrate(gormDB))
	return NewGormStore(gormDB, opts), gormDB
}

func TestUpsertStationsBatch_Idempotent(t *testing.T) {
	s, gormDB := newTestStore(t, Options{})
	ctx := context.Background()

	first := model.Station{
		ExternalID:   "GB-001",
		Name:         "Old Name",
		Postcode:     "WF9 2WF",
		LastSyncedAt: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	result := s.UpsertStationsBatch(ctx, []model.Station{first})
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 0, result.Errored)

	second := model.Station{
		ExternalID:   "GB-001",
		Name:         "New Name",
		Brand:        "Shell",
		Postcode:     "WF9 2WF",
		Amenities:    []string{"shop"},
		LastSyncedAt: time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC),
	}
	result = s.UpsertStationsBatch(ctx, []model.Station{second})
	assert.Equal(t, 1, result.Processed)

	var count int64
	gormDB.Model(&model.Station{}).Where("external_id = ?", "GB-001").Count(&count)
	assert.Equal(t, int64(1), count, "re-sync must never create a duplicate")

	var stored model.Station
	require.NoError(t, gormDB.First(&stored, "external_id = ?", "GB-001").Error)
	assert.Equal(t, "New Name", stored.Name)
	assert.Equal(t, "Shell", stored.Brand)
	assert.Equal(t, []string{"shop"}, stored.Amenities)
	assert.Equal(t, second.LastSyncedAt.Unix(), stored.LastSyncedAt.Unix())
}

func TestResolveStationIDs(t *testing.T) {
	s, gormDB := newTestStore(t, Options{LookupChunkSize: 2})
	ctx := context.Background()

	stations := []model.Station{
		{ExternalID: "GB-001", Name: "One"},
		{ExternalID: "GB-002", Name: "Two"},
		{ExternalID: "GB-003", Name: "Three"},
	}
	require.NoError(t, gormDB.Create(&stations).Error)

	// Five ids across a chunk size of two exercises the chunked path.
	resolved, err := s.ResolveStationIDs(ctx, []string{"GB-001", "GB-002", "GB-003", "GB-404", "GB-405"})
	require.NoError(t, err)
	assert.Len(t, resolved, 3)
	assert.Equal(t, stations[0].ID, resolved["GB-001"])
	assert.Equal(t, stations[2].ID, resolved["GB-003"])
	_, found := resolved["GB-404"]
	assert.False(t, found, "unknown ids must simply be absent")
}

func TestLatestPriceAndInsert(t *testing.T) {
	s, gormDB := newTestStore(t, Options{})
	ctx := context.Background()

	station := model.Station{ExternalID: "GB-001", Name: "One"}
	require.NoError(t, gormDB.Create(&station).Error)

	obs, err := s.LatestPrice(ctx, station.ID, model.FuelE10)
	require.NoError(t, err)
	assert.Nil(t, obs, "no observation yet")

	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	result := s.InsertPricesBatch(ctx, []model.PriceObservation{
		{StationID: station.ID, FuelType: model.FuelE10, PricePence: 139, RecordedAt: base},
		{StationID: station.ID, FuelType: model.FuelE10, PricePence: 141, RecordedAt: base.Add(2 * time.Hour)},
		{StationID: station.ID, FuelType: model.FuelDiesel, PricePence: 149, RecordedAt: base.Add(time.Hour)},
	})
	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 0, result.Errored)

	obs, err = s.LatestPrice(ctx, station.ID, model.FuelE10)
	require.NoError(t, err)
	require.NotNil(t, obs)
	assert.Equal(t, 141, obs.PricePence)
}

func TestSyncState(t *testing.T) {
	s, _ := newTestStore(t, Options{})
	ctx := context.Background()

	ts, err := s.GetSyncState(ctx, model.SyncStateLastPriceSync)
	require.NoError(t, err)
	assert.Nil(t, ts, "absent watermark reads as nil, not an error")

	first := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, s.SetSyncState(ctx, model.SyncStateLastPriceSync, first))

	ts, err = s.GetSyncState(ctx, model.SyncStateLastPriceSync)
	require.NoError(t, err)
	require.NotNil(t, ts)
	assert.Equal(t, first.Unix(), ts.Unix())

	second := first.Add(30 * time.Minute)
	require.NoError(t, s.SetSyncState(ctx, model.SyncStateLastPriceSync, second))

	ts, err = s.GetSyncState(ctx, model.SyncStateLastPriceSync)
	require.NoError(t, err)
	assert.Equal(t, second.Unix(), ts.Unix(), "watermark advances in place")
}

func TestSyncRunLifecycle(t *testing.T) {
	s, gormDB := newTestStore(t, Options{})
	ctx := context.Background()

	run, err := s.BeginSyncRun(ctx, model.SyncTypePrices)
	require.NoError(t, err)
	assert.Equal(t, model.SyncStatusStarted, run.Status)

	run.Processed = 42
	run.NotFound = 3
	require.NoError(t, s.CompleteSyncRun(ctx, run))

	var stored model.SyncRun
	require.NoError(t, gormDB.First(&stored, run.ID).Error)
	assert.Equal(t, model.SyncStatusCompleted, stored.Status)
	assert.Equal(t, 42, stored.Processed)
	assert.NotNil(t, stored.CompletedAt)

	failed, err := s.BeginSyncRun(ctx, model.SyncTypeStations)
	require.NoError(t, err)
	require.NoError(t, s.FailSyncRun(ctx, failed, "upstream unreachable"))

	stored = model.SyncRun{}
	require.NoError(t, gormDB.First(&stored, failed.ID).Error)
	assert.Equal(t, model.SyncStatusFailed, stored.Status)
	assert.Equal(t, "upstream unreachable", stored.Error)

	runs, err := s.RecentSyncRuns(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestSearchStations(t *testing.T) {
	s, gormDB := newTestStore(t, Options{})
	ctx := context.Background()

	stations := []model.Station{
		{ExternalID: "GB-001", Name: "Wakefield Services", City: "Wakefield", Postcode: "WF9 2WF", Address: "1 Motorway Way"},
		{ExternalID: "GB-002", Name: "Leeds Central", City: "Leeds", Postcode: "LS1 4AP"},
		{ExternalID: "GB-003", Name: "Leeds North", City: "Leeds", Postcode: "LS7 3PD"},
	}
	require.NoError(t, gormDB.Create(&stations).Error)

	t.Run("By raw postcode", func(t *testing.T) {
		found, err := s.SearchStations(ctx, StationQuery{Postcode: "wf92wf"})
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, "GB-001", found[0].ExternalID)
	})

	t.Run("By city", func(t *testing.T) {
		found, err := s.SearchStations(ctx, StationQuery{City: "leeds"})
		require.NoError(t, err)
		assert.Len(t, found, 2)
	})

	t.Run("By free text", func(t *testing.T) {
		found, err := s.SearchStations(ctx, StationQuery{Text: "motorway"})
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, "GB-001", found[0].ExternalID)
	})

	t.Run("No filters lists everything", func(t *testing.T) {
		found, err := s.SearchStations(ctx, StationQuery{})
		require.NoError(t, err)
		assert.Len(t, found, 3)
	})
}

func TestPriceQueries(t *testing.T) {
	s, gormDB := newTestStore(t, Options{})
	ctx := context.Background()

	stations := []model.Station{
		{ExternalID: "GB-001", Name: "One"},
		{ExternalID: "GB-002", Name: "Two"},
	}
	require.NoError(t, gormDB.Create(&stations).Error)

	now := time.Now().UTC()
	observations := []model.PriceObservation{
		{StationID: stations[0].ID, FuelType: model.FuelE10, PricePence: 141, RecordedAt: now.Add(-3 * time.Hour)},
		{StationID: stations[0].ID, FuelType: model.FuelE10, PricePence: 139, RecordedAt: now.Add(-time.Hour)},
		{StationID: stations[0].ID, FuelType: model.FuelDiesel, PricePence: 149, RecordedAt: now.Add(-time.Hour)},
		{StationID: stations[1].ID, FuelType: model.FuelE10, PricePence: 137, RecordedAt: now.Add(-2 * time.Hour)},
		// Stale observation outside any test window.
		{StationID: stations[1].ID, FuelType: model.FuelDiesel, PricePence: 80, RecordedAt: now.AddDate(0, 0, -30)},
	}
	require.NoError(t, gormDB.Create(&observations).Error)

	t.Run("CurrentPrices is latest per fuel type", func(t *testing.T) {
		current, err := s.CurrentPrices(ctx, stations[0].ID)
		require.NoError(t, err)
		require.Len(t, current, 2)

		byFuel := map[model.FuelType]int{}
		for _, obs := range current {
			byFuel[obs.FuelType] = obs.PricePence
		}
		assert.Equal(t, 139, byFuel[model.FuelE10])
		assert.Equal(t, 149, byFuel[model.FuelDiesel])
	})

	t.Run("PriceHistory is windowed and ascending", func(t *testing.T) {
		history, err := s.PriceHistory(ctx, stations[0].ID, model.FuelE10, 7)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, 141, history[0].PricePence)
		assert.Equal(t, 139, history[1].PricePence)
	})

	t.Run("CheapestCurrentPrice picks lowest latest", func(t *testing.T) {
		cheapest, err := s.CheapestCurrentPrice(ctx, model.FuelE10, now.AddDate(0, 0, -2))
		require.NoError(t, err)
		require.NotNil(t, cheapest)
		assert.Equal(t, "GB-002", cheapest.Station.ExternalID)
		assert.Equal(t, 137, cheapest.Price.PricePence)
	})

	t.Run("CheapestCurrentPrice ignores stale stations", func(t *testing.T) {
		cheapest, err := s.CheapestCurrentPrice(ctx, model.FuelDiesel, now.AddDate(0, 0, -2))
		require.NoError(t, err)
		require.NotNil(t, cheapest)
		assert.Equal(t, "GB-001", cheapest.Station.ExternalID, "the 30-day-old 80p price must not win")
	})

	t.Run("PriceStatistics", func(t *testing.T) {
		stats, err := s.PriceStatistics(ctx, model.FuelE10, now.AddDate(0, 0, -2))
		require.NoError(t, err)
		assert.Equal(t, 3, stats.Count)
		assert.Equal(t, 137, stats.MinPence)
		assert.Equal(t, 141, stats.MaxPence)
		assert.InDelta(t, 139.0, stats.AvgPence, 0.01)
		assert.InDelta(t, 139.0, stats.MedPence, 0.01)
	})

	t.Run("PriceStatistics empty window", func(t *testing.T) {
		stats, err := s.PriceStatistics(ctx, model.FuelHVO, now.AddDate(0, 0, -2))
		require.NoError(t, err)
		assert.Equal(t, 0, stats.Count)
	})
}
