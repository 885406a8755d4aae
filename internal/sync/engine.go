package sync

import (
	"context"
	"log"
	"strings"
	"time"

	"fuelwatch-backend/config"
	"fuelwatch-backend/internal/model"
	"fuelwatch-backend/internal/normalize"
	"fuelwatch-backend/internal/notification"
	"fuelwatch-backend/internal/store"
)

// Fetcher is the upstream API surface the engine needs.
type Fetcher interface {
	FetchStations(ctx context.Context) ([]normalize.Record, error)
	FetchPrices(ctx context.Context, since *time.Time) ([]normalize.Record, error)
}

// StationSyncResult is the structured outcome of a station sync. It is
// returned, never thrown: callers always get counts they can log.
type StationSyncResult struct {
	Success           bool   `json:"success"`
	StationsProcessed int    `json:"stationsProcessed"`
	Skipped           int    `json:"skipped"`
	Errored           int    `json:"errored"`
	Error             string `json:"error,omitempty"`
}

// PriceSyncResult is the structured outcome of a price sync.
type PriceSyncResult struct {
	Success          bool   `json:"success"`
	PricesProcessed  int    `json:"pricesProcessed"`
	StationsNotFound int    `json:"stationsNotFound"`
	Skipped          int    `json:"skipped"`
	Errored          int    `json:"errored"`
	Error            string `json:"error,omitempty"`
}

// Engine sequences fetch, normalization, identity resolution, price
// reconciliation, and batched persistence for both sync types.
type Engine struct {
	cfg     *config.Config
	store   store.Store
	fetcher Fetcher
	pool    *notification.WorkerPool
	now     func() time.Time
}

// NewEngine creates a sync engine. pool may be nil when push alerts are
// disabled.
func NewEngine(cfg *config.Config, s store.Store, fetcher Fetcher, pool *notification.WorkerPool) *Engine {
	return &Engine{
		cfg:     cfg,
		store:   s,
		fetcher: fetcher,
		pool:    pool,
		now:     time.Now,
	}
}

// SyncStations runs a full replace-by-key sweep of station metadata. Every
// run overwrites descriptive fields and bumps last_synced_at; it never
// creates a second row for a known external id. A mid-pagination fetch
// failure is not fatal here: the batches fetched before it are upserted
// best-effort and the error is recorded on the run.
func (e *Engine) SyncStations(ctx context.Context) StationSyncResult {
	run, err := e.store.BeginSyncRun(ctx, model.SyncTypeStations)
	if err != nil {
		return StationSyncResult{Error: err.Error()}
	}

	records, fetchErr := e.fetcher.FetchStations(ctx)
	if fetchErr != nil {
		if len(records) == 0 {
			e.failRun(ctx, run, fetchErr)
			return StationSyncResult{Error: fetchErr.Error()}
		}
		log.Printf("Warning: station fetch failed after %d records; continuing with partial data: %v", len(records), fetchErr)
	}

	now := e.now().UTC()
	skipped := 0
	byExternalID := make(map[string]int)
	var stations []model.Station
	for _, rec := range records {
		raw, err := normalize.StationFromRecord(rec)
		if err != nil {
			skipped++
			continue
		}

		station := model.Station{
			ExternalID:   raw.ExternalID,
			Name:         raw.Name,
			Brand:        raw.Brand,
			Address:      raw.Address,
			City:         raw.City,
			County:       raw.County,
			Postcode:     normalizeStationPostcode(raw.Postcode),
			Latitude:     raw.Latitude,
			Longitude:    raw.Longitude,
			Amenities:    raw.Amenities,
			LastSyncedAt: now,
		}
		if station.Name == "" {
			station.Name = raw.ExternalID
		}

		// The feed occasionally repeats a station across batches; last
		// record wins so a single upsert statement never sees the same
		// key twice.
		if idx, seen := byExternalID[raw.ExternalID]; seen {
			stations[idx] = station
			continue
		}
		byExternalID[raw.ExternalID] = len(stations)
		stations = append(stations, station)
	}

	result := e.store.UpsertStationsBatch(ctx, stations)

	run.Processed = result.Processed
	run.Skipped = skipped
	run.Errored = result.Errored
	if fetchErr != nil {
		run.Error = fetchErr.Error()
	}
	if err := e.store.CompleteSyncRun(ctx, run); err != nil {
		log.Printf("Warning: failed to mark station sync run complete: %v", err)
	}
	// A partial sweep did not cover the full dataset, so the watermark
	// stays put and the next cycle runs the station sync again.
	if fetchErr == nil {
		if err := e.store.SetSyncState(ctx, model.SyncStateLastStationSync, now); err != nil {
			log.Printf("Warning: failed to advance station sync watermark: %v", err)
		}
	}

	res := StationSyncResult{
		Success:           true,
		StationsProcessed: result.Processed,
		Skipped:           skipped,
		Errored:           result.Errored,
	}
	if fetchErr != nil {
		res.Error = fetchErr.Error()
	}
	return res
}

// SyncPrices runs an incremental price sync. With no explicit since bound it
// reads the last_price_sync watermark, defaulting to the configured lookback
// when absent. Per-record problems (unknown station, bad fuel type, bad or
// out-of-band price) are counted skips, never fatal.
func (e *Engine) SyncPrices(ctx context.Context, since *time.Time) PriceSyncResult {
	run, err := e.store.BeginSyncRun(ctx, model.SyncTypePrices)
	if err != nil {
		return PriceSyncResult{Error: err.Error()}
	}

	if since == nil {
		watermark, err := e.store.GetSyncState(ctx, model.SyncStateLastPriceSync)
		if err != nil {
			e.failRun(ctx, run, err)
			return PriceSyncResult{Error: err.Error()}
		}
		if watermark != nil {
			since = watermark
		} else {
			fallback := e.now().UTC().Add(-time.Duration(e.cfg.Sync.DefaultLookbackHours) * time.Hour)
			since = &fallback
		}
	}

	// A failed walk fails the run and any partially fetched batches are
	// discarded: price data is authoritative and must not be partially
	// ingested.
	records, err := e.fetcher.FetchPrices(ctx, since)
	if err != nil {
		e.failRun(ctx, run, err)
		return PriceSyncResult{Error: err.Error()}
	}

	now := e.now().UTC()
	var skipped int
	var candidates []priceCandidate
	externalIDSet := make(map[string]struct{})
	for _, rec := range records {
		raw, err := normalize.PriceFromRecord(rec)
		if err != nil {
			skipped++
			continue
		}
		fuelType, ok := normalize.MapFuelType(raw.FuelType)
		if !ok {
			skipped++
			continue
		}
		pence, ok := normalize.ParsePrice(raw.Price, e.cfg.Sync.PriceMinPence, e.cfg.Sync.PriceMaxPence)
		if !ok {
			skipped++
			continue
		}
		candidates = append(candidates, priceCandidate{
			externalID:      raw.StationExternalID,
			fuelType:        fuelType,
			pence:           pence,
			sourceTimestamp: raw.SourceTimestamp,
		})
		externalIDSet[raw.StationExternalID] = struct{}{}
	}

	externalIDs := make([]string, 0, len(externalIDSet))
	for id := range externalIDSet {
		externalIDs = append(externalIDs, id)
	}
	stationIDs, err := e.store.ResolveStationIDs(ctx, externalIDs)
	if err != nil {
		e.failRun(ctx, run, err)
		return PriceSyncResult{Error: err.Error()}
	}

	toWrite, alerts, notFound, errored := e.reconcileAll(ctx, candidates, stationIDs, now)

	result := e.store.InsertPricesBatch(ctx, toWrite)
	errored += result.Errored

	run.Processed = result.Processed
	run.Skipped = skipped
	run.NotFound = notFound
	run.Errored = errored
	if err := e.store.CompleteSyncRun(ctx, run); err != nil {
		log.Printf("Warning: failed to mark price sync run complete: %v", err)
	}
	if err := e.store.SetSyncState(ctx, model.SyncStateLastPriceSync, now); err != nil {
		log.Printf("Warning: failed to advance price sync watermark: %v", err)
	}

	e.dispatchAlerts(alerts, result.Failed)

	return PriceSyncResult{
		Success:          true,
		PricesProcessed:  result.Processed,
		StationsNotFound: notFound,
		Skipped:          skipped,
		Errored:          errored,
	}
}

type priceCandidate struct {
	externalID      string
	fuelType        model.FuelType
	pence           int
	sourceTimestamp string
}

type priceKey struct {
	stationID uint64
	fuelType  model.FuelType
}

// pendingAlert is a price-drop alert tied to the index of its observation in
// the write batch, so alerts for observations lost to a failed chunk can be
// withheld.
type pendingAlert struct {
	obsIndex int
	alert    notification.PriceAlert
}

// reconcileAll applies the dedup/versioning policy to every candidate.
// Candidates are processed in feed order, and a per-key map of the run's own
// pending writes keeps decisions serialized within a (station, fuel type)
// key even when the feed repeats it.
func (e *Engine) reconcileAll(ctx context.Context, candidates []priceCandidate, stationIDs map[string]uint64, now time.Time) (toWrite []model.PriceObservation, alerts []pendingAlert, notFound, errored int) {
	heartbeat := time.Duration(e.cfg.Sync.HeartbeatMinutes) * time.Minute
	latest := make(map[priceKey]*model.PriceObservation)

	for _, cand := range candidates {
		stationID, ok := stationIDs[cand.externalID]
		if !ok {
			notFound++
			continue
		}

		key := priceKey{stationID: stationID, fuelType: cand.fuelType}
		prev, seen := latest[key]
		if !seen {
			var err error
			prev, err = e.store.LatestPrice(ctx, stationID, cand.fuelType)
			if err != nil {
				log.Printf("Error fetching latest price for station %d %s: %v", stationID, cand.fuelType, err)
				errored++
				continue
			}
			latest[key] = prev
		}

		if !shouldWrite(prev, cand.pence, now, heartbeat) {
			continue
		}

		obs := model.PriceObservation{
			StationID:       stationID,
			FuelType:        cand.fuelType,
			PricePence:      cand.pence,
			RecordedAt:      now,
			SourceTimestamp: cand.sourceTimestamp,
		}
		idx := len(toWrite)
		toWrite = append(toWrite, obs)
		latest[key] = &obs

		if prev != nil && cand.pence < prev.PricePence {
			alerts = append(alerts, pendingAlert{
				obsIndex: idx,
				alert: notification.PriceAlert{
					StationID:     stationID,
					FuelType:      cand.fuelType,
					PricePence:    cand.pence,
					PreviousPence: prev.PricePence,
				},
			})
		}
	}
	return toWrite, alerts, notFound, errored
}

// dispatchAlerts sends price-drop alerts for observations that actually
// persisted. failed holds the write-batch indices lost to chunks that
// exhausted their retries; their alerts are withheld, the rest still go out.
func (e *Engine) dispatchAlerts(alerts []pendingAlert, failed []int) {
	if e.pool == nil || len(alerts) == 0 {
		return
	}
	lost := make(map[int]struct{}, len(failed))
	for _, idx := range failed {
		lost[idx] = struct{}{}
	}
	for _, pa := range alerts {
		if _, skip := lost[pa.obsIndex]; skip {
			continue
		}
		e.pool.Dispatch(pa.alert)
	}
}

// shouldWrite is the reconciliation policy: write when there is no prior
// observation, when the price changed, or when the prior observation is
// older than the heartbeat interval. Anything else is a duplicate and the
// existing row stays current.
func shouldWrite(prev *model.PriceObservation, pence int, now time.Time, heartbeat time.Duration) bool {
	if prev == nil {
		return true
	}
	if prev.PricePence != pence {
		return true
	}
	return now.Sub(prev.RecordedAt) > heartbeat
}

// normalizeStationPostcode canonicalizes a station postcode, keeping
// stations with no postcode at all under a marker value rather than
// dropping them.
func normalizeStationPostcode(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return normalize.UnknownPostcode
	}
	return normalize.NormalizePostcode(raw)
}

// Run starts the periodic price sync loop. It performs an initial station
// sync when none has ever completed, then syncs prices on the configured
// interval until the context is cancelled. An in-flight cycle finishes its
// current work before the loop exits.
func (e *Engine) Run(ctx context.Context) {
	// Alert workers start regardless of the sync loop: a manually
	// triggered price sync still dispatches alerts when the periodic
	// loop is disabled.
	if e.pool != nil {
		e.pool.Start(ctx)
	}

	if !e.cfg.Sync.Enabled {
		log.Println("Sync is disabled. Not starting.")
		return
	}
	log.Println("Starting sync engine...")

	e.runOnce(ctx)

	timer := time.NewTimer(e.cfg.Sync.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Sync engine shutting down.")
			return
		case <-timer.C:
			e.runOnce(ctx)
			timer.Reset(e.cfg.Sync.Interval)
		}
	}
}

func (e *Engine) runOnce(ctx context.Context) {
	watermark, err := e.store.GetSyncState(ctx, model.SyncStateLastStationSync)
	if err != nil {
		log.Printf("Error reading station sync watermark: %v", err)
	} else if watermark == nil {
		log.Println("No station sync has ever completed; running one first.")
		res := e.SyncStations(ctx)
		log.Printf("Station sync: success=%t processed=%d skipped=%d errored=%d %s",
			res.Success, res.StationsProcessed, res.Skipped, res.Errored, res.Error)
	}

	res := e.SyncPrices(ctx, nil)
	log.Printf("Price sync: success=%t processed=%d notFound=%d skipped=%d errored=%d %s",
		res.Success, res.PricesProcessed, res.StationsNotFound, res.Skipped, res.Errored, res.Error)
}

func (e *Engine) failRun(ctx context.Context, run *model.SyncRun, cause error) {
	if err := e.store.FailSyncRun(ctx, run, cause.Error()); err != nil {
		log.Printf("Warning: failed to mark sync run %d failed: %v", run.ID, err)
	}
}
