package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"fuelwatch-backend/internal/model"
	"fuelwatch-backend/internal/normalize"
)

// SearchStations finds stations by normalized postcode, city, or free-text
// match over name/address/city. Filters combine with AND.
func (s *gormStore) SearchStations(ctx context.Context, q StationQuery) ([]model.Station, error) {
	query := s.db.WithContext(ctx).Model(&model.Station{})

	if q.Postcode != "" {
		canonical := normalize.NormalizePostcode(q.Postcode)
		// A full postcode matches exactly; a bare outward code ("SW1A")
		// matches every station in that district.
		query = query.Where("postcode = ? OR postcode LIKE ?", canonical, canonical+" %")
	}
	if q.City != "" {
		query = query.Where("LOWER(city) = ?", strings.ToLower(strings.TrimSpace(q.City)))
	}
	if q.Text != "" {
		like := "%" + strings.ToLower(strings.TrimSpace(q.Text)) + "%"
		query = query.Where(
			"LOWER(name) LIKE ? OR LOWER(address) LIKE ? OR LOWER(city) LIKE ?",
			like, like, like,
		)
	}

	limit := q.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var stations []model.Station
	if err := query.Order("name").Limit(limit).Find(&stations).Error; err != nil {
		return nil, fmt.Errorf("station search failed: %w", err)
	}
	return stations, nil
}

// CurrentPrices returns the most recent observation per fuel type for one
// station. Fuel types the station has never reported are absent.
func (s *gormStore) CurrentPrices(ctx context.Context, stationID uint64) ([]model.PriceObservation, error) {
	var current []model.PriceObservation
	for _, ft := range model.CanonicalFuelTypes {
		obs, err := s.LatestPrice(ctx, stationID, ft)
		if err != nil {
			return nil, err
		}
		if obs != nil {
			current = append(current, *obs)
		}
	}
	return current, nil
}

// PriceHistory returns observations for a (station, fuel type) pair within
// the last N days, oldest first.
func (s *gormStore) PriceHistory(ctx context.Context, stationID uint64, fuelType model.FuelType, days int) ([]model.PriceObservation, error) {
	if days <= 0 {
		days = 7
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	var history []model.PriceObservation
	if err := s.db.WithContext(ctx).
		Where("station_id = ? AND fuel_type = ? AND recorded_at >= ?", stationID, fuelType, cutoff).
		Order("recorded_at ASC").
		Find(&history).Error; err != nil {
		return nil, fmt.Errorf("price history query failed: %w", err)
	}
	return history, nil
}

// CheapestCurrentPrice finds the station with the lowest current price for a
// fuel type, considering only the most recent observation per station and
// only observations at or after the since bound (so long-dead stations do
// not win with stale prices).
func (s *gormStore) CheapestCurrentPrice(ctx context.Context, fuelType model.FuelType, since time.Time) (*CheapestPrice, error) {
	var obs []model.PriceObservation
	err := s.db.WithContext(ctx).Raw(`
		SELECT p.* FROM price_observations p
		JOIN (
			SELECT station_id, MAX(recorded_at) AS latest
			FROM price_observations
			WHERE fuel_type = ? AND recorded_at >= ?
			GROUP BY station_id
		) latest ON p.station_id = latest.station_id AND p.recorded_at = latest.latest
		WHERE p.fuel_type = ?
		ORDER BY p.price_pence ASC
		LIMIT 1`, fuelType, since, fuelType).Scan(&obs).Error
	if err != nil {
		return nil, fmt.Errorf("cheapest price query failed: %w", err)
	}
	if len(obs) == 0 {
		return nil, nil
	}

	var station model.Station
	if err := s.db.WithContext(ctx).First(&station, obs[0].StationID).Error; err != nil {
		return nil, fmt.Errorf("failed to load station for cheapest price: %w", err)
	}
	return &CheapestPrice{Station: station, Price: obs[0]}, nil
}

// PriceStatistics computes min/max/avg/median over every observation of a
// fuel type at or after the since bound. Median is computed in Go; the
// window sizes here do not justify database-specific percentile SQL.
func (s *gormStore) PriceStatistics(ctx context.Context, fuelType model.FuelType, since time.Time) (*PriceStats, error) {
	var pences []int
	if err := s.db.WithContext(ctx).
		Model(&model.PriceObservation{}).
		Where("fuel_type = ? AND recorded_at >= ?", fuelType, since).
		Order("price_pence ASC").
		Pluck("price_pence", &pences).Error; err != nil {
		return nil, fmt.Errorf("price statistics query failed: %w", err)
	}
	if len(pences) == 0 {
		return &PriceStats{FuelType: fuelType}, nil
	}

	sort.Ints(pences)
	sum := 0
	for _, p := range pences {
		sum += p
	}

	n := len(pences)
	var median float64
	if n%2 == 1 {
		median = float64(pences[n/2])
	} else {
		median = float64(pences[n/2-1]+pences[n/2]) / 2
	}

	return &PriceStats{
		FuelType: fuelType,
		Count:    n,
		MinPence: pences[0],
		MaxPence: pences[n-1],
		AvgPence: float64(sum) / float64(n),
		MedPence: median,
	}, nil
}
