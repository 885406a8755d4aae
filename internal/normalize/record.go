package normalize

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Record is one raw upstream record. The upstream API is inconsistent about
// field names across its endpoints and data vintages, so records are decoded
// loosely and read through the precedence tables below rather than through a
// fixed struct.
type Record map[string]json.RawMessage

// Field precedence tables. First present, non-empty key wins. These are the
// only place upstream field-name variants are spelled out.
var (
	stationIDFields   = []string{"external_id", "site_id", "station_id", "id"}
	stationNameFields = []string{"station_name", "name", "site_name"}
	brandFields       = []string{"brand", "brand_name", "trading_name"}
	addressFields     = []string{"address", "address_line_1", "street_address"}
	cityFields        = []string{"city", "town", "post_town"}
	countyFields      = []string{"county"}
	postcodeFields    = []string{"postcode", "post_code"}
	latitudeFields    = []string{"latitude", "lat"}
	longitudeFields   = []string{"longitude", "lng", "lon"}
	amenityFields     = []string{"amenities", "facilities"}

	priceStationFields = []string{"station_external_id", "site_id", "station_id"}
	fuelTypeFields     = []string{"fuel_type", "fuelType", "product"}
	priceValueFields   = []string{"price", "price_pence", "latest_price"}
	sourceTimeFields   = []string{"last_updated", "lastUpdated", "updated_at"}
)

// RawStation is a station record with field-name variance resolved but no
// further normalization applied.
type RawStation struct {
	ExternalID string
	Name       string
	Brand      string
	Address    string
	City       string
	County     string
	Postcode   string
	Latitude   float64
	Longitude  float64
	Amenities  []string
}

// RawPrice is a price record with field-name variance resolved. Price stays
// a string here; ParsePrice owns its interpretation.
type RawPrice struct {
	StationExternalID string
	FuelType          string
	Price             string
	SourceTimestamp   string
}

// StationFromRecord resolves a raw record into a RawStation. A record with
// no resolvable external id is unusable and returns an error.
func StationFromRecord(rec Record) (RawStation, error) {
	id := rec.firstString(stationIDFields...)
	if id == "" {
		return RawStation{}, fmt.Errorf("station record has no external id")
	}
	lat, _ := rec.firstFloat(latitudeFields...)
	lon, _ := rec.firstFloat(longitudeFields...)
	return RawStation{
		ExternalID: id,
		Name:       rec.firstString(stationNameFields...),
		Brand:      rec.firstString(brandFields...),
		Address:    rec.firstString(addressFields...),
		City:       rec.firstString(cityFields...),
		County:     rec.firstString(countyFields...),
		Postcode:   rec.firstString(postcodeFields...),
		Latitude:   lat,
		Longitude:  lon,
		Amenities:  rec.firstStrings(amenityFields...),
	}, nil
}

// PriceFromRecord resolves a raw record into a RawPrice. A record with no
// resolvable station id is unusable and returns an error.
func PriceFromRecord(rec Record) (RawPrice, error) {
	id := rec.firstString(priceStationFields...)
	if id == "" {
		return RawPrice{}, fmt.Errorf("price record has no station id")
	}
	return RawPrice{
		StationExternalID: id,
		FuelType:          rec.firstString(fuelTypeFields...),
		Price:             rec.firstString(priceValueFields...),
		SourceTimestamp:   rec.firstString(sourceTimeFields...),
	}, nil
}

// firstString returns the first key that decodes to a non-empty string.
// Numeric values are accepted and stringified, since the upstream API is
// not consistent about quoting identifiers.
func (r Record) firstString(keys ...string) string {
	for _, k := range keys {
		raw, ok := r[k]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if s != "" {
				return s
			}
			continue
		}
		var f float64
		if err := json.Unmarshal(raw, &f); err == nil {
			if f == float64(int64(f)) {
				return strconv.FormatInt(int64(f), 10)
			}
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
	}
	return ""
}

// firstFloat returns the first key that decodes to a number, accepting
// quoted numbers as well.
func (r Record) firstFloat(keys ...string) (float64, bool) {
	for _, k := range keys {
		raw, ok := r[k]
		if !ok {
			continue
		}
		var f float64
		if err := json.Unmarshal(raw, &f); err == nil {
			return f, true
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if f, err := strconv.ParseFloat(s, 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

// firstStrings returns the first key that decodes to a string list.
func (r Record) firstStrings(keys ...string) []string {
	for _, k := range keys {
		raw, ok := r[k]
		if !ok {
			continue
		}
		var list []string
		if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
			return list
		}
	}
	return nil
}
