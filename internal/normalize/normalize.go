package normalize

import (
	"strconv"
	"strings"

	"fuelwatch-backend/internal/model"
)

// UnknownPostcode is stored when the upstream record carries no postcode at
// all. The station is still kept; dropping it would lose price coverage.
const UnknownPostcode = "UNKNOWN"

// NormalizePostcode canonicalizes a UK postcode into "OUTWARD INWARD" form.
// It is pure and idempotent: inputs it cannot confidently split (fewer than
// 5 or more than 7 characters once whitespace is stripped) come back
// trimmed and uppercased but otherwise untouched.
func NormalizePostcode(raw string) string {
	compact := strings.ToUpper(strings.Join(strings.Fields(raw), ""))
	if len(compact) < 5 || len(compact) > 7 {
		return strings.ToUpper(strings.TrimSpace(raw))
	}
	outward := compact[:len(compact)-3]
	inward := compact[len(compact)-3:]
	return outward + " " + inward
}

// fuelAliases maps upstream product codes onto the canonical enum.
var fuelAliases = map[string]model.FuelType{
	"B7_STANDARD": model.FuelDiesel,
	"B7P":         model.FuelDiesel,
	"B7_PREMIUM":  model.FuelSuperDiesel,
	"B7S":         model.FuelSuperDiesel,
	"E5_PREMIUM":  model.FuelE5,
}

// MapFuelType maps an upstream fuel-type string to the canonical enum.
// Unrecognized values return ok=false and the record should be skipped.
func MapFuelType(raw string) (model.FuelType, bool) {
	trimmed := strings.ToUpper(strings.TrimSpace(raw))
	if ft, ok := fuelAliases[trimmed]; ok {
		return ft, true
	}
	for _, ft := range model.CanonicalFuelTypes {
		if strings.EqualFold(string(ft), strings.TrimSpace(raw)) {
			return ft, true
		}
	}
	return "", false
}

// ParsePrice parses an upstream price string into integer pence per litre.
// Upstream values arrive zero-padded and sometimes apostrophe-prefixed
// (spreadsheet escape), e.g. "'0126.9000". Values that fail to parse or
// fall outside [minPence, maxPence] are rejected, never clamped.
func ParsePrice(raw string, minPence, maxPence int) (int, bool) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "'")
	s = strings.TrimLeft(s, "0")
	if s == "" || s[0] == '.' {
		s = "0" + s
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	// Whole pence, fractional tenths dropped: 126.9 stores as 126.
	pence := int(v)
	if pence < minPence || pence > maxPence {
		return 0, false
	}
	return pence, true
}
