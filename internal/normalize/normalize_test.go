package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"fuelwatch-backend/internal/model"
)

func TestNormalizePostcode(t *testing.T) {
	testCases := []struct {
		name     string
		raw      string
		expected string
	}{
		{name: "Lowercase no space", raw: "wf92wf", expected: "WF9 2WF"},
		{name: "Seven chars no space", raw: "SW1A1AA", expected: "SW1A 1AA"},
		{name: "Already canonical", raw: "WF9 2WF", expected: "WF9 2WF"},
		{name: "Extra internal whitespace", raw: " sw1a  1aa ", expected: "SW1A 1AA"},
		{name: "Too short to split", raw: "WF9", expected: "WF9"},
		{name: "Too long to split", raw: "NOTAPOSTCODE", expected: "NOTAPOSTCODE"},
		{name: "Empty", raw: "", expected: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, NormalizePostcode(tc.raw))
		})
	}
}

func TestNormalizePostcode_Idempotent(t *testing.T) {
	inputs := []string{"wf92wf", "SW1A1AA", "WF9 2WF", "x", "", "  eh1 1yz  ", "garbage value"}
	for _, in := range inputs {
		once := NormalizePostcode(in)
		assert.Equal(t, once, NormalizePostcode(once), "second pass should be a fixed point for %q", in)
	}
}

func TestMapFuelType(t *testing.T) {
	testCases := []struct {
		raw      string
		expected model.FuelType
		ok       bool
	}{
		{raw: "B7_STANDARD", expected: model.FuelDiesel, ok: true},
		{raw: "B7P", expected: model.FuelDiesel, ok: true},
		{raw: "B7_PREMIUM", expected: model.FuelSuperDiesel, ok: true},
		{raw: "B7S", expected: model.FuelSuperDiesel, ok: true},
		{raw: "E5_PREMIUM", expected: model.FuelE5, ok: true},
		{raw: "E5", expected: model.FuelE5, ok: true},
		{raw: "E10", expected: model.FuelE10, ok: true},
		{raw: "Diesel", expected: model.FuelDiesel, ok: true},
		{raw: "diesel", expected: model.FuelDiesel, ok: true},
		{raw: "Super Diesel", expected: model.FuelSuperDiesel, ok: true},
		{raw: "B10", expected: model.FuelB10, ok: true},
		{raw: "HVO", expected: model.FuelHVO, ok: true},
		{raw: "XYZ", ok: false},
		{raw: "", ok: false},
	}

	for _, tc := range testCases {
		t.Run(tc.raw, func(t *testing.T) {
			ft, ok := MapFuelType(tc.raw)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.expected, ft)
			}
		})
	}
}

func TestParsePrice(t *testing.T) {
	testCases := []struct {
		name     string
		raw      string
		expected int
		ok       bool
	}{
		{name: "Apostrophe and zero padding", raw: "'0126.9000", expected: 126, ok: true},
		{name: "Zero padded", raw: "0149.9000", expected: 149, ok: true},
		{name: "Plain integer", raw: "135", expected: 135, ok: true},
		{name: "Fraction dropped", raw: "139.4", expected: 139, ok: true},
		{name: "Below band", raw: "0049.0000", ok: false},
		{name: "Lower bound inclusive", raw: "0050.0000", expected: 50, ok: true},
		{name: "Upper bound inclusive", raw: "0300.0000", expected: 300, ok: true},
		{name: "Above band", raw: "0301.0000", ok: false},
		{name: "Unparsable", raw: "n/a", ok: false},
		{name: "Empty", raw: "", ok: false},
		{name: "Zero", raw: "0000.0000", ok: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			pence, ok := ParsePrice(tc.raw, 50, 300)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.expected, pence)
			}
		})
	}
}
