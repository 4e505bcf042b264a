package units

import (
	"math"
	"testing"
)

func TestConvertWeight(t *testing.T) {
	tests := []struct {
		name     string
		weightKg float64
		units    string
		expected float64
	}{
		{"80 kg to lb", 80.0, LB, 176.3698},
		{"80 kg to kg", 80.0, KG, 80.0},
		{"unknown units default to kg", 80.0, "stone", 80.0},
		{"1 lb round trip", KgPerLb, LB, 1.0},
		{"0 kg to lb", 0.0, LB, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ConvertWeight(tt.weightKg, tt.units)
			if math.Abs(result-tt.expected) > 0.001 {
				t.Errorf("ConvertWeight(%f, %s) = %f, want %f", tt.weightKg, tt.units, result, tt.expected)
			}
		})
	}
}

func TestToKg(t *testing.T) {
	for _, w := range []float64{0, 55.5, 80, 150.25} {
		if got := ToKg(ConvertWeight(w, LB), LB); math.Abs(got-w) > 1e-9 {
			t.Errorf("round trip of %f through lb gave %f", w, got)
		}
		if got := ToKg(w, KG); got != w {
			t.Errorf("ToKg(%f, kg) = %f", w, got)
		}
	}
}

func TestConvertWeights(t *testing.T) {
	ws := []float64{KgPerLb, 2 * KgPerLb}
	ConvertWeights(ws, LB)
	if math.Abs(ws[0]-1) > 1e-12 || math.Abs(ws[1]-2) > 1e-12 {
		t.Errorf("ConvertWeights = %v, want [1 2]", ws)
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		unit     string
		expected bool
	}{
		{KG, true},
		{LB, true},
		{"", false},
		{"KG", false},
		{"mph", false},
	}

	for _, tt := range tests {
		if got := IsValid(tt.unit); got != tt.expected {
			t.Errorf("IsValid(%q) = %v, want %v", tt.unit, got, tt.expected)
		}
	}
}

func TestGetValidUnitsString(t *testing.T) {
	if got := GetValidUnitsString(); got != "kg, lb" {
		t.Errorf("GetValidUnitsString() = %q", got)
	}
}
