// Package units provides shared constants and validation for weight units
package units

// Unit constants
const (
	KG = "kg"
	LB = "lb"
)

// KgPerLb is the exact international avoirdupois pound.
const KgPerLb = 0.45359237

// ValidUnits contains all valid unit values
var ValidUnits = []string{KG, LB}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "kg, lb"
}

// ConvertWeight converts a weight from kilograms to the target units.
// Weights are stored and forecast in kg.
func ConvertWeight(weightKg float64, targetUnits string) float64 {
	switch targetUnits {
	case LB:
		return weightKg / KgPerLb
	default:
		return weightKg
	}
}

// ToKg converts a weight in the given units back to kilograms.
func ToKg(weight float64, fromUnits string) float64 {
	switch fromUnits {
	case LB:
		return weight * KgPerLb
	default:
		return weight
	}
}

// ConvertWeights converts every element of weightsKg in place.
func ConvertWeights(weightsKg []float64, targetUnits string) {
	for i, w := range weightsKg {
		weightsKg[i] = ConvertWeight(w, targetUnits)
	}
}
