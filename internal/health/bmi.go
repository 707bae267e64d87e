package health

import "math"

type BMICategory string

const (
	CategoryUnderweight BMICategory = "Underweight"
	CategoryNormal      BMICategory = "Normal"
	CategoryOverweight  BMICategory = "Overweight"
	CategoryObese       BMICategory = "Obese"
	CategoryUnknown     BMICategory = "Unknown"
)

// Severity is a fixed presentation hint per category.
func (c BMICategory) Severity() string {
	switch c {
	case CategoryUnderweight:
		return "info"
	case CategoryNormal:
		return "success"
	case CategoryOverweight:
		return "warning"
	case CategoryObese:
		return "danger"
	default:
		return "neutral"
	}
}

type IdealRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// BMIResult is derived from the latest weight and profile height.
// It is never persisted, only recomputed.
type BMIResult struct {
	Value      float64     `json:"value"`
	Category   BMICategory `json:"category"`
	Severity   string      `json:"severity"`
	IdealRange IdealRange  `json:"idealRange"`
	// ToIdeal is the amount of kg needed to reach the nearest boundary
	// of the normal range: positive = to gain when underweight,
	// positive = to lose when overweight or obese, 0 when normal
	ToIdeal float64 `json:"toIdeal"`
}

func UnknownBMI() BMIResult {
	return BMIResult{
		Value:      0,
		Category:   CategoryUnknown,
		Severity:   CategoryUnknown.Severity(),
		IdealRange: IdealRange{Min: 0, Max: 0},
		ToIdeal:    0,
	}
}

// ComputeBMI is a pure function of the latest weight (kg) and height (cm).
// Zero or negative height yields the Unknown sentinel, no error is raised.
// All returned values are rounded to 1 fractional digit, half away from zero.
func ComputeBMI(latestWeight, heightCm float64) BMIResult {
	if heightCm <= 0 || latestWeight <= 0 {
		return UnknownBMI()
	}

	h := heightCm / 100
	value := latestWeight / (h * h)

	// the weight interval mapping to the Normal category (BMI 18.5 - 24.9)
	idealMin := 18.5 * h * h
	idealMax := 24.9 * h * h

	var category BMICategory
	switch {
	case value < 18.5:
		category = CategoryUnderweight
	case value < 25:
		category = CategoryNormal
	case value < 30:
		category = CategoryOverweight
	default:
		category = CategoryObese
	}

	var toIdeal float64
	switch category {
	case CategoryUnderweight:
		toIdeal = idealMin - latestWeight
	case CategoryOverweight, CategoryObese:
		toIdeal = latestWeight - idealMax
	}

	return BMIResult{
		Value:    roundToOneDecimal(value),
		Category: category,
		Severity: category.Severity(),
		IdealRange: IdealRange{
			Min: roundToOneDecimal(idealMin),
			Max: roundToOneDecimal(idealMax),
		},
		ToIdeal: roundToOneDecimal(toIdeal),
	}
}

// roundToOneDecimal rounds half away from zero
func roundToOneDecimal(value float64) float64 {
	return math.Round(value*10) / 10
}
