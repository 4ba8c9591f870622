// Package prediction estimates the next menstrual cycle from historical
// cycle-start dates.
//
// The predictor is a pure, synchronous computation: the caller fetches the
// cycle entries, hands over their start dates, and receives either a
// prediction with insights or an insufficient-data result. Fewer than two
// usable dates is a normal outcome, never an error.
package prediction

import (
	"fmt"
	"time"
)

// --------------------------------------------------------------------------
// Enums
// --------------------------------------------------------------------------

// Pattern classifies how cycle lengths behave over time.
type Pattern string

const (
	PatternRegular           Pattern = "regular"
	PatternSomewhatIrregular Pattern = "somewhat_irregular"
	PatternIrregular         Pattern = "irregular"
	PatternTrendingLonger    Pattern = "trending_longer"
	PatternTrendingShorter   Pattern = "trending_shorter"
)

// Confidence is a coarse band for how much to trust a prediction.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// rank orders confidence bands from low (0) to high (2).
func (c Confidence) rank() int {
	switch c {
	case ConfidenceHigh:
		return 2
	case ConfidenceMedium:
		return 1
	default:
		return 0
	}
}

// --------------------------------------------------------------------------
// Rules
// --------------------------------------------------------------------------

// Rules holds the classification thresholds. They are product defaults, not
// clinical constants, and can be overridden from the rules file.
type Rules struct {
	RegularCV                 float64 `yaml:"regular_cv"`
	IrregularCV               float64 `yaml:"irregular_cv"`
	HighConfidenceCV          float64 `yaml:"high_confidence_cv"`
	HighConfidenceMinCycles   int     `yaml:"high_confidence_min_cycles"`
	MediumConfidenceMinCycles int     `yaml:"medium_confidence_min_cycles"`
	TrendWindow               int     `yaml:"trend_window"`
	PMSOffsetDays             int     `yaml:"pms_offset_days"`
	TypicalMinLength          int     `yaml:"typical_min_length"`
	TypicalMaxLength          int     `yaml:"typical_max_length"`
}

// MinStartDates is the smallest number of usable start dates that yields a
// prediction.
const MinStartDates = 2

// DefaultRules returns the built-in thresholds.
func DefaultRules() Rules {
	return Rules{
		RegularCV:                 0.10,
		IrregularCV:               0.25,
		HighConfidenceCV:          0.15,
		HighConfidenceMinCycles:   6,
		MediumConfidenceMinCycles: 3,
		TrendWindow:               3,
		PMSOffsetDays:             10,
		TypicalMinLength:          21,
		TypicalMaxLength:          35,
	}
}

// Validate checks that thresholds are ordered and in range.
func (r Rules) Validate() error {
	switch {
	case r.RegularCV <= 0 || r.IrregularCV <= r.RegularCV:
		return fmt.Errorf("cv thresholds must satisfy 0 < regular (%v) < irregular (%v)", r.RegularCV, r.IrregularCV)
	case r.HighConfidenceCV <= 0:
		return fmt.Errorf("high confidence cv must be positive, got %v", r.HighConfidenceCV)
	case r.MediumConfidenceMinCycles < MinStartDates:
		return fmt.Errorf("medium confidence needs at least %d cycles, got %d", MinStartDates, r.MediumConfidenceMinCycles)
	case r.HighConfidenceMinCycles < r.MediumConfidenceMinCycles:
		return fmt.Errorf("high confidence cycles (%d) below medium (%d)", r.HighConfidenceMinCycles, r.MediumConfidenceMinCycles)
	case r.TrendWindow < 2:
		return fmt.Errorf("trend window must be at least 2, got %d", r.TrendWindow)
	case r.PMSOffsetDays < 0:
		return fmt.Errorf("pms offset must not be negative, got %d", r.PMSOffsetDays)
	case r.TypicalMinLength <= 0 || r.TypicalMaxLength <= r.TypicalMinLength:
		return fmt.Errorf("typical length range %d-%d is invalid", r.TypicalMinLength, r.TypicalMaxLength)
	}
	return nil
}

// --------------------------------------------------------------------------
// Results
// --------------------------------------------------------------------------

// Prediction is the computed next-cycle estimate. It is never persisted.
type Prediction struct {
	NextCycleDate      time.Time  `json:"nextCycleDate"`
	PMSWindowStart     time.Time  `json:"pmsWindowStart"`
	Confidence         Confidence `json:"confidence"`
	Pattern            Pattern    `json:"pattern"`
	AvgCycleLength     int        `json:"avgCycleLength"`
	BasedOnCycles      int        `json:"basedOnCycles"`
	CycleLengths       []int      `json:"cycleLengths"`
	Variation          float64    `json:"variation"`
	DaysUntilNextCycle int        `json:"daysUntilNextCycle"`
}

// Outcome distinguishes a prediction from an insufficient-data result.
type Outcome int

const (
	OutcomePredicted Outcome = iota
	OutcomeInsufficientData
)

func (o Outcome) String() string {
	if o == OutcomeInsufficientData {
		return "insufficient_data"
	}
	return "predicted"
}

// Result is what Predict returns. Prediction and Insights are only set when
// Outcome is OutcomePredicted.
type Result struct {
	Outcome      Outcome
	Prediction   Prediction
	Insights     []string
	ValidEntries int
}

// Insufficient reports whether there was too little data to predict.
func (r Result) Insufficient() bool {
	return r.Outcome == OutcomeInsufficientData
}

// InsufficientDataMessage is the user-facing text for the insufficient
// data branch.
const InsufficientDataMessage = "Not enough cycle data to make a prediction. Log at least 2 cycles."
