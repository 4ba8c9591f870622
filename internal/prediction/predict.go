package prediction

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Predictor computes predictions under a fixed set of rules. It holds no
// mutable state and is safe for concurrent use.
type Predictor struct {
	rules Rules
}

// New returns a Predictor. Rules should already be validated.
func New(rules Rules) *Predictor {
	return &Predictor{rules: rules}
}

// Rules returns the thresholds in use.
func (p *Predictor) Rules() Rules {
	return p.rules
}

// Predict runs the default rules.
func Predict(starts []time.Time, today time.Time) Result {
	return New(DefaultRules()).Predict(starts, today)
}

// Predict estimates the next cycle from cycle-start dates. Zero times are
// skipped, times are truncated to calendar days, same-day duplicates
// collapse, and the dates are ordered most recent first.
func (p *Predictor) Predict(starts []time.Time, today time.Time) Result {
	dates := normalize(starts)
	if len(dates) < MinStartDates {
		return Result{Outcome: OutcomeInsufficientData, ValidEntries: len(dates)}
	}

	lengths := cycleLengths(dates)
	mean := meanInts(lengths)
	cv := coefficientOfVariation(lengths, mean)
	avg := int(math.Round(mean))

	next := dates[0].AddDate(0, 0, avg)
	pred := Prediction{
		NextCycleDate:      next,
		PMSWindowStart:     next.AddDate(0, 0, -p.rules.PMSOffsetDays),
		Confidence:         p.confidence(len(dates), cv),
		Pattern:            p.pattern(lengths, cv),
		AvgCycleLength:     avg,
		BasedOnCycles:      len(dates),
		CycleLengths:       lengths,
		Variation:          math.Round(cv*1000) / 1000,
		DaysUntilNextCycle: daysBetween(dateOnly(today), next),
	}

	return Result{
		Outcome:      OutcomePredicted,
		Prediction:   pred,
		Insights:     p.insights(pred),
		ValidEntries: len(dates),
	}
}

// ParseStartDates parses YYYY-MM-DD or RFC 3339 values. Malformed values
// become zero times, which Predict skips.
func ParseStartDates(raw []string) []time.Time {
	out := make([]time.Time, len(raw))
	for i, s := range raw {
		if t, err := time.Parse(time.DateOnly, s); err == nil {
			out[i] = t
			continue
		}
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			out[i] = t
		}
	}
	return out
}

// --------------------------------------------------------------------------
// Classification
// --------------------------------------------------------------------------

func (p *Predictor) pattern(lengths []int, cv float64) Pattern {
	if w := p.rules.TrendWindow; len(lengths) >= w {
		// lengths[0] is the newest cycle.
		recent := lengths[:w]
		longer, shorter := true, true
		for i := 0; i < w-1; i++ {
			if recent[i] <= recent[i+1] {
				longer = false
			}
			if recent[i] >= recent[i+1] {
				shorter = false
			}
		}
		if longer {
			return PatternTrendingLonger
		}
		if shorter {
			return PatternTrendingShorter
		}
	}

	switch {
	case cv < p.rules.RegularCV:
		return PatternRegular
	case cv < p.rules.IrregularCV:
		return PatternSomewhatIrregular
	default:
		return PatternIrregular
	}
}

func (p *Predictor) confidence(validDates int, cv float64) Confidence {
	switch {
	case validDates >= p.rules.HighConfidenceMinCycles && cv < p.rules.HighConfidenceCV:
		return ConfidenceHigh
	case validDates >= p.rules.MediumConfidenceMinCycles:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

func (p *Predictor) insights(pred Prediction) []string {
	var out []string

	switch pred.Pattern {
	case PatternRegular:
		out = append(out, fmt.Sprintf("Your cycles have been consistent over the last %d entries", pred.BasedOnCycles))
	case PatternSomewhatIrregular:
		out = append(out, "Your cycle length varies somewhat from cycle to cycle")
	case PatternIrregular:
		out = append(out, "Your cycle lengths vary considerably, so this prediction is less certain")
	case PatternTrendingLonger:
		out = append(out, fmt.Sprintf("Your last %d cycles have been getting longer", p.rules.TrendWindow))
	case PatternTrendingShorter:
		out = append(out, fmt.Sprintf("Your last %d cycles have been getting shorter", p.rules.TrendWindow))
	}

	out = append(out, fmt.Sprintf("Your average cycle length is %s", plural(pred.AvgCycleLength, "day")))

	switch {
	case pred.AvgCycleLength < p.rules.TypicalMinLength:
		out = append(out, fmt.Sprintf("Your average cycle is shorter than the typical %d-%d day range",
			p.rules.TypicalMinLength, p.rules.TypicalMaxLength))
	case pred.AvgCycleLength > p.rules.TypicalMaxLength:
		out = append(out, fmt.Sprintf("Your average cycle is longer than the typical %d-%d day range",
			p.rules.TypicalMinLength, p.rules.TypicalMaxLength))
	}

	if pred.Confidence == ConfidenceLow {
		out = append(out, "Log more cycles to improve prediction accuracy")
	}

	if pred.DaysUntilNextCycle < 0 {
		out = append(out, fmt.Sprintf("Your period is %s later than predicted", plural(-pred.DaysUntilNextCycle, "day")))
	}
	return out
}

// --------------------------------------------------------------------------
// Date and stats helpers
// --------------------------------------------------------------------------

// dateOnly keeps the calendar date of t and pins it to UTC midnight so that
// day arithmetic is exact.
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	return int(math.Round(to.Sub(from).Hours() / 24))
}

func normalize(starts []time.Time) []time.Time {
	dates := make([]time.Time, 0, len(starts))
	seen := make(map[time.Time]struct{}, len(starts))
	for _, s := range starts {
		if s.IsZero() {
			continue
		}
		d := dateOnly(s)
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].After(dates[j]) })
	return dates
}

// cycleLengths expects dates most recent first.
func cycleLengths(dates []time.Time) []int {
	lengths := make([]int, 0, len(dates)-1)
	for i := 0; i+1 < len(dates); i++ {
		lengths = append(lengths, daysBetween(dates[i+1], dates[i]))
	}
	return lengths
}

func meanInts(values []int) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0
	for _, v := range values {
		sum += v
	}
	return float64(sum) / float64(len(values))
}

// coefficientOfVariation uses the population standard deviation.
func coefficientOfVariation(values []int, mean float64) float64 {
	if len(values) == 0 || mean == 0 {
		return 0
	}
	var sq float64
	for _, v := range values {
		d := float64(v) - mean
		sq += d * d
	}
	return math.Sqrt(sq/float64(len(values))) / mean
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
