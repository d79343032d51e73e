package badge

import (
	"time"
)

// StrategyKind selects the progress-computation strategy for a badge.
type StrategyKind int

const (
	// StrategyCappedRamp ramps linearly on a numeric accumulator,
	// reaching 1 at Cap.
	StrategyCappedRamp StrategyKind = iota
	// StrategySetCombination scores a token set: 1 when every required
	// token is present, 0.5 when at least one is, 0 otherwise.
	StrategySetCombination
	// StrategyTimeRamp ramps on days elapsed since a caller-supplied
	// date, reaching 1 at Days.
	StrategyTimeRamp
	// StrategyConstant always returns Value.
	StrategyConstant
)

// String returns the strategy name for logs.
func (k StrategyKind) String() string {
	switch k {
	case StrategyCappedRamp:
		return "capped_ramp"
	case StrategySetCombination:
		return "set_combination"
	case StrategyTimeRamp:
		return "time_ramp"
	case StrategyConstant:
		return "constant"
	default:
		return "unknown"
	}
}

// Strategy is a tagged progress function. Only the fields of the selected
// kind are read; evaluation is pure.
type Strategy struct {
	Kind     StrategyKind
	Cap      float64  // capped ramp
	Required []string // set combination
	Days     int      // time ramp
	Value    float64  // constant
}

// Input is the tracker snapshot a strategy evaluates against.
type Input struct {
	Sum    float64
	Tokens []string
}

// Magnitude is the scalar a ramp scores against: the unique-token count
// for string-set trackers, the accumulator for numeric ones.
func (in Input) Magnitude() float64 {
	if len(in.Tokens) > 0 {
		return float64(len(in.Tokens))
	}
	return in.Sum
}

// Context carries caller-supplied evaluation inputs that do not live in
// a tracker, such as the account creation date.
type Context struct {
	Now   time.Time
	Since time.Time
}

// Evaluate scores the strategy against a snapshot. The result is always
// within [0, 1] regardless of tracker state.
func (s Strategy) Evaluate(in Input, ctx Context) float64 {
	switch s.Kind {
	case StrategyCappedRamp:
		if s.Cap <= 0 {
			return 0
		}
		return clamp01(in.Magnitude() / s.Cap)
	case StrategySetCombination:
		if len(s.Required) == 0 {
			return 0
		}
		have := make(map[string]bool, len(in.Tokens))
		for _, tok := range in.Tokens {
			have[tok] = true
		}
		matched := 0
		for _, req := range s.Required {
			if have[req] {
				matched++
			}
		}
		switch {
		case matched == len(s.Required):
			return 1
		case matched > 0:
			return 0.5
		default:
			return 0
		}
	case StrategyTimeRamp:
		if s.Days <= 0 || ctx.Since.IsZero() || ctx.Now.Before(ctx.Since) {
			return 0
		}
		days := ctx.Now.Sub(ctx.Since).Hours() / 24
		return clamp01(days / float64(s.Days))
	case StrategyConstant:
		return clamp01(s.Value)
	default:
		return 0
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
