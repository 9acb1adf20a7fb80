package evaluation

import (
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/redmoon-ch/unchain/pkg/models"
)

// EvaluateConstraint reports whether the context satisfies the constraint.
// A missing context value makes the operator result false; the inverted flag
// is applied afterwards, so an inverted constraint on an absent field
// matches. Unknown operators and unparsable typed values fail closed.
func EvaluateConstraint(c models.Constraint, ctx *Context) bool {
	value, ok := ctx.Field(c.ContextName)

	result := false
	if ok {
		result = operatorResult(c, value, ctx)
	}

	if c.Inverted {
		return !result
	}
	return result
}

// EvaluateConstraints reports whether the context satisfies every constraint.
// An empty list is satisfied.
func EvaluateConstraints(constraints []models.Constraint, ctx *Context) bool {
	for _, c := range constraints {
		if !EvaluateConstraint(c, ctx) {
			return false
		}
	}
	return true
}

func operatorResult(c models.Constraint, value string, ctx *Context) bool {
	switch c.Operator {
	case models.OperatorIn:
		return containsValue(c, value)
	case models.OperatorNotIn:
		return !containsValue(c, value)
	case models.OperatorStrStartsWith:
		return matchAny(c, value, strings.HasPrefix)
	case models.OperatorStrEndsWith:
		return matchAny(c, value, strings.HasSuffix)
	case models.OperatorStrContains:
		return matchAny(c, value, strings.Contains)
	case models.OperatorNumEq:
		return compareNumber(c, value, func(a, b float64) bool { return a == b })
	case models.OperatorNumGt:
		return compareNumber(c, value, func(a, b float64) bool { return a > b })
	case models.OperatorNumGte:
		return compareNumber(c, value, func(a, b float64) bool { return a >= b })
	case models.OperatorNumLt:
		return compareNumber(c, value, func(a, b float64) bool { return a < b })
	case models.OperatorNumLte:
		return compareNumber(c, value, func(a, b float64) bool { return a <= b })
	case models.OperatorDateAfter:
		return compareDate(c, value, func(a, b time.Time) bool { return a.After(b) })
	case models.OperatorDateBefore:
		return compareDate(c, value, func(a, b time.Time) bool { return a.Before(b) })
	case models.OperatorSemverEq:
		return compareSemver(c, value, func(cmp int) bool { return cmp == 0 })
	case models.OperatorSemverGt:
		return compareSemver(c, value, func(cmp int) bool { return cmp > 0 })
	case models.OperatorSemverLt:
		return compareSemver(c, value, func(cmp int) bool { return cmp < 0 })
	case models.OperatorInTimeWindow:
		return inTimeWindow(c, ctx.Now())
	}
	return false
}

func containsValue(c models.Constraint, value string) bool {
	for _, v := range c.Values {
		if c.CaseInsensitive {
			if strings.EqualFold(v, value) {
				return true
			}
		} else if v == value {
			return true
		}
	}
	return false
}

func matchAny(c models.Constraint, value string, match func(s, substr string) bool) bool {
	if c.CaseInsensitive {
		value = strings.ToLower(value)
	}
	for _, v := range c.Values {
		if c.CaseInsensitive {
			v = strings.ToLower(v)
		}
		if match(value, v) {
			return true
		}
	}
	return false
}

func compareNumber(c models.Constraint, value string, cmp func(a, b float64) bool) bool {
	if len(c.Values) == 0 {
		return false
	}
	a, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return false
	}
	b, err := strconv.ParseFloat(strings.TrimSpace(c.Values[0]), 64)
	if err != nil {
		return false
	}
	return cmp(a, b)
}

func compareDate(c models.Constraint, value string, cmp func(a, b time.Time) bool) bool {
	if len(c.Values) == 0 {
		return false
	}
	a, err := parseTimestamp(value)
	if err != nil {
		return false
	}
	b, err := parseTimestamp(c.Values[0])
	if err != nil {
		return false
	}
	return cmp(a, b)
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func compareSemver(c models.Constraint, value string, cmp func(int) bool) bool {
	if len(c.Values) == 0 {
		return false
	}
	a, err := semver.StrictNewVersion(strings.TrimSpace(value))
	if err != nil {
		return false
	}
	b, err := semver.StrictNewVersion(strings.TrimSpace(c.Values[0]))
	if err != nil {
		return false
	}
	return cmp(a.Compare(b))
}

// inTimeWindow matches a daily window "HH:mm-HH:mm" with an optional
// "|timezone" suffix (IANA name, default UTC). Windows where the start is
// after the end wrap around midnight.
func inTimeWindow(c models.Constraint, now time.Time) bool {
	if len(c.Values) == 0 {
		return false
	}

	spec := strings.TrimSpace(c.Values[0])
	loc := time.UTC
	if idx := strings.Index(spec, "|"); idx >= 0 {
		l, err := time.LoadLocation(strings.TrimSpace(spec[idx+1:]))
		if err != nil {
			return false
		}
		loc = l
		spec = spec[:idx]
	}

	parts := strings.Split(spec, "-")
	if len(parts) != 2 {
		return false
	}

	start, err := parseDayMinutes(parts[0])
	if err != nil {
		return false
	}
	end, err := parseDayMinutes(parts[1])
	if err != nil {
		return false
	}

	local := now.In(loc)
	minutes := local.Hour()*60 + local.Minute()

	if start <= end {
		return minutes >= start && minutes <= end
	}
	// wraps midnight
	return minutes >= start || minutes <= end
}

func parseDayMinutes(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}
