package policy

import (
	"time"

	"aprz.dev/aprz/internal/metrics"
)

// Outcome is the result of evaluating a package against a policy.
type Outcome struct {
	Accepted bool
	Reasons  []string
}

// Evaluate runs the three ordered expression lists against ms per the
// precedence in spec.md §4.I:
//  1. any deny_if_any true  -> denied, reason is that expression.
//  2. any accept_if_any true -> accepted, reason is that expression.
//  3. all three lists empty  -> denied, "No evaluation expressions defined".
//  4. else every accept_if_all must be true; the first false one denies
//     with its own reason, and if all pass the reasons are every
//     accept_if_all expression, in order.
func Evaluate(denyIfAny, acceptIfAny, acceptIfAll []*Expression, ms []metrics.Metric, now time.Time) (Outcome, error) {
	vars := buildActivation(ms, now)

	for _, e := range denyIfAny {
		ok, err := e.evaluate(vars)
		if err != nil {
			return Outcome{}, err
		}
		if ok {
			return Outcome{Accepted: false, Reasons: []string{e.reason()}}, nil
		}
	}

	for _, e := range acceptIfAny {
		ok, err := e.evaluate(vars)
		if err != nil {
			return Outcome{}, err
		}
		if ok {
			return Outcome{Accepted: true, Reasons: []string{e.reason()}}, nil
		}
	}

	if len(denyIfAny) == 0 && len(acceptIfAny) == 0 && len(acceptIfAll) == 0 {
		return Outcome{Accepted: false, Reasons: []string{"No evaluation expressions defined"}}, nil
	}

	reasons := make([]string, 0, len(acceptIfAll))
	for _, e := range acceptIfAll {
		ok, err := e.evaluate(vars)
		if err != nil {
			return Outcome{}, err
		}
		if !ok {
			return Outcome{Accepted: false, Reasons: []string{e.reason()}}, nil
		}
		reasons = append(reasons, e.reason())
	}

	return Outcome{Accepted: true, Reasons: reasons}, nil
}
