package policy

import (
	"strings"
	"time"

	"github.com/google/cel-go/cel"

	"aprz.dev/aprz/internal/metrics"
)

// BuildEnv declares one CEL variable per top-level prefix found in defs
// plus the synthetic "now" timestamp. A metric named "usage.downloads"
// becomes a member of a map variable "usage"; a metric with no dot is
// declared as a flat top-level variable. All variables are declared
// cel.DynType since the underlying metric set is only known at runtime.
func BuildEnv(defs []metrics.Def) (*cel.Env, error) {
	seenPrefix := make(map[string]bool)
	seenFlat := make(map[string]bool)

	var opts []cel.EnvOption
	for _, d := range defs {
		if prefix, _, ok := strings.Cut(d.Name, "."); ok {
			if !seenPrefix[prefix] {
				seenPrefix[prefix] = true
				opts = append(opts, cel.Variable(prefix, cel.MapType(cel.StringType, cel.DynType)))
			}
			continue
		}
		if !seenFlat[d.Name] {
			seenFlat[d.Name] = true
			opts = append(opts, cel.Variable(d.Name, cel.DynType))
		}
	}
	opts = append(opts, cel.Variable("now", cel.TimestampType))

	return cel.NewEnv(opts...)
}

// buildActivation converts a flattened metric list into the CEL
// variable bindings BuildEnv declared: dotted names group under their
// prefix map, flat names bind directly, and "now" is added last.
func buildActivation(ms []metrics.Metric, now time.Time) map[string]any {
	vars := make(map[string]any)
	nested := make(map[string]map[string]any)

	for _, m := range ms {
		var v any
		if m.Value != nil {
			v = toCELValue(*m.Value)
		}

		name := m.Name()
		if prefix, suffix, ok := strings.Cut(name, "."); ok {
			grp, exists := nested[prefix]
			if !exists {
				grp = make(map[string]any)
				nested[prefix] = grp
			}
			grp[suffix] = v
			continue
		}
		vars[name] = v
	}

	for prefix, grp := range nested {
		vars[prefix] = grp
	}
	vars["now"] = now

	return vars
}

func toCELValue(v metrics.Value) any {
	switch v.Kind {
	case metrics.KindUInt:
		return v.UInt
	case metrics.KindFloat:
		return v.Float
	case metrics.KindBoolean:
		return v.Bool
	case metrics.KindString:
		return v.String
	case metrics.KindDateTime:
		return v.DateTime
	case metrics.KindList:
		out := make([]any, len(v.List))
		for i, e := range v.List {
			out[i] = toCELValue(e)
		}
		return out
	default:
		return nil
	}
}
