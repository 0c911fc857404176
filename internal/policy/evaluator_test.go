package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"aprz.dev/aprz/internal/metrics"
)

func testDefs() []metrics.Def {
	return []metrics.Def{
		{Name: "community.stars"},
		{Name: "community.forks"},
	}
}

func testMetrics(stars, forks uint64) []metrics.Metric {
	starsV := metrics.UInt(stars)
	forksV := metrics.UInt(forks)
	defs := testDefs()
	return []metrics.Metric{
		{Def: &defs[0], Value: &starsV},
		{Def: &defs[1], Value: &forksV},
	}
}

func TestDenyTakesPrecedence(t *testing.T) {
	env, err := BuildEnv(testDefs())
	require.NoError(t, err)

	deny, err := NewExpression(env, "stars", "too few stars", "community.stars < 10")
	require.NoError(t, err)

	out, err := Evaluate([]*Expression{deny}, nil, nil, testMetrics(5, 0), time.Now())
	require.NoError(t, err)
	require.False(t, out.Accepted)
	require.Equal(t, []string{"stars: too few stars"}, out.Reasons)
}

func TestAcceptIfAllShortCircuitsOnFirstFalse(t *testing.T) {
	env, err := BuildEnv(testDefs())
	require.NoError(t, err)

	e1, err := NewExpression(env, "e1", "", "community.stars > 0")
	require.NoError(t, err)
	e2, err := NewExpression(env, "e2", "", "community.forks > 100")
	require.NoError(t, err)

	out, err := Evaluate(nil, nil, []*Expression{e1, e2}, testMetrics(5, 1), time.Now())
	require.NoError(t, err)
	require.False(t, out.Accepted)
	require.Equal(t, []string{"e2: community.forks > 100"}, out.Reasons)
}

func TestNoExpressionsDefined(t *testing.T) {
	env, err := BuildEnv(testDefs())
	require.NoError(t, err)
	_ = env

	out, err := Evaluate(nil, nil, nil, testMetrics(5, 1), time.Now())
	require.NoError(t, err)
	require.False(t, out.Accepted)
	require.Equal(t, []string{"No evaluation expressions defined"}, out.Reasons)
}

func TestAcceptIfAnyShortCircuits(t *testing.T) {
	env, err := BuildEnv(testDefs())
	require.NoError(t, err)

	e1, err := NewExpression(env, "popular", "", "community.stars > 1000")
	require.NoError(t, err)

	out, err := Evaluate(nil, []*Expression{e1}, nil, testMetrics(5000, 1), time.Now())
	require.NoError(t, err)
	require.True(t, out.Accepted)
	require.Equal(t, []string{"popular: community.stars > 1000"}, out.Reasons)
}
