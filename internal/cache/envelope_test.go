package cache

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widget struct {
	Name string `json:"name"`
}

func TestRoundTrip(t *testing.T) {
	now := time.Now()
	c := New(t.TempDir(), time.Hour)
	c.Now = func() time.Time { return now }

	require.NoError(t, Save(c, "widgets/a.json", widget{Name: "a"}))

	res := Load[widget](c, "widgets/a.json")
	require.Equal(t, TagData, res.Tag)
	assert.Equal(t, "a", res.Value.Name)
}

func TestExpiry(t *testing.T) {
	start := time.Now()
	c := New(t.TempDir(), time.Hour)
	c.Now = func() time.Time { return start }
	require.NoError(t, Save(c, "k.json", widget{Name: "x"}))

	c.Now = func() time.Time { return start.Add(2 * time.Hour) }
	res := Load[widget](c, "k.json")
	assert.Equal(t, TagMiss, res.Tag)
}

func TestClockSkewDoesNotExpire(t *testing.T) {
	start := time.Now()
	c := New(t.TempDir(), time.Hour)
	c.Now = func() time.Time { return start }
	require.NoError(t, Save(c, "k.json", widget{Name: "x"}))

	// clock moved backward: age is negative, must still be fresh.
	c.Now = func() time.Time { return start.Add(-10 * time.Minute) }
	res := Load[widget](c, "k.json")
	require.Equal(t, TagData, res.Tag)
	assert.Equal(t, "x", res.Value.Name)
}

func TestNegativeCache(t *testing.T) {
	now := time.Now()
	c := New(t.TempDir(), time.Hour)
	c.Now = func() time.Time { return now }

	require.NoError(t, c.SaveNoData("k.json", "not found"))
	res := Load[widget](c, "k.json")
	require.Equal(t, TagNoData, res.Tag)
	assert.Equal(t, "not found", res.Reason)
}

func TestIgnoreModeAlwaysMisses(t *testing.T) {
	now := time.Now()
	c := New(t.TempDir(), time.Hour)
	c.Now = func() time.Time { return now }
	c.Ignore = true

	require.NoError(t, Save(c, "k.json", widget{Name: "x"}))
	res := Load[widget](c, "k.json")
	assert.Equal(t, TagMiss, res.Tag)
}

func TestCorruptEnvelopeIsMiss(t *testing.T) {
	dir := t.TempDir()
	c := New(dir, time.Hour)

	require.NoError(t, os.WriteFile(dir+"/k.json", []byte("not json"), 0o600))
	res := Load[widget](c, "k.json")
	assert.Equal(t, TagMiss, res.Tag)
}
