package macro

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sawpanic/regimeblend/internal/regime/chop"
	"github.com/sawpanic/regimeblend/internal/regime/crisis"
	"github.com/sawpanic/regimeblend/internal/regime/vol"
	"github.com/sawpanic/regimeblend/internal/series"
)

func d(i int) time.Time { return time.Date(2023, 2, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i) }

func TestResolvePrecedence(t *testing.T) {
	crises := []crisis.Regime{crisis.Normal, crisis.Stress, crisis.PreCrisis, crisis.Crisis, ""}
	chops := []chop.Regime{chop.Normal, chop.MildChop, chop.HighChop, ""}

	for _, c := range crises {
		for _, ch := range chops {
			got := Resolve(c, ch)
			switch {
			case c == crisis.Crisis || c == crisis.PreCrisis:
				assert.Equal(t, Crisis, got, "%s/%s", c, ch)
			case ch == chop.MildChop || ch == chop.HighChop:
				assert.Equal(t, Chop, got, "%s/%s", c, ch)
			default:
				assert.Equal(t, Normal, got, "%s/%s", c, ch)
			}
		}
	}
}

func TestMergeOuterJoinDefaultsMissingToNormal(t *testing.T) {
	cr := series.Labels{Dates: []time.Time{d(0), d(1), d(3)}, Values: []string{"STRESS", "CRISIS", ""}}
	ch := series.Labels{Dates: []time.Time{d(1), d(2), d(3)}, Values: []string{"HIGH_CHOP", "MILD_CHOP", "HIGH_CHOP"}}

	days, err := Merge(cr, ch)
	require.NoError(t, err)
	require.Len(t, days, 4)

	assert.Equal(t, Normal, days[0].State)
	assert.Equal(t, chop.Normal, days[0].Chop)
	assert.Equal(t, Crisis, days[1].State)
	assert.Equal(t, crisis.Normal, days[2].Crisis)
	assert.Equal(t, Chop, days[2].State)
	assert.Equal(t, Chop, days[3].State)
}

func TestMergeIsIdempotent(t *testing.T) {
	cr := series.Labels{Dates: []time.Time{d(2), d(0), d(5)}, Values: []string{"PRE_CRISIS", "NORMAL", "STRESS"}}
	ch := series.Labels{Dates: []time.Time{d(0), d(4)}, Values: []string{"MILD_CHOP", "HIGH_CHOP"}}

	first, err := Merge(cr, ch)
	require.NoError(t, err)
	second, err := Merge(cr, ch)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestMergeAcceptsLabelSpellings(t *testing.T) {
	cr := series.Labels{Dates: []time.Time{d(0), d(1)}, Values: []string{"Pre-Crisis", "Crisis"}}
	ch := series.Labels{Dates: []time.Time{d(0), d(2)}, Values: []string{"Normal", "mild-chop"}}

	days, err := Merge(cr, ch)
	require.NoError(t, err)
	require.Len(t, days, 3)

	assert.Equal(t, crisis.PreCrisis, days[0].Crisis)
	assert.Equal(t, Crisis, days[0].State)
	assert.Equal(t, Crisis, days[1].State)
	assert.Equal(t, chop.MildChop, days[2].Chop)
	assert.Equal(t, Chop, days[2].State)
}

func TestMergeRejectsUnknownLabels(t *testing.T) {
	tests := []struct {
		name   string
		crisis []string
		chop   []string
	}{
		{"crisis", []string{"PANIC"}, []string{"NORMAL"}},
		{"chop", []string{"NORMAL"}, []string{"Trend"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cr := series.Labels{Name: "crisis", Dates: []time.Time{d(0)}, Values: tt.crisis}
			ch := series.Labels{Name: "chop", Dates: []time.Time{d(0)}, Values: tt.chop}
			_, err := Merge(cr, ch)
			assert.Error(t, err)
		})
	}
}

func TestCombineAndDistribution(t *testing.T) {
	assert.Equal(t, "HIGH_CRISIS", Combine(vol.High, Crisis))
	assert.Equal(t, "LOW_NORMAL", Combine(vol.Calm, Normal))
	assert.Equal(t, "MEDIUM_CHOP", Combine(vol.Rising, Chop))
	assert.Equal(t, "MEDIUM_NORMAL", Combine(vol.Undefined, Normal))

	dist := Distribution([]string{"b", "a", "b", "b"})
	require.Len(t, dist, 2)
	assert.Equal(t, Share{Label: "a", Days: 1, Pct: 25}, dist[0])
	assert.Equal(t, Share{Label: "b", Days: 3, Pct: 75}, dist[1])
}

func TestParseState(t *testing.T) {
	s, ok := ParseState("crisis")
	assert.True(t, ok)
	assert.Equal(t, Crisis, s)
	_, ok = ParseState("panic")
	assert.False(t, ok)
	assert.True(t, Chop.Defensive())
	assert.False(t, Normal.Defensive())
}
