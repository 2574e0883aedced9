package log

import (
	"bytes"
	"os"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressRendersBar(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress("HG", 4, &buf, true)
	p.Increment()
	p.Increment()

	assert.Equal(t, 2, p.Current())
	assert.Contains(t, buf.String(), "2/4 (50.0%)")

	p.Finish("done")
	assert.Contains(t, buf.String(), "HG: done")
}

func TestProgressNonInteractiveWritesNothing(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress("HG", 20, &buf, false)
	for i := 0; i < 20; i++ {
		p.Increment()
	}
	assert.Empty(t, buf.String())
	assert.Equal(t, 10, p.lastDecile)
}

func TestStepLoggerIgnoresUnknownSteps(t *testing.T) {
	sl := NewStepLogger("backtest", []string{"load", "run"})
	sl.Start("load")
	sl.Start("bogus")
	sl.Start("run")
	sl.Finish()

	d := sl.Durations()
	assert.Len(t, d, 2)
	assert.GreaterOrEqual(t, int64(d["load"]), int64(0))
}

func TestSetup(t *testing.T) {
	require.NoError(t, Setup("debug", "json", os.Stderr))
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
	assert.Error(t, Setup("loud", "json", os.Stderr))
	require.NoError(t, Setup("info", "auto", os.Stderr))
}
