package log

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Progress renders a single-line progress bar for a fold over a known number
// of dates. When the writer is not a terminal it logs every tenth instead.
type Progress struct {
	mu          sync.Mutex
	name        string
	total       int
	current     int
	startTime   time.Time
	out         io.Writer
	interactive bool
	lastDecile  int
}

// NewProgress starts tracking total steps.
func NewProgress(name string, total int, out io.Writer, interactive bool) *Progress {
	return &Progress{
		name:        name,
		total:       total,
		startTime:   time.Now(),
		out:         out,
		interactive: interactive,
	}
}

// Increment advances by one step.
func (p *Progress) Increment() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current++
	p.render()
}

// Current returns the completed step count.
func (p *Progress) Current() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *Progress) render() {
	if p.total <= 0 {
		return
	}
	if !p.interactive {
		decile := p.current * 10 / p.total
		if decile > p.lastDecile {
			p.lastDecile = decile
			log.Info().Str("run", p.name).Int("done", p.current).Int("total", p.total).Msgf("%d%%", decile*10)
		}
		return
	}

	const barWidth = 20
	filled := barWidth * p.current / p.total
	var b strings.Builder
	b.WriteString("\r\033[K")
	b.WriteString(p.name)
	b.WriteString(" [")
	b.WriteString(strings.Repeat("█", filled))
	b.WriteString(strings.Repeat("░", barWidth-filled))
	fmt.Fprintf(&b, "] %d/%d (%.1f%%)", p.current, p.total, 100*float64(p.current)/float64(p.total))
	if eta := p.eta(); eta > 0 {
		fmt.Fprintf(&b, " ETA: %v", eta.Round(time.Second))
	}
	fmt.Fprint(p.out, b.String())
}

func (p *Progress) eta() time.Duration {
	if p.current == 0 {
		return 0
	}
	elapsed := time.Since(p.startTime)
	perStep := elapsed / time.Duration(p.current)
	return perStep * time.Duration(p.total-p.current)
}

// Finish closes the line with the elapsed time.
func (p *Progress) Finish(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	d := time.Since(p.startTime).Round(time.Millisecond)
	if p.interactive {
		fmt.Fprintf(p.out, "\r\033[K%s: %s (%v)\n", p.name, message, d)
		return
	}
	log.Info().Str("run", p.name).Dur("elapsed", d).Msg(message)
}

// StepLogger times the named stages of a command.
type StepLogger struct {
	name      string
	steps     []string
	current   int
	startTime time.Time
	stepStart time.Time
	durations []time.Duration
}

// NewStepLogger prepares the ordered stage list.
func NewStepLogger(name string, steps []string) *StepLogger {
	now := time.Now()
	return &StepLogger{
		name:      name,
		steps:     steps,
		current:   -1,
		startTime: now,
		stepStart: now,
		durations: make([]time.Duration, len(steps)),
	}
}

// Start closes the running stage and opens step. Unknown steps are logged
// and ignored.
func (sl *StepLogger) Start(step string) {
	idx := -1
	for i, s := range sl.steps {
		if s == step {
			idx = i
			break
		}
	}
	if idx == -1 {
		log.Warn().Str("step", step).Msg("Unknown pipeline step")
		return
	}
	sl.closeCurrent()
	sl.current = idx
	sl.stepStart = time.Now()
	log.Info().
		Str("step", step).
		Int("step_number", idx+1).
		Int("total_steps", len(sl.steps)).
		Msg("Starting pipeline step")
}

func (sl *StepLogger) closeCurrent() {
	if sl.current < 0 {
		return
	}
	sl.durations[sl.current] = time.Since(sl.stepStart)
	log.Debug().Str("step", sl.steps[sl.current]).Dur("duration", sl.durations[sl.current]).Msg("Pipeline step completed")
}

// Finish logs the timing summary.
func (sl *StepLogger) Finish() {
	sl.closeCurrent()
	total := time.Since(sl.startTime)
	log.Info().Str("command", sl.name).Dur("total_duration", total).Msg("Pipeline completed")
	for i, step := range sl.steps {
		log.Debug().Str("step", step).Dur("duration", sl.durations[i]).Msgf("  %d. %s", i+1, step)
	}
}

// Fail logs the stage that failed.
func (sl *StepLogger) Fail(err error) {
	step := "unknown"
	if sl.current >= 0 {
		step = sl.steps[sl.current]
	}
	log.Error().Err(err).Str("failed_step", step).Int("total_steps", len(sl.steps)).Msg("Pipeline failed")
}

// Durations returns the per-step timings recorded so far.
func (sl *StepLogger) Durations() map[string]time.Duration {
	out := make(map[string]time.Duration, len(sl.steps))
	for i, s := range sl.steps {
		out[s] = sl.durations[i]
	}
	return out
}
