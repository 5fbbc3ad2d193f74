package ui

import (
	"math"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/cwbudde/algo-rtfx/dsp/core"
	"github.com/cwbudde/algo-rtfx/dsp/effects/dynamics"
	"github.com/cwbudde/algo-rtfx/dsp/equalizer"
	"github.com/cwbudde/algo-rtfx/engine"
)

const (
	// meterFloorDB is the bottom of every level meter.
	meterFloorDB = -60.0

	// peakHoldDecayDB is how far the peak-hold marker falls per second.
	peakHoldDecayDB = 12.0

	masterStepDB = 1.0
)

// Source is the processing side the meter observes and controls.
// *engine.Engine satisfies it.
type Source interface {
	Report() dynamics.Report
	Poll() engine.Stats
	Latency() int
	Equalizer() *equalizer.Equalizer
	SetPreset(name string) error
}

// Model is the bubbletea model of the live meter.
type Model struct {
	src      Source
	interval time.Duration

	presets []string
	preset  int

	Report   dynamics.Report
	Totals   engine.Stats
	PeakHold float64

	Width   int
	Err     error
	Stopped bool
}

// NewModel returns a meter polling src every interval.
func NewModel(src Source, interval time.Duration) Model {
	return Model{
		src:      src,
		interval: interval,
		presets:  equalizer.PresetNames(),
		preset:   -1,
		PeakHold: meterFloorDB,
	}
}

// Init starts the refresh ticker.
func (m Model) Init() tea.Cmd {
	return tick(m.interval)
}

// Update handles key presses, window resizes and refresh ticks.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg.String())

	case tea.WindowSizeMsg:
		m.Width = msg.Width

	case TickMsg:
		m.refresh()
		return m, tick(m.interval)

	case StoppedMsg:
		m.Stopped = true
		m.Err = msg.Err

		return m, tea.Quit
	}

	return m, nil
}

func (m Model) handleKey(key string) (tea.Model, tea.Cmd) {
	eq := m.src.Equalizer()

	switch key {
	case "q", "esc", "ctrl+c":
		return m, tea.Quit
	case "b":
		eq.SetBypass(!eq.Bypassed())
	case "p":
		if len(m.presets) > 0 {
			m.preset = (m.preset + 1) % len(m.presets)
			m.Err = m.src.SetPreset(m.presets[m.preset])
		}
	case "r":
		eq.ResetAllBands()
		m.preset = -1
	case "+", "=":
		eq.SetMasterGain(eq.MasterGain() + masterStepDB)
	case "-":
		eq.SetMasterGain(eq.MasterGain() - masterStepDB)
	}

	return m, nil
}

func (m *Model) refresh() {
	m.Report = m.src.Report()
	m.Totals = addStats(m.Totals, m.src.Poll())

	decay := peakHoldDecayDB * m.interval.Seconds()
	m.PeakHold = math.Max(levelDB(m.Report.Peak), m.PeakHold-decay)
}

// Preset returns the name of the preset last selected from the meter, or
// "" when none is active.
func (m Model) Preset() string {
	if m.preset < 0 {
		return ""
	}

	return m.presets[m.preset]
}

func addStats(a, b engine.Stats) engine.Stats {
	return engine.Stats{
		Blocks:          a.Blocks + b.Blocks,
		Frames:          a.Frames + b.Frames,
		DeferredUpdates: a.DeferredUpdates + b.DeferredUpdates,
		NaNBlocks:       a.NaNBlocks + b.NaNBlocks,
		OverloadBlocks:  a.OverloadBlocks + b.OverloadBlocks,
		FeedbackBlocks:  a.FeedbackBlocks + b.FeedbackBlocks,
		ClippedSamples:  a.ClippedSamples + b.ClippedSamples,
		DroppedReports:  a.DroppedReports + b.DroppedReports,
	}
}

// levelDB converts a linear level to dB, clamped to the meter floor.
func levelDB(x float64) float64 {
	if x <= 0 || math.IsNaN(x) {
		return meterFloorDB
	}

	return math.Max(core.LinearToDB(x), meterFloorDB)
}
