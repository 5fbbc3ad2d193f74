package ui

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/cwbudde/algo-rtfx/dsp/equalizer"
)

const (
	meterWidth   = 40
	eqBarWidth   = 12
	minViewWidth = 60
)

// View renders the meter.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render("rtfx live"))
	b.WriteString("\n")
	b.WriteString(renderMeters(m))
	b.WriteString("\n")
	b.WriteString(renderEqualizer(m))
	b.WriteString("\n")
	b.WriteString(renderCounters(m))
	b.WriteString("\n")

	if m.Err != nil {
		b.WriteString(ErrorStyle.Render("Error: " + m.Err.Error()))
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render("q quit  b bypass  p next preset  r flat  +/- master gain"))

	return b.String()
}

func boxWidth(m Model) int {
	return max(m.Width-2, minViewWidth)
}

func renderMeters(m Model) string {
	r := m.Report

	var b strings.Builder

	fmt.Fprintf(&b, "Peak  %s %6.1f dBFS  hold %6.1f\n", meterBar(levelDB(r.Peak), meterWidth), levelDB(r.Peak), m.PeakHold)
	fmt.Fprintf(&b, "RMS   %s %6.1f dBFS\n", meterBar(levelDB(r.RMS), meterWidth), levelDB(r.RMS))
	fmt.Fprintf(&b, "FB    %s %6.2f", scoreBar(r.FeedbackScore, meterWidth), r.FeedbackScore)

	flags := []string{}
	if r.OverloadActive {
		flags = append(flags, lipgloss.NewStyle().Foreground(hotColor).Bold(true).Render("LIMIT"))
	}

	if r.FeedbackSuspected {
		flags = append(flags, lipgloss.NewStyle().Foreground(hotColor).Bold(true).Render("FEEDBACK"))
	}

	if r.HasNaN {
		flags = append(flags, lipgloss.NewStyle().Foreground(warnColor).Render("NaN"))
	}

	if len(flags) > 0 {
		b.WriteString("  " + strings.Join(flags, " "))
	}

	fmt.Fprintf(&b, "\nDC %+.4f  clipped %d  latency %d samples", r.DCOffset, r.ClippedSamples, m.src.Latency())

	return boxStyle.Width(boxWidth(m)).Render(b.String())
}

func renderEqualizer(m Model) string {
	eq := m.src.Equalizer()

	var b strings.Builder

	state := "active"
	if eq.Bypassed() {
		state = "bypassed"
	}

	preset := m.Preset()
	if preset == "" {
		preset = "custom"
	}

	fmt.Fprintf(&b, "EQ %s  preset %s  master %+.1f dB\n", state, preset, eq.MasterGain())

	for _, band := range eq.Bands() {
		fmt.Fprintf(&b, "%8s %s %+5.1f dB\n", FormatFrequency(band.Frequency), gainBar(band, eqBarWidth), band.GainDB)
	}

	return boxStyle.Width(boxWidth(m)).Render(strings.TrimRight(b.String(), "\n"))
}

func renderCounters(m Model) string {
	t := m.Totals

	return KeyStyle.Render(fmt.Sprintf("blocks %d  overload %d  feedback %d  nan %d  deferred %d  dropped %d",
		t.Blocks, t.OverloadBlocks, t.FeedbackBlocks, t.NaNBlocks, t.DeferredUpdates, t.DroppedReports))
}

// meterBar renders a level in dB as a bar from the meter floor to 0 dBFS.
func meterBar(db float64, width int) string {
	frac := (db - meterFloorDB) / -meterFloorDB
	filled := int(max(0, min(1, frac)) * float64(width))

	color := okColor

	switch {
	case db > -3:
		color = hotColor
	case db > -12:
		color = warnColor
	}

	bar := lipgloss.NewStyle().Foreground(color).Render(strings.Repeat("█", filled))

	return bar + strings.Repeat("░", width-filled)
}

func scoreBar(score float64, width int) string {
	filled := int(max(0, min(1, score)) * float64(width))
	return strings.Repeat("▮", filled) + strings.Repeat("·", width-filled)
}

// gainBar draws a band gain as a bar growing left (cut) or right (boost)
// from a centre mark.
func gainBar(band equalizer.BandConfig, width int) string {
	half := width / 2
	n := int(float64(half) * min(1, math.Abs(band.GainDB)/equalizer.MaxGainDB))

	left := strings.Repeat(" ", half)
	right := strings.Repeat(" ", half)

	if band.GainDB < 0 {
		left = strings.Repeat(" ", half-n) + strings.Repeat("◀", n)
	} else {
		right = strings.Repeat("▶", n) + strings.Repeat(" ", half-n)
	}

	mark := "|"
	if !band.Enabled {
		mark = "x"
	}

	return left + mark + right
}

// FormatFrequency renders a band centre compactly, e.g. "125" or "2.0k".
func FormatFrequency(hz float64) string {
	if hz >= 1000 {
		return fmt.Sprintf("%.1fk", hz/1000)
	}

	return fmt.Sprintf("%.0f", hz)
}
