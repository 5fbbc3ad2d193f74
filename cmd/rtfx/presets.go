package main

import (
	"encoding/json"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/cwbudde/algo-rtfx/dsp/equalizer"
	"github.com/cwbudde/algo-rtfx/internal/ui"
)

// PresetsCmd lists the preset catalog.
type PresetsCmd struct {
	Bands      int    `default:"10" help:"Resample the curves to this many bands."`
	SampleRate uint32 `default:"48000" help:"Sample rate used to place the band centres."`
	JSON       bool   `help:"Print the catalog as JSON."`
}

// Run executes the presets command.
func (c *PresetsCmd) Run(g *Globals) error {
	eq, err := equalizer.New(c.Bands, c.SampleRate)
	if err != nil {
		return err
	}

	presets := equalizer.Presets()
	for i := range presets {
		presets[i] = presets[i].Resample(c.Bands)
	}

	if c.JSON {
		enc := json.NewEncoder(g.stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(presets)
	}

	headers := make([]string, 0, c.Bands+1)
	headers = append(headers, "preset")

	for i := range c.Bands {
		headers = append(headers, ui.FormatFrequency(eq.BandFrequency(i)))
	}

	rows := make([][]string, 0, len(presets))

	for _, p := range presets {
		row := make([]string, 0, len(p.Gains)+1)
		row = append(row, p.Name)

		for _, g := range p.Gains {
			row = append(row, fmt.Sprintf("%+.1f", g))
		}

		rows = append(rows, row)
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(ui.KeyStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return ui.TitleStyle.MarginBottom(0).Padding(0, 1)
			case col == 0:
				return ui.ValueStyle.Padding(0, 1)
			default:
				return lipgloss.NewStyle().Padding(0, 1).Align(lipgloss.Right)
			}
		})

	ui.PrintTitle(g.stdout, "Equalizer presets (gain in dB)")
	fmt.Fprintln(g.stdout, t.Render())

	return nil
}
