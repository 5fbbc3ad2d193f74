package equalizer

import (
	"fmt"
	"slices"

	"github.com/cwbudde/algo-rtfx/dsp/core"
)

// Preset is a named gain curve. It carries no filter state.
type Preset struct {
	Name  string    `json:"name"`
	Gains []float64 `json:"gains"`
}

// Resample maps the curve onto bandCount bands by linear interpolation
// across band index. The first and last gains map to the first and last
// band.
func (p Preset) Resample(bandCount int) Preset {
	out := Preset{Name: p.Name, Gains: make([]float64, max(bandCount, 0))}

	n := len(p.Gains)
	switch {
	case n == 0 || bandCount <= 0:
		return out
	case n == 1:
		for i := range out.Gains {
			out.Gains[i] = p.Gains[0]
		}

		return out
	case bandCount == 1:
		out.Gains[0] = p.gainAt(float64(n-1) / 2)
		return out
	}

	step := float64(n-1) / float64(bandCount-1)
	for i := range out.Gains {
		out.Gains[i] = p.gainAt(float64(i) * step)
	}

	return out
}

func (p Preset) gainAt(pos float64) float64 {
	i := int(pos)
	if i >= len(p.Gains)-1 {
		return p.Gains[len(p.Gains)-1]
	}

	frac := pos - float64(i)

	return p.Gains[i] + frac*(p.Gains[i+1]-p.Gains[i])
}

// Built-in curves for 10 octave bands centred at 31.25 Hz ... 16 kHz.
var builtinPresets = []Preset{
	{Name: "flat", Gains: []float64{0, 0, 0, 0, 0, 0, 0, 0, 0, 0}},
	{Name: "rock", Gains: []float64{5, 4, 3, 1, -1, -1, 1, 3, 4, 5}},
	{Name: "pop", Gains: []float64{-1, 1, 3, 4, 4, 3, 1, 0, -1, -1}},
	{Name: "jazz", Gains: []float64{3, 2, 1, 2, -1, -1, 0, 1, 2, 3}},
	{Name: "classical", Gains: []float64{4, 3, 2, 1, 0, 0, 0, 1, 2, 3}},
	{Name: "electronic", Gains: []float64{6, 5, 2, 0, -2, 0, 1, 3, 5, 6}},
	{Name: "vocal-boost", Gains: []float64{-2, -2, -1, 1, 4, 5, 4, 2, 0, -1}},
	{Name: "bass-boost", Gains: []float64{8, 7, 5, 3, 1, 0, 0, 0, 0, 0}},
	{Name: "treble-boost", Gains: []float64{0, 0, 0, 0, 0, 1, 3, 5, 7, 8}},
	{Name: "loudness", Gains: []float64{6, 4, 2, 0, -1, -1, 0, 2, 4, 6}},
}

// Presets returns a copy of the built-in catalog.
func Presets() []Preset {
	out := make([]Preset, len(builtinPresets))
	for i, p := range builtinPresets {
		out[i] = Preset{Name: p.Name, Gains: slices.Clone(p.Gains)}
	}

	return out
}

// PresetNames returns the catalog names in catalog order.
func PresetNames() []string {
	names := make([]string, len(builtinPresets))
	for i, p := range builtinPresets {
		names[i] = p.Name
	}

	return names
}

// LookupPreset returns a copy of the named built-in preset.
func LookupPreset(name string) (Preset, error) {
	for _, p := range builtinPresets {
		if p.Name == name {
			return Preset{Name: p.Name, Gains: slices.Clone(p.Gains)}, nil
		}
	}

	return Preset{}, fmt.Errorf("%w: unknown preset %q", core.ErrInvalidArgument, name)
}
