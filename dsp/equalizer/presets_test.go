package equalizer

import (
	"errors"
	"slices"
	"testing"

	"github.com/cwbudde/algo-rtfx/dsp/core"
)

func TestPresetCatalog(t *testing.T) {
	names := PresetNames()
	if len(names) != 10 || names[0] != "flat" {
		t.Fatalf("PresetNames() = %v", names)
	}

	for _, p := range Presets() {
		if len(p.Gains) != 10 {
			t.Errorf("preset %q has %d gains, want 10", p.Name, len(p.Gains))
		}

		for _, g := range p.Gains {
			if g < MinGainDB || g > MaxGainDB {
				t.Errorf("preset %q gain %g out of range", p.Name, g)
			}
		}
	}
}

func TestLookupPreset(t *testing.T) {
	p, err := LookupPreset("bass-boost")
	if err != nil {
		t.Fatalf("LookupPreset() error = %v", err)
	}

	p.Gains[0] = -99

	again, _ := LookupPreset("bass-boost")
	if again.Gains[0] == -99 {
		t.Error("LookupPreset returned the catalog slice instead of a copy")
	}

	if _, err := LookupPreset("nope"); !errors.Is(err, core.ErrInvalidArgument) {
		t.Errorf("LookupPreset(nope) error = %v", err)
	}
}

func TestPresetResample(t *testing.T) {
	rock, _ := LookupPreset("rock")

	tests := []struct {
		name  string
		in    Preset
		bands int
		want  []float64
	}{
		{"identity", rock, 10, rock.Gains},
		{"empty curve", Preset{}, 3, []float64{0, 0, 0}},
		{"zero bands", rock, 0, []float64{}},
		{"single gain", Preset{Gains: []float64{2}}, 3, []float64{2, 2, 2}},
		{"single band takes the middle", rock, 1, []float64{(-1 + -1) / 2.0}},
		{"upsample", Preset{Gains: []float64{0, 4, 8}}, 5, []float64{0, 2, 4, 6, 8}},
		{"downsample", Preset{Gains: []float64{0, 1, 2, 3, 4}}, 3, []float64{0, 2, 4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.Resample(tt.bands)
			if !slices.Equal(got.Gains, tt.want) {
				t.Errorf("Resample(%d) = %v, want %v", tt.bands, got.Gains, tt.want)
			}
		})
	}
}

func TestPresetResampleEndpoints(t *testing.T) {
	rock, _ := LookupPreset("rock")
	got := rock.Resample(19)

	if got.Name != "rock" || len(got.Gains) != 19 {
		t.Fatalf("Resample(19) = %+v", got)
	}

	if got.Gains[0] != rock.Gains[0] || got.Gains[18] != rock.Gains[9] {
		t.Errorf("endpoints = %g, %g", got.Gains[0], got.Gains[18])
	}

	for i := range 9 {
		if got.Gains[2*i] != rock.Gains[i] {
			t.Errorf("gain %d = %g, want %g", 2*i, got.Gains[2*i], rock.Gains[i])
		}

		mid := (rock.Gains[i] + rock.Gains[i+1]) / 2
		if got.Gains[2*i+1] != mid {
			t.Errorf("gain %d = %g, want %g", 2*i+1, got.Gains[2*i+1], mid)
		}
	}
}
