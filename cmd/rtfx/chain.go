package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cwbudde/algo-rtfx/engine"
)

// ChainFlags override individual engine settings. Unset pointer flags keep
// the value from the base configuration.
type ChainFlags struct {
	Preset     string   `help:"Equalizer preset (see 'rtfx presets')." placeholder:"NAME"`
	Bands      *int     `help:"Equalizer band count."`
	MasterGain *float64 `help:"Equalizer master gain in dB." placeholder:"DB"`
	NoEQ       bool     `name:"no-eq" help:"Bypass the equalizer."`

	GateThreshold *float64 `help:"Noise gate threshold in dB." placeholder:"DB"`
	GateRatio     *float64 `help:"Noise gate expansion ratio."`
	NoGate        bool     `help:"Disable the noise gate."`

	DenoiseBeta *float64 `help:"Spectral over-subtraction factor."`
	FFTSize     *int     `name:"fft-size" help:"Denoiser frame size, a power of two. The hop is a quarter of it."`
	NoDenoise   bool     `help:"Disable spectral subtraction. The denoiser delay remains."`

	LimiterThreshold *float64 `help:"Limiter ceiling in dB." placeholder:"DB"`
	NoLimiter        bool     `help:"Disable the safety limiter."`
}

// apply returns base with the flags applied.
func (f ChainFlags) apply(base engine.Config) engine.Config {
	cfg := base

	if f.Preset != "" {
		cfg.Preset = f.Preset
	}

	if f.Bands != nil {
		cfg.Bands = *f.Bands
		cfg.Equalizer = nil
	}

	if f.MasterGain != nil {
		cfg.MasterGainDB = *f.MasterGain
	}

	cfg.EqualizerBypass = cfg.EqualizerBypass || f.NoEQ

	if f.GateThreshold != nil {
		cfg.Gate.ThresholdDB = *f.GateThreshold
	}

	if f.GateRatio != nil {
		cfg.Gate.Ratio = *f.GateRatio
	}

	if f.NoGate {
		cfg.Gate.Enabled = false
	}

	if f.DenoiseBeta != nil {
		cfg.Denoiser.Beta = *f.DenoiseBeta
	}

	if f.FFTSize != nil {
		cfg.Denoiser.FFTSize = *f.FFTSize
		cfg.Denoiser.HopSize = max(*f.FFTSize/4, 1)
	}

	if f.NoDenoise {
		cfg.Denoiser.Enabled = false
	}

	if f.LimiterThreshold != nil {
		cfg.Limiter.LimiterThresholdDB = *f.LimiterThreshold
	}

	if f.NoLimiter {
		cfg.Limiter.Enabled = false
	}

	return cfg
}

// baseConfig returns the --chain configuration, or the engine defaults.
// Fields missing from the file keep their default values.
func (g *Globals) baseConfig() (engine.Config, error) {
	cfg := engine.DefaultConfig()
	if g.Chain == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(g.Chain)
	if err != nil {
		return cfg, err
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse chain %s: %w", g.Chain, err)
	}

	return cfg, nil
}
