package main

import (
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cwbudde/algo-rtfx/dsp/dither"
	"github.com/cwbudde/algo-rtfx/engine"
	"github.com/cwbudde/algo-rtfx/internal/ui"
	timestats "github.com/cwbudde/algo-rtfx/stats/time"
)

// ProcessCmd runs a WAV file through the chain.
type ProcessCmd struct {
	ChainFlags `embed:""`

	Input  string `arg:"" type:"existingfile" help:"Input WAV file (16, 24 or 32 bit PCM, mono or stereo)."`
	Output string `arg:"" type:"path" help:"Output WAV file, written at the input bit depth."`

	Block       int    `default:"512" help:"Frames per processing block."`
	KeepLatency bool   `help:"Keep the denoiser delay instead of trimming it from the start."`
	Dither      string `default:"tpdf" enum:"none,rectangular,tpdf,triangular,shaped" help:"Dither applied when writing integer samples."`
	Seed        uint64 `help:"Dither seed for reproducible output. Zero picks a random seed."`
	Quiet       bool   `short:"q" help:"Do not print the summary."`
}

// Run executes the process command.
func (c *ProcessCmd) Run(g *Globals, log *logrus.Logger) error {
	kind, err := dither.ParseType(c.Dither)
	if err != nil {
		return err
	}

	pcm, err := readWAV(c.Input)
	if err != nil {
		return err
	}

	base, err := g.baseConfig()
	if err != nil {
		return err
	}

	cfg := c.apply(base)
	cfg.SampleRate = uint32(pcm.Format.SampleRate)
	cfg.Channels = pcm.Format.NumChannels
	cfg.MaxBlockSize = c.Block

	eng, err := engine.New(cfg, engine.WithLogger(log))
	if err != nil {
		return err
	}
	defer eng.Close()

	frames := len(pcm.Data) / pcm.Format.NumChannels

	log.WithFields(logrus.Fields{
		"function":  "ProcessCmd.Run",
		"input":     c.Input,
		"frames":    frames,
		"bit_depth": pcm.SourceBitDepth,
	}).Info("Processing file")

	start := time.Now()
	levels, err := newChainLevels(float64(cfg.SampleRate), cfg.Channels)
	if err != nil {
		return err
	}

	out, err := processPCM(eng, pcm, processOptions{
		blockFrames: c.Block,
		trim:        !c.KeepLatency,
		dither:      kind,
		seed:        c.Seed,
		levels:      levels,
	})
	if err != nil {
		return err
	}

	elapsed := time.Since(start)

	if err := writeWAV(c.Output, out); err != nil {
		return fmt.Errorf("write %s: %w", c.Output, err)
	}

	stats := eng.Poll()
	report := eng.Report()

	if c.Quiet {
		return nil
	}

	audioDur := time.Duration(float64(frames) / float64(cfg.SampleRate) * float64(time.Second))

	w := g.stdout
	ui.PrintTitle(w, "rtfx process")
	ui.PrintKeyValue(w, "Input", c.Input)
	ui.PrintKeyValue(w, "Output", c.Output)
	ui.PrintKeyValue(w, "Format", fmt.Sprintf("%d Hz, %d ch, %d bit, %s dither", cfg.SampleRate, cfg.Channels, pcm.SourceBitDepth, kind))
	ui.PrintKeyValue(w, "Duration", audioDur.Round(time.Millisecond))
	ui.PrintKeyValue(w, "Elapsed", elapsed.Round(time.Millisecond))

	if elapsed > 0 {
		ui.PrintKeyValue(w, "Speed", fmt.Sprintf("%.1fx realtime", audioDur.Seconds()/elapsed.Seconds()))
	}

	ui.PrintKeyValue(w, "Latency", fmt.Sprintf("%d samples (trimmed: %v)", eng.Latency(), !c.KeepLatency))
	ui.PrintKeyValue(w, "Blocks", stats.Blocks)
	ui.PrintKeyValue(w, "Limiting blocks", stats.OverloadBlocks)
	ui.PrintKeyValue(w, "Clipped samples", stats.ClippedSamples)
	ui.PrintKeyValue(w, "Feedback blocks", stats.FeedbackBlocks)
	ui.PrintKeyValue(w, "Non-finite blocks", stats.NaNBlocks)
	ui.PrintKeyValue(w, "Last block peak", fmt.Sprintf("%.3f", report.Peak))
	printLevels(w, "Input", levels.in.Result(), levels.inLoudness.Integrated())
	printLevels(w, "Output", levels.out.Result(), levels.outLoudness.Integrated())
	ui.PrintKeyValue(w, "Loudest block", fmt.Sprintf("rms %.1f dBFS, peak %.1f dBFS over %d samples",
		levels.loudest.RMS_dB, levels.loudest.Peak_dB, levels.loudest.Length))

	return nil
}

func printLevels(w io.Writer, label string, l timestats.Levels, lufs float64) {
	ui.PrintKeyValue(w, label+" level", fmt.Sprintf("peak %.1f dBFS, rms %.1f dBFS, crest %.1f dB, %.1f LUFS",
		l.Peak_dB, l.RMS_dB, l.CrestFactor_dB, lufs))
}
