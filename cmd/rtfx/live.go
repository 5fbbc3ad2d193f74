package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"
	"unsafe"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gen2brain/malgo"
	"github.com/sirupsen/logrus"

	"github.com/cwbudde/algo-rtfx/dsp/dither"
	"github.com/cwbudde/algo-rtfx/engine"
	"github.com/cwbudde/algo-rtfx/internal/ui"
)

const (
	meterInterval   = 50 * time.Millisecond
	pollInterval    = time.Second
	recorderBacklog = 64
)

// LiveCmd processes a duplex device: capture goes through the chain and
// out to playback.
type LiveCmd struct {
	ChainFlags `embed:""`

	SampleRate uint32        `default:"48000" help:"Device sample rate in Hz."`
	Channels   int           `default:"1" help:"Channel count (1 or 2)."`
	Period     uint32        `default:"256" help:"Device period in frames."`
	Duration   time.Duration `help:"Stop after this long. Zero runs until quit."`
	NoUI       bool          `name:"no-ui" help:"Log statistics instead of showing the meter."`
	Record     string        `type:"path" help:"Also write the processed stream to this 16-bit WAV file."`
	Dither     string        `default:"tpdf" enum:"none,rectangular,tpdf,triangular,shaped" help:"Dither used by --record."`
	MemLock    bool          `help:"Lock the engine scratch memory into RAM."`
}

// Run executes the live command.
func (c *LiveCmd) Run(g *Globals, log *logrus.Logger) error {
	base, err := g.baseConfig()
	if err != nil {
		return err
	}

	cfg := c.apply(base)
	cfg.SampleRate = c.SampleRate
	cfg.Channels = c.Channels
	cfg.MaxBlockSize = max(cfg.MaxBlockSize, int(c.Period))

	// The meter owns the terminal.
	if !c.NoUI && g.LogFile == "" {
		log.SetOutput(io.Discard)
	}

	eng, err := engine.New(cfg, engine.WithLogger(log), engine.WithMemoryLock(c.MemLock))
	if err != nil {
		return err
	}
	defer eng.Close()

	var rec *recorder
	if c.Record != "" {
		kind, err := dither.ParseType(c.Dither)
		if err != nil {
			return err
		}

		rec, err = newRecorder(c.Record, int(c.SampleRate), c.Channels, int(c.Period)*c.Channels, recorderBacklog, kind)
		if err != nil {
			return err
		}
	}

	dev, mctx, err := openDuplex(c, log, eng, rec)
	if err != nil {
		if rec != nil {
			_ = rec.Close()
		}

		return err
	}

	log.WithFields(logrus.Fields{
		"function":    "LiveCmd.Run",
		"sample_rate": c.SampleRate,
		"channels":    c.Channels,
		"period":      c.Period,
		"latency":     eng.Latency(),
	}).Info("Audio device started")

	runErr := c.wait(eng, log)

	_ = dev.Stop()
	dev.Uninit()
	_ = mctx.Uninit()
	mctx.Free()

	var recErr error
	if rec != nil {
		recErr = rec.Close()
		if d := rec.Dropped(); d > 0 {
			log.WithFields(logrus.Fields{
				"function": "LiveCmd.Run",
				"dropped":  d,
				"written":  rec.Written(),
			}).Warn("Recorder dropped samples")
		}
	}

	stats := eng.Stats()
	ui.PrintTitle(g.stdout, "rtfx live")
	ui.PrintKeyValue(g.stdout, "Blocks", stats.Blocks)
	ui.PrintKeyValue(g.stdout, "Frames", stats.Frames)
	ui.PrintKeyValue(g.stdout, "Limiting blocks", stats.OverloadBlocks)
	ui.PrintKeyValue(g.stdout, "Feedback blocks", stats.FeedbackBlocks)
	ui.PrintKeyValue(g.stdout, "Non-finite blocks", stats.NaNBlocks)

	if rec != nil {
		ui.PrintKeyValue(g.stdout, "Recorded", c.Record)
	}

	return errors.Join(runErr, recErr)
}

// wait blocks until the meter quits, the duration elapses or a signal
// arrives.
func (c *LiveCmd) wait(eng *engine.Engine, log *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if c.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Duration)
		defer cancel()
	}

	if c.NoUI {
		ticker := time.NewTicker(pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				s := eng.Poll()
				r := eng.Report()
				log.WithFields(logrus.Fields{
					"function": "LiveCmd.wait",
					"blocks":   s.Blocks,
					"peak":     r.Peak,
					"rms":      r.RMS,
				}).Info("Stats")
			}
		}
	}

	p := tea.NewProgram(ui.NewModel(eng, meterInterval), tea.WithAltScreen())

	go func() {
		<-ctx.Done()
		p.Send(ui.StoppedMsg{})
	}()

	_, err := p.Run()

	return err
}

// openDuplex starts a float32 duplex device whose callback runs eng in
// place on the playback buffer.
func openDuplex(c *LiveCmd, log *logrus.Logger, eng *engine.Engine, rec *recorder) (*malgo.Device, *malgo.AllocatedContext, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(msg string) {
		log.WithField("function", "malgo").Debug(msg)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init audio context: %w", err)
	}

	devCfg := malgo.DefaultDeviceConfig(malgo.Duplex)
	devCfg.Capture.Format = malgo.FormatF32
	devCfg.Capture.Channels = uint32(c.Channels)
	devCfg.Playback.Format = malgo.FormatF32
	devCfg.Playback.Channels = uint32(c.Channels)
	devCfg.SampleRate = c.SampleRate
	devCfg.PeriodSizeInFrames = c.Period

	channels := c.Channels

	callbacks := malgo.DeviceCallbacks{
		Data: func(out, in []byte, frames uint32) {
			n := int(frames) * channels
			copied := copy(out, in[:min(len(in), n*4)])
			clear(out[copied:])

			buf := float32View(out, n)
			eng.ProcessInterleaved32(buf)

			if rec != nil {
				rec.Push(buf)
			}
		},
	}

	dev, err := malgo.InitDevice(mctx.Context, devCfg, callbacks)
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()

		return nil, nil, fmt.Errorf("init audio device: %w", err)
	}

	if err := dev.Start(); err != nil {
		dev.Uninit()
		_ = mctx.Uninit()
		mctx.Free()

		return nil, nil, fmt.Errorf("start audio device: %w", err)
	}

	return dev, mctx, nil
}

// float32View reinterprets the first n float32 samples of a device buffer
// without copying.
func float32View(b []byte, n int) []float32 {
	n = min(n, len(b)/4)
	if n <= 0 {
		return nil
	}

	return unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), n)
}
