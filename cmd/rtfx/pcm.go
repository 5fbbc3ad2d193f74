package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/cwbudde/algo-rtfx/dsp/buffer"
	"github.com/cwbudde/algo-rtfx/dsp/dither"
	"github.com/cwbudde/algo-rtfx/engine"
	"github.com/cwbudde/algo-rtfx/measure/loudness"
	timestats "github.com/cwbudde/algo-rtfx/stats/time"
)

const wavFormatPCM = 1

// fullScale returns the magnitude of the most negative sample at bits.
func fullScale(bits int) float64 {
	return float64(int64(1) << (bits - 1))
}

func readWAV(path string) (*audio.IntBuffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%s: not a valid WAV file", path)
	}

	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	switch pcm.SourceBitDepth {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("%s: unsupported bit depth %d", path, pcm.SourceBitDepth)
	}

	if pcm.Format == nil || pcm.Format.NumChannels < 1 || pcm.Format.NumChannels > 2 {
		return nil, errors.New(path + ": only mono and stereo files are supported")
	}

	return pcm, nil
}

func writeWAV(path string, pcm *audio.IntBuffer) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	enc := wav.NewEncoder(f, pcm.Format.SampleRate, pcm.SourceBitDepth, pcm.Format.NumChannels, wavFormatPCM)

	if err := enc.Write(pcm); err != nil {
		_ = f.Close()
		return err
	}

	if err := enc.Close(); err != nil {
		_ = f.Close()
		return err
	}

	return f.Close()
}

// chainLevels accumulates sample levels and loudness of the signal
// entering and leaving the chain. loudest holds the output block channel
// with the highest RMS.
type chainLevels struct {
	in, out                 timestats.StreamingStats
	inLoudness, outLoudness *loudness.Meter
	loudest                 timestats.Levels
}

func newChainLevels(sampleRate float64, channels int) (*chainLevels, error) {
	in, err := loudness.NewMeter(sampleRate, channels)
	if err != nil {
		return nil, err
	}

	out, err := loudness.NewMeter(sampleRate, channels)
	if err != nil {
		return nil, err
	}

	return &chainLevels{inLoudness: in, outLoudness: out}, nil
}

func (l *chainLevels) addInput(chans [][]float64) {
	for _, c := range chans {
		l.in.Update(c)
	}

	l.inLoudness.ProcessPlanar(chans)
}

func (l *chainLevels) addOutput(chans [][]float64) {
	for _, c := range chans {
		l.out.Update(c)

		if m := timestats.Measure(c); m.RMS > l.loudest.RMS {
			l.loudest = m
		}
	}

	l.outLoudness.ProcessPlanar(chans)
}

// processOptions controls an offline run.
type processOptions struct {
	blockFrames int
	// trim flushes the engine latency with silence and cuts it from the
	// start, so the output lines up with the input.
	trim   bool
	dither dither.Type
	// seed makes the dither reproducible when non-zero.
	seed   uint64
	levels *chainLevels
}

// newQuantizers returns one quantizer per channel.
func newQuantizers(channels, bitDepth int, kind dither.Type, seed uint64) ([]*dither.Quantizer, error) {
	qs := make([]*dither.Quantizer, channels)

	for ch := range qs {
		var opts []dither.Option
		if seed != 0 {
			opts = append(opts, dither.WithSeed(seed+uint64(ch)))
		}

		q, err := dither.NewQuantizer(bitDepth, kind, opts...)
		if err != nil {
			return nil, err
		}

		qs[ch] = q
	}

	return qs, nil
}

// processPCM runs pcm through eng block by block and quantizes the result
// back to the source bit depth.
func processPCM(eng *engine.Engine, pcm *audio.IntBuffer, opt processOptions) (*audio.IntBuffer, error) {
	nch := pcm.Format.NumChannels
	frames := len(pcm.Data) / nch
	scale := fullScale(pcm.SourceBitDepth)

	quantizers, err := newQuantizers(nch, pcm.SourceBitDepth, opt.dither, opt.seed)
	if err != nil {
		return nil, err
	}

	latency := 0
	if opt.trim {
		latency = eng.Latency()
	}

	out := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: nch, SampleRate: pcm.Format.SampleRate},
		SourceBitDepth: pcm.SourceBitDepth,
		Data:           make([]int, frames*nch),
	}

	pool := buffer.NewPool()
	total := frames + latency
	levels := opt.levels

	for pos := 0; pos < total; pos += opt.blockFrames {
		k := min(opt.blockFrames, total-pos)
		b := pool.Get(nch, k)

		valid := min(k, max(frames-pos, 0))

		var views [2][]float64

		for ch := range nch {
			dst := b.Channel(ch)
			for i := range valid {
				dst[i] = float64(pcm.Data[(pos+i)*nch+ch]) / scale
			}

			views[ch] = dst[:valid]
		}

		if levels != nil && valid > 0 {
			levels.addInput(views[:nch])
		}

		if nch == 1 {
			eng.Process(b.Channel(0), b.Channel(0))
		} else {
			eng.ProcessStereo(b.Channel(0), b.Channel(1), b.Channel(0), b.Channel(1))
		}

		lo := min(max(latency-pos, 0), k)
		hi := min(k, frames+latency-pos)

		if hi > lo {
			first := (pos + lo - latency) * nch

			for ch := range nch {
				views[ch] = b.Channel(ch)[lo:hi]
				quantizers[ch].QuantizeStrided(out.Data[first+ch:], nch, views[ch])
			}

			if levels != nil {
				levels.addOutput(views[:nch])
			}
		}

		pool.Put(b)
	}

	return out, nil
}
