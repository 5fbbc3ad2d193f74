package main

import (
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/cwbudde/algo-rtfx/engine"
)

// InfoCmd prints the effective engine configuration.
type InfoCmd struct {
	ChainFlags `embed:""`

	SampleRate uint32 `default:"48000" help:"Sample rate in Hz."`
	Channels   int    `default:"2" help:"Channel count (1 or 2)."`
	JSON       bool   `help:"Print the configuration as JSON, usable with --chain."`
}

// Run executes the info command.
func (c *InfoCmd) Run(g *Globals, log *logrus.Logger) error {
	base, err := g.baseConfig()
	if err != nil {
		return err
	}

	cfg := c.apply(base)
	cfg.SampleRate = c.SampleRate
	cfg.Channels = c.Channels

	eng, err := engine.New(cfg, engine.WithLogger(log))
	if err != nil {
		return err
	}
	defer eng.Close()

	if c.JSON {
		enc := json.NewEncoder(g.stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(eng.Config())
	}

	_, err = fmt.Fprint(g.stdout, eng.Summary())

	return err
}
