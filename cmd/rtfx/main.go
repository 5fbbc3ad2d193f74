// Command rtfx runs the real-time EQ, noise reduction and safety chain on
// WAV files or a live audio device.
package main

import (
	"io"
	"os"

	"github.com/alecthomas/kong"
	"github.com/sirupsen/logrus"

	"github.com/cwbudde/algo-rtfx/internal/ui"
)

var version = "0.1.0"

// Globals are the flags shared by every command.
type Globals struct {
	LogLevel string          `help:"Log level." enum:"trace,debug,info,warn,error" default:"info" env:"RTFX_LOG_LEVEL"`
	LogJSON  bool            `help:"Log as JSON." env:"RTFX_LOG_JSON"`
	LogFile  string          `type:"path" help:"Write logs to this file instead of stderr."`
	Config   kong.ConfigFlag `short:"c" help:"JSON file with default flag values."`
	Chain    string          `type:"existingfile" help:"JSON engine configuration used as the base for chain flags." env:"RTFX_CHAIN"`

	stdout io.Writer
}

// CLI defines the command-line interface.
type CLI struct {
	Globals

	Version kong.VersionFlag `short:"v" help:"Show version information."`

	Process ProcessCmd `cmd:"" help:"Process a WAV file offline."`
	Live    LiveCmd    `cmd:"" help:"Process a live duplex audio device."`
	Presets PresetsCmd `cmd:"" help:"List the equalizer presets."`
	Info    InfoCmd    `cmd:"" help:"Show the engine configuration."`
}

func main() {
	cli := &CLI{Globals: Globals{stdout: os.Stdout}}

	ctx := kong.Parse(cli,
		kong.Name("rtfx"),
		kong.Description("Real-time equalizer, noise reduction and output safety"),
		kong.UsageOnError(),
		kong.Configuration(kong.JSON, "~/.config/rtfx/config.json", ".rtfx.json"),
		kong.Vars{"version": version},
	)

	logger, closer, err := newLogger(&cli.Globals)
	if err != nil {
		ui.PrintError(os.Stderr, err.Error())
		os.Exit(1)
	}

	err = ctx.Run(&cli.Globals, logger)

	if closer != nil {
		_ = closer.Close()
	}

	if err != nil {
		ui.PrintError(os.Stderr, err.Error())
		os.Exit(1)
	}
}

// newLogger builds the logger from the global flags. The returned closer
// is non-nil when logs go to a file.
func newLogger(g *Globals) (*logrus.Logger, io.Closer, error) {
	level, err := logrus.ParseLevel(g.LogLevel)
	if err != nil {
		return nil, nil, err
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetOutput(os.Stderr)

	if g.LogJSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	if g.LogFile == "" {
		return logger, nil, nil
	}

	f, err := os.OpenFile(g.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}

	logger.SetOutput(f)

	return logger, f, nil
}
