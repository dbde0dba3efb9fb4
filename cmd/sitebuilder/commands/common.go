// Package commands implements the sitebuilder command line.
package commands

import (
	"io"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/sitebuilder/internal/config"
)

// Global carries state shared by all subcommands.
type Global struct {
	Logger *slog.Logger
}

// CLI definition and global flags.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"sitebuilder.yaml"`
	Verbose bool             `short:"v" help:"Enable verbose logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Build   BuildCmd   `cmd:"" help:"Render the website once, writing only what changed"`
	Watch   WatchCmd   `cmd:"" help:"Render the website and keep it up to date"`
	Inspect InspectCmd `cmd:"" help:"Show the nodes and recorded dependencies of the last run"`
	History HistoryCmd `cmd:"" help:"Show recent runs from the journal"`
	Clean   CleanCmd   `cmd:"" help:"Delete the cache so the next build renders everything"`
	Init    InitCmd    `cmd:"" help:"Initialize a new configuration file"`

	logger *slog.Logger
	out    io.Writer
}

// AfterApply runs after flag parsing; setup logging once.
// nolint:unparam // AfterApply currently never returns an error.
func (c *CLI) AfterApply() error {
	level := slog.LevelInfo
	if c.Verbose {
		level = slog.LevelDebug
	}
	c.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(c.logger)
	return nil
}

// Logger returns the logger configured by the global flags.
func (c *CLI) Logger() *slog.Logger {
	if c.logger == nil {
		return slog.Default()
	}
	return c.logger
}

func (c *CLI) stdout() io.Writer {
	if c.out == nil {
		return os.Stdout
	}
	return c.out
}

// loadConfig loads the configuration and reconfigures logging from it. The
// verbose flag wins over the configured level.
func (c *CLI) loadConfig(g *Global) (*config.Config, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return nil, err
	}
	level := cfg.Logging.Level.SlogLevel()
	if c.Verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler
	if cfg.Logging.Format == config.LogFormatJSON {
		h = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		h = slog.NewTextHandler(os.Stderr, opts)
	}
	c.logger = slog.New(h)
	slog.SetDefault(c.logger)
	if g != nil {
		g.Logger = c.logger
	}
	for _, w := range cfg.Warnings() {
		c.logger.Warn("Configuration normalized", slog.String("note", w))
	}
	return cfg, nil
}
