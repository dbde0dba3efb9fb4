package commands

import (
	"context"
	"fmt"
)

// CleanCmd implements the 'clean' command.
type CleanCmd struct{}

func (c *CleanCmd) Run(g *Global, root *CLI) error {
	cfg, err := root.loadConfig(g)
	if err != nil {
		return err
	}
	store, err := openCache(cfg, root.Logger())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.Clear(context.Background()); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(root.stdout(), "Cache %s cleared\n", cfg.Cache.Path)
	return nil
}
