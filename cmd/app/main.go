package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/cascade/internal"
	pkgconfig "github.com/starford/cascade/pkg/config"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadIfPresent(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func runBuild(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunBuild(ctx, internal.WithConfig(cfg))
}

func runWatch(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.Run(ctx, internal.WithConfig(cfg))
}

func runMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.RunMCP(ctx, internal.WithConfig(cfg))
}

func newRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "cascade",
		Usage: "Merge a stylesheet @import tree into one self-contained CSS/SCSS/Sass artifact",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "cascade.yaml",
				Value:       "cascade.yaml",
				Sources:     cli.EnvVars("CASCADE_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "build",
				Usage:  "Run a single build and write the bundle",
				Action: runBuild,
			},
			{
				Name:   "watch",
				Usage:  "Rebuild on file changes, with live reload and a preview server",
				Action: runWatch,
			},
			{
				Name:   "mcp",
				Usage:  "Serve the bundler tools over the Model Context Protocol (stdio)",
				Action: runMCP,
			},
		},
	}
}

func main() {
	if err := newRootCommand().Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
