package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/MakeNowJust/heredoc/v2"
	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cmd := &cli.Command{
		Name:    "nbweb",
		Usage:   "File-based notebook and wiki with a derived search index",
		Version: version,
		Description: heredoc.Doc(`
			nbweb indexes a directory of markdown and gallery files into a SQLite
			cache and serves rendered pages, search, todo lists, tags and
			cross-references over HTTP. The files stay the source of truth; the
			index can be deleted and rebuilt at any time.

			Without a subcommand the HTTP server is started; use "serve" for the
			--reset and --force options.
		`),
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "notebook",
				Aliases: []string{"n"},
				Usage:   "Notebook source directory (overrides the config file)",
				Sources: cli.EnvVars("NBWEB_NOTEBOOK"),
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			refreshCommand(),
			todoCommand(),
			searchCommand(),
			passwordCommand(),
			mcpCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
