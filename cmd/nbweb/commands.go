package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/urfave/cli/v3"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"github.com/starford/nbweb/internal"
	"github.com/starford/nbweb/internal/mcpserver"
	"github.com/starford/nbweb/internal/models"
	"github.com/starford/nbweb/internal/noteservice"
	pkgconfig "github.com/starford/nbweb/pkg/config"
)

var reindexFlags = []cli.Flag{
	&cli.BoolFlag{
		Name:  "reset",
		Usage: "Drop the index and rebuild it from the files",
	},
	&cli.BoolFlag{
		Name:  "force",
		Usage: "Parse every file even if it looks unchanged",
	},
}

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	read, err := pkgconfig.LoadOptional(configPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if !read {
		slog.Debug("config file not found, using defaults", slog.String("path", configPath))
	}
	if src := cmd.String("notebook"); src != "" {
		cfg.Notebook.Source = src
	}
	return cfg, nil
}

// openService loads the config and opens the notebook with a logger on
// stderr, keeping stdout free for command output.
func openService(cmd *cli.Command) (*noteservice.Service, func() error, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	logger := internal.NewLogger(os.Stderr, cfg.App.LogLevel)
	slog.SetDefault(logger)
	return internal.Open(cfg, logger, nil)
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
		internal.WithReset(cmd.Bool("reset")),
		internal.WithForce(cmd.Bool("force")),
	}

	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Start the HTTP server (default)",
		Flags:  reindexFlags,
		Action: serve,
	}
}

func refreshCommand() *cli.Command {
	return &cli.Command{
		Name:  "refresh",
		Usage: "Bring the index in step with the notebook and exit",
		Description: heredoc.Doc(`
			Walks the notebook, parses new and changed files and removes records
			for files that are gone. --reset drops the whole index first.
		`),
		Flags: reindexFlags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			svc, closeDB, err := openService(cmd)
			if err != nil {
				return err
			}
			defer closeDB()

			parsed, err := svc.Refresh(ctx, cmd.Bool("force"), cmd.Bool("reset"))
			if err != nil {
				return err
			}
			total, err := svc.Syncer().DB().Count(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.Root().Writer, "parsed %d, indexed %d\n", parsed, total)
			return nil
		},
	}
}

func todoCommand() *cli.Command {
	return &cli.Command{
		Name:      "todo",
		Usage:     "Print open todo items grouped by priority, context and project",
		ArgsUsage: "[dir]",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			svc, closeDB, err := openService(cmd)
			if err != nil {
				return err
			}
			defer closeDB()

			if _, err := svc.Refresh(ctx, false, false); err != nil {
				return err
			}
			board, err := svc.Todos(ctx, cmd.Args().First(), models.EditorViewer)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.Root().Writer, board.Text())
			return nil
		},
	}
}

func searchCommand() *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search the notebook",
		ArgsUsage: "<query>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			query := strings.Join(cmd.Args().Slice(), " ")
			if strings.TrimSpace(query) == "" {
				return errors.New("search: query is required")
			}
			svc, closeDB, err := openService(cmd)
			if err != nil {
				return err
			}
			defer closeDB()

			if _, err := svc.Refresh(ctx, false, false); err != nil {
				return err
			}
			res, err := svc.Search(ctx, query, models.EditorViewer)
			if err != nil {
				return err
			}
			w := cmd.Root().Writer
			if res.Message != "" {
				fmt.Fprintln(w, res.Message)
				return nil
			}
			for _, h := range res.Hits {
				fmt.Fprintf(w, "%6.2f  %s  %s\n", h.Score, h.Path, h.Title)
			}
			return nil
		},
	}
}

func passwordCommand() *cli.Command {
	return &cli.Command{
		Name:  "password",
		Usage: "Hash an editor token for auth.editor_token_hash",
		Description: heredoc.Doc(`
			Reads a token from the terminal (without echo) or from the first
			line of stdin and prints its bcrypt hash.
		`),
		Action: func(_ context.Context, cmd *cli.Command) error {
			token, err := readToken()
			if err != nil {
				return err
			}
			if token == "" {
				return errors.New("password: empty token")
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
			if err != nil {
				return fmt.Errorf("password: %w", err)
			}
			fmt.Fprintln(cmd.Root().Writer, string(hash))
			return nil
		},
	}
}

func readToken() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("password: read stdin: %w", err)
		}
		return strings.TrimSpace(line), nil
	}

	fmt.Fprint(os.Stderr, "Editor token: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("password: %w", err)
	}
	fmt.Fprint(os.Stderr, "Repeat: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("password: %w", err)
	}
	if string(first) != string(second) {
		return "", errors.New("password: tokens do not match")
	}
	return string(first), nil
}

func mcpCommand() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve notebook tools over the Model Context Protocol on stdio",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			svc, closeDB, err := openService(cmd)
			if err != nil {
				return err
			}
			defer closeDB()

			if _, err := svc.Refresh(ctx, false, false); err != nil {
				slog.Warn("initial reconcile failed", slog.String("error", err.Error()))
			}
			return mcpserver.New(svc, version).ServeStdio()
		},
	}
}
