package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/swiftie-vault/eastereggs"
	"github.com/swiftie-vault/eastereggs/db/sqlite3"
	"github.com/urfave/cli/v3"
)

func main() {
	ctx := context.Background()

	err := godotenv.Load()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.ErrorContext(ctx, "failed to load .env file", "error", err)
		os.Exit(1)
	}

	err = rootCommand().Run(ctx, os.Args)
	if err != nil {
		slog.ErrorContext(ctx, "failed to run command", "error", err)
		os.Exit(1)
	}
}

func rootCommand() *cli.Command {
	return &cli.Command{
		Name:  "eastereggs",
		Usage: "Taylor Swift easter egg board",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "debug, info, warn or error",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "text or json",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			serveCommand(),
			migrateCommand(),
			backfillCommand(),
		},
		Action: runServe,
	}
}

func setupLogger(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	opts := &slog.HandlerOptions{Level: eastereggs.ParseLogLevel(cmd.String("log-level"))}

	var handler slog.Handler

	switch cmd.String("log-format") {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		return ctx, fmt.Errorf("unknown log format %q", cmd.String("log-format"))
	}

	slog.SetDefault(slog.New(handler))

	return ctx, nil
}

func dsnFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "dsn",
		Usage:   "sqlite data source name",
		Value:   eastereggs.DefaultDSN,
		Sources: cli.EnvVars("DB_DSN"),
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run migrations and serve the HTTP API",
		Flags: []cli.Flag{
			dsnFlag(),
			&cli.StringFlag{
				Name:    "port",
				Usage:   "port to listen on",
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "host",
				Usage:   "host to listen on",
				Sources: cli.EnvVars("HOST"),
			},
		},
		Action: runServe,
	}
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := eastereggs.ConfigFromEnv()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if cmd.IsSet("dsn") {
		cfg.DSN = cmd.String("dsn")
	}

	if cmd.IsSet("port") {
		cfg.Server.Port = cmd.String("port")
	}

	if cmd.IsSet("host") {
		cfg.Server.Host = cmd.String("host")
	}

	app, err := eastereggs.NewApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}

	err = app.Run(ctx)
	if err != nil {
		return fmt.Errorf("failed to run app: %w", err)
	}

	return nil
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply or roll back database migrations",
		Commands: []*cli.Command{
			{
				Name:  "up",
				Usage: "Apply all pending migrations",
				Flags: []cli.Flag{dsnFlag()},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withDB(ctx, cmd.String("dsn"), sqlite3.MigrateUp)
				},
			},
			{
				Name:  "down",
				Usage: "Roll back all migrations",
				Flags: []cli.Flag{dsnFlag()},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withDB(ctx, cmd.String("dsn"), sqlite3.MigrateDown)
				},
			},
		},
	}
}

func backfillCommand() *cli.Command {
	return &cli.Command{
		Name:  "backfill",
		Usage: "Move legacy reply markers into the parent column and canonicalize image fields",
		Flags: []cli.Flag{
			dsnFlag(),
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "report what would change without writing",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withDB(ctx, cmd.String("dsn"), func(ctx context.Context, db *sql.DB) error {
				err := sqlite3.MigrateUp(ctx, db)
				if err != nil {
					return err
				}

				report, err := sqlite3.Backfill(ctx, db, cmd.Bool("dry-run"))
				if err != nil {
					return err
				}

				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")

				return encoder.Encode(report)
			})
		},
	}
}

func withDB(ctx context.Context, dsn string, fn func(ctx context.Context, db *sql.DB) error) error {
	db, err := sqlite3.NewDB(ctx, dsn)
	if err != nil {
		return fmt.Errorf("failed to create database connection: %w", err)
	}

	defer func() {
		err := db.Close()
		if err != nil {
			slog.ErrorContext(ctx, "failed to close database", "error", err)
		}
	}()

	return fn(ctx, db)
}
