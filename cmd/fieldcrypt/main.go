// Package main provides the fieldcrypt command line tool.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/cmd/fieldcrypt/commands"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/config"
	"github.com/root-sector-ltd-and-co-kg/document-field-encryption/field"
)

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	schemaFlag := &cli.StringFlag{
		Name:     "schema",
		Aliases:  []string{"s"},
		Required: true,
		Usage:    "Path to the JSON model definition",
	}
	inFlag := &cli.StringFlag{
		Name:    "in",
		Aliases: []string{"i"},
		Value:   "-",
		Usage:   "Path to the JSON input, - for stdin",
	}

	transform := func(phase field.Phase) cli.ActionFunc {
		return func(ctx context.Context, cmd *cli.Command) error {
			m, err := commands.LoadModel(cmd.String("schema"))
			if err != nil {
				return err
			}
			prim, err := commands.NewPrimitive(ctx, cfg)
			if err != nil {
				return err
			}
			in, err := commands.OpenInput(cmd.String("in"))
			if err != nil {
				return err
			}
			defer in.Close()
			return commands.RunTransform(ctx, prim, m, phase, nil, in, os.Stdout)
		}
	}

	cmd := &cli.Command{
		Name:    "fieldcrypt",
		Usage:   "Schema-driven field encryption for MongoDB documents",
		Version: "1.0.0",
		Commands: []*cli.Command{
			{
				Name:   "encrypt",
				Usage:  "Apply the save transform to a JSON document",
				Flags:  []cli.Flag{schemaFlag, inFlag},
				Action: transform(field.PhaseSave),
			},
			{
				Name:   "decrypt",
				Usage:  "Apply the read transform to a JSON document",
				Flags:  []cli.Flag{schemaFlag, inFlag},
				Action: transform(field.PhaseRead),
			},
			{
				Name:  "rewrite",
				Usage: "Rewrite a JSON filter or update so it matches encrypted fields",
				Flags: []cli.Flag{schemaFlag, inFlag},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					m, err := commands.LoadModel(cmd.String("schema"))
					if err != nil {
						return err
					}
					prim, err := commands.NewPrimitive(ctx, cfg)
					if err != nil {
						return err
					}
					in, err := commands.OpenInput(cmd.String("in"))
					if err != nil {
						return err
					}
					defer in.Close()
					return commands.RunRewrite(ctx, prim, m, nil, in, os.Stdout)
				},
			},
			{
				Name:  "paths",
				Usage: "List the encryption-enabled paths of a model",
				Flags: []cli.Flag{schemaFlag},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					m, err := commands.LoadModel(cmd.String("schema"))
					if err != nil {
						return err
					}
					return commands.RunPaths(m, os.Stdout)
				},
			},
			{
				Name:  "genkey",
				Usage: "Generate a field key, wrapped by the KMS provider when one is configured",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "store",
						Aliases: []string{"n"},
						Usage:   "Save the wrapped key in the key collection under this name",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunGenKey(ctx, cfg, cmd.String("store"), os.Stdout)
				},
			},
			{
				Name:  "encrypt-credentials",
				Usage: "Encrypt the KMS_CREDENTIALS_* values with KMS_CREDENTIALS_KEY",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunEncryptCredentials(cfg, os.Stdout)
				},
			},
			{
				Name:  "config",
				Usage: "Show the encryption configuration with secrets masked",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunShowConfig(cfg, os.Stdout)
				},
			},
			{
				Name:  "batch",
				Usage: "Encrypt plaintext fields already stored in the model's collection",
				Flags: []cli.Flag{
					schemaFlag,
					&cli.BoolFlag{
						Name:  "verify",
						Usage: "Only report documents that still hold plaintext",
					},
					&cli.BoolFlag{
						Name:    "dry-run",
						Aliases: []string{"d"},
						Usage:   "Count documents that would change without writing them",
					},
					&cli.StringFlag{
						Name:  "key",
						Usage: "Name of the stored wrapped key to use when none is configured",
					},
					&cli.StringFlag{
						Name:  "task-id",
						Usage: "Task id, generated when empty",
					},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					m, err := commands.LoadModel(cmd.String("schema"))
					if err != nil {
						return err
					}
					return commands.RunBatch(ctx, cfg, m, commands.BatchOptions{
						Verify:  cmd.Bool("verify"),
						DryRun:  cmd.Bool("dry-run"),
						KeyName: cmd.String("key"),
						TaskID:  cmd.String("task-id"),
					}, os.Stdout)
				},
			},
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		log.Error().Err(err).Msg("fieldcrypt failed")
		stop()
		os.Exit(1)
	}
}

func setupLogging(level string) {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		log.Warn().Str("level", level).Msg("Unknown log level, using info")
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
