package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/cortexai/coursebot/internal/server"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serveExample = heredoc.Doc(`
	# Serve the API and the frontend on the configured port
	coursebot serve

	# Verify the model connection before accepting traffic
	coursebot serve --check-llm
`)

type ServeOptions struct {
	CheckLLM bool
	NoSeed   bool

	load configLoader
}

func NewCmdServe(load configLoader) *cobra.Command {
	o := &ServeOptions{load: load}

	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Run the HTTP API",
		Example: serveExample,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.Run(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&o.CheckLLM, "check-llm", false, "Send a test request to the model at startup")
	cmd.Flags().BoolVar(&o.NoSeed, "no-seed", false, "Skip ingesting the seed file at startup")
	return cmd
}

func (o *ServeOptions) Run(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := o.load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := server.Build(ctx, cfg)
	if err != nil {
		return err
	}

	if !o.NoSeed {
		if err := app.Seed(ctx); err != nil {
			log.Error().Err(err).Str("file", cfg.SeedFile).Msg("failed to load seed courses")
		}
	}
	if o.CheckLLM {
		// A failed check is reported but the server still starts.
		_ = app.CheckModel(ctx)
	}

	return server.New(ctx, app).Run(ctx)
}
