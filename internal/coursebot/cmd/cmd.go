// Package cmd implements the coursebot command line.
package cmd

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/MakeNowJust/heredoc/v2"
	"github.com/cortexai/coursebot/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// IOStreams are the standard streams a command writes to.
type IOStreams struct {
	In     io.Reader
	Out    io.Writer
	ErrOut io.Writer
}

// NewDefaultCoursebotCommand creates the `coursebot` command with the process streams.
func NewDefaultCoursebotCommand() *cobra.Command {
	return NewCoursebotCommand(IOStreams{In: os.Stdin, Out: os.Stdout, ErrOut: os.Stderr})
}

func NewCoursebotCommand(streams IOStreams) *cobra.Command {
	var logLevel string

	cmds := &cobra.Command{
		Use:   "coursebot",
		Short: "coursebot answers questions about course materials",
		Long: heredoc.Doc(`
			coursebot answers questions about a catalog of courses.

			A language model decides per question whether to search lesson
			content or fetch a course outline, then answers with the sources
			it used. Configuration comes from the environment, an optional
			.env file, and the JSON file named by COURSEBOT_CONFIG.
		`),
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, _ []string) {
			_ = cmd.Help()
		},
	}
	cmds.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override LOG_LEVEL (debug, info, warn, error)")

	load := func() (*config.Config, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		if logLevel != "" {
			cfg.LogLevel = logLevel
		}
		setupLogging(cfg, streams.ErrOut)
		return cfg, nil
	}

	cmds.SetIn(streams.In)
	cmds.SetOut(streams.Out)
	cmds.SetErr(streams.ErrOut)

	cmds.AddCommand(
		NewCmdServe(load),
		NewCmdAsk(load, streams),
		NewCmdIngest(load, streams),
	)
	return cmds
}

// configLoader loads configuration and applies global flags.
type configLoader func() (*config.Config, error)

func setupLogging(cfg *config.Config, w io.Writer) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if cfg.Environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen})
		return
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
}
